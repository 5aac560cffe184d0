// Package worker runs the background job loop: recording processing into S3,
// notification dispatch, and the periodic sweeps (scheduled notification
// promotion, stale recording reconcile).
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campuslive/backend/internal/models"
	"github.com/campuslive/backend/internal/recording"
	"github.com/campuslive/backend/pkg/queue"
)

const sweepInterval = 30 * time.Second

// Dispatcher delivers a notification to its final transport. The platform's
// notification system implements this; the default logs the dispatch.
type Dispatcher interface {
	Dispatch(ctx context.Context, n queue.NotificationPayload) error
}

// LogDispatcher logs notifications instead of delivering them. Used until a
// real transport is wired in.
type LogDispatcher struct {
	Logger *zap.Logger
}

// Dispatch logs the notification.
func (d *LogDispatcher) Dispatch(_ context.Context, n queue.NotificationPayload) error {
	d.Logger.Info("notification dispatched",
		zap.String("type", n.Type),
		zap.String("user_id", n.UserID.String()),
		zap.String("session_id", n.SessionID.String()))
	return nil
}

// Worker consumes jobs and runs the periodic sweeps.
type Worker struct {
	queue      *queue.Queue
	queues     []string
	processor  *recording.Processor
	dispatcher Dispatcher
	logger     *zap.Logger
}

// New creates a worker serving the given provider kinds. Recording lists are
// partitioned per provider, so a worker without an adapter for a provider
// never consumes (and never dead-letters) that provider's jobs.
func New(q *queue.Queue, processor *recording.Processor, dispatcher Dispatcher, kinds []models.ProviderKind, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dispatcher == nil {
		dispatcher = &LogDispatcher{Logger: logger}
	}
	return &Worker{
		queue:      q,
		queues:     jobQueues(kinds),
		processor:  processor,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// jobQueues lists the Redis lists to consume: one recording list per served
// provider plus the shared notification list.
func jobQueues(kinds []models.ProviderKind) []string {
	keys := make([]string, 0, len(kinds)+1)
	for _, k := range kinds {
		keys = append(keys, queue.RecordingQueueKey(string(k)))
	}
	return append(keys, queue.QueueNotifications)
}

func (w *Worker) process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeRecordingProcess:
		var payload queue.RecordingProcessPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return w.processor.Process(ctx, payload)
	case queue.JobTypeNotification:
		var payload queue.NotificationPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return w.dispatcher.Dispatch(ctx, payload)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// Run starts the job loop: dequeue, process, retry on error. Blocks until ctx
// is cancelled.
func (w *Worker) Run(ctx context.Context) {
	go w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return
		default:
		}

		job, key, err := w.queue.Dequeue(ctx, w.queues...)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		w.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := w.process(ctx, job); err != nil {
			w.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := w.queue.Retry(ctx, key, job); reErr != nil {
				w.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}

// sweep promotes due scheduled notifications and re-enqueues stale recordings.
func (w *Worker) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := w.queue.PromoteDue(ctx, time.Now()); err != nil {
				w.logger.Warn("promote scheduled notifications failed", zap.Error(err))
			} else if n > 0 {
				w.logger.Info("scheduled notifications promoted", zap.Int("count", n))
			}
			if err := w.processor.Reconcile(ctx); err != nil {
				w.logger.Warn("recording reconcile failed", zap.Error(err))
			}
		}
	}
}
