package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueRecordings is the Redis key prefix for recording processing jobs.
	// Each provider gets its own list (see RecordingQueueKey) so a worker only
	// consumes jobs for providers it has an adapter for.
	QueueRecordings = "worker:recordings"
	// QueueNotifications is the Redis list key for notification jobs.
	QueueNotifications = "worker:notifications"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// QueueScheduled is the sorted set of notifications waiting for their send time.
	QueueScheduled = "worker:notifications:scheduled"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeRecordingProcess JobType = "recording_process"
	JobTypeNotification     JobType = "notification"
)

// RecordingProcessPayload is the payload for recording processing jobs.
// The consumer must be idempotent: the queue is at-least-once.
type RecordingProcessPayload struct {
	SessionID      uuid.UUID `json:"session_id"`
	RecordingID    uuid.UUID `json:"recording_id"`
	Provider       string    `json:"provider"`
	ExternalRoomID string    `json:"external_room_id"`
}

// NotificationPayload is the payload for fire-and-forget notification jobs.
type NotificationPayload struct {
	UserID    uuid.UUID       `json:"user_id"`
	SessionID uuid.UUID       `json:"session_id"`
	Type      string          `json:"type"`
	Body      json.RawMessage `json:"body,omitempty"`
	SendAt    *time.Time      `json:"send_at,omitempty"` // nil = immediately
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

func (q *Queue) enqueue(ctx context.Context, key string, jobType JobType, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   body,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued job", zap.String("job_id", job.ID), zap.String("type", string(jobType)))
	return nil
}

// RecordingQueueKey returns the recording list for a provider.
func RecordingQueueKey(provider string) string {
	return QueueRecordings + ":" + provider
}

// EnqueueRecordingProcess enqueues a recording processing job on the
// provider's list.
func (q *Queue) EnqueueRecordingProcess(ctx context.Context, payload RecordingProcessPayload) error {
	return q.enqueue(ctx, RecordingQueueKey(payload.Provider), JobTypeRecordingProcess, payload)
}

// EnqueueNotification enqueues a notification job. Payloads with a future
// SendAt park in the scheduled set until PromoteDue moves them onto the list.
func (q *Queue) EnqueueNotification(ctx context.Context, payload NotificationPayload) error {
	if payload.SendAt != nil && payload.SendAt.After(time.Now()) {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		job := Job{ID: uuid.New().String(), Type: JobTypeNotification, Payload: body, CreatedAt: time.Now()}
		raw, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		member := redis.Z{Score: float64(payload.SendAt.Unix()), Member: raw}
		if err := q.client.ZAdd(ctx, QueueScheduled, member).Err(); err != nil {
			return fmt.Errorf("zadd scheduled: %w", err)
		}
		return nil
	}
	return q.enqueue(ctx, QueueNotifications, JobTypeNotification, payload)
}

// PromoteDue moves scheduled notifications whose send time has passed onto
// the notifications list. Returns the number promoted.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	max := fmt.Sprintf("%d", now.Unix())
	members, err := q.client.ZRangeByScore(ctx, QueueScheduled, &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore: %w", err)
	}
	promoted := 0
	for _, m := range members {
		// Remove first so two workers don't both promote the same member.
		removed, err := q.client.ZRem(ctx, QueueScheduled, m).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := q.client.RPush(ctx, QueueNotifications, m).Err(); err != nil {
			q.logger.Error("promote scheduled notification failed", zap.Error(err))
			continue
		}
		promoted++
	}
	return promoted, nil
}

// Dequeue blocks until a job is available on one of the given lists or ctx is
// done. Returns job and key (queue name).
func (q *Queue) Dequeue(ctx context.Context, keys ...string) (*Job, string, error) {
	result, err := q.client.BLPop(ctx, 0, keys...).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, "", nil
		}
		return nil, "", err
	}
	if len(result) < 2 {
		return nil, "", nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, "", nil
	}
	return &job, result[0], nil
}

// Retry re-enqueues a job on its source queue with incremented attempt. If
// attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, key string, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
