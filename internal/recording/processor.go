package recording

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campuslive/backend/internal/models"
	"github.com/campuslive/backend/internal/notify"
	"github.com/campuslive/backend/internal/provider"
	"github.com/campuslive/backend/internal/store"
	"github.com/campuslive/backend/pkg/queue"
	"github.com/campuslive/backend/pkg/storage"
)

// staleAfter is how long a recording may sit in processing before the
// reconcile sweep re-enqueues it.
const staleAfter = 15 * time.Minute

// Processor moves stopped recordings from the provider into S3. It runs in
// the worker binary and must be idempotent: the queue is at-least-once.
type Processor struct {
	sessions   store.SessionStore
	recordings store.RecordingStore
	providers  *provider.Registry
	queue      Enqueuer
	s3         *storage.S3
	notifier   *notify.Service
	logger     *zap.Logger
}

// NewProcessor creates a recording processor.
func NewProcessor(sessions store.SessionStore, recordings store.RecordingStore, providers *provider.Registry, q Enqueuer, s3 *storage.S3, notifier *notify.Service, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		sessions:   sessions,
		recordings: recordings,
		providers:  providers,
		queue:      q,
		s3:         s3,
		notifier:   notifier,
		logger:     logger,
	}
}

// Process downloads the provider artifact and uploads it to S3. Completed
// recordings are skipped so redelivered jobs are harmless.
func (p *Processor) Process(ctx context.Context, payload queue.RecordingProcessPayload) error {
	rec, err := p.recordings.GetByID(ctx, payload.RecordingID)
	if err != nil {
		if err == store.ErrNotFound {
			p.logger.Warn("recording job for missing row, dropping",
				zap.String("recording_id", payload.RecordingID.String()))
			return nil
		}
		return fmt.Errorf("load recording: %w", err)
	}
	if rec.Status == models.RecordingStatusCompleted {
		p.logger.Debug("recording already processed, skipping",
			zap.String("recording_id", rec.ID.String()))
		return nil
	}

	prov, err := p.providers.For(models.ProviderKind(payload.Provider))
	if err != nil {
		return fmt.Errorf("resolve provider: %w", err)
	}
	file, err := p.findArtifact(ctx, prov, payload.ExternalRoomID, rec.ProviderRecordingID)
	if err != nil {
		p.markFailed(ctx, rec.ID, err)
		return err
	}

	body, size, contentType, err := prov.DownloadRecording(ctx, *file)
	if err != nil {
		p.markFailed(ctx, rec.ID, err)
		return fmt.Errorf("download artifact: %w", err)
	}
	defer body.Close()

	key := storage.RecordingKey(payload.SessionID.String(), rec.ID.String())
	url, err := p.s3.Upload(ctx, key, contentType, body, size)
	if err != nil {
		p.markFailed(ctx, rec.ID, err)
		return fmt.Errorf("upload to s3: %w", err)
	}

	fileSize := file.Size
	if fileSize == 0 && size > 0 {
		fileSize = size
	}
	if err := p.recordings.UpdateResult(ctx, rec.ID, url, key, fileSize, file.Duration); err != nil {
		return fmt.Errorf("persist recording result: %w", err)
	}
	if err := p.sessions.UpdateRecordingResult(ctx, payload.SessionID, url, file.Duration, fileSize); err != nil {
		p.logger.Warn("persist session recording result failed", zap.Error(err),
			zap.String("session_id", payload.SessionID.String()))
	}

	if s, err := p.sessions.GetByID(ctx, payload.SessionID); err == nil {
		p.notifier.NotifyUser(ctx, s.HostID, s.ID, notify.TypeRecordingReady, map[string]string{
			"recording_id": rec.ID.String(),
			"url":          url,
		})
	}

	p.logger.Info("recording processed",
		zap.String("recording_id", rec.ID.String()),
		zap.String("s3_key", key),
		zap.Int64("size", fileSize))
	return nil
}

// findArtifact matches the provider's artifact list against our provider
// recording id, falling back to the newest artifact when the provider does
// not echo ids (the self-hosted recorder names files after its own id).
func (p *Processor) findArtifact(ctx context.Context, prov provider.Provider, externalRoomID, providerRecID string) (*provider.RecordingFile, error) {
	files, err := prov.ListRecordings(ctx, externalRoomID)
	if err != nil {
		return nil, fmt.Errorf("list provider recordings: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("provider has no artifacts for room %s", externalRoomID)
	}
	if providerRecID != "" {
		for i := range files {
			if files[i].ID == providerRecID {
				return &files[i], nil
			}
		}
	}
	return &files[len(files)-1], nil
}

func (p *Processor) markFailed(ctx context.Context, id uuid.UUID, cause error) {
	if err := p.recordings.UpdateStatus(ctx, id, models.RecordingStatusFailed); err != nil {
		p.logger.Error("mark recording failed errored", zap.Error(err))
	}
	p.logger.Error("recording processing failed", zap.Error(cause),
		zap.String("recording_id", id.String()))
}

// Reconcile re-enqueues recordings stuck in processing. Run periodically by
// the worker to recover from lost jobs.
func (p *Processor) Reconcile(ctx context.Context) error {
	stale, err := p.recordings.ListStale(ctx, models.RecordingStatusProcessing, time.Now().Add(-staleAfter))
	if err != nil {
		return fmt.Errorf("list stale recordings: %w", err)
	}
	for _, rec := range stale {
		s, err := p.sessions.GetByID(ctx, rec.SessionID)
		if err != nil {
			continue
		}
		err = p.queue.EnqueueRecordingProcess(ctx, queue.RecordingProcessPayload{
			SessionID:      rec.SessionID,
			RecordingID:    rec.ID,
			Provider:       string(s.Provider),
			ExternalRoomID: s.ExternalRoomID,
		})
		if err != nil {
			p.logger.Warn("re-enqueue stale recording failed", zap.Error(err),
				zap.String("recording_id", rec.ID.String()))
			continue
		}
		p.logger.Info("re-enqueued stale recording", zap.String("recording_id", rec.ID.String()))
	}
	return nil
}
