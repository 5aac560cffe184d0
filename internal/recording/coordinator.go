// Package recording coordinates session recordings: start/stop against the
// provider, async processing into S3, and artifact access.
package recording

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campuslive/backend/internal/models"
	"github.com/campuslive/backend/internal/notify"
	"github.com/campuslive/backend/internal/provider"
	"github.com/campuslive/backend/internal/store"
	"github.com/campuslive/backend/pkg/apperr"
	"github.com/campuslive/backend/pkg/queue"
	"github.com/campuslive/backend/pkg/storage"
)

// Enqueuer queues recording processing jobs for the worker.
type Enqueuer interface {
	EnqueueRecordingProcess(ctx context.Context, payload queue.RecordingProcessPayload) error
}

// Coordinator owns the recording lifecycle for sessions.
type Coordinator struct {
	sessions   store.SessionStore
	recordings store.RecordingStore
	providers  *provider.Registry
	queue      Enqueuer
	s3         *storage.S3
	notifier   *notify.Service
	logger     *zap.Logger
}

// NewCoordinator creates a recording coordinator.
func NewCoordinator(sessions store.SessionStore, recordings store.RecordingStore, providers *provider.Registry, q Enqueuer, s3 *storage.S3, notifier *notify.Service, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		sessions:   sessions,
		recordings: recordings,
		providers:  providers,
		queue:      q,
		s3:         s3,
		notifier:   notifier,
		logger:     logger,
	}
}

func (c *Coordinator) loadSession(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	s, err := c.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apperr.NotFound("session %s not found", sessionID)
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return s, nil
}

// Start begins recording a live session. Host-only. Returns the pending
// recording row.
func (c *Coordinator) Start(ctx context.Context, actorID, sessionID uuid.UUID) (*models.Recording, error) {
	s, err := c.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if actorID != s.HostID {
		return nil, apperr.Forbidden("only the host can start recording")
	}
	if s.Status != models.SessionLive {
		return nil, apperr.InvalidState("recording requires a live session (status %s)", s.Status)
	}
	if !s.Settings.RecordingAllowed {
		return nil, apperr.InvalidState("recording is not allowed for this session")
	}
	if active, err := c.recordings.FindActiveBySession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("check active recording: %w", err)
	} else if active != nil {
		return nil, apperr.InvalidState("a recording is already in progress")
	}

	p, err := c.providers.For(s.Provider)
	if err != nil {
		return nil, apperr.Provider(err, "resolve provider")
	}
	providerRecID, err := p.StartRecording(ctx, s.ExternalRoomID)
	if err != nil {
		return nil, apperr.Provider(err, "start recording")
	}

	rec := &models.Recording{
		ID:                  uuid.New(),
		SessionID:           sessionID,
		ProviderRecordingID: providerRecID,
		Status:              models.RecordingStatusRecording,
	}
	if err := c.recordings.Create(ctx, rec); err != nil {
		// Best effort rollback on the provider so the room is not stuck recording.
		if stopErr := p.StopRecording(ctx, s.ExternalRoomID); stopErr != nil && !errors.Is(stopErr, provider.ErrAlreadyEnded) {
			c.logger.Error("recording rollback failed", zap.Error(stopErr),
				zap.String("session_id", sessionID.String()))
		}
		return nil, fmt.Errorf("create recording row: %w", err)
	}
	if err := c.sessions.SetRecordingActive(ctx, sessionID, true); err != nil {
		c.logger.Warn("set recording_active failed", zap.Error(err))
	}

	c.notifier.Broadcast(s.ExternalRoomID, "recording_started", map[string]string{
		"recording_id": rec.ID.String(),
	})
	c.logger.Info("recording started",
		zap.String("session_id", sessionID.String()),
		zap.String("recording_id", rec.ID.String()))
	return rec, nil
}

// Stop ends the active recording and enqueues processing. The artifact is not
// ready when this returns; the worker uploads it and flips the status.
func (c *Coordinator) Stop(ctx context.Context, actorID, sessionID uuid.UUID) (*models.Recording, error) {
	s, err := c.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if actorID != s.HostID {
		return nil, apperr.Forbidden("only the host can stop recording")
	}
	rec, err := c.recordings.FindActiveBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find active recording: %w", err)
	}
	if rec == nil {
		return nil, apperr.InvalidState("no recording in progress")
	}
	return c.stop(ctx, s, rec)
}

// StopForEnd stops any active recording as part of session end. Missing or
// already-stopped recordings are benign.
func (c *Coordinator) StopForEnd(ctx context.Context, s *models.Session) {
	rec, err := c.recordings.FindActiveBySession(ctx, s.ID)
	if err != nil {
		c.logger.Warn("find active recording on end failed", zap.Error(err),
			zap.String("session_id", s.ID.String()))
		return
	}
	if rec == nil {
		return
	}
	if _, err := c.stop(ctx, s, rec); err != nil {
		c.logger.Warn("stop recording on end failed", zap.Error(err),
			zap.String("session_id", s.ID.String()))
	}
}

func (c *Coordinator) stop(ctx context.Context, s *models.Session, rec *models.Recording) (*models.Recording, error) {
	p, err := c.providers.For(s.Provider)
	if err != nil {
		return nil, apperr.Provider(err, "resolve provider")
	}
	if err := p.StopRecording(ctx, s.ExternalRoomID); err != nil && !errors.Is(err, provider.ErrAlreadyEnded) {
		return nil, apperr.Provider(err, "stop recording")
	}

	if err := c.recordings.UpdateStatus(ctx, rec.ID, models.RecordingStatusProcessing); err != nil {
		return nil, fmt.Errorf("mark recording processing: %w", err)
	}
	rec.Status = models.RecordingStatusProcessing
	if err := c.sessions.SetRecordingActive(ctx, s.ID, false); err != nil {
		c.logger.Warn("clear recording_active failed", zap.Error(err))
	}

	err = c.queue.EnqueueRecordingProcess(ctx, queue.RecordingProcessPayload{
		SessionID:      s.ID,
		RecordingID:    rec.ID,
		Provider:       string(s.Provider),
		ExternalRoomID: s.ExternalRoomID,
	})
	if err != nil {
		// The row stays in processing; the reconcile sweep re-enqueues it.
		c.logger.Error("recording job enqueue failed", zap.Error(err),
			zap.String("recording_id", rec.ID.String()))
	}

	c.notifier.Broadcast(s.ExternalRoomID, "recording_stopped", map[string]string{
		"recording_id": rec.ID.String(),
	})
	c.logger.Info("recording stopped, processing queued",
		zap.String("session_id", s.ID.String()),
		zap.String("recording_id", rec.ID.String()))
	return rec, nil
}

// List returns the recordings of a session, newest first.
func (c *Coordinator) List(ctx context.Context, sessionID uuid.UUID) ([]models.Recording, error) {
	if _, err := c.loadSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return c.recordings.ListBySession(ctx, sessionID)
}

// DownloadURL returns a pre-signed URL for a completed recording.
func (c *Coordinator) DownloadURL(ctx context.Context, recordingID uuid.UUID) (string, error) {
	rec, err := c.recordings.GetByID(ctx, recordingID)
	if err != nil {
		if err == store.ErrNotFound {
			return "", apperr.NotFound("recording %s not found", recordingID)
		}
		return "", fmt.Errorf("load recording: %w", err)
	}
	if rec.Status != models.RecordingStatusCompleted || rec.S3Key == "" {
		return "", apperr.InvalidState("recording is not ready (status %s)", rec.Status)
	}
	if c.s3 == nil {
		return "", fmt.Errorf("recording storage is not configured")
	}
	url, err := c.s3.PresignDownload(ctx, rec.S3Key, c.s3.PresignExpire())
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return url, nil
}

// Delete removes a recording row and its S3 object. Host-only.
func (c *Coordinator) Delete(ctx context.Context, actorID, recordingID uuid.UUID) error {
	rec, err := c.recordings.GetByID(ctx, recordingID)
	if err != nil {
		if err == store.ErrNotFound {
			return apperr.NotFound("recording %s not found", recordingID)
		}
		return fmt.Errorf("load recording: %w", err)
	}
	s, err := c.loadSession(ctx, rec.SessionID)
	if err != nil {
		return err
	}
	if actorID != s.HostID {
		return apperr.Forbidden("only the host can delete recordings")
	}
	if rec.S3Key != "" {
		if c.s3 == nil {
			return fmt.Errorf("recording storage is not configured")
		}
		if err := c.s3.Delete(ctx, rec.S3Key); err != nil {
			c.logger.Warn("delete recording object failed", zap.Error(err),
				zap.String("s3_key", rec.S3Key))
		}
	}
	if err := c.recordings.Delete(ctx, recordingID); err != nil {
		return fmt.Errorf("delete recording row: %w", err)
	}
	c.logger.Info("recording deleted", zap.String("recording_id", recordingID.String()))
	return nil
}
