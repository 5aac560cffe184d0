// Package notify fans session events out to connected clients and enqueues
// user notifications for the worker. Delivery is best-effort: failures are
// logged and never propagate into the calling operation.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campuslive/backend/internal/realtime"
	"github.com/campuslive/backend/pkg/queue"
)

// Notification types sent to the worker.
const (
	TypeSessionReminder  = "session_reminder"
	TypeSessionStarted   = "session_started"
	TypeSessionCancelled = "session_cancelled"
	TypeRecordingReady   = "recording_ready"
)

// Service sends realtime broadcasts and queues offline notifications.
type Service struct {
	queue  *queue.Queue
	hub    *realtime.Hub
	logger *zap.Logger
}

// NewService creates a notifier. Both queue and hub may be nil in tests.
func NewService(q *queue.Queue, hub *realtime.Hub, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{queue: q, hub: hub, logger: logger}
}

// Broadcast pushes an event to every client connected to the room.
func (s *Service) Broadcast(roomID string, event string, payload interface{}) {
	if s.hub == nil || roomID == "" {
		return
	}
	s.hub.BroadcastToRoomAndPublish(roomID, event, payload)
}

// NotifyUser enqueues an immediate notification for one user.
func (s *Service) NotifyUser(ctx context.Context, userID, sessionID uuid.UUID, typ string, body interface{}) {
	s.enqueue(ctx, userID, sessionID, typ, body, nil)
}

// ScheduleReminder enqueues a reminder to be delivered at the given time.
func (s *Service) ScheduleReminder(ctx context.Context, userID, sessionID uuid.UUID, at time.Time) {
	s.enqueue(ctx, userID, sessionID, TypeSessionReminder, nil, &at)
}

func (s *Service) enqueue(ctx context.Context, userID, sessionID uuid.UUID, typ string, body interface{}, sendAt *time.Time) {
	if s.queue == nil {
		return
	}
	var raw json.RawMessage
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			s.logger.Warn("notification body marshal failed", zap.Error(err), zap.String("type", typ))
			return
		}
		raw = b
	}
	err := s.queue.EnqueueNotification(ctx, queue.NotificationPayload{
		UserID:    userID,
		SessionID: sessionID,
		Type:      typ,
		Body:      raw,
		SendAt:    sendAt,
	})
	if err != nil {
		s.logger.Warn("notification enqueue failed",
			zap.Error(err),
			zap.String("type", typ),
			zap.String("user_id", userID.String()),
			zap.String("session_id", sessionID.String()))
	}
}
