// Package store defines the persistence interfaces for the session core.
// Services depend on these interfaces; the postgres subpackage implements
// them and tests use in-memory fakes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/campuslive/backend/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SessionFilter narrows List results. Nil/zero fields are ignored.
type SessionFilter struct {
	HostID        *uuid.UUID
	ParticipantID *uuid.UUID // sessions the user has a participant row in
	CourseID      *uuid.UUID
	Status        *models.SessionStatus
	Kind          *models.SessionKind
	Search        string // matched against title/description
	Limit         int
	Offset        int
}

// ParticipantCounts holds the recomputed per-session head counts.
type ParticipantCounts struct {
	Active int // connecting + connected rows
	Total  int // all rows
}

// SessionStore persists Session aggregates.
type SessionStore interface {
	Create(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	// GetByExternalRoom resolves the session owning a provider room id.
	GetByExternalRoom(ctx context.Context, externalRoomID string) (*models.Session, error)
	Update(ctx context.Context, s *models.Session) error
	List(ctx context.Context, f SessionFilter) ([]models.Session, error)
	// UpdateBreakout replaces the embedded breakout configuration in one write.
	UpdateBreakout(ctx context.Context, id uuid.UUID, cfg models.BreakoutConfig) error
	// UpdateCounters sets the participant counters recomputed from participant rows.
	UpdateCounters(ctx context.Context, id uuid.UUID, counts ParticipantCounts) error
	SetRecordingActive(ctx context.Context, id uuid.UUID, active bool) error
	// UpdateRecordingResult records the final artifact location on the session.
	UpdateRecordingResult(ctx context.Context, id uuid.UUID, url string, duration int, size int64) error
}

// ParticipantStore persists Participant rows.
type ParticipantStore interface {
	// Upsert inserts a participant or reactivates the existing (session,user)
	// row, keeping at most one row per pair.
	Upsert(ctx context.Context, p *models.Participant) error
	GetBySessionAndUser(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error)
	Update(ctx context.Context, p *models.Participant) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error)
	ListActiveBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error)
	Counts(ctx context.Context, sessionID uuid.UUID) (ParticipantCounts, error)
	// FinalizeActive disconnects every active participant of the session,
	// setting left_at and accumulating duration. Returns rows affected.
	FinalizeActive(ctx context.Context, sessionID uuid.UUID, leftAt time.Time) (int, error)
	SetBreakoutRoom(ctx context.Context, sessionID, userID uuid.UUID, roomID *string) error
	ClearBreakoutRooms(ctx context.Context, sessionID uuid.UUID) error
}

// RecordingStore persists recording artifacts.
type RecordingStore interface {
	Create(ctx context.Context, rec *models.Recording) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Recording, error)
	// FindActiveBySession returns the in-progress recording, or nil when none.
	FindActiveBySession(ctx context.Context, sessionID uuid.UUID) (*models.Recording, error)
	// ListStale returns recordings stuck in the given status since before cutoff.
	ListStale(ctx context.Context, status string, cutoff time.Time) ([]models.Recording, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateResult(ctx context.Context, id uuid.UUID, s3URL, s3Key string, fileSize int64, duration int) error
	Delete(ctx context.Context, id uuid.UUID) error
}
