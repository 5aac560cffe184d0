package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuslive/backend/internal/models"
	"github.com/campuslive/backend/internal/store"
)

// ParticipantRepository handles participant persistence.
type ParticipantRepository struct {
	pool *pgxpool.Pool
}

// NewParticipantRepository creates a participant repository.
func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

const participantColumns = `id, session_id, user_id, role, status, joined_at, left_at, duration,
	device_info, quality_samples, engagement_counters, permissions,
	breakout_room_id, in_waiting_room, created_at, updated_at`

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var p models.Participant
	var permissions []byte
	err := row.Scan(&p.ID, &p.SessionID, &p.UserID, &p.Role, &p.Status, &p.JoinedAt, &p.LeftAt, &p.Duration,
		&p.DeviceInfo, &p.QualitySamples, &p.EngagementCounters, &permissions,
		&p.BreakoutRoomID, &p.InWaitingRoom, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if len(permissions) > 0 {
		if err := json.Unmarshal(permissions, &p.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return &p, nil
}

// Upsert inserts a participant or updates the existing (session,user) row.
// Re-joins reuse the row: status, role, joined_at and device info are
// refreshed, left_at is cleared, accumulated duration is kept.
func (r *ParticipantRepository) Upsert(ctx context.Context, p *models.Participant) error {
	permissions, err := encodeJSON(p.Permissions)
	if err != nil {
		return err
	}
	const q = `INSERT INTO session_participants
			(id, session_id, user_id, role, status, joined_at, device_info, permissions, in_waiting_room)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id, user_id) DO UPDATE SET
			role = EXCLUDED.role,
			status = EXCLUDED.status,
			joined_at = EXCLUDED.joined_at,
			left_at = NULL,
			device_info = EXCLUDED.device_info,
			permissions = EXCLUDED.permissions,
			in_waiting_room = EXCLUDED.in_waiting_room,
			updated_at = NOW()
		RETURNING id, duration, created_at, updated_at`
	return r.pool.QueryRow(ctx, q,
		p.SessionID, p.UserID, p.Role, p.Status, p.JoinedAt, p.DeviceInfo, permissions, p.InWaitingRoom).
		Scan(&p.ID, &p.Duration, &p.CreatedAt, &p.UpdatedAt)
}

// GetBySessionAndUser returns the participant row for (session, user).
func (r *ParticipantRepository) GetBySessionAndUser(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	return scanParticipant(r.pool.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM session_participants WHERE session_id = $1 AND user_id = $2`,
		sessionID, userID))
}

// Update writes the mutable participant fields back.
func (r *ParticipantRepository) Update(ctx context.Context, p *models.Participant) error {
	permissions, err := encodeJSON(p.Permissions)
	if err != nil {
		return err
	}
	const q = `UPDATE session_participants SET role = $1, status = $2, joined_at = $3, left_at = $4,
			duration = $5, device_info = $6, quality_samples = $7, engagement_counters = $8,
			permissions = $9, breakout_room_id = $10, in_waiting_room = $11, updated_at = NOW()
		WHERE id = $12`
	tag, err := r.pool.Exec(ctx, q,
		p.Role, p.Status, p.JoinedAt, p.LeftAt,
		p.Duration, p.DeviceInfo, p.QualitySamples, p.EngagementCounters,
		permissions, p.BreakoutRoomID, p.InWaitingRoom, p.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *ParticipantRepository) list(ctx context.Context, q string, args ...interface{}) ([]models.Participant, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// ListBySession returns all participant rows for a session.
func (r *ParticipantRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	return r.list(ctx,
		`SELECT `+participantColumns+` FROM session_participants WHERE session_id = $1 ORDER BY created_at`,
		sessionID)
}

// ListActiveBySession returns connecting/connected rows for a session.
func (r *ParticipantRepository) ListActiveBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	return r.list(ctx,
		`SELECT `+participantColumns+` FROM session_participants
		 WHERE session_id = $1 AND status IN ('connecting','connected') ORDER BY joined_at`,
		sessionID)
}

// Counts recomputes active and total head counts from the rows themselves.
func (r *ParticipantRepository) Counts(ctx context.Context, sessionID uuid.UUID) (store.ParticipantCounts, error) {
	const q = `SELECT
			COUNT(*) FILTER (WHERE status IN ('connecting','connected')),
			COUNT(*)
		FROM session_participants WHERE session_id = $1`
	var c store.ParticipantCounts
	err := r.pool.QueryRow(ctx, q, sessionID).Scan(&c.Active, &c.Total)
	return c, err
}

// FinalizeActive disconnects every active participant of the session, setting
// left_at and accumulating connected seconds into duration.
func (r *ParticipantRepository) FinalizeActive(ctx context.Context, sessionID uuid.UUID, leftAt time.Time) (int, error) {
	const q = `UPDATE session_participants SET
			status = 'disconnected',
			left_at = $2,
			duration = duration + GREATEST(0, EXTRACT(EPOCH FROM ($2 - joined_at))::INT),
			updated_at = NOW()
		WHERE session_id = $1 AND status IN ('connecting','connected') AND joined_at IS NOT NULL`
	tag, err := r.pool.Exec(ctx, q, sessionID, leftAt)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// SetBreakoutRoom sets (or clears, with nil) the participant's breakout room.
func (r *ParticipantRepository) SetBreakoutRoom(ctx context.Context, sessionID, userID uuid.UUID, roomID *string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE session_participants SET breakout_room_id = $3, updated_at = NOW() WHERE session_id = $1 AND user_id = $2`,
		sessionID, userID, roomID)
	return err
}

// ClearBreakoutRooms clears every participant's breakout room for the session.
func (r *ParticipantRepository) ClearBreakoutRooms(ctx context.Context, sessionID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE session_participants SET breakout_room_id = NULL, updated_at = NOW() WHERE session_id = $1 AND breakout_room_id IS NOT NULL`,
		sessionID)
	return err
}

var _ store.ParticipantStore = (*ParticipantRepository)(nil)
