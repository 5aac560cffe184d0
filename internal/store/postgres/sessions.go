// Package postgres implements the store interfaces over pgx.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuslive/backend/internal/models"
	"github.com/campuslive/backend/internal/store"
)

// SessionRepository handles session persistence.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a session repository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, title, description, host_id, course_id, lesson_id, kind, provider, status,
	scheduled_start, scheduled_end, actual_start, actual_end,
	capacity, current_participants, total_participants,
	COALESCE(external_room_id,''), COALESCE(join_url,''), COALESCE(passcode_hash,''),
	settings, security, breakout,
	recording_enabled, recording_active, COALESCE(recording_url,''), recording_duration, recording_size,
	analytics, quality_metrics, created_at, updated_at`

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	var settings, security, breakout []byte
	var passcodeHash string
	err := row.Scan(&s.ID, &s.Title, &s.Description, &s.HostID, &s.CourseID, &s.LessonID, &s.Kind, &s.Provider, &s.Status,
		&s.ScheduledStart, &s.ScheduledEnd, &s.ActualStart, &s.ActualEnd,
		&s.Capacity, &s.CurrentParticipants, &s.TotalParticipants,
		&s.ExternalRoomID, &s.JoinURL, &passcodeHash,
		&settings, &security, &breakout,
		&s.RecordingEnabled, &s.RecordingActive, &s.RecordingURL, &s.RecordingDuration, &s.RecordingSize,
		&s.Analytics, &s.QualityMetrics, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(settings, &s.Settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := json.Unmarshal(security, &s.Security); err != nil {
		return nil, fmt.Errorf("decode security: %w", err)
	}
	if err := json.Unmarshal(breakout, &s.Breakout); err != nil {
		return nil, fmt.Errorf("decode breakout: %w", err)
	}
	s.Security.PasscodeHash = passcodeHash
	return &s, nil
}

func encodeJSON(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return b, nil
}

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	settings, err := encodeJSON(s.Settings)
	if err != nil {
		return err
	}
	security, err := encodeJSON(s.Security)
	if err != nil {
		return err
	}
	breakout, err := encodeJSON(s.Breakout)
	if err != nil {
		return err
	}
	const q = `INSERT INTO sessions (id, title, description, host_id, course_id, lesson_id, kind, provider, status,
			scheduled_start, scheduled_end, capacity, external_room_id, join_url, passcode_hash,
			settings, security, breakout, recording_enabled, analytics, quality_metrics)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12,''), NULLIF($13,''), NULLIF($14,''), $15, $16, $17, $18, $19, $20)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q,
		s.Title, s.Description, s.HostID, s.CourseID, s.LessonID, s.Kind, s.Provider, s.Status,
		s.ScheduledStart, s.ScheduledEnd, s.Capacity, s.ExternalRoomID, s.JoinURL, s.Security.PasscodeHash,
		settings, security, breakout, s.RecordingEnabled, s.Analytics, s.QualityMetrics).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// GetByID returns a session by ID.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
}

// GetByExternalRoom returns the session owning a provider room id.
func (r *SessionRepository) GetByExternalRoom(ctx context.Context, externalRoomID string) (*models.Session, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE external_room_id = $1`, externalRoomID))
}

// Update writes the mutable session fields back.
func (r *SessionRepository) Update(ctx context.Context, s *models.Session) error {
	settings, err := encodeJSON(s.Settings)
	if err != nil {
		return err
	}
	security, err := encodeJSON(s.Security)
	if err != nil {
		return err
	}
	const q = `UPDATE sessions SET title = $1, description = $2, kind = $3, status = $4,
			scheduled_start = $5, scheduled_end = $6, actual_start = $7, actual_end = $8,
			capacity = $9, external_room_id = NULLIF($10,''), join_url = NULLIF($11,''), passcode_hash = NULLIF($12,''),
			settings = $13, security = $14, recording_enabled = $15,
			analytics = $16, quality_metrics = $17, updated_at = NOW()
		WHERE id = $18`
	tag, err := r.pool.Exec(ctx, q,
		s.Title, s.Description, s.Kind, s.Status,
		s.ScheduledStart, s.ScheduledEnd, s.ActualStart, s.ActualEnd,
		s.Capacity, s.ExternalRoomID, s.JoinURL, s.Security.PasscodeHash,
		settings, security, s.RecordingEnabled,
		s.Analytics, s.QualityMetrics, s.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// List returns sessions matching the filter, newest scheduled first.
func (r *SessionRepository) List(ctx context.Context, f store.SessionFilter) ([]models.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []interface{}
	var conds []string
	if f.HostID != nil {
		args = append(args, *f.HostID)
		conds = append(conds, fmt.Sprintf("host_id = $%d", len(args)))
	}
	if f.ParticipantID != nil {
		args = append(args, *f.ParticipantID)
		conds = append(conds, fmt.Sprintf("id IN (SELECT session_id FROM session_participants WHERE user_id = $%d)", len(args)))
	}
	if f.CourseID != nil {
		args = append(args, *f.CourseID)
		conds = append(conds, fmt.Sprintf("course_id = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Kind != nil {
		args = append(args, *f.Kind)
		conds = append(conds, fmt.Sprintf("kind = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, f.Search)
		n := len(args)
		conds = append(conds, fmt.Sprintf("(title ILIKE '%%' || $%d || '%%' OR description ILIKE '%%' || $%d || '%%')", n, n))
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY scheduled_start DESC"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		q += fmt.Sprintf(" OFFSET %d", f.Offset)
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

// UpdateBreakout replaces the embedded breakout configuration in one write.
func (r *SessionRepository) UpdateBreakout(ctx context.Context, id uuid.UUID, cfg models.BreakoutConfig) error {
	body, err := encodeJSON(cfg)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE sessions SET breakout = $1, updated_at = NOW() WHERE id = $2`, body, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpdateCounters sets both participant counters.
func (r *SessionRepository) UpdateCounters(ctx context.Context, id uuid.UUID, counts store.ParticipantCounts) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions SET current_participants = $1, total_participants = $2, updated_at = NOW() WHERE id = $3`,
		counts.Active, counts.Total, id)
	return err
}

// SetRecordingActive toggles the in-progress recording flag.
func (r *SessionRepository) SetRecordingActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions SET recording_active = $1, updated_at = NOW() WHERE id = $2`, active, id)
	return err
}

// UpdateRecordingResult records the final artifact location on the session.
func (r *SessionRepository) UpdateRecordingResult(ctx context.Context, id uuid.UUID, url string, duration int, size int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions SET recording_url = $1, recording_duration = $2, recording_size = $3, recording_active = FALSE, updated_at = NOW() WHERE id = $4`,
		url, duration, size, id)
	return err
}

var _ store.SessionStore = (*SessionRepository)(nil)
