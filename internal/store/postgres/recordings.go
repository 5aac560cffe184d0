package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuslive/backend/internal/models"
	"github.com/campuslive/backend/internal/store"
)

// RecordingRepository handles recording persistence.
type RecordingRepository struct {
	pool *pgxpool.Pool
}

// NewRecordingRepository creates a recordings repository.
func NewRecordingRepository(pool *pgxpool.Pool) *RecordingRepository {
	return &RecordingRepository{pool: pool}
}

const recordingColumns = `id, session_id, COALESCE(provider_recording_id,''), COALESCE(original_url,''),
	COALESCE(s3_url,''), COALESCE(s3_key,''), duration, file_size, status, created_at, updated_at`

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var rec models.Recording
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.ProviderRecordingID, &rec.OriginalURL,
		&rec.S3URL, &rec.S3Key, &rec.Duration, &rec.FileSize, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Create inserts a new recording row.
func (r *RecordingRepository) Create(ctx context.Context, rec *models.Recording) error {
	const q = `INSERT INTO recordings (id, session_id, provider_recording_id, original_url, s3_url, s3_key, duration, file_size, status)
		VALUES (gen_random_uuid(), $1, NULLIF($2,''), NULLIF($3,''), NULLIF($4,''), NULLIF($5,''), $6, $7, $8)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, rec.SessionID, rec.ProviderRecordingID, rec.OriginalURL, rec.S3URL, rec.S3Key, rec.Duration, rec.FileSize, rec.Status).
		Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
}

// GetByID returns a recording by ID.
func (r *RecordingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	return scanRecording(r.pool.QueryRow(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = $1`, id))
}

// ListBySession returns all recordings for a session, newest first.
func (r *RecordingRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Recording, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE session_id = $1 ORDER BY created_at DESC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

// FindActiveBySession returns the in-progress recording for a session, or nil.
func (r *RecordingRepository) FindActiveBySession(ctx context.Context, sessionID uuid.UUID) (*models.Recording, error) {
	rec, err := scanRecording(r.pool.QueryRow(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE session_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1`,
		sessionID, models.RecordingStatusRecording))
	if err == store.ErrNotFound {
		return nil, nil
	}
	return rec, err
}

// ListStale returns recordings stuck in the given status since before cutoff.
func (r *RecordingRepository) ListStale(ctx context.Context, status string, cutoff time.Time) ([]models.Recording, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE status = $1 AND updated_at < $2 ORDER BY updated_at`,
		status, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

// UpdateStatus sets recording status.
func (r *RecordingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `UPDATE recordings SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	return err
}

// UpdateResult sets the S3 location and marks the recording completed.
func (r *RecordingRepository) UpdateResult(ctx context.Context, id uuid.UUID, s3URL, s3Key string, fileSize int64, duration int) error {
	const q = `UPDATE recordings SET s3_url = $1, s3_key = $2, file_size = $3, duration = $4, status = $5, updated_at = NOW() WHERE id = $6`
	_, err := r.pool.Exec(ctx, q, s3URL, s3Key, fileSize, duration, models.RecordingStatusCompleted, id)
	return err
}

// Delete removes a recording row (the S3 object is deleted by the caller).
func (r *RecordingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM recordings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

var _ store.RecordingStore = (*RecordingRepository)(nil)
