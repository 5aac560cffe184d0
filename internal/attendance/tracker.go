// Package attendance tracks who is present in a live session and for how
// long. Open intervals live in memory; durable per-participant records are
// written through the participant store when intervals close.
package attendance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campuslive/backend/internal/store"
)

// Cache is the TTL cache used for computed attendance stats.
type Cache interface {
	GetJSON(ctx context.Context, key string, out interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, val interface{}, ttl time.Duration) error
}

const statsCacheTTL = 30 * time.Second

// Record is one attendance interval result.
type Record struct {
	UserID   uuid.UUID `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
	LeftAt   time.Time `json:"left_at"`
	Duration int       `json:"duration"` // seconds
}

// Stats summarizes attendance for a session.
type Stats struct {
	SessionID       uuid.UUID `json:"session_id"`
	Present         int       `json:"present"`
	TotalJoined     int       `json:"total_joined"`
	AvgDurationSecs int       `json:"avg_duration_secs"`
	ComputedAt      time.Time `json:"computed_at"`
}

// Tracker keeps per-session in-memory attendance maps. State does not survive
// a restart; durable durations come from participant rows.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]map[uuid.UUID]time.Time // sessionID -> userID -> joinedAt

	participants store.ParticipantStore
	cache        Cache
	logger       *zap.Logger
}

// NewTracker creates an attendance tracker.
func NewTracker(participants store.ParticipantStore, cache Cache, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		sessions:     make(map[uuid.UUID]map[uuid.UUID]time.Time),
		participants: participants,
		cache:        cache,
		logger:       logger,
	}
}

// StartTracking initializes the in-memory map for a session going live.
func (t *Tracker) StartTracking(sessionID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[sessionID]; !ok {
		t.sessions[sessionID] = make(map[uuid.UUID]time.Time)
	}
}

// Tracking reports whether the session has an active attendance map.
func (t *Tracker) Tracking(sessionID uuid.UUID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.sessions[sessionID]
	return ok
}

// RecordJoin opens an attendance interval. A rejoin while an interval is
// already open is ignored so the earlier join timestamp wins.
func (t *Tracker) RecordJoin(sessionID, userID uuid.UUID, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.sessions[sessionID]
	if !ok {
		// Session not tracked (e.g. joined before going live); start lazily.
		m = make(map[uuid.UUID]time.Time)
		t.sessions[sessionID] = m
	}
	if _, present := m[userID]; !present {
		m[userID] = at
	}
}

// RecordLeave closes the interval and returns its duration in seconds.
// Returns ok=false when no interval was open for the user.
func (t *Tracker) RecordLeave(sessionID, userID uuid.UUID, at time.Time) (seconds int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, tracked := t.sessions[sessionID]
	if !tracked {
		return 0, false
	}
	joined, present := m[userID]
	if !present {
		return 0, false
	}
	delete(m, userID)
	d := int(at.Sub(joined).Seconds())
	if d < 0 {
		d = 0
	}
	return d, true
}

// LiveDuration returns the open interval length for a user, zero if absent.
func (t *Tracker) LiveDuration(sessionID, userID uuid.UUID, now time.Time) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	joined, ok := t.sessions[sessionID][userID]
	if !ok {
		return 0
	}
	d := int(now.Sub(joined).Seconds())
	if d < 0 {
		return 0
	}
	return d
}

// PresentCount returns the number of open intervals for a session.
func (t *Tracker) PresentCount(sessionID uuid.UUID) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions[sessionID])
}

// EndTracking force-closes all open intervals at the given time and drops the
// session map. Returns the final records for everyone still present.
func (t *Tracker) EndTracking(sessionID uuid.UUID, at time.Time) []Record {
	t.mu.Lock()
	m, ok := t.sessions[sessionID]
	delete(t.sessions, sessionID)
	t.mu.Unlock()
	if !ok {
		return nil
	}
	records := make([]Record, 0, len(m))
	for userID, joined := range m {
		d := int(at.Sub(joined).Seconds())
		if d < 0 {
			d = 0
		}
		records = append(records, Record{UserID: userID, JoinedAt: joined, LeftAt: at, Duration: d})
	}
	return records
}

// SessionStats computes attendance stats from participant rows, served from
// the TTL cache when fresh. Present counts come from the in-memory map so the
// number reflects this instance's live view.
func (t *Tracker) SessionStats(ctx context.Context, sessionID uuid.UUID) (*Stats, error) {
	key := "attendance:stats:" + sessionID.String()
	if t.cache != nil {
		var cached Stats
		if hit, err := t.cache.GetJSON(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	rows, err := t.participants.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	now := time.Now()
	total := len(rows)
	var durationSum int
	for _, p := range rows {
		d := p.Duration
		if p.Status.Active() {
			d += t.LiveDuration(sessionID, p.UserID, now)
		}
		durationSum += d
	}
	stats := &Stats{
		SessionID:   sessionID,
		Present:     t.PresentCount(sessionID),
		TotalJoined: total,
		ComputedAt:  now,
	}
	if total > 0 {
		stats.AvgDurationSecs = durationSum / total
	}

	if t.cache != nil {
		if err := t.cache.SetJSON(ctx, key, stats, statsCacheTTL); err != nil {
			t.logger.Warn("attendance stats cache write failed", zap.Error(err))
		}
	}
	return stats, nil
}
