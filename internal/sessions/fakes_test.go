package sessions

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campuslive/backend/internal/attendance"
	"github.com/campuslive/backend/internal/breakout"
	"github.com/campuslive/backend/internal/models"
	"github.com/campuslive/backend/internal/notify"
	"github.com/campuslive/backend/internal/provider"
	"github.com/campuslive/backend/internal/recording"
	"github.com/campuslive/backend/internal/store"
)

type fakeSessionStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{rows: make(map[uuid.UUID]*models.Session)}
}

func (f *fakeSessionStore) Create(_ context.Context, s *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now()
	cp := *s
	f.rows[s.ID] = &cp
	return nil
}

func (f *fakeSessionStore) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) GetByExternalRoom(_ context.Context, externalRoomID string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.rows {
		if s.ExternalRoomID == externalRoomID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeSessionStore) Update(_ context.Context, s *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[s.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *s
	f.rows[s.ID] = &cp
	return nil
}

func (f *fakeSessionStore) List(_ context.Context, filter store.SessionFilter) ([]models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Session
	for _, s := range f.rows {
		if filter.Status != nil && s.Status != *filter.Status {
			continue
		}
		if filter.HostID != nil && s.HostID != *filter.HostID {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakeSessionStore) UpdateBreakout(_ context.Context, id uuid.UUID, cfg models.BreakoutConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return store.ErrNotFound
	}
	s.Breakout = cfg
	return nil
}

func (f *fakeSessionStore) UpdateCounters(_ context.Context, id uuid.UUID, counts store.ParticipantCounts) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return store.ErrNotFound
	}
	s.CurrentParticipants = counts.Active
	s.TotalParticipants = counts.Total
	return nil
}

func (f *fakeSessionStore) SetRecordingActive(_ context.Context, id uuid.UUID, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return store.ErrNotFound
	}
	s.RecordingActive = active
	return nil
}

func (f *fakeSessionStore) UpdateRecordingResult(_ context.Context, id uuid.UUID, url string, duration int, size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok {
		return store.ErrNotFound
	}
	s.RecordingURL = url
	s.RecordingDuration = duration
	s.RecordingSize = size
	return nil
}

type participantKey struct {
	session uuid.UUID
	user    uuid.UUID
}

type fakeParticipantStore struct {
	mu   sync.Mutex
	rows map[participantKey]*models.Participant
}

func newFakeParticipantStore() *fakeParticipantStore {
	return &fakeParticipantStore{rows: make(map[participantKey]*models.Participant)}
}

func (f *fakeParticipantStore) Upsert(_ context.Context, p *models.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := participantKey{p.SessionID, p.UserID}
	if existing, ok := f.rows[key]; ok {
		p.ID = existing.ID
		p.Duration = existing.Duration
		p.CreatedAt = existing.CreatedAt
	} else {
		p.ID = uuid.New()
		p.CreatedAt = time.Now()
	}
	cp := *p
	f.rows[key] = &cp
	return nil
}

func (f *fakeParticipantStore) GetBySessionAndUser(_ context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[participantKey{sessionID, userID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeParticipantStore) Update(_ context.Context, p *models.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := participantKey{p.SessionID, p.UserID}
	if _, ok := f.rows[key]; !ok {
		return store.ErrNotFound
	}
	cp := *p
	f.rows[key] = &cp
	return nil
}

func (f *fakeParticipantStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Participant
	for key, p := range f.rows {
		if key.session == sessionID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeParticipantStore) ListActiveBySession(_ context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Participant
	for key, p := range f.rows {
		if key.session == sessionID && p.Status.Active() {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeParticipantStore) Counts(_ context.Context, sessionID uuid.UUID) (store.ParticipantCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var c store.ParticipantCounts
	for key, p := range f.rows {
		if key.session != sessionID {
			continue
		}
		c.Total++
		if p.Status.Active() {
			c.Active++
		}
	}
	return c, nil
}

func (f *fakeParticipantStore) FinalizeActive(_ context.Context, sessionID uuid.UUID, leftAt time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for key, p := range f.rows {
		if key.session != sessionID || !p.Status.Active() {
			continue
		}
		p.Status = models.ParticipantDisconnected
		at := leftAt
		p.LeftAt = &at
		if p.JoinedAt != nil {
			if d := int(leftAt.Sub(*p.JoinedAt).Seconds()); d > 0 {
				p.Duration += d
			}
		}
		n++
	}
	return n, nil
}

func (f *fakeParticipantStore) SetBreakoutRoom(_ context.Context, sessionID, userID uuid.UUID, roomID *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[participantKey{sessionID, userID}]
	if !ok {
		return store.ErrNotFound
	}
	p.BreakoutRoomID = roomID
	return nil
}

func (f *fakeParticipantStore) ClearBreakoutRooms(_ context.Context, sessionID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, p := range f.rows {
		if key.session == sessionID {
			p.BreakoutRoomID = nil
		}
	}
	return nil
}

type fakeRecordingStore struct {
	store.RecordingStore
	active *models.Recording
}

func (f *fakeRecordingStore) FindActiveBySession(_ context.Context, _ uuid.UUID) (*models.Recording, error) {
	return f.active, nil
}

// fakeProvider records calls and lets tests inject failures.
type fakeProvider struct {
	kind models.ProviderKind

	mu               sync.Mutex
	createErr        error
	startErr         error
	connErr          error
	createdRooms     int
	endedRooms       []string
	startedRooms     []string
	breakoutsCreated int
	breakoutsClosed  int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{kind: models.ProviderSelfHosted}
}

func (f *fakeProvider) Kind() models.ProviderKind { return f.kind }

func (f *fakeProvider) CreateRoom(_ context.Context, _ *models.Session) (*provider.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createdRooms++
	id := uuid.New().String()
	return &provider.Room{ExternalID: id, JoinURL: "http://example.test/join/" + id}, nil
}

func (f *fakeProvider) StartRoom(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.startedRooms = append(f.startedRooms, roomID)
	return nil
}

func (f *fakeProvider) EndRoom(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endedRooms = append(f.endedRooms, roomID)
	return nil
}

func (f *fakeProvider) UpdateSettings(_ context.Context, _ string, _ models.SessionSettings) error {
	return nil
}

func (f *fakeProvider) GetConnectionInfo(_ context.Context, s *models.Session, join provider.JoinSpec) (*provider.ConnectionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connErr != nil {
		return nil, f.connErr
	}
	return &provider.ConnectionInfo{
		Provider:  f.kind,
		RoomID:    s.ExternalRoomID,
		Token:     "token-" + join.UserID.String(),
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeProvider) CreateBreakoutRooms(_ context.Context, _ string, _ []models.BreakoutRoom) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.breakoutsCreated++
	return nil
}

func (f *fakeProvider) CloseBreakoutRooms(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.breakoutsClosed++
	return nil
}

func (f *fakeProvider) StartRecording(_ context.Context, _ string) (string, error) {
	return "rec-" + uuid.New().String(), nil
}

func (f *fakeProvider) StopRecording(_ context.Context, _ string) error { return nil }

func (f *fakeProvider) ListRecordings(_ context.Context, _ string) ([]provider.RecordingFile, error) {
	return nil, nil
}

func (f *fakeProvider) DownloadRecording(_ context.Context, _ provider.RecordingFile) (io.ReadCloser, int64, string, error) {
	return nil, -1, "", io.ErrUnexpectedEOF
}

type testEnv struct {
	svc          *Service
	sessions     *fakeSessionStore
	participants *fakeParticipantStore
	provider     *fakeProvider
	tracker      *attendance.Tracker
}

func newTestEnv() *testEnv {
	sessions := newFakeSessionStore()
	participants := newFakeParticipantStore()
	prov := newFakeProvider()
	providers := provider.NewRegistry(prov)
	notifier := notify.NewService(nil, nil, nil)
	tracker := attendance.NewTracker(participants, nil, nil)
	breakouts := breakout.NewCoordinator(sessions, participants, providers, notifier, nil)
	recordings := recording.NewCoordinator(sessions, &fakeRecordingStore{}, providers, nil, nil, notifier, nil)
	svc := NewService(sessions, participants, providers, tracker, breakouts, recordings, notifier, models.ProviderSelfHosted, nil)
	return &testEnv{
		svc:          svc,
		sessions:     sessions,
		participants: participants,
		provider:     prov,
		tracker:      tracker,
	}
}
