package recording

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/campuslive/backend/internal/models"
	"github.com/campuslive/backend/internal/notify"
	"github.com/campuslive/backend/internal/provider"
	"github.com/campuslive/backend/internal/store"
	"github.com/campuslive/backend/pkg/apperr"
	"github.com/campuslive/backend/pkg/queue"
)

func wantKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", kind)
	}
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("error kind = %v, want %v (err: %v)", got, kind, err)
	}
}

type fakeSessions struct {
	store.SessionStore

	mu              sync.Mutex
	sess            *models.Session
	recordingActive bool
	resultURL       string
}

func (f *fakeSessions) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sess == nil || f.sess.ID != id {
		return nil, store.ErrNotFound
	}
	cp := *f.sess
	return &cp, nil
}

func (f *fakeSessions) SetRecordingActive(_ context.Context, _ uuid.UUID, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordingActive = active
	return nil
}

func (f *fakeSessions) UpdateRecordingResult(_ context.Context, _ uuid.UUID, url string, _ int, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resultURL = url
	return nil
}

type fakeRecordings struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*models.Recording
	stale []models.Recording
}

func newFakeRecordings() *fakeRecordings {
	return &fakeRecordings{rows: make(map[uuid.UUID]*models.Recording)}
}

func (f *fakeRecordings) Create(_ context.Context, rec *models.Recording) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = time.Now()
	cp := *rec
	f.rows[rec.ID] = &cp
	return nil
}

func (f *fakeRecordings) GetByID(_ context.Context, id uuid.UUID) (*models.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRecordings) ListBySession(_ context.Context, sessionID uuid.UUID) ([]models.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Recording
	for _, rec := range f.rows {
		if rec.SessionID == sessionID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeRecordings) FindActiveBySession(_ context.Context, sessionID uuid.UUID) (*models.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.rows {
		if rec.SessionID == sessionID && rec.Status == models.RecordingStatusRecording {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRecordings) ListStale(_ context.Context, _ string, _ time.Time) ([]models.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stale, nil
}

func (f *fakeRecordings) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.Status = status
	return nil
}

func (f *fakeRecordings) UpdateResult(_ context.Context, id uuid.UUID, s3URL, s3Key string, fileSize int64, duration int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.S3URL = s3URL
	rec.S3Key = s3Key
	rec.FileSize = fileSize
	rec.Duration = duration
	rec.Status = models.RecordingStatusCompleted
	return nil
}

func (f *fakeRecordings) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

var _ store.RecordingStore = (*fakeRecordings)(nil)

// fakeProvider stubs the recording surface of a meeting backend.
type fakeProvider struct {
	provider.Provider

	mu        sync.Mutex
	startErr  error
	stopped   int
	listCalls int
	files     []provider.RecordingFile
}

func (f *fakeProvider) Kind() models.ProviderKind { return models.ProviderSelfHosted }

func (f *fakeProvider) StartRecording(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	return "prov-rec-1", nil
}

func (f *fakeProvider) StopRecording(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakeProvider) ListRecordings(_ context.Context, _ string) ([]provider.RecordingFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.files, nil
}

func (f *fakeProvider) DownloadRecording(_ context.Context, _ provider.RecordingFile) (io.ReadCloser, int64, string, error) {
	return io.NopCloser(bytes.NewReader(nil)), 0, "video/mp4", nil
}

type fakeEnqueuer struct {
	mu       sync.Mutex
	err      error
	payloads []queue.RecordingProcessPayload
}

func (f *fakeEnqueuer) EnqueueRecordingProcess(_ context.Context, payload queue.RecordingProcessPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

type testEnv struct {
	coord      *Coordinator
	processor  *Processor
	sessions   *fakeSessions
	recordings *fakeRecordings
	provider   *fakeProvider
	enqueuer   *fakeEnqueuer
	hostID     uuid.UUID
	sess       *models.Session
}

func newTestEnv(status models.SessionStatus) *testEnv {
	hostID := uuid.New()
	settings := models.DefaultSessionSettings()
	settings.RecordingAllowed = true
	sess := &models.Session{
		ID:             uuid.New(),
		Title:          "Lab session",
		HostID:         hostID,
		Provider:       models.ProviderSelfHosted,
		Status:         status,
		ExternalRoomID: "room-1",
		Settings:       settings,
	}
	sessions := &fakeSessions{sess: sess}
	recordings := newFakeRecordings()
	prov := &fakeProvider{}
	providers := provider.NewRegistry(prov)
	enqueuer := &fakeEnqueuer{}
	notifier := notify.NewService(nil, nil, nil)
	return &testEnv{
		coord:      NewCoordinator(sessions, recordings, providers, enqueuer, nil, notifier, nil),
		processor:  NewProcessor(sessions, recordings, providers, enqueuer, nil, notifier, nil),
		sessions:   sessions,
		recordings: recordings,
		provider:   prov,
		enqueuer:   enqueuer,
		hostID:     hostID,
		sess:       sess,
	}
}

var errUpstream = errors.New("upstream down")
