package breakout

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/campuslive/backend/internal/models"
	"github.com/campuslive/backend/internal/notify"
	"github.com/campuslive/backend/internal/provider"
	"github.com/campuslive/backend/internal/store"
)

type fakeSessions struct {
	store.SessionStore
	sess *models.Session
}

func (f *fakeSessions) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	if f.sess == nil || f.sess.ID != id {
		return nil, store.ErrNotFound
	}
	cp := *f.sess
	return &cp, nil
}

func (f *fakeSessions) UpdateBreakout(_ context.Context, id uuid.UUID, cfg models.BreakoutConfig) error {
	if f.sess == nil || f.sess.ID != id {
		return store.ErrNotFound
	}
	f.sess.Breakout = cfg
	return nil
}

type fakeParticipants struct {
	store.ParticipantStore
	rows map[uuid.UUID]*models.Participant // by user id, single session
}

func (f *fakeParticipants) GetBySessionAndUser(_ context.Context, _, userID uuid.UUID) (*models.Participant, error) {
	p, ok := f.rows[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeParticipants) ListActiveBySession(_ context.Context, _ uuid.UUID) ([]models.Participant, error) {
	var out []models.Participant
	for _, p := range f.rows {
		if p.Status.Active() {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeParticipants) SetBreakoutRoom(_ context.Context, _, userID uuid.UUID, roomID *string) error {
	p, ok := f.rows[userID]
	if !ok {
		return store.ErrNotFound
	}
	p.BreakoutRoomID = roomID
	return nil
}

func (f *fakeParticipants) ClearBreakoutRooms(_ context.Context, _ uuid.UUID) error {
	for _, p := range f.rows {
		p.BreakoutRoomID = nil
	}
	return nil
}

type fakeProvider struct {
	created int
	closed  int
}

func (f *fakeProvider) Kind() models.ProviderKind { return models.ProviderSelfHosted }
func (f *fakeProvider) CreateRoom(_ context.Context, _ *models.Session) (*provider.Room, error) {
	return &provider.Room{}, nil
}
func (f *fakeProvider) StartRoom(_ context.Context, _ string) error { return nil }
func (f *fakeProvider) EndRoom(_ context.Context, _ string) error   { return nil }
func (f *fakeProvider) UpdateSettings(_ context.Context, _ string, _ models.SessionSettings) error {
	return nil
}
func (f *fakeProvider) GetConnectionInfo(_ context.Context, _ *models.Session, _ provider.JoinSpec) (*provider.ConnectionInfo, error) {
	return &provider.ConnectionInfo{ExpiresAt: time.Now().Add(time.Hour)}, nil
}
func (f *fakeProvider) CreateBreakoutRooms(_ context.Context, _ string, _ []models.BreakoutRoom) error {
	f.created++
	return nil
}
func (f *fakeProvider) CloseBreakoutRooms(_ context.Context, _ string) error {
	f.closed++
	return nil
}
func (f *fakeProvider) StartRecording(_ context.Context, _ string) (string, error) { return "", nil }
func (f *fakeProvider) StopRecording(_ context.Context, _ string) error            { return nil }
func (f *fakeProvider) ListRecordings(_ context.Context, _ string) ([]provider.RecordingFile, error) {
	return nil, nil
}
func (f *fakeProvider) DownloadRecording(_ context.Context, _ provider.RecordingFile) (io.ReadCloser, int64, string, error) {
	return nil, -1, "", io.ErrUnexpectedEOF
}

type env struct {
	coord        *Coordinator
	sessions     *fakeSessions
	participants *fakeParticipants
	provider     *fakeProvider
	hostID       uuid.UUID
	sessionID    uuid.UUID
}

func newEnv(status models.SessionStatus) *env {
	hostID := uuid.New()
	sess := &models.Session{
		ID:             uuid.New(),
		HostID:         hostID,
		Status:         status,
		ExternalRoomID: "room-1",
		Provider:       models.ProviderSelfHosted,
		Settings:       models.SessionSettings{BreakoutEnabled: true},
	}
	sessions := &fakeSessions{sess: sess}
	participants := &fakeParticipants{rows: make(map[uuid.UUID]*models.Participant)}
	prov := &fakeProvider{}
	coord := NewCoordinator(sessions, participants, provider.NewRegistry(prov), notify.NewService(nil, nil, nil), nil)
	return &env{
		coord:        coord,
		sessions:     sessions,
		participants: participants,
		provider:     prov,
		hostID:       hostID,
		sessionID:    sess.ID,
	}
}

func (e *env) addParticipant(role models.ParticipantRole, status models.ParticipantStatus) uuid.UUID {
	id := uuid.New()
	e.participants.rows[id] = &models.Participant{
		SessionID: e.sessionID,
		UserID:    id,
		Role:      role,
		Status:    status,
	}
	return id
}

func TestCreateRoomsGates(t *testing.T) {
	ctx := context.Background()
	req := CreateRequest{Rooms: []RoomSpec{{Name: "Group A"}}}

	t.Run("requires host or co-host", func(t *testing.T) {
		e := newEnv(models.SessionLive)
		outsider := uuid.New()
		if _, err := e.coord.CreateRooms(ctx, outsider, e.sessionID, req); err == nil {
			t.Fatal("expected forbidden error")
		}
	})

	t.Run("co-host may open rooms", func(t *testing.T) {
		e := newEnv(models.SessionLive)
		coHost := e.addParticipant(models.RoleCoHost, models.ParticipantConnected)
		if _, err := e.coord.CreateRooms(ctx, coHost, e.sessionID, req); err != nil {
			t.Fatalf("co-host CreateRooms: %v", err)
		}
	})

	t.Run("requires live session", func(t *testing.T) {
		e := newEnv(models.SessionScheduled)
		if _, err := e.coord.CreateRooms(ctx, e.hostID, e.sessionID, req); err == nil {
			t.Fatal("expected invalid state error")
		}
	})

	t.Run("requires breakout setting", func(t *testing.T) {
		e := newEnv(models.SessionLive)
		e.sessions.sess.Settings.BreakoutEnabled = false
		if _, err := e.coord.CreateRooms(ctx, e.hostID, e.sessionID, req); err == nil {
			t.Fatal("expected invalid state error")
		}
	})

	t.Run("rejects double open", func(t *testing.T) {
		e := newEnv(models.SessionLive)
		if _, err := e.coord.CreateRooms(ctx, e.hostID, e.sessionID, req); err != nil {
			t.Fatal(err)
		}
		if _, err := e.coord.CreateRooms(ctx, e.hostID, e.sessionID, req); err == nil {
			t.Fatal("expected invalid state on second open")
		}
	})
}

func TestCreateRoomsAutoAssign(t *testing.T) {
	e := newEnv(models.SessionLive)
	e.addParticipant(models.RoleHost, models.ParticipantConnected)
	var attendees []uuid.UUID
	for i := 0; i < 5; i++ {
		attendees = append(attendees, e.addParticipant(models.RoleAttendee, models.ParticipantConnected))
	}
	e.addParticipant(models.RoleAttendee, models.ParticipantDisconnected)

	cfg, err := e.coord.CreateRooms(context.Background(), e.hostID, e.sessionID, CreateRequest{
		Rooms:      []RoomSpec{{Name: "A"}, {Name: "B"}},
		AutoAssign: true,
	})
	if err != nil {
		t.Fatalf("CreateRooms: %v", err)
	}
	if len(cfg.Rooms) != 2 {
		t.Fatalf("got %d rooms, want 2", len(cfg.Rooms))
	}

	total := 0
	seen := map[uuid.UUID]int{}
	for _, room := range cfg.Rooms {
		total += len(room.ParticipantIDs)
		for _, id := range room.ParticipantIDs {
			seen[id]++
		}
	}
	// Five active attendees spread over two rooms; host and the disconnected
	// attendee are skipped.
	if total != 5 {
		t.Errorf("assigned %d participants, want 5", total)
	}
	for _, id := range attendees {
		if seen[id] != 1 {
			t.Errorf("attendee %s assigned %d times, want 1", id, seen[id])
		}
	}
	if e.provider.created != 1 {
		t.Error("provider should be told to create breakout rooms")
	}
}

func TestAssign(t *testing.T) {
	ctx := context.Background()
	e := newEnv(models.SessionLive)
	attendee := e.addParticipant(models.RoleAttendee, models.ParticipantConnected)

	cfg, err := e.coord.CreateRooms(ctx, e.hostID, e.sessionID, CreateRequest{
		Rooms: []RoomSpec{{Name: "A", Capacity: 1}, {Name: "B"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	roomA, roomB := cfg.Rooms[0].ID, cfg.Rooms[1].ID

	got, err := e.coord.Assign(ctx, e.hostID, e.sessionID, attendee, roomA)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if !got.RoomByID(roomA).Contains(attendee) {
		t.Error("attendee should be in room A")
	}

	// Assigning again to the same room is a no-op.
	if _, err := e.coord.Assign(ctx, e.hostID, e.sessionID, attendee, roomA); err != nil {
		t.Errorf("idempotent assign: %v", err)
	}

	// Moving to room B removes the room A membership.
	got, err = e.coord.Assign(ctx, e.hostID, e.sessionID, attendee, roomB)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if got.RoomByID(roomA).Contains(attendee) {
		t.Error("attendee should have left room A")
	}
	if !got.RoomByID(roomB).Contains(attendee) {
		t.Error("attendee should be in room B")
	}
	if e.participants.rows[attendee].BreakoutRoomID == nil || *e.participants.rows[attendee].BreakoutRoomID != roomB {
		t.Error("participant row should point at room B")
	}

	// Capacity is enforced.
	second := e.addParticipant(models.RoleAttendee, models.ParticipantConnected)
	if _, err := e.coord.Assign(ctx, e.hostID, e.sessionID, second, roomA); err != nil {
		t.Fatal(err)
	}
	third := e.addParticipant(models.RoleAttendee, models.ParticipantConnected)
	if _, err := e.coord.Assign(ctx, e.hostID, e.sessionID, third, roomA); err == nil {
		t.Error("expected capacity error for full room")
	}

	// Unknown room and unknown participant fail.
	if _, err := e.coord.Assign(ctx, e.hostID, e.sessionID, attendee, "missing"); err == nil {
		t.Error("expected not found for unknown room")
	}
	if _, err := e.coord.Assign(ctx, e.hostID, e.sessionID, uuid.New(), roomB); err == nil {
		t.Error("expected not found for unknown participant")
	}

	// Disconnected participants cannot be assigned.
	gone := e.addParticipant(models.RoleAttendee, models.ParticipantDisconnected)
	if _, err := e.coord.Assign(ctx, e.hostID, e.sessionID, gone, roomB); err == nil {
		t.Error("expected invalid state for disconnected participant")
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	e := newEnv(models.SessionLive)
	attendee := e.addParticipant(models.RoleAttendee, models.ParticipantConnected)

	cfg, err := e.coord.CreateRooms(ctx, e.hostID, e.sessionID, CreateRequest{Rooms: []RoomSpec{{Name: "A"}}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.coord.Assign(ctx, e.hostID, e.sessionID, attendee, cfg.Rooms[0].ID); err != nil {
		t.Fatal(err)
	}

	got, err := e.coord.Remove(ctx, e.hostID, e.sessionID, attendee)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got.RoomByID(cfg.Rooms[0].ID).Contains(attendee) {
		t.Error("attendee should have been removed")
	}
	if e.participants.rows[attendee].BreakoutRoomID != nil {
		t.Error("participant row should be cleared")
	}

	// Removing an unassigned user is a no-op.
	if _, err := e.coord.Remove(ctx, e.hostID, e.sessionID, attendee); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	e := newEnv(models.SessionLive)
	attendee := e.addParticipant(models.RoleAttendee, models.ParticipantConnected)

	// Closing with nothing open is a no-op.
	if err := e.coord.Close(ctx, e.hostID, e.sessionID); err != nil {
		t.Fatalf("Close (nothing open): %v", err)
	}
	if e.provider.closed != 0 {
		t.Error("provider should not be called when nothing is open")
	}

	cfg, err := e.coord.CreateRooms(ctx, e.hostID, e.sessionID, CreateRequest{Rooms: []RoomSpec{{Name: "A"}}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.coord.Assign(ctx, e.hostID, e.sessionID, attendee, cfg.Rooms[0].ID); err != nil {
		t.Fatal(err)
	}

	if err := e.coord.Close(ctx, e.hostID, e.sessionID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if e.sessions.sess.Breakout.Enabled {
		t.Error("breakout config should be cleared")
	}
	if e.participants.rows[attendee].BreakoutRoomID != nil {
		t.Error("participant assignments should be cleared")
	}
	if e.provider.closed != 1 {
		t.Error("provider teardown should run once")
	}
}

func TestCloseForEnd(t *testing.T) {
	ctx := context.Background()
	e := newEnv(models.SessionLive)
	attendee := e.addParticipant(models.RoleAttendee, models.ParticipantConnected)
	cfg, err := e.coord.CreateRooms(ctx, e.hostID, e.sessionID, CreateRequest{Rooms: []RoomSpec{{Name: "A"}}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.coord.Assign(ctx, e.hostID, e.sessionID, attendee, cfg.Rooms[0].ID); err != nil {
		t.Fatal(err)
	}

	e.coord.CloseForEnd(ctx, e.sessions.sess)
	if e.sessions.sess.Breakout.Enabled {
		t.Error("breakout config should be cleared on session end")
	}
	if e.participants.rows[attendee].BreakoutRoomID != nil {
		t.Error("assignments should be cleared on session end")
	}
}
