package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/campuslive/backend/internal/models"
	"github.com/campuslive/backend/pkg/apperr"
)

func validCreateRequest() CreateRequest {
	start := time.Now().Add(time.Hour)
	return CreateRequest{
		Title:          "Office hours",
		ScheduledStart: start,
		ScheduledEnd:   start.Add(time.Hour),
	}
}

func wantKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", kind)
	}
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("error kind = %v, want %v (err: %v)", got, kind, err)
	}
}

// startLive schedules a session and takes it live.
func startLive(t *testing.T, env *testEnv, hostID uuid.UUID, req CreateRequest) *models.Session {
	t.Helper()
	ctx := context.Background()
	sess, err := env.svc.Create(ctx, hostID, req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sess, err = env.svc.Start(ctx, hostID, sess.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return sess
}

func TestCreateDefaults(t *testing.T) {
	env := newTestEnv()
	hostID := uuid.New()

	sess, err := env.svc.Create(context.Background(), hostID, validCreateRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.Status != models.SessionScheduled {
		t.Errorf("status = %s, want scheduled", sess.Status)
	}
	if sess.Kind != models.KindMeeting {
		t.Errorf("kind = %s, want meeting default", sess.Kind)
	}
	if sess.Provider != models.ProviderSelfHosted {
		t.Errorf("provider = %s, want default self_hosted", sess.Provider)
	}
	if sess.ExternalRoomID == "" || sess.JoinURL == "" {
		t.Error("room should be provisioned at create")
	}
	if !sess.Settings.ChatEnabled || !sess.Settings.ScreenShareEnabled {
		t.Error("default settings should enable chat and screen share")
	}

	// The host gets a participant row before joining.
	p, err := env.participants.GetBySessionAndUser(context.Background(), sess.ID, hostID)
	if err != nil {
		t.Fatalf("host participant row missing: %v", err)
	}
	if p.Role != models.RoleHost {
		t.Errorf("host row role = %s, want host", p.Role)
	}
}

func TestCreateRejectsInvertedSchedule(t *testing.T) {
	env := newTestEnv()
	req := validCreateRequest()
	req.ScheduledEnd = req.ScheduledStart.Add(-time.Minute)

	_, err := env.svc.Create(context.Background(), uuid.New(), req)
	wantKind(t, err, apperr.KindInvalidState)
}

func TestCreatePasscode(t *testing.T) {
	env := newTestEnv()
	req := validCreateRequest()
	req.PasscodeRequired = true

	sess, err := env.svc.Create(context.Background(), uuid.New(), req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(sess.Passcode) != 6 {
		t.Errorf("passcode %q, want 6 digits", sess.Passcode)
	}
	if sess.Security.PasscodeHash == "" || sess.Security.PasscodeHash == sess.Passcode {
		t.Error("stored passcode must be hashed")
	}

	// The stored row never carries the plaintext back.
	stored, err := env.sessions.GetByID(context.Background(), sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Security.PasscodeRequired {
		t.Error("stored row should require a passcode")
	}
}

func TestCreateProviderFailureAborts(t *testing.T) {
	env := newTestEnv()
	env.provider.createErr = errors.New("upstream down")

	_, err := env.svc.Create(context.Background(), uuid.New(), validCreateRequest())
	wantKind(t, err, apperr.KindProvider)
	if len(env.sessions.rows) != 0 {
		t.Error("no session row should exist after a failed provision")
	}
}

func TestStart(t *testing.T) {
	env := newTestEnv()
	hostID := uuid.New()
	ctx := context.Background()

	sess, err := env.svc.Create(ctx, hostID, validCreateRequest())
	if err != nil {
		t.Fatal(err)
	}

	_, err = env.svc.Start(ctx, uuid.New(), sess.ID)
	wantKind(t, err, apperr.KindForbidden)

	live, err := env.svc.Start(ctx, hostID, sess.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if live.Status != models.SessionLive {
		t.Errorf("status = %s, want live", live.Status)
	}
	if live.ActualStart == nil {
		t.Error("ActualStart should be set")
	}
	if !env.tracker.Tracking(sess.ID) {
		t.Error("attendance tracking should start with the session")
	}

	_, err = env.svc.Start(ctx, hostID, sess.ID)
	wantKind(t, err, apperr.KindInvalidState)
}

func TestEnd(t *testing.T) {
	env := newTestEnv()
	hostID, attendee := uuid.New(), uuid.New()
	ctx := context.Background()
	sess := startLive(t, env, hostID, validCreateRequest())

	if _, err := env.svc.Join(ctx, attendee, sess.ID, JoinRequest{}); err != nil {
		t.Fatalf("Join: %v", err)
	}

	ended, err := env.svc.End(ctx, hostID, sess.ID)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if ended.Status != models.SessionCompleted {
		t.Errorf("status = %s, want completed", ended.Status)
	}
	if ended.ActualEnd == nil {
		t.Error("ActualEnd should be set")
	}

	p, err := env.participants.GetBySessionAndUser(ctx, sess.ID, attendee)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != models.ParticipantDisconnected {
		t.Errorf("participant status = %s, want disconnected", p.Status)
	}
	if env.tracker.Tracking(sess.ID) {
		t.Error("attendance tracking should stop with the session")
	}

	stored, _ := env.sessions.GetByID(ctx, sess.ID)
	if stored.CurrentParticipants != 0 {
		t.Errorf("CurrentParticipants = %d, want 0", stored.CurrentParticipants)
	}

	// Completed is terminal.
	_, err = env.svc.End(ctx, hostID, sess.ID)
	wantKind(t, err, apperr.KindInvalidState)
	_, err = env.svc.Start(ctx, hostID, sess.ID)
	wantKind(t, err, apperr.KindInvalidState)
}

func TestCancel(t *testing.T) {
	env := newTestEnv()
	hostID := uuid.New()
	ctx := context.Background()

	sess, err := env.svc.Create(ctx, hostID, validCreateRequest())
	if err != nil {
		t.Fatal(err)
	}
	cancelled, err := env.svc.Cancel(ctx, hostID, sess.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != models.SessionCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
	if len(env.provider.endedRooms) != 1 {
		t.Error("cancel should release the provider room")
	}

	// No reopen path from cancelled.
	_, err = env.svc.Start(ctx, hostID, sess.ID)
	wantKind(t, err, apperr.KindInvalidState)
}

func TestCancelLiveRejected(t *testing.T) {
	env := newTestEnv()
	hostID := uuid.New()
	sess := startLive(t, env, hostID, validCreateRequest())

	_, err := env.svc.Cancel(context.Background(), hostID, sess.ID)
	wantKind(t, err, apperr.KindInvalidState)
}

func TestJoinLifecycleGates(t *testing.T) {
	env := newTestEnv()
	hostID, attendee := uuid.New(), uuid.New()
	ctx := context.Background()

	sess, err := env.svc.Create(ctx, hostID, validCreateRequest())
	if err != nil {
		t.Fatal(err)
	}
	// Joining before the host starts is allowed.
	if _, err := env.svc.Join(ctx, attendee, sess.ID, JoinRequest{}); err != nil {
		t.Fatalf("Join scheduled: %v", err)
	}

	if _, err := env.svc.Start(ctx, hostID, sess.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.Join(ctx, attendee, sess.ID, JoinRequest{}); err != nil {
		t.Fatalf("Join live: %v", err)
	}

	if _, err := env.svc.End(ctx, hostID, sess.ID); err != nil {
		t.Fatal(err)
	}
	_, err = env.svc.Join(ctx, attendee, sess.ID, JoinRequest{})
	wantKind(t, err, apperr.KindInvalidState)

	cancelled, err := env.svc.Create(ctx, hostID, validCreateRequest())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.Cancel(ctx, hostID, cancelled.ID); err != nil {
		t.Fatal(err)
	}
	_, err = env.svc.Join(ctx, attendee, cancelled.ID, JoinRequest{})
	wantKind(t, err, apperr.KindInvalidState)
}

func TestJoinBeforeStart(t *testing.T) {
	env := newTestEnv()
	hostID := uuid.New()
	ctx := context.Background()
	req := validCreateRequest()
	req.Capacity = 2

	sess, err := env.svc.Create(ctx, hostID, req)
	if err != nil {
		t.Fatal(err)
	}

	// Capacity is enforced for early joiners too.
	userA, userB := uuid.New(), uuid.New()
	resA, err := env.svc.Join(ctx, userA, sess.ID, JoinRequest{})
	if err != nil {
		t.Fatalf("Join A: %v", err)
	}
	if resA.Connection == nil {
		t.Error("early joiner should still receive connection info")
	}
	if _, err := env.svc.Join(ctx, userB, sess.ID, JoinRequest{}); err != nil {
		t.Fatalf("Join B: %v", err)
	}
	stored, _ := env.sessions.GetByID(ctx, sess.ID)
	if stored.CurrentParticipants != 2 {
		t.Errorf("CurrentParticipants = %d, want 2", stored.CurrentParticipants)
	}
	_, err = env.svc.Join(ctx, uuid.New(), sess.ID, JoinRequest{})
	wantKind(t, err, apperr.KindCapacityExceeded)

	// Early joiners' attendance intervals survive the host starting.
	if _, err := env.svc.Start(ctx, hostID, sess.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := env.tracker.PresentCount(sess.ID); got != 2 {
		t.Errorf("tracked present = %d, want 2", got)
	}
}

func TestJoinReturnsConnection(t *testing.T) {
	env := newTestEnv()
	hostID, attendee := uuid.New(), uuid.New()
	ctx := context.Background()
	sess := startLive(t, env, hostID, validCreateRequest())

	res, err := env.svc.Join(ctx, attendee, sess.ID, JoinRequest{DisplayName: "Sam"})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if res.Connection == nil || res.Connection.Token == "" {
		t.Error("join should return connection info")
	}
	if res.Participant.Role != models.RoleAttendee {
		t.Errorf("role = %s, want attendee", res.Participant.Role)
	}
	// Connected is confirmed by the signaling layer, not the join itself.
	if res.Participant.Status != models.ParticipantConnecting {
		t.Errorf("status = %s, want connecting", res.Participant.Status)
	}

	hostRes, err := env.svc.Join(ctx, hostID, sess.ID, JoinRequest{})
	if err != nil {
		t.Fatalf("host Join: %v", err)
	}
	if hostRes.Participant.Role != models.RoleHost {
		t.Errorf("host role = %s, want host", hostRes.Participant.Role)
	}

	stored, _ := env.sessions.GetByID(ctx, sess.ID)
	if stored.CurrentParticipants != 2 {
		t.Errorf("CurrentParticipants = %d, want 2", stored.CurrentParticipants)
	}
}

func TestJoinPasscode(t *testing.T) {
	env := newTestEnv()
	hostID, attendee := uuid.New(), uuid.New()
	ctx := context.Background()
	req := validCreateRequest()
	req.PasscodeRequired = true
	sess := startLive(t, env, hostID, req)

	_, err := env.svc.Join(ctx, attendee, sess.ID, JoinRequest{Passcode: "wrong"})
	wantKind(t, err, apperr.KindForbidden)

	if _, err := env.svc.Join(ctx, attendee, sess.ID, JoinRequest{Passcode: sess.Passcode}); err != nil {
		t.Fatalf("Join with passcode: %v", err)
	}

	// The host is never challenged.
	if _, err := env.svc.Join(ctx, hostID, sess.ID, JoinRequest{}); err != nil {
		t.Fatalf("host Join: %v", err)
	}
}

func TestJoinCapacity(t *testing.T) {
	env := newTestEnv()
	hostID := uuid.New()
	ctx := context.Background()
	req := validCreateRequest()
	req.Capacity = 1
	sess := startLive(t, env, hostID, req)

	first := uuid.New()
	if _, err := env.svc.Join(ctx, first, sess.ID, JoinRequest{}); err != nil {
		t.Fatalf("first Join: %v", err)
	}

	_, err := env.svc.Join(ctx, uuid.New(), sess.ID, JoinRequest{})
	wantKind(t, err, apperr.KindCapacityExceeded)

	// An already-active participant re-joining does not hit the capacity check.
	if _, err := env.svc.Join(ctx, first, sess.ID, JoinRequest{}); err != nil {
		t.Fatalf("re-join: %v", err)
	}
	// Privileged users bypass capacity.
	if _, err := env.svc.Join(ctx, hostID, sess.ID, JoinRequest{}); err != nil {
		t.Fatalf("host Join at capacity: %v", err)
	}
}

func TestJoinRequireRegistration(t *testing.T) {
	env := newTestEnv()
	hostID := uuid.New()
	ctx := context.Background()
	req := validCreateRequest()
	settings := models.DefaultSessionSettings()
	settings.RequireRegistration = true
	req.Settings = &settings
	sess := startLive(t, env, hostID, req)

	// No participant row means not registered.
	_, err := env.svc.Join(ctx, uuid.New(), sess.ID, JoinRequest{})
	wantKind(t, err, apperr.KindForbidden)

	// A pre-existing row counts as registered.
	registered := uuid.New()
	if err := env.participants.Upsert(ctx, &models.Participant{
		SessionID: sess.ID,
		UserID:    registered,
		Role:      models.RoleAttendee,
		Status:    models.ParticipantDisconnected,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.Join(ctx, registered, sess.ID, JoinRequest{}); err != nil {
		t.Fatalf("registered Join: %v", err)
	}
}

func TestWaitingRoomFlow(t *testing.T) {
	env := newTestEnv()
	hostID, attendee := uuid.New(), uuid.New()
	ctx := context.Background()
	req := validCreateRequest()
	settings := models.DefaultSessionSettings()
	settings.WaitingRoomEnabled = true
	req.Settings = &settings
	sess := startLive(t, env, hostID, req)

	res, err := env.svc.Join(ctx, attendee, sess.ID, JoinRequest{})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if res.Connection != nil {
		t.Error("waiting participants must not receive connection info")
	}
	if !res.Participant.InWaitingRoom {
		t.Error("participant should be in the waiting room")
	}
	if res.Participant.Status != models.ParticipantConnecting {
		t.Errorf("status = %s, want connecting", res.Participant.Status)
	}

	// Only the host or a co-host can admit.
	err = env.svc.Admit(ctx, attendee, sess.ID, attendee)
	wantKind(t, err, apperr.KindForbidden)

	if err := env.svc.Admit(ctx, hostID, sess.ID, attendee); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	p, _ := env.participants.GetBySessionAndUser(ctx, sess.ID, attendee)
	if p.InWaitingRoom || p.Status != models.ParticipantConnecting {
		t.Errorf("after admit: waiting=%v status=%s", p.InWaitingRoom, p.Status)
	}

	// Admitting twice is an invalid state, not a silent success.
	err = env.svc.Admit(ctx, hostID, sess.ID, attendee)
	wantKind(t, err, apperr.KindInvalidState)

	// Once admitted, re-joining skips the waiting room and yields a connection.
	res, err = env.svc.Join(ctx, attendee, sess.ID, JoinRequest{})
	if err != nil {
		t.Fatalf("re-join after admit: %v", err)
	}
	if res.Connection == nil {
		t.Error("admitted participant should receive connection info")
	}

	// The host never waits.
	hostRes, err := env.svc.Join(ctx, hostID, sess.ID, JoinRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if hostRes.Participant.InWaitingRoom {
		t.Error("host should bypass the waiting room")
	}
}

func TestLeave(t *testing.T) {
	env := newTestEnv()
	hostID, attendee := uuid.New(), uuid.New()
	ctx := context.Background()
	sess := startLive(t, env, hostID, validCreateRequest())

	if _, err := env.svc.Join(ctx, attendee, sess.ID, JoinRequest{}); err != nil {
		t.Fatal(err)
	}
	if err := env.svc.Leave(ctx, attendee, sess.ID); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	p, _ := env.participants.GetBySessionAndUser(ctx, sess.ID, attendee)
	if p.Status != models.ParticipantDisconnected {
		t.Errorf("status = %s, want disconnected", p.Status)
	}
	if p.LeftAt == nil {
		t.Error("LeftAt should be set")
	}

	// A second leave has no active row to close.
	err := env.svc.Leave(ctx, attendee, sess.ID)
	wantKind(t, err, apperr.KindNotFound)

	// Leaving a session never joined is not found.
	err = env.svc.Leave(ctx, uuid.New(), sess.ID)
	wantKind(t, err, apperr.KindNotFound)
}

func TestConfirmConnection(t *testing.T) {
	env := newTestEnv()
	hostID, attendee := uuid.New(), uuid.New()
	ctx := context.Background()
	sess := startLive(t, env, hostID, validCreateRequest())

	if _, err := env.svc.Join(ctx, attendee, sess.ID, JoinRequest{}); err != nil {
		t.Fatal(err)
	}
	if err := env.svc.ConfirmConnection(ctx, sess.ExternalRoomID, attendee); err != nil {
		t.Fatalf("ConfirmConnection: %v", err)
	}
	p, _ := env.participants.GetBySessionAndUser(ctx, sess.ID, attendee)
	if p.Status != models.ParticipantConnected {
		t.Errorf("status = %s, want connected after signaling attach", p.Status)
	}

	// Confirming again is a no-op.
	if err := env.svc.ConfirmConnection(ctx, sess.ExternalRoomID, attendee); err != nil {
		t.Errorf("second confirm: %v", err)
	}

	// Breakout sub-rooms resolve through the parent room id.
	other := uuid.New()
	if _, err := env.svc.Join(ctx, other, sess.ID, JoinRequest{}); err != nil {
		t.Fatal(err)
	}
	if err := env.svc.ConfirmConnection(ctx, sess.ExternalRoomID+"#room-1", other); err != nil {
		t.Fatalf("ConfirmConnection breakout: %v", err)
	}
	p, _ = env.participants.GetBySessionAndUser(ctx, sess.ID, other)
	if p.Status != models.ParticipantConnected {
		t.Errorf("breakout confirm: status = %s, want connected", p.Status)
	}

	err := env.svc.ConfirmConnection(ctx, "no-such-room", attendee)
	wantKind(t, err, apperr.KindNotFound)
}

func TestConfirmConnectionSkipsWaitingRoom(t *testing.T) {
	env := newTestEnv()
	hostID, attendee := uuid.New(), uuid.New()
	ctx := context.Background()
	req := validCreateRequest()
	settings := models.DefaultSessionSettings()
	settings.WaitingRoomEnabled = true
	req.Settings = &settings
	sess := startLive(t, env, hostID, req)

	if _, err := env.svc.Join(ctx, attendee, sess.ID, JoinRequest{}); err != nil {
		t.Fatal(err)
	}
	if err := env.svc.ConfirmConnection(ctx, sess.ExternalRoomID, attendee); err != nil {
		t.Fatalf("ConfirmConnection: %v", err)
	}
	p, _ := env.participants.GetBySessionAndUser(ctx, sess.ID, attendee)
	if !p.InWaitingRoom || p.Status != models.ParticipantConnecting {
		t.Errorf("waiting participant must stay connecting: waiting=%v status=%s", p.InWaitingRoom, p.Status)
	}
}

func TestUpdate(t *testing.T) {
	env := newTestEnv()
	hostID := uuid.New()
	ctx := context.Background()

	sess, err := env.svc.Create(ctx, hostID, validCreateRequest())
	if err != nil {
		t.Fatal(err)
	}

	title := "Renamed"
	_, err = env.svc.Update(ctx, uuid.New(), sess.ID, UpdateRequest{Title: &title})
	wantKind(t, err, apperr.KindForbidden)

	updated, err := env.svc.Update(ctx, hostID, sess.ID, UpdateRequest{Title: &title})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "Renamed" {
		t.Errorf("title = %q", updated.Title)
	}

	// Rescheduling is allowed only before start.
	if _, err := env.svc.Start(ctx, hostID, sess.ID); err != nil {
		t.Fatal(err)
	}
	newStart := time.Now().Add(2 * time.Hour)
	_, err = env.svc.Update(ctx, hostID, sess.ID, UpdateRequest{ScheduledStart: &newStart})
	wantKind(t, err, apperr.KindInvalidState)

	// Terminal sessions are immutable.
	if _, err := env.svc.End(ctx, hostID, sess.ID); err != nil {
		t.Fatal(err)
	}
	_, err = env.svc.Update(ctx, hostID, sess.ID, UpdateRequest{Title: &title})
	wantKind(t, err, apperr.KindInvalidState)
}

func TestGetNotFound(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.Get(context.Background(), uuid.New())
	wantKind(t, err, apperr.KindNotFound)
}
