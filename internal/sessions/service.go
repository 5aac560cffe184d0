// Package sessions implements the session lifecycle: scheduling, start/end,
// join/leave and the wiring into attendance, breakout and recording.
package sessions

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campuslive/backend/internal/attendance"
	"github.com/campuslive/backend/internal/breakout"
	"github.com/campuslive/backend/internal/models"
	"github.com/campuslive/backend/internal/notify"
	"github.com/campuslive/backend/internal/provider"
	"github.com/campuslive/backend/internal/recording"
	"github.com/campuslive/backend/internal/store"
	"github.com/campuslive/backend/pkg/apperr"
	"github.com/campuslive/backend/pkg/utils"
)

const (
	reminderLead    = 15 * time.Minute
	passcodeDigits  = 6
	maxListPageSize = 100
)

// CreateRequest is the input for scheduling a session.
type CreateRequest struct {
	Title          string                  `json:"title" binding:"required"`
	Description    string                  `json:"description"`
	CourseID       *uuid.UUID              `json:"course_id"`
	LessonID       *uuid.UUID              `json:"lesson_id"`
	Kind           models.SessionKind      `json:"kind"`
	Provider       models.ProviderKind     `json:"provider"`
	ScheduledStart time.Time               `json:"scheduled_start" binding:"required"`
	ScheduledEnd   time.Time               `json:"scheduled_end" binding:"required"`
	Capacity       int                     `json:"capacity"`
	Settings       *models.SessionSettings `json:"settings"`

	PasscodeRequired bool `json:"passcode_required"`
	LockOnStart      bool `json:"lock_on_start"`
	RecordingEnabled bool `json:"recording_enabled"`
}

// UpdateRequest carries the mutable session fields. Nil means unchanged.
type UpdateRequest struct {
	Title          *string                 `json:"title"`
	Description    *string                 `json:"description"`
	ScheduledStart *time.Time              `json:"scheduled_start"`
	ScheduledEnd   *time.Time              `json:"scheduled_end"`
	Capacity       *int                    `json:"capacity"`
	Settings       *models.SessionSettings `json:"settings"`
}

// JoinRequest is the input for joining a session.
type JoinRequest struct {
	DisplayName string `json:"display_name"`
	Passcode    string `json:"passcode"`
	DeviceInfo  []byte `json:"device_info"`
}

// JoinResult is what a successful join returns. Connection is nil while the
// participant sits in the waiting room.
type JoinResult struct {
	Participant *models.Participant      `json:"participant"`
	Connection  *provider.ConnectionInfo `json:"connection,omitempty"`
}

// Service orchestrates the session lifecycle.
type Service struct {
	sessions     store.SessionStore
	participants store.ParticipantStore
	providers    *provider.Registry
	attendance   *attendance.Tracker
	breakouts    *breakout.Coordinator
	recordings   *recording.Coordinator
	notifier     *notify.Service
	logger       *zap.Logger

	defaultProvider models.ProviderKind

	// joinMu serializes joins per session so capacity checks don't race.
	joinMuMu sync.Mutex
	joinMu   map[uuid.UUID]*sync.Mutex
}

// NewService creates the session orchestrator.
func NewService(
	sessions store.SessionStore,
	participants store.ParticipantStore,
	providers *provider.Registry,
	tracker *attendance.Tracker,
	breakouts *breakout.Coordinator,
	recordings *recording.Coordinator,
	notifier *notify.Service,
	defaultProvider models.ProviderKind,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultProvider == "" {
		defaultProvider = models.ProviderSelfHosted
	}
	return &Service{
		sessions:        sessions,
		participants:    participants,
		providers:       providers,
		attendance:      tracker,
		breakouts:       breakouts,
		recordings:      recordings,
		notifier:        notifier,
		defaultProvider: defaultProvider,
		logger:          logger,
		joinMu:          make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *Service) sessionJoinLock(id uuid.UUID) *sync.Mutex {
	s.joinMuMu.Lock()
	defer s.joinMuMu.Unlock()
	mu, ok := s.joinMu[id]
	if !ok {
		mu = &sync.Mutex{}
		s.joinMu[id] = mu
	}
	return mu
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apperr.NotFound("session %s not found", id)
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

func generatePasscode() (string, error) {
	digits := make([]byte, passcodeDigits)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}

// Create schedules a session and provisions its provider room. Provisioning
// failure aborts the create; no session row is written.
func (s *Service) Create(ctx context.Context, hostID uuid.UUID, req CreateRequest) (*models.Session, error) {
	if !req.ScheduledEnd.After(req.ScheduledStart) {
		return nil, apperr.InvalidState("scheduled_end must be after scheduled_start")
	}

	sess := &models.Session{
		Title:            req.Title,
		Description:      req.Description,
		HostID:           hostID,
		CourseID:         req.CourseID,
		LessonID:         req.LessonID,
		Kind:             req.Kind,
		Provider:         req.Provider,
		Status:           models.SessionScheduled,
		ScheduledStart:   req.ScheduledStart,
		ScheduledEnd:     req.ScheduledEnd,
		Capacity:         req.Capacity,
		Settings:         models.DefaultSessionSettings(),
		RecordingEnabled: req.RecordingEnabled,
	}
	if sess.Kind == "" {
		sess.Kind = models.KindMeeting
	}
	if sess.Provider == "" {
		sess.Provider = s.defaultProvider
	}
	if req.Settings != nil {
		sess.Settings = *req.Settings
	}
	sess.Security = models.SecuritySettings{
		PasscodeRequired: req.PasscodeRequired,
		LockOnStart:      req.LockOnStart,
	}
	if req.PasscodeRequired {
		passcode, err := generatePasscode()
		if err != nil {
			return nil, fmt.Errorf("generate passcode: %w", err)
		}
		hash, err := utils.HashPasscode(passcode)
		if err != nil {
			return nil, fmt.Errorf("hash passcode: %w", err)
		}
		sess.Security.PasscodeHash = hash
		sess.Passcode = passcode // plaintext shown once in the create response
	}

	prov, err := s.providers.For(sess.Provider)
	if err != nil {
		return nil, apperr.Provider(err, "resolve provider")
	}
	room, err := prov.CreateRoom(ctx, sess)
	if err != nil {
		return nil, apperr.Provider(err, "provision room")
	}
	sess.ExternalRoomID = room.ExternalID
	sess.JoinURL = room.JoinURL
	if sess.Passcode == "" && room.Passcode != "" {
		sess.Passcode = room.Passcode
	}

	if err := s.sessions.Create(ctx, sess); err != nil {
		// Don't leak the provider room if the insert failed.
		if endErr := prov.EndRoom(ctx, room.ExternalID); endErr != nil && !errors.Is(endErr, provider.ErrAlreadyEnded) {
			s.logger.Warn("orphaned provider room cleanup failed", zap.Error(endErr),
				zap.String("external_room_id", room.ExternalID))
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	// Seed the host's participant row so they are listed before joining.
	host := &models.Participant{
		SessionID: sess.ID,
		UserID:    hostID,
		Role:      models.RoleHost,
		Status:    models.ParticipantDisconnected,
		Permissions: models.ParticipantPermissions{
			CanShareScreen: true,
			CanUnmuteSelf:  true,
			CanChat:        true,
			CanAnnotate:    true,
		},
	}
	if err := s.participants.Upsert(ctx, host); err != nil {
		s.logger.Warn("seed host participant failed", zap.Error(err),
			zap.String("session_id", sess.ID.String()))
	}

	if at := sess.ScheduledStart.Add(-reminderLead); at.After(time.Now()) {
		s.notifier.ScheduleReminder(ctx, hostID, sess.ID, at)
	}

	s.logger.Info("session created",
		zap.String("session_id", sess.ID.String()),
		zap.String("host_id", hostID.String()),
		zap.String("provider", string(sess.Provider)),
		zap.String("kind", string(sess.Kind)))
	return sess, nil
}

// Get returns a session by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return s.load(ctx, id)
}

// List returns sessions matching the filter, page size capped.
func (s *Service) List(ctx context.Context, f store.SessionFilter) ([]models.Session, error) {
	if f.Limit <= 0 || f.Limit > maxListPageSize {
		f.Limit = maxListPageSize
	}
	return s.sessions.List(ctx, f)
}

// Update edits a session. Host-only; terminal sessions are immutable and the
// schedule can only change before the session starts.
func (s *Service) Update(ctx context.Context, actorID, id uuid.UUID, req UpdateRequest) (*models.Session, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorID != sess.HostID {
		return nil, apperr.Forbidden("only the host can update the session")
	}
	if sess.Status.Terminal() {
		return nil, apperr.InvalidState("session is %s and cannot be updated", sess.Status)
	}

	if req.ScheduledStart != nil || req.ScheduledEnd != nil {
		if sess.Status != models.SessionScheduled {
			return nil, apperr.InvalidState("cannot reschedule a %s session", sess.Status)
		}
		if req.ScheduledStart != nil {
			sess.ScheduledStart = *req.ScheduledStart
		}
		if req.ScheduledEnd != nil {
			sess.ScheduledEnd = *req.ScheduledEnd
		}
		if !sess.ScheduledEnd.After(sess.ScheduledStart) {
			return nil, apperr.InvalidState("scheduled_end must be after scheduled_start")
		}
	}
	if req.Title != nil {
		sess.Title = *req.Title
	}
	if req.Description != nil {
		sess.Description = *req.Description
	}
	if req.Capacity != nil {
		sess.Capacity = *req.Capacity
	}
	settingsChanged := false
	if req.Settings != nil {
		sess.Settings = *req.Settings
		settingsChanged = true
	}

	if err := s.sessions.Update(ctx, sess); err != nil {
		if err == store.ErrNotFound {
			return nil, apperr.NotFound("session %s not found", id)
		}
		return nil, fmt.Errorf("update session: %w", err)
	}

	if settingsChanged && sess.Status == models.SessionLive {
		if prov, err := s.providers.For(sess.Provider); err == nil {
			if err := prov.UpdateSettings(ctx, sess.ExternalRoomID, sess.Settings); err != nil {
				s.logger.Warn("push settings to provider failed", zap.Error(err),
					zap.String("session_id", id.String()))
			}
		}
		s.notifier.Broadcast(sess.ExternalRoomID, "settings_updated", sess.Settings)
	}
	return sess, nil
}

// Start transitions scheduled -> live and opens the provider room.
func (s *Service) Start(ctx context.Context, actorID, id uuid.UUID) (*models.Session, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorID != sess.HostID {
		return nil, apperr.Forbidden("only the host can start the session")
	}
	if !models.CanTransition(sess.Status, models.SessionLive) {
		return nil, apperr.InvalidState("cannot start a %s session", sess.Status)
	}

	prov, err := s.providers.For(sess.Provider)
	if err != nil {
		return nil, apperr.Provider(err, "resolve provider")
	}
	if err := prov.StartRoom(ctx, sess.ExternalRoomID); err != nil {
		return nil, apperr.Provider(err, "start room")
	}

	now := time.Now()
	sess.Status = models.SessionLive
	sess.ActualStart = &now
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	s.attendance.StartTracking(sess.ID)
	s.notifier.Broadcast(sess.ExternalRoomID, "session_started", map[string]string{
		"session_id": sess.ID.String(),
	})
	go s.notifyParticipants(sess, notify.TypeSessionStarted)

	s.logger.Info("session started",
		zap.String("session_id", sess.ID.String()),
		zap.String("host_id", actorID.String()))
	return sess, nil
}

// End transitions live -> completed, closing the provider room, stopping any
// recording, tearing down breakouts and finalizing attendance. Provider
// failures are logged; local completion always proceeds.
func (s *Service) End(ctx context.Context, actorID, id uuid.UUID) (*models.Session, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorID != sess.HostID {
		return nil, apperr.Forbidden("only the host can end the session")
	}
	if !models.CanTransition(sess.Status, models.SessionCompleted) {
		return nil, apperr.InvalidState("cannot end a %s session", sess.Status)
	}

	s.recordings.StopForEnd(ctx, sess)
	s.breakouts.CloseForEnd(ctx, sess)

	if prov, err := s.providers.For(sess.Provider); err == nil {
		if err := prov.EndRoom(ctx, sess.ExternalRoomID); err != nil && !errors.Is(err, provider.ErrAlreadyEnded) {
			s.logger.Warn("provider room end failed", zap.Error(err),
				zap.String("session_id", sess.ID.String()))
		}
	}

	now := time.Now()
	s.attendance.EndTracking(sess.ID, now)
	if n, err := s.participants.FinalizeActive(ctx, sess.ID, now); err != nil {
		s.logger.Warn("finalize participants failed", zap.Error(err),
			zap.String("session_id", sess.ID.String()))
	} else if n > 0 {
		s.logger.Info("participants finalized", zap.Int("count", n),
			zap.String("session_id", sess.ID.String()))
	}

	sess.Status = models.SessionCompleted
	sess.ActualEnd = &now
	sess.CurrentParticipants = 0
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	s.refreshCounters(ctx, sess.ID)

	s.notifier.Broadcast(sess.ExternalRoomID, "session_ended", map[string]string{
		"session_id": sess.ID.String(),
	})
	s.logger.Info("session ended", zap.String("session_id", sess.ID.String()))
	return sess, nil
}

// Cancel transitions scheduled -> cancelled and releases the provider room.
func (s *Service) Cancel(ctx context.Context, actorID, id uuid.UUID) (*models.Session, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorID != sess.HostID {
		return nil, apperr.Forbidden("only the host can cancel the session")
	}
	if !models.CanTransition(sess.Status, models.SessionCancelled) {
		return nil, apperr.InvalidState("cannot cancel a %s session", sess.Status)
	}

	if prov, err := s.providers.For(sess.Provider); err == nil {
		if err := prov.EndRoom(ctx, sess.ExternalRoomID); err != nil && !errors.Is(err, provider.ErrAlreadyEnded) {
			s.logger.Warn("provider room release failed", zap.Error(err),
				zap.String("session_id", sess.ID.String()))
		}
	}

	sess.Status = models.SessionCancelled
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	go s.notifyParticipants(sess, notify.TypeSessionCancelled)
	s.logger.Info("session cancelled", zap.String("session_id", sess.ID.String()))
	return sess, nil
}

// Join admits a user into a scheduled or live session; early joiners wait in
// the room until the host starts. Per-session locking keeps the capacity
// check and the participant write atomic against concurrent joins.
func (s *Service) Join(ctx context.Context, userID, id uuid.UUID, req JoinRequest) (*JoinResult, error) {
	mu := s.sessionJoinLock(id)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return nil, apperr.InvalidState("session is %s and cannot be joined", sess.Status)
	}

	role := models.RoleAttendee
	if userID == sess.HostID {
		role = models.RoleHost
	}

	existing, err := s.participants.GetBySessionAndUser(ctx, id, userID)
	if err != nil && err != store.ErrNotFound {
		return nil, fmt.Errorf("load participant: %w", err)
	}
	if existing != nil {
		role = existing.Role
		if userID == sess.HostID {
			role = models.RoleHost
		}
	}
	isPrivileged := role == models.RoleHost || role == models.RoleCoHost

	if sess.Settings.RequireRegistration && !isPrivileged && existing == nil {
		return nil, apperr.Forbidden("registration is required for this session")
	}
	if sess.Security.LockOnStart && !isPrivileged && existing == nil {
		return nil, apperr.Forbidden("session is locked")
	}
	if sess.Security.PasscodeRequired && !isPrivileged {
		if !utils.CheckPasscode(req.Passcode, sess.Security.PasscodeHash) {
			return nil, apperr.Forbidden("invalid passcode")
		}
	}

	alreadyActive := existing != nil && existing.Status.Active()
	if sess.Capacity > 0 && !isPrivileged && !alreadyActive {
		counts, err := s.participants.Counts(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("count participants: %w", err)
		}
		if counts.Active >= sess.Capacity {
			return nil, apperr.CapacityExceeded("session is at capacity (%d)", sess.Capacity)
		}
	}

	// Once admitted past the waiting room, re-joins go straight in.
	admitted := existing != nil && !existing.InWaitingRoom && existing.JoinedAt != nil
	inWaiting := sess.Settings.WaitingRoomEnabled && !isPrivileged && !admitted

	// Connecting until the realtime layer confirms the handshake.
	now := time.Now()
	p := &models.Participant{
		SessionID:     id,
		UserID:        userID,
		Role:          role,
		Status:        models.ParticipantConnecting,
		JoinedAt:      &now,
		DeviceInfo:    req.DeviceInfo,
		InWaitingRoom: inWaiting,
		Permissions: models.ParticipantPermissions{
			CanShareScreen: isPrivileged || sess.Settings.ScreenShareEnabled,
			CanUnmuteSelf:  !sess.Settings.MuteOnEntry || isPrivileged,
			CanChat:        sess.Settings.ChatEnabled,
			CanAnnotate:    isPrivileged,
		},
	}
	if err := s.participants.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("upsert participant: %w", err)
	}
	s.refreshCounters(ctx, id)

	if inWaiting {
		s.notifier.Broadcast(sess.ExternalRoomID, "waiting_room_joined", map[string]string{
			"user_id": userID.String(),
		})
		return &JoinResult{Participant: p}, nil
	}

	s.attendance.RecordJoin(id, userID, now)

	prov, err := s.providers.For(sess.Provider)
	if err != nil {
		return nil, apperr.Provider(err, "resolve provider")
	}
	conn, err := prov.GetConnectionInfo(ctx, sess, provider.JoinSpec{
		UserID:      userID,
		DisplayName: req.DisplayName,
		Role:        role,
	})
	if err != nil {
		return nil, apperr.Provider(err, "issue connection info")
	}

	s.notifier.Broadcast(sess.ExternalRoomID, "participant_joined", map[string]string{
		"user_id": userID.String(),
		"role":    string(role),
	})
	return &JoinResult{Participant: p, Connection: conn}, nil
}

// Admit moves a waiting-room participant into the session. Host or co-host only.
func (s *Service) Admit(ctx context.Context, actorID, id, userID uuid.UUID) error {
	sess, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if actorID != sess.HostID {
		actor, err := s.participants.GetBySessionAndUser(ctx, id, actorID)
		if err != nil || actor.Role != models.RoleCoHost {
			return apperr.Forbidden("only the host or a co-host can admit participants")
		}
	}
	p, err := s.participants.GetBySessionAndUser(ctx, id, userID)
	if err != nil {
		if err == store.ErrNotFound {
			return apperr.NotFound("participant %s not found", userID)
		}
		return fmt.Errorf("load participant: %w", err)
	}
	if !p.InWaitingRoom {
		return apperr.InvalidState("participant is not in the waiting room")
	}

	now := time.Now()
	p.InWaitingRoom = false
	p.Status = models.ParticipantConnecting
	p.JoinedAt = &now
	if err := s.participants.Update(ctx, p); err != nil {
		return fmt.Errorf("update participant: %w", err)
	}
	s.attendance.RecordJoin(id, userID, now)
	s.refreshCounters(ctx, id)

	s.notifier.Broadcast(sess.ExternalRoomID, "participant_admitted", map[string]string{
		"user_id": userID.String(),
	})
	return nil
}

// Leave marks a participant disconnected and accrues their attendance. Only
// an active row can leave; anything else reports NotFound.
func (s *Service) Leave(ctx context.Context, userID, id uuid.UUID) error {
	sess, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	p, err := s.participants.GetBySessionAndUser(ctx, id, userID)
	if err != nil {
		if err == store.ErrNotFound {
			return apperr.NotFound("participant %s not found", userID)
		}
		return fmt.Errorf("load participant: %w", err)
	}
	if !p.Status.Active() {
		return apperr.NotFound("participant %s has no active connection", userID)
	}

	now := time.Now()
	delta, ok := s.attendance.RecordLeave(id, userID, now)
	if !ok && p.JoinedAt != nil {
		// Tracker state was lost (restart); fall back to the row timestamp.
		delta = int(now.Sub(*p.JoinedAt).Seconds())
		if delta < 0 {
			delta = 0
		}
	}

	p.Status = models.ParticipantDisconnected
	p.LeftAt = &now
	p.Duration += delta
	p.InWaitingRoom = false
	if err := s.participants.Update(ctx, p); err != nil {
		return fmt.Errorf("update participant: %w", err)
	}
	s.refreshCounters(ctx, id)

	s.notifier.Broadcast(sess.ExternalRoomID, "participant_left", map[string]string{
		"user_id": userID.String(),
	})
	return nil
}

// ConfirmConnection flips a participant from connecting to connected once the
// signaling layer sees their websocket attach. Breakout sub-rooms carry the
// parent room id before the '#' separator.
func (s *Service) ConfirmConnection(ctx context.Context, signalingRoomID string, userID uuid.UUID) error {
	externalRoomID, _, _ := strings.Cut(signalingRoomID, "#")
	sess, err := s.sessions.GetByExternalRoom(ctx, externalRoomID)
	if err != nil {
		if err == store.ErrNotFound {
			return apperr.NotFound("no session for room %s", externalRoomID)
		}
		return fmt.Errorf("load session by room: %w", err)
	}
	p, err := s.participants.GetBySessionAndUser(ctx, sess.ID, userID)
	if err != nil {
		if err == store.ErrNotFound {
			return apperr.NotFound("participant %s not found", userID)
		}
		return fmt.Errorf("load participant: %w", err)
	}
	// Waiting-room participants stay connecting until admitted.
	if p.InWaitingRoom || p.Status != models.ParticipantConnecting {
		return nil
	}
	p.Status = models.ParticipantConnected
	if err := s.participants.Update(ctx, p); err != nil {
		return fmt.Errorf("update participant: %w", err)
	}
	return nil
}

// Participants returns all participant rows for a session.
func (s *Service) Participants(ctx context.Context, id uuid.UUID) ([]models.Participant, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	return s.participants.ListBySession(ctx, id)
}

// refreshCounters recomputes session head counts from participant rows.
// Counters are derived data; failures are logged, not surfaced.
func (s *Service) refreshCounters(ctx context.Context, id uuid.UUID) {
	counts, err := s.participants.Counts(ctx, id)
	if err != nil {
		s.logger.Warn("recompute counters failed", zap.Error(err), zap.String("session_id", id.String()))
		return
	}
	if err := s.sessions.UpdateCounters(ctx, id, counts); err != nil {
		s.logger.Warn("persist counters failed", zap.Error(err), zap.String("session_id", id.String()))
	}
}

// notifyParticipants queues a notification to everyone with a participant row.
func (s *Service) notifyParticipants(sess *models.Session, typ string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rows, err := s.participants.ListBySession(ctx, sess.ID)
	if err != nil {
		s.logger.Warn("list participants for notify failed", zap.Error(err),
			zap.String("session_id", sess.ID.String()))
		return
	}
	for _, p := range rows {
		if p.UserID == sess.HostID {
			continue
		}
		s.notifier.NotifyUser(ctx, p.UserID, sess.ID, typ, map[string]string{
			"title": sess.Title,
		})
	}
}
