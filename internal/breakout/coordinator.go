// Package breakout manages breakout room configuration within a live session.
// The configuration is embedded on the session row and every mutation rewrites
// it whole, which keeps the at-most-one-room-per-participant rule enforceable
// in one place.
package breakout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campuslive/backend/internal/models"
	"github.com/campuslive/backend/internal/notify"
	"github.com/campuslive/backend/internal/provider"
	"github.com/campuslive/backend/internal/store"
	"github.com/campuslive/backend/pkg/apperr"
)

// RoomSpec describes one requested breakout room.
type RoomSpec struct {
	Name     string `json:"name" binding:"required"`
	Capacity int    `json:"capacity"`
}

// CreateRequest is the input for opening breakout rooms.
type CreateRequest struct {
	Rooms      []RoomSpec `json:"rooms" binding:"required,min=1"`
	AutoAssign bool       `json:"auto_assign"`
}

// Coordinator owns breakout room lifecycle for sessions.
type Coordinator struct {
	sessions     store.SessionStore
	participants store.ParticipantStore
	providers    *provider.Registry
	notifier     *notify.Service
	logger       *zap.Logger
}

// NewCoordinator creates a breakout coordinator.
func NewCoordinator(sessions store.SessionStore, participants store.ParticipantStore, providers *provider.Registry, notifier *notify.Service, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		sessions:     sessions,
		participants: participants,
		providers:    providers,
		notifier:     notifier,
		logger:       logger,
	}
}

func (c *Coordinator) loadSession(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	s, err := c.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apperr.NotFound("session %s not found", sessionID)
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return s, nil
}

// canManage reports whether the actor may open, close or reassign breakouts:
// the host, or a participant holding the co_host role.
func (c *Coordinator) canManage(ctx context.Context, s *models.Session, actorID uuid.UUID) bool {
	if actorID == s.HostID {
		return true
	}
	p, err := c.participants.GetBySessionAndUser(ctx, s.ID, actorID)
	if err != nil {
		return false
	}
	return p.Role == models.RoleCoHost
}

// CreateRooms opens breakout rooms for a live session, optionally spreading
// active attendees across them round-robin.
func (c *Coordinator) CreateRooms(ctx context.Context, actorID, sessionID uuid.UUID, req CreateRequest) (*models.BreakoutConfig, error) {
	s, err := c.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !c.canManage(ctx, s, actorID) {
		return nil, apperr.Forbidden("only the host or a co-host can open breakout rooms")
	}
	if s.Status != models.SessionLive {
		return nil, apperr.InvalidState("breakout rooms require a live session (status %s)", s.Status)
	}
	if !s.Settings.BreakoutEnabled {
		return nil, apperr.InvalidState("breakout rooms are disabled for this session")
	}
	if s.Breakout.Enabled {
		return nil, apperr.InvalidState("breakout rooms are already open")
	}

	cfg := models.BreakoutConfig{
		Enabled:    true,
		AutoAssign: req.AutoAssign,
		Rooms:      make([]models.BreakoutRoom, 0, len(req.Rooms)),
	}
	for _, spec := range req.Rooms {
		cfg.Rooms = append(cfg.Rooms, models.BreakoutRoom{
			ID:       uuid.New().String(),
			Name:     spec.Name,
			Capacity: spec.Capacity,
		})
	}

	var assigned []models.Participant
	if req.AutoAssign {
		active, err := c.participants.ListActiveBySession(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("list active participants: %w", err)
		}
		i := 0
		for _, p := range active {
			if p.Role == models.RoleHost {
				continue
			}
			// Round-robin, skipping rooms that hit capacity.
			placed := false
			for tries := 0; tries < len(cfg.Rooms); tries++ {
				room := &cfg.Rooms[i%len(cfg.Rooms)]
				i++
				if room.Full() {
					continue
				}
				room.ParticipantIDs = append(room.ParticipantIDs, p.UserID)
				p.BreakoutRoomID = &room.ID
				assigned = append(assigned, p)
				placed = true
				break
			}
			if !placed {
				c.logger.Warn("no breakout room capacity for participant",
					zap.String("session_id", sessionID.String()),
					zap.String("user_id", p.UserID.String()))
			}
		}
	}

	p, err := c.providers.For(s.Provider)
	if err != nil {
		return nil, apperr.Provider(err, "resolve provider")
	}
	if err := p.CreateBreakoutRooms(ctx, s.ExternalRoomID, cfg.Rooms); err != nil {
		return nil, apperr.Provider(err, "create breakout rooms")
	}

	if err := c.sessions.UpdateBreakout(ctx, sessionID, cfg); err != nil {
		return nil, fmt.Errorf("persist breakout config: %w", err)
	}
	for _, p := range assigned {
		if err := c.participants.SetBreakoutRoom(ctx, sessionID, p.UserID, p.BreakoutRoomID); err != nil {
			c.logger.Warn("set participant breakout room failed", zap.Error(err),
				zap.String("user_id", p.UserID.String()))
		}
	}

	c.notifier.Broadcast(s.ExternalRoomID, "breakouts_opened", cfg)
	c.logger.Info("breakout rooms opened",
		zap.String("session_id", sessionID.String()),
		zap.Int("rooms", len(cfg.Rooms)),
		zap.Int("auto_assigned", len(assigned)))
	return &cfg, nil
}

// Assign moves a participant into a breakout room, removing them from any
// other room first so a user is never in two rooms.
func (c *Coordinator) Assign(ctx context.Context, actorID, sessionID, userID uuid.UUID, roomID string) (*models.BreakoutConfig, error) {
	s, err := c.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !c.canManage(ctx, s, actorID) {
		return nil, apperr.Forbidden("only the host or a co-host can assign breakout rooms")
	}
	if s.Status != models.SessionLive || !s.Breakout.Enabled {
		return nil, apperr.InvalidState("no open breakout rooms for this session")
	}

	cfg := s.Breakout
	target := cfg.RoomByID(roomID)
	if target == nil {
		return nil, apperr.NotFound("breakout room %s not found", roomID)
	}
	if target.Contains(userID) {
		return &cfg, nil
	}
	if target.Full() {
		return nil, apperr.CapacityExceeded("breakout room %q is full", target.Name)
	}

	p, err := c.participants.GetBySessionAndUser(ctx, sessionID, userID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apperr.NotFound("participant %s not found in session", userID)
		}
		return nil, fmt.Errorf("load participant: %w", err)
	}
	if !p.Status.Active() {
		return nil, apperr.InvalidState("participant is not connected")
	}

	removeFromRooms(&cfg, userID)
	target = cfg.RoomByID(roomID) // re-resolve after mutation
	target.ParticipantIDs = append(target.ParticipantIDs, userID)

	if err := c.sessions.UpdateBreakout(ctx, sessionID, cfg); err != nil {
		return nil, fmt.Errorf("persist breakout config: %w", err)
	}
	if err := c.participants.SetBreakoutRoom(ctx, sessionID, userID, &target.ID); err != nil {
		c.logger.Warn("set participant breakout room failed", zap.Error(err))
	}

	c.notifier.Broadcast(s.ExternalRoomID, "breakout_assigned", map[string]string{
		"user_id": userID.String(),
		"room_id": roomID,
	})
	return &cfg, nil
}

// Remove pulls a participant out of whatever breakout room they are in and
// returns them to the main room.
func (c *Coordinator) Remove(ctx context.Context, actorID, sessionID, userID uuid.UUID) (*models.BreakoutConfig, error) {
	s, err := c.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !c.canManage(ctx, s, actorID) {
		return nil, apperr.Forbidden("only the host or a co-host can reassign breakout rooms")
	}
	if !s.Breakout.Enabled {
		return nil, apperr.InvalidState("no open breakout rooms for this session")
	}

	cfg := s.Breakout
	if !removeFromRooms(&cfg, userID) {
		return &cfg, nil
	}
	if err := c.sessions.UpdateBreakout(ctx, sessionID, cfg); err != nil {
		return nil, fmt.Errorf("persist breakout config: %w", err)
	}
	if err := c.participants.SetBreakoutRoom(ctx, sessionID, userID, nil); err != nil {
		c.logger.Warn("clear participant breakout room failed", zap.Error(err))
	}
	c.notifier.Broadcast(s.ExternalRoomID, "breakout_removed", map[string]string{
		"user_id": userID.String(),
	})
	return &cfg, nil
}

// Close tears down all breakout rooms and returns everyone to the main room.
// Closing when nothing is open is a no-op.
func (c *Coordinator) Close(ctx context.Context, actorID, sessionID uuid.UUID) error {
	s, err := c.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !c.canManage(ctx, s, actorID) {
		return apperr.Forbidden("only the host or a co-host can close breakout rooms")
	}
	if !s.Breakout.Enabled {
		return nil
	}

	if err := c.sessions.UpdateBreakout(ctx, sessionID, models.BreakoutConfig{}); err != nil {
		return fmt.Errorf("persist breakout config: %w", err)
	}
	if err := c.participants.ClearBreakoutRooms(ctx, sessionID); err != nil {
		c.logger.Warn("clear breakout rooms failed", zap.Error(err),
			zap.String("session_id", sessionID.String()))
	}

	p, err := c.providers.For(s.Provider)
	if err != nil {
		return apperr.Provider(err, "resolve provider")
	}
	if err := p.CloseBreakoutRooms(ctx, s.ExternalRoomID); err != nil {
		// Local state is already clean; provider teardown failure is logged.
		c.logger.Warn("provider breakout teardown failed", zap.Error(err),
			zap.String("session_id", sessionID.String()))
	}

	c.notifier.Broadcast(s.ExternalRoomID, "breakouts_closed", map[string]string{
		"session_id": sessionID.String(),
	})
	c.logger.Info("breakout rooms closed", zap.String("session_id", sessionID.String()))
	return nil
}

// CloseForEnd clears breakout state as part of session end. Skips the
// permission check; the orchestrator already verified the actor.
func (c *Coordinator) CloseForEnd(ctx context.Context, s *models.Session) {
	if !s.Breakout.Enabled {
		return
	}
	if err := c.sessions.UpdateBreakout(ctx, s.ID, models.BreakoutConfig{}); err != nil {
		c.logger.Warn("clear breakout config on end failed", zap.Error(err))
	}
	if err := c.participants.ClearBreakoutRooms(ctx, s.ID); err != nil {
		c.logger.Warn("clear breakout rooms on end failed", zap.Error(err))
	}
}

// removeFromRooms strips userID from every room list. Reports whether the
// user was assigned anywhere.
func removeFromRooms(cfg *models.BreakoutConfig, userID uuid.UUID) bool {
	removed := false
	for i := range cfg.Rooms {
		ids := cfg.Rooms[i].ParticipantIDs
		for j, id := range ids {
			if id == userID {
				cfg.Rooms[i].ParticipantIDs = append(ids[:j], ids[j+1:]...)
				removed = true
				break
			}
		}
	}
	return removed
}
