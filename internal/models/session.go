package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the session lifecycle state.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionLive      SessionStatus = "live"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// SessionKind is the flavor of a live session.
type SessionKind string

const (
	KindMeeting     SessionKind = "meeting"
	KindWebinar     SessionKind = "webinar"
	KindOfficeHours SessionKind = "office_hours"
	KindLecture     SessionKind = "lecture"
)

// ProviderKind selects the meeting backend for a session.
type ProviderKind string

const (
	ProviderManaged    ProviderKind = "managed"
	ProviderSelfHosted ProviderKind = "self_hosted"
)

// SessionSettings are the feature toggles a host controls per session.
type SessionSettings struct {
	MuteOnEntry         bool `json:"mute_on_entry"`
	WaitingRoomEnabled  bool `json:"waiting_room_enabled"`
	ChatEnabled         bool `json:"chat_enabled"`
	ScreenShareEnabled  bool `json:"screen_share_enabled"`
	BreakoutEnabled     bool `json:"breakout_enabled"`
	RecordingAllowed    bool `json:"recording_allowed"`
	RequireRegistration bool `json:"require_registration"`
}

// DefaultSessionSettings returns the settings applied when a create request omits them.
func DefaultSessionSettings() SessionSettings {
	return SessionSettings{
		ChatEnabled:        true,
		ScreenShareEnabled: true,
		RecordingAllowed:   true,
	}
}

// SecuritySettings controls who can enter a session. PasscodeHash is a bcrypt
// hash of the join passcode; the plaintext is only returned once at creation.
type SecuritySettings struct {
	PasscodeRequired bool   `json:"passcode_required"`
	PasscodeHash     string `json:"-"`
	LockOnStart      bool   `json:"lock_on_start"`
}

// BreakoutRoom is one named sub-grouping of a session's participants.
type BreakoutRoom struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	ParticipantIDs []uuid.UUID `json:"participant_ids"`
	Capacity       int         `json:"capacity,omitempty"` // 0 = unlimited
}

// Contains reports whether userID is assigned to this room.
func (r BreakoutRoom) Contains(userID uuid.UUID) bool {
	for _, id := range r.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Full reports whether the room has a capacity and has reached it.
func (r BreakoutRoom) Full() bool {
	return r.Capacity > 0 && len(r.ParticipantIDs) >= r.Capacity
}

// BreakoutConfig is the breakout-room configuration embedded on a session.
// A participant id appears in at most one room's list; writers replace the
// whole config rather than mutating a single room.
type BreakoutConfig struct {
	Enabled    bool           `json:"enabled"`
	AutoAssign bool           `json:"auto_assign"`
	Rooms      []BreakoutRoom `json:"rooms"`
}

// RoomByID returns the room with the given id, or nil.
func (c *BreakoutConfig) RoomByID(roomID string) *BreakoutRoom {
	for i := range c.Rooms {
		if c.Rooms[i].ID == roomID {
			return &c.Rooms[i]
		}
	}
	return nil
}

// Session represents one scheduled or live meeting. Rows are never hard-deleted;
// completed and cancelled sessions are retained for analytics and history.
type Session struct {
	ID          uuid.UUID     `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	HostID      uuid.UUID     `json:"host_id"`
	CourseID    *uuid.UUID    `json:"course_id,omitempty"`
	LessonID    *uuid.UUID    `json:"lesson_id,omitempty"`
	Kind        SessionKind   `json:"kind"`
	Provider    ProviderKind  `json:"provider"`
	Status      SessionStatus `json:"status"`

	ScheduledStart time.Time  `json:"scheduled_start"`
	ScheduledEnd   time.Time  `json:"scheduled_end"`
	ActualStart    *time.Time `json:"actual_start,omitempty"`
	ActualEnd      *time.Time `json:"actual_end,omitempty"`

	Capacity            int `json:"capacity"` // 0 = unlimited
	CurrentParticipants int `json:"current_participants"`
	TotalParticipants   int `json:"total_participants"`

	ExternalRoomID string `json:"external_room_id,omitempty"`
	JoinURL        string `json:"join_url,omitempty"`
	Passcode       string `json:"passcode,omitempty"` // plaintext only on create response

	Settings SessionSettings  `json:"settings"`
	Security SecuritySettings `json:"security"`
	Breakout BreakoutConfig   `json:"breakout"`

	RecordingEnabled  bool   `json:"recording_enabled"`
	RecordingActive   bool   `json:"recording_active"`
	RecordingURL      string `json:"recording_url,omitempty"`
	RecordingDuration int    `json:"recording_duration,omitempty"` // seconds
	RecordingSize     int64  `json:"recording_size,omitempty"`     // bytes

	Analytics      json.RawMessage `json:"analytics,omitempty"`
	QualityMetrics json.RawMessage `json:"quality_metrics,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanTransition reports whether the status change from -> to is legal.
// Cancellation is terminal; there is no reopen path.
func CanTransition(from, to SessionStatus) bool {
	switch from {
	case SessionScheduled:
		return to == SessionLive || to == SessionCancelled
	case SessionLive:
		return to == SessionCompleted
	default:
		return false
	}
}
