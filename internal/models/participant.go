package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ParticipantRole is the role a user holds within one session.
type ParticipantRole string

const (
	RoleHost      ParticipantRole = "host"
	RoleCoHost    ParticipantRole = "co_host"
	RolePresenter ParticipantRole = "presenter"
	RoleModerator ParticipantRole = "moderator"
	RoleAttendee  ParticipantRole = "attendee"
)

// ParticipantStatus is the connection state of a participant.
type ParticipantStatus string

const (
	ParticipantConnecting   ParticipantStatus = "connecting"
	ParticipantConnected    ParticipantStatus = "connected"
	ParticipantDisconnected ParticipantStatus = "disconnected"
)

// Active reports whether the participant counts toward the live head count.
func (s ParticipantStatus) Active() bool {
	return s == ParticipantConnecting || s == ParticipantConnected
}

// ParticipantPermissions are per-participant capability flags within a session.
type ParticipantPermissions struct {
	CanShareScreen bool `json:"can_share_screen"`
	CanUnmuteSelf  bool `json:"can_unmute_self"`
	CanChat        bool `json:"can_chat"`
	CanAnnotate    bool `json:"can_annotate"`
}

// Participant is one user's membership record within one session. At most one
// active row exists per (session, user); re-joins reuse and update the row.
type Participant struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`

	Role   ParticipantRole   `json:"role"`
	Status ParticipantStatus `json:"status"`

	JoinedAt *time.Time `json:"joined_at,omitempty"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
	// Duration is accumulated connected seconds across re-joins; derived from
	// joined/left timestamps, never accepted as input.
	Duration int `json:"duration"`

	DeviceInfo         json.RawMessage        `json:"device_info,omitempty"`
	QualitySamples     json.RawMessage        `json:"quality_samples,omitempty"`
	EngagementCounters json.RawMessage        `json:"engagement_counters,omitempty"`
	Permissions        ParticipantPermissions `json:"permissions"`

	BreakoutRoomID *string `json:"breakout_room_id,omitempty"`
	InWaitingRoom  bool    `json:"in_waiting_room"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
