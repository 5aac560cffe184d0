// Package provider abstracts the external meeting backends a session can run
// on. The orchestrator and coordinators depend only on the Provider interface;
// adding a backend means adding one adapter.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/campuslive/backend/internal/models"
)

// ErrAlreadyEnded is returned by EndRoom/StopRecording when the provider has
// already torn the room down out-of-band. Callers treat it as benign.
var ErrAlreadyEnded = errors.New("provider: room already ended")

// Room is the provider-side room created for a session.
type Room struct {
	ExternalID string
	JoinURL    string
	Passcode   string
}

// JoinSpec identifies the user requesting connection info.
type JoinSpec struct {
	UserID      uuid.UUID
	DisplayName string
	Role        models.ParticipantRole
}

// ConnectionInfo is what a client needs to attach to the provider's media
// plane. Managed sessions carry an SDK token; self-hosted sessions carry a
// websocket URL and ICE servers.
type ConnectionInfo struct {
	Provider     models.ProviderKind `json:"provider"`
	RoomID       string              `json:"room_id"`
	JoinURL      string              `json:"join_url,omitempty"`
	Token        string              `json:"token,omitempty"`
	AppID        uint32              `json:"app_id,omitempty"`
	WebSocketURL string              `json:"websocket_url,omitempty"`
	ICEServers   []string            `json:"ice_servers,omitempty"`
	ExpiresAt    time.Time           `json:"expires_at"`
}

// RecordingFile is one recording artifact reported by a provider.
type RecordingFile struct {
	ID       string
	URL      string
	Duration int // seconds
	Size     int64
	MimeType string
}

// Provider is the uniform capability surface over a meeting backend.
type Provider interface {
	Kind() models.ProviderKind

	CreateRoom(ctx context.Context, s *models.Session) (*Room, error)
	StartRoom(ctx context.Context, externalRoomID string) error
	EndRoom(ctx context.Context, externalRoomID string) error
	UpdateSettings(ctx context.Context, externalRoomID string, settings models.SessionSettings) error
	GetConnectionInfo(ctx context.Context, s *models.Session, join JoinSpec) (*ConnectionInfo, error)

	CreateBreakoutRooms(ctx context.Context, externalRoomID string, rooms []models.BreakoutRoom) error
	CloseBreakoutRooms(ctx context.Context, externalRoomID string) error

	StartRecording(ctx context.Context, externalRoomID string) (providerRecordingID string, err error)
	StopRecording(ctx context.Context, externalRoomID string) error
	ListRecordings(ctx context.Context, externalRoomID string) ([]RecordingFile, error)
	// DownloadRecording returns the artifact body, its size (-1 if unknown)
	// and content type. The caller closes the body.
	DownloadRecording(ctx context.Context, file RecordingFile) (io.ReadCloser, int64, string, error)
}

// Registry selects the adapter for a session's provider field.
type Registry struct {
	providers map[models.ProviderKind]Provider
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(providers ...Provider) *Registry {
	m := make(map[models.ProviderKind]Provider, len(providers))
	for _, p := range providers {
		m[p.Kind()] = p
	}
	return &Registry{providers: m}
}

// Kinds lists the provider kinds with a registered adapter.
func (r *Registry) Kinds() []models.ProviderKind {
	kinds := make([]models.ProviderKind, 0, len(r.providers))
	for k := range r.providers {
		kinds = append(kinds, k)
	}
	return kinds
}

// For returns the adapter for the given provider kind.
func (r *Registry) For(kind models.ProviderKind) (Provider, error) {
	p, ok := r.providers[kind]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", kind)
	}
	return p, nil
}
