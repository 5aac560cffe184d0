package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ZEGOCLOUD/zego_server_assistant/token/go/src/token04"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/campuslive/backend/config"
	"github.com/campuslive/backend/internal/models"
)

const (
	managedTokenValidSec = 3600 * 4 // client join tokens live for 4 hours
	serverTokenValidity  = 2 * time.Minute
)

// Managed talks to the managed meeting provider's REST API. Room lifecycle,
// breakout rooms and cloud recording are native; clients join through the
// provider SDK with a token04 token minted here.
type Managed struct {
	cfg    config.ProviderConfig
	client *http.Client
	logger *zap.Logger
}

// NewManaged creates the managed provider adapter.
func NewManaged(cfg config.ProviderConfig, logger *zap.Logger) *Managed {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := time.Duration(cfg.CallTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Managed{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Kind returns the provider enum value this adapter serves.
func (m *Managed) Kind() models.ProviderKind { return models.ProviderManaged }

// serverToken signs a short-lived server-to-server JWT for API calls.
func (m *Managed) serverToken() (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    m.cfg.APIKey,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(serverTokenValidity)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.cfg.APISecret))
}

func (m *Managed) do(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, m.cfg.APIBaseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	token, err := m.serverToken()
	if err != nil {
		return 0, fmt.Errorf("sign server token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

type managedRoomRequest struct {
	Name             string `json:"name"`
	SessionID        string `json:"session_id"`
	MaxParticipants  int    `json:"max_participants,omitempty"`
	MuteOnEntry      bool   `json:"mute_on_entry"`
	WaitingRoom      bool   `json:"waiting_room"`
	RecordingAllowed bool   `json:"recording_allowed"`
}

type managedRoomResponse struct {
	RoomID   string `json:"room_id"`
	JoinURL  string `json:"join_url"`
	Passcode string `json:"passcode"`
}

// CreateRoom provisions a provider-side room for the session.
func (m *Managed) CreateRoom(ctx context.Context, s *models.Session) (*Room, error) {
	req := managedRoomRequest{
		Name:             s.Title,
		SessionID:        s.ID.String(),
		MaxParticipants:  s.Capacity,
		MuteOnEntry:      s.Settings.MuteOnEntry,
		WaitingRoom:      s.Settings.WaitingRoomEnabled,
		RecordingAllowed: s.Settings.RecordingAllowed,
	}
	var out managedRoomResponse
	if _, err := m.do(ctx, http.MethodPost, "/v1/rooms", req, &out); err != nil {
		return nil, err
	}
	return &Room{ExternalID: out.RoomID, JoinURL: out.JoinURL, Passcode: out.Passcode}, nil
}

// StartRoom opens the room for participants.
func (m *Managed) StartRoom(ctx context.Context, externalRoomID string) error {
	_, err := m.do(ctx, http.MethodPost, "/v1/rooms/"+externalRoomID+"/start", nil, nil)
	return err
}

// EndRoom closes the room. A 404/410 means the provider already tore it down.
func (m *Managed) EndRoom(ctx context.Context, externalRoomID string) error {
	status, err := m.do(ctx, http.MethodPost, "/v1/rooms/"+externalRoomID+"/end", nil, nil)
	if status == http.StatusNotFound || status == http.StatusGone {
		return ErrAlreadyEnded
	}
	return err
}

// UpdateSettings pushes feature toggles to the provider room.
func (m *Managed) UpdateSettings(ctx context.Context, externalRoomID string, settings models.SessionSettings) error {
	body := map[string]bool{
		"mute_on_entry":     settings.MuteOnEntry,
		"waiting_room":      settings.WaitingRoomEnabled,
		"chat_enabled":      settings.ChatEnabled,
		"screen_share":      settings.ScreenShareEnabled,
		"recording_allowed": settings.RecordingAllowed,
	}
	_, err := m.do(ctx, http.MethodPatch, "/v1/rooms/"+externalRoomID+"/settings", body, nil)
	return err
}

// rtcRoomPayload is the token04 payload for room-scoped privileges.
type rtcRoomPayload struct {
	RoomID       string      `json:"RoomId"`
	Privilege    map[int]int `json:"Privilege"`
	StreamIDList []string    `json:"StreamIdList,omitempty"`
}

func canPublish(role models.ParticipantRole) bool {
	switch role {
	case models.RoleHost, models.RoleCoHost, models.RolePresenter:
		return true
	default:
		return false
	}
}

// GetConnectionInfo mints a token04 join token for the provider SDK.
func (m *Managed) GetConnectionInfo(ctx context.Context, s *models.Session, join JoinSpec) (*ConnectionInfo, error) {
	if m.cfg.AppID == 0 || m.cfg.ServerSecret == "" {
		return nil, fmt.Errorf("managed provider not configured (app id / server secret)")
	}
	if len(m.cfg.ServerSecret) != 32 {
		return nil, fmt.Errorf("server secret must be 32 characters")
	}
	privilege := map[int]int{
		token04.PrivilegeKeyLogin:   token04.PrivilegeEnable,
		token04.PrivilegeKeyPublish: token04.PrivilegeDisable,
	}
	if canPublish(join.Role) {
		privilege[token04.PrivilegeKeyPublish] = token04.PrivilegeEnable
	}
	payload, err := json.Marshal(rtcRoomPayload{RoomID: s.ExternalRoomID, Privilege: privilege})
	if err != nil {
		return nil, fmt.Errorf("marshal token payload: %w", err)
	}
	token, err := token04.GenerateToken04(m.cfg.AppID, join.UserID.String(), m.cfg.ServerSecret, managedTokenValidSec, string(payload))
	if err != nil {
		return nil, fmt.Errorf("generate join token: %w", err)
	}
	return &ConnectionInfo{
		Provider:  models.ProviderManaged,
		RoomID:    s.ExternalRoomID,
		JoinURL:   s.JoinURL,
		Token:     token,
		AppID:     m.cfg.AppID,
		ExpiresAt: time.Now().Add(managedTokenValidSec * time.Second),
	}, nil
}

type managedBreakoutRequest struct {
	Rooms []managedBreakoutRoom `json:"rooms"`
}

type managedBreakoutRoom struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity,omitempty"`
}

// CreateBreakoutRooms creates native breakout rooms on the provider side.
func (m *Managed) CreateBreakoutRooms(ctx context.Context, externalRoomID string, rooms []models.BreakoutRoom) error {
	req := managedBreakoutRequest{Rooms: make([]managedBreakoutRoom, 0, len(rooms))}
	for _, r := range rooms {
		req.Rooms = append(req.Rooms, managedBreakoutRoom{ID: r.ID, Name: r.Name, Capacity: r.Capacity})
	}
	_, err := m.do(ctx, http.MethodPost, "/v1/rooms/"+externalRoomID+"/breakouts", req, nil)
	return err
}

// CloseBreakoutRooms tears down all native breakout rooms.
func (m *Managed) CloseBreakoutRooms(ctx context.Context, externalRoomID string) error {
	_, err := m.do(ctx, http.MethodDelete, "/v1/rooms/"+externalRoomID+"/breakouts", nil, nil)
	return err
}

// StartRecording starts provider cloud recording.
func (m *Managed) StartRecording(ctx context.Context, externalRoomID string) (string, error) {
	var out struct {
		RecordingID string `json:"recording_id"`
	}
	if _, err := m.do(ctx, http.MethodPost, "/v1/rooms/"+externalRoomID+"/recording/start", nil, &out); err != nil {
		return "", err
	}
	return out.RecordingID, nil
}

// StopRecording stops provider cloud recording. Already-stopped is benign.
func (m *Managed) StopRecording(ctx context.Context, externalRoomID string) error {
	status, err := m.do(ctx, http.MethodPost, "/v1/rooms/"+externalRoomID+"/recording/stop", nil, nil)
	if status == http.StatusNotFound || status == http.StatusConflict {
		return ErrAlreadyEnded
	}
	return err
}

type managedRecordingList struct {
	Recordings []struct {
		ID       string `json:"id"`
		URL      string `json:"url"`
		Duration int    `json:"duration"`
		Size     int64  `json:"size"`
		MimeType string `json:"mime_type"`
	} `json:"recordings"`
}

// ListRecordings fetches the recording artifacts for a room.
func (m *Managed) ListRecordings(ctx context.Context, externalRoomID string) ([]RecordingFile, error) {
	var out managedRecordingList
	if _, err := m.do(ctx, http.MethodGet, "/v1/rooms/"+externalRoomID+"/recordings", nil, &out); err != nil {
		return nil, err
	}
	files := make([]RecordingFile, 0, len(out.Recordings))
	for _, r := range out.Recordings {
		mt := r.MimeType
		if mt == "" {
			mt = "video/mp4"
		}
		files = append(files, RecordingFile{ID: r.ID, URL: r.URL, Duration: r.Duration, Size: r.Size, MimeType: mt})
	}
	return files, nil
}

// DownloadRecording streams one artifact from the provider URL.
func (m *Managed) DownloadRecording(ctx context.Context, file RecordingFile) (io.ReadCloser, int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.URL, nil)
	if err != nil {
		return nil, 0, "", fmt.Errorf("create request: %w", err)
	}
	// Downloads can exceed the API call timeout; use the default client.
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, "", fmt.Errorf("download: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, "", fmt.Errorf("download status: %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = file.MimeType
	}
	return resp.Body, resp.ContentLength, contentType, nil
}

var _ Provider = (*Managed)(nil)
