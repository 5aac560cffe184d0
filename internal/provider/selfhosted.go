package provider

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campuslive/backend/internal/auth"
	"github.com/campuslive/backend/internal/models"
	"github.com/campuslive/backend/internal/realtime"
	"github.com/campuslive/backend/internal/recorder"
)

// breakoutRoomID derives the signaling room ID of a breakout sub-room.
func breakoutRoomID(externalRoomID, breakoutID string) string {
	return externalRoomID + "#" + breakoutID
}

// SelfHosted runs sessions on the in-process SFU. Rooms are signaling room IDs
// on the hub; breakout rooms are logical sub-rooms sharing the same machinery.
type SelfHosted struct {
	hub      *realtime.Hub
	sfu      *realtime.SFU
	recorder *recorder.Service
	tokens   *auth.JWTService
	baseURL  string
	iceURLs  []string
	logger   *zap.Logger

	mu        sync.Mutex
	breakouts map[string][]string // externalRoomID -> open breakout IDs
	ended     map[string]bool
}

// NewSelfHosted creates the self-hosted provider adapter.
func NewSelfHosted(hub *realtime.Hub, sfu *realtime.SFU, rec *recorder.Service, tokens *auth.JWTService, baseURL string, iceURLs []string, logger *zap.Logger) *SelfHosted {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SelfHosted{
		hub:       hub,
		sfu:       sfu,
		recorder:  rec,
		tokens:    tokens,
		baseURL:   strings.TrimRight(baseURL, "/"),
		iceURLs:   iceURLs,
		logger:    logger,
		breakouts: make(map[string][]string),
		ended:     make(map[string]bool),
	}
}

// Kind returns the provider enum value this adapter serves.
func (s *SelfHosted) Kind() models.ProviderKind { return models.ProviderSelfHosted }

// CreateRoom allocates a room ID. SFU rooms materialize lazily when the first
// client connects, so there is nothing to provision here.
func (s *SelfHosted) CreateRoom(ctx context.Context, sess *models.Session) (*Room, error) {
	roomID := uuid.New().String()
	return &Room{
		ExternalID: roomID,
		JoinURL:    s.baseURL + "/join/" + roomID,
	}, nil
}

// StartRoom is a no-op: a self-hosted room accepts connections as soon as the
// orchestrator marks the session live.
func (s *SelfHosted) StartRoom(ctx context.Context, externalRoomID string) error {
	s.mu.Lock()
	delete(s.ended, externalRoomID)
	s.mu.Unlock()
	return nil
}

// EndRoom disconnects everyone and tears down the SFU room plus any open
// breakout sub-rooms.
func (s *SelfHosted) EndRoom(ctx context.Context, externalRoomID string) error {
	s.mu.Lock()
	if s.ended[externalRoomID] {
		s.mu.Unlock()
		return ErrAlreadyEnded
	}
	s.ended[externalRoomID] = true
	open := s.breakouts[externalRoomID]
	delete(s.breakouts, externalRoomID)
	s.mu.Unlock()

	s.hub.BroadcastToRoomAndPublish(externalRoomID, "session_ended", map[string]string{"room_id": externalRoomID})
	for _, id := range open {
		s.sfu.CloseRoom(breakoutRoomID(externalRoomID, id))
	}
	s.sfu.CloseRoom(externalRoomID)
	return nil
}

// UpdateSettings pushes the new toggles to connected clients.
func (s *SelfHosted) UpdateSettings(ctx context.Context, externalRoomID string, settings models.SessionSettings) error {
	s.hub.BroadcastToRoomAndPublish(externalRoomID, "settings_updated", settings)
	return nil
}

// GetConnectionInfo mints a signaling token and points the client at the
// websocket endpoint for its room.
func (s *SelfHosted) GetConnectionInfo(ctx context.Context, sess *models.Session, join JoinSpec) (*ConnectionInfo, error) {
	token, err := s.tokens.Generate(join.UserID, "", string(join.Role))
	if err != nil {
		return nil, fmt.Errorf("generate signaling token: %w", err)
	}
	wsURL := strings.Replace(s.baseURL, "http", "ws", 1) + "/ws?room=" + sess.ExternalRoomID
	return &ConnectionInfo{
		Provider:     models.ProviderSelfHosted,
		RoomID:       sess.ExternalRoomID,
		JoinURL:      sess.JoinURL,
		Token:        token,
		WebSocketURL: wsURL,
		ICEServers:   s.iceURLs,
		ExpiresAt:    time.Now().Add(24 * time.Hour),
	}, nil
}

// CreateBreakoutRooms registers breakout sub-rooms and tells clients to move.
// Sub-rooms materialize on the hub when the first client connects.
func (s *SelfHosted) CreateBreakoutRooms(ctx context.Context, externalRoomID string, rooms []models.BreakoutRoom) error {
	ids := make([]string, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.ID)
	}
	s.mu.Lock()
	s.breakouts[externalRoomID] = ids
	s.mu.Unlock()

	s.hub.BroadcastToRoomAndPublish(externalRoomID, "breakouts_opened", rooms)
	return nil
}

// CloseBreakoutRooms tears down all breakout sub-rooms and calls clients back
// to the main room.
func (s *SelfHosted) CloseBreakoutRooms(ctx context.Context, externalRoomID string) error {
	s.mu.Lock()
	open := s.breakouts[externalRoomID]
	delete(s.breakouts, externalRoomID)
	s.mu.Unlock()

	for _, id := range open {
		sub := breakoutRoomID(externalRoomID, id)
		s.hub.BroadcastToRoomAndPublish(sub, "breakouts_closed", map[string]string{"return_to": externalRoomID})
		s.sfu.CloseRoom(sub)
	}
	s.hub.BroadcastToRoomAndPublish(externalRoomID, "breakouts_closed", map[string]string{"return_to": externalRoomID})
	return nil
}

// StartRecording starts an ffmpeg capture of the room's publisher stream.
func (s *SelfHosted) StartRecording(ctx context.Context, externalRoomID string) (string, error) {
	recordingID := uuid.New().String()
	if _, err := s.recorder.StartRecording(ctx, externalRoomID, recordingID); err != nil {
		return "", err
	}
	s.hub.BroadcastToRoomAndPublish(externalRoomID, "recording_started", map[string]string{"recording_id": recordingID})
	return recordingID, nil
}

// StopRecording stops the capture. No active capture is benign.
func (s *SelfHosted) StopRecording(ctx context.Context, externalRoomID string) error {
	if !s.recorder.HasActiveRecording(externalRoomID) {
		return ErrAlreadyEnded
	}
	if _, err := s.recorder.StopRecording(externalRoomID); err != nil {
		return err
	}
	s.hub.BroadcastToRoomAndPublish(externalRoomID, "recording_stopped", nil)
	return nil
}

// ListRecordings scans the recorder output directory for finished captures.
// File names are "<recording_id>.mp4" as written by the recorder.
func (s *SelfHosted) ListRecordings(ctx context.Context, externalRoomID string) ([]RecordingFile, error) {
	dir := s.recorder.OutputDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read output dir: %w", err)
	}
	var files []RecordingFile
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".mp4" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".mp4")
		files = append(files, RecordingFile{
			ID:       id,
			URL:      filepath.Join(dir, e.Name()),
			Size:     info.Size(),
			MimeType: mime.TypeByExtension(".mp4"),
		})
	}
	return files, nil
}

// DownloadRecording opens the capture file from local disk.
func (s *SelfHosted) DownloadRecording(ctx context.Context, file RecordingFile) (io.ReadCloser, int64, string, error) {
	f, err := os.Open(file.URL)
	if err != nil {
		return nil, 0, "", fmt.Errorf("open recording: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, "", fmt.Errorf("stat recording: %w", err)
	}
	return f, info.Size(), "video/mp4", nil
}

var _ Provider = (*SelfHosted)(nil)
