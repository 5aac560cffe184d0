package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// OccupancyChangeHandler is called when the connection count for a room
// changes (e.g. for attendance sampling).
type OccupancyChangeHandler func(roomID string, count int)

// ConnectHandler is called when a user's websocket attaches to a room, i.e.
// their signaling handshake completed.
type ConnectHandler func(roomID string, userID uuid.UUID)

// Hub maintains room_id -> set of connections and broadcasts messages.
// Room IDs are strings so breakout sub-rooms ("<session>#<breakout>") share
// the same machinery as main session rooms. Uses Redis pub/sub for
// horizontal scaling: local broadcast + publish to Redis.
type Hub struct {
	// roomID -> map[clientID]*Client
	rooms       map[string]map[string]*Client
	subs        map[string]func() // cancel Redis subscription per room
	mu          sync.RWMutex
	logger      *zap.Logger
	redis       RedisPublisher
	redisSub    RedisSubscriber
	onOccupancy OccupancyChangeHandler
	onConnect   ConnectHandler
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishRoomEvent(roomID string, event string, payload []byte) error
}

// RedisSubscriber subscribes to room channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeRoom(roomID string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		rooms:    make(map[string]map[string]*Client),
		subs:     make(map[string]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// SetOccupancyChangeHandler sets the callback for room connection count changes.
func (h *Hub) SetOccupancyChangeHandler(fn OccupancyChangeHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onOccupancy = fn
}

// SetConnectHandler sets the callback fired when a client attaches to a room.
func (h *Hub) SetConnectHandler(fn ConnectHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onConnect = fn
}

// Register adds a client to a room. Starts Redis subscription for this room if first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.RoomID] == nil {
		h.rooms[c.RoomID] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeRoom(c.RoomID, func(event string, payload []byte) {
				h.BroadcastToRoom(c.RoomID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.RoomID] = cancel
			}
		}
	}
	h.rooms[c.RoomID][c.ID] = c
	count := len(h.rooms[c.RoomID])
	onOccupancy := h.onOccupancy
	onConnect := h.onConnect
	h.mu.Unlock()
	if onOccupancy != nil {
		onOccupancy(c.RoomID, count)
	}
	if onConnect != nil {
		onConnect(c.RoomID, c.UserID)
	}
	h.logger.Debug("client joined room", zap.String("client_id", c.ID), zap.String("room_id", c.RoomID))
}

// Unregister removes a client from a room. Cancels Redis subscription when last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	var count int
	if m, ok := h.rooms[c.RoomID]; ok {
		delete(m, c.ID)
		count = len(m)
		if count == 0 {
			delete(h.rooms, c.RoomID)
			if cancel, ok := h.subs[c.RoomID]; ok {
				cancel()
				delete(h.subs, c.RoomID)
			}
		}
	}
	onOccupancy := h.onOccupancy
	h.mu.Unlock()
	if onOccupancy != nil && count > 0 {
		onOccupancy(c.RoomID, count)
	}
	h.logger.Debug("client left room", zap.String("client_id", c.ID), zap.String("room_id", c.RoomID))
}

// BroadcastToRoom sends a message to all clients in a room (local only).
func (h *Hub) BroadcastToRoom(roomID string, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := h.rooms[roomID]
	h.mu.RUnlock()

	if clients == nil {
		return
	}
	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// BroadcastToRoomAndPublish sends to local clients and publishes to Redis for other instances.
func (h *Hub) BroadcastToRoomAndPublish(roomID string, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.BroadcastToRoom(roomID, event, payload)
	if h.redis != nil {
		_ = h.redis.PublishRoomEvent(roomID, event, data)
	}
}

// PublishToRoomOnly publishes to Redis only (no local broadcast). Used for events
// like chat_message so that the Redis subscriber callback performs the broadcast
// once for all instances (including this one), avoiding duplicate delivery to
// local clients.
func (h *Hub) PublishToRoomOnly(roomID string, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if h.redis != nil {
		_ = h.redis.PublishRoomEvent(roomID, event, data)
		return
	}
	h.BroadcastToRoom(roomID, event, payload)
}

// OccupancyCount returns the number of connected clients in a room.
func (h *Hub) OccupancyCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// SendToClient sends a message to a single client in a room (for WebRTC signaling).
func (h *Hub) SendToClient(roomID string, clientID string, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg := WSMessage{Event: event, Data: data}
	h.mu.RLock()
	clients := h.rooms[roomID]
	c, ok := clients[clientID]
	h.mu.RUnlock()
	if !ok || c == nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
