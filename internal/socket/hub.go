// internal/socket/hub.go
package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Account request messages
	MessageAccountRequestSubmitted MessageType = "account_request_submitted"
	MessageAccountRequestApproved  MessageType = "account_request_approved"
	MessageAccountRequestRejected  MessageType = "account_request_rejected"

	// System messages
	MessagePing MessageType = "ping"
	MessagePong MessageType = "pong"
	MessageAck  MessageType = "ack"
)

// RoomAccountRequests is joined by every admin connection on connect.
const RoomAccountRequests = "account_requests"

// Message represents a WebSocket message
type Message struct {
	Type      MessageType            `json:"type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Client represents a connected WebSocket client
type Client struct {
	ID       string
	UserID   string
	Conn     *websocket.Conn
	Hub      *Hub
	Send     chan []byte
	Rooms    map[string]bool // Subscribed rooms (account_requests, account_request:id)
	mu       sync.Mutex
	lastPing time.Time
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Clients indexed by room for broadcasting
	roomClients map[string]map[*Client]bool

	// Register requests from clients
	register chan *registration

	// Unregister requests from clients
	unregister chan *Client

	// Broadcast to specific room
	roomBroadcast chan *RoomMessage

	// Closed when Run returns
	done chan struct{}

	mu     sync.RWMutex
	logger *zap.Logger
}

// registration is acknowledged once the client and its rooms are indexed.
type registration struct {
	client *Client
	rooms  []string
	ack    chan struct{}
}

// RoomMessage represents a message to be sent to a specific room
type RoomMessage struct {
	Room    string
	Message []byte
	Exclude string // User ID to exclude from broadcast
}

// NewHub creates a new Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		roomClients:   make(map[string]map[*Client]bool),
		register:      make(chan *registration),
		unregister:    make(chan *Client),
		roomBroadcast: make(chan *RoomMessage, 256),
		done:          make(chan struct{}),
		logger:        logger,
	}
}

// Run starts the hub's main loop and returns once ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("websocket hub started")

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			h.logger.Info("websocket hub stopped")
			return

		case reg := <-h.register:
			h.registerClient(reg)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case rm := <-h.roomBroadcast:
			h.broadcastToRoom(rm)

		case <-pingTicker.C:
			h.pingClients()
		}
	}
}

func (h *Hub) registerClient(reg *registration) {
	defer close(reg.ack)
	h.mu.Lock()
	defer h.mu.Unlock()

	client := reg.client
	h.clients[client] = true

	client.mu.Lock()
	for _, room := range reg.rooms {
		client.Rooms[room] = true
		if h.roomClients[room] == nil {
			h.roomClients[room] = make(map[*Client]bool)
		}
		h.roomClients[room][client] = true
	}
	client.mu.Unlock()

	h.logger.Info("websocket client registered",
		zap.String("user_id", client.UserID),
		zap.String("client_id", client.ID),
		zap.Int("total_clients", len(h.clients)),
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)

	client.mu.Lock()
	for room := range client.Rooms {
		if clients, ok := h.roomClients[room]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.roomClients, room)
			}
		}
	}
	client.mu.Unlock()

	close(client.Send)
	h.logger.Info("websocket client disconnected",
		zap.String("user_id", client.UserID),
		zap.String("client_id", client.ID),
		zap.Int("total_clients", len(h.clients)),
	)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		h.removeLocked(client)
	}
}

// dropSlow queues an unregister for a client whose send buffer is full.
func (h *Hub) dropSlow(c *Client) {
	go h.Unregister(c)
}

// Register adds a client to the hub and to rooms. It returns once the client
// is receiving room broadcasts, or false if the hub has stopped.
func (h *Hub) Register(c *Client, rooms ...string) bool {
	reg := &registration{client: c, rooms: rooms, ack: make(chan struct{})}
	select {
	case h.register <- reg:
	case <-h.done:
		return false
	}
	<-reg.ack
	return true
}

// Unregister removes a client; it is a no-op once the hub has stopped.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) broadcastToRoom(rm *RoomMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.roomClients[rm.Room]
	if !ok {
		h.logger.Debug("room has no clients", zap.String("room", rm.Room))
		return
	}

	sentCount := 0
	for client := range clients {
		// Skip excluded user
		if rm.Exclude != "" && client.UserID == rm.Exclude {
			continue
		}
		select {
		case client.Send <- rm.Message:
			sentCount++
		default:
			h.dropSlow(client)
		}
	}
	h.logger.Debug("broadcast to room", zap.String("room", rm.Room), zap.Int("sent", sentCount))
}

func (h *Hub) pingClients() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	msg := Message{
		Type:      MessagePing,
		Timestamp: time.Now(),
	}
	data, _ := json.Marshal(msg)

	for client := range h.clients {
		select {
		case client.Send <- data:
		default:
			h.dropSlow(client)
		}
	}
}

// ============================================
// Public Methods for Room Management
// ============================================

// JoinRoom adds a client to a room
func (h *Hub) JoinRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Send is already closed for clients that left.
	if !h.clients[client] {
		return
	}

	client.mu.Lock()
	client.Rooms[room] = true
	client.mu.Unlock()

	if h.roomClients[room] == nil {
		h.roomClients[room] = make(map[*Client]bool)
	}
	h.roomClients[room][client] = true

	h.logger.Debug("client joined room", zap.String("user_id", client.UserID), zap.String("room", room))
}

// LeaveRoom removes a client from a room
func (h *Hub) LeaveRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.mu.Lock()
	delete(client.Rooms, room)
	client.mu.Unlock()

	if clients, ok := h.roomClients[room]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.roomClients, room)
		}
	}

	h.logger.Debug("client left room", zap.String("user_id", client.UserID), zap.String("room", room))
}

// ============================================
// Public Methods for Sending Messages
// ============================================

// SendToRoom broadcasts a message to all clients in a room. It never blocks;
// when the hub is backed up the message is dropped.
func (h *Hub) SendToRoom(room string, msgType MessageType, payload map[string]interface{}, excludeUserID string) {
	msg := Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal websocket message", zap.Error(err))
		return
	}

	select {
	case h.roomBroadcast <- &RoomMessage{Room: room, Message: data, Exclude: excludeUserID}:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping message",
			zap.String("room", room), zap.String("type", string(msgType)))
	}
}

// ============================================
// Query Methods
// ============================================

// GetRoomClients returns the number of clients in a room
func (h *Hub) GetRoomClients(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if clients, ok := h.roomClients[room]; ok {
		return len(clients)
	}
	return 0
}

// GetConnectedClientsCount returns total connected clients
func (h *Hub) GetConnectedClientsCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
