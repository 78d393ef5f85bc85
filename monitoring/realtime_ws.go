package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventType tags broadcast messages so clients can subscribe selectively.
type EventType string

const (
	EventPrediction  EventType = "prediction"
	EventModelStatus EventType = "model_status"
	EventHeartbeat   EventType = "heartbeat"
)

// Message is the envelope every broadcast is wrapped in.
type Message struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	ID        string          `json:"id"`
}

// PredictionEvent is pushed after every served prediction.
type PredictionEvent struct {
	RequestID  string    `json:"request_id"`
	Features   []float64 `json:"features"`
	Prediction int       `json:"prediction"`
	Species    string    `json:"species"`
	Confidence float64   `json:"confidence"`
	LatencyMS  float64   `json:"latency_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// ModelStatusEvent is pushed when the served model's state changes, e.g. the
// artifact on disk is overwritten after startup.
type ModelStatusEvent struct {
	Loaded    bool      `json:"loaded"`
	Stale     bool      `json:"stale"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

type heartbeatEvent struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is what connected clients may send back.
type ClientMessage struct {
	Type  string `json:"type"` // subscribe, unsubscribe, ping
	Topic string `json:"topic"`
}

type envelope struct {
	eventType EventType
	payload   []byte
}

// Client is one websocket consumer.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	clientID string

	mu            sync.Mutex
	subscriptions map[EventType]bool
}

// wants reports whether the client should receive this event type. Clients
// with no explicit subscriptions receive everything.
func (c *Client) wants(t EventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.subscriptions) == 0 {
		return true
	}
	return c.subscriptions[t]
}

func (c *Client) subscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[EventType(topic)] = true
}

func (c *Client) unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, EventType(topic))
}

// HubStats is a snapshot of hub activity.
type HubStats struct {
	ConnectedClients int       `json:"connected_clients"`
	MessagesSent     int64     `json:"messages_sent"`
	StartTime        time.Time `json:"start_time"`
	Uptime           string    `json:"uptime"`
}

// WebSocketHub fans prediction events out to connected clients.
type WebSocketHub struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc

	messagesSent int64
	startTime    time.Time
}

// NewWebSocketHub creates a hub; call Start in a goroutine to run it.
func NewWebSocketHub(logger *zap.Logger) *WebSocketHub {
	ctx, cancel := context.WithCancel(context.Background())
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WebSocketHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Start runs the hub loop until Stop is called.
func (h *WebSocketHub) Start() {
	defer h.logger.Info("websocket hub stopped")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("websocket client connected",
				zap.String("client_id", client.clientID),
				zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("websocket client disconnected",
				zap.String("client_id", client.clientID),
				zap.Int("total", total))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(msg.eventType) {
					continue
				}
				select {
				case client.send <- msg.payload:
					h.messagesSent++
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop shuts the hub down and disconnects all clients.
func (h *WebSocketHub) Stop() {
	h.cancel()
}

// HandleWebSocket upgrades the request and attaches the client to the hub.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:          conn,
		send:          make(chan []byte, 256),
		clientID:      uuid.NewString(),
		subscriptions: make(map[EventType]bool),
	}

	h.register <- client

	go client.writePump(h.logger)
	go client.readPump(h)
}

// SendPrediction broadcasts a prediction event.
func (h *WebSocketHub) SendPrediction(event PredictionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	h.send(EventPrediction, event)
}

// SendModelStatus broadcasts a model status change.
func (h *WebSocketHub) SendModelStatus(event ModelStatusEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	h.send(EventModelStatus, event)
}

// SendHeartbeat broadcasts a liveness beat.
func (h *WebSocketHub) SendHeartbeat() {
	h.send(EventHeartbeat, heartbeatEvent{Status: "alive", Timestamp: time.Now().UTC()})
}

func (h *WebSocketHub) send(eventType EventType, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Warn("failed to marshal event", zap.String("type", string(eventType)), zap.Error(err))
		return
	}
	msg, err := json.Marshal(Message{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      payload,
		ID:        uuid.NewString(),
	})
	if err != nil {
		h.logger.Warn("failed to marshal envelope", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- envelope{eventType: eventType, payload: msg}:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping message",
			zap.String("type", string(eventType)))
	}
}

// ClientCount reports the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats snapshots hub activity.
func (h *WebSocketHub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HubStats{
		ConnectedClients: len(h.clients),
		MessagesSent:     h.messagesSent,
		StartTime:        h.startTime,
		Uptime:           time.Since(h.startTime).String(),
	}
}

const (
	writeWait  = 30 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

func (c *Client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump(h *WebSocketHub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read failed", zap.Error(err))
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.logger.Debug("unparseable client message", zap.Error(err))
			continue
		}
		c.handleClientMessage(h, msg)
	}
}

func (c *Client) handleClientMessage(h *WebSocketHub, msg ClientMessage) {
	switch msg.Type {
	case "subscribe":
		c.subscribe(msg.Topic)
		h.logger.Debug("client subscribed",
			zap.String("client_id", c.clientID), zap.String("topic", msg.Topic))
	case "unsubscribe":
		c.unsubscribe(msg.Topic)
		h.logger.Debug("client unsubscribed",
			zap.String("client_id", c.clientID), zap.String("topic", msg.Topic))
	case "ping":
		h.logger.Debug("client ping", zap.String("client_id", c.clientID))
	}
}
