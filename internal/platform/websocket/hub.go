// Package websocket streams domain events to connected screens, such as the
// waiting-room queue board, over WebSocket connections. Clients subscribe to
// topics and receive every event published on them.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicflow/clinicflow/internal/platform/auth"
	"github.com/clinicflow/clinicflow/internal/platform/events"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

// Message is what a client receives for each event.
type Message struct {
	Type       string      `json:"type"`
	Topic      string      `json:"topic"`
	Key        string      `json:"key"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data,omitempty"`
}

// ClientMessage is an inbound subscribe or unsubscribe request.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is one connected screen. Send is closed when the client is
// unregistered.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
}

func NewClient(topics []string) *Client {
	return &Client{ID: uuid.New().String(), Topics: topics, Send: make(chan []byte, sendBuffer)}
}

// Hub tracks clients by topic. It implements events.Publisher so it can sit
// next to the Kafka publisher in an events.Fanout.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	all     map[*Client]struct{}
	log     zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		log:     log,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[c] = struct{}{}
	h.addTopics(c, c.Topics)
}

// Unregister drops every subscription of c and closes its Send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregister(c)
}

func (h *Hub) unregister(c *Client) {
	if _, ok := h.all[c]; !ok {
		return
	}
	h.removeTopics(c, c.Topics)
	delete(h.all, c)
	close(c.Send)
}

func (h *Hub) Subscribe(c *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.all[c]; !ok {
		return
	}
	var added []string
	for _, t := range topics {
		if !containsTopic(c.Topics, t) {
			added = append(added, t)
		}
	}
	h.addTopics(c, added)
	c.Topics = append(c.Topics, added...)
}

func (h *Hub) Unsubscribe(c *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeTopics(c, topics)
	remaining := c.Topics[:0]
	for _, t := range c.Topics {
		if !containsTopic(topics, t) {
			remaining = append(remaining, t)
		}
	}
	c.Topics = remaining
}

func (h *Hub) addTopics(c *Client, topics []string) {
	for _, t := range topics {
		if h.clients[t] == nil {
			h.clients[t] = make(map[*Client]struct{})
		}
		h.clients[t][c] = struct{}{}
	}
}

func (h *Hub) removeTopics(c *Client, topics []string) {
	for _, t := range topics {
		if subs, ok := h.clients[t]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.clients, t)
			}
		}
	}
}

func (h *Hub) ProcessMessage(c *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(c, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(c, msg.Topics)
	}
}

// Broadcast delivers msg to the subscribers of topic. Clients whose buffer is
// full miss the message.
func (h *Hub) Broadcast(topic string, msg Message) {
	msg.Topic = topic
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Warn().Err(err).Str("type", msg.Type).Msg("live feed message not encoded")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[topic] {
		select {
		case c.Send <- data:
		default:
			h.log.Debug().Str("client_id", c.ID).Str("topic", topic).Msg("live feed client too slow, message dropped")
		}
	}
}

func (h *Hub) Publish(_ context.Context, evts ...events.Event) error {
	for _, e := range evts {
		msg := Message{Type: e.Type, Key: e.Key, OccurredAt: e.OccurredAt, Data: e.Data}
		for _, topic := range Topics(e) {
			h.Broadcast(topic, msg)
		}
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.all {
		h.unregister(c)
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// Topics lists where an event is delivered: its category ("visit",
// "reminder", "reminders", "series") and "branch:<id>" when the payload
// names a branch.
func Topics(e events.Event) []string {
	category, _, _ := strings.Cut(e.Type, ".")
	topics := []string{category}
	if data, ok := e.Data.(map[string]interface{}); ok {
		if b, ok := data["branch_id"]; ok {
			topics = append(topics, BranchTopic(fmt.Sprint(b)))
		}
	}
	return topics
}

func BranchTopic(branchID string) string {
	return "branch:" + branchID
}

func containsTopic(topics []string, t string) bool {
	for _, x := range topics {
		if x == t {
			return true
		}
	}
	return false
}

// Handler upgrades HTTP requests to feed connections.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
	log      zerolog.Logger
}

// NewHandler accepts connections from allowedOrigins, or from any origin when
// the list is empty.
func NewHandler(hub *Hub, allowedOrigins []string, log zerolog.Logger) *Handler {
	return &Handler{
		hub: hub,
		log: log,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowedOrigins) == 0 || containsTopic(allowedOrigins, origin)
			},
		},
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/live", h.Connect, auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RoleRegistrar, auth.RoleScheduler))
}

// Connect subscribes the new client to the comma-separated "topics" query
// parameter, or to the caller's branch when none are given.
func (h *Handler) Connect(c echo.Context) error {
	topics := splitTopics(c.QueryParam("topics"))
	if len(topics) == 0 {
		if branch := auth.BranchFromContext(c.Request().Context()); branch != "" {
			topics = []string{BranchTopic(branch)}
		}
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	client := NewClient(topics)
	h.hub.Register(client)
	h.log.Debug().Str("client_id", client.ID).Strs("topics", topics).Msg("live feed client connected")

	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
	}()
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		h.hub.ProcessMessage(client, msg)
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()
	for data := range client.Send {
		ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, data); err != nil {
			return
		}
	}
	ws.WriteMessage(gorillawebsocket.CloseMessage, gorillawebsocket.FormatCloseMessage(gorillawebsocket.CloseGoingAway, ""))
}

func splitTopics(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
