package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sprite-ai/agstage/internal/logging"
	"github.com/sprite-ai/agstage/internal/model"
	"github.com/sprite-ai/agstage/internal/preview"
	"github.com/sprite-ai/agstage/internal/review"
)

// ErrNoClients is returned by Hub.Present when nobody is watching.
var ErrNoClients = errors.New("no review clients connected")

const (
	writeWait  = 10 * time.Second
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 64,
	WriteBufferSize: 1024 * 64,
	CheckOrigin: func(r *http.Request) bool {
		return true // served on loopback by default
	},
}

// WebSocket message types from client.
const (
	wsMsgAccept = "accept"
	wsMsgReject = "reject"
	wsMsgCancel = "cancel"
)

// WebSocket message types to client.
const (
	wsMsgHello    = "hello"
	wsMsgProposal = "proposal"
	wsMsgSession  = "session"
	wsMsgError    = "error"
)

// wsMessage is the envelope for WebSocket messages in both directions.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// wsHello greets a new client with the state it missed.
type wsHello struct {
	Session *review.Snapshot `json:"session,omitempty"`
	Preview *preview.Preview `json:"preview,omitempty"`
}

type wsCancel struct {
	Reason string `json:"reason"`
}

type client struct {
	conn *websocket.Conn
	send chan wsMessage
}

// Hub is the browser diff presenter. It broadcasts each preview and every
// session transition to all connected clients.
type Hub struct {
	builder *preview.Builder
	log     *logging.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	current *preview.Preview
}

// NewHub creates a Hub rendering previews with b.
func NewHub(b *preview.Builder, log *logging.Logger) *Hub {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Hub{
		builder: b,
		log:     log.WithComponent("hub"),
		clients: make(map[*client]struct{}),
	}
}

// Present implements review.Presenter.
func (h *Hub) Present(original, modified, title string) error {
	if h.Clients() == 0 {
		return ErrNoClients
	}
	p, err := h.builder.Build(original, modified, title)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.current = p
	h.mu.Unlock()

	h.broadcast(wsMsgProposal, p)
	return nil
}

// Observe implements review.Observer.
func (h *Hub) Observe(ev review.Event) {
	if ev.Session.Terminal() {
		h.mu.Lock()
		h.current = nil
		h.mu.Unlock()
	}
	h.broadcast(wsMsgSession, ev.Session)
}

// Current returns the preview awaiting a decision, or nil.
func (h *Hub) Current() *preview.Preview {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func encode(msgType string, data any) (wsMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return wsMessage{}, err
	}
	return wsMessage{Type: msgType, Data: raw}, nil
}

// broadcast queues a message for every client. Clients too slow to keep up
// are dropped.
func (h *Hub) broadcast(msgType string, data any) {
	msg, err := encode(msgType, data)
	if err != nil {
		h.log.Warn("ws marshal failed", "type", msgType, "error", err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Warn("dropping slow ws client")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// sendTo queues a message for one client if it is still connected.
func (h *Hub) sendTo(c *client, msgType string, data any) {
	msg, err := encode(msgType, data)
	if err != nil {
		h.log.Warn("ws marshal failed", "type", msgType, "error", err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	c := &client{conn: conn, send: make(chan wsMessage, sendBuffer)}

	// Registering on the loop orders the greeting before any transition.
	err = s.submit(r.Context(), func() {
		var hello wsHello
		if snap, ok := s.ctrl.Active(); ok {
			hello.Session = &snap
			if s.ctrl.Pending() {
				hello.Preview = s.hub.Current()
			}
		}
		if msg, err := encode(wsMsgHello, hello); err == nil {
			c.send <- msg
		}
		s.hub.add(c)
	})
	if err != nil {
		conn.Close()
		return
	}

	go s.writePump(c)
	s.readPump(r, c)
}

func (s *Server) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			s.log.Debug("ws write failed", "error", err.Error())
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) readPump(r *http.Request, c *client) {
	defer s.hub.remove(c)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read failed", "error", err.Error())
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.hub.sendTo(c, wsMsgError, map[string]string{"message": "invalid message format"})
			continue
		}

		switch msg.Type {
		case wsMsgAccept:
			s.wsDecide(r, c, model.DecisionAccept)
		case wsMsgReject:
			s.wsDecide(r, c, model.DecisionReject)
		case wsMsgCancel:
			s.wsCancel(r, c, msg.Data)
		default:
			s.hub.sendTo(c, wsMsgError, map[string]string{"message": "unknown message type: " + msg.Type})
		}
	}
}

func (s *Server) wsDecide(r *http.Request, c *client, d model.Decision) {
	if _, err := s.decide(r, d); err != nil {
		_, code := statusFor(err)
		s.hub.sendTo(c, wsMsgError, map[string]string{"message": err.Error(), "code": code})
	}
}

func (s *Server) wsCancel(r *http.Request, c *client, data json.RawMessage) {
	req := wsCancel{Reason: "cancelled from browser"}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &req)
	}
	var ok bool
	if err := s.submit(r.Context(), func() { _, ok = s.ctrl.Cancel(req.Reason) }); err != nil || !ok {
		s.hub.sendTo(c, wsMsgError, map[string]string{"message": errNothingPending.Error(), "code": "nothing_pending"})
	}
}
