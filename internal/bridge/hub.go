package bridge

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/exp/slog"

	"github.com/MJE43/stargift-miniapp/internal/lib/logger/sl"
)

// Event types pushed to the renderer.
const (
	EventState       = "state"
	EventStrip       = "strip"
	EventInvoiceOpen = "invoice_open"
	EventHaptic      = "haptic"
	EventNotice      = "notice"
)

type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to every connected renderer. Broadcast never blocks:
// a client whose buffer is full is dropped.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	log     *slog.Logger

	upgrader websocket.Upgrader
	// hello returns events sent to a client right after it connects.
	hello func() []Event
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		log:     sl.OrDiscard(log).With(slog.String("component", "hub")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// AllowOrigins sets the origins that may open the socket, with the same
// rules as the CORS options: "*" allows any origin and one "*" inside an
// entry matches any run of characters. Requests without an Origin header
// are not from a browser and are always accepted.
func (h *Hub) AllowOrigins(origins []string) {
	h.upgrader.CheckOrigin = originChecker(origins)
}

func originChecker(origins []string) func(*http.Request) bool {
	type pattern struct{ prefix, suffix string }
	var exact []string
	var wild []pattern
	for _, o := range origins {
		o = strings.ToLower(strings.TrimSpace(o))
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if i := strings.IndexByte(o, '*'); i >= 0 {
			wild = append(wild, pattern{prefix: o[:i], suffix: o[i+1:]})
			continue
		}
		exact = append(exact, o)
	}
	return func(r *http.Request) bool {
		origin := strings.ToLower(r.Header.Get("Origin"))
		if origin == "" {
			return true
		}
		for _, o := range exact {
			if o == origin {
				return true
			}
		}
		for _, p := range wild {
			if len(origin) >= len(p.prefix)+len(p.suffix) &&
				strings.HasPrefix(origin, p.prefix) && strings.HasSuffix(origin, p.suffix) {
				return true
			}
		}
		return false
	}
}

// Broadcast sends ev to every client.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("failed to marshal event", slog.String("type", ev.Type), sl.Err(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("dropping slow client")
			h.removeLocked(c)
		}
	}
}

func (h *Hub) sendTo(c *client, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("failed to marshal event", slog.String("type", ev.Type), sl.Err(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		h.removeLocked(c)
	}
}

// Notice pushes a user-facing message.
func (h *Hub) Notice(message string) {
	h.Broadcast(Event{Type: EventNotice, Data: map[string]string{"message": message}})
}

// Clients reports the number of connected renderers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

// ServeHTTP upgrades the connection and streams events until the client
// goes away. Incoming messages are ignored; the renderer talks back over
// the REST routes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("failed to upgrade connection", sl.Err(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	// hello may take other locks, and state events carry a version, so
	// it runs after registration and outside h.mu.
	if h.hello != nil {
		for _, ev := range h.hello() {
			h.sendTo(c, ev)
		}
	}
	h.log.Debug("client connected", slog.String("remote", r.RemoteAddr))

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("client read failed", sl.Err(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.Debug("failed to write message", sl.Err(err))
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

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}
