package notify

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be < pongWait
	maxMessageSize = 1024                // channel messages are tiny
)

var (
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edge_notify_clients",
		Help: "Currently connected notification clients",
	})

	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_notify_messages_total",
		Help: "Channel messages by type and direction",
	}, []string{"type", "direction"}) // direction: "sent", "received"
)

// Hub is the registry of connected app tabs. It broadcasts activation
// notices and receives skip-waiting instructions.
type Hub struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger
	rootURL  string

	mu            sync.RWMutex
	clients       map[*client]struct{}
	version       string
	onSkipWaiting func()
}

// client is one connected tab.
type client struct {
	conn *websocket.Conn

	// gorilla/websocket allows at most one concurrent writer; broadcasts
	// and keepalive pings share this mutex.
	mu sync.Mutex
}

func (c *client) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// NewHub creates a notification hub. rootURL is the app's root URL, used
// to build deep links when a notification click finds no open tab.
func NewHub(rootURL string, logger zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers set Origin on WebSocket upgrade; non-browser
				// clients may omit it.
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				return u.Host == r.Host
			},
		},
		logger:  logger,
		rootURL: rootURL,
		clients: make(map[*client]struct{}),
	}
}

// OnSkipWaiting registers the callback invoked when any page sends a
// SKIP_WAITING message.
func (h *Hub) OnSkipWaiting(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onSkipWaiting = fn
}

// HandleWS upgrades the connection and serves the client until it
// disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn}
	h.register(c)
	defer h.unregister(c)

	// A tab connecting after an activation it missed learns the current
	// version right away.
	h.mu.RLock()
	current := h.version
	h.mu.RUnlock()
	if current != "" {
		if err := c.send(Message{Type: TypeUpdated, Version: current}); err != nil {
			return
		}
		messagesTotal.WithLabelValues(string(TypeUpdated), "sent").Inc()
	}

	done := make(chan struct{})
	defer close(done)
	go h.keepalive(c, done)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		messagesTotal.WithLabelValues(string(msg.Type), "received").Inc()

		if msg.Type == TypeSkipWaiting {
			h.mu.RLock()
			fn := h.onSkipWaiting
			h.mu.RUnlock()
			if fn != nil {
				fn()
			}
		}
	}
}

// keepalive pings the client until it disconnects.
func (h *Hub) keepalive(c *client, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

// Broadcast posts a message to every connected client. Delivery is
// best-effort: a failed send drops that client only.
func (h *Hub) Broadcast(msg Message) {
	for _, c := range h.snapshot() {
		if err := c.send(msg); err != nil {
			h.logger.Debug().Err(err).Msg("Dropping unreachable client")
			h.unregister(c)
			c.conn.Close()
			continue
		}
		messagesTotal.WithLabelValues(string(msg.Type), "sent").Inc()
	}
}

// Activated claims the connected clients for the given version and
// broadcasts the update notice. Implements lifecycle.Notifier.
func (h *Hub) Activated(appVersion string) {
	h.mu.Lock()
	h.version = appVersion
	h.mu.Unlock()

	h.Broadcast(Message{Type: TypeUpdated, Version: appVersion})
	h.logger.Info().Str("version", appVersion).Int("clients", h.ClientCount()).Msg("Broadcast update notice")
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RouteNotificationClick handles a tapped system notification. When a tab
// is connected it receives the category and focused is true; otherwise the
// returned URL deep-links a new tab to the category.
func (h *Hub) RouteNotificationClick(category string) (focused bool, deepLink string) {
	msg := Message{Type: TypeNotificationClick, Category: category}
	for _, c := range h.snapshot() {
		if err := c.send(msg); err != nil {
			h.unregister(c)
			c.conn.Close()
			continue
		}
		messagesTotal.WithLabelValues(string(TypeNotificationClick), "sent").Inc()
		return true, ""
	}
	return false, h.rootURL + "?tab=" + url.QueryEscape(category)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	connectedClients.Inc()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()
	if ok {
		connectedClients.Dec()
	}
}

func (h *Hub) snapshot() []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}
