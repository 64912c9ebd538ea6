// Package stream pushes published flight batches to map clients over
// websockets. A Hub is registered as a feed.Sink; every batch the feed
// publishes is broadcast as a "stream" message, and each new client first
// receives a "snapshot" of the current dataset.
package stream

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/unklstewy/skyfeed/internal/feed"
	"github.com/unklstewy/skyfeed/internal/logging"
	"github.com/unklstewy/skyfeed/internal/metrics"
)

// Message types sent to clients.
const (
	MessageTypeSnapshot = "snapshot"
	MessageTypeStream   = "stream"
	MessageTypePing     = "ping"
	MessageTypePong     = "pong"
)

const broadcastBuffer = 64

// Message is the envelope of every websocket frame.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// StreamData is one published batch. Clients append columns and keep at
// most rollover rows, mirroring the server-side dataset.
type StreamData struct {
	Columns  feed.Columns `json:"columns"`
	Rollover int          `json:"rollover"`
}

// SnapshotData is the full dataset at a point in time.
type SnapshotData struct {
	Columns   feed.Columns `json:"columns"`
	Count     int          `json:"count"`
	UpdatedAt *time.Time   `json:"updated_at"`
}

// Snapshot captures the current contents of dataset.
func Snapshot(dataset *feed.RollingDataset) SnapshotData {
	rows := dataset.Snapshot()
	data := SnapshotData{
		Columns: feed.ToColumns(rows),
		Count:   len(rows),
	}
	if ts := dataset.UpdatedAt(); !ts.IsZero() {
		data.UpdatedAt = &ts
	}
	return data
}

// Hub maintains the set of connected clients and fans batches out to them.
type Hub struct {
	dataset  *feed.RollingDataset
	metrics  *metrics.Metrics
	log      zerolog.Logger
	upgrader websocket.Upgrader
	origins  []string

	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	quit     chan struct{}
	quitOnce sync.Once
}

// NewHub creates a hub that snapshots dataset for new clients. origins
// lists the allowed Origin headers; "*" allows any.
func NewHub(dataset *feed.RollingDataset, m *metrics.Metrics, origins []string) *Hub {
	h := &Hub{
		dataset:    dataset,
		metrics:    m,
		log:        logging.Component("stream"),
		origins:    origins,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

// Stream implements feed.Sink. It never blocks the feed; when the hub is
// backed up the batch is dropped and counted.
func (h *Hub) Stream(cols feed.Columns, rollover int) {
	msg := Message{
		Type: MessageTypeStream,
		Data: StreamData{Columns: cols, Rollover: rollover},
	}
	select {
	case h.broadcast <- msg:
	default:
		h.metrics.DroppedMessage()
		h.log.Warn().Msg("broadcast channel full, dropping batch")
	}
}

// Run owns the client set until ctx is cancelled, then closes every client.
// Lifecycle events are handled before broadcasts so a client registered
// ahead of a batch always receives it.
func (h *Hub) Run(ctx context.Context) error {
	defer h.quitOnce.Do(func() { close(h.quit) })

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case c := <-h.register:
			h.add(c)
			continue
		case c := <-h.unregister:
			h.remove(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case msg := <-h.broadcast:
			h.broadcastToClients(msg)
		}
	}
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	return h.Run(ctx)
}

func (h *Hub) String() string {
	return "stream-hub"
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	c := newClient(h, conn)
	select {
	case h.register <- c:
	case <-h.quit:
		_ = conn.Close()
		return
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}
	c.start()
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	h.log.Warn().Str("origin", origin).Msg("websocket origin rejected")
	return false
}

// add registers c and queues the current dataset as its first message.
func (h *Hub) add(c *Client) {
	if h.dataset != nil {
		c.send <- Message{Type: MessageTypeSnapshot, Data: Snapshot(h.dataset)}
	}

	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetStreamClients(n)
	h.log.Info().Uint64("client", c.id).Int("total_clients", n).Msg("client connected")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		c.close()
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.metrics.SetStreamClients(n)
		h.log.Info().Uint64("client", c.id).Int("total_clients", n).Msg("client disconnected")
	}
}

// broadcastToClients delivers msg in client ID order. Clients whose send
// buffer is full are disconnected.
func (h *Hub) broadcastToClients(msg Message) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	var slow []*Client
	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		c.close()
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	for _, c := range slow {
		h.metrics.DroppedMessage()
		h.log.Warn().Uint64("client", c.id).Msg("client too slow, disconnected")
	}
	if len(slow) > 0 {
		h.metrics.SetStreamClients(n)
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	n := len(h.clients)
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
	h.mu.Unlock()

	h.metrics.SetStreamClients(0)
	h.log.Info().Int("clients_closed", n).Msg("stream hub stopped")
}
