package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/activity"
)

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	name   string
	logger *slog.Logger

	clients map[*Client]bool
	mu      sync.RWMutex

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	running atomic.Bool
	dropped atomic.Int64
}

// New creates a hub. A nil logger uses the global one.
func New(name string, logger *slog.Logger) *Hub {
	return &Hub{
		name:       name,
		logger:     log.Component(logger, "hub").With("hub", name),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It returns when ctx is cancelled, closing every
// client's send channel.
func (h *Hub) Run(ctx context.Context) {
	if !h.running.CompareAndSwap(false, true) {
		return
	}
	defer func() {
		h.mu.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		close(h.done)
		h.running.Store(false)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", "clients", count)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", "clients", count)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if !c.wants(msg) {
					continue
				}
				select {
				case c.send <- msg:
				default:
					// Too slow; drop the client rather than block the hub.
					close(c.send)
					delete(h.clients, c)
					h.logger.Warn("dropped slow client")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues msg for every client. It never blocks.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastEvent encodes v in an envelope and broadcasts it.
func (h *Hub) BroadcastEvent(kind string, v any) error {
	msg, err := Encode(kind, v)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// Write broadcasts an activity; it lets the hub act as a recorder sink.
func (h *Hub) Write(a activity.Activity) error {
	return h.BroadcastEvent(KindActivity, a)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many broadcasts were lost to a full channel.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
