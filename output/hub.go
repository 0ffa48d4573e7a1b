package output

import (
	"log/slog"
	"sync"
)

// DefaultClientBuffer is how many events a consumer may lag behind before
// it is dropped.
const DefaultClientBuffer = 64

// JSONConn is the write side of a consumer connection.
type JSONConn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Hub broadcasts events to connected websocket consumers. Each consumer has
// its own buffered queue and writer goroutine; a consumer whose queue is
// full is disconnected instead of stalling the others.
type Hub struct {
	mu      sync.Mutex
	clients map[*hubClient]struct{}
	buffer  int
	logger  *slog.Logger
	closed  bool
}

type hubClient struct {
	conn JSONConn
	send chan Event
	once sync.Once
	done chan struct{}
}

// NewHub creates an empty hub.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*hubClient]struct{}),
		buffer:  buffer,
		logger:  logger,
	}
}

// Attach registers conn and starts writing events to it. The returned
// function detaches the consumer and waits for its writer to exit; it is
// safe to call more than once.
func (h *Hub) Attach(conn JSONConn) (detach func()) {
	c := &hubClient{
		conn: conn,
		send: make(chan Event, h.buffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(c.done)
		return func() {}
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("event consumer connected", "consumers", count)
	go h.writeLoop(c)

	return func() {
		h.remove(c)
		<-c.done
	}
}

func (h *Hub) writeLoop(c *hubClient) {
	defer close(c.done)
	for event := range c.send {
		if err := c.conn.WriteJSON(event); err != nil {
			h.logger.Warn("event consumer write error", "error", err)
			h.remove(c)
			// drain so remove never blocks and the channel can be collected
			for range c.send {
			}
			return
		}
	}
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		h.logger.Info("event consumer disconnected")
	}
	c.once.Do(func() { close(c.send) })
}

// Emit queues the event for every consumer without blocking.
func (h *Hub) Emit(e Event) {
	h.mu.Lock()
	var slow []*hubClient
	for c := range h.clients {
		select {
		case c.send <- e:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow event consumer", "event", e.Name)
		h.remove(c)
		_ = c.conn.Close()
	}
}

// Len returns the number of connected consumers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every consumer.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
		_ = c.conn.Close()
	}
}
