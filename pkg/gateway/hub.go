package gateway

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Client is one connected operator console. Frames queued for it are read
// from Outbound by the connection's writer.
type Client struct {
	id       string
	send     chan []byte
	done     chan struct{}
	doneOnce sync.Once
}

// ID returns the client id.
func (c *Client) ID() string { return c.id }

// Outbound returns the queue of encoded frames for this client.
func (c *Client) Outbound() <-chan []byte { return c.send }

// Done is closed when the client leaves.
func (c *Client) Done() <-chan struct{} { return c.done }

// hub tracks clients and fans frames out without blocking. A client whose
// buffer is full misses the frame.
type hub struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	bufferSize int
	dropped    atomic.Uint64
}

func newHub(bufferSize int) *hub {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &hub{
		clients:    make(map[string]*Client),
		bufferSize: bufferSize,
	}
}

func (h *hub) add() *Client {
	c := &Client{
		id:   uuid.NewString(),
		send: make(chan []byte, h.bufferSize),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	return c
}

func (h *hub) remove(c *Client) bool {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()

	c.doneOnce.Do(func() { close(c.done) })
	return ok
}

func (h *hub) offer(c *Client, frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		h.dropped.Add(1)
		return false
	}
}

func (h *hub) broadcast(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.offer(c, frame)
	}
}

func (h *hub) sendTo(id string, frame []byte) bool {
	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return h.offer(c, frame)
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
