// Package transport implements the send/receive primitive that carries
// commands to the vehicle and telemetry back, over serial, rosbridge, MQTT
// or ZeroMQ.
package transport

import (
	"errors"
	"strings"
	"sync"
)

var (
	ErrBufferFull        = errors.New("transport send buffer full")
	ErrClosed            = errors.New("transport closed")
	ErrUnsupportedTarget = errors.New("unsupported target")
)

// Sink receives the events of one transport. Calls are made from transport
// goroutines, never from inside Send or Close. Closed is delivered at most
// once and is always the last event.
type Sink interface {
	Opened()
	Failed(err error)
	Closed()
	Message(data []byte)
}

// Transport is a live link to the vehicle.
type Transport interface {
	// Send queues payload without blocking. It returns ErrBufferFull when
	// the outbound buffer is full; the payload is dropped.
	Send(payload []byte) error
	// Close tears the link down. The sink later receives Closed.
	Close() error
}

// Dialer starts a link to target. Dial returns once the attempt has been
// initiated; the sink receives Opened when the link is usable.
type Dialer interface {
	Dial(target string, sink Sink) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(target string, sink Sink) (Transport, error)

// Dial calls f.
func (f DialerFunc) Dial(target string, sink Sink) (Transport, error) {
	return f(target, sink)
}

// Scheme returns the URL scheme of target, or "" for bare device paths
// such as /dev/ttyUSB0 or COM3.
func Scheme(target string) string {
	i := strings.Index(target, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(target[:i])
}

// onceSink makes sure Closed is delivered once and nothing follows it.
type onceSink struct {
	sink   Sink
	mu     sync.Mutex
	closed bool
}

func newOnceSink(sink Sink) *onceSink {
	return &onceSink{sink: sink}
}

func (s *onceSink) done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *onceSink) Opened() {
	if !s.done() {
		s.sink.Opened()
	}
}

func (s *onceSink) Failed(err error) {
	if !s.done() {
		s.sink.Failed(err)
	}
}

func (s *onceSink) Message(data []byte) {
	if !s.done() {
		s.sink.Message(data)
	}
}

func (s *onceSink) Closed() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.sink.Closed()
}

// outbox is a bounded, non-blocking send queue drained by one writer
// goroutine.
type outbox struct {
	ch        chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newOutbox(size int) *outbox {
	if size <= 0 {
		size = 1
	}
	return &outbox{
		ch:   make(chan []byte, size),
		done: make(chan struct{}),
	}
}

func (o *outbox) push(payload []byte) error {
	select {
	case <-o.done:
		return ErrClosed
	default:
	}

	select {
	case o.ch <- payload:
		return nil
	default:
		return ErrBufferFull
	}
}

func (o *outbox) close() {
	o.closeOnce.Do(func() { close(o.done) })
}

func (o *outbox) closed() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}
