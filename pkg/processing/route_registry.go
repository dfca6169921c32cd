package processing

import (
	"sort"
	"sync"
	"time"

	customlog "github.com/open-teleop/rov-bridge/pkg/log"
)

// RouteInfo holds the handler and counters for one inbound event name.
type RouteInfo struct {
	Event        string `json:"event"`
	StatCount    int64  `json:"count"`
	LastReceived int64  `json:"lastReceivedNs"`
}

// RouteRegistry maps inbound event names to handlers.
type RouteRegistry[H any] struct {
	logger   customlog.Logger
	routes   map[string]*RouteInfo
	handlers map[string]H
	unknown  int64
	mu       sync.RWMutex
}

// NewRouteRegistry creates an empty registry.
func NewRouteRegistry[H any](logger customlog.Logger) *RouteRegistry[H] {
	return &RouteRegistry[H]{
		logger:   logger,
		routes:   make(map[string]*RouteInfo),
		handlers: make(map[string]H),
	}
}

// Register adds or replaces the handler for event.
func (r *RouteRegistry[H]) Register(event string, handler H) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routes[event]; !exists {
		r.routes[event] = &RouteInfo{Event: event}
	}
	r.handlers[event] = handler
	r.logger.Debugf("Registered route for event %s", event)
}

// Lookup returns the handler for event and counts the hit.
func (r *RouteRegistry[H]) Lookup(event string) (H, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handler, ok := r.handlers[event]
	if !ok {
		r.unknown++
		return handler, false
	}
	info := r.routes[event]
	info.StatCount++
	info.LastReceived = time.Now().UnixNano()
	return handler, true
}

// Routes returns a copy of every route's counters, sorted by event name.
func (r *RouteRegistry[H]) Routes() []RouteInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RouteInfo, 0, len(r.routes))
	for _, info := range r.routes {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Event < out[j].Event })
	return out
}

// UnknownCount returns how many lookups missed.
func (r *RouteRegistry[H]) UnknownCount() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unknown
}
