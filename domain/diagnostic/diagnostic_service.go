package diagnostic

import (
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/open-teleop/rov-bridge/pkg/gateway"
	"github.com/open-teleop/rov-bridge/pkg/link"
)

// SystemMetrics represents bridge diagnostics information
type SystemMetrics struct {
	Timestamp  time.Time     `json:"timestamp"`
	Uptime     string        `json:"uptime"`
	Goroutines int           `json:"goroutines"`
	HeapAlloc  uint64        `json:"heap_alloc_bytes"`
	Link       link.Snapshot `json:"link"`
	Gateway    gateway.Stats `json:"gateway"`
}

// LinkSource provides link counters.
type LinkSource interface {
	Snapshot() link.Snapshot
}

// GatewaySource provides operator pipeline counters.
type GatewaySource interface {
	Stats() gateway.Stats
}

// DiagnosticService handles bridge diagnostics
type DiagnosticService struct {
	started time.Time
	link    LinkSource
	gateway GatewaySource
	now     func() time.Time
}

// NewDiagnosticService creates a new diagnostic service instance
func NewDiagnosticService(l LinkSource, g GatewaySource) *DiagnosticService {
	return &DiagnosticService{
		started: time.Now(),
		link:    l,
		gateway: g,
		now:     time.Now,
	}
}

// GetMetrics collects the current metrics
func (s *DiagnosticService) GetMetrics() SystemMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	now := s.now()
	return SystemMetrics{
		Timestamp:  now,
		Uptime:     now.Sub(s.started).Truncate(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  mem.HeapAlloc,
		Link:       s.link.Snapshot(),
		Gateway:    s.gateway.Stats(),
	}
}

// GetMetricsHandler handles API requests for bridge metrics
func (s *DiagnosticService) GetMetricsHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "success",
		"metrics": s.GetMetrics(),
	})
}
