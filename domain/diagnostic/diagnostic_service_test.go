package diagnostic

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/open-teleop/rov-bridge/pkg/gateway"
	"github.com/open-teleop/rov-bridge/pkg/link"
)

type stubLink struct{ snap link.Snapshot }

func (s stubLink) Snapshot() link.Snapshot { return s.snap }

type stubGateway struct{ stats gateway.Stats }

func (s stubGateway) Stats() gateway.Stats { return s.stats }

func TestGetMetricsHandler(t *testing.T) {
	svc := NewDiagnosticService(
		stubLink{snap: link.Snapshot{State: "connected", Target: "/dev/ttyUSB0", Ready: true, CommandsSent: 42}},
		stubGateway{stats: gateway.Stats{Clients: 2, QueueCapacity: 64}},
	)
	svc.started = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return svc.started.Add(90 * time.Second) }

	app := fiber.New()
	app.Get("/api/v1/diagnostics", svc.GetMetricsHandler)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/diagnostics", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Status  string        `json:"status"`
		Metrics SystemMetrics `json:"metrics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if body.Status != "success" {
		t.Errorf("Expected status success, got %q", body.Status)
	}
	if body.Metrics.Uptime != "1m30s" {
		t.Errorf("Expected uptime 1m30s, got %q", body.Metrics.Uptime)
	}
	if body.Metrics.Link.Target != "/dev/ttyUSB0" || body.Metrics.Link.CommandsSent != 42 {
		t.Errorf("Unexpected link snapshot: %+v", body.Metrics.Link)
	}
	if body.Metrics.Gateway.Clients != 2 || body.Metrics.Gateway.QueueCapacity != 64 {
		t.Errorf("Unexpected gateway stats: %+v", body.Metrics.Gateway)
	}
	if body.Metrics.Goroutines == 0 {
		t.Errorf("Expected goroutine count")
	}
}
