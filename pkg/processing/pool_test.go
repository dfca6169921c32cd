package processing

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	customlog "github.com/open-teleop/rov-bridge/pkg/log"
)

func testLogger() customlog.Logger {
	return customlog.NewLogrusLoggerWithOutput("debug", io.Discard)
}

func TestPoolRunsJobsInOrder(t *testing.T) {
	pool := NewProcessingPool("test", 1, 16, testLogger())
	pool.Start()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 10; i++ {
		i := i
		if err := pool.Submit(Job{Name: "job", Run: func() error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}}); err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
	}
	pool.Stop()

	if len(order) != 10 {
		t.Fatalf("Expected 10 jobs to run, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("Expected in-order execution, got %v", order)
		}
	}

	metrics := pool.GetMetrics()
	if metrics.ProcessedCount != 10 || metrics.QueuedCount != 10 {
		t.Errorf("Unexpected metrics: %+v", metrics)
	}
}

func TestPoolDropsWhenFull(t *testing.T) {
	pool := NewProcessingPool("test", 1, 1, testLogger())
	pool.Start()
	defer pool.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	if err := pool.Submit(Job{Name: "block", Run: func() error {
		close(started)
		<-release
		return nil
	}}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-started

	if err := pool.Submit(Job{Name: "queued"}); err != nil {
		t.Fatalf("Expected second job to fit in the queue, got %v", err)
	}
	if err := pool.Submit(Job{Name: "dropped"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
	close(release)

	if got := pool.GetMetrics().DroppedCount; got != 1 {
		t.Errorf("Expected 1 dropped job, got %d", got)
	}
}

func TestPoolRecordsErrorsAndPanics(t *testing.T) {
	pool := NewProcessingPool("test", 1, 4, testLogger())

	var mu sync.Mutex
	var results []error
	pool.SetResultHandler(func(job Job, err error, _ time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, err)
	})
	pool.Start()

	pool.Submit(Job{Name: "fails", Run: func() error { return errors.New("boom") }})
	pool.Submit(Job{Name: "panics", Run: func() error { panic("bad input") }})
	pool.Submit(Job{Name: "ok", Run: func() error { return nil }})
	pool.Stop()

	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	if results[0] == nil || results[1] == nil || results[2] != nil {
		t.Errorf("Unexpected results: %v", results)
	}
	if got := pool.GetMetrics().ErrorCount; got != 2 {
		t.Errorf("Expected 2 errors, got %d", got)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	pool := NewProcessingPool("test", 1, 4, testLogger())
	if err := pool.Submit(Job{Name: "early"}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Expected ErrPoolStopped before Start, got %v", err)
	}
	pool.Start()
	pool.Stop()
	pool.Stop()
	if err := pool.Submit(Job{Name: "late"}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Expected ErrPoolStopped after Stop, got %v", err)
	}
}

func TestRouteRegistry(t *testing.T) {
	r := NewRouteRegistry[func() string](testLogger())
	r.Register("config:get", func() string { return "get" })
	r.Register("rov:connect", func() string { return "connect" })

	h, ok := r.Lookup("config:get")
	if !ok || h() != "get" {
		t.Fatalf("Expected config:get handler")
	}
	r.Lookup("config:get")
	if _, ok := r.Lookup("nope"); ok {
		t.Errorf("Expected unknown event to miss")
	}

	routes := r.Routes()
	if len(routes) != 2 || routes[0].Event != "config:get" || routes[0].StatCount != 2 {
		t.Errorf("Unexpected routes: %+v", routes)
	}
	if routes[1].StatCount != 0 {
		t.Errorf("Expected rov:connect count 0, got %d", routes[1].StatCount)
	}
	if r.UnknownCount() != 1 {
		t.Errorf("Expected 1 unknown lookup, got %d", r.UnknownCount())
	}
}
