package link

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/open-teleop/rov-bridge/domain/teleop"
	customlog "github.com/open-teleop/rov-bridge/pkg/log"
	"github.com/open-teleop/rov-bridge/pkg/transport"
)

type fakeTransport struct {
	mu      sync.Mutex
	sent    [][]byte
	closed  int
	sendErr error
}

func (f *fakeTransport) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, p)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// fakeDialer hands out fakeTransports and keeps the sinks so tests can
// drive transport events by hand.
type fakeDialer struct {
	dials      []string
	sinks      []transport.Sink
	transports []*fakeTransport
	err        error
}

func (d *fakeDialer) Dial(target string, sink transport.Sink) (transport.Transport, error) {
	d.dials = append(d.dials, target)
	if d.err != nil {
		return nil, d.err
	}
	t := &fakeTransport{}
	d.sinks = append(d.sinks, sink)
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) lastSink() transport.Sink {
	return d.sinks[len(d.sinks)-1]
}

type recordingNotifier struct {
	mu        sync.Mutex
	logs      []string
	statuses  []ConnectionStatus
	telemetry []json.RawMessage
}

func (n *recordingNotifier) Log(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.logs = append(n.logs, message)
}

func (n *recordingNotifier) Status(s ConnectionStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, s)
}

func (n *recordingNotifier) Telemetry(data json.RawMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.telemetry = append(n.telemetry, data)
}

func (n *recordingNotifier) lastStatus(t *testing.T) ConnectionStatus {
	t.Helper()
	if len(n.statuses) == 0 {
		t.Fatalf("Expected at least one status broadcast")
	}
	return n.statuses[len(n.statuses)-1]
}

func newTestManager(t *testing.T) (*Manager, *fakeDialer, *recordingNotifier) {
	t.Helper()
	dialer := &fakeDialer{}
	notifier := &recordingNotifier{}
	m, err := NewManager(dialer, notifier, customlog.NewLogrusLoggerWithOutput("debug", io.Discard))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m, dialer, notifier
}

func connected(t *testing.T, target string) (*Manager, *fakeDialer, *recordingNotifier) {
	t.Helper()
	m, d, n := newTestManager(t)
	if err := m.Connect(target); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	d.lastSink().Opened()
	return m, d, n
}

func TestConnectLifecycle(t *testing.T) {
	m, d, n := newTestManager(t)

	if err := m.Connect("/dev/ttyUSB0"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if m.State() != Connecting || m.IsReady() {
		t.Errorf("Expected Connecting and not ready, got %v ready=%v", m.State(), m.IsReady())
	}
	if m.Status().Status != StatusDisconnected {
		t.Errorf("Expected Connecting to be reported as disconnected, got %s", m.Status().Status)
	}

	d.lastSink().Opened()
	if m.State() != Connected || !m.IsReady() {
		t.Fatalf("Expected Connected and ready, got %v ready=%v", m.State(), m.IsReady())
	}
	status := n.lastStatus(t)
	if status.Status != StatusConnected || status.Target != "/dev/ttyUSB0" {
		t.Errorf("Unexpected connected status: %+v", status)
	}
	if m.CurrentTarget() != "/dev/ttyUSB0" {
		t.Errorf("Expected current target /dev/ttyUSB0, got %q", m.CurrentTarget())
	}
}

func TestConnectSameTargetIsNoop(t *testing.T) {
	m, d, n := connected(t, "/dev/ttyUSB0")
	logsBefore := len(n.logs)
	statusesBefore := len(n.statuses)

	if err := m.Connect("/dev/ttyUSB0"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if len(d.dials) != 1 {
		t.Errorf("Expected no additional dial, got %d dials", len(d.dials))
	}
	if len(n.logs) != logsBefore+1 {
		t.Fatalf("Expected exactly one log line, got %d", len(n.logs)-logsBefore)
	}
	if n.logs[len(n.logs)-1] != "Already connected to /dev/ttyUSB0." {
		t.Errorf("Unexpected log line: %q", n.logs[len(n.logs)-1])
	}
	if len(n.statuses) != statusesBefore {
		t.Errorf("Expected no status broadcast for a no-op connect")
	}
	if !m.IsReady() {
		t.Errorf("Expected link to stay ready")
	}
}

func TestConnectDifferentTargetReplacesLink(t *testing.T) {
	m, d, n := connected(t, "/dev/ttyUSB0")

	if err := m.Connect("ws://rov.local:9090"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if d.transports[0].closed != 1 {
		t.Errorf("Expected old transport to be closed once, got %d", d.transports[0].closed)
	}
	if len(d.dials) != 2 || d.dials[1] != "ws://rov.local:9090" {
		t.Errorf("Expected a second dial to ws://rov.local:9090, got %v", d.dials)
	}

	// Late events from the first link must not disturb the new one.
	d.sinks[0].Closed()
	if m.State() != Connecting || m.CurrentTarget() != "ws://rov.local:9090" {
		t.Errorf("Expected stale Closed to be ignored, got %v %q", m.State(), m.CurrentTarget())
	}

	d.lastSink().Opened()
	if got := n.lastStatus(t); got.Status != StatusConnected || got.Target != "ws://rov.local:9090" {
		t.Errorf("Unexpected status after reconnect: %+v", got)
	}
}

func TestConnectEmptyTarget(t *testing.T) {
	m, d, _ := newTestManager(t)
	if err := m.Connect("  "); !errors.Is(err, ErrEmptyTarget) {
		t.Errorf("Expected ErrEmptyTarget, got %v", err)
	}
	if len(d.dials) != 0 {
		t.Errorf("Expected no dial for empty target")
	}
}

func TestDialFailureIsAnError(t *testing.T) {
	m, d, n := newTestManager(t)
	d.err = errors.New("permission denied")

	if err := m.Connect("/dev/ttyS9"); err != nil {
		t.Fatalf("Expected dial failures to be reported as state, got %v", err)
	}
	if m.State() != Error || m.IsReady() {
		t.Errorf("Expected Error and not ready, got %v", m.State())
	}
	if m.CurrentTarget() != "/dev/ttyS9" {
		t.Errorf("Expected target to be kept after error, got %q", m.CurrentTarget())
	}
	status := n.lastStatus(t)
	if status.Status != StatusError || !strings.Contains(status.Message, "permission denied") {
		t.Errorf("Unexpected error status: %+v", status)
	}
}

func TestDisconnectAfterDialFailure(t *testing.T) {
	m, d, n := newTestManager(t)
	d.err = errors.New("no such device")
	if err := m.Connect("/dev/ttyS9"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	m.Disconnect()
	if m.State() != Disconnected || m.CurrentTarget() != "" {
		t.Errorf("Expected Disconnected with no target, got %v %q", m.State(), m.CurrentTarget())
	}
	if got := m.Status(); got.Status != StatusDisconnected || got.Target != "" {
		t.Errorf("Expected disconnected status, got %+v", got)
	}
	if got := n.lastStatus(t); got.Status != StatusDisconnected {
		t.Errorf("Expected disconnected broadcast, got %+v", got)
	}

	m.Disconnect()
	if n.logs[len(n.logs)-1] != "Already disconnected." {
		t.Errorf("Expected a second Disconnect to only log, got %v", n.logs)
	}
}

func TestErrorThenClose(t *testing.T) {
	m, d, n := connected(t, "/dev/ttyUSB0")
	sink := d.lastSink()

	sink.Failed(errors.New("device reports I/O error"))
	if m.State() != Error || m.IsReady() {
		t.Fatalf("Expected Error and not ready, got %v", m.State())
	}
	if m.CurrentTarget() != "/dev/ttyUSB0" {
		t.Errorf("Expected target kept on error")
	}

	sink.Closed()
	if m.State() != Disconnected || m.CurrentTarget() != "" {
		t.Errorf("Expected Disconnected with no target, got %v %q", m.State(), m.CurrentTarget())
	}
	status := n.lastStatus(t)
	if status.Status != StatusDisconnected || status.Message != "ROV connection lost." {
		t.Errorf("Unexpected status after close: %+v", status)
	}

	statuses := len(n.statuses)
	sink.Closed()
	if len(n.statuses) != statuses {
		t.Errorf("Expected a repeated Closed to be ignored")
	}
}

func TestDisconnect(t *testing.T) {
	m, d, n := connected(t, "/dev/ttyUSB0")

	m.Disconnect()
	if d.transports[0].closed != 1 {
		t.Errorf("Expected transport to be closed")
	}
	if m.State() != Disconnected || m.IsReady() || m.CurrentTarget() != "" {
		t.Errorf("Expected reset state, got %v ready=%v target=%q", m.State(), m.IsReady(), m.CurrentTarget())
	}
	if got := n.lastStatus(t); got.Status != StatusDisconnected {
		t.Errorf("Expected disconnected broadcast, got %+v", got)
	}

	// The transport's own Closed arrives later and must not broadcast again.
	statuses := len(n.statuses)
	d.lastSink().Closed()
	if len(n.statuses) != statuses {
		t.Errorf("Expected Closed after Disconnect to be ignored")
	}
}

func TestDisconnectWhenIdle(t *testing.T) {
	m, _, n := newTestManager(t)

	m.Disconnect()
	if len(n.logs) != 1 || n.logs[0] != "Already disconnected." {
		t.Errorf("Expected a single 'Already disconnected.' log, got %v", n.logs)
	}
	if len(n.statuses) != 0 {
		t.Errorf("Expected no status broadcast, got %v", n.statuses)
	}
}

func TestSendRequiresConnected(t *testing.T) {
	m, d, _ := newTestManager(t)
	cmd := teleop.Compose(teleop.ControllerReading{}, teleop.DefaultConfiguration())

	if err := m.Send(cmd); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady while disconnected, got %v", err)
	}

	if err := m.Connect("/dev/ttyUSB0"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := m.Send(cmd); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady while connecting, got %v", err)
	}
	if len(d.transports[0].sent) != 0 {
		t.Errorf("Expected nothing written before Opened")
	}

	d.lastSink().Opened()
	if err := m.Send(cmd); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(d.transports[0].sent) != 1 {
		t.Fatalf("Expected one payload, got %d", len(d.transports[0].sent))
	}
	expected := `{"esc":[0,0,0,0,0],"servo":[0,0,0,0],"lights":[0,0]}`
	if string(d.transports[0].sent[0]) != expected {
		t.Errorf("Expected payload %s, got %s", expected, d.transports[0].sent[0])
	}

	d.transports[0].sendErr = transport.ErrBufferFull
	if err := m.Send(cmd); !errors.Is(err, transport.ErrBufferFull) {
		t.Errorf("Expected ErrBufferFull, got %v", err)
	}

	snap := m.Snapshot()
	if snap.CommandsSent != 1 || snap.CommandsDropped != 3 {
		t.Errorf("Expected 1 sent and 3 dropped, got %+v", snap)
	}
}

func TestTelemetry(t *testing.T) {
	m, d, n := connected(t, "/dev/ttyUSB0")
	sink := d.lastSink()

	sink.Message([]byte(`{"depth":3.2,"temperature":18}` + "\r"))
	sink.Message([]byte(`{"depth":`))
	sink.Message([]byte(`not json`))

	if len(n.telemetry) != 1 {
		t.Fatalf("Expected one telemetry broadcast, got %d", len(n.telemetry))
	}
	if string(n.telemetry[0]) != `{"depth":3.2,"temperature":18}` {
		t.Errorf("Unexpected telemetry payload: %s", n.telemetry[0])
	}
	if m.State() != Connected {
		t.Errorf("Expected malformed telemetry not to change state, got %v", m.State())
	}

	snap := m.Snapshot()
	if snap.TelemetryCount != 1 || snap.MalformedCount != 2 {
		t.Errorf("Expected 1 telemetry and 2 malformed, got %+v", snap)
	}

	m.Disconnect()
	sink.Message([]byte(`{"depth":1}`))
	if len(n.telemetry) != 1 {
		t.Errorf("Expected telemetry from a closed link to be ignored")
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Disconnected: "disconnected",
		Connecting:   "connecting",
		Connected:    "connected",
		Error:        "error",
		State(42):    "unknown",
	}
	for s, expected := range cases {
		if s.String() != expected {
			t.Errorf("Expected %q, got %q", expected, s.String())
		}
	}
}
