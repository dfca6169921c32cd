package link

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/open-teleop/rov-bridge/domain/teleop"
	customlog "github.com/open-teleop/rov-bridge/pkg/log"
	"github.com/open-teleop/rov-bridge/pkg/transport"
	"github.com/open-teleop/rov-bridge/pkg/wire"
)

// Snapshot is a point-in-time view of the link for diagnostics.
type Snapshot struct {
	State           string `json:"state"`
	Target          string `json:"target,omitempty"`
	Ready           bool   `json:"ready"`
	CommandsSent    uint64 `json:"commandsSent"`
	CommandsDropped uint64 `json:"commandsDropped"`
	TelemetryCount  uint64 `json:"telemetryCount"`
	MalformedCount  uint64 `json:"malformedTelemetry"`
}

// Manager is the connection state machine. Connect and Disconnect are
// serialized; transport events are applied under mu and ignored when they
// come from a superseded dial.
type Manager struct {
	dialer   transport.Dialer
	notifier Notifier
	logger   customlog.Logger

	opMu sync.Mutex

	mu         sync.Mutex
	state      State
	target     string
	transport  transport.Transport
	generation uint64

	sent      atomic.Uint64
	dropped   atomic.Uint64
	telemetry atomic.Uint64
	malformed atomic.Uint64
}

// NewManager creates a disconnected manager.
func NewManager(dialer transport.Dialer, notifier Notifier, logger customlog.Logger) (*Manager, error) {
	if dialer == nil {
		return nil, fmt.Errorf("dialer cannot be nil in NewManager")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier cannot be nil in NewManager")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil in NewManager")
	}
	return &Manager{
		dialer:   dialer,
		notifier: notifier,
		logger:   logger.WithField("component", "link"),
		state:    Disconnected,
	}, nil
}

// Connect opens a link to target. Connecting to the target that is already
// connected only logs. Any other existing link is torn down first. Dial
// failures are reported through the state machine, not returned.
func (m *Manager) Connect(target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return ErrEmptyTarget
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.state == Connected && m.target == target {
		m.mu.Unlock()
		m.log("Already connected to %s.", target)
		return nil
	}
	existing := m.transport != nil
	m.mu.Unlock()

	if existing {
		m.disconnect()
	}

	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.state = Connecting
	m.target = target
	m.mu.Unlock()

	m.log("Attempting to connect to %s...", target)

	t, err := m.dialer.Dial(target, &linkSink{m: m, gen: gen})
	if err != nil {
		m.handle(gen, ErrorOccurred{Err: err})
		return nil
	}

	m.mu.Lock()
	if m.generation != gen {
		// Closed before the dial returned.
		m.mu.Unlock()
		m.closeTransport(t)
		return nil
	}
	m.transport = t
	m.mu.Unlock()
	return nil
}

// Disconnect tears down the current link. With no transport it only logs,
// unless a failed dial left the manager in Error.
func (m *Manager) Disconnect() {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.disconnect()
}

func (m *Manager) disconnect() {
	m.mu.Lock()
	t := m.transport
	if t == nil {
		failed := m.state == Error
		if failed {
			// A dial that failed synchronously leaves a target but no link.
			m.generation++
			m.state = Disconnected
			m.target = ""
		}
		m.mu.Unlock()
		if failed {
			m.notifier.Status(ConnectionStatus{Status: StatusDisconnected, Message: "ROV has been disconnected."})
		} else {
			m.log("Already disconnected.")
		}
		return
	}
	m.generation++
	m.state = Disconnected
	m.target = ""
	m.transport = nil
	m.mu.Unlock()

	m.closeTransport(t)
	m.notifier.Status(ConnectionStatus{Status: StatusDisconnected, Message: "ROV has been disconnected."})
}

func (m *Manager) closeTransport(t transport.Transport) {
	var result error
	func() {
		defer func() {
			if r := recover(); r != nil {
				result = multierror.Append(result, fmt.Errorf("panic during close: %v", r))
			}
		}()
		if err := t.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}()
	if result != nil {
		m.log("Error closing connection: %v", result)
	}
}

// handle is the single transition function. Events from an older dial
// generation are dropped.
func (m *Manager) handle(gen uint64, ev Event) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		m.logger.Debugf("Ignoring %T from superseded link", ev)
		return
	}

	switch e := ev.(type) {
	case Opened:
		m.state = Connected
		target := m.target
		m.mu.Unlock()

		m.log("Successfully connected to ROV at %s.", target)
		m.notifier.Status(ConnectionStatus{
			Status:  StatusConnected,
			Message: fmt.Sprintf("ROV connected successfully on %s.", target),
			Target:  target,
		})

	case ErrorOccurred:
		m.state = Error
		m.mu.Unlock()

		err := e.Err
		if err == nil {
			err = errors.New("unknown transport error")
		}
		m.log("Connection error: %v", err)
		m.notifier.Status(ConnectionStatus{
			Status:  StatusError,
			Message: fmt.Sprintf("Error with ROV connection: %v", err),
		})

	case Closed:
		target := m.target
		m.generation++
		m.state = Disconnected
		m.target = ""
		m.transport = nil
		m.mu.Unlock()

		if target != "" {
			m.log("Connection to %s closed.", target)
			m.notifier.Status(ConnectionStatus{Status: StatusDisconnected, Message: "ROV connection lost."})
		}

	default:
		m.mu.Unlock()
		m.logger.Warnf("Unknown link event %T", ev)
	}
}

// deliver forwards telemetry from the current link. Anything that is not a
// JSON value is logged and dropped.
func (m *Manager) deliver(gen uint64, data []byte) {
	m.mu.Lock()
	current := gen == m.generation
	m.mu.Unlock()
	if !current {
		return
	}

	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		m.malformed.Add(1)
		m.logger.Warnf("Dropping malformed telemetry (%d bytes): %.64q", len(data), data)
		return
	}
	m.telemetry.Add(1)
	m.notifier.Telemetry(json.RawMessage(append([]byte(nil), data...)))
}

// Send encodes cmd and hands it to the transport. It never blocks; when the
// link is not connected or the transport buffer is full the command is
// dropped and an error returned.
func (m *Manager) Send(cmd teleop.OutboundCommand) error {
	m.mu.Lock()
	t := m.transport
	ready := m.state == Connected && t != nil
	m.mu.Unlock()

	if !ready {
		m.dropped.Add(1)
		return ErrNotReady
	}

	payload, err := wire.EncodeCommand(cmd)
	if err != nil {
		m.dropped.Add(1)
		return err
	}
	if err := t.Send(payload); err != nil {
		m.dropped.Add(1)
		if errors.Is(err, transport.ErrBufferFull) {
			m.logger.Debugf("Command dropped: %v", err)
		}
		return fmt.Errorf("send failed: %w", err)
	}
	m.sent.Add(1)
	return nil
}

// IsReady reports whether commands may be sent.
func (m *Manager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Connected && m.transport != nil
}

// CurrentTarget returns the active or pending target, or "".
func (m *Manager) CurrentTarget() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns the console view of the link.
func (m *Manager) Status() ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := ConnectionStatus{Status: statusOf(m.state), Target: m.target}
	switch status.Status {
	case StatusConnected:
		status.Message = "ROV is connected."
	case StatusError:
		status.Message = "ROV connection is in an error state."
	default:
		status.Message = "ROV is disconnected."
		status.Target = ""
	}
	return status
}

// Snapshot returns link counters for diagnostics.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	s := Snapshot{
		State:  m.state.String(),
		Target: m.target,
		Ready:  m.state == Connected && m.transport != nil,
	}
	m.mu.Unlock()

	s.CommandsSent = m.sent.Load()
	s.CommandsDropped = m.dropped.Load()
	s.TelemetryCount = m.telemetry.Load()
	s.MalformedCount = m.malformed.Load()
	return s
}

func (m *Manager) log(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	m.logger.Infof("%s", msg)
	m.notifier.Log(msg)
}

// linkSink tags transport callbacks with the dial generation they belong to.
type linkSink struct {
	m   *Manager
	gen uint64
}

func (s *linkSink) Opened()             { s.m.handle(s.gen, Opened{}) }
func (s *linkSink) Failed(err error)    { s.m.handle(s.gen, ErrorOccurred{Err: err}) }
func (s *linkSink) Closed()             { s.m.handle(s.gen, Closed{}) }
func (s *linkSink) Message(data []byte) { s.m.deliver(s.gen, data) }
