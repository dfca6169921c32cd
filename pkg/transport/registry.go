package transport

import (
	"fmt"
	"sync"

	"github.com/open-teleop/rov-bridge/pkg/config"
	customlog "github.com/open-teleop/rov-bridge/pkg/log"
)

// Registry picks a Dialer by target scheme. Targets without a scheme go to
// the fallback dialer.
type Registry struct {
	mu       sync.RWMutex
	dialers  map[string]Dialer
	fallback Dialer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{dialers: make(map[string]Dialer)}
}

// NewDefaultRegistry wires every supported transport:
// bare paths to serial, ws/wss to rosbridge, mqtt/mqtts to MQTT and zmq to
// ZeroMQ.
func NewDefaultRegistry(cfg config.TransportConfig, logger customlog.Logger) *Registry {
	r := NewRegistry()
	r.SetFallback(&SerialDialer{BaudRate: cfg.Serial.BaudRate, BufferSize: cfg.SendBufferSize, Logger: logger})

	rosbridge := &RosBridgeDialer{Config: cfg.RosBridge, BufferSize: cfg.SendBufferSize, Logger: logger}
	r.Register("ws", rosbridge)
	r.Register("wss", rosbridge)

	mqttDialer := &MQTTDialer{Config: cfg.MQTT, BufferSize: cfg.SendBufferSize, Logger: logger}
	r.Register("mqtt", mqttDialer)
	r.Register("mqtts", mqttDialer)

	r.Register("zmq", &ZeroMQDialer{Config: cfg.ZeroMQ, BufferSize: cfg.SendBufferSize, Logger: logger})
	return r
}

// Register adds d for scheme, replacing any previous one.
func (r *Registry) Register(scheme string, d Dialer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialers[scheme] = d
}

// SetFallback sets the dialer for targets without a scheme.
func (r *Registry) SetFallback(d Dialer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = d
}

// Dial implements Dialer.
func (r *Registry) Dial(target string, sink Sink) (Transport, error) {
	scheme := Scheme(target)

	r.mu.RLock()
	d, ok := r.dialers[scheme]
	if scheme == "" {
		d, ok = r.fallback, r.fallback != nil
	}
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTarget, target)
	}
	return d.Dial(target, sink)
}
