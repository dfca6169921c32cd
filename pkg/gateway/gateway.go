// Package gateway connects operator consoles to the vehicle link. It
// decodes inbound websocket events, serializes them through a single
// worker, and fans log, status and telemetry out to every console.
package gateway

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/open-teleop/rov-bridge/domain/teleop"
	"github.com/open-teleop/rov-bridge/pkg/link"
	customlog "github.com/open-teleop/rov-bridge/pkg/log"
	"github.com/open-teleop/rov-bridge/pkg/processing"
	"github.com/open-teleop/rov-bridge/pkg/transport"
	"github.com/open-teleop/rov-bridge/services"
)

// Link is the part of the connection manager the gateway drives.
type Link interface {
	Connect(target string) error
	Disconnect()
	Send(cmd teleop.OutboundCommand) error
	IsReady() bool
	Status() link.ConnectionStatus
}

// PortLister enumerates serial ports for rov:find-com-ports.
type PortLister func() ([]transport.PortInfo, error)

// handlerFunc handles one inbound event for the client that sent it.
type handlerFunc func(clientID string, data json.RawMessage) error

// Options configures a Gateway.
type Options struct {
	Config           services.RovConfigService
	Ports            PortLister
	Logger           customlog.Logger
	QueueSize        int
	ClientBufferSize int
}

// Stats is a snapshot of gateway activity.
type Stats struct {
	Clients       int                    `json:"clients"`
	DroppedFrames uint64                 `json:"droppedFrames"`
	UnknownEvents int64                  `json:"unknownEvents"`
	Pool          processing.PoolMetrics `json:"pool"`
	QueueLength   int                    `json:"queueLength"`
	QueueCapacity int                    `json:"queueCapacity"`
	Routes        []processing.RouteInfo `json:"routes"`
}

// Gateway implements link.Notifier and services.ConfigPublisher.
type Gateway struct {
	logger customlog.Logger
	config services.RovConfigService
	ports  PortLister
	hub    *hub
	pool   *processing.ProcessingPool
	routes *processing.RouteRegistry[handlerFunc]
	now    func() time.Time

	mu   sync.RWMutex
	link Link
}

// New creates a gateway. SetLink must be called before Start.
func New(opts Options) (*Gateway, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil in gateway.New")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("config service cannot be nil in gateway.New")
	}
	if opts.Ports == nil {
		opts.Ports = transport.ListPorts
	}

	logger := opts.Logger.WithField("component", "gateway")
	g := &Gateway{
		logger: logger,
		config: opts.Config,
		ports:  opts.Ports,
		hub:    newHub(opts.ClientBufferSize),
		pool:   processing.NewProcessingPool("dispatch", 1, opts.QueueSize, logger),
		routes: processing.NewRouteRegistry[handlerFunc](logger),
		now:    time.Now,
	}
	g.registerRoutes()
	return g, nil
}

// SetLink attaches the connection manager.
func (g *Gateway) SetLink(l Link) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.link = l
}

func (g *Gateway) currentLink() Link {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.link
}

// Start starts the dispatch worker.
func (g *Gateway) Start() {
	g.pool.Start()
}

// Stop drains pending events and stops the worker.
func (g *Gateway) Stop() {
	g.pool.Stop()
}

// Join registers a new client and queues its welcome frames.
func (g *Gateway) Join() *Client {
	c := g.hub.add()
	g.logger.Infof("Client connected: %s", c.ID())

	g.sendTo(c.ID(), EventWelcome, WelcomePayload{
		Status:    "connected",
		ClientID:  c.ID(),
		Timestamp: timestamp(g.now()),
	})
	if l := g.currentLink(); l != nil {
		g.sendTo(c.ID(), EventConnectionStatus, l.Status())
	}
	return c
}

// Leave removes a client.
func (g *Gateway) Leave(c *Client, reason string) {
	if g.hub.remove(c) {
		g.logger.Infof("Client disconnected: %s (%s)", c.ID(), reason)
	}
}

// Dispatch decodes one inbound frame and queues it for the worker. Frames
// for unknown events and frames that do not fit in the queue are dropped.
func (g *Gateway) Dispatch(clientID string, raw []byte) error {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		g.logger.Warnf("Ignoring malformed frame from %s: %v", clientID, err)
		return fmt.Errorf("malformed frame: %w", err)
	}

	handler, ok := g.routes.Lookup(frame.Event)
	if !ok {
		g.logger.Warnf("Ignoring unknown event %q from %s", frame.Event, clientID)
		return fmt.Errorf("unknown event %q", frame.Event)
	}

	data := frame.Data
	return g.pool.Submit(processing.Job{
		Name: frame.Event,
		Run:  func() error { return handler(clientID, data) },
	})
}

// Stats returns gateway counters.
func (g *Gateway) Stats() Stats {
	return Stats{
		Clients:       g.hub.count(),
		DroppedFrames: g.hub.dropped.Load(),
		UnknownEvents: g.routes.UnknownCount(),
		Pool:          g.pool.GetMetrics(),
		QueueLength:   g.pool.GetQueueLength(),
		QueueCapacity: g.pool.GetQueueCapacity(),
		Routes:        g.routes.Routes(),
	}
}

// Log implements link.Notifier.
func (g *Gateway) Log(message string) {
	g.broadcast(EventLog, LogPayload{Timestamp: timestamp(g.now()), Message: message})
}

// Status implements link.Notifier.
func (g *Gateway) Status(status link.ConnectionStatus) {
	g.broadcast(EventConnectionStatus, status)
}

// Telemetry implements link.Notifier.
func (g *Gateway) Telemetry(data json.RawMessage) {
	g.broadcast(EventSensorData, data)
}

// PublishConfigUpdated implements services.ConfigPublisher.
func (g *Gateway) PublishConfigUpdated(cfg teleop.RovConfiguration) {
	g.broadcast(EventConfigUpdated, ConfigUpdatedPayload{Success: true, NewConfig: cfg})
}

func (g *Gateway) broadcast(event string, data interface{}) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		g.logger.Errorf("Failed to encode %s: %v", event, err)
		return
	}
	g.hub.broadcast(frame)
}

func (g *Gateway) sendTo(clientID, event string, data interface{}) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		g.logger.Errorf("Failed to encode %s: %v", event, err)
		return
	}
	if !g.hub.sendTo(clientID, frame) {
		g.logger.Debugf("Dropped %s for client %s", event, clientID)
	}
}

func (g *Gateway) sendError(clientID, message string, err error) {
	payload := ErrorPayload{Message: message}
	if err != nil {
		payload.Error = err.Error()
	}
	g.sendTo(clientID, EventError, payload)
}
