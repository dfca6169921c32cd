package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/open-teleop/rov-bridge/pkg/config"
	customlog "github.com/open-teleop/rov-bridge/pkg/log"
)

// rosbridge protocol operations.
const (
	opAdvertise = "advertise"
	opSubscribe = "subscribe"
	opPublish   = "publish"
)

// rosOp is one rosbridge protocol frame. Only std_msgs/String payloads are
// exchanged, so msg always carries a single data string.
type rosOp struct {
	Op    string     `json:"op"`
	Topic string     `json:"topic"`
	Type  string     `json:"type,omitempty"`
	Msg   *rosString `json:"msg,omitempty"`
}

type rosString struct {
	Data string `json:"data"`
}

// RosBridgeDialer opens rosbridge websocket links. Commands are published on
// the command topic and telemetry is read from the sensors topic.
type RosBridgeDialer struct {
	Config     config.RosBridgeConfig
	BufferSize int
	Logger     customlog.Logger
}

// Dial validates target and starts the websocket handshake in the
// background.
func (d *RosBridgeDialer) Dial(target string, sink Sink) (Transport, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid rosbridge url %q: %w", target, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%w: rosbridge needs ws:// or wss://, got %q", ErrUnsupportedTarget, target)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid rosbridge url %q: missing host", target)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &rosBridgeTransport{
		cfg:    d.Config,
		target: target,
		sink:   newOnceSink(sink),
		out:    newOutbox(d.BufferSize),
		ctx:    ctx,
		cancel: cancel,
		logger: d.Logger.WithField("transport", "rosbridge"),
	}
	go t.run()
	return t, nil
}

type rosBridgeTransport struct {
	cfg    config.RosBridgeConfig
	target string
	sink   *onceSink
	out    *outbox
	ctx    context.Context
	cancel context.CancelFunc
	logger customlog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *rosBridgeTransport) run() {
	defer t.sink.Closed()

	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.HandshakeTimeout()}
	conn, _, err := dialer.DialContext(t.ctx, t.target, nil)
	if err != nil {
		if !t.out.closed() {
			t.sink.Failed(fmt.Errorf("rosbridge handshake with %s failed: %w", t.target, err))
			t.out.close()
		}
		return
	}

	t.mu.Lock()
	if t.out.closed() {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.conn = conn
	t.mu.Unlock()

	setup := []rosOp{
		{Op: opAdvertise, Topic: t.cfg.CommandTopic, Type: t.cfg.MessageType},
		{Op: opSubscribe, Topic: t.cfg.SensorsTopic, Type: t.cfg.MessageType},
	}
	for _, op := range setup {
		if err := conn.WriteJSON(op); err != nil {
			t.fail(fmt.Errorf("rosbridge %s on %s failed: %w", op.Op, op.Topic, err))
			conn.Close()
			return
		}
	}

	t.sink.Opened()

	writerDone := make(chan struct{})
	go t.writeLoop(conn, writerDone)
	t.readLoop(conn)
	<-writerDone
}

func (t *rosBridgeTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !t.out.closed() {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					t.logger.Infof("rosbridge %s closed the connection", t.target)
				}
				t.fail(fmt.Errorf("rosbridge read from %s failed: %w", t.target, err))
			}
			return
		}

		var op rosOp
		if err := json.Unmarshal(data, &op); err != nil {
			t.logger.Warnf("Ignoring malformed rosbridge frame: %v", err)
			continue
		}
		if op.Op != opPublish || op.Topic != t.cfg.SensorsTopic || op.Msg == nil {
			t.logger.Debugf("Ignoring rosbridge op %q on %q", op.Op, op.Topic)
			continue
		}
		t.sink.Message([]byte(op.Msg.Data))
	}
}

func (t *rosBridgeTransport) writeLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case payload := <-t.out.ch:
			op := rosOp{Op: opPublish, Topic: t.cfg.CommandTopic, Msg: &rosString{Data: string(payload)}}
			if err := conn.WriteJSON(op); err != nil {
				t.fail(fmt.Errorf("rosbridge publish to %s failed: %w", t.target, err))
				return
			}
		case <-t.out.done:
			deadline := time.Now().Add(time.Second)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
			conn.Close()
			return
		}
	}
}

// fail reports err once and tears the link down.
func (t *rosBridgeTransport) fail(err error) {
	if t.out.closed() {
		return
	}
	t.sink.Failed(err)
	t.Close()
}

// Send implements Transport.
func (t *rosBridgeTransport) Send(payload []byte) error {
	return t.out.push(payload)
}

// Close implements Transport.
func (t *rosBridgeTransport) Close() error {
	t.out.close()
	t.cancel()

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn != nil {
		// Unblocks the reader; the writer sends the close frame first when
		// it gets there in time.
		conn.SetReadDeadline(time.Now())
	}
	return nil
}
