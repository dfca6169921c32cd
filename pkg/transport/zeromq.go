package transport

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/open-teleop/rov-bridge/pkg/config"
	customlog "github.com/open-teleop/rov-bridge/pkg/log"
	"github.com/open-teleop/rov-bridge/pkg/wire"
	"github.com/pebbe/zmq4"
)

// zmqPollInterval bounds how long the receive loop waits before checking
// for shutdown.
const zmqPollInterval = 500 * time.Millisecond

// ZeroMQDialer opens PUB/SUB links. Commands are published to the address
// in the target; telemetry is subscribed from TelemetryPort on the same
// host. Both directions carry wire envelopes as the last frame after a
// topic frame.
type ZeroMQDialer struct {
	Config     config.ZeroMQConfig
	BufferSize int
	Logger     customlog.Logger
}

// zmqEndpoints returns the command and telemetry endpoints for a zmq://
// target.
func zmqEndpoints(target string, telemetryPort int) (string, string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", "", fmt.Errorf("invalid zmq url %q: %w", target, err)
	}
	if u.Scheme != "zmq" {
		return "", "", fmt.Errorf("%w: expected zmq://, got %q", ErrUnsupportedTarget, target)
	}
	host, port := u.Hostname(), u.Port()
	if host == "" || port == "" {
		return "", "", fmt.Errorf("invalid zmq url %q: expected zmq://host:port", target)
	}
	if telemetryPort <= 0 {
		return "", "", fmt.Errorf("invalid zmq telemetry port %d", telemetryPort)
	}

	command := "tcp://" + net.JoinHostPort(host, port)
	telemetry := "tcp://" + net.JoinHostPort(host, strconv.Itoa(telemetryPort))
	return command, telemetry, nil
}

// Dial creates and connects both sockets. ZeroMQ connects lazily, so the
// link is reported open as soon as the sockets exist.
func (d *ZeroMQDialer) Dial(target string, sink Sink) (Transport, error) {
	commandAddr, telemetryAddr, err := zmqEndpoints(target, d.Config.TelemetryPort)
	if err != nil {
		return nil, err
	}

	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create zmq context: %w", err)
	}

	pub, err := newZmqSocket(ctx, zmq4.PUB, commandAddr)
	if err != nil {
		ctx.Term()
		return nil, err
	}

	sub, err := newZmqSocket(ctx, zmq4.SUB, telemetryAddr)
	if err != nil {
		pub.Close()
		ctx.Term()
		return nil, err
	}
	if err := sub.SetSubscribe(d.Config.SensorsTopic); err != nil {
		pub.Close()
		sub.Close()
		ctx.Term()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", d.Config.SensorsTopic, err)
	}

	t := &zeroMQTransport{
		cfg:        d.Config,
		target:     target,
		ctx:        ctx,
		pub:        pub,
		sub:        sub,
		sink:       newOnceSink(sink),
		out:        newOutbox(d.BufferSize),
		writerDone: make(chan struct{}),
		logger:     d.Logger.WithField("transport", "zeromq"),
	}
	go t.writeLoop()
	go t.receiveLoop()

	t.logger.Infof("Publishing commands to %s, telemetry from %s", commandAddr, telemetryAddr)
	return t, nil
}

func newZmqSocket(ctx *zmq4.Context, kind zmq4.Type, addr string) (*zmq4.Socket, error) {
	socket, err := ctx.NewSocket(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s socket: %w", kind, err)
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}
	if err := socket.Connect(addr); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return socket, nil
}

type zeroMQTransport struct {
	cfg        config.ZeroMQConfig
	target     string
	ctx        *zmq4.Context
	pub        *zmq4.Socket
	sub        *zmq4.Socket
	sink       *onceSink
	out        *outbox
	writerDone chan struct{}
	logger     customlog.Logger
}

// writeLoop owns pub; zmq sockets are not safe for concurrent use.
func (t *zeroMQTransport) writeLoop() {
	defer close(t.writerDone)
	defer t.pub.Close()

	for {
		select {
		case payload := <-t.out.ch:
			envelope := wire.BuildEnvelope(t.cfg.CommandTopic, wire.ContentTypeJSONCommand, time.Now(), payload)
			if _, err := t.pub.Send(t.cfg.CommandTopic, zmq4.SNDMORE); err != nil {
				t.logger.Warnf("Failed to send topic frame: %v", err)
				continue
			}
			if _, err := t.pub.SendBytes(envelope, 0); err != nil {
				t.logger.Warnf("Failed to send envelope: %v", err)
			}
		case <-t.out.done:
			return
		}
	}
}

// receiveLoop owns sub and the context.
func (t *zeroMQTransport) receiveLoop() {
	defer t.sink.Closed()

	t.sink.Opened()

	poller := zmq4.NewPoller()
	poller.Add(t.sub, zmq4.POLLIN)

	var failure error
	for !t.out.closed() {
		polled, err := poller.Poll(zmqPollInterval)
		if err != nil {
			if zmq4.AsErrno(err) == zmq4.Errno(zmq4.ETERM) {
				failure = err
				break
			}
			t.logger.Warnf("Error polling telemetry socket: %v", err)
			continue
		}
		if len(polled) == 0 {
			continue
		}

		frames, err := t.sub.RecvMessageBytes(0)
		if err != nil {
			t.logger.Warnf("Error receiving telemetry: %v", err)
			continue
		}
		if len(frames) == 0 {
			continue
		}
		t.sink.Message(t.unwrap(frames[len(frames)-1]))
	}

	if failure != nil && !t.out.closed() {
		t.sink.Failed(fmt.Errorf("zmq link to %s failed: %w", t.target, failure))
	}
	t.out.close()
	t.sub.Close()
	<-t.writerDone
	if err := t.ctx.Term(); err != nil {
		t.logger.Warnf("Failed to terminate zmq context: %v", err)
	}
}

// unwrap returns the payload of an envelope. Frames that are not envelopes
// are passed through unchanged so plain JSON publishers still work.
func (t *zeroMQTransport) unwrap(frame []byte) []byte {
	msg, err := wire.DecodeEnvelope(frame)
	if err != nil {
		if !errors.Is(err, wire.ErrMalformedEnvelope) {
			t.logger.Warnf("Unexpected envelope error: %v", err)
		}
		return frame
	}
	if msg.ContentType != wire.ContentTypeJSONSensors {
		t.logger.Debugf("Telemetry envelope on %q has content type %d", msg.Topic, msg.ContentType)
	}
	return msg.Payload
}

// Send implements Transport.
func (t *zeroMQTransport) Send(payload []byte) error {
	return t.out.push(payload)
}

// Close implements Transport.
func (t *zeroMQTransport) Close() error {
	t.out.close()
	return nil
}
