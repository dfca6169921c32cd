package transport

import (
	"fmt"
	"net/url"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/open-teleop/rov-bridge/pkg/config"
	customlog "github.com/open-teleop/rov-bridge/pkg/log"
)

// MQTTDialer opens links through an MQTT broker. Commands are published on
// the command topic; telemetry arrives on the sensors topic.
type MQTTDialer struct {
	Config     config.MQTTConfig
	BufferSize int
	Logger     customlog.Logger
}

// brokerURL converts an mqtt:// or mqtts:// target to the URL paho expects.
func brokerURL(target string) (*url.URL, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid mqtt url %q: %w", target, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid mqtt url %q: missing host", target)
	}

	broker := &url.URL{Host: u.Host}
	switch u.Scheme {
	case "mqtt":
		broker.Scheme = "tcp"
		if u.Port() == "" {
			broker.Host = u.Host + ":1883"
		}
	case "mqtts":
		broker.Scheme = "ssl"
		if u.Port() == "" {
			broker.Host = u.Host + ":8883"
		}
	default:
		return nil, fmt.Errorf("%w: mqtt needs mqtt:// or mqtts://, got %q", ErrUnsupportedTarget, target)
	}
	broker.User = u.User
	return broker, nil
}

// Dial starts connecting to the broker in target.
func (d *MQTTDialer) Dial(target string, sink Sink) (Transport, error) {
	broker, err := brokerURL(target)
	if err != nil {
		return nil, err
	}

	t := &mqttTransport{
		cfg:    d.Config,
		target: target,
		sink:   newOnceSink(sink),
		out:    newOutbox(d.BufferSize),
		logger: d.Logger.WithField("transport", "mqtt"),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker.Scheme + "://" + broker.Host)
	opts.SetClientID(fmt.Sprintf("%s-%s", d.Config.ClientID, uuid.NewString()[:8]))
	if broker.User != nil {
		opts.SetUsername(broker.User.Username())
		if pw, ok := broker.User.Password(); ok {
			opts.SetPassword(pw)
		}
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(d.Config.ConnectTimeout())
	opts.SetOnConnectHandler(t.onConnect)
	opts.SetConnectionLostHandler(t.onConnectionLost)

	t.client = mqtt.NewClient(opts)
	go t.connect()
	return t, nil
}

type mqttTransport struct {
	cfg    config.MQTTConfig
	target string
	client mqtt.Client
	sink   *onceSink
	out    *outbox
	logger customlog.Logger

	teardown sync.Once
}

func (t *mqttTransport) connect() {
	token := t.client.Connect()
	if !token.WaitTimeout(t.cfg.ConnectTimeout()) {
		t.fail(fmt.Errorf("mqtt connect to %s timed out", t.target))
		return
	}
	if err := token.Error(); err != nil {
		t.fail(fmt.Errorf("mqtt connect to %s failed: %w", t.target, err))
	}
}

func (t *mqttTransport) onConnect(client mqtt.Client) {
	if t.out.closed() {
		client.Disconnect(0)
		return
	}
	token := client.Subscribe(t.cfg.SensorsTopic, t.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		t.sink.Message(msg.Payload())
	})
	if token.WaitTimeout(t.cfg.ConnectTimeout()) && token.Error() != nil {
		t.fail(fmt.Errorf("mqtt subscribe to %s failed: %w", t.cfg.SensorsTopic, token.Error()))
		return
	}

	t.logger.Infof("Connected to broker %s, subscribed to %s", t.target, t.cfg.SensorsTopic)
	t.sink.Opened()
	go t.writeLoop()
}

func (t *mqttTransport) onConnectionLost(_ mqtt.Client, err error) {
	t.fail(fmt.Errorf("mqtt connection to %s lost: %w", t.target, err))
}

func (t *mqttTransport) writeLoop() {
	for {
		select {
		case payload := <-t.out.ch:
			token := t.client.Publish(t.cfg.CommandTopic, t.cfg.QoS, false, payload)
			go func() {
				if token.Wait() && token.Error() != nil {
					t.logger.Warnf("Publish to %s failed: %v", t.cfg.CommandTopic, token.Error())
				}
			}()
		case <-t.out.done:
			return
		}
	}
}

func (t *mqttTransport) fail(err error) {
	if t.out.closed() {
		return
	}
	t.sink.Failed(err)
	t.shutdown()
}

func (t *mqttTransport) shutdown() {
	t.teardown.Do(func() {
		t.out.close()
		go func() {
			if t.client.IsConnected() {
				t.client.Disconnect(250)
			}
			t.sink.Closed()
		}()
	})
}

// Send implements Transport.
func (t *mqttTransport) Send(payload []byte) error {
	return t.out.push(payload)
}

// Close implements Transport.
func (t *mqttTransport) Close() error {
	t.shutdown()
	return nil
}
