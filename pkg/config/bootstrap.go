package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// BootstrapFileName is the bootstrap configuration file looked up in the
// config directory.
const BootstrapFileName = "rov_bridge_config.yaml"

// BootstrapConfig holds the process configuration loaded at startup.
type BootstrapConfig struct {
	Logging   LoggingConfig         `yaml:"logging"`
	Server    BootstrapServerConfig `yaml:"server"`
	Gateway   GatewayConfig         `yaml:"gateway"`
	Transport TransportConfig       `yaml:"transport"`
	Data      DataConfig            `yaml:"data"`
}

// LoggingConfig holds logging settings from bootstrap
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogPath string `yaml:"log_path,omitempty"`
}

// BootstrapServerConfig holds HTTP server settings
type BootstrapServerConfig struct {
	HTTPPort int `yaml:"http_port"`
}

// GatewayConfig sizes the operator event pipeline.
type GatewayConfig struct {
	QueueSize        int `yaml:"queue_size"`
	ClientBufferSize int `yaml:"client_buffer_size"`
}

// TransportConfig holds the vehicle link settings.
type TransportConfig struct {
	DefaultTarget  string          `yaml:"default_target,omitempty"`
	SendBufferSize int             `yaml:"send_buffer_size"`
	Serial         SerialConfig    `yaml:"serial"`
	RosBridge      RosBridgeConfig `yaml:"rosbridge"`
	MQTT           MQTTConfig      `yaml:"mqtt"`
	ZeroMQ         ZeroMQConfig    `yaml:"zeromq"`
}

// SerialConfig holds serial port settings.
type SerialConfig struct {
	BaudRate int `yaml:"baud_rate"`
}

// RosBridgeConfig holds rosbridge websocket settings.
type RosBridgeConfig struct {
	CommandTopic       string `yaml:"command_topic"`
	SensorsTopic       string `yaml:"sensors_topic"`
	MessageType        string `yaml:"message_type"`
	HandshakeTimeoutMs int    `yaml:"handshake_timeout_ms"`
}

// MQTTConfig holds MQTT broker settings.
type MQTTConfig struct {
	ClientID         string `yaml:"client_id"`
	CommandTopic     string `yaml:"command_topic"`
	SensorsTopic     string `yaml:"sensors_topic"`
	QoS              byte   `yaml:"qos"`
	ConnectTimeoutMs int    `yaml:"connect_timeout_ms"`
}

// ZeroMQConfig holds ZeroMQ link settings. Commands go to the port in the
// target; telemetry is read from TelemetryPort on the same host.
type ZeroMQConfig struct {
	TelemetryPort int    `yaml:"telemetry_port"`
	CommandTopic  string `yaml:"command_topic"`
	SensorsTopic  string `yaml:"sensors_topic"`
}

// DataConfig holds data file settings.
type DataConfig struct {
	RovConfigFile string `yaml:"rov_config_file,omitempty"`
}

// HandshakeTimeout returns the rosbridge dial timeout.
func (c RosBridgeConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutMs) * time.Millisecond
}

// ConnectTimeout returns the MQTT connect timeout.
func (c MQTTConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

// DefaultBootstrapConfig returns the configuration used when no bootstrap
// file is given.
func DefaultBootstrapConfig() *BootstrapConfig {
	cfg := &BootstrapConfig{
		Logging: LoggingConfig{Level: "info"},
		Server:  BootstrapServerConfig{HTTPPort: 4000},
	}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills zero values left out of the bootstrap file.
func applyDefaults(cfg *BootstrapConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Gateway.QueueSize == 0 {
		cfg.Gateway.QueueSize = 64
	}
	if cfg.Gateway.ClientBufferSize == 0 {
		cfg.Gateway.ClientBufferSize = 32
	}

	t := &cfg.Transport
	if t.SendBufferSize == 0 {
		t.SendBufferSize = 8
	}
	if t.Serial.BaudRate == 0 {
		t.Serial.BaudRate = 115200
	}
	if t.RosBridge.CommandTopic == "" {
		t.RosBridge.CommandTopic = "/rov/command"
	}
	if t.RosBridge.SensorsTopic == "" {
		t.RosBridge.SensorsTopic = "/rov/sensors"
	}
	if t.RosBridge.MessageType == "" {
		t.RosBridge.MessageType = "std_msgs/String"
	}
	if t.RosBridge.HandshakeTimeoutMs == 0 {
		t.RosBridge.HandshakeTimeoutMs = 5000
	}
	if t.MQTT.ClientID == "" {
		t.MQTT.ClientID = "rov-bridge"
	}
	if t.MQTT.CommandTopic == "" {
		t.MQTT.CommandTopic = "rov/command"
	}
	if t.MQTT.SensorsTopic == "" {
		t.MQTT.SensorsTopic = "rov/sensors"
	}
	if t.MQTT.ConnectTimeoutMs == 0 {
		t.MQTT.ConnectTimeoutMs = 5000
	}
	if t.ZeroMQ.TelemetryPort == 0 {
		t.ZeroMQ.TelemetryPort = 5556
	}
	if t.ZeroMQ.CommandTopic == "" {
		t.ZeroMQ.CommandTopic = "rov.command"
	}
	if t.ZeroMQ.SensorsTopic == "" {
		t.ZeroMQ.SensorsTopic = "rov.sensors"
	}
}

// LoadBootstrapConfig loads rov_bridge_config.yaml from configDir.
func LoadBootstrapConfig(configDir string) (*BootstrapConfig, error) {
	bootstrapConfigPath := filepath.Join(configDir, BootstrapFileName)

	data, err := os.ReadFile(bootstrapConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error reading bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}

	var bootstrapCfg BootstrapConfig
	if err := yaml.Unmarshal(data, &bootstrapCfg); err != nil {
		return nil, fmt.Errorf("error parsing bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}

	if bootstrapCfg.Server.HTTPPort == 0 {
		return nil, fmt.Errorf("missing required field in bootstrap config: server.http_port")
	}
	if bootstrapCfg.Server.HTTPPort < 0 || bootstrapCfg.Server.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid value in bootstrap config: server.http_port %d", bootstrapCfg.Server.HTTPPort)
	}
	if bootstrapCfg.Gateway.QueueSize < 0 || bootstrapCfg.Gateway.ClientBufferSize < 0 || bootstrapCfg.Transport.SendBufferSize < 0 {
		return nil, fmt.Errorf("invalid value in bootstrap config: buffer sizes must not be negative")
	}

	applyDefaults(&bootstrapCfg)

	if bootstrapCfg.Data.RovConfigFile != "" && !filepath.IsAbs(bootstrapCfg.Data.RovConfigFile) {
		bootstrapCfg.Data.RovConfigFile = filepath.Join(configDir, bootstrapCfg.Data.RovConfigFile)
	}

	return &bootstrapCfg, nil
}
