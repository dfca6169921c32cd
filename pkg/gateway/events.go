package gateway

import (
	"encoding/json"
	"time"

	"github.com/open-teleop/rov-bridge/domain/teleop"
)

// Inbound events sent by operator consoles.
const (
	EventConnectionStatus = "rov:connection-status"
	EventConnect          = "rov:connect"
	EventDisconnect       = "rov:disconnect"
	EventFindComPorts     = "rov:find-com-ports"
	EventControllerData   = "controller:data"
	EventConfigGet        = "config:get"
	EventConfigUpdate     = "config:update"
	EventThrusterTest     = "config:thruster-test"
	EventGripperTest      = "config:gripper-test"
)

// Outbound events. EventConnectionStatus is also sent outbound.
const (
	EventLog           = "rov:log"
	EventSensorData    = "rov:sensor-data"
	EventError         = "rov:error"
	EventComPortsList  = "rov:com-ports-list"
	EventConfigData    = "config:data"
	EventConfigUpdated = "config:updated"
	EventWelcome       = "connection-status"
)

// timestampLayout matches the ISO-8601 form consoles already parse.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Frame is the JSON envelope of every websocket message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// LogPayload is the payload of rov:log.
type LogPayload struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// ErrorPayload is the payload of rov:error.
type ErrorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// ConfigUpdatedPayload is the payload of config:updated.
type ConfigUpdatedPayload struct {
	Success   bool                    `json:"success"`
	NewConfig teleop.RovConfiguration `json:"newConfig"`
}

// WelcomePayload is sent once to every client that joins.
type WelcomePayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"clientId"`
	Timestamp string `json:"timestamp"`
}

func timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// encodeFrame marshals one outbound frame.
func encodeFrame(event string, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: payload})
}
