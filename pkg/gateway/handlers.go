package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/open-teleop/rov-bridge/domain/teleop"
	"github.com/open-teleop/rov-bridge/pkg/link"
)

var errLinkUnavailable = errors.New("link not attached")

func (g *Gateway) registerRoutes() {
	g.routes.Register(EventConnectionStatus, g.handleConnectionStatus)
	g.routes.Register(EventConnect, g.handleConnect)
	g.routes.Register(EventDisconnect, g.handleDisconnect)
	g.routes.Register(EventFindComPorts, g.handleFindComPorts)
	g.routes.Register(EventControllerData, g.handleControllerData)
	g.routes.Register(EventConfigGet, g.handleConfigGet)
	g.routes.Register(EventConfigUpdate, g.handleConfigUpdate)
	g.routes.Register(EventThrusterTest, g.handleThrusterTest)
	g.routes.Register(EventGripperTest, g.handleGripperTest)
}

// decode unmarshals data into v. A missing payload decodes as JSON null.
func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return json.Unmarshal(data, v)
}

func (g *Gateway) handleConnectionStatus(clientID string, _ json.RawMessage) error {
	l := g.currentLink()
	if l == nil {
		return errLinkUnavailable
	}
	g.broadcast(EventConnectionStatus, l.Status())
	return nil
}

func (g *Gateway) handleConnect(clientID string, data json.RawMessage) error {
	l := g.currentLink()
	if l == nil {
		g.sendError(clientID, "ROV link is not ready.", nil)
		return errLinkUnavailable
	}

	var target string
	if err := decode(data, &target); err != nil || strings.TrimSpace(target) == "" {
		g.sendError(clientID, "No COM Port was provided.", nil)
		return nil
	}

	if err := l.Connect(target); err != nil {
		g.sendError(clientID, "Failed to connect.", err)
	}
	return nil
}

func (g *Gateway) handleDisconnect(clientID string, _ json.RawMessage) error {
	l := g.currentLink()
	if l == nil {
		return errLinkUnavailable
	}
	l.Disconnect()
	return nil
}

func (g *Gateway) handleFindComPorts(clientID string, _ json.RawMessage) error {
	ports, err := g.ports()
	if err != nil {
		g.Log(fmt.Sprintf("Error listing serial ports: %v", err))
		g.sendError(clientID, "Failed to find COM ports.", err)
		return nil
	}
	g.Log(fmt.Sprintf("Found %d available ports.", len(ports)))
	g.sendTo(clientID, EventComPortsList, ports)
	return nil
}

func (g *Gateway) handleControllerData(clientID string, data json.RawMessage) error {
	l := g.currentLink()
	if l == nil || !l.IsReady() {
		return nil
	}

	var reading teleop.ControllerReading
	if err := decode(data, &reading); err != nil {
		g.logger.Warnf("Dropping malformed controller data from %s: %v", clientID, err)
		return nil
	}

	return g.send(l, teleop.Compose(reading, g.config.Get()))
}

func (g *Gateway) handleConfigGet(clientID string, _ json.RawMessage) error {
	g.sendTo(clientID, EventConfigData, g.config.Get())
	return nil
}

// handleConfigUpdate applies the update; the store's publisher broadcasts
// config:updated to every console.
func (g *Gateway) handleConfigUpdate(clientID string, data json.RawMessage) error {
	var update teleop.ConfigurationUpdate
	if err := decode(data, &update); err != nil {
		g.sendError(clientID, "Invalid configuration update.", err)
		return nil
	}
	if _, err := g.config.Update(update); err != nil {
		g.sendError(clientID, "Invalid configuration update.", err)
	}
	return nil
}

func (g *Gateway) handleThrusterTest(clientID string, data json.RawMessage) error {
	l := g.currentLink()
	if l == nil || !l.IsReady() {
		return nil
	}

	var req teleop.ThrusterTest
	if err := decode(data, &req); err != nil {
		g.sendError(clientID, "Invalid thruster test.", err)
		return nil
	}
	cmd, err := teleop.ThrusterTestCommand(req)
	if err != nil {
		g.sendError(clientID, "Invalid thruster test.", err)
		return nil
	}
	return g.send(l, cmd)
}

func (g *Gateway) handleGripperTest(clientID string, data json.RawMessage) error {
	l := g.currentLink()
	if l == nil || !l.IsReady() {
		return nil
	}

	var req teleop.GripperTest
	if err := decode(data, &req); err != nil {
		g.sendError(clientID, "Invalid gripper test.", err)
		return nil
	}
	cmd, err := teleop.GripperTestCommand(req)
	if err != nil {
		g.sendError(clientID, "Invalid gripper test.", err)
		return nil
	}
	return g.send(l, cmd)
}

// send hands cmd to the link. A link that went away between the readiness
// check and the send is not an error.
func (g *Gateway) send(l Link, cmd teleop.OutboundCommand) error {
	if err := l.Send(cmd); err != nil && !errors.Is(err, link.ErrNotReady) {
		g.logger.Debugf("Command not sent: %v", err)
	}
	return nil
}
