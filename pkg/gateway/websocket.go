package gateway

import (
	"errors"
	"syscall"

	"github.com/gofiber/contrib/websocket"
)

// Conn is the subset of a websocket connection the gateway uses.
// *websocket.Conn from gofiber/contrib satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Serve runs one operator connection until it closes. Reads happen on the
// calling goroutine; a second goroutine drains the client's outbound queue.
func (g *Gateway) Serve(conn Conn) {
	client := g.Join()

	writerDone := make(chan struct{})
	go g.writeLoop(conn, client, writerDone)

	reason := g.readLoop(conn, client)
	g.Leave(client, reason)
	conn.Close()
	<-writerDone
}

func (g *Gateway) readLoop(conn Conn, client *Client) string {
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
					return "connection reset"
				}
				g.logger.Warnf("Operator WS read error from %s: %v", client.ID(), err)
				return err.Error()
			}
			return "closed"
		}

		if mt != websocket.TextMessage {
			g.logger.Infof("Ignoring non-text WS message type %d from %s", mt, client.ID())
			continue
		}
		_ = g.Dispatch(client.ID(), msg)
	}
}

func (g *Gateway) writeLoop(conn Conn, client *Client, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case frame := <-client.Outbound():
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					g.logger.Debugf("Write to %s failed: %v", client.ID(), err)
				}
				// Unblock the reader so the client is removed.
				conn.Close()
				return
			}
		case <-client.Done():
			return
		}
	}
}
