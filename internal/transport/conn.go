// Package transport implements the client-facing WebSocket channel of
// spec.md §6: a persistent bidirectional text-frame connection carrying
// ping/pong, commands and events. Grounded on the teacher's internal/ws
// package (gorilla/websocket, ReadPump/WritePump pair, pongWait/pingPeriod
// ticker), generalized from the teacher's single global Hub to one Room
// Mailbox per room plus a process-wide session registry for eviction.
package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rtcsignal/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 65536
	sendBuffer     = 64
)

var ErrSendBufferFull = errors.New("transport: send buffer full")

// Conn adapts a gorilla websocket connection to rpcsession.Channel. One Conn
// backs exactly one Session: the server creates a fresh Session for every
// accepted connection and never re-Attaches a Conn to an earlier,
// Disconnected Session.
type Conn struct {
	ws *websocket.Conn

	// idleTimeout/pingInterval are the negotiated rpc.idle_timeout/
	// rpc.ping_interval of spec.md §4.1 (Config.RPC), driving the read
	// deadline and the server Ping ticker respectively.
	idleTimeout  time.Duration
	pingInterval time.Duration

	mu     sync.Mutex
	send   chan protocol.Frame
	closed bool
}

func NewConn(ws *websocket.Conn, idleTimeout, pingInterval time.Duration) *Conn {
	return &Conn{ws: ws, idleTimeout: idleTimeout, pingInterval: pingInterval, send: make(chan protocol.Frame, sendBuffer)}
}

// SendEvent implements rpcsession.Channel. It never blocks: a full buffer
// means this transport can't keep up, which the session layer treats as a
// transport failure: Session.SendEvent detaches the channel, and the session
// finishes with reason Lost unless a channel is attached again within the
// reconnect window.
func (c *Conn) SendEvent(name string, data any) error {
	frame, err := protocol.EventFrame(name, data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSendBufferFull
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close implements rpcsession.Channel; safe to call more than once.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump blocks reading frames off the wire until the connection errors,
// closes, or goes idle, dispatching pings/pongs/commands to the supplied
// handlers. onIdleTimeout fires instead of a silent return when the read
// deadline expires without traffic (spec.md §4.4/scenario 6: a Member who
// stops responding closes with reason Idle, distinct from a dropped wire).
// Grounded on the teacher's Client.ReadPump (SetReadLimit/SetReadDeadline/
// SetPongHandler triple, the idle-aware deadline reset on every pong).
func (c *Conn) ReadPump(onPong func(seq int64), onCommand func(name string, data json.RawMessage), onIdleTimeout func()) {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.idleTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.idleTimeout))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				onIdleTimeout()
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("websocket read error", "component", "transport", "error", err)
			}
			return
		}

		var frame protocol.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			slog.Warn("malformed frame", "component", "transport", "error", err)
			continue
		}

		c.ws.SetReadDeadline(time.Now().Add(c.idleTimeout))

		switch {
		case frame.Pong != nil:
			onPong(*frame.Pong)
		case frame.Command != "":
			onCommand(frame.Command, frame.Data)
		}
	}
}

// WritePump drains the send buffer onto the wire and emits a server Ping
// every pingInterval, until the buffer is closed or a write fails. Grounded
// on the teacher's Client.WritePump ticker/select pairing.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	defer c.ws.Close()

	var seq int64
	for {
		select {
		case frame, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(frame); err != nil {
				slog.Error("websocket write error", "component", "transport", "error", err)
				return
			}
		case <-ticker.C:
			seq++
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(protocol.PingFrame(seq)); err != nil {
				return
			}
		}
	}
}
