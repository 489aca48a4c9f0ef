package transport

import (
	"fmt"

	socket "github.com/zishang520/socket.io/clients/socket/v3"
	siotypes "github.com/zishang520/socket.io/v3/pkg/types"
)

// DialSocketIO opens a Socket.IO connection to the backend.
//
// Library-level reconnection is disabled: the Client owns the reconnect
// state machine so attempts stay bounded and observable.
func DialSocketIO(opts Options) (Conn, error) {
	sopts := socket.DefaultOptions()
	sopts.SetPath(opts.Path)
	sopts.SetTransports(siotypes.NewSet(socket.Polling, socket.WebSocket))
	sopts.SetReconnection(false)
	sopts.SetAuth(map[string]interface{}{
		"token":      opts.Token,
		"clientType": "user-scoped",
	})

	sock, err := socket.Connect(opts.ServerURL, sopts)
	if err != nil {
		return nil, fmt.Errorf("socket.io connect: %w", err)
	}
	return &socketIOConn{sock: sock}, nil
}

// socketIOConn adapts a Socket.IO socket to the Conn surface.
type socketIOConn struct {
	sock *socket.Socket
}

var _ Conn = (*socketIOConn)(nil)

func (c *socketIOConn) OnConnect(fn func()) {
	c.sock.On(siotypes.EventName("connect"), func(args ...any) {
		fn()
	})
}

func (c *socketIOConn) OnConnectError(fn func(err error)) {
	c.sock.On(siotypes.EventName("connect_error"), func(args ...any) {
		if len(args) > 0 {
			if err, ok := args[0].(error); ok {
				fn(err)
				return
			}
			fn(fmt.Errorf("connect_error: %v", args[0]))
			return
		}
		fn(fmt.Errorf("connect_error"))
	})
}

func (c *socketIOConn) OnDisconnect(fn func(reason string)) {
	c.sock.On(siotypes.EventName("disconnect"), func(args ...any) {
		reason := ""
		if len(args) > 0 {
			if r, ok := args[0].(string); ok {
				reason = r
			}
		}
		fn(reason)
	})
}

func (c *socketIOConn) OnAnyEvent(fn func(event string, payload map[string]any)) {
	// OnAny passes the event name as the first argument, the payload after.
	c.sock.OnAny(func(args ...any) {
		if len(args) == 0 {
			return
		}
		name, ok := args[0].(string)
		if !ok {
			return
		}
		var data map[string]interface{}
		if len(args) > 1 {
			if m, ok := args[1].(map[string]interface{}); ok {
				data = m
			}
		}
		go fn(name, data)
	})
}

func (c *socketIOConn) Connected() bool {
	return c.sock.Connected()
}

func (c *socketIOConn) Emit(event string, payload map[string]any) {
	c.sock.Emit(event, payload)
}

func (c *socketIOConn) Close() {
	c.sock.Disconnect()
}
