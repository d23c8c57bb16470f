package transport

import (
	"fmt"
	"net"
	"net/http"

	"golang.org/x/net/websocket"

	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/verrors"
	"github.com/veilnet/veilnet/wire"
)

// writeWSFrame sends payload as one binary WebSocket frame (spec.md §6:
// "WS/WSS (binary frames, one envelope per frame)"). golang.org/x/net/websocket
// is the teacher's own dependency for this concern — its go.mod lists it,
// though its core packages never dial out with it; here it is the actual
// WS/WSS transport.
func writeWSFrame(conn net.Conn, payload []byte) error {
	ws, ok := conn.(*websocket.Conn)
	if !ok {
		return fmt.Errorf("%w: not a websocket connection", verrors.MalformedMessage)
	}
	if len(payload) > wire.MaxEnvelopeSize {
		return fmt.Errorf("%w: frame of %d bytes exceeds cap", verrors.MalformedMessage, len(payload))
	}
	if err := websocket.Message.Send(ws, payload); err != nil {
		return fmt.Errorf("%w: %s", verrors.NoConnection, err)
	}
	return nil
}

func readWSLoop(c *Connection, ws *websocket.Conn, handler FrameHandler) {
	defer c.Close()
	for {
		var buf []byte
		if err := websocket.Message.Receive(ws, &buf); err != nil {
			return
		}
		c.touch()
		if len(buf) == 0 {
			continue // keepalive
		}
		env, err := wire.DecodeEnvelope(buf)
		if err != nil {
			return
		}
		handler(c, env)
	}
}

// wsHandler builds an http.Handler that accepts inbound WS/WSS connections
// into table, dispatching decoded envelopes to handler.
func wsHandler(table *ConnTable, secure bool, handler FrameHandler) http.Handler {
	proto := types.ProtocolWS
	if secure {
		proto = types.ProtocolWSS
	}
	return websocket.Handler(func(ws *websocket.Conn) {
		ap, err := parseHostPort(ws.Request().RemoteAddr)
		if err != nil {
			return
		}
		c, err := table.acceptInbound(ws, proto, ap)
		if err != nil {
			return
		}
		readWSLoop(c, ws, handler)
	})
}
