package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/net/websocket"

	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/verrors"
)

// Listen brings up one listener for (protocol, address), per spec.md §4.3:
// "Listens on each configured (protocol, address) pair." WS/WSS are not
// handled here: ListenWS returns an http.Handler, which the caller serves
// from its own http.Server alongside any other HTTP routes.
func (m *Manager) Listen(protocol types.Protocol, address string) (net.Listener, error) {
	switch protocol {
	case types.ProtocolTCP:
		return m.listenTCP(address)
	case types.ProtocolUDP:
		return nil, m.listenUDP(address)
	default:
		return nil, fmt.Errorf("%w: use ListenWS for WS/WSS", verrors.InvalidOperation)
	}
}

func (m *Manager) listenTCP(address string) (net.Listener, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", verrors.Unreachable, err)
	}
	tuneListener(l)
	go m.acceptTCPLoop(l)
	return l, nil
}

func (m *Manager) acceptTCPLoop(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		tuneConn(conn)
		ap, err := parseHostPort(conn.RemoteAddr().String())
		if err != nil {
			_ = conn.Close()
			continue
		}
		c, err := m.Table.acceptInbound(conn, types.ProtocolTCP, ap)
		if err != nil {
			_ = conn.Close()
			continue
		}
		go readTCPLoop(c, conn, m.Handler)
	}
}

func (m *Manager) listenUDP(address string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return fmt.Errorf("%w: %s", verrors.Unreachable, err)
	}
	pc, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("%w: %s", verrors.Unreachable, err)
	}
	go readUDPLoop(pc, m.Table, m.Handler)
	return nil
}

// ListenWS returns an http.Handler serving WS (tagged as WSS when secure is
// true) at the given HTTP path, per spec.md §6: "WS/WSS (binary frames,
// one envelope per frame)". tlsConfig is not used here; TLS termination is
// up to the http.Server that serves the handler.
func (m *Manager) ListenWS(path string, secure bool, tlsConfig *tls.Config) http.Handler {
	return wsHandler(m.Table, secure, m.Handler)
}

// Dial opens an outbound connection to a peer's DialInfo, registering it in
// the ConnTable so subsequent SendTo calls can reuse it.
func (m *Manager) Dial(info types.DialInfo) (*Connection, error) {
	switch info.Protocol {
	case types.ProtocolTCP:
		return m.dialTCP(info)
	case types.ProtocolWS, types.ProtocolWSS:
		return m.dialWS(info)
	case types.ProtocolUDP:
		return m.dialUDP(info)
	default:
		return nil, fmt.Errorf("%w: unsupported protocol %s", verrors.InvalidOperation, info.Protocol)
	}
}

func (m *Manager) dialTCP(info types.DialInfo) (*Connection, error) {
	conn, err := net.Dial("tcp", info.Addr.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", verrors.Unreachable, err)
	}
	tuneConn(conn)
	c, err := m.Table.acceptInbound(conn, types.ProtocolTCP, info.Addr)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	go readTCPLoop(c, conn, m.Handler)
	return c, nil
}

func (m *Manager) dialWS(info types.DialInfo) (*Connection, error) {
	scheme := "ws"
	if info.Protocol == types.ProtocolWSS {
		scheme = "wss"
	}
	origin := fmt.Sprintf("http://%s", info.Addr)
	url := fmt.Sprintf("%s://%s%s", scheme, info.Addr, info.Path)
	ws, err := websocket.Dial(url, "", origin)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", verrors.Unreachable, err)
	}
	c, err := m.Table.acceptInbound(ws, info.Protocol, info.Addr)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	go readWSLoop(c, ws, m.Handler)
	return c, nil
}

func (m *Manager) dialUDP(info types.DialInfo) (*Connection, error) {
	pc, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", verrors.Unreachable, err)
	}
	go readUDPLoop(pc, m.Table, m.Handler)
	return m.Table.udpConnFor(pc, info.Addr), nil
}
