package transport

import (
	"fmt"
	"net/netip"

	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/verrors"
)

// Manager is the Network Manager of spec.md §4.3: it owns the ConnTable
// and the send_to policy that picks a connection for an outbound envelope.
type Manager struct {
	Table   *ConnTable
	Handler FrameHandler

	// resolve maps a NodeID to its known dial-info-derived addresses; the
	// routing table owns this in practice, injected here to keep transport
	// free of a routing import.
	Resolve func(id types.NodeID) []netip.AddrPort
}

func NewManager(limits Limits, handler FrameHandler, resolve func(types.NodeID) []netip.AddrPort) *Manager {
	return &Manager{
		Table:   NewConnTable(limits),
		Handler: handler,
		Resolve: resolve,
	}
}

// SendTo implements spec.md §4.3's send_to(NodeID, envelope, sequencing_hint):
// NoPreference picks any live connection (preferring one already cached),
// PreferOrdered prefers TCP/WS/WSS over UDP, EnsureOrdered fails if no
// ordered transport is available.
func (m *Manager) SendTo(id types.NodeID, env *types.Envelope, hint types.Sequencing) error {
	addrs := m.Resolve(id)
	if len(addrs) == 0 {
		return fmt.Errorf("%w: no known address for %s", verrors.Unreachable, id)
	}

	var candidates []*Connection
	for _, addr := range addrs {
		candidates = append(candidates, m.Table.ConnectionsFor(addr)...)
	}

	pick := pickConnection(candidates, hint)
	if pick == nil {
		if hint == types.SequencingEnsureOrdered {
			return fmt.Errorf("%w: no ordered transport connected to %s", verrors.Unreachable, id)
		}
		return fmt.Errorf("%w: no live connection to %s", verrors.NoConnection, id)
	}
	return pick.Send(env)
}

func isOrdered(p types.Protocol) bool {
	return p == types.ProtocolTCP || p == types.ProtocolWS || p == types.ProtocolWSS
}

func pickConnection(candidates []*Connection, hint types.Sequencing) *Connection {
	switch hint {
	case types.SequencingPreferOrdered, types.SequencingEnsureOrdered:
		for _, c := range candidates {
			if isOrdered(c.Protocol()) {
				return c
			}
		}
		if hint == types.SequencingEnsureOrdered {
			return nil
		}
		fallthrough
	default:
		if len(candidates) > 0 {
			return candidates[0]
		}
		return nil
	}
}
