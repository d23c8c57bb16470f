package types

import (
	"fmt"
	"net/netip"
)

// Protocol is one of the four transports spec.md enumerates. Non-goals
// explicitly rule out negotiating anything beyond these.
type Protocol byte

const (
	ProtocolInvalid Protocol = iota
	ProtocolUDP
	ProtocolTCP
	ProtocolWS
	ProtocolWSS
)

func (p Protocol) String() string {
	switch p {
	case ProtocolUDP:
		return "UDP"
	case ProtocolTCP:
		return "TCP"
	case ProtocolWS:
		return "WS"
	case ProtocolWSS:
		return "WSS"
	default:
		return "INVALID"
	}
}

// Sequencing captures the caller's preference between raw throughput and
// ordered delivery, per spec.md §4.3 / §5.
type Sequencing byte

const (
	SequencingNoPreference Sequencing = iota
	SequencingPreferOrdered
	SequencingEnsureOrdered
)

// DialInfoClass classifies how a DialInfo can be reached, per spec.md §3.
// Values are declared worst-to-best is not required, but transitions are
// monotone-worsening within a session absent an explicit reclassification
// (enforced by reachability.Classifier, not this type).
type DialInfoClass byte

const (
	DialInfoClassDirect DialInfoClass = iota
	DialInfoClassMapped
	DialInfoClassFullConeNAT
	DialInfoClassAddressRestrictedNAT
	DialInfoClassPortRestrictedNAT
	DialInfoClassBlocked
)

func (c DialInfoClass) String() string {
	switch c {
	case DialInfoClassDirect:
		return "Direct"
	case DialInfoClassMapped:
		return "Mapped"
	case DialInfoClassFullConeNAT:
		return "FullConeNAT"
	case DialInfoClassAddressRestrictedNAT:
		return "AddressRestrictedNAT"
	case DialInfoClassPortRestrictedNAT:
		return "PortRestrictedNAT"
	default:
		return "Blocked"
	}
}

// IsInboundCapable reports whether this class alone would make a node
// InboundCapable per spec.md §4.4 rule 4.
func (c DialInfoClass) IsInboundCapable() bool {
	switch c {
	case DialInfoClassDirect, DialInfoClassMapped, DialInfoClassFullConeNAT:
		return true
	default:
		return false
	}
}

// NetworkClass is derived from the set of DialInfoClasses a node holds
// (spec.md §4.4).
type NetworkClass byte

const (
	NetworkClassInboundCapable NetworkClass = iota
	NetworkClassOutboundOnly
	NetworkClassWebApp
)

func (c NetworkClass) String() string {
	switch c {
	case NetworkClassInboundCapable:
		return "InboundCapable"
	case NetworkClassOutboundOnly:
		return "OutboundOnly"
	default:
		return "WebApp"
	}
}

// DialInfo is a protocol + address a node advertises as a way to reach it
// inbound. Path is only meaningful for WS/WSS.
type DialInfo struct {
	Protocol Protocol
	Addr     netip.AddrPort
	Path     string // optional HTTP path, WS/WSS only
}

func (d DialInfo) String() string {
	if d.Path != "" {
		return fmt.Sprintf("%s://%s%s", d.Protocol, d.Addr, d.Path)
	}
	return fmt.Sprintf("%s://%s", d.Protocol, d.Addr)
}

// DialInfoDetail pairs a DialInfo with the reachability class the
// classifier assigned it. Only DialInfoDetails are ever advertised in a
// NodeInfo — a bare, unvalidated DialInfo never leaves the local node
// (spec.md §3: "validated by reachability probe before advertised").
type DialInfoDetail struct {
	DialInfo DialInfo
	Class    DialInfoClass
}
