package types

// ReceiptLen is the length in bytes of a Receipt token (spec.md §4.6:
// "16 bytes CSPRNG").
const ReceiptLen = 16

// Receipt is a single-use opaque token proving reachability (hole punch,
// reverse connect) or rendezvous completion. Receipt tracking (TTL,
// dedup) lives in package route; this type is just the wire shape.
type Receipt [ReceiptLen]byte

// TunnelID names a long-lived tunnel across its Start/Complete/Cancel
// lifecycle (spec.md §4.7).
type TunnelID uint64

// TunnelMode distinguishes a raw byte-forwarding tunnel from a TURN-style
// relayed one (recovered from original_source/veilid-core, not present in
// the distilled spec — see SPEC_FULL.md §4.7).
type TunnelMode byte

const (
	TunnelModeRaw TunnelMode = iota
	TunnelModeTurn
)

// TunnelState is the tunnel lifecycle spec.md §4.7 names.
type TunnelState byte

const (
	TunnelStatePartial TunnelState = iota
	TunnelStateFull
	TunnelStateExpired
	TunnelStateCancelled
)

func (s TunnelState) String() string {
	switch s {
	case TunnelStatePartial:
		return "Partial"
	case TunnelStateFull:
		return "Full"
	case TunnelStateExpired:
		return "Expired"
	default:
		return "Cancelled"
	}
}
