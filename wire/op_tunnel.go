package wire

import "github.com/veilnet/veilnet/types"

// StartTunnelQ requests a new tunnel of the given mode (spec.md §4.7:
// "Start/Complete/CancelTunnel ... Partial → Full → (Expired|Cancelled)").
type StartTunnelQ struct {
	TunnelID types.TunnelID
	Mode     types.TunnelMode
}

func (StartTunnelQ) OpCode() types.OpCode { return types.OpCodeStartTunnelQ }
func (q StartTunnelQ) wireSize() int      { return 8 + 1 }
func (q StartTunnelQ) WireSize() int      { return 8 + 1 }
func (q StartTunnelQ) wireEncode(out []byte) ([]byte, error) {
	out = wireAppendUint64(out, uint64(q.TunnelID))
	out = wireAppendUint8(out, uint8(q.Mode))
	return out, nil
}
func (q *StartTunnelQ) wireDecode(data []byte) error {
	var id uint64
	if !wireChopUint64(&id, &data) {
		return malformed("StartTunnelQ: truncated id")
	}
	q.TunnelID = types.TunnelID(id)
	var mode uint8
	if !wireChopUint8(&mode, &data) {
		return malformed("StartTunnelQ: truncated mode")
	}
	q.Mode = types.TunnelMode(mode)
	if len(data) != 0 {
		return malformed("StartTunnelQ: trailing bytes")
	}
	return nil
}

type StartTunnelA struct {
	Accepted bool
	TunnelID types.TunnelID
}

func (StartTunnelA) OpCode() types.OpCode { return types.OpCodeStartTunnelA }
func (a StartTunnelA) wireSize() int      { return 1 + 8 }
func (a StartTunnelA) WireSize() int      { return 1 + 8 }
func (a StartTunnelA) wireEncode(out []byte) ([]byte, error) {
	out = wireAppendBool(out, a.Accepted)
	out = wireAppendUint64(out, uint64(a.TunnelID))
	return out, nil
}
func (a *StartTunnelA) wireDecode(data []byte) error {
	if !wireChopBool(&a.Accepted, &data) {
		return malformed("StartTunnelA: truncated")
	}
	var id uint64
	if !wireChopUint64(&id, &data) {
		return malformed("StartTunnelA: truncated id")
	}
	a.TunnelID = types.TunnelID(id)
	if len(data) != 0 {
		return malformed("StartTunnelA: trailing bytes")
	}
	return nil
}

// CompleteTunnelQ carries the far end's local dial info so both sides can
// attempt direct connection before falling back to relaying (mode Turn).
type CompleteTunnelQ struct {
	TunnelID      types.TunnelID
	LocalDialInfo types.DialInfo
}

func (CompleteTunnelQ) OpCode() types.OpCode { return types.OpCodeCompleteTunnelQ }
func (q CompleteTunnelQ) wireSize() int      { return 8 + dialInfoSize(q.LocalDialInfo) }
func (q CompleteTunnelQ) WireSize() int      { return q.wireSize() }
func (q CompleteTunnelQ) wireEncode(out []byte) ([]byte, error) {
	out = wireAppendUint64(out, uint64(q.TunnelID))
	out = encodeDialInfo(out, q.LocalDialInfo)
	return out, nil
}
func (q *CompleteTunnelQ) wireDecode(data []byte) error {
	var id uint64
	if !wireChopUint64(&id, &data) {
		return malformed("CompleteTunnelQ: truncated id")
	}
	q.TunnelID = types.TunnelID(id)
	if !chopDialInfo(&q.LocalDialInfo, &data) {
		return malformed("CompleteTunnelQ: truncated dial info")
	}
	if len(data) != 0 {
		return malformed("CompleteTunnelQ: trailing bytes")
	}
	return nil
}

type CompleteTunnelA struct{ Accepted bool }

func (CompleteTunnelA) OpCode() types.OpCode { return types.OpCodeCompleteTunnelA }
func (a CompleteTunnelA) wireSize() int      { return 1 }
func (a CompleteTunnelA) WireSize() int      { return 1 }
func (a CompleteTunnelA) wireEncode(out []byte) ([]byte, error) {
	return wireAppendBool(out, a.Accepted), nil
}
func (a *CompleteTunnelA) wireDecode(data []byte) error {
	if !wireChopBool(&a.Accepted, &data) {
		return malformed("CompleteTunnelA: truncated")
	}
	if len(data) != 0 {
		return malformed("CompleteTunnelA: trailing bytes")
	}
	return nil
}

type CancelTunnelQ struct{ TunnelID types.TunnelID }

func (CancelTunnelQ) OpCode() types.OpCode { return types.OpCodeCancelTunnelQ }
func (q CancelTunnelQ) wireSize() int      { return 8 }
func (q CancelTunnelQ) WireSize() int      { return 8 }
func (q CancelTunnelQ) wireEncode(out []byte) ([]byte, error) {
	return wireAppendUint64(out, uint64(q.TunnelID)), nil
}
func (q *CancelTunnelQ) wireDecode(data []byte) error {
	var id uint64
	if !wireChopUint64(&id, &data) {
		return malformed("CancelTunnelQ: truncated")
	}
	q.TunnelID = types.TunnelID(id)
	if len(data) != 0 {
		return malformed("CancelTunnelQ: trailing bytes")
	}
	return nil
}

type CancelTunnelA struct{ Accepted bool }

func (CancelTunnelA) OpCode() types.OpCode { return types.OpCodeCancelTunnelA }
func (a CancelTunnelA) wireSize() int      { return 1 }
func (a CancelTunnelA) WireSize() int      { return 1 }
func (a CancelTunnelA) wireEncode(out []byte) ([]byte, error) {
	return wireAppendBool(out, a.Accepted), nil
}
func (a *CancelTunnelA) wireDecode(data []byte) error {
	if !wireChopBool(&a.Accepted, &data) {
		return malformed("CancelTunnelA: truncated")
	}
	if len(data) != 0 {
		return malformed("CancelTunnelA: trailing bytes")
	}
	return nil
}
