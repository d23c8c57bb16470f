package wire

import "github.com/veilnet/veilnet/types"

// AppCallQ/AppCallA/AppMessage are opaque application payloads: the core
// only frames and routes them (spec.md §4.7).
type AppCallQ struct{ Payload []byte }

func (AppCallQ) OpCode() types.OpCode { return types.OpCodeAppCallQ }
func (q AppCallQ) wireSize() int      { return 4 + len(q.Payload) }
func (q AppCallQ) WireSize() int      { return q.wireSize() }
func (q AppCallQ) wireEncode(out []byte) ([]byte, error) {
	return wireAppendBytes(out, q.Payload), nil
}
func (q *AppCallQ) wireDecode(data []byte) error {
	if !wireChopBytes(&q.Payload, &data) {
		return malformed("AppCallQ: truncated")
	}
	if len(data) != 0 {
		return malformed("AppCallQ: trailing bytes")
	}
	return nil
}

type AppCallA struct{ Payload []byte }

func (AppCallA) OpCode() types.OpCode { return types.OpCodeAppCallA }
func (a AppCallA) wireSize() int      { return 4 + len(a.Payload) }
func (a AppCallA) WireSize() int      { return a.wireSize() }
func (a AppCallA) wireEncode(out []byte) ([]byte, error) {
	return wireAppendBytes(out, a.Payload), nil
}
func (a *AppCallA) wireDecode(data []byte) error {
	if !wireChopBytes(&a.Payload, &data) {
		return malformed("AppCallA: truncated")
	}
	if len(data) != 0 {
		return malformed("AppCallA: trailing bytes")
	}
	return nil
}

type AppMessage struct{ Payload []byte }

func (AppMessage) OpCode() types.OpCode { return types.OpCodeAppMessage }
func (m AppMessage) wireSize() int      { return 4 + len(m.Payload) }
func (m AppMessage) WireSize() int      { return m.wireSize() }
func (m AppMessage) wireEncode(out []byte) ([]byte, error) {
	return wireAppendBytes(out, m.Payload), nil
}
func (m *AppMessage) wireDecode(data []byte) error {
	if !wireChopBytes(&m.Payload, &data) {
		return malformed("AppMessage: truncated")
	}
	if len(data) != 0 {
		return malformed("AppMessage: trailing bytes")
	}
	return nil
}

// SignalKind discriminates the two rendezvous mechanisms spec.md §4.4
// relies on.
type SignalKind uint8

const (
	SignalHolePunch SignalKind = iota
	SignalReverseConnect
)

// Signal carries a hole-punch or reverse-connect rendezvous request
// (spec.md §4.7).
type Signal struct {
	Kind    SignalKind
	Target  types.DialInfo
	Receipt types.Receipt
}

func (Signal) OpCode() types.OpCode { return types.OpCodeSignal }
func (s Signal) wireSize() int      { return 1 + dialInfoSize(s.Target) + types.ReceiptLen }
func (s Signal) WireSize() int      { return s.wireSize() }
func (s Signal) wireEncode(out []byte) ([]byte, error) {
	out = wireAppendUint8(out, uint8(s.Kind))
	out = encodeDialInfo(out, s.Target)
	out = wireAppendFixed(out, s.Receipt[:])
	return out, nil
}
func (s *Signal) wireDecode(data []byte) error {
	var k uint8
	if !wireChopUint8(&k, &data) {
		return malformed("Signal: truncated kind")
	}
	s.Kind = SignalKind(k)
	if !chopDialInfo(&s.Target, &data) {
		return malformed("Signal: truncated target")
	}
	if !wireChopFixed(s.Receipt[:], &data) {
		return malformed("Signal: truncated receipt")
	}
	if len(data) != 0 {
		return malformed("Signal: trailing bytes")
	}
	return nil
}

// ValidateDialInfo asks the receiver to attempt to reach DialInfo and
// return Receipt out-of-band (spec.md §4.4). It is a Statement: no Answer
// is expected.
type ValidateDialInfo struct {
	DialInfo types.DialInfo
	Receipt  types.Receipt
}

func (ValidateDialInfo) OpCode() types.OpCode { return types.OpCodeValidateDialInfo }
func (v ValidateDialInfo) wireSize() int      { return dialInfoSize(v.DialInfo) + types.ReceiptLen }
func (v ValidateDialInfo) WireSize() int      { return v.wireSize() }
func (v ValidateDialInfo) wireEncode(out []byte) ([]byte, error) {
	out = encodeDialInfo(out, v.DialInfo)
	out = wireAppendFixed(out, v.Receipt[:])
	return out, nil
}
func (v *ValidateDialInfo) wireDecode(data []byte) error {
	if !chopDialInfo(&v.DialInfo, &data) {
		return malformed("ValidateDialInfo: truncated dial info")
	}
	if !wireChopFixed(v.Receipt[:], &data) {
		return malformed("ValidateDialInfo: truncated receipt")
	}
	if len(data) != 0 {
		return malformed("ValidateDialInfo: trailing bytes")
	}
	return nil
}

// ReturnReceipt is the out-of-band delivery of a previously issued Receipt
// (spec.md §4.4).
type ReturnReceipt struct{ Receipt types.Receipt }

func (ReturnReceipt) OpCode() types.OpCode { return types.OpCodeReturnReceipt }
func (r ReturnReceipt) wireSize() int      { return types.ReceiptLen }
func (r ReturnReceipt) WireSize() int      { return types.ReceiptLen }
func (r ReturnReceipt) wireEncode(out []byte) ([]byte, error) {
	return wireAppendFixed(out, r.Receipt[:]), nil
}
func (r *ReturnReceipt) wireDecode(data []byte) error {
	if !wireChopFixed(r.Receipt[:], &data) {
		return malformed("ReturnReceipt: truncated")
	}
	if len(data) != 0 {
		return malformed("ReturnReceipt: trailing bytes")
	}
	return nil
}

// NodeInfoUpdate broadcasts a re-signed SignedNodeInfo after a NetworkClass
// transition (spec.md §4.4).
type NodeInfoUpdate struct{ Signed types.SignedNodeInfo }

func (NodeInfoUpdate) OpCode() types.OpCode { return types.OpCodeNodeInfoUpdate }
func (n NodeInfoUpdate) wireSize() int      { return signedNodeInfoSize(n.Signed) }
func (n NodeInfoUpdate) WireSize() int      { return n.wireSize() }
func (n NodeInfoUpdate) wireEncode(out []byte) ([]byte, error) {
	return EncodeSignedNodeInfo(out, n.Signed), nil
}
func (n *NodeInfoUpdate) wireDecode(data []byte) error {
	if !ChopSignedNodeInfo(&n.Signed, &data) {
		return malformed("NodeInfoUpdate: truncated")
	}
	if len(data) != 0 {
		return malformed("NodeInfoUpdate: trailing bytes")
	}
	return nil
}
