package wire

import "github.com/veilnet/veilnet/types"

// StatusQ carries no fields: it is a bare liveness probe (spec.md §4.7).
type StatusQ struct{}

func (StatusQ) OpCode() types.OpCode { return types.OpCodeStatusQ }
func (StatusQ) WireSize() int        { return 0 }
func (StatusQ) wireSize() int        { return 0 }
func (q StatusQ) wireEncode(out []byte) ([]byte, error) { return out, nil }
func (q *StatusQ) wireDecode(data []byte) error {
	if len(data) != 0 {
		return malformed("StatusQ: trailing bytes")
	}
	return nil
}

// StatusA reports the responder's view of the requester's socket address,
// used by the Reachability Classifier to detect NAT rewriting.
type StatusA struct {
	SenderInfo *types.DialInfo
}

func (StatusA) OpCode() types.OpCode { return types.OpCodeStatusA }

func (a StatusA) wireSize() int {
	if a.SenderInfo == nil {
		return 1
	}
	return 1 + dialInfoSize(*a.SenderInfo)
}
func (a StatusA) WireSize() int { return a.wireSize() }

func (a StatusA) wireEncode(out []byte) ([]byte, error) {
	if a.SenderInfo == nil {
		return wireAppendBool(out, false), nil
	}
	out = wireAppendBool(out, true)
	out = encodeDialInfo(out, *a.SenderInfo)
	return out, nil
}

func (a *StatusA) wireDecode(data []byte) error {
	var present bool
	if !wireChopBool(&present, &data) {
		return malformed("StatusA: truncated")
	}
	if present {
		var di types.DialInfo
		if !chopDialInfo(&di, &data) {
			return malformed("StatusA: truncated dial info")
		}
		a.SenderInfo = &di
	} else {
		a.SenderInfo = nil
	}
	if len(data) != 0 {
		return malformed("StatusA: trailing bytes")
	}
	return nil
}
