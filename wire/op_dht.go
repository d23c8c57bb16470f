package wire

import "github.com/veilnet/veilnet/types"

func valueKeySize(k types.ValueKey) int { return types.ValueKeyLocationLen + 4 + len(k.Subkey) }

func encodeValueKey(dest []byte, k types.ValueKey) []byte {
	dest = wireAppendFixed(dest, k.Location[:])
	dest = wireAppendBytes(dest, k.Subkey)
	return dest
}

func chopValueKey(out *types.ValueKey, data *[]byte) bool {
	if !wireChopFixed(out.Location[:], data) {
		return false
	}
	return wireChopBytes(&out.Subkey, data)
}

func valueDataSize(v types.ValueData) int { return 4 + len(v.Data) + 4 }

func encodeValueData(dest []byte, v types.ValueData) []byte {
	dest = wireAppendBytes(dest, v.Data)
	dest = wireAppendUint32(dest, v.Seq)
	return dest
}

func chopValueData(out *types.ValueData, data *[]byte) bool {
	if !wireChopBytes(&out.Data, data) {
		return false
	}
	return wireChopUint32(&out.Seq, data)
}

func peerInfoListSize(peers []types.PeerInfo) int {
	sz := 4
	for _, p := range peers {
		sz += peerInfoSize(p)
	}
	return sz
}

func encodePeerInfoList(dest []byte, peers []types.PeerInfo) []byte {
	dest = wireAppendUint32(dest, uint32(len(peers)))
	for _, p := range peers {
		dest = encodePeerInfo(dest, p)
	}
	return dest
}

func chopPeerInfoList(out *[]types.PeerInfo, data *[]byte) bool {
	var n uint32
	if !wireChopUint32(&n, data) {
		return false
	}
	list := make([]types.PeerInfo, n)
	for i := range list {
		if !chopPeerInfo(&list[i], data) {
			return false
		}
	}
	*out = list
	return true
}

// FindNodeQ asks for the resolve_node_count closest known peers to Target.
type FindNodeQ struct{ Target types.NodeID }

func (FindNodeQ) OpCode() types.OpCode { return types.OpCodeFindNodeQ }
func (q FindNodeQ) wireSize() int      { return types.CryptoKindLen + types.NodeIDLen }
func (q FindNodeQ) WireSize() int      { return q.wireSize() }
func (q FindNodeQ) wireEncode(out []byte) ([]byte, error) {
	return wireAppendNodeID(out, q.Target), nil
}
func (q *FindNodeQ) wireDecode(data []byte) error {
	if !wireChopNodeID(&q.Target, &data) {
		return malformed("FindNodeQ: truncated")
	}
	if len(data) != 0 {
		return malformed("FindNodeQ: trailing bytes")
	}
	return nil
}

// FindNodeA returns the closest peers the responder knows of.
type FindNodeA struct{ Peers []types.PeerInfo }

func (FindNodeA) OpCode() types.OpCode { return types.OpCodeFindNodeA }
func (a FindNodeA) wireSize() int      { return peerInfoListSize(a.Peers) }
func (a FindNodeA) WireSize() int      { return a.wireSize() }
func (a FindNodeA) wireEncode(out []byte) ([]byte, error) {
	return encodePeerInfoList(out, a.Peers), nil
}
func (a *FindNodeA) wireDecode(data []byte) error {
	if !chopPeerInfoList(&a.Peers, &data) {
		return malformed("FindNodeA: truncated")
	}
	if len(data) != 0 {
		return malformed("FindNodeA: trailing bytes")
	}
	return nil
}

// GetValueQ asks for the value at Key.
type GetValueQ struct{ Key types.ValueKey }

func (GetValueQ) OpCode() types.OpCode { return types.OpCodeGetValueQ }
func (q GetValueQ) wireSize() int      { return valueKeySize(q.Key) }
func (q GetValueQ) WireSize() int      { return q.wireSize() }
func (q GetValueQ) wireEncode(out []byte) ([]byte, error) {
	return encodeValueKey(out, q.Key), nil
}
func (q *GetValueQ) wireDecode(data []byte) error {
	if !chopValueKey(&q.Key, &data) {
		return malformed("GetValueQ: truncated")
	}
	if len(data) != 0 {
		return malformed("GetValueQ: trailing bytes")
	}
	return nil
}

// GetValueA returns the value if held locally, else closer peers.
type GetValueA struct {
	Value *types.ValueData
	Peers []types.PeerInfo
}

func (GetValueA) OpCode() types.OpCode { return types.OpCodeGetValueA }
func (a GetValueA) wireSize() int {
	sz := 1
	if a.Value != nil {
		sz += valueDataSize(*a.Value)
	}
	sz += peerInfoListSize(a.Peers)
	return sz
}
func (a GetValueA) WireSize() int { return a.wireSize() }
func (a GetValueA) wireEncode(out []byte) ([]byte, error) {
	if a.Value != nil {
		out = wireAppendBool(out, true)
		out = encodeValueData(out, *a.Value)
	} else {
		out = wireAppendBool(out, false)
	}
	out = encodePeerInfoList(out, a.Peers)
	return out, nil
}
func (a *GetValueA) wireDecode(data []byte) error {
	var present bool
	if !wireChopBool(&present, &data) {
		return malformed("GetValueA: truncated")
	}
	if present {
		var v types.ValueData
		if !chopValueData(&v, &data) {
			return malformed("GetValueA: truncated value")
		}
		a.Value = &v
	} else {
		a.Value = nil
	}
	if !chopPeerInfoList(&a.Peers, &data) {
		return malformed("GetValueA: truncated peers")
	}
	if len(data) != 0 {
		return malformed("GetValueA: trailing bytes")
	}
	return nil
}

// SetValueQ proposes writing Value at Key. Accepted iff Value.Seq strictly
// exceeds the responder's stored sequence number (spec.md §4.7, invariant
// P2).
type SetValueQ struct {
	Key   types.ValueKey
	Value types.ValueData
}

func (SetValueQ) OpCode() types.OpCode { return types.OpCodeSetValueQ }
func (q SetValueQ) wireSize() int      { return valueKeySize(q.Key) + valueDataSize(q.Value) }
func (q SetValueQ) WireSize() int      { return q.wireSize() }
func (q SetValueQ) wireEncode(out []byte) ([]byte, error) {
	out = encodeValueKey(out, q.Key)
	out = encodeValueData(out, q.Value)
	return out, nil
}
func (q *SetValueQ) wireDecode(data []byte) error {
	if !chopValueKey(&q.Key, &data) {
		return malformed("SetValueQ: truncated key")
	}
	if !chopValueData(&q.Value, &data) {
		return malformed("SetValueQ: truncated value")
	}
	if len(data) != 0 {
		return malformed("SetValueQ: trailing bytes")
	}
	return nil
}

// SetValueA reports whether the write was accepted; on rejection it carries
// the newer value already stored (spec.md §4.7).
type SetValueA struct {
	Accepted bool
	Value    types.ValueData
}

func (SetValueA) OpCode() types.OpCode { return types.OpCodeSetValueA }
func (a SetValueA) wireSize() int      { return 1 + valueDataSize(a.Value) }
func (a SetValueA) WireSize() int      { return a.wireSize() }
func (a SetValueA) wireEncode(out []byte) ([]byte, error) {
	out = wireAppendBool(out, a.Accepted)
	out = encodeValueData(out, a.Value)
	return out, nil
}
func (a *SetValueA) wireDecode(data []byte) error {
	if !wireChopBool(&a.Accepted, &data) {
		return malformed("SetValueA: truncated")
	}
	if !chopValueData(&a.Value, &data) {
		return malformed("SetValueA: truncated value")
	}
	if len(data) != 0 {
		return malformed("SetValueA: trailing bytes")
	}
	return nil
}

// WatchValueQ subscribes to future ValueChanged Statements for Key,
// re-issued to renew.
type WatchValueQ struct {
	Key            types.ValueKey
	ExpirationHint uint64
}

func (WatchValueQ) OpCode() types.OpCode { return types.OpCodeWatchValueQ }
func (q WatchValueQ) wireSize() int      { return valueKeySize(q.Key) + 8 }
func (q WatchValueQ) WireSize() int      { return q.wireSize() }
func (q WatchValueQ) wireEncode(out []byte) ([]byte, error) {
	out = encodeValueKey(out, q.Key)
	out = wireAppendUint64(out, q.ExpirationHint)
	return out, nil
}
func (q *WatchValueQ) wireDecode(data []byte) error {
	if !chopValueKey(&q.Key, &data) {
		return malformed("WatchValueQ: truncated key")
	}
	if !wireChopUint64(&q.ExpirationHint, &data) {
		return malformed("WatchValueQ: truncated expiration hint")
	}
	if len(data) != 0 {
		return malformed("WatchValueQ: trailing bytes")
	}
	return nil
}

// WatchValueA carries the granted expiration timestamp; zero means the
// watch was refused.
type WatchValueA struct{ Expiration types.TimestampMicros }

func (WatchValueA) OpCode() types.OpCode { return types.OpCodeWatchValueA }
func (a WatchValueA) wireSize() int      { return 8 }
func (a WatchValueA) WireSize() int      { return 8 }
func (a WatchValueA) wireEncode(out []byte) ([]byte, error) {
	return wireAppendUint64(out, uint64(a.Expiration)), nil
}
func (a *WatchValueA) wireDecode(data []byte) error {
	var ts uint64
	if !wireChopUint64(&ts, &data) {
		return malformed("WatchValueA: truncated")
	}
	a.Expiration = types.TimestampMicros(ts)
	if len(data) != 0 {
		return malformed("WatchValueA: trailing bytes")
	}
	return nil
}

// ValueChanged is the unsolicited Statement a watcher receives when its
// watched key's value changes.
type ValueChanged struct {
	Key   types.ValueKey
	Value types.ValueData
}

func (ValueChanged) OpCode() types.OpCode { return types.OpCodeValueChanged }
func (v ValueChanged) wireSize() int      { return valueKeySize(v.Key) + valueDataSize(v.Value) }
func (v ValueChanged) WireSize() int      { return v.wireSize() }
func (v ValueChanged) wireEncode(out []byte) ([]byte, error) {
	out = encodeValueKey(out, v.Key)
	out = encodeValueData(out, v.Value)
	return out, nil
}
func (v *ValueChanged) wireDecode(data []byte) error {
	if !chopValueKey(&v.Key, &data) {
		return malformed("ValueChanged: truncated key")
	}
	if !chopValueData(&v.Value, &data) {
		return malformed("ValueChanged: truncated value")
	}
	if len(data) != 0 {
		return malformed("ValueChanged: trailing bytes")
	}
	return nil
}
