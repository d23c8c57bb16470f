package wire

import "github.com/veilnet/veilnet/types"

// BlockID is the wire form of a content address: a bare 32-byte BLAKE3
// digest. Package store wraps this in a multihash/go-cid.Cid for storage
// and logging; the wire codec only needs the raw digest.
type BlockID [32]byte

// SupplyBlockQ offers block content to the responder (spec.md §4.7,
// "analogous [to SetValue] for content-addressed blocks").
type SupplyBlockQ struct {
	ID   BlockID
	Data []byte
}

func (SupplyBlockQ) OpCode() types.OpCode { return types.OpCodeSupplyBlockQ }
func (q SupplyBlockQ) wireSize() int      { return 32 + 4 + len(q.Data) }
func (q SupplyBlockQ) WireSize() int      { return q.wireSize() }
func (q SupplyBlockQ) wireEncode(out []byte) ([]byte, error) {
	out = wireAppendFixed(out, q.ID[:])
	out = wireAppendBytes(out, q.Data)
	return out, nil
}
func (q *SupplyBlockQ) wireDecode(data []byte) error {
	if !wireChopFixed(q.ID[:], &data) {
		return malformed("SupplyBlockQ: truncated id")
	}
	if !wireChopBytes(&q.Data, &data) {
		return malformed("SupplyBlockQ: truncated data")
	}
	if len(data) != 0 {
		return malformed("SupplyBlockQ: trailing bytes")
	}
	return nil
}

type SupplyBlockA struct{ Accepted bool }

func (SupplyBlockA) OpCode() types.OpCode { return types.OpCodeSupplyBlockA }
func (a SupplyBlockA) wireSize() int      { return 1 }
func (a SupplyBlockA) WireSize() int      { return 1 }
func (a SupplyBlockA) wireEncode(out []byte) ([]byte, error) {
	return wireAppendBool(out, a.Accepted), nil
}
func (a *SupplyBlockA) wireDecode(data []byte) error {
	if !wireChopBool(&a.Accepted, &data) {
		return malformed("SupplyBlockA: truncated")
	}
	if len(data) != 0 {
		return malformed("SupplyBlockA: trailing bytes")
	}
	return nil
}

// FindBlockQ asks for block content by ID, or the peers closest to it.
type FindBlockQ struct{ ID BlockID }

func (FindBlockQ) OpCode() types.OpCode { return types.OpCodeFindBlockQ }
func (q FindBlockQ) wireSize() int      { return 32 }
func (q FindBlockQ) WireSize() int      { return 32 }
func (q FindBlockQ) wireEncode(out []byte) ([]byte, error) {
	return wireAppendFixed(out, q.ID[:]), nil
}
func (q *FindBlockQ) wireDecode(data []byte) error {
	if !wireChopFixed(q.ID[:], &data) {
		return malformed("FindBlockQ: truncated")
	}
	if len(data) != 0 {
		return malformed("FindBlockQ: trailing bytes")
	}
	return nil
}

type FindBlockA struct {
	Data  []byte // present iff held locally
	Peers []types.PeerInfo
}

func (FindBlockA) OpCode() types.OpCode { return types.OpCodeFindBlockA }
func (a FindBlockA) wireSize() int      { return 4 + len(a.Data) + peerInfoListSize(a.Peers) }
func (a FindBlockA) WireSize() int      { return a.wireSize() }
func (a FindBlockA) wireEncode(out []byte) ([]byte, error) {
	out = wireAppendBytes(out, a.Data)
	out = encodePeerInfoList(out, a.Peers)
	return out, nil
}
func (a *FindBlockA) wireDecode(data []byte) error {
	if !wireChopBytes(&a.Data, &data) {
		return malformed("FindBlockA: truncated data")
	}
	if !chopPeerInfoList(&a.Peers, &data) {
		return malformed("FindBlockA: truncated peers")
	}
	if len(data) != 0 {
		return malformed("FindBlockA: trailing bytes")
	}
	return nil
}
