package wire

import (
	"net/netip"

	"github.com/veilnet/veilnet/types"
)

func dialInfoSize(d types.DialInfo) int {
	return 1 + 1 + 16 + 2 + 4 + len(d.Path) // protocol, addr-is-v6, addr bytes, port, u32 path len prefix, path bytes
}

func encodeDialInfo(dest []byte, d types.DialInfo) []byte {
	dest = wireAppendUint8(dest, uint8(d.Protocol))
	addr := d.Addr.Addr()
	is6 := addr.Is6() && !addr.Is4In6()
	dest = wireAppendBool(dest, is6)
	var raw [16]byte
	if is6 {
		raw = addr.As16()
	} else {
		a4 := addr.As4()
		copy(raw[:4], a4[:])
	}
	dest = wireAppendFixed(dest, raw[:])
	dest = wireAppendUint16(dest, d.Addr.Port())
	dest = wireAppendBytes(dest, []byte(d.Path))
	return dest
}

func chopDialInfo(out *types.DialInfo, data *[]byte) bool {
	var proto uint8
	if !wireChopUint8(&proto, data) {
		return false
	}
	var is6 bool
	if !wireChopBool(&is6, data) {
		return false
	}
	var raw [16]byte
	if !wireChopFixed(raw[:], data) {
		return false
	}
	var port uint16
	if !wireChopUint16(&port, data) {
		return false
	}
	var pathBytes []byte
	if !wireChopBytes(&pathBytes, data) {
		return false
	}
	var addr netip.Addr
	if is6 {
		addr = netip.AddrFrom16(raw)
	} else {
		var a4 [4]byte
		copy(a4[:], raw[:4])
		addr = netip.AddrFrom4(a4)
	}
	out.Protocol = types.Protocol(proto)
	out.Addr = netip.AddrPortFrom(addr, port)
	out.Path = string(pathBytes)
	return true
}

func dialInfoDetailSize(d types.DialInfoDetail) int {
	return dialInfoSize(d.DialInfo) + 1
}

func encodeDialInfoDetail(dest []byte, d types.DialInfoDetail) []byte {
	dest = encodeDialInfo(dest, d.DialInfo)
	dest = wireAppendUint8(dest, uint8(d.Class))
	return dest
}

func chopDialInfoDetail(out *types.DialInfoDetail, data *[]byte) bool {
	if !chopDialInfo(&out.DialInfo, data) {
		return false
	}
	var class uint8
	if !wireChopUint8(&class, data) {
		return false
	}
	out.Class = types.DialInfoClass(class)
	return true
}

func protoListSize(p []types.Protocol) int { return 4 + len(p) }

func encodeProtoList(dest []byte, p []types.Protocol) []byte {
	dest = wireAppendUint32(dest, uint32(len(p)))
	for _, x := range p {
		dest = wireAppendUint8(dest, uint8(x))
	}
	return dest
}

func chopProtoList(out *[]types.Protocol, data *[]byte) bool {
	var n uint32
	if !wireChopUint32(&n, data) {
		return false
	}
	list := make([]types.Protocol, n)
	for i := range list {
		var v uint8
		if !wireChopUint8(&v, data) {
			return false
		}
		list[i] = types.Protocol(v)
	}
	*out = list
	return true
}

func nodeInfoSize(n types.NodeInfo) int {
	sz := 1 + protoListSize(n.OutboundProtocols) + protoListSize(n.AddressTypes) + 1 + 1 + 4
	for _, d := range n.DialInfoDetails {
		sz += dialInfoDetailSize(d)
	}
	sz += 1 // relay peer present flag
	if n.RelayPeer != nil {
		sz += types.CryptoKindLen + types.NodeIDLen
	}
	sz += 4 + len(n.RoutingPublicKey)
	return sz
}

func encodeNodeInfo(dest []byte, n types.NodeInfo) []byte {
	dest = wireAppendUint8(dest, uint8(n.NetworkClass))
	dest = encodeProtoList(dest, n.OutboundProtocols)
	dest = encodeProtoList(dest, n.AddressTypes)
	dest = wireAppendUint8(dest, n.MinVersion)
	dest = wireAppendUint8(dest, n.MaxVersion)
	dest = wireAppendUint32(dest, uint32(len(n.DialInfoDetails)))
	for _, d := range n.DialInfoDetails {
		dest = encodeDialInfoDetail(dest, d)
	}
	if n.RelayPeer != nil {
		dest = wireAppendBool(dest, true)
		dest = wireAppendNodeID(dest, *n.RelayPeer)
	} else {
		dest = wireAppendBool(dest, false)
	}
	dest = wireAppendBytes(dest, n.RoutingPublicKey)
	return dest
}

func chopNodeInfo(out *types.NodeInfo, data *[]byte) bool {
	var class uint8
	if !wireChopUint8(&class, data) {
		return false
	}
	out.NetworkClass = types.NetworkClass(class)
	if !chopProtoList(&out.OutboundProtocols, data) {
		return false
	}
	if !chopProtoList(&out.AddressTypes, data) {
		return false
	}
	if !wireChopUint8(&out.MinVersion, data) {
		return false
	}
	if !wireChopUint8(&out.MaxVersion, data) {
		return false
	}
	var n uint32
	if !wireChopUint32(&n, data) {
		return false
	}
	details := make([]types.DialInfoDetail, n)
	for i := range details {
		if !chopDialInfoDetail(&details[i], data) {
			return false
		}
	}
	out.DialInfoDetails = details
	var hasRelay bool
	if !wireChopBool(&hasRelay, data) {
		return false
	}
	if hasRelay {
		var id types.NodeID
		if !wireChopNodeID(&id, data) {
			return false
		}
		out.RelayPeer = &id
	} else {
		out.RelayPeer = nil
	}
	return wireChopBytes(&out.RoutingPublicKey, data)
}

// EncodeSignedNodeInfoForSig produces the canonical bytes a SignedNodeInfo's
// signature covers: (NodeInfo, Timestamp), never the Signature field itself.
func EncodeSignedNodeInfoForSig(n types.NodeInfo, ts types.TimestampMicros) []byte {
	out := make([]byte, 0, nodeInfoSize(n)+8)
	out = encodeNodeInfo(out, n)
	out = wireAppendUint64(out, uint64(ts))
	return out
}

func signedNodeInfoSize(s types.SignedNodeInfo) int {
	return nodeInfoSize(s.Info) + 8 + len(s.Signature)
}

// EncodeSignedNodeInfo appends the full wire form (info, timestamp,
// signature) to dest.
func EncodeSignedNodeInfo(dest []byte, s types.SignedNodeInfo) []byte {
	dest = encodeNodeInfo(dest, s.Info)
	dest = wireAppendUint64(dest, uint64(s.Timestamp))
	dest = wireAppendFixed(dest, s.Signature[:])
	return dest
}

// ChopSignedNodeInfo consumes a SignedNodeInfo from the front of data.
func ChopSignedNodeInfo(out *types.SignedNodeInfo, data *[]byte) bool {
	if !chopNodeInfo(&out.Info, data) {
		return false
	}
	var ts uint64
	if !wireChopUint64(&ts, data) {
		return false
	}
	out.Timestamp = types.TimestampMicros(ts)
	return wireChopFixed(out.Signature[:], data)
}

func peerInfoSize(p types.PeerInfo) int {
	return types.CryptoKindLen + types.NodeIDLen + signedNodeInfoSize(p.Signed)
}

func encodePeerInfo(dest []byte, p types.PeerInfo) []byte {
	dest = wireAppendNodeID(dest, p.NodeID)
	dest = EncodeSignedNodeInfo(dest, p.Signed)
	return dest
}

func chopPeerInfo(out *types.PeerInfo, data *[]byte) bool {
	if !wireChopNodeID(&out.NodeID, data) {
		return false
	}
	return ChopSignedNodeInfo(&out.Signed, data)
}
