package wire

import "github.com/veilnet/veilnet/types"

// RoutedOperation is the OpCodeRoute payload: an onion-wrapped envelope
// travelling over a safety+private route. Package route peels one layer
// per hop from the route description (the encrypted RouteHopData blobs,
// opened with the per-hop noise cipher); Nonce and Ciphertext travel
// unchanged and reach the final recipient as sent. The wire codec only
// needs to carry the opaque blob and the route description used to reach
// the first hop.
// Signatures accumulates one entry per hop that has forwarded this
// operation so far, in forwarding order — the integrity check spec.md
// §4.6 requires ("each hop appends its signature ... the final recipient
// verifies all signatures"). SignerKeys carries each hop's own
// RoutingPublicKey alongside its signature, in the same order: an onion
// forwarder is deliberately anonymous to the route's owner, who has no
// other way to recover which NodeIDs relayed a given operation, so each
// signer names itself rather than the recipient resolving it after the
// fact (route.VerifyRouteSignatures remains for callers who already know
// the expected hop identities out of band).
type RoutedOperation struct {
	Safety     *types.SafetyRoute
	Nonce      [24]byte
	Ciphertext []byte
	Signatures [][]byte
	SignerKeys [][]byte
}

func (RoutedOperation) OpCode() types.OpCode { return types.OpCodeRoute }

func byteListSize(list [][]byte) int {
	n := 4
	for _, s := range list {
		n += 4 + len(s)
	}
	return n
}

func encodeByteList(dest []byte, list [][]byte) []byte {
	dest = wireAppendUint32(dest, uint32(len(list)))
	for _, s := range list {
		dest = wireAppendBytes(dest, s)
	}
	return dest
}

func chopByteList(out *[][]byte, data *[]byte) bool {
	var n uint32
	if !wireChopUint32(&n, data) {
		return false
	}
	list := make([][]byte, 0, n)
	for i := uint32(0); i < n; i++ {
		var s []byte
		if !wireChopBytes(&s, data) {
			return false
		}
		list = append(list, s)
	}
	*out = list
	return true
}

func (r RoutedOperation) wireSize() int {
	return safetyRouteSize(r.Safety) + 24 + 4 + len(r.Ciphertext) + byteListSize(r.Signatures) + byteListSize(r.SignerKeys)
}
func (r RoutedOperation) WireSize() int { return r.wireSize() }

func (r RoutedOperation) wireEncode(out []byte) ([]byte, error) {
	out = EncodeSafetyRoute(out, r.Safety)
	out = wireAppendFixed(out, r.Nonce[:])
	out = wireAppendBytes(out, r.Ciphertext)
	out = encodeByteList(out, r.Signatures)
	out = encodeByteList(out, r.SignerKeys)
	return out, nil
}

func (r *RoutedOperation) wireDecode(data []byte) error {
	if !ChopSafetyRoute(&r.Safety, &data) {
		return malformed("RoutedOperation: truncated safety route")
	}
	if !wireChopFixed(r.Nonce[:], &data) {
		return malformed("RoutedOperation: truncated nonce")
	}
	if !wireChopBytes(&r.Ciphertext, &data) {
		return malformed("RoutedOperation: truncated ciphertext")
	}
	if !chopByteList(&r.Signatures, &data) {
		return malformed("RoutedOperation: truncated signature list")
	}
	if !chopByteList(&r.SignerKeys, &data) {
		return malformed("RoutedOperation: truncated signer key list")
	}
	if len(data) != 0 {
		return malformed("RoutedOperation: trailing bytes")
	}
	return nil
}
