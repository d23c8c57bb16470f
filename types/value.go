package types

// ValueKeyLocationLen is the length in bytes of a ValueKey's location
// (256 bits, spec.md §3).
const ValueKeyLocationLen = 32

// ValueKey names a slot in the DHT: a 256-bit location plus an opaque
// subkey name. An empty subkey addresses the whole key.
type ValueKey struct {
	Location [ValueKeyLocationLen]byte
	Subkey   []byte
}

func (k ValueKey) Equal(o ValueKey) bool {
	return k.Location == o.Location && string(k.Subkey) == string(o.Subkey)
}

// ValueData is the payload stored at a ValueKey plus the sequence number
// that orders writes. A strictly greater Seq replaces the stored value; an
// equal-or-lower Seq is dropped (spec.md §3, invariant P2).
type ValueData struct {
	Data []byte
	Seq  uint32
}

// Newer reports whether v should replace cur under the strict-increase
// rule spec.md §4.7 (SetValueQ/A) requires.
func (v ValueData) Newer(cur ValueData) bool {
	return v.Seq > cur.Seq
}
