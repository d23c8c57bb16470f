package crypto

import (
	"fmt"
	"math/bits"

	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/verrors"
)

// GenerateKeyPair returns a fresh (public, private) key pair for kind
// (spec.md §4.1 generate_key_pair).
func GenerateKeyPair(kind types.CryptoKind) (public, private []byte, err error) {
	s, err := Lookup(kind)
	if err != nil {
		return nil, nil, err
	}
	return s.GenerateKeyPair()
}

// Sign signs message with private under kind (spec.md §4.1 sign).
func Sign(kind types.CryptoKind, private, message []byte) ([]byte, error) {
	s, err := Lookup(kind)
	if err != nil {
		return nil, err
	}
	sig := s.Sign(private, message)
	if sig == nil {
		return nil, fmt.Errorf("%w: sign failed for kind %s", verrors.CryptoInvalid, kind)
	}
	return sig, nil
}

// Verify checks sig over message under public and kind (spec.md §4.1
// verify). Fails closed: any lookup or length mismatch reports false
// rather than panicking.
func Verify(kind types.CryptoKind, public, message, sig []byte) bool {
	s, err := Lookup(kind)
	if err != nil {
		return false
	}
	return s.Verify(public, message, sig)
}

// Hash returns the kind's content hash of data (spec.md §4.1 hash).
func Hash(kind types.CryptoKind, data []byte) ([32]byte, error) {
	s, err := Lookup(kind)
	if err != nil {
		return [32]byte{}, err
	}
	return s.Hash(data), nil
}

// ComputeDH runs kind's Diffie-Hellman function uncached (spec.md §4.1
// compute_dh). See CachedDH for the memoized variant used on hot paths.
func ComputeDH(kind types.CryptoKind, private, public []byte) ([]byte, error) {
	s, err := Lookup(kind)
	if err != nil {
		return nil, err
	}
	return s.ComputeDH(private, public)
}

// DeriveNodeID maps a public key of the given kind to its NodeID.
func DeriveNodeID(kind types.CryptoKind, public []byte) (types.NodeID, error) {
	s, err := Lookup(kind)
	if err != nil {
		return types.NodeID{}, err
	}
	return s.DeriveNodeID(public), nil
}

// PublicKeySize and SignatureSize expose a kind's key-length constants to
// the wire codec (spec.md §4.2 decode rule 4).
func PublicKeySize(kind types.CryptoKind) (int, error) {
	s, err := Lookup(kind)
	if err != nil {
		return 0, err
	}
	return s.PublicKeySize(), nil
}

func SignatureSize(kind types.CryptoKind) (int, error) {
	s, err := Lookup(kind)
	if err != nil {
		return 0, err
	}
	return s.SignatureSize(), nil
}

// Distance is the XOR distance between two equal-length keys, returned as
// a big-endian unsigned integer for total ordering (spec.md §4.1
// distance). Keys of differing length are padded with leading zeroes to
// the longer length before comparison rather than rejected, since NodeIDs
// are always fixed-width but raw public keys are not.
func Distance(a, b []byte) []byte {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		var av, bv byte
		if ai := i - (n - len(a)); ai >= 0 {
			av = a[ai]
		}
		if bi := i - (n - len(b)); bi >= 0 {
			bv = b[bi]
		}
		out[i] = av ^ bv
	}
	return out
}

// LeadingZeroBits counts the number of leading zero bits in a distance
// value, the usual way to bucket-index a Kademlia-style routing table.
func LeadingZeroBits(distance []byte) int {
	for i, b := range distance {
		if b != 0 {
			return i*8 + bits.LeadingZeros8(b)
		}
	}
	return len(distance) * 8
}
