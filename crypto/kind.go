// Package crypto implements the crypto suite of spec.md §4.1: per-crypto-kind
// key generation, signing, Diffie-Hellman, hashing, AEAD, and the two
// password/shared-secret KDF operations, dispatched through a small closed
// tagged-variant registry (spec.md §9 DESIGN NOTES) rather than a single
// hardcoded primitive set.
package crypto

import (
	"fmt"

	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/verrors"
)

// Suite is the capability set a registered CryptoKind must implement. It is
// the dynamic-dispatch seam DESIGN NOTES §9 calls for: routing, route
// construction, and the RPC layer never switch on CryptoKind themselves,
// they call suite methods looked up once via Lookup.
type Suite interface {
	Kind() types.CryptoKind

	// GenerateKeyPair returns a fresh (public, private) pair in this kind's
	// native encoding.
	GenerateKeyPair() (public, private []byte, err error)

	// Sign and Verify operate on the native signing key encoding. For
	// VLD0/VLD1 the DH key is not converted from the signing key: both are
	// derived from the same private seed, the DH half through a BLAKE3
	// expansion — see vld0.go/vld1.go.
	Sign(private, message []byte) []byte
	Verify(public, message, sig []byte) bool

	// ComputeDH runs the kind's DH function, returning a raw shared secret.
	// It is intentionally not cached here — CachedDH in dhcache.go wraps it.
	ComputeDH(private, public []byte) ([]byte, error)

	// Hash returns this kind's content-hash of data (BLAKE3-256 for both
	// registered kinds; kept per-kind in the interface so a future kind
	// could pick a different hash without touching call sites).
	Hash(data []byte) [32]byte

	// DeriveNodeID maps a public signing key to its fixed-width NodeID
	// (raw key for VLD0; a hash of (kind||key) for wider keys — see
	// DESIGN.md's types-package entry for why this is safe).
	DeriveNodeID(public []byte) types.NodeID

	// PublicKeySize and SignatureSize let the wire codec validate lengths
	// per spec.md §4.2 rule (4) without a type switch on CryptoKind.
	PublicKeySize() int
	SignatureSize() int
}

var registry = map[types.CryptoKind]Suite{}

func register(s Suite) {
	registry[s.Kind()] = s
}

// Lookup returns the Suite registered for kind, or CryptoInvalid if kind is
// not one of the closed set of registered kinds.
func Lookup(kind types.CryptoKind) (Suite, error) {
	s, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unregistered crypto kind %s", verrors.CryptoInvalid, kind)
	}
	return s, nil
}

// KindVLD0 and KindVLD1 are the two registered crypto kinds (spec.md §9,
// SPEC_FULL.md §4.1).
var (
	KindVLD0 = types.CryptoKind{'V', 'L', 'D', '0'}
	KindVLD1 = types.CryptoKind{'V', 'L', 'D', '1'}
)

func init() {
	register(newVLD0())
	register(newVLD1())
}
