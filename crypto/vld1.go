package crypto

import (
	"fmt"

	"github.com/cloudflare/circl/dh/x448"
	"github.com/cloudflare/circl/sign/ed448"

	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/verrors"
	"lukechampine.com/blake3"
)

// vld1 is the extension crypto kind proving the closed-extension design is
// real: Ed448 identity/signing and X448 DH via circl, same AEAD/hash as
// vld0. Grounded on xdao-co-CATF's use of circl for non-ed25519 signature
// schemes, and structured identically to vld0 (single seed derives both a
// signing and a DH keypair).
type vld1 struct{}

func newVLD1() Suite { return vld1{} }

func (vld1) Kind() types.CryptoKind { return KindVLD1 }

func (vld1) PublicKeySize() int { return ed448.PublicKeySize + x448.Size }
func (vld1) SignatureSize() int { return ed448.SignatureSize }

func vld1DeriveX448Seed(seed []byte) [x448.Size]byte {
	full := blake3.Sum512(append([]byte("veilnet-vld1-x448\x00"), seed...))
	var out [x448.Size]byte
	copy(out[:], full[:x448.Size])
	return out
}

func (vld1) GenerateKeyPair() (public, private []byte, err error) {
	seed := make([]byte, ed448.SeedSize)
	if err := randomBytesInto(seed); err != nil {
		return nil, nil, err
	}
	edPriv := ed448.NewKeyFromSeed(seed)
	edPub := edPriv.Public().(ed448.PublicKey)

	var xPriv, xPub x448.Key
	xPriv = vld1DeriveX448Seed(seed)
	x448.KeyGen(&xPub, &xPriv)

	pub := make([]byte, 0, len(edPub)+x448.Size)
	pub = append(pub, edPub...)
	pub = append(pub, xPub[:]...)
	return pub, seed, nil
}

func (vld1) splitPublic(public []byte) (edPub ed448.PublicKey, xPub x448.Key, err error) {
	want := ed448.PublicKeySize + x448.Size
	if len(public) != want {
		return nil, xPub, fmt.Errorf("%w: vld1 public key must be %d bytes, got %d", verrors.CryptoInvalid, want, len(public))
	}
	edPub = ed448.PublicKey(public[:ed448.PublicKeySize])
	copy(xPub[:], public[ed448.PublicKeySize:])
	return edPub, xPub, nil
}

func (vld1) Sign(private, message []byte) []byte {
	if len(private) != ed448.SeedSize {
		return nil
	}
	edPriv := ed448.NewKeyFromSeed(private)
	return ed448.Sign(edPriv, message, "")
}

func (v vld1) Verify(public, message, sig []byte) bool {
	edPub, _, err := v.splitPublic(public)
	if err != nil {
		return false
	}
	return ed448.Verify(edPub, message, sig, "")
}

func (v vld1) ComputeDH(private, public []byte) ([]byte, error) {
	if len(private) != ed448.SeedSize {
		return nil, fmt.Errorf("%w: vld1 private seed must be %d bytes", verrors.CryptoInvalid, ed448.SeedSize)
	}
	_, xPub, err := v.splitPublic(public)
	if err != nil {
		return nil, err
	}
	var xPriv x448.Key
	xPriv = vld1DeriveX448Seed(private)
	var shared x448.Key
	x448.Shared(&shared, &xPriv, &xPub)
	return shared[:], nil
}

func (vld1) Hash(data []byte) [32]byte {
	return blake3.Sum256(data)
}

func (v vld1) DeriveNodeID(public []byte) types.NodeID {
	var id types.NodeID
	id.Kind = KindVLD1
	// Ed448 public keys are wider than a NodeID.Value; fold via BLAKE3
	// rather than truncating, so every byte of the key contributes.
	id.Value = blake3.Sum256(append(KindVLD1[:], public...))
	return id
}
