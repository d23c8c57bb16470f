package crypto

import (
	"crypto/ed25519"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"

	"github.com/veilnet/veilnet/types"
	"github.com/veilnet/veilnet/verrors"
	"lukechampine.com/blake3"
)

// vld0 is the baseline crypto kind: Ed25519 identity/signing, X25519 DH,
// XChaCha20-Poly1305 AEAD, BLAKE3 hashing. Grounded on the teacher's
// network/crypto.go (ed25519 sign/verify wrapper) and encrypted/session.go
// (a signing identity paired with a separately-generated DH keypair).
//
// A node's public key is the 64-byte concatenation (ed25519 pub || x25519
// pub); its private key is a 32-byte CSPRNG seed from which both the
// Ed25519 keypair (ed25519.NewKeyFromSeed) and the X25519 keypair (BLAKE3
// domain-separated expansion of the seed, clamped per RFC 7748) are
// deterministically derived. This sidesteps the edwards->montgomery
// birational conversion at the cost of a slightly larger public key; see
// DESIGN.md.
type vld0 struct{}

func newVLD0() Suite { return vld0{} }

func (vld0) Kind() types.CryptoKind { return KindVLD0 }

func (vld0) PublicKeySize() int { return ed25519.PublicKeySize + 32 }
func (vld0) SignatureSize() int { return ed25519.SignatureSize }

func vld0DeriveX25519Seed(seed []byte) [32]byte {
	h := blake3.Sum256(append([]byte("veilnet-vld0-x25519\x00"), seed...))
	return h
}

func (vld0) GenerateKeyPair() (public, private []byte, err error) {
	seed := make([]byte, ed25519.SeedSize)
	if err := randomBytesInto(seed); err != nil {
		return nil, nil, err
	}
	edPriv := ed25519.NewKeyFromSeed(seed)
	edPub := edPriv.Public().(ed25519.PublicKey)

	xSeed := vld0DeriveX25519Seed(seed)
	var xPub [32]byte
	curve25519.ScalarBaseMult(&xPub, &xSeed)

	pub := make([]byte, 0, ed25519.PublicKeySize+32)
	pub = append(pub, edPub...)
	pub = append(pub, xPub[:]...)
	return pub, seed, nil
}

func (vld0) splitPublic(public []byte) (edPub ed25519.PublicKey, xPub [32]byte, err error) {
	if len(public) != ed25519.PublicKeySize+32 {
		return nil, xPub, fmt.Errorf("%w: vld0 public key must be %d bytes, got %d", verrors.CryptoInvalid, ed25519.PublicKeySize+32, len(public))
	}
	edPub = ed25519.PublicKey(public[:ed25519.PublicKeySize])
	copy(xPub[:], public[ed25519.PublicKeySize:])
	return edPub, xPub, nil
}

func (v vld0) Sign(private, message []byte) []byte {
	if len(private) != ed25519.SeedSize {
		return nil
	}
	edPriv := ed25519.NewKeyFromSeed(private)
	return ed25519.Sign(edPriv, message)
}

func (v vld0) Verify(public, message, sig []byte) bool {
	edPub, _, err := v.splitPublic(public)
	if err != nil {
		return false
	}
	return ed25519.Verify(edPub, message, sig)
}

func (v vld0) ComputeDH(private, public []byte) ([]byte, error) {
	if len(private) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: vld0 private seed must be %d bytes", verrors.CryptoInvalid, ed25519.SeedSize)
	}
	_, xPub, err := v.splitPublic(public)
	if err != nil {
		return nil, err
	}
	xSeed := vld0DeriveX25519Seed(private)
	shared, err := curve25519.X25519(xSeed[:], xPub[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", verrors.CryptoInvalid, err)
	}
	return shared, nil
}

func (vld0) Hash(data []byte) [32]byte {
	return blake3.Sum256(data)
}

func (v vld0) DeriveNodeID(public []byte) types.NodeID {
	edPub, _, err := v.splitPublic(public)
	if err != nil {
		return types.NodeID{Kind: KindVLD0}
	}
	var id types.NodeID
	id.Kind = KindVLD0
	copy(id.Value[:], edPub)
	return id
}

// aeadVLD0 builds the XChaCha20-Poly1305 AEAD for a 32-byte key, shared by
// both registered kinds (SPEC_FULL.md §4.1: "same AEAD/hash pair as
// VLD0").
func aeadVLD0(key []byte) (aeadCipher, error) {
	if len(key) != chacha20poly1305.KeySize {
		return aeadCipher{}, fmt.Errorf("%w: AEAD key must be %d bytes", verrors.CryptoInvalid, chacha20poly1305.KeySize)
	}
	c, err := chacha20poly1305.NewX(key)
	if err != nil {
		return aeadCipher{}, fmt.Errorf("%w: %s", verrors.CryptoInvalid, err)
	}
	return aeadCipher{aead: c}, nil
}
