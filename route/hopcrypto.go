package route

import (
	"encoding/binary"
	"fmt"

	"github.com/flynn/noise"

	"github.com/veilnet/veilnet/crypto"
	"github.com/veilnet/veilnet/types"
)

// hopSuite is the Noise_N-flavored primitive pair spec.md §4.6's per-hop
// re-encryption maps onto: X25519 for the DH step, ChaChaPoly for the
// AEAD step — grounded on TylerPetri-P2P-Park's noiseconn package, which
// wires the same pair through flynn/noise for its own peer sessions. We
// don't run a full multi-message Noise handshake here (there is only ever
// one message per hop, and one ephemeral key serves the whole route, not
// one per hop), so we use the CipherSuite's Cipher primitive directly
// instead of NewHandshakeState; the DH step runs through crypto.ComputeDH
// (see deriveHopKey) rather than the suite's own DH function.
var hopSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2s)

// deriveHopKey computes the per-hop symmetric key for one onion layer: a
// Noise-style DH between the route's single ephemeral keypair and the
// hop's static routing public key, folded through this module's own
// BLAKE3 hash rather than Noise's HKDF, so every hash in the system goes
// through the one audited crypto.Hash entry point (spec.md §4.1).
func deriveHopKey(kind types.CryptoKind, ephemeralPriv, hopStaticPub []byte) ([32]byte, error) {
	secret, err := crypto.ComputeDH(kind, ephemeralPriv, hopStaticPub)
	if err != nil {
		return [32]byte{}, err
	}
	return crypto.Hash(kind, secret)
}

// hopEncrypt/hopDecrypt use noise.Cipher directly (uint64 nonce) rather
// than this module's own XChaCha20-Poly1305 AEAD wrapper, so that
// route's per-hop crypto genuinely exercises flynn/noise's cipher
// primitive instead of merely borrowing its DH function. The wire-level
// RouteHopData.Nonce is 24 bytes for consistency with every other AEAD use
// in this module; only its first 8 bytes carry the counter noise.Cipher
// wants, and the route builder is responsible for keeping that counter
// unique per hop (it always is: a fresh nonce per layer, never reused).
func hopEncrypt(key [32]byte, nonce [24]byte, plaintext []byte) []byte {
	c := hopSuite.Cipher(key)
	n := binary.LittleEndian.Uint64(nonce[:8])
	return c.Encrypt(nil, n, nil, plaintext)
}

func hopDecrypt(key [32]byte, nonce [24]byte, ciphertext []byte) ([]byte, error) {
	c := hopSuite.Cipher(key)
	n := binary.LittleEndian.Uint64(nonce[:8])
	pt, err := c.Decrypt(nil, n, nil, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("route: hop decrypt failed: %w", err)
	}
	return pt, nil
}
