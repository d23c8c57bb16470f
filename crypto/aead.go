package crypto

import (
	"crypto/cipher"
	"fmt"

	"golang.org/x/crypto/chacha20"

	"github.com/veilnet/veilnet/verrors"
)

// aeadCipher wraps a constructed cipher.AEAD (XChaCha20-Poly1305 for both
// registered kinds — SPEC_FULL.md §4.1).
type aeadCipher struct {
	aead cipher.AEAD
}

// AEADEncrypt seals plaintext under key using the given 24-byte nonce and
// associated data, per spec.md §4.1 aead_encrypt. key length is validated
// against the XChaCha20-Poly1305 key size regardless of kind, since both
// registered kinds share this AEAD.
func AEADEncrypt(key []byte, nonce [24]byte, associatedData, plaintext []byte) ([]byte, error) {
	c, err := aeadVLD0(key)
	if err != nil {
		return nil, err
	}
	return c.aead.Seal(nil, nonce[:], plaintext, associatedData), nil
}

// AEADDecrypt opens ciphertext, failing closed with CryptoInvalid on any
// authentication failure (spec.md §4.1: "All verifications fail closed
// with CryptoInvalid").
func AEADDecrypt(key []byte, nonce [24]byte, associatedData, ciphertext []byte) ([]byte, error) {
	c, err := aeadVLD0(key)
	if err != nil {
		return nil, err
	}
	pt, err := c.aead.Open(nil, nonce[:], ciphertext, associatedData)
	if err != nil {
		return nil, fmt.Errorf("%w: aead open failed", verrors.CryptoInvalid)
	}
	return pt, nil
}

// CryptNoAuth XORs data against a ChaCha20 keystream with no authentication
// tag, used only for route-payload re-encryption at intermediate onion hops
// (spec.md §4.1 crypt_no_auth) where each hop must be able to transform the
// ciphertext without being able to read or forge it end-to-end.
func CryptNoAuth(key []byte, nonce [24]byte, data []byte) ([]byte, error) {
	c, err := chacha20.NewUnauthenticatedCipher(key, nonce[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", verrors.CryptoInvalid, err)
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}
