package crypto

import (
	crand "crypto/rand"
	"fmt"

	"github.com/veilnet/veilnet/verrors"
)

func randomBytesInto(b []byte) error {
	if _, err := crand.Read(b); err != nil {
		return fmt.Errorf("%w: %s", verrors.CryptoInvalid, err)
	}
	return nil
}

// RandomBytes returns n cryptographically random bytes (spec.md §4.1
// random_bytes).
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if err := randomBytesInto(b); err != nil {
		return nil, err
	}
	return b, nil
}

// RandomNonce returns a fresh 24-byte XChaCha20-Poly1305 nonce (spec.md
// §4.1 random_nonce). Callers must never reuse a nonce for the same (key,
// direction) pair.
func RandomNonce() ([24]byte, error) {
	var n [24]byte
	if err := randomBytesInto(n[:]); err != nil {
		return n, err
	}
	return n, nil
}
