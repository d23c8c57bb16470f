package crypto

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/veilnet/veilnet/verrors"
)

// Argon2id parameters. These are deliberately modest (this KDF runs on
// route-setup and login paths, not once at process start) but still
// memory-hard per spec.md §4.1's requirement.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // KiB
	argon2Threads = 4
	argon2KeyLen  = 32
)

// DeriveSharedSecret turns a password and salt into a symmetric key via
// Argon2id (spec.md §4.1 derive_shared_secret).
func DeriveSharedSecret(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
}

// HashPassword derives and returns a salted Argon2id hash suitable for
// storage (spec.md §4.1 hash_password). The salt is generated fresh each
// call.
func HashPassword(password []byte) ([]byte, error) {
	salt, err := RandomBytes(16)
	if err != nil {
		return nil, err
	}
	key := DeriveSharedSecret(password, salt)
	out := make([]byte, 0, len(salt)+len(key))
	out = append(out, salt...)
	out = append(out, key...)
	return out, nil
}

// VerifyPassword checks password against a hash produced by HashPassword
// (spec.md §4.1 verify_password), in constant time.
func VerifyPassword(password, hash []byte) (bool, error) {
	if len(hash) != 16+argon2KeyLen {
		return false, fmt.Errorf("%w: malformed password hash", verrors.CryptoInvalid)
	}
	salt := hash[:16]
	wantKey := hash[16:]
	gotKey := DeriveSharedSecret(password, salt)
	return subtle.ConstantTimeCompare(wantKey, gotKey) == 1, nil
}
