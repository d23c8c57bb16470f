// Package verrors defines the closed error taxonomy shared by every
// component of the routing/RPC core. Callers should compare with
// errors.Is against one of the sentinels below; wrapping is done with
// fmt.Errorf("...: %w", sentinel) so context can be attached without
// losing the kind.
package verrors

import "errors"

var (
	// Timeout means a deadline expired. Retryable once with backoff.
	Timeout = errors.New("timeout")
	// Unreachable means no transport connected and no route usable.
	Unreachable = errors.New("unreachable")
	// NoConnection means a specific connection died mid-RPC. Retry once.
	NoConnection = errors.New("no connection")
	// RateLimited means a local or remote cap was hit.
	RateLimited = errors.New("rate limited")
	// Stale means a timestamp window was violated or a sequence regressed.
	Stale = errors.New("stale")
	// CryptoInvalid means a signature or AEAD check failed. Never surfaced
	// to a remote peer — see the CryptoInvalid rule below.
	CryptoInvalid = errors.New("crypto invalid")
	// MalformedMessage means the wire schema was violated.
	MalformedMessage = errors.New("malformed message")
	// TryAgain means a queue was full.
	TryAgain = errors.New("try again")
	// InvalidOperation means a semantic rule was violated (e.g. SetValue
	// with seq <= existing).
	InvalidOperation = errors.New("invalid operation")
	// Cancelled means the local caller cancelled the operation.
	Cancelled = errors.New("cancelled")
	// Shutdown means the dispatcher is shutting down.
	Shutdown = errors.New("shutdown")
)

// Is reports whether err is (or wraps) target, a thin re-export so callers
// only need to import one package for both the sentinels and the check.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// CryptoInvalidRule documents, in code, the rule stated in spec §7: a
// CryptoInvalid error must never be written to a remote-facing connection
// or embedded in an Answer. It exists so a grep for the rule finds this
// file; the enforcement itself lives at the two call sites that can
// construct the error (crypto verification, route hop decryption), both of
// which log-and-drop instead of returning it upward across a network
// boundary.
const CryptoInvalidRule = "CryptoInvalid is logged and dropped locally, never sent to a peer"
