// Package store implements the abstract table interface spec.md §6 and
// SPEC_FULL.md §6 require: the rest of the core sees only a
// (key bytes -> value bytes) column store, never a concrete backend.
// Two implementations are provided — MemTable for tests and single-run
// nodes, BoltTable for anything that needs to survive a restart — both
// satisfying the same Table interface so callers never type-assert down
// to one.
package store

import "errors"

// ErrNotFound is returned by Get when key is absent from the table.
var ErrNotFound = errors.New("store: key not found")

// TableKind names one of the three persisted roles spec.md §6 assigns to
// the abstract table interface. store itself is otherwise indifferent to
// which kind a given Table instance backs — the kind only picks the
// on-disk bucket/namespace a BoltTable uses.
type TableKind string

const (
	// TableProtected holds encrypted node key material. store only ever
	// sees ciphertext bytes; encryption is the caller's job.
	TableProtected TableKind = "protected"
	// TableRouting holds routing-table snapshots for warm restarts.
	TableRouting TableKind = "routing"
	// TableBlocks holds content-addressed block data, keyed by BlockID.
	TableBlocks TableKind = "blocks"
)

// Table is the abstract (key bytes -> value bytes) column store every
// persisted component in this module is built on. Implementations must be
// safe for concurrent use.
type Table interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	// ForEach calls fn once per (key, value) pair in unspecified order,
	// stopping early if fn returns an error.
	ForEach(fn func(key, value []byte) error) error
	Close() error
}

// Opener produces a named Table, one per TableKind a caller needs. Both
// MemTable and BoltTable are constructed through an Opener so veilnet.New
// can pick a backend without importing store's concrete types.
type Opener interface {
	Open(kind TableKind) (Table, error)
}
