package store

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const boltOpenTimeout = 2 * time.Second

// BoltTable is a go.etcd.io/bbolt-backed Table, grounded on
// TylerPetri-P2P-Park's grantsbolt.Store: one bucket per TableKind inside
// a single database file, opened with a bounded lock-acquisition timeout
// so a crashed prior instance doesn't wedge startup forever.
type BoltTable struct {
	db     *bolt.DB
	bucket []byte
}

// BoltOpener opens one shared *bolt.DB and hands out a BoltTable view per
// TableKind, each backed by its own bucket within that file.
type BoltOpener struct {
	db *bolt.DB
}

func OpenBolt(path string) (*BoltOpener, error) {
	if path == "" {
		return nil, errors.New("store: empty bolt db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, err
	}
	return &BoltOpener{db: db}, nil
}

func (o *BoltOpener) Open(kind TableKind) (Table, error) {
	bucket := []byte(kind)
	err := o.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &BoltTable{db: o.db, bucket: bucket}, nil
}

func (o *BoltOpener) Close() error { return o.db.Close() }

func (t *BoltTable) Get(key []byte) ([]byte, error) {
	var out []byte
	err := t.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(t.bucket).Get(key)
		if v == nil {
			return ErrNotFound
		}
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *BoltTable) Put(key, value []byte) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(t.bucket).Put(key, value)
	})
}

func (t *BoltTable) Delete(key []byte) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(t.bucket).Delete(key)
	})
}

func (t *BoltTable) ForEach(fn func(key, value []byte) error) error {
	return t.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(t.bucket).ForEach(fn)
	})
}

// Close is a no-op on the per-kind view: the underlying *bolt.DB is shared
// across every TableKind and is closed once via BoltOpener.Close.
func (t *BoltTable) Close() error { return nil }
