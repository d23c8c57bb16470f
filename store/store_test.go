package store

import (
	"errors"
	"testing"

	"github.com/veilnet/veilnet/wire"
)

func TestMemTablePutGetDelete(t *testing.T) {
	tbl := NewMemTable()
	if err := tbl.Put([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := tbl.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("Get returned %q, want v1", got)
	}

	if err := tbl.Delete([]byte("k")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := tbl.Get([]byte("k")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after Delete: got err %v, want ErrNotFound", err)
	}
}

func TestMemTableGetReturnsCopy(t *testing.T) {
	tbl := NewMemTable()
	if err := tbl.Put([]byte("k"), []byte("original")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := tbl.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got[0] = 'X'
	got2, err := tbl.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got2) != "original" {
		t.Fatalf("mutating a Get result corrupted stored value: got %q", got2)
	}
}

func TestMemTableForEach(t *testing.T) {
	tbl := NewMemTable()
	want := map[string]string{"a": "1", "b": "2", "c": "3"}
	for k, v := range want {
		if err := tbl.Put([]byte(k), []byte(v)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	seen := make(map[string]string)
	if err := tbl.ForEach(func(k, v []byte) error {
		seen[string(k)] = string(v)
		return nil
	}); err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if len(seen) != len(want) {
		t.Fatalf("ForEach visited %d entries, want %d", len(seen), len(want))
	}
	for k, v := range want {
		if seen[k] != v {
			t.Fatalf("ForEach entry %q = %q, want %q", k, seen[k], v)
		}
	}
}

func TestMemTableForEachStopsOnError(t *testing.T) {
	tbl := NewMemTable()
	for _, k := range []string{"a", "b", "c"} {
		if err := tbl.Put([]byte(k), []byte("v")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	sentinel := errors.New("stop")
	calls := 0
	err := tbl.ForEach(func(k, v []byte) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("ForEach error = %v, want sentinel", err)
	}
	if calls != 1 {
		t.Fatalf("ForEach called fn %d times after error, want 1", calls)
	}
}

func TestMemOpenerReturnsOneTablePerKind(t *testing.T) {
	o := NewMemOpener()
	a, err := o.Open(TableProtected)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, err := o.Open(TableProtected)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if a != b {
		t.Fatal("Open(TableProtected) twice returned two different tables")
	}
	if err := a.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := b.Get([]byte("k")); err != nil {
		t.Fatalf("Get on the second handle: %v", err)
	}

	routing, err := o.Open(TableRouting)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := routing.Get([]byte("k")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("TableRouting saw TableProtected's key: err = %v", err)
	}
}

func TestBlockStoreRoundTrip(t *testing.T) {
	bs := NewBlockStore(NewMemTable())
	data := []byte("hello block")
	id := ComputeBlockID(data)

	if err := bs.Put(id, data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := bs.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("Get returned %q, want %q", got, data)
	}
}

func TestBlockStorePutRejectsMismatchedID(t *testing.T) {
	bs := NewBlockStore(NewMemTable())
	var wrongID wire.BlockID
	wrongID[0] = 0xFF
	if err := bs.Put(wrongID, []byte("hello block")); err == nil {
		t.Fatal("Put accepted a BlockID that does not match the content digest")
	}
}

func TestBlockStoreGetMissing(t *testing.T) {
	bs := NewBlockStore(NewMemTable())
	id := ComputeBlockID([]byte("never stored"))
	if _, err := bs.Get(id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on missing block: got err %v, want ErrNotFound", err)
	}
}
