package storage

import "testing"

func TestRelationPutGetWithinSameTx(t *testing.T) {
	s := NewStore()
	r := RegisterRelation(s, NewRelation[int, string]("widgets", s.Clock(), nil, nil))

	tx := s.Begin()
	r.Put(tx, 1, "hello")

	got, ok := r.Get(tx, 1)
	if !ok || got != "hello" {
		t.Fatalf("expected to read own uncommitted write, got %q ok=%v", got, ok)
	}

	if err := s.Commit(tx); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	tx2 := s.Begin()
	got2, ok2 := r.Get(tx2, 1)
	if !ok2 || got2 != "hello" {
		t.Fatalf("expected committed write visible to new tx, got %q ok=%v", got2, ok2)
	}
}

func TestRelationSnapshotIsolation(t *testing.T) {
	s := NewStore()
	r := RegisterRelation(s, NewRelation[int, string]("widgets", s.Clock(), nil, nil))

	setup := s.Begin()
	r.Put(setup, 1, "v1")
	if err := s.Commit(setup); err != nil {
		t.Fatalf("setup commit failed: %v", err)
	}

	reader := s.Begin()
	writer := s.Begin()
	r.Put(writer, 1, "v2")
	if err := s.Commit(writer); err != nil {
		t.Fatalf("writer commit failed: %v", err)
	}

	got, ok := r.Get(reader, 1)
	if !ok || got != "v1" {
		t.Errorf("reader should still see v1 from its snapshot, got %q ok=%v", got, ok)
	}

	fresh := s.Begin()
	got2, ok2 := r.Get(fresh, 1)
	if !ok2 || got2 != "v2" {
		t.Errorf("fresh tx should see committed v2, got %q ok=%v", got2, ok2)
	}
}

func TestRelationDeleteTombstones(t *testing.T) {
	s := NewStore()
	r := RegisterRelation(s, NewRelation[int, string]("widgets", s.Clock(), nil, nil))

	tx := s.Begin()
	r.Put(tx, 1, "v1")
	_ = s.Commit(tx)

	tx2 := s.Begin()
	r.Delete(tx2, 1)
	_ = s.Commit(tx2)

	tx3 := s.Begin()
	_, ok := r.Get(tx3, 1)
	if ok {
		t.Error("expected deleted key to read as not-found")
	}
}

func TestRelationConflictAborts(t *testing.T) {
	s := NewStore()
	r := RegisterRelation(s, NewRelation[int, string]("widgets", s.Clock(), nil, nil))

	seed := s.Begin()
	r.Put(seed, 1, "v0")
	_ = s.Commit(seed)

	a := s.Begin()
	b := s.Begin()

	r.Put(a, 1, "from-a")
	if err := s.Commit(a); err != nil {
		t.Fatalf("a should commit cleanly: %v", err)
	}

	r.Put(b, 1, "from-b")
	err := s.Commit(b)
	if err == nil {
		t.Fatal("expected b to abort with a conflict after a committed first")
	}
	if _, ok := err.(*ConflictError); !ok {
		t.Errorf("expected *ConflictError, got %T: %v", err, err)
	}

	final := s.Begin()
	got, _ := r.Get(final, 1)
	if got != "from-a" {
		t.Errorf("expected a's write to stick after b aborted, got %q", got)
	}
}

func TestRelationRollbackDiscardsUncommitted(t *testing.T) {
	s := NewStore()
	r := RegisterRelation(s, NewRelation[int, string]("widgets", s.Clock(), nil, nil))

	tx := s.Begin()
	r.Put(tx, 1, "scratch")
	s.Rollback(tx)

	fresh := s.Begin()
	_, ok := r.Get(fresh, 1)
	if ok {
		t.Error("rolled-back write should not be visible to later transactions")
	}
}

func TestRelationScanFiltersTombstonesAndOwnWrites(t *testing.T) {
	s := NewStore()
	r := RegisterRelation(s, NewRelation[int, string]("widgets", s.Clock(), nil, nil))

	seed := s.Begin()
	r.Put(seed, 1, "a")
	r.Put(seed, 2, "b")
	_ = s.Commit(seed)

	tx := s.Begin()
	r.Delete(tx, 1)
	r.Put(tx, 3, "c")

	keys := r.Scan(tx, nil)
	seen := map[int]bool{}
	for _, k := range keys {
		seen[k] = true
	}
	if seen[1] {
		t.Error("tombstoned key should not appear in scan")
	}
	if !seen[2] || !seen[3] {
		t.Errorf("expected keys 2 and 3 visible, got %v", keys)
	}
}
