package storage

import "testing"

func TestSecondaryIndexAddRemoveRelocate(t *testing.T) {
	idx := NewSecondaryIndex[int, string](func(s string) string { return s })

	idx.add(1, "red")
	idx.add(2, "red")
	idx.add(3, "blue")

	reds := idx.Lookup("red")
	if len(reds) != 2 {
		t.Fatalf("expected 2 keys under red, got %v", reds)
	}

	idx.add(1, "blue")
	reds = idx.Lookup("red")
	if len(reds) != 1 || reds[0] != 2 {
		t.Errorf("expected only key 2 under red after relocation, got %v", reds)
	}
	blues := idx.Lookup("blue")
	if len(blues) != 2 {
		t.Errorf("expected 2 keys under blue, got %v", blues)
	}

	idx.remove(3)
	blues = idx.Lookup("blue")
	if len(blues) != 1 || blues[0] != 1 {
		t.Errorf("expected only key 1 under blue after removing 3, got %v", blues)
	}
}

func TestRelationIndexTracksCommittedValues(t *testing.T) {
	s := NewStore()
	r := NewRelation[int, string]("owners", s.Clock(), nil, nil)
	RegisterRelation(s, r)
	idx := NewSecondaryIndex[int, string](func(v string) string { return v })
	r.AttachIndex(idx)

	tx := s.Begin()
	r.Put(tx, 1, "alice")
	r.Put(tx, 2, "alice")
	if err := s.Commit(tx); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	owned := idx.Lookup("alice")
	if len(owned) != 2 {
		t.Fatalf("expected 2 objects owned by alice, got %v", owned)
	}

	tx2 := s.Begin()
	r.Put(tx2, 1, "bob")
	if err := s.Commit(tx2); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	owned = idx.Lookup("alice")
	if len(owned) != 1 || owned[0] != 2 {
		t.Errorf("expected only object 2 under alice after reassignment, got %v", owned)
	}
	bobOwned := idx.Lookup("bob")
	if len(bobOwned) != 1 || bobOwned[0] != 1 {
		t.Errorf("expected object 1 under bob, got %v", bobOwned)
	}
}
