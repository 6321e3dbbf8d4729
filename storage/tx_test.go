package storage

import "testing"

func TestCommitIsAtomicAcrossRelations(t *testing.T) {
	s := NewStore()
	names := RegisterRelation(s, NewRelation[int, string]("names", s.Clock(), nil, nil))
	owners := RegisterRelation(s, NewRelation[int, string]("owners", s.Clock(), nil, nil))

	seed := s.Begin()
	names.Put(seed, 1, "gem")
	owners.Put(seed, 1, "alice")
	_ = s.Commit(seed)

	blocker := s.Begin()
	racer := s.Begin()
	names.Put(blocker, 1, "gem-renamed")
	_ = s.Commit(blocker)

	owners.Put(racer, 1, "bob")  // touches only owners, no conflict here
	names.Put(racer, 1, "gem-2") // touches names, which blocker already moved past racer's snapshot
	err := s.Commit(racer)
	if err == nil {
		t.Fatal("expected commit to abort due to names relation conflict")
	}

	fresh := s.Begin()
	ownerVal, _ := owners.Get(fresh, 1)
	if ownerVal != "alice" {
		t.Errorf("owners write from aborted tx should not have been promoted, got %q", ownerVal)
	}
}

func TestDoubleCommitErrors(t *testing.T) {
	s := NewStore()
	r := RegisterRelation(s, NewRelation[int, string]("widgets", s.Clock(), nil, nil))

	tx := s.Begin()
	r.Put(tx, 1, "v1")
	if err := s.Commit(tx); err != nil {
		t.Fatalf("first commit should succeed: %v", err)
	}
	if err := s.Commit(tx); err == nil {
		t.Error("expected second commit of the same tx to error")
	}
}

func TestBeginAssignsIncreasingTxIDs(t *testing.T) {
	s := NewStore()
	a := s.Begin()
	b := s.Begin()
	if b.ID() <= a.ID() {
		t.Errorf("expected increasing tx ids, got a=%d b=%d", a.ID(), b.ID())
	}
}
