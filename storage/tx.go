package storage

import (
	"fmt"
	"sync"
)

// writeHook lets a relation register, per touched key, how to validate and
// promote that key at commit time without Tx needing to know the relation's
// concrete domain/codomain types.
type writeHook struct {
	validate func(commitTS Timestamp) error
	promote  func(commitTS Timestamp) error
	rollback func()
}

// Tx is a single logical transaction's view of a Store: a snapshot
// timestamp plus the set of relation/key pairs it has touched, accumulated
// as relation methods are called with this Tx.
type Tx struct {
	id      TxID
	startTS Timestamp
	readTS  Timestamp

	mu      sync.Mutex
	touched map[string]map[any]struct{}
	writes  []writeHook

	store *Store
	done  bool
}

func (tx *Tx) markTouched(relation string, key any) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.touched == nil {
		tx.touched = make(map[string]map[any]struct{})
	}
	bucket, ok := tx.touched[relation]
	if !ok {
		bucket = make(map[any]struct{})
		tx.touched[relation] = bucket
	}
	bucket[key] = struct{}{}
}

func (tx *Tx) registerWrite(relation string, key any, promote func(Timestamp) error, validate func(Timestamp) error, rollback func()) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.writes = append(tx.writes, writeHook{validate: validate, promote: promote, rollback: rollback})
	_ = relation
	_ = key
}

// ID returns the transaction's identity, stable for its lifetime.
func (tx *Tx) ID() TxID { return tx.id }

// StartTS returns the snapshot timestamp this transaction reads against.
func (tx *Tx) StartTS() Timestamp { return tx.startTS }

// Store is a collection of relations sharing one logical clock and one
// commit-validation mutex. It implements the optimistic two-phase commit
// protocol: validate every write's key across every touched relation, and
// only promote to committed state once every relation has said the write
// would not clobber something it never observed.
type Store struct {
	clk clock

	commitMu sync.Mutex

	relationsMu sync.Mutex
	relations   map[string]any
}

// NewStore creates an empty Store. Individual relations are registered
// with RegisterRelation by the package that owns the schema (worldstate).
func NewStore() *Store {
	return &Store{relations: make(map[string]any)}
}

// RegisterRelation records a relation under its name, primarily so
// Store.Relations can report them for diagnostics; the relation itself
// already holds everything it needs to operate once constructed with
// NewRelation.
func RegisterRelation[D comparable, C any](s *Store, r *Relation[D, C]) *Relation[D, C] {
	s.relationsMu.Lock()
	defer s.relationsMu.Unlock()
	s.relations[r.Name] = r
	return r
}

// Clock exposes the store's shared logical clock to relation constructors.
func (s *Store) Clock() *clock { return &s.clk }

// Begin opens a new transaction with a fresh snapshot timestamp.
func (s *Store) Begin() *Tx {
	return &Tx{
		id:      s.clk.nextTxID(),
		startTS: s.clk.currentTimestamp(),
	}
}

// Commit validates and, if successful, promotes every write tx has made.
// On the first validation failure the whole transaction aborts: no writes
// are promoted and the caller gets a *ConflictError, which the scheduler
// layer treats as retryable (re-run the task body against a fresh Begin).
func (s *Store) Commit(tx *Tx) error {
	tx.mu.Lock()
	writes := tx.writes
	tx.mu.Unlock()

	if tx.done {
		return fmt.Errorf("storage: commit of already-finished transaction %d", tx.id)
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	commitTS := s.clk.nextTimestamp()

	for _, w := range writes {
		if err := w.validate(commitTS); err != nil {
			tx.done = true
			return err
		}
	}
	for _, w := range writes {
		if err := w.promote(commitTS); err != nil {
			// A promote failure after validation passed indicates a
			// persistence-layer error, not a conflict; the store is left
			// partially promoted and the caller should treat the store as
			// needing recovery from its last checkpoint.
			tx.done = true
			return fmt.Errorf("storage: commit promote failed: %w", err)
		}
	}
	tx.done = true
	return nil
}

// Rollback discards every uncommitted version tx wrote, across every
// relation it touched.
func (s *Store) Rollback(tx *Tx) {
	tx.mu.Lock()
	writes := tx.writes
	tx.mu.Unlock()

	for _, w := range writes {
		if w.rollback != nil {
			w.rollback()
		}
	}
	tx.done = true
}
