package storage

import (
	"fmt"
	"sort"
	"sync"
)

// versionState tags what a version record represents: a fresh insert, a
// tombstone (delete), or an ordinary value write. Kept distinct from "is
// there a value" so a relation can tell "never existed" (persistence
// provider miss) from "explicitly deleted" (tombstone) — the spec's
// get() contract depends on the difference.
type versionState int

const (
	versionInsert versionState = iota
	versionDelete
	versionValue
)

// version is one entry in a key's MVCC version stack.
type version[C any] struct {
	state     versionState
	value     C
	readTS    Timestamp
	writeTS   Timestamp
	committed bool
	txID      TxID
}

func (v *version[C]) visibleTo(snapshotTS Timestamp, tx TxID) bool {
	if v.txID == tx && !v.committed {
		return true
	}
	return v.committed && v.writeTS <= snapshotTS
}

// Codec serializes a relation's domain/codomain to and from opaque bytes for
// the persistence provider, matching the "self-describing AsByteBuffer"
// contract of the data model section.
type Codec[D any, C any] interface {
	EncodeKey(D) []byte
	DecodeKey([]byte) D
	EncodeValue(C) []byte
	DecodeValue([]byte) C
}

// Relation is a generic (domain, codomain) MVCC relation: a per-key stack
// of versions, validated and promoted atomically at commit time, with
// fallback to a PersistenceProvider on read miss.
type Relation[D comparable, C any] struct {
	Name string

	mu       sync.RWMutex
	versions map[D][]*version[C]

	provider PersistenceProvider
	codec    Codec[D, C]
	index    *SecondaryIndex[D, C]

	clock *clock
}

// NewRelation creates a relation backed by the given persistence provider
// and sharing the given logical clock with its owning Store. provider and
// codec may be nil for a purely in-memory relation (used heavily in tests).
func NewRelation[D comparable, C any](name string, clk *clock, provider PersistenceProvider, codec Codec[D, C]) *Relation[D, C] {
	return &Relation[D, C]{
		Name:     name,
		versions: make(map[D][]*version[C]),
		provider: provider,
		codec:    codec,
		clock:    clk,
	}
}

// AttachIndex wires a secondary codomain->{keys} index into this relation.
// Must be called before any writes if the index is to stay consistent with
// history already present in the relation.
func (r *Relation[D, C]) AttachIndex(idx *SecondaryIndex[D, C]) {
	r.index = idx
}

// Get returns the newest version visible to tx's snapshot, falling back to
// the persistence provider on a full miss (inserting a read-only version at
// ts=0 the way the spec describes, so repeated misses don't keep hitting
// disk). ok is false for "no value" (either a tombstone or never existed).
func (r *Relation[D, C]) Get(tx *Tx, key D) (value C, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chain := r.versions[key]
	if v := newestVisible(chain, tx.startTS, tx.id); v != nil {
		r.touchRead(tx, key, v.readTS)
		return valueOrZero(v)
	}

	if r.provider != nil && r.codec != nil {
		raw, found := r.provider.Get(r.codec.EncodeKey(key))
		if found {
			decoded := r.codec.DecodeValue(raw)
			r.versions[key] = append(chain, &version[C]{
				state:     versionValue,
				value:     decoded,
				readTS:    0,
				writeTS:   0,
				committed: true,
			})
			return decoded, true
		}
	}

	var zero C
	return zero, false
}

func valueOrZero[C any](v *version[C]) (C, bool) {
	if v.state == versionDelete {
		var zero C
		return zero, false
	}
	return v.value, true
}

// newestVisible walks a version chain (newest-last) and returns the newest
// entry visible to the given snapshot/tx, or nil.
func newestVisible[C any](chain []*version[C], snapshotTS Timestamp, tx TxID) *version[C] {
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].visibleTo(snapshotTS, tx) {
			return chain[i]
		}
	}
	return nil
}

func (r *Relation[D, C]) touchRead(tx *Tx, key D, _ Timestamp) {
	tx.markTouched(r.Name, any(key))
	if tx.startTS > tx.readTS {
		tx.readTS = tx.startTS
	}
}

// Put writes an uncommitted version under tx. A second Put by the same tx
// on the same key overwrites its own uncommitted entry in place rather than
// growing the chain, matching the spec's "if T already has an uncommitted
// version, overwrite in place."
func (r *Relation[D, C]) Put(tx *Tx, key D, value C) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chain := r.versions[key]
	if v := ownUncommitted(chain, tx.id); v != nil {
		v.state = versionValue
		v.value = value
		v.writeTS = tx.startTS
	} else {
		r.versions[key] = append(chain, &version[C]{
			state:   versionValue,
			value:   value,
			writeTS: tx.startTS,
			txID:    tx.id,
		})
	}
	tx.markTouched(r.Name, any(key))
	tx.registerWrite(r.Name, key, func(commitTS Timestamp) error {
		return r.promote(tx, key, commitTS)
	}, func(commitTS Timestamp) error {
		return r.validate(tx, key, commitTS)
	}, func() {
		r.rollbackKey(tx, key)
	})
}

// Delete writes a tombstone version under tx, following the same
// overwrite-in-place rule as Put.
func (r *Relation[D, C]) Delete(tx *Tx, key D) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chain := r.versions[key]
	if v := ownUncommitted(chain, tx.id); v != nil {
		v.state = versionDelete
		v.writeTS = tx.startTS
	} else {
		r.versions[key] = append(chain, &version[C]{
			state:   versionDelete,
			writeTS: tx.startTS,
			txID:    tx.id,
		})
	}
	tx.markTouched(r.Name, any(key))
	tx.registerWrite(r.Name, key, func(commitTS Timestamp) error {
		return r.promote(tx, key, commitTS)
	}, func(commitTS Timestamp) error {
		return r.validate(tx, key, commitTS)
	}, func() {
		r.rollbackKey(tx, key)
	})
}

func ownUncommitted[C any](chain []*version[C], tx TxID) *version[C] {
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].txID == tx && !chain[i].committed {
			return chain[i]
		}
	}
	return nil
}

// Scan enumerates every key visible to tx's snapshot for which pred (given
// the resolved value) returns true. Tombstones suppress keys; tx's own
// uncommitted writes are included. No ordering guarantee is made beyond
// "logically one snapshot at tx.startTS", so callers that need a stable
// order (e.g. verb index iteration) sort the result themselves.
func (r *Relation[D, C]) Scan(tx *Tx, pred func(D, C) bool) []D {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []D
	for key, chain := range r.versions {
		v := newestVisible(chain, tx.startTS, tx.id)
		if v == nil {
			continue
		}
		val, ok := valueOrZero(v)
		if !ok {
			continue
		}
		if pred == nil || pred(key, val) {
			out = append(out, key)
		}
	}
	return out
}

// validate checks the abort condition for one key: has a committed write
// landed with write_ts > tx.startTS that this tx never observed?
func (r *Relation[D, C]) validate(tx *Tx, key D, commitTS Timestamp) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain := r.versions[key]
	for _, v := range chain {
		if v.committed && v.writeTS > tx.startTS && v.txID != tx.id {
			return &ConflictError{Relation: r.Name, Key: fmt.Sprintf("%v", key)}
		}
	}
	return nil
}

// promote turns tx's own uncommitted version for key into a committed one
// at commitTS, and enqueues the write to the persistence provider.
func (r *Relation[D, C]) promote(tx *Tx, key D, commitTS Timestamp) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chain := r.versions[key]
	v := ownUncommitted(chain, tx.id)
	if v == nil {
		return nil // already promoted or nothing to do
	}
	v.committed = true
	v.writeTS = commitTS
	v.readTS = commitTS

	if r.index != nil {
		if v.state == versionValue {
			r.index.add(key, v.value)
		} else {
			r.index.remove(key)
		}
	}

	if r.provider != nil && r.codec != nil {
		kb := r.codec.EncodeKey(key)
		if v.state == versionDelete {
			return r.provider.Del(uint64(commitTS), kb)
		}
		return r.provider.Put(uint64(commitTS), kb, r.codec.EncodeValue(v.value))
	}
	return nil
}

// rollbackKey discards tx's uncommitted version for key, if any.
func (r *Relation[D, C]) rollbackKey(tx *Tx, key D) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chain := r.versions[key]
	filtered := chain[:0]
	for _, v := range chain {
		if v.txID == tx.id && !v.committed {
			continue
		}
		filtered = append(filtered, v)
	}
	r.versions[key] = filtered
}

// Keys returns every key Scan(tx, nil) reports (visible to tx's snapshot,
// including tx's own uncommitted writes, tombstones excluded), sorted by the
// provided less function. Used by relations that must expose stable
// iteration order (e.g. verb lists).
func (r *Relation[D, C]) Keys(tx *Tx, less func(a, b D) bool) []D {
	keys := r.Scan(tx, nil)
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	return keys
}

// ConflictError is returned by Store.Commit when optimistic validation
// fails; the scheduler treats it as retryable.
type ConflictError struct {
	Relation string
	Key      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("mvcc conflict on relation %q key %s", e.Relation, e.Key)
}
