package storage

import "sync"

// SecondaryIndex maintains an indexKey -> {domain keys} mapping for a
// relation, so lookups like "all objects owned by #5" or "all verbs named
// foo" don't require a full relation scan. It is updated synchronously
// from Relation.promote, after commit validation has already succeeded, so
// it only ever reflects committed state.
//
// The index is keyed by a string derived from the relation's codomain
// value rather than the codomain type itself, since Relation's codomain
// parameter is only constrained to `any` (property values, verb programs,
// and the like are not comparable).
type SecondaryIndex[D comparable, C any] struct {
	mu      sync.RWMutex
	byValue map[string]map[D]struct{}
	valueOf map[D]string
	keyFn   func(C) string
}

// NewSecondaryIndex creates an empty index keyed by keyFn(value).
func NewSecondaryIndex[D comparable, C any](keyFn func(C) string) *SecondaryIndex[D, C] {
	return &SecondaryIndex[D, C]{
		byValue: make(map[string]map[D]struct{}),
		valueOf: make(map[D]string),
		keyFn:   keyFn,
	}
}

func (idx *SecondaryIndex[D, C]) add(key D, value C) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	ik := idx.keyFn(value)
	if old, had := idx.valueOf[key]; had {
		if old == ik {
			return
		}
		idx.removeLocked(key, old)
	}
	bucket, ok := idx.byValue[ik]
	if !ok {
		bucket = make(map[D]struct{})
		idx.byValue[ik] = bucket
	}
	bucket[key] = struct{}{}
	idx.valueOf[key] = ik
}

func (idx *SecondaryIndex[D, C]) remove(key D) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, had := idx.valueOf[key]; had {
		idx.removeLocked(key, old)
		delete(idx.valueOf, key)
	}
}

func (idx *SecondaryIndex[D, C]) removeLocked(key D, ik string) {
	bucket, ok := idx.byValue[ik]
	if !ok {
		return
	}
	delete(bucket, key)
	if len(bucket) == 0 {
		delete(idx.byValue, ik)
	}
}

// Lookup returns every key currently indexed under keyFn(value). The
// returned slice is a fresh copy safe for the caller to retain.
func (idx *SecondaryIndex[D, C]) Lookup(value C) []D {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	bucket, ok := idx.byValue[idx.keyFn(value)]
	if !ok {
		return nil
	}
	out := make([]D, 0, len(bucket))
	for k := range bucket {
		out = append(out, k)
	}
	return out
}

// LookupKey looks up by an already-computed index key, for callers that
// keep the string form around (e.g. the verb-name cache).
func (idx *SecondaryIndex[D, C]) LookupKey(ik string) []D {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	bucket, ok := idx.byValue[ik]
	if !ok {
		return nil
	}
	out := make([]D, 0, len(bucket))
	for k := range bucket {
		out = append(out, k)
	}
	return out
}
