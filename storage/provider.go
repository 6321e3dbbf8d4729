package storage

// PersistenceProvider is the durability boundary for a Relation: an opaque
// byte-oriented key/value store that a relation falls back to on a cache
// miss and writes to once a version is promoted to committed. Promotion
// calls Put/Del inline during Store.Commit, so a provider whose Put waits
// for the write to land (as BoltProvider's does) makes the commit wait for
// it too. Implementations serialize their own writes (BoltProvider uses a
// single background goroutine draining a bounded queue, matching the
// teacher's checkpoint writer).
type PersistenceProvider interface {
	// Get returns the stored bytes for key, if present.
	Get(key []byte) (value []byte, ok bool)

	// Put durably records value under key as of logical time ts. It may
	// return before the write has actually reached stable storage;
	// ordering relative to other Put/Del calls on the same provider is
	// guaranteed, durability timing is not.
	Put(ts uint64, key, value []byte) error

	// Del removes key, recording a tombstone if the provider needs one to
	// survive a restart (e.g. an on-disk log-structured format).
	Del(ts uint64, key []byte) error

	// Scan enumerates every stored key/value pair for which pred returns
	// true. Used for cold-start population of a relation's in-memory
	// version chains; not used on the hot path.
	Scan(pred func(key, value []byte) bool) error

	// Stop flushes any buffered writes and releases underlying resources
	// (file handles, goroutines). Safe to call once, at shutdown.
	Stop() error
}

// NopProvider is a PersistenceProvider that discards everything; useful
// for relations that are intentionally memory-only (e.g. a scratch
// sandbox transaction used only for `eval`).
type NopProvider struct{}

func (NopProvider) Get([]byte) ([]byte, bool)               { return nil, false }
func (NopProvider) Put(uint64, []byte, []byte) error        { return nil }
func (NopProvider) Del(uint64, []byte) error                { return nil }
func (NopProvider) Scan(func([]byte, []byte) bool) error    { return nil }
func (NopProvider) Stop() error                             { return nil }
