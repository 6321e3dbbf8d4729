package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"moocore/storage"
	"moocore/types"
)

// EventKind distinguishes the narrative event shapes a Session produces.
type EventKind uint8

const (
	EventNotify EventKind = iota
	EventPresent
	EventUnpresent
)

// NarrativeEvent is the plaintext payload that gets encrypted before it
// touches the persistence provider. Its shape intentionally mirrors
// Session's own method parameters.
type NarrativeEvent struct {
	Kind      EventKind
	Text      string            `json:"text,omitempty"`
	PresentID string            `json:"present_id,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	At        time.Time
}

// LoggedEvent is one entry in the durable log: a UUIDv7 id (so entries
// sort chronologically by id without a separate index), the player it
// belongs to, and the AES-GCM-sealed event bytes.
type LoggedEvent struct {
	EventID   uuid.UUID
	Player    types.ObjID
	Timestamp time.Time
	Sealed    []byte
}

// EventLog is an append-only, encrypted-at-rest narrative log backed by a
// storage.PersistenceProvider. It does not participate in the MVCC
// store's transactional commit protocol — narrative events are a
// side-effect log, not world state — but reuses the same persistence
// abstraction so the on-disk story (bbolt, async writer) stays uniform
// across the system.
type EventLog struct {
	provider storage.PersistenceProvider
	gcm      cipher.AEAD

	mu    sync.RWMutex
	byID  map[uuid.UUID]LoggedEvent
	order []uuid.UUID // ascending by event id, i.e. chronological
}

// NewEventLog creates an EventLog encrypting entries with key (must be 16,
// 24, or 32 bytes, selecting AES-128/192/256). provider may be nil for a
// memory-only log (tests, ephemeral sandboxes).
func NewEventLog(key []byte, provider storage.PersistenceProvider) (*EventLog, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("session: creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("session: creating GCM mode: %w", err)
	}
	log := &EventLog{
		provider: provider,
		gcm:      gcm,
		byID:     make(map[uuid.UUID]LoggedEvent),
	}
	if provider != nil {
		if err := log.loadFromProvider(); err != nil {
			return nil, err
		}
	}
	return log, nil
}

func (l *EventLog) loadFromProvider() error {
	if err := l.provider.Scan(func(key, value []byte) bool {
		id, err := uuid.FromBytes(key)
		if err != nil {
			return true
		}
		l.byID[id] = LoggedEvent{EventID: id, Sealed: append([]byte(nil), value...)}
		l.order = append(l.order, id)
		return true
	}); err != nil {
		return err
	}
	// Provider iteration order is not guaranteed to match id order (an
	// in-memory test provider backed by a Go map, in particular), so
	// re-sort once after a cold-start load.
	sort.Slice(l.order, func(i, j int) bool { return compareUUID(l.order[i], l.order[j]) < 0 })
	return nil
}

// Append seals and stores one narrative event for player, stamped with a
// fresh UUIDv7 id (time-ordered, so SinceEventID/UntilEventID can binary
// search the in-memory index instead of scanning).
func (l *EventLog) Append(player types.ObjID, ev NarrativeEvent) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("session: generating event id: %w", err)
	}

	plain, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("session: encoding event: %w", err)
	}

	nonce := make([]byte, l.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("session: generating nonce: %w", err)
	}
	sealed := l.gcm.Seal(nonce, nonce, plain, idAAD(player))

	entry := LoggedEvent{EventID: id, Player: player, Timestamp: ev.At, Sealed: sealed}

	l.mu.Lock()
	l.byID[id] = entry
	l.order = append(l.order, id)
	l.mu.Unlock()

	if l.provider != nil {
		idBytes, _ := id.MarshalBinary()
		return l.provider.Put(uint64(ev.At.UnixNano()), idBytes, sealed)
	}
	return nil
}

// idAAD binds the ciphertext to the player it belongs to, so a sealed
// blob copied onto a different player's record fails to decrypt.
func idAAD(player types.ObjID) []byte {
	return []byte(fmt.Sprintf("player:%d", player))
}

// Decrypt opens a LoggedEvent's sealed payload back into a NarrativeEvent.
func (l *EventLog) Decrypt(entry LoggedEvent) (NarrativeEvent, error) {
	if len(entry.Sealed) < l.gcm.NonceSize() {
		return NarrativeEvent{}, fmt.Errorf("session: sealed event too short")
	}
	nonce := entry.Sealed[:l.gcm.NonceSize()]
	ct := entry.Sealed[l.gcm.NonceSize():]
	plain, err := l.gcm.Open(nil, nonce, ct, idAAD(entry.Player))
	if err != nil {
		return NarrativeEvent{}, fmt.Errorf("session: decrypting event: %w", err)
	}
	var ev NarrativeEvent
	if err := json.Unmarshal(plain, &ev); err != nil {
		return NarrativeEvent{}, fmt.Errorf("session: decoding event: %w", err)
	}
	return ev, nil
}

// SinceEventID returns every logged event with an id greater than after,
// in chronological order. Pass uuid.Nil to mean "from the beginning."
func (l *EventLog) SinceEventID(after uuid.UUID) []LoggedEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx := sort.Search(len(l.order), func(i int) bool {
		return compareUUID(l.order[i], after) > 0
	})
	return l.collect(l.order[idx:])
}

// UntilEventID returns every logged event with an id less than or equal
// to upTo, in chronological order.
func (l *EventLog) UntilEventID(upTo uuid.UUID) []LoggedEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx := sort.Search(len(l.order), func(i int) bool {
		return compareUUID(l.order[i], upTo) > 0
	})
	return l.collect(l.order[:idx])
}

// LastNSeconds returns every logged event timestamped within the last d,
// relative to now.
func (l *EventLog) LastNSeconds(now time.Time, d time.Duration) []LoggedEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cutoff := now.Add(-d)
	var out []LoggedEvent
	for _, id := range l.order {
		e := l.byID[id]
		if !e.Timestamp.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

func (l *EventLog) collect(ids []uuid.UUID) []LoggedEvent {
	out := make([]LoggedEvent, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.byID[id])
	}
	return out
}

func compareUUID(a, b uuid.UUID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
