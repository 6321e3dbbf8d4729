// Package storage implements the generic MVCC tuple store the world-state
// schema is built on: snapshot reads, optimistic commit validation, and a
// pluggable persistence provider. It has no knowledge of MOO semantics —
// that lives one layer up, in worldstate.
package storage

import "sync/atomic"

// Timestamp is a logical clock value used for MVCC validation. It has no
// relationship to wall-clock time; it only needs to be monotonically
// increasing across the lifetime of a Store.
type Timestamp uint64

// TxID uniquely identifies an in-flight or committed transaction.
type TxID uint64

// clock hands out strictly increasing timestamps and transaction ids.
type clock struct {
	ts uint64
	tx uint64
}

func (c *clock) nextTimestamp() Timestamp {
	return Timestamp(atomic.AddUint64(&c.ts, 1))
}

func (c *clock) nextTxID() TxID {
	return TxID(atomic.AddUint64(&c.tx, 1))
}

func (c *clock) currentTimestamp() Timestamp {
	return Timestamp(atomic.LoadUint64(&c.ts))
}
