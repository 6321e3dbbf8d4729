package storage

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// writeOp is one queued mutation waiting to be applied to the bbolt file
// by the background writer goroutine. Mirrors the teacher's checkpoint
// writer: callers hand off an op and wait on its done channel for the
// result.
type writeOp struct {
	del   bool
	key   []byte
	value []byte
	done  chan error
}

// BoltProvider is the default PersistenceProvider, backed by an
// go.etcd.io/bbolt database file. Writes are funneled through a single
// background goroutine draining a bounded channel, and every mutation is
// flushed inside its own bbolt transaction rather than batched, trading a
// little throughput for the simplicity of "every acked write is already
// durable" — callers that want batching can widen the channel and coalesce
// before Stop is called.
type BoltProvider struct {
	db     *bolt.DB
	bucket []byte
	log    *zap.Logger

	ops  chan writeOp
	done chan struct{}
}

// OpenBoltProvider opens (creating if necessary) a bbolt database at path
// and ensures bucket exists. log may be nil, in which case a no-op logger
// is used.
func OpenBoltProvider(path string, bucket string, log *zap.Logger) (*BoltProvider, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: opening bbolt db %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: creating bucket %q: %w", bucket, err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	p := &BoltProvider{
		db:     db,
		bucket: []byte(bucket),
		log:    log,
		ops:    make(chan writeOp, 4096),
		done:   make(chan struct{}),
	}
	go p.writerLoop()
	return p, nil
}

func (p *BoltProvider) writerLoop() {
	defer close(p.done)
	for op := range p.ops {
		err := p.db.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket(p.bucket)
			if op.del {
				return b.Delete(op.key)
			}
			return b.Put(op.key, op.value)
		})
		if err != nil {
			p.log.Error("bbolt write failed", zap.Error(err), zap.Bool("delete", op.del))
		}
		if op.done != nil {
			op.done <- err
			close(op.done)
		}
	}
}

// Get reads directly against the live bbolt snapshot; reads never go
// through the write queue.
func (p *BoltProvider) Get(key []byte) ([]byte, bool) {
	var value []byte
	_ = p.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(p.bucket)
		if v := b.Get(key); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	return value, value != nil
}

// Put enqueues a write and blocks until the writer goroutine has applied
// it, so a caller that got a nil error knows the write already landed.
func (p *BoltProvider) Put(ts uint64, key, value []byte) error {
	_ = ts
	op := writeOp{key: key, value: append([]byte(nil), value...), done: make(chan error, 1)}
	p.ops <- op
	return <-op.done
}

// Del enqueues a delete, with the same synchronous-ack behavior as Put.
func (p *BoltProvider) Del(ts uint64, key []byte) error {
	_ = ts
	op := writeOp{del: true, key: key, done: make(chan error, 1)}
	p.ops <- op
	return <-op.done
}

// Scan walks every key/value pair currently in the bucket.
func (p *BoltProvider) Scan(pred func(key, value []byte) bool) error {
	return p.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(p.bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if !pred(k, v) {
				break
			}
		}
		return nil
	})
}

// Stop drains the write queue and closes the underlying bbolt file.
func (p *BoltProvider) Stop() error {
	close(p.ops)
	<-p.done
	return p.db.Close()
}
