package worldstate

import "sync/atomic"

// epochCounter is a monotonically increasing generation number bumped
// whenever the object graph's shape changes (reparent, recycle) so the
// verb resolution cache can invalidate itself without a targeted sweep.
type epochCounter struct{ v uint64 }

func (e *epochCounter) load() uint64   { return atomic.LoadUint64(&e.v) }
func (e *epochCounter) bump() uint64   { return atomic.AddUint64(&e.v, 1) }

// ConsumeVerbCacheStats returns a stats vector shaped like the teacher's
// verb_cache_stats() builtin payload and resets the interval counters.
// Slot 0 is a 0/1 "cache was cleared this interval" flag, slot 1 the miss
// count, slot 2 the current cache size; remaining slots are reserved.
func (w *World) ConsumeVerbCacheStats() []int64 {
	w.verbCacheMu.lock()
	defer w.verbCacheMu.unlock()

	stats := make([]int64, 17)
	if w.verbCacheClears > 0 {
		stats[0] = 1
	}
	stats[1] = w.verbCacheMisses
	stats[2] = int64(w.verbCache.Len())

	w.verbCacheClears = 0
	w.verbCacheMisses = 0
	return stats
}

// InvalidateVerbCache bumps the cache epoch and records a clear, used
// whenever the parent graph changes underneath resolved verbs.
func (w *World) InvalidateVerbCache() {
	w.epochCounter.bump()
	w.verbCacheMu.lock()
	w.verbCacheClears++
	w.verbCacheMu.unlock()
}
