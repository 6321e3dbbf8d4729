package worldstate

import (
	"strings"

	"moocore/types"
)

// verbCacheKey is what gets hashed into the LRU verb resolution cache: the
// object the lookup started from and the verb name being resolved. Parent
// chain changes invalidate by generation counter rather than by scanning
// the cache for affected entries.
type verbCacheKey struct {
	start  types.ObjID
	name   string
	epoch  uint64
}

type verbCacheEntry struct {
	definedOn types.ObjID
	verb      VerbRecord
}

// matchVerbName implements MOO's abbreviation-with-wildcard verb name
// matching: "co*nnect" matches any typed prefix from "co" through
// "connect" inclusive.
func matchVerbName(verbPattern, searchName string) bool {
	pattern := strings.ToLower(verbPattern)
	search := strings.ToLower(searchName)
	pattern = strings.TrimPrefix(pattern, ":")

	starPos := strings.Index(pattern, "*")
	if starPos == -1 {
		return pattern == search
	}
	if pattern == "*" {
		return true
	}

	prefix := pattern[:starPos]
	full := pattern[:starPos] + pattern[starPos+1:]

	if !strings.HasPrefix(search, prefix) {
		return false
	}
	return strings.HasPrefix(full, search)
}

// ResolveVerb walks the parent chain breadth-first looking for a verb
// whose name list matches verbName, consulting the LRU cache first. The
// epoch counter is bumped on every chparent/recycle so a stale cache hit
// from before a reparenting is never served.
func (tx *Transaction) ResolveVerb(start types.ObjID, verbName string) (VerbRecord, types.ObjID, bool) {
	w := tx.world
	key := verbCacheKey{start: start, name: strings.ToLower(verbName), epoch: tx.world.epoch()}

	w.verbCacheMu.lock()
	if entry, ok := w.verbCache.Get(key); ok {
		w.verbCacheMu.unlock()
		return entry.verb, entry.definedOn, true
	}
	w.verbCacheMisses++
	w.verbCacheMu.unlock()

	visited := make(map[types.ObjID]bool)
	queue := []types.ObjID{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		obj, ok := tx.GetObject(current)
		if !ok {
			continue
		}

		if v, ok := tx.findVerbOnObject(current, verbName); ok {
			w.verbCacheMu.lock()
			w.verbCache.Add(key, verbCacheEntry{definedOn: current, verb: v})
			w.verbCacheMu.unlock()
			return v, current, true
		}

		queue = append(queue, obj.Parents...)
	}

	return VerbRecord{}, types.ObjNothing, false
}

func (tx *Transaction) findVerbOnObject(obj types.ObjID, verbName string) (VerbRecord, bool) {
	if v, ok := tx.world.verbs.Get(tx.tx, verbKey{Obj: obj, Name: verbName}); ok {
		return v, true
	}
	// Scan this object's own verbs for an alias match. Verb names on a
	// single object are few, so this is cheap relative to the inheritance
	// walk itself.
	for _, name := range tx.verbNamesOn(obj) {
		v, ok := tx.world.verbs.Get(tx.tx, verbKey{Obj: obj, Name: name})
		if !ok {
			continue
		}
		for _, alias := range v.Names {
			if matchVerbName(alias, verbName) {
				return v, true
			}
		}
	}
	return VerbRecord{}, false
}

func (tx *Transaction) verbNamesOn(obj types.ObjID) []string {
	keys := tx.world.verbs.Scan(tx.tx, func(k verbKey, _ VerbRecord) bool {
		return k.Obj == obj
	})
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.Name)
	}
	return names
}

// epoch returns the current cache-invalidation generation. Bumped whenever
// the parent graph changes.
func (w *World) epoch() uint64 { return w.epochCounter.load() }
