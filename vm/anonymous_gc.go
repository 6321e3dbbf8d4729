package vm

import (
	"sort"

	"moocore/builtins"
	"moocore/types"
	"moocore/worldstate"
)

// collectAnonymousRefsForGC finds anonymous object references inside value trees.
func collectAnonymousRefsForGC(v types.Value, out map[types.ObjID]struct{}) {
	switch val := v.(type) {
	case types.ObjValue:
		if val.IsAnonymous() {
			out[val.ID()] = struct{}{}
		}
	case types.ListValue:
		for _, elem := range val.Elements() {
			collectAnonymousRefsForGC(elem, out)
		}
	case types.MapValue:
		for _, pair := range val.Pairs() {
			collectAnonymousRefsForGC(pair[0], out)
			collectAnonymousRefsForGC(pair[1], out)
		}
	}
}

// objectPropertyValues returns the values of every property defined
// directly on id, the set collectAnonymousRefsForGC walks for references.
func objectPropertyValues(tx *worldstate.Transaction, id types.ObjID) []types.Value {
	names := tx.PropertyNames(id)
	values := make([]types.Value, 0, len(names))
	for _, name := range names {
		if prop, _, ok := tx.ResolveProperty(id, name); ok {
			values = append(values, prop.Value)
		}
	}
	return values
}

// AutoRecycleOrphanAnonymous recycles anonymous objects that are not
// reachable from any persistent non-anonymous object's properties.
func AutoRecycleOrphanAnonymous(tx *worldstate.Transaction, registry *builtins.Registry, ctx *types.TaskContext) {
	AutoRecycleOrphanAnonymousSince(tx, registry, ctx, 0)
}

// AutoRecycleOrphanAnonymousSince performs orphan-anonymous collection but
// only recycles anonymous objects with IDs >= minID. This lets task/verb
// callers collect objects created during the current execution without
// sweeping pre-existing database state.
func AutoRecycleOrphanAnonymousSince(tx *worldstate.Transaction, registry *builtins.Registry, ctx *types.TaskContext, minID types.ObjID) {
	if ctx == nil || tx == nil || registry == nil {
		return
	}

	// Build reachability set starting from non-anonymous persistent objects.
	reachable := make(map[types.ObjID]struct{})
	queue := make([]types.ObjID, 0)

	enqueueRefs := func(v types.Value) {
		refs := make(map[types.ObjID]struct{})
		collectAnonymousRefsForGC(v, refs)
		for id := range refs {
			queue = append(queue, id)
		}
	}

	for _, id := range tx.AllObjects() {
		rec, ok := tx.GetObject(id)
		if !ok || rec.Flags.Has(worldstate.FlagAnonymous) {
			continue
		}
		for _, val := range objectPropertyValues(tx, id) {
			enqueueRefs(val)
		}
	}

	// Traverse anonymous-object property graphs.
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if _, seen := reachable[id]; seen {
			continue
		}

		rec, ok := tx.GetObject(id)
		if !ok || !rec.Flags.Has(worldstate.FlagAnonymous) {
			continue
		}

		reachable[id] = struct{}{}
		for _, val := range objectPropertyValues(tx, id) {
			enqueueRefs(val)
		}
	}

	// Recycle all currently-valid anonymous objects that are unreachable.
	candidates := make([]types.ObjID, 0)
	for _, id := range tx.AnonymousObjects() {
		if id < minID {
			continue
		}
		rec, ok := tx.GetObject(id)
		if !ok {
			continue
		}
		// Never auto-recycle player objects even if they carry the 'a' flag.
		if rec.Flags.Has(worldstate.FlagUser) {
			continue
		}
		if _, keep := reachable[id]; keep {
			continue
		}
		candidates = append(candidates, id)
	}

	if len(candidates) == 0 {
		return
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	recycleFn, ok := registry.Get("recycle")
	if !ok {
		return
	}

	for _, id := range candidates {
		// Best-effort cleanup: recycle() handles missing/already-invalid objects.
		_ = recycleFn(ctx, []types.Value{types.NewAnon(id)})
	}
}
