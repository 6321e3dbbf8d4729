package worldstate

import (
	"fmt"

	"moocore/storage"
	"moocore/types"
)

// Transaction is one logical unit of MOO-level work: a storage.Tx plus the
// object-graph operations built on top of the raw relations. Callers
// (verb execution, builtins, the scheduler) only ever see this type, never
// the relations underneath.
type Transaction struct {
	world *World
	tx    *storage.Tx
}

// Commit validates and promotes every write this transaction made. A
// *storage.ConflictError means the caller should retry the whole unit of
// work against a fresh Transaction.
func (tx *Transaction) Commit() error {
	return tx.world.store.Commit(tx.tx)
}

// Rollback discards every write this transaction made.
func (tx *Transaction) Rollback() {
	tx.world.store.Rollback(tx.tx)
}

// StartTS exposes the transaction's snapshot timestamp, mainly for logging.
func (tx *Transaction) StartTS() storage.Timestamp { return tx.tx.StartTS() }

// GetObject returns the object record for id, if it exists and has not
// been recycled.
func (tx *Transaction) GetObject(id types.ObjID) (ObjectRecord, bool) {
	rec, ok := tx.world.objects.Get(tx.tx, id)
	if !ok || rec.Flags.Has(FlagRecycled) || rec.Flags.Has(FlagInvalid) {
		return ObjectRecord{}, false
	}
	return rec, true
}

// ValidObject reports whether id names a live, non-recycled object.
func (tx *Transaction) ValidObject(id types.ObjID) bool {
	_, ok := tx.GetObject(id)
	return ok
}

// IsRecycled reports whether id was allocated and has since been recycled
// (as opposed to never having existed at all).
func (tx *Transaction) IsRecycled(id types.ObjID) bool {
	rec, ok := tx.world.objects.Get(tx.tx, id)
	return ok && rec.Flags.Has(FlagRecycled)
}

// CreateObject allocates a fresh object id, parents it under each of
// parents, and places it in location. Matches the teacher's create()
// builtin semantics: the new object's id is one past the current
// high-water mark, and it is added to each parent's Children and to
// location's Contents.
func (tx *Transaction) CreateObject(owner types.ObjID, parents []types.ObjID, location types.ObjID) (types.ObjID, error) {
	id := tx.nextObjectID()

	for _, p := range parents {
		parent, ok := tx.GetObject(p)
		if !ok {
			return types.ObjNothing, fmt.Errorf("worldstate: parent #%d does not exist", p)
		}
		if !parent.Flags.Has(FlagFertile) {
			return types.ObjNothing, fmt.Errorf("worldstate: parent #%d is not fertile", p)
		}
	}

	rec := ObjectRecord{
		Owner:    owner,
		Parents:  append([]types.ObjID(nil), parents...),
		Location: location,
		Flags:    0,
		Kind:     types.ObjKindNumber,
	}
	tx.world.objects.Put(tx.tx, id, rec)

	if location != types.ObjNothing {
		if err := tx.setLocationUnchecked(id, location); err != nil {
			return types.ObjNothing, err
		}
	}

	tx.world.InvalidateVerbCache()
	return id, nil
}

func (tx *Transaction) nextObjectID() types.ObjID {
	const seqKey = "object_high_water"
	next, _ := tx.world.sequences.Get(tx.tx, seqKey)
	next++
	tx.world.sequences.Put(tx.tx, seqKey, next)
	return types.ObjID(next)
}

// RecycleObject marks id as recycled: its slot stays allocated (ids are
// never reused, matching the teacher's NextID behavior) but the object
// becomes invalid for every other operation, and every verb/property it
// defined is removed. Children are reparented to nothing's children set
// is simply left dangling, matching upstream MOO behavior where orphaned
// children keep a parent reference that now resolves to an invalid object.
func (tx *Transaction) RecycleObject(id types.ObjID) error {
	rec, ok := tx.GetObject(id)
	if !ok {
		return fmt.Errorf("worldstate: #%d does not exist or is already recycled", id)
	}

	for _, child := range tx.Children(id) {
		childRec, ok := tx.GetObject(child)
		if !ok {
			continue
		}
		childRec.Parents = removeObjID(childRec.Parents, id)
		tx.world.objects.Put(tx.tx, child, childRec)
	}

	for _, v := range tx.world.verbs.Scan(tx.tx, func(k verbKey, _ VerbRecord) bool { return k.Obj == id }) {
		tx.world.verbs.Delete(tx.tx, v)
	}
	for _, p := range tx.world.properties.Scan(tx.tx, func(k propKey, _ PropertyRecord) bool { return k.Obj == id }) {
		tx.world.properties.Delete(tx.tx, p)
	}

	rec.Flags = rec.Flags.Set(FlagRecycled).Set(FlagInvalid)
	tx.world.objects.Put(tx.tx, id, rec)

	tx.world.InvalidateVerbCache()
	return nil
}

// Recreate resets a previously recycled object slot to a fresh state with
// the given owner and single parent, reusing its id rather than allocating
// a new one. Returns an error if id was never allocated or is still live.
func (tx *Transaction) Recreate(id, parent, owner types.ObjID) error {
	rec, ok := tx.world.objects.Get(tx.tx, id)
	if !ok {
		return fmt.Errorf("worldstate: #%d does not exist", id)
	}
	if !rec.Flags.Has(FlagRecycled) {
		return fmt.Errorf("worldstate: #%d is not recycled", id)
	}

	var parents []types.ObjID
	if parent != types.ObjNothing {
		parentRec, ok := tx.GetObject(parent)
		if !ok {
			return fmt.Errorf("worldstate: parent #%d does not exist", parent)
		}
		if !parentRec.Flags.Has(FlagFertile) {
			return fmt.Errorf("worldstate: parent #%d is not fertile", parent)
		}
		parents = []types.ObjID{parent}
	}

	tx.world.objects.Put(tx.tx, id, ObjectRecord{
		Owner:    owner,
		Parents:  parents,
		Location: types.ObjNothing,
		Flags:    0,
		Kind:     types.ObjKindNumber,
	})
	tx.world.InvalidateVerbCache()
	return nil
}

func removeObjID(ids []types.ObjID, target types.ObjID) []types.ObjID {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// SetParent changes id's parent list to exactly [newParent] (or clears it
// if newParent is ObjNothing), the single-inheritance form most MOO verbs
// use. Multiple-inheritance chparent is exposed via AddParent/RemoveParent.
func (tx *Transaction) SetParent(id, newParent types.ObjID) error {
	rec, ok := tx.GetObject(id)
	if !ok {
		return fmt.Errorf("worldstate: #%d does not exist", id)
	}
	if newParent != types.ObjNothing {
		parentRec, ok := tx.GetObject(newParent)
		if !ok {
			return fmt.Errorf("worldstate: parent #%d does not exist", newParent)
		}
		if !parentRec.Flags.Has(FlagFertile) {
			return fmt.Errorf("worldstate: parent #%d is not fertile", newParent)
		}
		if tx.isAncestor(id, newParent) {
			return fmt.Errorf("worldstate: #%d is already an ancestor of #%d, recursive inheritance", id, newParent)
		}
	}

	if newParent == types.ObjNothing {
		rec.Parents = nil
	} else {
		rec.Parents = []types.ObjID{newParent}
	}
	tx.world.objects.Put(tx.tx, id, rec)
	tx.world.InvalidateVerbCache()
	return nil
}

func (tx *Transaction) isAncestor(candidate, of types.ObjID) bool {
	visited := make(map[types.ObjID]bool)
	queue := []types.ObjID{of}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == candidate {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		if rec, ok := tx.GetObject(cur); ok {
			queue = append(queue, rec.Parents...)
		}
	}
	return false
}

// Children returns every object whose parent list includes id, discovered
// via the owner-agnostic full relation scan (the teacher keeps an explicit
// Children slice; this schema derives it on demand since parent lists are
// the single source of truth and keeping two copies in sync across a
// transactional store invites drift).
func (tx *Transaction) Children(id types.ObjID) []types.ObjID {
	return tx.world.objects.Scan(tx.tx, func(_ types.ObjID, rec ObjectRecord) bool {
		for _, p := range rec.Parents {
			if p == id {
				return true
			}
		}
		return false
	})
}

// SetLocation moves id into location, maintaining the invariant that an
// object appears in Contents() of exactly one location (or none).
func (tx *Transaction) SetLocation(id, location types.ObjID) error {
	if !tx.ValidObject(id) {
		return fmt.Errorf("worldstate: #%d does not exist", id)
	}
	if location != types.ObjNothing && !tx.ValidObject(location) {
		return fmt.Errorf("worldstate: location #%d does not exist", location)
	}
	if tx.wouldCreateLoop(id, location) {
		return fmt.Errorf("worldstate: moving #%d into #%d would create a containment cycle", id, location)
	}
	return tx.setLocationUnchecked(id, location)
}

func (tx *Transaction) setLocationUnchecked(id, location types.ObjID) error {
	rec, ok := tx.GetObject(id)
	if !ok {
		return fmt.Errorf("worldstate: #%d does not exist", id)
	}
	rec.Location = location
	tx.world.objects.Put(tx.tx, id, rec)
	return nil
}

func (tx *Transaction) wouldCreateLoop(id, newLocation types.ObjID) bool {
	cur := newLocation
	for cur != types.ObjNothing {
		if cur == id {
			return true
		}
		rec, ok := tx.GetObject(cur)
		if !ok {
			return false
		}
		cur = rec.Location
	}
	return false
}

// Contents returns every object whose location is id.
func (tx *Transaction) Contents(id types.ObjID) []types.ObjID {
	return tx.world.objects.Scan(tx.tx, func(_ types.ObjID, rec ObjectRecord) bool {
		return rec.Location == id
	})
}

// DefineProperty adds a new property definition to id.
func (tx *Transaction) DefineProperty(id types.ObjID, name string, value types.Value, owner types.ObjID, perms PropertyPerms) error {
	if !tx.ValidObject(id) {
		return fmt.Errorf("worldstate: #%d does not exist", id)
	}
	key := propKey{Obj: id, Name: name}
	if _, ok := tx.world.properties.Get(tx.tx, key); ok {
		return fmt.Errorf("worldstate: property %q already defined on #%d", name, id)
	}
	tx.world.properties.Put(tx.tx, key, PropertyRecord{
		Name: name, Value: value, Owner: owner, Perms: perms, Defined: true,
	})
	return nil
}

// ResolveProperty walks id's ancestry for a property named name, returning
// the first definition found and the object it was defined on.
func (tx *Transaction) ResolveProperty(id types.ObjID, name string) (PropertyRecord, types.ObjID, bool) {
	visited := make(map[types.ObjID]bool)
	queue := []types.ObjID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true

		if rec, ok := tx.world.properties.Get(tx.tx, propKey{Obj: cur, Name: name}); ok {
			return rec, cur, true
		}
		obj, ok := tx.GetObject(cur)
		if !ok {
			continue
		}
		queue = append(queue, obj.Parents...)
	}
	return PropertyRecord{}, types.ObjNothing, false
}

// SetPropertyValue overwrites the value of a property already defined
// somewhere in id's ancestry. If the definition lives on an ancestor, a
// local override is created on id (mirroring "clear" property semantics:
// a clear property reads through to the parent until explicitly set).
func (tx *Transaction) SetPropertyValue(id types.ObjID, name string, value types.Value) error {
	rec, _, ok := tx.ResolveProperty(id, name)
	if !ok {
		return fmt.Errorf("worldstate: property %q not found on #%d", name, id)
	}
	rec.Value = value
	rec.Clear = false
	// Writes always land on id itself, not the ancestor the definition was
	// found on: MOO gives every object in the inheritance chain its own
	// property slot, "clear" until first explicitly set, at which point it
	// stops reading through to the parent's value.
	tx.world.properties.Put(tx.tx, propKey{Obj: id, Name: name}, rec)
	return nil
}

// DefineVerb adds a verb to id.
func (tx *Transaction) DefineVerb(id types.ObjID, primaryName string, v VerbRecord) error {
	if !tx.ValidObject(id) {
		return fmt.Errorf("worldstate: #%d does not exist", id)
	}
	tx.world.verbs.Put(tx.tx, verbKey{Obj: id, Name: primaryName}, v)
	tx.world.InvalidateVerbCache()
	return nil
}

// GetVerb returns the verb defined directly on id with the given primary
// name (no inheritance walk — use ResolveVerb for that).
func (tx *Transaction) GetVerb(id types.ObjID, primaryName string) (VerbRecord, bool) {
	return tx.world.verbs.Get(tx.tx, verbKey{Obj: id, Name: primaryName})
}

// SetVerbProgram updates the compiled program cached on a verb record
// without touching its other metadata.
func (tx *Transaction) SetVerbProgram(id types.ObjID, primaryName string, program any) error {
	v, ok := tx.GetVerb(id, primaryName)
	if !ok {
		return fmt.Errorf("worldstate: verb %q not found on #%d", primaryName, id)
	}
	v.Program = program
	tx.world.verbs.Put(tx.tx, verbKey{Obj: id, Name: primaryName}, v)
	return nil
}

// VerbNames lists the primary names of every verb defined directly on id.
func (tx *Transaction) VerbNames(id types.ObjID) []string {
	return tx.verbNamesOn(id)
}

// ObjectsOwnedBy returns every object whose Owner field equals owner, via
// the secondary index rather than a full scan.
func (tx *Transaction) ObjectsOwnedBy(owner types.ObjID) []types.ObjID {
	return tx.world.ownerIndex.Lookup(ObjectRecord{Owner: owner})
}

// SetObjectName renames id.
func (tx *Transaction) SetObjectName(id types.ObjID, name string) error {
	rec, ok := tx.GetObject(id)
	if !ok {
		return fmt.Errorf("worldstate: #%d does not exist", id)
	}
	rec.Name = name
	tx.world.objects.Put(tx.tx, id, rec)
	return nil
}

// SetObjectOwner changes id's owning object.
func (tx *Transaction) SetObjectOwner(id, owner types.ObjID) error {
	rec, ok := tx.GetObject(id)
	if !ok {
		return fmt.Errorf("worldstate: #%d does not exist", id)
	}
	rec.Owner = owner
	tx.world.objects.Put(tx.tx, id, rec)
	return nil
}

// SetObjectFlags replaces id's flag set outright (callers read-modify-write
// via GetObject().Flags.Set/.Clear before calling this).
func (tx *Transaction) SetObjectFlags(id types.ObjID, flags ObjectFlags) error {
	rec, ok := tx.GetObject(id)
	if !ok {
		return fmt.Errorf("worldstate: #%d does not exist", id)
	}
	rec.Flags = flags
	tx.world.objects.Put(tx.tx, id, rec)
	return nil
}

// AddParent adds newParent to id's parent list (multiple-inheritance
// chparent, as opposed to SetParent's single-inheritance replace).
func (tx *Transaction) AddParent(id, newParent types.ObjID) error {
	rec, ok := tx.GetObject(id)
	if !ok {
		return fmt.Errorf("worldstate: #%d does not exist", id)
	}
	parentRec, ok := tx.GetObject(newParent)
	if !ok {
		return fmt.Errorf("worldstate: parent #%d does not exist", newParent)
	}
	if !parentRec.Flags.Has(FlagFertile) {
		return fmt.Errorf("worldstate: parent #%d is not fertile", newParent)
	}
	for _, p := range rec.Parents {
		if p == newParent {
			return nil
		}
	}
	if tx.isAncestor(id, newParent) {
		return fmt.Errorf("worldstate: #%d is already an ancestor of #%d, recursive inheritance", id, newParent)
	}
	rec.Parents = append(rec.Parents, newParent)
	tx.world.objects.Put(tx.tx, id, rec)
	tx.world.InvalidateVerbCache()
	return nil
}

// RemoveParent removes parent from id's parent list, if present.
func (tx *Transaction) RemoveParent(id, parent types.ObjID) error {
	rec, ok := tx.GetObject(id)
	if !ok {
		return fmt.Errorf("worldstate: #%d does not exist", id)
	}
	rec.Parents = removeObjID(rec.Parents, parent)
	tx.world.objects.Put(tx.tx, id, rec)
	tx.world.InvalidateVerbCache()
	return nil
}

// IsAncestor reports whether candidate appears in of's ancestry (including
// of itself), the exported form of the cycle check SetParent/AddParent use.
func (tx *Transaction) IsAncestor(candidate, of types.ObjID) bool {
	return tx.isAncestor(candidate, of)
}

// Ancestors returns id's full ancestry, id's direct parents first, in
// breadth-first order with no duplicates.
func (tx *Transaction) Ancestors(id types.ObjID) []types.ObjID {
	visited := make(map[types.ObjID]bool)
	var out []types.ObjID
	queue := []types.ObjID{id}
	visited[id] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		rec, ok := tx.GetObject(cur)
		if !ok {
			continue
		}
		for _, p := range rec.Parents {
			if !visited[p] {
				visited[p] = true
				out = append(out, p)
				queue = append(queue, p)
			}
		}
	}
	return out
}

// Descendants returns every object transitively parented under id, in
// breadth-first order with no duplicates.
func (tx *Transaction) Descendants(id types.ObjID) []types.ObjID {
	visited := make(map[types.ObjID]bool)
	var out []types.ObjID
	queue := []types.ObjID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range tx.Children(cur) {
			if !visited[child] {
				visited[child] = true
				out = append(out, child)
				queue = append(queue, child)
			}
		}
	}
	return out
}

// Players returns the ids of every object flagged as a player.
func (tx *Transaction) Players() []types.ObjID {
	return tx.world.objects.Scan(tx.tx, func(_ types.ObjID, rec ObjectRecord) bool {
		return rec.Flags.Has(FlagUser)
	})
}

// MaxObjectID returns the highest object id ever allocated (the
// high-water-mark sequence, regardless of whether that object has since
// been recycled).
func (tx *Transaction) MaxObjectID() types.ObjID {
	next, _ := tx.world.sequences.Get(tx.tx, "object_high_water")
	return types.ObjID(next)
}

// ConsumeVerbCacheStats returns the verb-resolution cache's interval stats
// (see World.ConsumeVerbCacheStats) and resets the interval counters.
func (tx *Transaction) ConsumeVerbCacheStats() []int64 {
	return tx.world.ConsumeVerbCacheStats()
}

// ResetMaxObject recomputes the object id high-water mark from the ids
// actually in use, lowering it back down if a run of the highest-numbered
// objects has since been recycled. It never raises the mark: object ids
// are never reused, so the mark can only be as low as the highest id ever
// handed out, live or not.
func (tx *Transaction) ResetMaxObject() {
	const seqKey = "object_high_water"
	highest := int64(-1)
	for _, id := range tx.world.objects.Scan(tx.tx, func(_ types.ObjID, _ ObjectRecord) bool { return true }) {
		if int64(id) > highest {
			highest = int64(id)
		}
	}
	current, _ := tx.world.sequences.Get(tx.tx, seqKey)
	if highest >= 0 && highest < current {
		tx.world.sequences.Put(tx.tx, seqKey, highest)
	}
}

// AllObjects returns the ids of every live (non-recycled, non-invalid)
// object in the world, anonymous or not.
func (tx *Transaction) AllObjects() []types.ObjID {
	return tx.world.objects.Scan(tx.tx, func(_ types.ObjID, rec ObjectRecord) bool {
		return !rec.Flags.Has(FlagRecycled) && !rec.Flags.Has(FlagInvalid)
	})
}

// AnonymousObjects returns the ids of every live anonymous object, the
// candidate set for orphan garbage collection.
func (tx *Transaction) AnonymousObjects() []types.ObjID {
	return tx.world.objects.Scan(tx.tx, func(_ types.ObjID, rec ObjectRecord) bool {
		return rec.Flags.Has(FlagAnonymous) && !rec.Flags.Has(FlagRecycled) && !rec.Flags.Has(FlagInvalid)
	})
}

// PropertyNames lists the names of every property defined directly on id
// (no inheritance walk).
func (tx *Transaction) PropertyNames(id types.ObjID) []string {
	keys := tx.world.properties.Scan(tx.tx, func(k propKey, _ PropertyRecord) bool {
		return k.Obj == id
	})
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.Name)
	}
	return names
}

// ClearProperty resets id's own property slot back to reading through to
// its parent's value, the "clear" state new property definitions start in.
func (tx *Transaction) ClearProperty(id types.ObjID, name string) error {
	rec, ok := tx.world.properties.Get(tx.tx, propKey{Obj: id, Name: name})
	if !ok {
		return fmt.Errorf("worldstate: property %q not found on #%d", name, id)
	}
	rec.Clear = true
	tx.world.properties.Put(tx.tx, propKey{Obj: id, Name: name}, rec)
	return nil
}

// DeleteProperty removes id's own property definition (own slot only; does
// not touch an ancestor's definition of the same name).
func (tx *Transaction) DeleteProperty(id types.ObjID, name string) error {
	if _, ok := tx.world.properties.Get(tx.tx, propKey{Obj: id, Name: name}); !ok {
		return fmt.Errorf("worldstate: property %q not found on #%d", name, id)
	}
	tx.world.properties.Delete(tx.tx, propKey{Obj: id, Name: name})
	return nil
}

// SetPropertyPerms updates a property's owner/perms without touching its
// value.
func (tx *Transaction) SetPropertyPerms(id types.ObjID, name string, owner types.ObjID, perms PropertyPerms) error {
	rec, ok := tx.world.properties.Get(tx.tx, propKey{Obj: id, Name: name})
	if !ok {
		return fmt.Errorf("worldstate: property %q not found on #%d", name, id)
	}
	rec.Owner = owner
	rec.Perms = perms
	tx.world.properties.Put(tx.tx, propKey{Obj: id, Name: name}, rec)
	return nil
}

// DeleteVerb removes a verb definition from id.
func (tx *Transaction) DeleteVerb(id types.ObjID, primaryName string) error {
	if _, ok := tx.world.verbs.Get(tx.tx, verbKey{Obj: id, Name: primaryName}); !ok {
		return fmt.Errorf("worldstate: verb %q not found on #%d", primaryName, id)
	}
	tx.world.verbs.Delete(tx.tx, verbKey{Obj: id, Name: primaryName})
	tx.world.InvalidateVerbCache()
	return nil
}
