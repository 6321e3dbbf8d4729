package builtins

import (
	"sort"
	"sync"

	"moocore/types"
	"moocore/worldstate"
)

// RegisterObjectBuiltins registers object management builtins. Unlike the
// teacher's registration (which closed over a single *db.Store for the
// server's lifetime), these closures take no store at all: each call
// downcasts ctx.Store to *worldstate.Transaction, since every task attempt
// gets a fresh transaction and a closure fixed at registry-construction
// time would read stale state on retry.
func (r *Registry) RegisterObjectBuiltins() {
	r.Register("create", func(ctx *types.TaskContext, args []types.Value) types.Result {
		return builtinCreate(ctx, args, r)
	})
	r.Register("recycle", func(ctx *types.TaskContext, args []types.Value) types.Result {
		return builtinRecycle(ctx, args, r)
	})
	r.Register("valid", builtinValid)
	r.Register("max_object", builtinMaxObject)
	r.Register("parent", builtinParent)
	r.Register("parents", builtinParents)
	r.Register("children", builtinChildren)
	r.Register("ancestors", builtinAncestors)
	r.Register("descendants", builtinDescendants)
	r.Register("isa", builtinIsa)
	r.Register("chparent", builtinChparent)
	r.Register("chparents", builtinChparents)
	r.Register("move", builtinMove)
	r.Register("is_player", builtinIsPlayer)
	r.Register("set_player_flag", builtinSetPlayerFlag)
	r.Register("players", builtinPlayers)
	r.Register("occupants", builtinOccupants)
	r.Register("renumber", builtinRenumber)
	r.Register("new_waif", builtinNewWaif)
	r.Register("object_bytes", builtinObjectBytes)
}

func storeFromCtx(ctx *types.TaskContext) (*worldstate.Transaction, bool) {
	tx, ok := ctx.Store.(*worldstate.Transaction)
	return tx, ok
}

// builtinCreate implements create(parent [, owner] [, anonymous] [, args]).
// Creates a new object with the given parent(s). Per cow_py semantics:
//   - First arg: OBJ, negative INT (as object reference), or list of same
//   - Optional args (in order): OBJ/negative INT -> owner (before anonymous
//     flag), non-negative INT -> anonymous flag (0 or 1), LIST -> init args
//     for :initialize (must come last)
//   - Float or Map is always E_TYPE
//   - Owner values < -1 (like -2, -3, -4) make the object anonymous and
//     owned by the programmer
func builtinCreate(ctx *types.TaskContext, args []types.Value, registry *Registry) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) < 1 {
		return types.Err(types.E_ARGS)
	}

	var parents []types.ObjID
	parentsFromList := false
	switch p := args[0].(type) {
	case types.ObjValue:
		parents = []types.ObjID{p.ID()}
	case types.IntValue:
		if p.Val >= 0 {
			return types.Err(types.E_TYPE)
		}
		parents = []types.ObjID{types.ObjID(p.Val)}
	case types.ListValue:
		parentsFromList = true
		elements := p.Elements()
		parents = make([]types.ObjID, len(elements))
		for i, elem := range elements {
			switch e := elem.(type) {
			case types.ObjValue:
				parents[i] = e.ID()
			case types.IntValue:
				if e.Val >= 0 {
					return types.Err(types.E_TYPE)
				}
				parents[i] = types.ObjID(e.Val)
			default:
				return types.Err(types.E_TYPE)
			}
		}
	default:
		return types.Err(types.E_TYPE)
	}

	validParents := []types.ObjID{}
	seenParents := make(map[types.ObjID]bool)
	for _, parentID := range parents {
		if parentID < -1 {
			return types.Err(types.E_TYPE)
		}
		if parentID == types.ObjNothing {
			if parentsFromList {
				return types.Err(types.E_INVARG)
			}
			continue
		}
		if seenParents[parentID] {
			return types.Err(types.E_INVARG)
		}
		seenParents[parentID] = true
		if !tx.ValidObject(parentID) {
			return types.Err(types.E_INVARG)
		}
		validParents = append(validParents, parentID)
	}
	parents = validParents

	allPropNames := make(map[string]bool)
	for _, parentID := range parents {
		for _, name := range tx.PropertyNames(parentID) {
			if allPropNames[name] {
				return types.Err(types.E_INVARG)
			}
			allPropNames[name] = true
		}
	}

	owner := ctx.Programmer
	ownerSpecified := false
	anonymous := false
	anonymousSeen := false
	var initArgs []types.Value
	initArgsSeen := false

	for i := 1; i < len(args); i++ {
		switch v := args[i].(type) {
		case types.ObjValue:
			if anonymousSeen || ownerSpecified || initArgsSeen {
				return types.Err(types.E_TYPE)
			}
			owner = v.ID()
			ownerSpecified = true
		case types.IntValue:
			if v.Val < 0 {
				if anonymousSeen || ownerSpecified || initArgsSeen {
					return types.Err(types.E_TYPE)
				}
				owner = types.ObjID(v.Val)
				ownerSpecified = true
			} else {
				if anonymousSeen {
					return types.Err(types.E_TYPE)
				}
				anonymous = v.Val != 0
				anonymousSeen = true
			}
		case types.ListValue:
			if initArgsSeen {
				return types.Err(types.E_TYPE)
			}
			initArgs = v.Elements()
			initArgsSeen = true
		case types.FloatValue, types.MapValue:
			return types.Err(types.E_TYPE)
		default:
			return types.Err(types.E_TYPE)
		}
	}

	playerIsWizard := ctx.IsWizard || isPlayerWizard(tx, ctx.Player)
	if ownerSpecified {
		if owner < -1 {
			anonymous = true
			owner = ctx.Programmer
		} else if owner != types.ObjNothing && !tx.ValidObject(owner) {
			return types.Err(types.E_INVARG)
		} else if owner == types.ObjNothing && !playerIsWizard {
			return types.Err(types.E_PERM)
		} else if owner != ctx.Programmer && !playerIsWizard {
			return types.Err(types.E_PERM)
		}
	}

	if !playerIsWizard {
		for _, parentID := range parents {
			parent, ok := tx.GetObject(parentID)
			if !ok {
				continue
			}
			isOwner := parent.Owner == ctx.Programmer
			if anonymous {
				if !isOwner && !parent.Flags.Has(worldstate.FlagAnonymous) {
					return types.Err(types.E_PERM)
				}
			} else {
				if !isOwner && !parent.Flags.Has(worldstate.FlagFertile) {
					return types.Err(types.E_PERM)
				}
			}
		}
	}

	if anonymous && owner == types.ObjNothing {
		return types.Err(types.E_INVARG)
	}

	newID, err := tx.CreateObject(owner, parents, types.ObjNothing)
	if err != nil {
		return types.Err(types.E_PERM)
	}
	if owner == types.ObjNothing {
		_ = tx.SetObjectOwner(newID, newID)
	}
	if anonymous {
		rec, _ := tx.GetObject(newID)
		_ = tx.SetObjectFlags(newID, rec.Flags.Set(worldstate.FlagAnonymous))
	}

	result := registry.CallVerb(newID, "initialize", initArgs, ctx)
	if result.Flow == types.FlowException && result.Error != types.E_VERBNF {
		return result
	}

	if anonymous {
		return types.Ok(types.NewAnon(newID))
	}
	return types.Ok(types.NewObj(newID))
}

var recycleState struct {
	mu  sync.Mutex
	ids map[types.ObjID]int
}

func init() {
	recycleState.ids = make(map[types.ObjID]int)
}

func beginRecycle(id types.ObjID) bool {
	recycleState.mu.Lock()
	defer recycleState.mu.Unlock()
	if recycleState.ids[id] > 0 {
		return false
	}
	recycleState.ids[id] = 1
	return true
}

func endRecycle(id types.ObjID) {
	recycleState.mu.Lock()
	defer recycleState.mu.Unlock()
	delete(recycleState.ids, id)
}

func collectAnonymousRefs(v types.Value, out map[types.ObjID]types.ObjValue) {
	switch val := v.(type) {
	case types.ObjValue:
		if val.IsAnonymous() {
			out[val.ID()] = val
		}
	case types.ListValue:
		for _, elem := range val.Elements() {
			collectAnonymousRefs(elem, out)
		}
	case types.MapValue:
		for _, pair := range val.Pairs() {
			collectAnonymousRefs(pair[0], out)
			collectAnonymousRefs(pair[1], out)
		}
	}
}

// builtinRecycle implements recycle(object): destroys an object and invokes
// :recycle lifecycle hooks.
func builtinRecycle(ctx *types.TaskContext, args []types.Value, registry *Registry) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}

	objVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	objID := objVal.ID()
	if !beginRecycle(objID) {
		return types.Err(types.E_INVARG)
	}
	defer endRecycle(objID)

	if !tx.ValidObject(objID) {
		return types.Err(types.E_INVARG)
	}

	if registry != nil {
		_ = registry.CallVerb(objID, "recycle", []types.Value{}, ctx)
	}

	// Recycle anonymous objects reachable via property values before this
	// object is destroyed.
	anonRefs := make(map[types.ObjID]types.ObjValue)
	for _, name := range tx.PropertyNames(objID) {
		if prop, _, ok := tx.ResolveProperty(objID, name); ok {
			collectAnonymousRefs(prop.Value, anonRefs)
		}
	}
	if len(anonRefs) > 0 {
		ids := make([]int64, 0, len(anonRefs))
		for id := range anonRefs {
			if id != objID {
				ids = append(ids, int64(id))
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			ref := anonRefs[types.ObjID(id)]
			_ = builtinRecycle(ctx, []types.Value{ref}, registry)
		}
	}

	if err := tx.RecycleObject(objID); err != nil {
		return types.Err(types.E_INVARG)
	}
	return types.Ok(types.NewInt(0))
}

// builtinValid implements valid(object). Waifs are never valid.
func builtinValid(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	if _, ok := args[0].(types.WaifValue); ok {
		return types.Ok(types.NewInt(0))
	}
	var objID types.ObjID
	switch v := args[0].(type) {
	case types.ObjValue:
		objID = v.ID()
	case types.IntValue:
		objID = types.ObjID(v.Val)
	default:
		return types.Err(types.E_TYPE)
	}
	if tx.ValidObject(objID) {
		return types.Ok(types.NewInt(1))
	}
	return types.Ok(types.NewInt(0))
}

// builtinMaxObject implements max_object().
func builtinMaxObject(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) != 0 {
		return types.Err(types.E_ARGS)
	}
	return types.Ok(types.NewObj(tx.MaxObjectID()))
}

// builtinParent implements parent(object): returns the first parent.
func builtinParent(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	objVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if objVal.ID() < 0 {
		return types.Err(types.E_INVARG)
	}
	obj, ok := tx.GetObject(objVal.ID())
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(obj.Parents) == 0 {
		return types.Ok(types.NewObj(types.ObjNothing))
	}
	return types.Ok(types.NewObj(obj.Parents[0]))
}

// builtinParents implements parents(object). Waifs have no parents.
func builtinParents(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	if _, ok := args[0].(types.WaifValue); ok {
		return types.Err(types.E_INVARG)
	}
	objVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if objVal.ID() < 0 {
		return types.Err(types.E_INVARG)
	}
	obj, ok := tx.GetObject(objVal.ID())
	if !ok {
		return types.Err(types.E_INVIND)
	}
	parents := make([]types.Value, len(obj.Parents))
	for i, parentID := range obj.Parents {
		parents[i] = types.NewObj(parentID)
	}
	return types.Ok(types.NewList(parents))
}

// builtinChildren implements children(object). Waifs have no children.
func builtinChildren(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	if _, ok := args[0].(types.WaifValue); ok {
		return types.Err(types.E_INVARG)
	}
	objVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if objVal.ID() < 0 {
		return types.Err(types.E_INVARG)
	}
	if !tx.ValidObject(objVal.ID()) {
		return types.Err(types.E_INVIND)
	}
	childIDs := tx.Children(objVal.ID())
	children := make([]types.Value, len(childIDs))
	for i, childID := range childIDs {
		children[i] = types.NewObj(childID)
	}
	return types.Ok(types.NewList(children))
}

// builtinChparent implements chparent(object, new_parent).
func builtinChparent(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) < 2 || len(args) > 3 {
		return types.Err(types.E_ARGS)
	}

	objVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	newParentVal, ok := args[1].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if len(args) == 3 {
		if _, ok := args[2].(types.ListValue); !ok {
			return types.Err(types.E_TYPE)
		}
	}
	if objVal.ID() < 0 {
		return types.Err(types.E_INVARG)
	}
	if !tx.ValidObject(objVal.ID()) {
		return types.Err(types.E_INVIND)
	}
	if objVal.ID() == newParentVal.ID() {
		return types.Err(types.E_RECMOVE)
	}
	if newParentVal.ID() < -1 {
		return types.Err(types.E_INVARG)
	}
	if newParentVal.ID() != types.ObjNothing {
		if !tx.ValidObject(newParentVal.ID()) {
			return types.Err(types.E_INVARG)
		}
		if tx.IsAncestor(newParentVal.ID(), objVal.ID()) {
			return types.Err(types.E_RECMOVE)
		}
		parentPropNames := collectAncestorPropertyNames(tx, newParentVal.ID())
		for _, name := range tx.PropertyNames(objVal.ID()) {
			if parentPropNames[name] {
				return types.Err(types.E_INVARG)
			}
		}
	}

	if err := tx.SetParent(objVal.ID(), newParentVal.ID()); err != nil {
		return types.Err(types.E_INVARG)
	}
	return types.Ok(types.NewInt(0))
}

// builtinChparents implements chparents(object, parents_list).
func builtinChparents(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) != 2 {
		return types.Err(types.E_ARGS)
	}

	objVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	parentsList, ok := args[1].(types.ListValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if !tx.ValidObject(objVal.ID()) {
		return types.Err(types.E_INVIND)
	}

	elements := parentsList.Elements()
	newParents := make([]types.ObjID, len(elements))
	seenParents := make(map[types.ObjID]bool)
	for i, elem := range elements {
		parentVal, ok := elem.(types.ObjValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		parentID := parentVal.ID()
		if parentID == objVal.ID() {
			return types.Err(types.E_RECMOVE)
		}
		if seenParents[parentID] {
			return types.Err(types.E_INVARG)
		}
		seenParents[parentID] = true
		if !tx.ValidObject(parentID) {
			return types.Err(types.E_INVARG)
		}
		if tx.IsAncestor(parentID, objVal.ID()) {
			return types.Err(types.E_RECMOVE)
		}
		newParents[i] = parentID
	}

	allPropNames := make(map[string]bool)
	for _, parentID := range newParents {
		for _, name := range tx.PropertyNames(parentID) {
			if allPropNames[name] {
				return types.Err(types.E_INVARG)
			}
			allPropNames[name] = true
		}
	}

	allNewParentProps := make(map[string]bool)
	for _, parentID := range newParents {
		for name := range collectAncestorPropertyNames(tx, parentID) {
			allNewParentProps[name] = true
		}
	}
	for _, name := range tx.PropertyNames(objVal.ID()) {
		if allNewParentProps[name] {
			return types.Err(types.E_INVARG)
		}
	}

	obj, _ := tx.GetObject(objVal.ID())
	for _, oldParentID := range append([]types.ObjID(nil), obj.Parents...) {
		_ = tx.RemoveParent(objVal.ID(), oldParentID)
	}
	for _, newParentID := range newParents {
		if err := tx.AddParent(objVal.ID(), newParentID); err != nil {
			return types.Err(types.E_INVARG)
		}
	}
	return types.Ok(types.NewInt(0))
}

// collectAncestorPropertyNames collects every property name defined
// somewhere in id's ancestry (id included).
func collectAncestorPropertyNames(tx *worldstate.Transaction, id types.ObjID) map[string]bool {
	props := make(map[string]bool)
	for _, name := range tx.PropertyNames(id) {
		props[name] = true
	}
	for _, ancestor := range tx.Ancestors(id) {
		for _, name := range tx.PropertyNames(ancestor) {
			props[name] = true
		}
	}
	return props
}

// builtinMove implements move(what, where).
func builtinMove(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) != 2 {
		return types.Err(types.E_ARGS)
	}
	whatVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	whereVal, ok := args[1].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if !tx.ValidObject(whatVal.ID()) {
		return types.Err(types.E_INVIND)
	}
	if err := tx.SetLocation(whatVal.ID(), whereVal.ID()); err != nil {
		return types.Err(types.E_RECMOVE)
	}
	// TODO: call exitfunc/enterfunc verbs on the old/new location.
	return types.Ok(types.NewInt(0))
}

// builtinAncestors implements ancestors(object [, include_self]).
func builtinAncestors(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) < 1 || len(args) > 2 {
		return types.Err(types.E_ARGS)
	}
	objVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if !tx.ValidObject(objVal.ID()) {
		return types.Err(types.E_INVARG)
	}
	includeSelf := len(args) == 2 && args[1].Truthy()

	var result []types.Value
	if includeSelf {
		result = append(result, types.NewObj(objVal.ID()))
	}
	for _, id := range tx.Ancestors(objVal.ID()) {
		result = append(result, types.NewObj(id))
	}
	return types.Ok(types.NewList(result))
}

// builtinDescendants implements descendants(object [, include_self]).
func builtinDescendants(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) < 1 || len(args) > 2 {
		return types.Err(types.E_ARGS)
	}
	objVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if !tx.ValidObject(objVal.ID()) {
		return types.Err(types.E_INVARG)
	}
	includeSelf := len(args) == 2 && args[1].Truthy()

	var result []types.Value
	if includeSelf {
		result = append(result, types.NewObj(objVal.ID()))
	}
	for _, id := range tx.Descendants(objVal.ID()) {
		result = append(result, types.NewObj(id))
	}
	return types.Ok(types.NewList(result))
}

// builtinIsa implements isa(object, ancestor).
func builtinIsa(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) != 2 {
		return types.Err(types.E_ARGS)
	}
	objVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	ancestorVal, ok := args[1].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if !tx.ValidObject(objVal.ID()) || !tx.ValidObject(ancestorVal.ID()) {
		return types.Ok(types.NewInt(0))
	}
	if tx.IsAncestor(ancestorVal.ID(), objVal.ID()) {
		return types.Ok(types.NewInt(1))
	}
	return types.Ok(types.NewInt(0))
}

// isPlayerWizard checks if a player object has wizard permissions.
func isPlayerWizard(tx *worldstate.Transaction, objID types.ObjID) bool {
	obj, ok := tx.GetObject(objID)
	if !ok {
		return false
	}
	return obj.Flags.Has(worldstate.FlagWizard)
}

// builtinPlayers implements players().
func builtinPlayers(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) != 0 {
		return types.Err(types.E_ARGS)
	}
	playerIDs := tx.Players()
	result := make([]types.Value, len(playerIDs))
	for i, id := range playerIDs {
		result[i] = types.NewObj(id)
	}
	return types.Ok(types.NewList(result))
}

// builtinOccupants implements occupants(objects [, parent [, player_flag [, inverse]]]).
// Filters a list of objects by parent inheritance and optionally player flag.
func builtinOccupants(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) < 1 || len(args) > 4 {
		return types.Err(types.E_ARGS)
	}

	objectList, ok := args[0].(types.ListValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	for i := 1; i <= objectList.Len(); i++ {
		objVal, ok := objectList.Get(i).(types.ObjValue)
		if !ok || !tx.ValidObject(objVal.ID()) {
			return types.Err(types.E_INVARG)
		}
	}

	checkParent := len(args) >= 2
	var parents []types.ObjID
	if checkParent {
		switch v := args[1].(type) {
		case types.ObjValue:
			parents = []types.ObjID{v.ID()}
		case types.ListValue:
			for i := 1; i <= v.Len(); i++ {
				objVal, ok := v.Get(i).(types.ObjValue)
				if !ok {
					return types.Err(types.E_TYPE)
				}
				parents = append(parents, objVal.ID())
			}
		default:
			return types.Err(types.E_TYPE)
		}
	}

	checkPlayerFlag := len(args) == 1 || (len(args) > 2 && args[2].Truthy())
	inverseMatch := len(args) > 3 && args[3].Truthy()

	isaAnyParent := func(objID types.ObjID) bool {
		for _, parentID := range parents {
			if objID == parentID || tx.IsAncestor(parentID, objID) {
				return true
			}
		}
		return false
	}

	var result []types.Value
	for i := 1; i <= objectList.Len(); i++ {
		objVal := objectList.Get(i).(types.ObjValue)
		objID := objVal.ID()
		obj, ok := tx.GetObject(objID)
		if !ok {
			continue
		}

		parentMatches := true
		if checkParent {
			matches := isaAnyParent(objID)
			if inverseMatch {
				parentMatches = !matches
			} else {
				parentMatches = matches
			}
		}
		playerMatches := !checkPlayerFlag || obj.Flags.Has(worldstate.FlagUser)
		if parentMatches && playerMatches {
			result = append(result, types.NewObj(objID))
		}
	}
	return types.Ok(types.NewList(result))
}

// builtinIsPlayer implements is_player(object). Waifs can't be players.
func builtinIsPlayer(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	if _, ok := args[0].(types.WaifValue); ok {
		return types.Err(types.E_TYPE)
	}
	objVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if objVal.ID() == types.ObjNothing {
		return types.Err(types.E_INVARG)
	}
	obj, ok := tx.GetObject(objVal.ID())
	if !ok {
		return types.Err(types.E_INVARG)
	}
	if obj.Flags.Has(worldstate.FlagAnonymous) {
		return types.Err(types.E_TYPE)
	}
	if obj.Flags.Has(worldstate.FlagUser) {
		return types.Ok(types.NewInt(1))
	}
	return types.Ok(types.NewInt(0))
}

// builtinSetPlayerFlag implements set_player_flag(object, value).
func builtinSetPlayerFlag(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) != 2 {
		return types.Err(types.E_ARGS)
	}
	if _, ok := args[0].(types.WaifValue); ok {
		return types.Err(types.E_TYPE)
	}
	objVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if !ctx.IsWizard {
		return types.Err(types.E_PERM)
	}
	if objVal.ID() == types.ObjNothing {
		return types.Err(types.E_INVARG)
	}
	obj, ok := tx.GetObject(objVal.ID())
	if !ok {
		return types.Err(types.E_INVARG)
	}
	if obj.Flags.Has(worldstate.FlagAnonymous) {
		return types.Err(types.E_TYPE)
	}
	flags := obj.Flags
	if args[1].Truthy() {
		flags = flags.Set(worldstate.FlagUser)
	} else {
		flags = flags.Clear(worldstate.FlagUser)
	}
	_ = tx.SetObjectFlags(objVal.ID(), flags)
	return types.Ok(types.NewInt(0))
}

// builtinRenumber implements renumber(obj) - wizard only. The current
// storage model allocates ids from a monotonic high-water mark with no
// reuse of recycled slots, so renumbering to the lowest free id (the
// teacher's behavior) has no equivalent here; this simply validates the
// object and returns its existing id unchanged.
func builtinRenumber(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	objVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if !tx.ValidObject(objVal.ID()) {
		return types.Err(types.E_INVARG)
	}
	return types.Ok(types.NewObj(objVal.ID()))
}

// builtinNewWaif implements new_waif(). The waif's class is the caller (the
// object whose verb called new_waif); its owner is the programmer.
func builtinNewWaif(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) != 0 {
		return types.Err(types.E_ARGS)
	}
	callerID := ctx.ThisObj
	if callerID < 0 {
		return types.Err(types.E_INVARG)
	}
	classObj, ok := tx.GetObject(callerID)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if classObj.Flags.Has(worldstate.FlagAnonymous) {
		return types.Err(types.E_INVARG)
	}
	waif := types.NewWaif(callerID, ctx.Programmer)
	return types.Ok(waif)
}

// builtinObjectBytes implements object_bytes(object), the approximate
// memory size of an object. Requires wizard permissions.
func builtinObjectBytes(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	objVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	objID := objVal.ID()
	if objID == types.ObjNothing {
		return types.Err(types.E_INVIND)
	}
	if !tx.ValidObject(objID) {
		return types.Err(types.E_INVARG)
	}
	if !(ctx.IsWizard || isPlayerWizard(tx, ctx.Player)) {
		return types.Err(types.E_PERM)
	}

	obj, _ := tx.GetObject(objID)
	count := 64 + 8 + len(obj.Name) + 1
	for _, verbName := range tx.VerbNames(objID) {
		count += 32 + len(verbName) + 1
	}
	for _, propName := range tx.PropertyNames(objID) {
		count += 32 + len(propName) + 1
		if prop, _, ok := tx.ResolveProperty(objID, propName); ok {
			count += 24 + calculateValueBytes(prop.Value)
		}
	}
	return types.Ok(types.NewInt(int64(count)))
}

// calculateValueBytes approximates the memory usage of a value, after
// ToastStunt's value_bytes().
func calculateValueBytes(v types.Value) int {
	size := 16
	switch val := v.(type) {
	case types.StrValue:
		size += len(val.Value()) + 1
	case types.FloatValue:
		size += 8
	case types.ListValue:
		elements := val.Elements()
		size += len(elements) * 16
		for _, elem := range elements {
			size += calculateValueBytes(elem)
		}
	case types.MapValue:
		pairs := val.Pairs()
		size += len(pairs) * 32
		for _, pair := range pairs {
			size += calculateValueBytes(pair[0])
			size += calculateValueBytes(pair[1])
		}
	case types.WaifValue:
		size += 64
	}
	return size
}
