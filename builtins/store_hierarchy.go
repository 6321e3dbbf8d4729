package builtins

import (
	"moocore/types"
	"sort"
	"strings"
)

func builtinLocateByName(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) < 1 || len(args) > 2 {
		return types.Err(types.E_ARGS)
	}
	if !ctx.IsWizard {
		return types.Err(types.E_PERM)
	}
	needle, ok := args[0].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	needleStr := strings.TrimSpace(needle.Value())
	if needleStr == "" {
		return types.Ok(types.NewList([]types.Value{}))
	}

	caseSensitive := false
	if len(args) == 2 {
		cs, ok := args[1].(types.IntValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		caseSensitive = cs.Val != 0
	}

	searchNeedle := needleStr
	if !caseSensitive {
		searchNeedle = strings.ToLower(searchNeedle)
	}

	matches := make([]types.Value, 0)
	for _, id := range tx.AllObjects() {
		obj, ok := tx.GetObject(id)
		if !ok {
			continue
		}
		name := strings.TrimSpace(obj.Name)
		if !caseSensitive {
			name = strings.ToLower(name)
		}
		if strings.Contains(name, searchNeedle) {
			matches = append(matches, types.NewObj(id))
		}
	}
	return types.Ok(types.NewList(matches))
}

func builtinLocations(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) < 1 || len(args) > 3 {
		return types.Err(types.E_ARGS)
	}

	objVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	obj, ok := tx.GetObject(objVal.ID())
	if !ok {
		return types.Err(types.E_INVIND)
	}

	var (
		baseID      types.ObjID
		hasBase     bool
		checkParent bool
	)
	if len(args) >= 2 {
		baseVal, ok := args[1].(types.ObjValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		baseID = baseVal.ID()
		hasBase = true
	}
	if len(args) == 3 {
		flag, ok := args[2].(types.IntValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		checkParent = flag.Val != 0
	}

	out := make([]types.Value, 0)
	current := obj
	valid := true
	for valid && current.Location != types.ObjNothing {
		locID := current.Location

		if hasBase {
			if !checkParent && locID == baseID {
				break
			}
			if checkParent && (locID == baseID || tx.IsAncestor(baseID, locID)) {
				break
			}
		}

		out = append(out, types.NewObj(locID))
		current, valid = tx.GetObject(locID)
	}

	return types.Ok(types.NewList(out))
}

func builtinOwnedObjects(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	owner, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if !tx.ValidObject(owner.ID()) {
		return types.Err(types.E_INVIND)
	}
	out := make([]types.Value, 0)
	for _, id := range tx.AllObjects() {
		obj, ok := tx.GetObject(id)
		if ok && obj.Owner == owner.ID() {
			out = append(out, types.NewObj(id))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].(types.ObjValue).ID() < out[j].(types.ObjValue).ID()
	})
	return types.Ok(types.NewList(out))
}

func builtinRecycledObjects(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) != 0 {
		return types.Err(types.E_ARGS)
	}
	out := make([]types.Value, 0)
	upper := tx.MaxObjectID() + 1
	for id := types.ObjID(0); id < upper; id++ {
		if tx.IsRecycled(id) {
			out = append(out, types.NewObj(id))
		}
	}
	return types.Ok(types.NewList(out))
}

func builtinNextRecycledObject(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) > 1 {
		return types.Err(types.E_ARGS)
	}

	start := types.ObjID(-1)
	if len(args) == 1 {
		switch startArg := args[0].(type) {
		case types.ObjValue:
			start = startArg.ID()
		case types.IntValue:
			start = types.ObjID(startArg.Val)
		default:
			return types.Err(types.E_TYPE)
		}
		if start == types.ObjNothing {
			return types.Err(types.E_INVARG)
		}
		if start > tx.MaxObjectID() {
			return types.Err(types.E_INVARG)
		}
	}

	upper := tx.MaxObjectID() + 1
	for id := start + 1; id < upper; id++ {
		if tx.IsRecycled(id) {
			return types.Ok(types.NewObj(id))
		}
	}
	return types.Ok(types.NewInt(0))
}

func builtinRecreate(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) < 1 || len(args) > 3 {
		return types.Err(types.E_ARGS)
	}
	if !ctx.IsWizard {
		return types.Err(types.E_PERM)
	}
	obj, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	parent := types.ObjNothing
	owner := ctx.Programmer
	if len(args) >= 2 {
		p, ok := args[1].(types.ObjValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		parent = p.ID()
	}
	if len(args) == 3 {
		o, ok := args[2].(types.ObjValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		owner = o.ID()
	}
	if err := tx.Recreate(obj.ID(), parent, owner); err != nil {
		return types.Err(types.E_INVARG)
	}
	return types.Ok(types.NewObj(obj.ID()))
}

// builtinWaifStats implements waif_stats(). Waifs are ephemeral MOO values
// in this implementation (not persisted objects tracked by class), so
// there is nothing to enumerate; this reports an empty, always-zero
// breakdown rather than pretending to count live instances.
func builtinWaifStats(ctx *types.TaskContext, args []types.Value) types.Result {
	if _, ok := storeFromCtx(ctx); !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) != 0 {
		return types.Err(types.E_ARGS)
	}
	result := types.NewMap([][2]types.Value{
		{types.NewStr("total"), types.NewInt(0)},
		{types.NewStr("classes"), types.NewEmptyList()},
	})
	return types.Ok(result)
}
