package builtins

import (
	"moocore/types"
	"moocore/worldstate"
)

// RegisterPropertyBuiltins registers property management builtins
func (r *Registry) RegisterPropertyBuiltins() {
	r.Register("properties", builtinProperties)
	r.Register("property_info", builtinPropertyInfo)
	r.Register("set_property_info", builtinSetPropertyInfo)
	r.Register("add_property", builtinAddProperty)
	r.Register("delete_property", builtinDeleteProperty)
	r.Register("clear_property", builtinClearProperty)
	r.Register("is_clear_property", builtinIsClearProperty)
}

func canReadProperty(ctx *types.TaskContext, prop worldstate.PropertyRecord) bool {
	return ctx.IsWizard || ctx.Programmer == prop.Owner || prop.Perms.Has(worldstate.PropRead)
}

func canWriteProperty(ctx *types.TaskContext, prop worldstate.PropertyRecord) bool {
	return ctx.IsWizard || ctx.Programmer == prop.Owner || prop.Perms.Has(worldstate.PropWrite)
}

// builtinProperties implements properties(object).
// Returns the list of property names defined directly on object (not inherited).
func builtinProperties(ctx *types.TaskContext, args []types.Value) types.Result {
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
		return types.Err(types.E_INVIND)
	}

	names := tx.PropertyNames(objVal.ID())
	out := make([]types.Value, 0, len(names))
	for _, name := range names {
		out = append(out, types.NewStr(name))
	}
	return types.Ok(types.NewList(out))
}

// builtinPropertyInfo implements property_info(object, name).
// Returns {owner, perms} where perms is a string like "rw".
func builtinPropertyInfo(ctx *types.TaskContext, args []types.Value) types.Result {
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
	nameVal, ok := args[1].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	prop, _, found := tx.ResolveProperty(objVal.ID(), nameVal.Value())
	if !found {
		return types.Err(types.E_PROPNF)
	}
	if !canReadProperty(ctx, prop) {
		return types.Err(types.E_PERM)
	}

	result := []types.Value{
		types.NewObj(prop.Owner),
		types.NewStr(prop.Perms.String()),
	}
	return types.Ok(types.NewList(result))
}

// builtinSetPropertyInfo implements set_property_info(object, name, info).
// info is either {owner, perms} or just a perms string.
func builtinSetPropertyInfo(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) != 3 {
		return types.Err(types.E_ARGS)
	}
	objVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	nameVal, ok := args[1].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	prop, definedOn, found := tx.ResolveProperty(objVal.ID(), nameVal.Value())
	if !found {
		return types.Err(types.E_PROPNF)
	}
	if !ctx.IsWizard && ctx.Programmer != prop.Owner {
		return types.Err(types.E_PERM)
	}

	owner := prop.Owner
	var perms worldstate.PropertyPerms
	switch info := args[2].(type) {
	case types.StrValue:
		perms = parsePerms(info.Value())
	case types.ListValue:
		elements := info.Elements()
		if len(elements) != 2 {
			return types.Err(types.E_INVARG)
		}
		ownerVal, ok := elements[0].(types.ObjValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		permsVal, ok := elements[1].(types.StrValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		owner = ownerVal.ID()
		perms = parsePerms(permsVal.Value())
	default:
		return types.Err(types.E_TYPE)
	}

	if err := tx.SetPropertyPerms(definedOn, nameVal.Value(), owner, perms); err != nil {
		return types.Err(types.E_INVARG)
	}
	return types.Ok(types.NewInt(0))
}

// builtinAddProperty implements add_property(object, name, value, info).
func builtinAddProperty(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) != 4 {
		return types.Err(types.E_ARGS)
	}
	objVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	nameVal, ok := args[1].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if !tx.ValidObject(objVal.ID()) {
		return types.Err(types.E_INVIND)
	}
	if !ctx.IsWizard && ctx.Programmer != objIDOwner(tx, objVal.ID()) {
		return types.Err(types.E_PERM)
	}

	value := args[2]
	propName := nameVal.Value()

	var owner types.ObjID
	var perms worldstate.PropertyPerms
	switch info := args[3].(type) {
	case types.StrValue:
		owner = ctx.Programmer
		perms = parsePerms(info.Value())
	case types.ListValue:
		elements := info.Elements()
		if len(elements) != 2 {
			return types.Err(types.E_INVARG)
		}
		ownerVal, ok := elements[0].(types.ObjValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		permsVal, ok := elements[1].(types.StrValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		owner = ownerVal.ID()
		perms = parsePerms(permsVal.Value())
	default:
		return types.Err(types.E_TYPE)
	}

	if err := tx.DefineProperty(objVal.ID(), propName, value, owner, perms); err != nil {
		return types.Err(types.E_INVARG)
	}
	return types.Ok(types.NewInt(0))
}

// builtinDeleteProperty implements delete_property(object, name).
func builtinDeleteProperty(ctx *types.TaskContext, args []types.Value) types.Result {
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
	nameVal, ok := args[1].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if !ctx.IsWizard && ctx.Programmer != objIDOwner(tx, objVal.ID()) {
		return types.Err(types.E_PERM)
	}
	if err := tx.DeleteProperty(objVal.ID(), nameVal.Value()); err != nil {
		return types.Err(types.E_PROPNF)
	}
	return types.Ok(types.NewInt(0))
}

// builtinClearProperty implements clear_property(object, name).
func builtinClearProperty(ctx *types.TaskContext, args []types.Value) types.Result {
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
	nameVal, ok := args[1].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	prop, _, found := tx.ResolveProperty(objVal.ID(), nameVal.Value())
	if !found {
		return types.Err(types.E_PROPNF)
	}
	if !canWriteProperty(ctx, prop) {
		return types.Err(types.E_PERM)
	}
	if err := tx.ClearProperty(objVal.ID(), nameVal.Value()); err != nil {
		return types.Err(types.E_INVARG)
	}
	return types.Ok(types.NewInt(0))
}

// builtinIsClearProperty implements is_clear_property(object, name).
func builtinIsClearProperty(ctx *types.TaskContext, args []types.Value) types.Result {
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
	nameVal, ok := args[1].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	prop, _, found := tx.ResolveProperty(objVal.ID(), nameVal.Value())
	if !found {
		return types.Err(types.E_PROPNF)
	}
	return types.Ok(types.NewBool(prop.Clear))
}

// Helper functions

func objIDOwner(tx *worldstate.Transaction, id types.ObjID) types.ObjID {
	obj, ok := tx.GetObject(id)
	if !ok {
		return types.ObjNothing
	}
	return obj.Owner
}

// parsePerms converts a permission string like "rw" to PropertyPerms flags.
func parsePerms(s string) worldstate.PropertyPerms {
	var perms worldstate.PropertyPerms
	for _, c := range s {
		switch c {
		case 'r':
			perms |= worldstate.PropRead
		case 'w':
			perms |= worldstate.PropWrite
		case 'c':
			perms |= worldstate.PropChown
		}
	}
	return perms
}
