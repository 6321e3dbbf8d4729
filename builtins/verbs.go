package builtins

import (
	"fmt"
	"sort"
	"strings"

	"moocore/parser"
	"moocore/types"
	"moocore/worldstate"
)

// Preposition list matching ToastStunt's prep_list
// Index corresponds to PrepSpec value
var prepList = []string{
	"with/using",               // 0
	"at/to",                    // 1
	"in front of",               // 2
	"in/inside/into",            // 3
	"on top of/on/onto/upon",    // 4
	"out of/from inside/from",   // 5
	"over",                      // 6
	"through",                   // 7
	"under/underneath/beneath",  // 8
	"behind",                    // 9
	"beside",                    // 10
	"for/about",                 // 11
	"is",                        // 12
	"as",                        // 13
	"off/off of",                // 14
}

// matchArgSpec validates argument spec string (this/none/any)
func matchArgSpec(s string) bool {
	lower := strings.ToLower(s)
	return lower == "this" || lower == "none" || lower == "any"
}

// matchPrepSpec validates and returns prep index or -1 if invalid
func matchPrepSpec(s string) int {
	lower := strings.ToLower(s)
	if lower == "none" || lower == "any" {
		return -2 // Special value for none/any
	}

	for idx, prepStr := range prepList {
		aliases := strings.Split(prepStr, "/")
		for _, alias := range aliases {
			if strings.ToLower(alias) == lower {
				return idx
			}
		}
	}
	return -1
}

// unparsePrepSpec returns the full prep string for a prep value stored in verb
func unparsePrepSpec(prepStr string) string {
	lower := strings.ToLower(prepStr)
	if lower == "none" || lower == "any" {
		return lower
	}

	for _, fullPrep := range prepList {
		aliases := strings.Split(fullPrep, "/")
		for _, alias := range aliases {
			if strings.ToLower(alias) == lower {
				return fullPrep
			}
		}
	}

	return prepStr
}

// RegisterVerbBuiltins registers verb-related builtin functions
func (r *Registry) RegisterVerbBuiltins() {
	r.Register("verbs", builtinVerbs)
	r.Register("verb_info", builtinVerbInfo)
	r.Register("verb_args", builtinVerbArgs)
	r.Register("verb_code", builtinVerbCode)
	r.Register("add_verb", builtinAddVerb)
	r.Register("delete_verb", builtinDeleteVerb)
	r.Register("set_verb_info", builtinSetVerbInfo)
	r.Register("set_verb_args", builtinSetVerbArgs)
	r.Register("set_verb_code", builtinSetVerbCode)
	r.Register("disassemble", builtinDisassemble)
}

// sortedVerbNames returns an object's own verb primary names in a stable
// order, so verb_info/verb_args/etc. can be addressed by 1-based index.
func sortedVerbNames(tx *worldstate.Transaction, objID types.ObjID) []string {
	names := tx.VerbNames(objID)
	sort.Strings(names)
	return names
}

// findVerbByNameOrIndex resolves args[argIdx] (a verb name string or a
// 1-based index into the object's own verb list) to a verb record.
// resolveInherited controls whether inheritance is walked (true for
// read-only introspection, false for builtins that mutate the verb
// defined directly on the object).
func findVerbByNameOrIndex(tx *worldstate.Transaction, objID types.ObjID, arg types.Value, resolveInherited bool) (worldstate.VerbRecord, types.ObjID, types.ErrorCode) {
	switch v := arg.(type) {
	case types.StrValue:
		if resolveInherited {
			verb, definedOn, ok := tx.ResolveVerb(objID, v.Value())
			if !ok {
				return worldstate.VerbRecord{}, types.ObjNothing, types.E_VERBNF
			}
			return verb, definedOn, types.E_NONE
		}
		verb, ok := tx.GetVerb(objID, v.Value())
		if !ok {
			return worldstate.VerbRecord{}, types.ObjNothing, types.E_VERBNF
		}
		return verb, objID, types.E_NONE
	case types.IntValue:
		names := sortedVerbNames(tx, objID)
		index := int(v.Val) - 1
		if index < 0 || index >= len(names) {
			return worldstate.VerbRecord{}, types.ObjNothing, types.E_RANGE
		}
		verb, ok := tx.GetVerb(objID, names[index])
		if !ok {
			return worldstate.VerbRecord{}, types.ObjNothing, types.E_VERBNF
		}
		return verb, objID, types.E_NONE
	default:
		return worldstate.VerbRecord{}, types.ObjNothing, types.E_TYPE
	}
}

// builtinVerbs: verbs(object) -> LIST
// Returns list of verb names defined directly on object
func builtinVerbs(ctx *types.TaskContext, args []types.Value) types.Result {
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

	names := sortedVerbNames(tx, objVal.ID())
	out := make([]types.Value, 0, len(names))
	for _, name := range names {
		verb, ok := tx.GetVerb(objVal.ID(), name)
		if !ok {
			continue
		}
		out = append(out, types.NewStr(verb.Names[0]))
	}
	return types.Ok(types.NewList(out))
}

// builtinVerbInfo: verb_info(object, name-or-index) -> LIST
// Returns {owner, perms, names}
func builtinVerbInfo(ctx *types.TaskContext, args []types.Value) types.Result {
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
	if !tx.ValidObject(objVal.ID()) {
		return types.Err(types.E_INVIND)
	}

	verb, _, errCode := findVerbByNameOrIndex(tx, objVal.ID(), args[1], true)
	if errCode != types.E_NONE {
		return types.Err(errCode)
	}

	namesStr := strings.Join(verb.Names, " ")

	return types.Ok(types.NewList([]types.Value{
		types.NewObj(verb.Owner),
		types.NewStr(verb.Perms.String()),
		types.NewStr(namesStr),
	}))
}

// builtinVerbArgs: verb_args(object, name-or-index) -> LIST
// Returns {dobj, prep, iobj}
func builtinVerbArgs(ctx *types.TaskContext, args []types.Value) types.Result {
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
	if !tx.ValidObject(objVal.ID()) {
		return types.Err(types.E_INVIND)
	}

	verb, _, errCode := findVerbByNameOrIndex(tx, objVal.ID(), args[1], true)
	if errCode != types.E_NONE {
		return types.Err(errCode)
	}

	prepStr := unparsePrepSpec(verb.ArgSpec.Prep)

	return types.Ok(types.NewList([]types.Value{
		types.NewStr(verb.ArgSpec.This),
		types.NewStr(prepStr),
		types.NewStr(verb.ArgSpec.That),
	}))
}

// builtinVerbCode: verb_code(object, name [, fully_paren [, indent]]) -> LIST
// Returns verb source code as a list of lines
func builtinVerbCode(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) < 2 || len(args) > 4 {
		return types.Err(types.E_ARGS)
	}

	objVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if !tx.ValidObject(objVal.ID()) {
		return types.Err(types.E_INVIND)
	}

	verb, _, errCode := findVerbByNameOrIndex(tx, objVal.ID(), args[1], true)
	if errCode != types.E_NONE {
		return types.Err(errCode)
	}

	if !verb.Perms.Has(worldstate.VerbRead) && !ctx.IsWizard {
		return types.Err(types.E_PERM)
	}

	lines := make([]types.Value, len(verb.Code))
	for i, line := range verb.Code {
		lines[i] = types.NewStr(line)
	}

	return types.Ok(types.NewList(lines))
}

// builtinAddVerb: add_verb(object, info, args) -> INT
// Adds a new verb to object and returns its 1-based index among the
// object's own verbs.
// info: {owner, perms, names}
// args: {dobj, prep, iobj}
func builtinAddVerb(ctx *types.TaskContext, args []types.Value) types.Result {
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
	infoList, ok := args[1].(types.ListValue)
	if !ok || infoList.Len() != 3 {
		return types.Err(types.E_INVARG)
	}
	argsList, ok := args[2].(types.ListValue)
	if !ok || argsList.Len() != 3 {
		return types.Err(types.E_INVARG)
	}

	objID := objVal.ID()
	obj, ok := tx.GetObject(objID)
	if !ok {
		return types.Err(types.E_INVIND)
	}

	owner, ok := infoList.Get(1).(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	ownerID := owner.ID()
	if !tx.ValidObject(ownerID) {
		return types.Err(types.E_INVARG)
	}

	permsStr, ok := infoList.Get(2).(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	for _, ch := range permsStr.Value() {
		switch ch {
		case 'r', 'w', 'x', 'd', 'R', 'W', 'X', 'D':
		default:
			return types.Err(types.E_INVARG)
		}
	}

	namesStr, ok := infoList.Get(3).(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	dobjVal, ok := argsList.Get(1).(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	prepVal, ok := argsList.Get(2).(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	iobjVal, ok := argsList.Get(3).(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	dobjStr := dobjVal.Value()
	prepStr := prepVal.Value()
	iobjStr := iobjVal.Value()

	if !matchArgSpec(dobjStr) {
		return types.Err(types.E_INVARG)
	}
	if matchPrepSpec(prepStr) == -1 {
		return types.Err(types.E_INVARG)
	}
	if !matchArgSpec(iobjStr) {
		return types.Err(types.E_INVARG)
	}

	names := strings.Fields(namesStr.Value())
	if len(names) == 0 {
		return types.Err(types.E_INVARG)
	}

	if !ctx.IsWizard {
		if !obj.Flags.Has(worldstate.FlagWrite) && obj.Owner != ctx.Player {
			return types.Err(types.E_PERM)
		}
		if ownerID != ctx.Player {
			return types.Err(types.E_PERM)
		}
	}

	if _, exists := tx.GetVerb(objID, names[0]); exists {
		return types.Err(types.E_INVARG)
	}

	perms := parseVerbPerms(permsStr.Value())

	if err := tx.DefineVerb(objID, names[0], worldstate.VerbRecord{
		Names: names,
		Owner: ownerID,
		Perms: perms,
		ArgSpec: worldstate.VerbArgs{
			This: dobjStr,
			Prep: prepStr,
			That: iobjStr,
		},
		Code: []string{},
	}); err != nil {
		return types.Err(types.E_INVARG)
	}

	sorted := sortedVerbNames(tx, objID)
	for i, n := range sorted {
		if n == names[0] {
			return types.Ok(types.NewInt(int64(i + 1)))
		}
	}
	return types.Ok(types.NewInt(int64(len(sorted))))
}

// builtinDeleteVerb: delete_verb(object, name-or-index) -> none
func builtinDeleteVerb(ctx *types.TaskContext, args []types.Value) types.Result {
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
	if !tx.ValidObject(objVal.ID()) {
		return types.Err(types.E_INVIND)
	}

	verb, _, errCode := findVerbByNameOrIndex(tx, objVal.ID(), args[1], false)
	if errCode != types.E_NONE {
		return types.Err(errCode)
	}

	if !ctx.IsWizard && verb.Owner != ctx.Programmer {
		return types.Err(types.E_PERM)
	}

	if err := tx.DeleteVerb(objVal.ID(), verb.Names[0]); err != nil {
		return types.Err(types.E_VERBNF)
	}
	return types.Ok(types.NewInt(0))
}

// builtinSetVerbInfo: set_verb_info(object, name-or-index, info) -> none
// info: {owner, perms, names}
func builtinSetVerbInfo(ctx *types.TaskContext, args []types.Value) types.Result {
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
	if !tx.ValidObject(objVal.ID()) {
		return types.Err(types.E_INVIND)
	}

	infoList, ok := args[2].(types.ListValue)
	if !ok || infoList.Len() != 3 {
		return types.Err(types.E_INVARG)
	}

	verb, definedOn, errCode := findVerbByNameOrIndex(tx, objVal.ID(), args[1], false)
	if errCode != types.E_NONE {
		return types.Err(errCode)
	}

	if !ctx.IsWizard && verb.Owner != ctx.Programmer {
		return types.Err(types.E_PERM)
	}

	owner, ok := infoList.Get(1).(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	permsStr, ok := infoList.Get(2).(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	namesStr, ok := infoList.Get(3).(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	names := strings.Fields(namesStr.Value())
	if len(names) == 0 {
		return types.Err(types.E_INVARG)
	}

	oldName := verb.Names[0]
	verb.Owner = owner.ID()
	verb.Perms = parseVerbPerms(permsStr.Value())
	verb.Names = names

	if err := tx.DeleteVerb(definedOn, oldName); err != nil {
		return types.Err(types.E_INVARG)
	}
	if err := tx.DefineVerb(definedOn, names[0], verb); err != nil {
		return types.Err(types.E_INVARG)
	}

	return types.Ok(types.NewInt(0))
}

// builtinSetVerbArgs: set_verb_args(object, name-or-index, args) -> none
// args: {dobj, prep, iobj}
func builtinSetVerbArgs(ctx *types.TaskContext, args []types.Value) types.Result {
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
	if !tx.ValidObject(objVal.ID()) {
		return types.Err(types.E_INVIND)
	}

	argsList, ok := args[2].(types.ListValue)
	if !ok || argsList.Len() != 3 {
		return types.Err(types.E_INVARG)
	}

	verb, definedOn, errCode := findVerbByNameOrIndex(tx, objVal.ID(), args[1], false)
	if errCode != types.E_NONE {
		return types.Err(errCode)
	}

	if !ctx.IsWizard && verb.Owner != ctx.Programmer {
		return types.Err(types.E_PERM)
	}

	verb.ArgSpec = worldstate.VerbArgs{
		This: valueToArgSpec(argsList.Get(1)),
		Prep: valueToArgSpec(argsList.Get(2)),
		That: valueToArgSpec(argsList.Get(3)),
	}

	if err := tx.DefineVerb(definedOn, verb.Names[0], verb); err != nil {
		return types.Err(types.E_INVARG)
	}
	return types.Ok(types.NewInt(0))
}

// builtinSetVerbCode: set_verb_code(object, name-or-index, code) -> LIST
// Stores verb source code, returning an empty list on success or a list
// of parse errors on failure. Bytecode compilation is deferred to the VM
// the first time the verb is actually invoked.
func builtinSetVerbCode(ctx *types.TaskContext, args []types.Value) types.Result {
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
	if !tx.ValidObject(objVal.ID()) {
		return types.Err(types.E_INVIND)
	}

	verb, definedOn, errCode := findVerbByNameOrIndex(tx, objVal.ID(), args[1], false)
	if errCode != types.E_NONE {
		return types.Err(errCode)
	}

	if !ctx.IsWizard && verb.Owner != ctx.Programmer {
		return types.Err(types.E_PERM)
	}

	var lines []string
	switch code := args[2].(type) {
	case types.StrValue:
		lines = []string{code.Value()}
	case types.ListValue:
		lines = make([]string, code.Len())
		for i := 1; i <= code.Len(); i++ {
			lineVal, ok := code.Get(i).(types.StrValue)
			if !ok {
				return types.Err(types.E_TYPE)
			}
			lines[i-1] = lineVal.Value()
		}
	default:
		return types.Err(types.E_TYPE)
	}

	source := strings.Join(lines, "\n")
	p := parser.NewParser(source)
	if _, err := p.ParseProgram(); err != nil {
		return types.Ok(types.NewList([]types.Value{types.NewStr(err.Error())}))
	}

	verb.Code = lines
	verb.Program = nil // invalidate any cached bytecode; recompiled on next call
	if err := tx.DefineVerb(definedOn, verb.Names[0], verb); err != nil {
		return types.Err(types.E_INVARG)
	}

	return types.Ok(types.NewList([]types.Value{}))
}

// valueToArgSpec converts a Value to an arg spec string
func valueToArgSpec(v types.Value) string {
	switch val := v.(type) {
	case types.StrValue:
		return val.Value()
	case types.ObjValue:
		return fmt.Sprintf("%d", val.ID())
	default:
		return ""
	}
}

// parseVerbPerms converts permission string like "rxd" to VerbPerms
func parseVerbPerms(s string) worldstate.VerbPerms {
	var perms worldstate.VerbPerms
	for _, ch := range s {
		switch ch {
		case 'r':
			perms |= worldstate.VerbRead
		case 'w':
			perms |= worldstate.VerbWrite
		case 'x':
			perms |= worldstate.VerbExecute
		case 'd':
			perms |= worldstate.VerbDebug
		}
	}
	return perms
}

// builtinDisassemble: disassemble(object, name-or-index) -> LIST
// Returns a pseudo-opcode listing of the verb's source (wizard only). This
// walks the parse tree rather than the VM's actual bytecode program, since
// builtins cannot import the vm package (vm imports builtins, to resolve
// builtin-function names at compile time).
func builtinDisassemble(ctx *types.TaskContext, args []types.Value) types.Result {
	tx, ok := storeFromCtx(ctx)
	if !ok {
		return types.Err(types.E_INVIND)
	}
	if len(args) != 2 {
		return types.Err(types.E_ARGS)
	}

	if !ctx.IsWizard {
		return types.Err(types.E_PERM)
	}

	objVal, ok := args[0].(types.ObjValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if !tx.ValidObject(objVal.ID()) {
		return types.Err(types.E_INVIND)
	}

	verb, _, errCode := findVerbByNameOrIndex(tx, objVal.ID(), args[1], true)
	if errCode != types.E_NONE {
		return types.Err(errCode)
	}

	if len(verb.Code) == 0 {
		return types.Ok(types.NewList([]types.Value{}))
	}

	source := strings.Join(verb.Code, "\n")
	p := parser.NewParser(source)
	statements, err := p.ParseProgram()
	if err != nil {
		return types.Err(types.E_INVARG)
	}

	var lines []string
	for _, stmt := range statements {
		lines = append(lines, disassembleStmt(stmt)...)
	}

	result := make([]types.Value, len(lines))
	for i, line := range lines {
		result[i] = types.NewStr(line)
	}

	return types.Ok(types.NewList(result))
}

// disassembleStmt walks a statement AST node and emits pseudo-opcodes
func disassembleStmt(stmt parser.Stmt) []string {
	switch s := stmt.(type) {
	case *parser.ExprStmt:
		return disassembleExpr(s.Expr)
	case *parser.ReturnStmt:
		if s.Value != nil {
			lines := disassembleExpr(s.Value)
			lines = append(lines, "RETURN")
			return lines
		}
		return []string{"RETURN"}
	default:
		return []string{"STMT"}
	}
}

// disassembleExpr walks an expression AST node and emits pseudo-opcodes
func disassembleExpr(expr parser.Expr) []string {
	switch e := expr.(type) {
	case *parser.BinaryExpr:
		lines := disassembleExpr(e.Left)
		lines = append(lines, disassembleExpr(e.Right)...)
		lines = append(lines, opToOpcode(e.Operator))
		return lines
	case *parser.UnaryExpr:
		lines := disassembleExpr(e.Operand)
		lines = append(lines, unaryOpToOpcode(e.Operator))
		return lines
	case *parser.LiteralExpr:
		return []string{fmt.Sprintf("PUSH %v", e.Value)}
	case *parser.IndexExpr:
		lines := disassembleExpr(e.Expr)
		lines = append(lines, disassembleExpr(e.Index)...)
		lines = append(lines, "INDEX")
		return lines
	case *parser.RangeExpr:
		lines := disassembleExpr(e.Expr)
		lines = append(lines, disassembleExpr(e.Start)...)
		lines = append(lines, disassembleExpr(e.End)...)
		lines = append(lines, "RANGE")
		return lines
	case *parser.IndexMarkerExpr:
		if e.Marker == parser.TOKEN_CARET {
			return []string{"FIRST"}
		}
		return []string{"LAST"}
	default:
		return []string{"EXPR"}
	}
}

// opToOpcode converts a binary operator token to opcode name
func opToOpcode(op parser.TokenType) string {
	switch op {
	case parser.TOKEN_BITAND:
		return "BITAND"
	case parser.TOKEN_BITOR:
		return "BITOR"
	case parser.TOKEN_BITXOR:
		return "BITXOR"
	case parser.TOKEN_LSHIFT:
		return "BITSHL"
	case parser.TOKEN_RSHIFT:
		return "BITSHR"
	case parser.TOKEN_PLUS:
		return "ADD"
	case parser.TOKEN_MINUS:
		return "SUB"
	case parser.TOKEN_STAR:
		return "MUL"
	case parser.TOKEN_SLASH:
		return "DIV"
	case parser.TOKEN_PERCENT:
		return "MOD"
	default:
		return "OP"
	}
}

// unaryOpToOpcode converts a unary operator token to opcode name
func unaryOpToOpcode(op parser.TokenType) string {
	switch op {
	case parser.TOKEN_BITNOT:
		return "COMPLEMENT"
	case parser.TOKEN_MINUS:
		return "NEG"
	case parser.TOKEN_NOT:
		return "NOT"
	default:
		return "UNARY_OP"
	}
}
