package builtins

import (
	"regexp"
	"strings"

	"moocore/types"
)

// translateMooPattern converts a classic LambdaMOO pattern (%( %) for
// grouping, bare ( ) as literals, %1-%9 for custom char classes is not
// supported here) into a Go regexp source string. This covers the common
// subset used by in-the-wild MOO code — literal characters, ., *, +, ^, $,
// character sets, and %(...%) groups — but not MOO's in-pattern
// backreferences (%1 used INSIDE a pattern to require text equal to an
// earlier group), since RE2 has no backreference support; that reduced
// fidelity is the tradeoff for reusing Go's regexp engine instead of
// hand-rolling a matcher.
func translateMooPattern(pattern string) string {
	var sb strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '%':
			if i+1 >= len(pattern) {
				sb.WriteString(regexp.QuoteMeta("%"))
				break
			}
			next := pattern[i+1]
			i++
			switch next {
			case '(':
				sb.WriteByte('(')
			case ')':
				sb.WriteByte(')')
			case '%':
				sb.WriteString(regexp.QuoteMeta("%"))
			case 'b':
				sb.WriteString(`\b`)
			case 'B':
				sb.WriteString(`\B`)
			case 'w':
				sb.WriteString(`\w`)
			case 'W':
				sb.WriteString(`\W`)
			default:
				sb.WriteString(regexp.QuoteMeta(string(next)))
			}
		case '(', ')':
			sb.WriteString(regexp.QuoteMeta(string(c)))
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// matchResult renders a match() / rmatch() return value: {} on no match,
// else {start, end, replacements, subject} where replacements is a 9-list
// of {start, end} pairs for %1-%9 ({0, -1} for unmatched groups).
func matchResult(subject string, loc []int) types.Value {
	if loc == nil {
		return types.NewEmptyList()
	}
	repls := make([]types.Value, 9)
	for g := 1; g <= 9; g++ {
		start, end := 0, -1
		if g*2+1 < len(loc) && loc[g*2] >= 0 {
			start = loc[g*2] + 1
			end = loc[g*2+1]
		}
		repls[g-1] = types.NewList([]types.Value{types.NewInt(int64(start)), types.NewInt(int64(end))})
	}
	return types.NewList([]types.Value{
		types.NewInt(int64(loc[0] + 1)),
		types.NewInt(int64(loc[1])),
		types.NewList(repls),
		types.NewStr(subject),
	})
}

func compileMooPattern(pattern, subject string, caseMatters bool) (*regexp.Regexp, error) {
	src := translateMooPattern(pattern)
	if !caseMatters {
		src = "(?i)" + src
	}
	_ = subject
	return regexp.Compile(src)
}

// builtinMatch: match(string, pattern [, case-matters]) -> LIST
func builtinMatch(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 2 || len(args) > 3 {
		return types.Err(types.E_ARGS)
	}
	subject, ok1 := args[0].(types.StrValue)
	pattern, ok2 := args[1].(types.StrValue)
	if !ok1 || !ok2 {
		return types.Err(types.E_TYPE)
	}
	caseMatters := false
	if len(args) == 3 {
		caseMatters = args[2].Truthy()
	}
	re, err := compileMooPattern(pattern.Value(), subject.Value(), caseMatters)
	if err != nil {
		return types.Err(types.E_INVARG)
	}
	loc := re.FindStringSubmatchIndex(subject.Value())
	return types.Ok(matchResult(subject.Value(), loc))
}

// builtinRmatch: rmatch(string, pattern [, case-matters]) -> LIST
// Finds the rightmost match, by scanning every match and keeping the last.
func builtinRmatch(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 2 || len(args) > 3 {
		return types.Err(types.E_ARGS)
	}
	subject, ok1 := args[0].(types.StrValue)
	pattern, ok2 := args[1].(types.StrValue)
	if !ok1 || !ok2 {
		return types.Err(types.E_TYPE)
	}
	caseMatters := false
	if len(args) == 3 {
		caseMatters = args[2].Truthy()
	}
	re, err := compileMooPattern(pattern.Value(), subject.Value(), caseMatters)
	if err != nil {
		return types.Err(types.E_INVARG)
	}
	matches := re.FindAllStringSubmatchIndex(subject.Value(), -1)
	if len(matches) == 0 {
		return types.Ok(types.NewEmptyList())
	}
	return types.Ok(matchResult(subject.Value(), matches[len(matches)-1]))
}

// builtinSubstitute: substitute(template, subs) -> STR
// subs is the 4-element list returned by match()/rmatch(); %1-%9 in
// template are replaced by the corresponding group's matched text, %0 by
// the whole match, %% by a literal %.
func builtinSubstitute(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 2 {
		return types.Err(types.E_ARGS)
	}
	template, ok := args[0].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	subsList, ok := args[1].(types.ListValue)
	if !ok || subsList.Len() != 4 {
		return types.Err(types.E_TYPE)
	}
	startVal, ok1 := subsList.Get(1).(types.IntValue)
	endVal, ok2 := subsList.Get(2).(types.IntValue)
	repls, ok3 := subsList.Get(3).(types.ListValue)
	subjectVal, ok4 := subsList.Get(4).(types.StrValue)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return types.Err(types.E_INVARG)
	}
	subject := subjectVal.Value()

	groupText := func(n int) (string, bool) {
		if n == 0 {
			if startVal.Val < 1 || endVal.Val < startVal.Val-1 {
				return "", false
			}
			if endVal.Val > int64(len(subject)) {
				return "", false
			}
			return subject[startVal.Val-1 : endVal.Val], true
		}
		if n < 1 || n > repls.Len() {
			return "", false
		}
		pair, ok := repls.Get(n).(types.ListValue)
		if !ok || pair.Len() != 2 {
			return "", false
		}
		gs, ok1 := pair.Get(1).(types.IntValue)
		ge, ok2 := pair.Get(2).(types.IntValue)
		if !ok1 || !ok2 || gs.Val < 1 || ge.Val < gs.Val-1 || ge.Val > int64(len(subject)) {
			return "", false
		}
		return subject[gs.Val-1 : ge.Val], true
	}

	src := template.Value()
	var out strings.Builder
	for i := 0; i < len(src); i++ {
		c := src[i]
		if c != '%' || i+1 >= len(src) {
			out.WriteByte(c)
			continue
		}
		next := src[i+1]
		i++
		switch {
		case next == '%':
			out.WriteByte('%')
		case next >= '0' && next <= '9':
			if text, ok := groupText(int(next - '0')); ok {
				out.WriteString(text)
			}
		default:
			out.WriteByte('%')
			out.WriteByte(next)
		}
	}
	return types.Ok(types.NewStr(out.String()))
}

// builtinSlice: slice(list [, index]) -> LIST
// Returns a list of the index-th element of each element of list (each of
// which must itself be a list or map). index defaults to 1; it may also be
// a list of indices, returning a list of lists.
func builtinSlice(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 1 || len(args) > 2 {
		return types.Err(types.E_ARGS)
	}
	list, ok := args[0].(types.ListValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	pick := func(v types.Value, idx types.Value) (types.Value, bool) {
		switch container := v.(type) {
		case types.ListValue:
			switch i := idx.(type) {
			case types.IntValue:
				if i.Val < 1 || i.Val > int64(container.Len()) {
					return nil, false
				}
				return container.Get(int(i.Val)), true
			}
		case types.MapValue:
			if key, ok := idx.(types.StrValue); ok {
				return container.Get(key)
			}
		}
		return nil, false
	}

	var indices []types.Value
	if len(args) == 2 {
		if idxList, ok := args[1].(types.ListValue); ok {
			indices = idxList.Elements()
		} else {
			indices = []types.Value{args[1]}
		}
	} else {
		indices = []types.Value{types.NewInt(1)}
	}

	out := make([]types.Value, 0, list.Len())
	for i := 1; i <= list.Len(); i++ {
		elem := list.Get(i)
		if len(indices) == 1 {
			v, ok := pick(elem, indices[0])
			if !ok {
				return types.Err(types.E_RANGE)
			}
			out = append(out, v)
			continue
		}
		picked := make([]types.Value, 0, len(indices))
		for _, idx := range indices {
			v, ok := pick(elem, idx)
			if !ok {
				return types.Err(types.E_RANGE)
			}
			picked = append(picked, v)
		}
		out = append(out, types.NewList(picked))
	}
	return types.Ok(types.NewList(out))
}

// builtinYin: yin(a, b) -> value
// Returns a if a is truthy, else b — an "or" as a function (both arguments
// are evaluated before the call), for use where an expression (not a
// statement) is required.
func builtinYin(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 2 {
		return types.Err(types.E_ARGS)
	}
	if args[0].Truthy() {
		return types.Ok(args[0])
	}
	return types.Ok(args[1])
}
