package types

import "fmt"

// LambdaValue is a first-class MOO closure: a compiled subprogram plus a
// frozen snapshot of the locals it captured at the point `MakeLambda` ran.
//
// Program is typed `any` rather than `*vm.Program` to avoid a types<->vm
// import cycle (the same trick the teacher's db.Verb.BytecodeCache uses for
// its compiled-program cache). The vm package is the only place that type
// -asserts it back.
type LambdaValue struct {
	Program  any
	Captured []Value
	ParamDoc string // human-readable parameter list, for tostr()/toliteral()
}

// NewLambda creates a new lambda value. captured is copied so later
// mutation of the caller's locals array cannot reach inside the value.
func NewLambda(program any, captured []Value, paramDoc string) LambdaValue {
	cp := make([]Value, len(captured))
	copy(cp, captured)
	return LambdaValue{Program: program, Captured: cp, ParamDoc: paramDoc}
}

// Type returns the MOO type code.
func (l LambdaValue) Type() TypeCode {
	return TYPE_LAMBDA
}

// String returns a MOO-ish literal representation. Lambdas are not
// round-trippable through toliteral (LambdaMOO/ToastStunt do not make them
// so either) so this is a descriptive form only.
func (l LambdaValue) String() string {
	return fmt.Sprintf("fn (%s) ... endfn", l.ParamDoc)
}

// Truthy returns whether the value is truthy. Lambdas are always truthy.
func (l LambdaValue) Truthy() bool {
	return true
}

// Equal compares two values for equality. Lambdas are equal only by
// identity of their underlying program and captured environment length;
// MOO has no structural closure equality.
func (l LambdaValue) Equal(other Value) bool {
	o, ok := other.(LambdaValue)
	if !ok {
		return false
	}
	return l.Program == o.Program && len(l.Captured) == len(o.Captured)
}
