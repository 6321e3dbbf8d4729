package types

import "testing"

func TestLambdaCaptureIsCopied(t *testing.T) {
	captured := []Value{NewInt(1), NewStr("x")}
	l := NewLambda("fake-program", captured, "a, b")

	captured[0] = NewInt(99)
	if l.Captured[0].(IntValue).Val != 1 {
		t.Error("lambda capture should be copied at construction, not aliased")
	}

	if !l.Truthy() {
		t.Error("lambdas should always be truthy")
	}
	if l.Type() != TYPE_LAMBDA {
		t.Errorf("expected TYPE_LAMBDA, got %v", l.Type())
	}
}

func TestLambdaEquality(t *testing.T) {
	prog := "program-a"
	a := NewLambda(prog, []Value{NewInt(1)}, "x")
	b := NewLambda(prog, []Value{NewInt(1)}, "x")
	c := NewLambda("program-b", []Value{NewInt(1)}, "x")

	if !a.Equal(b) {
		t.Error("same program and capture length should be equal")
	}
	if a.Equal(c) {
		t.Error("different programs should not be equal")
	}
}
