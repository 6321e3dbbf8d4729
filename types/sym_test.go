package types

import "testing"

func TestSymEquality(t *testing.T) {
	a := NewSym("Foo")
	b := NewSym("foo")
	c := NewSym("bar")

	if !a.Equal(b) {
		t.Errorf("symbols should compare case-insensitively: %v vs %v", a, b)
	}
	if a.Equal(c) {
		t.Errorf("distinct symbols should not be equal: %v vs %v", a, c)
	}
	if a.Name() != "foo" {
		t.Errorf("expected interned name %q, got %q", "foo", a.Name())
	}
}

func TestSymLiteral(t *testing.T) {
	s := NewSym("connect")
	if s.String() != "'connect" {
		t.Errorf("expected literal 'connect, got %q", s.String())
	}
	if s.Type() != TYPE_SYM {
		t.Errorf("expected TYPE_SYM, got %v", s.Type())
	}
	if !s.Truthy() {
		t.Error("symbols should always be truthy")
	}
}
