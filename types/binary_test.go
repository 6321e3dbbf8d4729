package types

import "testing"

func TestBinaryIndexAndSlice(t *testing.T) {
	b := NewBinary([]byte{0x01, 0x02, 0x03, 0xFF})

	if b.Len() != 4 {
		t.Fatalf("expected length 4, got %d", b.Len())
	}

	v, ok := b.Get(1)
	if !ok || v.Val != 1 {
		t.Errorf("Get(1) = %v, %v; want 1, true", v, ok)
	}

	if _, ok := b.Get(0); ok {
		t.Error("Get(0) should be out of range")
	}
	if _, ok := b.Get(5); ok {
		t.Error("Get(5) should be out of range")
	}

	sl, ok := b.Slice(2, 3)
	if !ok || sl.Len() != 2 || sl.Bytes()[0] != 0x02 {
		t.Errorf("Slice(2,3) = %v, %v", sl, ok)
	}

	empty, ok := b.Slice(3, 2)
	if !ok || empty.Len() != 0 {
		t.Errorf("Slice(3,2) should be a valid empty range, got %v, %v", empty, ok)
	}
}

func TestBinaryEquality(t *testing.T) {
	a := NewBinary([]byte{1, 2, 3})
	b := NewBinary([]byte{1, 2, 3})
	c := NewBinary([]byte{1, 2})

	if !a.Equal(b) {
		t.Error("equal byte content should compare equal")
	}
	if a.Equal(c) {
		t.Error("different lengths should not compare equal")
	}
	if NewBinary(nil).Truthy() {
		t.Error("empty binary should be falsy")
	}
}
