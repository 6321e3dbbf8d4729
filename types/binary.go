package types

import (
	"encoding/hex"
)

// BinaryValue represents an immutable MOO binary string. It supports the
// same 1-based index/slice contract as StrValue but holds raw bytes rather
// than UTF-8 text.
type BinaryValue struct {
	data []byte
}

// NewBinary creates a new binary value from a byte slice. The slice is
// copied so later mutation by the caller cannot reach inside the value.
func NewBinary(b []byte) BinaryValue {
	cp := make([]byte, len(b))
	copy(cp, b)
	return BinaryValue{data: cp}
}

// Type returns the MOO type code.
func (b BinaryValue) Type() TypeCode {
	return TYPE_BINARY
}

// String returns the MOO literal representation: a hex-encoded byte string.
func (b BinaryValue) String() string {
	return "b\"" + hex.EncodeToString(b.data) + "\""
}

// Truthy returns whether the value is truthy. Empty binaries are falsy.
func (b BinaryValue) Truthy() bool {
	return len(b.data) > 0
}

// Equal compares two values for equality.
func (b BinaryValue) Equal(other Value) bool {
	o, ok := other.(BinaryValue)
	if !ok || len(o.data) != len(b.data) {
		return false
	}
	for i := range b.data {
		if b.data[i] != o.data[i] {
			return false
		}
	}
	return true
}

// Len returns the number of bytes.
func (b BinaryValue) Len() int {
	return len(b.data)
}

// Bytes returns the underlying bytes. Callers must not mutate the result.
func (b BinaryValue) Bytes() []byte {
	return b.data
}

// Get returns the byte at 1-based index i as an IntValue, or ok=false if
// out of range (callers raise E_RANGE).
func (b BinaryValue) Get(i int) (IntValue, bool) {
	if i < 1 || i > len(b.data) {
		return IntValue{}, false
	}
	return IntValue{Val: int64(b.data[i-1])}, true
}

// Slice returns the inclusive 1-based byte range [start, end], or ok=false
// if the range is invalid.
func (b BinaryValue) Slice(start, end int) (BinaryValue, bool) {
	if start < 1 || end > len(b.data) || start > end+1 {
		return BinaryValue{}, false
	}
	if start > end {
		return BinaryValue{data: []byte{}}, true
	}
	return NewBinary(b.data[start-1 : end]), true
}
