package types

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ObjKind distinguishes the three Obj flavors from the data model: ordinary
// id-number objects (the teacher's whole existing object space), packed
// UUID-style objects, and anonymous objects. Anonymous objects can arise
// either the teacher's original way (a plain sequential id with the
// anonymous flag set) or via the packed UUID encoding below; both report
// IsAnonymous() true and Type() TYPE_ANON.
type ObjKind uint8

const (
	ObjKindNumber ObjKind = iota
	ObjKindUUID
	ObjKindAnonymous
)

// ObjValue represents a MOO object reference.
type ObjValue struct {
	id   ObjID
	kind ObjKind
}

// Special object constants
const (
	NOTHING      = ObjID(-1)
	AMBIGUOUS    = ObjID(-2)
	FAILED_MATCH = ObjID(-3)
)

// NewObj creates a new ordinary id-number object value.
func NewObj(id ObjID) ObjValue {
	return ObjValue{id: id, kind: ObjKindNumber}
}

// NewAnon creates a new anonymous object value from a plain id (the
// teacher's original allocation path: a sequential id plus a flag, not the
// packed UUID encoding).
func NewAnon(id ObjID) ObjValue {
	return ObjValue{id: id, kind: ObjKindAnonymous}
}

// uuidObjCounter is the autoincrement component of packed UUID-style and
// UUID-anonymous object ids.
var uuidObjCounter uint64

// packUUIDLike builds a 62-bit-safe positive ObjID out of an autoincrement
// counter, a pseudo-random salt, and a millisecond epoch timestamp, per the
// data model's "autoincrement | rng | epoch-ms" encoding. tag occupies one
// of the two high bits that ordinary sequential object ids (which start at
// 0 and grow slowly) will not reach in practice, keeping the two id spaces
// disjoint within a single int64.
func packUUIDLike(tagBit uint64, nowMs int64, rngSalt uint32) ObjID {
	counter := atomic.AddUint64(&uuidObjCounter, 1) & 0xFFFF
	rng := uint64(rngSalt) & 0xFFFF
	epoch := uint64(nowMs) & 0x3FFFFFFF // 30 bits of millisecond epoch

	// counter(16) | rng(16) | epoch-low(30), tagged in bit 60 or 61.
	payload := (counter << 46) | (rng << 30) | epoch
	payload |= tagBit
	return ObjID(payload & 0x3FFFFFFFFFFFFFFF) // clear sign bit, stay positive
}

// NewUUIDObj allocates a fresh UUID-style object id (ObjKindUUID). These
// never collide with sequential id-number objects because tag bit 61 is
// set, which no teacher-style sequential allocation will ever reach.
func NewUUIDObj(rngSalt uint32) ObjValue {
	id := packUUIDLike(1<<61, time.Now().UnixMilli(), rngSalt)
	return ObjValue{id: id, kind: ObjKindUUID}
}

// NewAnonymousObjWithUUID allocates a fresh anonymous object using the
// packed UUID encoding (tag bit 60) rather than the legacy sequential path.
func NewAnonymousObjWithUUID(rngSalt uint32) ObjValue {
	id := packUUIDLike(1<<60, time.Now().UnixMilli(), rngSalt)
	return ObjValue{id: id, kind: ObjKindAnonymous}
}

// String returns the MOO string representation
func (o ObjValue) String() string {
	return fmt.Sprintf("#%d", o.id)
}

// Type returns the MOO type (TYPE_ANON for anonymous objects)
func (o ObjValue) Type() TypeCode {
	if o.kind == ObjKindAnonymous {
		return TYPE_ANON
	}
	return TYPE_OBJ
}

// IsAnonymous returns whether this is an anonymous object
func (o ObjValue) IsAnonymous() bool {
	return o.kind == ObjKindAnonymous
}

// IsUUID returns whether this object uses the packed UUID-style encoding
// (whether anonymous or not).
func (o ObjValue) IsUUID() bool {
	return o.kind == ObjKindUUID || (o.kind == ObjKindAnonymous && o.id >= (1<<60))
}

// Kind returns the object's kind tag.
func (o ObjValue) Kind() ObjKind {
	return o.kind
}

// Truthy returns whether the value is truthy
// In MOO, objects are never truthy
func (o ObjValue) Truthy() bool {
	return false
}

// Equal compares two values for equality. Equality is bitwise on the id;
// kind is not part of the comparison because the same underlying store
// never assigns the same id to two different kinds (the tag bits make the
// id spaces disjoint).
func (o ObjValue) Equal(other Value) bool {
	if otherObj, ok := other.(ObjValue); ok {
		return o.id == otherObj.id
	}
	return false
}

// ID returns the object ID
func (o ObjValue) ID() ObjID {
	return o.id
}
