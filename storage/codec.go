package storage

import (
	"encoding/binary"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Int64Key encodes any int64-backed domain (object ids, sequence ids) as a
// big-endian 8-byte key, so bbolt's lexicographic key ordering doubles as
// numeric ordering for range scans over non-negative values; negative values
// (stored as their two's-complement bits) sort after every non-negative one.
// T is typically a named type such as
// worldstate's object id, not bare int64, so the codec composes cleanly
// with a relation's own domain type.
type Int64Key[T ~int64] struct{}

func (Int64Key[T]) EncodeKey(v T) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func (Int64Key[T]) DecodeKey(b []byte) T {
	return T(binary.BigEndian.Uint64(b))
}

// StringKey encodes a string domain as its raw UTF-8 bytes.
type StringKey struct{}

func (StringKey) EncodeKey(v string) []byte  { return []byte(v) }
func (StringKey) DecodeKey(b []byte) string  { return string(b) }

// JSONValue codes any JSON-serializable codomain value via json-iterator,
// for relations whose codomain doesn't warrant a hand-rolled binary
// format (property values, object flags, verb metadata).
type JSONValue[C any] struct{}

func (JSONValue[C]) EncodeValue(v C) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic("storage: value not JSON-encodable: " + err.Error())
	}
	return b
}

func (JSONValue[C]) DecodeValue(b []byte) C {
	var v C
	if err := json.Unmarshal(b, &v); err != nil {
		panic("storage: stored value failed to decode: " + err.Error())
	}
	return v
}

// Int64JSONCodec combines Int64Key with a JSON-coded codomain, the most
// common shape in the world-state schema (object-id keyed relations).
type Int64JSONCodec[T ~int64, C any] struct {
	Int64Key[T]
	JSONValue[C]
}

// StringJSONCodec combines StringKey with a JSON-coded codomain, used for
// relations keyed by verb name or other string identifiers.
type StringJSONCodec[C any] struct {
	StringKey
	JSONValue[C]
}
