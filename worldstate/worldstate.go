// Package worldstate puts MOO semantics on top of the generic MVCC store
// in storage: objects, their parent/location graph, properties and verbs,
// all addressed as relations keyed by object id. Every mutation happens
// inside a Transaction, which wraps a storage.Tx and commits or aborts all
// of it together.
package worldstate

import (
	"fmt"

	"github.com/hashicorp/golang-lru/v2"

	"moocore/storage"
	"moocore/types"
)

// ObjectFlags mirrors the teacher's permission/lifecycle bit flags.
type ObjectFlags uint32

const (
	FlagUser       ObjectFlags = 1 << 0
	FlagProgrammer ObjectFlags = 1 << 1
	FlagWizard     ObjectFlags = 1 << 2
	FlagRead       ObjectFlags = 1 << 4
	FlagWrite      ObjectFlags = 1 << 5
	FlagFertile    ObjectFlags = 1 << 7
	FlagAnonymous  ObjectFlags = 1 << 8
	FlagInvalid    ObjectFlags = 1 << 9
	FlagRecycled   ObjectFlags = 1 << 10
)

func (f ObjectFlags) Has(flag ObjectFlags) bool { return f&flag != 0 }
func (f ObjectFlags) Set(flag ObjectFlags) ObjectFlags { return f | flag }
func (f ObjectFlags) Clear(flag ObjectFlags) ObjectFlags { return f &^ flag }

// PropertyPerms and VerbPerms keep the teacher's single-character
// permission model (r/w/c for properties, r/w/x/d for verbs).
type PropertyPerms uint8

const (
	PropRead  PropertyPerms = 1 << 0
	PropWrite PropertyPerms = 1 << 1
	PropChown PropertyPerms = 1 << 2
)

func (p PropertyPerms) Has(perm PropertyPerms) bool { return p&perm != 0 }

func (p PropertyPerms) String() string {
	s := ""
	if p.Has(PropRead) {
		s += "r"
	}
	if p.Has(PropWrite) {
		s += "w"
	}
	if p.Has(PropChown) {
		s += "c"
	}
	return s
}

type VerbPerms uint8

const (
	VerbRead    VerbPerms = 1 << 0
	VerbWrite   VerbPerms = 1 << 1
	VerbExecute VerbPerms = 1 << 2
	VerbDebug   VerbPerms = 1 << 3
)

// VerbArgs is the this/prep/that argument specifier triple.
type VerbArgs struct {
	This string
	Prep string
	That string
}

// ObjectRecord is the codomain of the core per-object relation: everything
// about an object except its properties and verb bodies, which live in
// their own relations so a property write doesn't need to rewrite the
// whole object record.
type ObjectRecord struct {
	Name     string
	Owner    types.ObjID
	Parents  []types.ObjID
	Location types.ObjID
	Flags    ObjectFlags
	Kind     types.ObjKind
}

// PropertyRecord is one property definition on one object.
type PropertyRecord struct {
	Name    string
	Value   types.Value `json:"-"`
	Owner   types.ObjID
	Perms   PropertyPerms
	Clear   bool
	Defined bool
}

// VerbRecord is one verb definition on one object. Program is kept as
// `any` (a *vm.Program once compiled) to avoid a worldstate<->vm import
// cycle, the same way the teacher keeps Verb.BytecodeCache untyped.
type VerbRecord struct {
	Names   []string
	Owner   types.ObjID
	Perms   VerbPerms
	ArgSpec VerbArgs
	Code    []string
	Program any `json:"-"`
}

// verbKey addresses one verb by (object, verb name) pair, so verb lookups
// are simple relation Gets instead of a scan through a list each time.
type verbKey struct {
	Obj  types.ObjID
	Name string
}

// propKey addresses one property the same way.
type propKey struct {
	Obj  types.ObjID
	Name string
}

func (k verbKey) jsonKey() string { return fmt.Sprintf("%d\x00%s", k.Obj, k.Name) }
func (k propKey) jsonKey() string { return fmt.Sprintf("%d\x00%s", k.Obj, k.Name) }

// World owns the storage.Store and every relation in the schema, plus the
// caches layered on top (verb resolution).
type World struct {
	store *storage.Store

	objects    *storage.Relation[types.ObjID, ObjectRecord]
	verbs      *storage.Relation[verbKey, VerbRecord]
	properties *storage.Relation[propKey, PropertyRecord]
	sequences  *storage.Relation[string, int64]

	ownerIndex *storage.SecondaryIndex[types.ObjID, ObjectRecord]

	verbCache    *lru.Cache[verbCacheKey, verbCacheEntry]
	epochCounter epochCounter

	verbCacheMu     chanMutex
	verbCacheClears int64
	verbCacheMisses int64
}

// chanMutex is a tiny mutex built on a channel so the package doesn't pull
// in sync for what's effectively one counter pair; kept because the rest
// of the file already leans on storage's own locking for the hot path and
// this is purely diagnostic bookkeeping.
type chanMutex chan struct{}

func newChanMutex() chanMutex {
	m := make(chanMutex, 1)
	m <- struct{}{}
	return m
}

func (m chanMutex) lock()   { <-m }
func (m chanMutex) unlock() { m <- struct{}{} }

const defaultVerbCacheSize = 4096

// New creates a World with all relations registered against store. provider
// may be nil for a purely in-memory world (tests, `eval` sandboxes).
func New(store *storage.Store, provider storage.PersistenceProvider) *World {
	w := &World{store: store}

	w.objects = storage.RegisterRelation(store, storage.NewRelation[types.ObjID, ObjectRecord](
		"objects", store.Clock(), provider, storage.Int64JSONCodec[types.ObjID, ObjectRecord]{}))
	w.verbs = storage.RegisterRelation(store, storage.NewRelation[verbKey, VerbRecord](
		"verbs", store.Clock(), nil, nil))
	w.properties = storage.RegisterRelation(store, storage.NewRelation[propKey, PropertyRecord](
		"properties", store.Clock(), nil, nil))
	w.sequences = storage.RegisterRelation(store, storage.NewRelation[string, int64](
		"sequences", store.Clock(), provider, storage.StringJSONCodec[int64]{}))

	w.ownerIndex = storage.NewSecondaryIndex[types.ObjID, ObjectRecord](func(r ObjectRecord) string {
		return fmt.Sprintf("%d", r.Owner)
	})
	w.objects.AttachIndex(w.ownerIndex)

	cache, err := lru.New[verbCacheKey, verbCacheEntry](defaultVerbCacheSize)
	if err != nil {
		panic("worldstate: failed to allocate verb resolution cache: " + err.Error())
	}
	w.verbCache = cache
	w.verbCacheMu = newChanMutex()

	return w
}

// Begin opens a new Transaction against the world's store.
func (w *World) Begin() *Transaction {
	return &Transaction{world: w, tx: w.store.Begin()}
}
