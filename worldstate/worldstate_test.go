package worldstate

import (
	"testing"

	"moocore/storage"
	"moocore/types"
)

func newTestWorld(t *testing.T) *World {
	t.Helper()
	return New(storage.NewStore(), nil)
}

func mustCreate(t *testing.T, tx *Transaction, owner types.ObjID, parents []types.ObjID, loc types.ObjID) types.ObjID {
	t.Helper()
	id, err := tx.CreateObject(owner, parents, loc)
	if err != nil {
		t.Fatalf("CreateObject failed: %v", err)
	}
	return id
}

func TestCreateObjectAssignsIncreasingIDs(t *testing.T) {
	w := newTestWorld(t)
	tx := w.Begin()

	a := mustCreate(t, tx, types.NewObj(0).ID(), nil, types.ObjNothing)
	b := mustCreate(t, tx, types.NewObj(0).ID(), nil, types.ObjNothing)

	if b <= a {
		t.Errorf("expected increasing object ids, got a=%d b=%d", a, b)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
}

func TestCreateObjectRequiresFertileParent(t *testing.T) {
	w := newTestWorld(t)
	tx := w.Begin()

	parent := mustCreate(t, tx, 0, nil, types.ObjNothing)
	if _, err := tx.CreateObject(0, []types.ObjID{parent}, types.ObjNothing); err == nil {
		t.Error("expected creation under a non-fertile parent to fail")
	}
}

func TestSetParentDetectsCycle(t *testing.T) {
	w := newTestWorld(t)
	tx := w.Begin()

	root := mustCreate(t, tx, 0, nil, types.ObjNothing)
	makeFertile(t, tx, root)
	child := mustCreate(t, tx, 0, []types.ObjID{root}, types.ObjNothing)

	if err := tx.SetParent(root, child); err == nil {
		t.Error("expected setting root's parent to its own child to fail with a cycle error")
	}
}

func TestRecycleObjectDetachesChildren(t *testing.T) {
	w := newTestWorld(t)
	tx := w.Begin()

	root := mustCreate(t, tx, 0, nil, types.ObjNothing)
	makeFertile(t, tx, root)
	child := mustCreate(t, tx, 0, []types.ObjID{root}, types.ObjNothing)

	if err := tx.RecycleObject(root); err != nil {
		t.Fatalf("recycle failed: %v", err)
	}
	if tx.ValidObject(root) {
		t.Error("recycled object should no longer be valid")
	}
	childRec, ok := tx.GetObject(child)
	if !ok {
		t.Fatal("child should still exist")
	}
	for _, p := range childRec.Parents {
		if p == root {
			t.Error("child should have been detached from recycled parent")
		}
	}
}

func TestLocationContentsRoundTrip(t *testing.T) {
	w := newTestWorld(t)
	tx := w.Begin()

	room := mustCreate(t, tx, 0, nil, types.ObjNothing)
	thing := mustCreate(t, tx, 0, nil, types.ObjNothing)

	if err := tx.SetLocation(thing, room); err != nil {
		t.Fatalf("SetLocation failed: %v", err)
	}

	contents := tx.Contents(room)
	if len(contents) != 1 || contents[0] != thing {
		t.Errorf("expected room to contain thing, got %v", contents)
	}
}

func TestSetLocationRejectsCycle(t *testing.T) {
	w := newTestWorld(t)
	tx := w.Begin()

	a := mustCreate(t, tx, 0, nil, types.ObjNothing)
	b := mustCreate(t, tx, 0, nil, types.ObjNothing)

	if err := tx.SetLocation(b, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tx.SetLocation(a, b); err == nil {
		t.Error("expected containment cycle to be rejected")
	}
}

func TestPropertyResolutionWalksAncestry(t *testing.T) {
	w := newTestWorld(t)
	tx := w.Begin()

	root := mustCreate(t, tx, 0, nil, types.ObjNothing)
	makeFertile(t, tx, root)
	child := mustCreate(t, tx, 0, []types.ObjID{root}, types.ObjNothing)

	if err := tx.DefineProperty(root, "color", types.NewStr("red"), 0, PropRead|PropWrite); err != nil {
		t.Fatalf("DefineProperty failed: %v", err)
	}

	rec, definedOn, ok := tx.ResolveProperty(child, "color")
	if !ok {
		t.Fatal("expected to resolve inherited property")
	}
	if definedOn != root {
		t.Errorf("expected property defined on root, got #%d", definedOn)
	}
	if rec.Value.(types.StrValue).Value() != "red" {
		t.Errorf("unexpected property value: %+v", rec.Value)
	}
}

func TestSetPropertyValueCreatesOverrideOnDefiningObject(t *testing.T) {
	w := newTestWorld(t)
	tx := w.Begin()

	root := mustCreate(t, tx, 0, nil, types.ObjNothing)
	makeFertile(t, tx, root)
	child := mustCreate(t, tx, 0, []types.ObjID{root}, types.ObjNothing)

	_ = tx.DefineProperty(root, "color", types.NewStr("red"), 0, PropRead|PropWrite)
	if err := tx.SetPropertyValue(child, "color", types.NewStr("blue")); err != nil {
		t.Fatalf("SetPropertyValue failed: %v", err)
	}

	rec, _, _ := tx.ResolveProperty(child, "color")
	if rec.Value.(types.StrValue).Value() != "blue" {
		t.Errorf("expected overridden value blue, got %+v", rec.Value)
	}

	rootRec, rootDefinedOn, _ := tx.ResolveProperty(root, "color")
	if rootRec.Value.(types.StrValue).Value() != "red" || rootDefinedOn != root {
		t.Errorf("expected root's own value to be unaffected by child's override, got %+v on #%d", rootRec.Value, rootDefinedOn)
	}
}

func TestResolveVerbFollowsInheritanceAndWildcards(t *testing.T) {
	w := newTestWorld(t)
	tx := w.Begin()

	root := mustCreate(t, tx, 0, nil, types.ObjNothing)
	makeFertile(t, tx, root)
	child := mustCreate(t, tx, 0, []types.ObjID{root}, types.ObjNothing)

	err := tx.DefineVerb(root, "look*_at", VerbRecord{
		Names: []string{"look*_at"},
		Owner: 0,
		Perms: VerbRead | VerbExecute,
	})
	if err != nil {
		t.Fatalf("DefineVerb failed: %v", err)
	}

	v, definedOn, ok := tx.ResolveVerb(child, "look_at")
	if !ok {
		t.Fatal("expected to resolve verb by full name")
	}
	if definedOn != root {
		t.Errorf("expected verb resolved on root, got #%d", definedOn)
	}

	v2, _, ok := tx.ResolveVerb(child, "look_")
	if !ok {
		t.Fatal("expected abbreviation 'look_' to match 'look*_at'")
	}
	if v2.Owner != v.Owner {
		t.Error("expected same verb record for abbreviation and full name")
	}

	if _, _, ok := tx.ResolveVerb(child, "lookat"); ok {
		t.Error("'lookat' should not match 'look*_at' (not a valid prefix)")
	}
}

func TestVerbCacheStatsReportMisses(t *testing.T) {
	w := newTestWorld(t)
	tx := w.Begin()

	root := mustCreate(t, tx, 0, nil, types.ObjNothing)
	_ = tx.DefineVerb(root, "go", VerbRecord{Names: []string{"go"}})

	tx.ResolveVerb(root, "go")
	tx.ResolveVerb(root, "missing")

	stats := w.ConsumeVerbCacheStats()
	if stats[1] == 0 {
		t.Error("expected at least one recorded cache miss")
	}
}

func makeFertile(t *testing.T, tx *Transaction, id types.ObjID) {
	t.Helper()
	rec, ok := tx.GetObject(id)
	if !ok {
		t.Fatalf("object #%d does not exist", id)
	}
	rec.Flags = rec.Flags.Set(FlagFertile)
	tx.world.objects.Put(tx.tx, id, rec)
}
