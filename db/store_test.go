package db

import (
	"context"
	"errors"
	"testing"

	"github.com/deemkeen/mammut/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testActivity(id, typ, inboxIRI string) *domain.Entity {
	a := &domain.Entity{
		ID:    id,
		Type:  typ,
		Actor: domain.IRIList{"https://remote.example/users/bob"},
		Object: domain.EntityList{{
			ID:      id + "/object",
			Type:    "Note",
			Content: "hello",
		}},
	}
	a.Meta.Add(domain.MetaCollection, inboxIRI)
	return a
}

func TestSaveActivityIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	inbox := "https://example.social/users/alice/inbox"

	a := testActivity("https://remote.example/activities/1", "Create", inbox)

	saved, isNew, err := db.SaveActivity(ctx, a)
	if err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if !isNew {
		t.Fatal("first save should be new")
	}
	if !saved.Meta.Has(domain.MetaCollection, inbox) {
		t.Error("membership not carried on the saved record")
	}

	again := testActivity("https://remote.example/activities/1", "Create", inbox)
	saved, isNew, err = db.SaveActivity(ctx, again)
	if err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	if isNew {
		t.Error("duplicate save reported as new")
	}
	if !saved.Meta.Has(domain.MetaCollection, inbox) {
		t.Error("canonical record lost its membership")
	}

	col, err := db.GetCollection(ctx, inbox)
	if err != nil {
		t.Fatalf("get collection failed: %v", err)
	}
	if *col.TotalItems != 1 {
		t.Errorf("expected 1 member after duplicate save, got %d", *col.TotalItems)
	}
}

func TestGetActivityNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetActivity(context.Background(), "https://nowhere.example/activities/1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateActivityMetaAtomicSet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	inbox := "https://example.social/users/alice/inbox"
	shares := "https://example.social/objects/1/shares"

	a := testActivity("https://remote.example/activities/2", "Announce", inbox)
	if _, _, err := db.SaveActivity(ctx, a); err != nil {
		t.Fatal(err)
	}

	updated, err := db.UpdateActivityMeta(ctx, a, domain.MetaCollection, shares, false)
	if err != nil {
		t.Fatalf("meta add failed: %v", err)
	}
	if !updated.Meta.Has(domain.MetaCollection, shares) {
		t.Error("membership not added")
	}
	if !updated.Meta.Has(domain.MetaCollection, inbox) {
		t.Error("existing membership lost on add")
	}

	// re-adding the same value is a no-op
	updated, err = db.UpdateActivityMeta(ctx, updated, domain.MetaCollection, shares, false)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(updated.Meta.Get(domain.MetaCollection)); got != 2 {
		t.Errorf("expected 2 memberships, got %d", got)
	}

	updated, err = db.UpdateActivityMeta(ctx, updated, domain.MetaCollection, shares, true)
	if err != nil {
		t.Fatalf("meta remove failed: %v", err)
	}
	if updated.Meta.Has(domain.MetaCollection, shares) {
		t.Error("membership still present after remove")
	}
}

func TestRemoveActivityKeepsRecord(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	inbox := "https://example.social/users/alice/inbox"
	liked := "https://example.social/users/alice/liked"

	a := testActivity("https://remote.example/activities/3", "Like", inbox)
	if _, _, err := db.SaveActivity(ctx, a); err != nil {
		t.Fatal(err)
	}
	if _, err := db.UpdateActivityMeta(ctx, a, domain.MetaCollection, liked, false); err != nil {
		t.Fatal(err)
	}

	if err := db.RemoveActivity(ctx, a, a.Actor[0]); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	// stripped from every collection in one operation
	for _, iri := range []string{inbox, liked} {
		col, err := db.GetCollection(ctx, iri)
		if err != nil {
			t.Fatal(err)
		}
		if *col.TotalItems != 0 {
			t.Errorf("collection %s still has %d members", iri, *col.TotalItems)
		}
	}

	// the record itself survives
	if _, err := db.GetActivity(ctx, a.ID); err != nil {
		t.Errorf("record gone after remove: %v", err)
	}
}

func TestGetCollectionOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	inbox := "https://example.social/users/alice/inbox"

	first := testActivity("https://remote.example/activities/10", "Create", inbox)
	second := testActivity("https://remote.example/activities/11", "Create", inbox)
	if _, _, err := db.SaveActivity(ctx, first); err != nil {
		t.Fatal(err)
	}
	if _, _, err := db.SaveActivity(ctx, second); err != nil {
		t.Fatal(err)
	}

	col, err := db.GetCollection(ctx, inbox)
	if err != nil {
		t.Fatal(err)
	}
	if col.Type != "OrderedCollection" || *col.TotalItems != 2 {
		t.Fatalf("unexpected collection shape: %+v", col)
	}
	if col.OrderedItems[0].ID != first.ID || col.OrderedItems[1].ID != second.ID {
		t.Errorf("ordering not preserved: %s, %s", col.OrderedItems[0].ID, col.OrderedItems[1].ID)
	}
}

func TestGetCollectionFilteredByMetaKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	followers := "https://example.social/users/alice/followers"

	for i, id := range []string{"f1", "f2", "f3"} {
		follow := testActivity("https://remote.example/activities/"+id, "Follow", followers)
		if _, _, err := db.SaveActivity(ctx, follow); err != nil {
			t.Fatal(err)
		}
		// settle all but the middle one
		if i != 1 {
			accept := "https://example.social/activities/accept-" + id
			if _, err := db.UpdateActivityMeta(ctx, follow, domain.MetaAccepted, accept, false); err != nil {
				t.Fatal(err)
			}
		}
	}

	all, err := db.GetCollection(ctx, followers)
	if err != nil {
		t.Fatal(err)
	}
	if *all.TotalItems != 3 {
		t.Fatalf("expected 3 unfiltered members, got %d", *all.TotalItems)
	}

	accepted, err := db.GetCollection(ctx, followers, domain.MetaAccepted)
	if err != nil {
		t.Fatal(err)
	}
	if *accepted.TotalItems != 2 {
		t.Fatalf("expected 2 accepted members, got %d", *accepted.TotalItems)
	}
	for _, item := range accepted.OrderedItems {
		if item.ID == "https://remote.example/activities/f2" {
			t.Error("unaccepted follow leaked through the filter")
		}
	}
}

func TestUpdateObjectFullReplaceFansOut(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	inbox := "https://example.social/users/alice/inbox"

	obj := &domain.Entity{
		ID:           "https://example.social/objects/42",
		Type:         "Note",
		Content:      "original",
		AttributedTo: domain.IRIList{"https://example.social/users/alice"},
	}
	if err := db.SaveObject(ctx, obj); err != nil {
		t.Fatal(err)
	}

	a := &domain.Entity{
		ID:     "https://example.social/activities/42",
		Type:   "Create",
		Actor:  domain.IRIList{"https://example.social/users/alice"},
		Object: domain.EntityList{obj},
	}
	a.Meta.Add(domain.MetaCollection, inbox)
	if _, _, err := db.SaveActivity(ctx, a); err != nil {
		t.Fatal(err)
	}

	ts := domain.Tombstone(obj)
	merged, err := db.UpdateObject(ctx, ts, obj.AttributedTo[0], true)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if merged.Type != domain.TypeTombstone {
		t.Errorf("expected tombstone, got %s", merged.Type)
	}

	stored, err := db.GetObject(ctx, obj.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Type != domain.TypeTombstone || stored.Content != "" {
		t.Errorf("stored object not replaced: %+v", stored)
	}

	// the denormalized embedded copy follows
	activity, err := db.GetActivity(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if emb := activity.FirstObject(); emb == nil || emb.Type != domain.TypeTombstone {
		t.Errorf("embedded copy not patched: %+v", emb)
	}
}

func TestUpdateObjectMergesPartialPatch(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	obj := &domain.Entity{
		ID:      "https://example.social/objects/43",
		Type:    "Note",
		Name:    "keep me",
		Content: "before",
	}
	if err := db.SaveObject(ctx, obj); err != nil {
		t.Fatal(err)
	}

	patch := &domain.Entity{ID: obj.ID, Content: "after"}
	merged, err := db.UpdateObject(ctx, patch, "", false)
	if err != nil {
		t.Fatal(err)
	}
	if merged.Content != "after" || merged.Name != "keep me" {
		t.Errorf("merge semantics broken: %+v", merged)
	}
}

func TestUpdateObjectUnknownIsNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.UpdateObject(context.Background(), &domain.Entity{ID: "https://nowhere.example/objects/1", Type: "Note"}, "", true)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveObjectKeepsPrivateKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	actor := &domain.Entity{ID: "https://example.social/users/alice", Type: "Person"}
	actor.Meta.Add(domain.MetaPrivateKey, "SECRET-PEM")
	if err := db.SaveObject(ctx, actor); err != nil {
		t.Fatal(err)
	}

	// a refresh without the key must not clobber the stored one
	refresh := &domain.Entity{ID: actor.ID, Type: "Person", Name: "Alice"}
	if err := db.SaveObject(ctx, refresh); err != nil {
		t.Fatal(err)
	}

	plain, err := db.GetObject(ctx, actor.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(plain.Meta.Get(domain.MetaPrivateKey)) != 0 {
		t.Error("private key leaked into a plain read")
	}

	withKeys, err := db.GetObject(ctx, actor.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if keys := withKeys.Meta.Get(domain.MetaPrivateKey); len(keys) != 1 || keys[0] != "SECRET-PEM" {
		t.Errorf("private key lost: %v", keys)
	}
	if withKeys.Name != "Alice" {
		t.Errorf("refresh not applied: %s", withKeys.Name)
	}
}
