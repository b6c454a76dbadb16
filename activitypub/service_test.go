package activitypub

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/deemkeen/mammut/db"
	"github.com/deemkeen/mammut/domain"
	"github.com/deemkeen/mammut/util"
)

const testDomain = "example.social"

// recordingDeliverer captures federation calls in invocation order.
type recordingDeliverer struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingDeliverer) DeliverActivity(ctx context.Context, actor, activity *domain.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "deliver "+activity.ID)
	return nil
}

func (r *recordingDeliverer) PublishUpdate(ctx context.Context, actor, collection *domain.Entity, excludeIRI string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "publish "+collection.ID)
	return nil
}

func (r *recordingDeliverer) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newTestService(t *testing.T) (*Service, *recordingDeliverer) {
	t.Helper()
	store, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	rec := &recordingDeliverer{}
	svc := &Service{
		Store:   store,
		Deliver: rec,
		Notify:  LogNotifier{},
		IRIs:    IRIs{Domain: testDomain},
	}
	return svc, rec
}

func newLocalActor(t *testing.T, s *Service, name string) *domain.Entity {
	t.Helper()
	actor, err := s.CreateActor(context.Background(), name, name, "")
	if err != nil {
		t.Fatalf("failed to create actor %s: %v", name, err)
	}
	return actor
}

// newRemoteActor seeds the actor cache with a remote profile.
func newRemoteActor(t *testing.T, s *Service, name string) *domain.Entity {
	t.Helper()
	iri := fmt.Sprintf("https://remote.example/users/%s", name)
	keypair := util.GeneratePemKeypair()
	actor := &domain.Entity{
		ID:                iri,
		Type:              "Person",
		PreferredUsername: name,
		Inbox:             domain.IRIList{iri + "/inbox"},
		PublicKey: &domain.PublicKey{
			ID:           iri + "#main-key",
			Owner:        iri,
			PublicKeyPem: keypair.Public,
		},
	}
	if err := s.Store.SaveObject(context.Background(), actor); err != nil {
		t.Fatalf("failed to cache remote actor: %v", err)
	}
	return actor
}

// runInbox drives the inbound pipeline against an already-verified sender.
func runInbox(t *testing.T, s *Service, recipient, sender, activity *domain.Entity) *Context {
	t.Helper()
	ctx := context.Background()
	c := NewContext()
	c.Target = recipient
	c.Sender = sender

	if err := s.InboxActivity(ctx, c, activity); err != nil {
		t.Fatalf("inbox validation failed: %v", err)
	}
	if c.Rejected() {
		return c
	}
	if err := s.Save(ctx, c); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := s.ResolveObject(ctx, c); err != nil {
		t.Fatalf("object resolution failed: %v", err)
	}
	if c.Rejected() {
		return c
	}
	if err := s.ResolveReferences(ctx, c); err != nil {
		t.Fatalf("reference resolution failed: %v", err)
	}
	if err := s.InboxSideEffects(ctx, c); err != nil {
		t.Fatalf("inbox side effects failed: %v", err)
	}
	return c
}

// runOutbox drives the outbound pipeline for a local submission.
func runOutbox(t *testing.T, s *Service, actor, body *domain.Entity) *Context {
	t.Helper()
	ctx := context.Background()
	c := NewContext()
	c.Target = actor

	if err := s.OutboxActivity(ctx, c, body); err != nil {
		t.Fatalf("outbox validation failed: %v", err)
	}
	if c.Rejected() {
		return c
	}
	if err := s.Save(ctx, c); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := s.ResolveObject(ctx, c); err != nil {
		t.Fatalf("object resolution failed: %v", err)
	}
	if c.Rejected() {
		return c
	}
	if err := s.ResolveReferences(ctx, c); err != nil {
		t.Fatalf("reference resolution failed: %v", err)
	}
	if err := s.OutboxSideEffects(ctx, c); err != nil {
		t.Fatalf("outbox side effects failed: %v", err)
	}
	return c
}

func collectionSize(t *testing.T, s *Service, iri string) int {
	t.Helper()
	col, err := s.Store.GetCollection(context.Background(), iri)
	if err != nil {
		t.Fatalf("failed to read collection %s: %v", iri, err)
	}
	return *col.TotalItems
}

func collectionHas(t *testing.T, s *Service, iri, memberID string) bool {
	t.Helper()
	col, err := s.Store.GetCollection(context.Background(), iri)
	if err != nil {
		t.Fatalf("failed to read collection %s: %v", iri, err)
	}
	for _, item := range col.OrderedItems {
		if item.ID == memberID {
			return true
		}
	}
	return false
}
