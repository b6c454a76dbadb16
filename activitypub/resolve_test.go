package activitypub

import (
	"testing"

	"github.com/deemkeen/mammut/domain"
)

func TestResolveReferencesLoadsReplyThread(t *testing.T) {
	s, _ := newTestService(t)
	alice := newLocalActor(t, s, "alice")
	bob := newRemoteActor(t, s, "bob")
	parent := publicNoteFrom(t, s, alice, "original post")

	reply := &domain.Entity{
		ID:    "https://remote.example/activities/create-reply",
		Type:  "Create",
		Actor: domain.IRIList{bob.ID},
		To:    domain.IRIList{alice.ID},
		Object: domain.EntityList{{
			ID:           "https://remote.example/objects/reply-1",
			Type:         "Note",
			Content:      "a reply",
			AttributedTo: domain.IRIList{bob.ID},
			InReplyTo:    domain.IRIList{parent.ID},
		}},
	}
	c := runInbox(t, s, alice, bob, reply)

	if len(c.Linked) != 1 {
		t.Fatalf("expected 1 resolved reference, got %d", len(c.Linked))
	}
	if c.Linked[0].ID != parent.ID || c.Linked[0].Content != "original post" {
		t.Errorf("wrong thread reference resolved: %+v", c.Linked[0])
	}
}

func TestResolveReferencesSkipsUnknown(t *testing.T) {
	s, _ := newTestService(t)
	alice := newLocalActor(t, s, "alice")
	bob := newRemoteActor(t, s, "bob")

	reply := &domain.Entity{
		ID:    "https://remote.example/activities/create-reply-2",
		Type:  "Create",
		Actor: domain.IRIList{bob.ID},
		To:    domain.IRIList{alice.ID},
		Object: domain.EntityList{{
			ID:           "https://remote.example/objects/reply-2",
			Type:         "Note",
			Content:      "into the void",
			AttributedTo: domain.IRIList{bob.ID},
			InReplyTo:    domain.IRIList{"https://elsewhere.example/objects/never-seen"},
		}},
	}
	c := runInbox(t, s, alice, bob, reply)

	if c.Rejected() {
		t.Fatalf("unknown reference must not fail the request: %d", c.Status)
	}
	if len(c.Linked) != 0 {
		t.Errorf("unknown reference resolved to %+v", c.Linked)
	}
}
