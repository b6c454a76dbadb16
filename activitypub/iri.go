package activitypub

import (
	"fmt"
	"strings"
)

// IRIs mints and classifies the identifiers this instance owns. All local
// IRIs live under https://<domain>/.
type IRIs struct {
	Domain string
}

func (i IRIs) base() string {
	return fmt.Sprintf("https://%s", i.Domain)
}

// IsLocal reports whether the IRI belongs to this instance.
func (i IRIs) IsLocal(iri string) bool {
	return strings.HasPrefix(iri, i.base()+"/")
}

func (i IRIs) Actor(name string) string {
	return fmt.Sprintf("%s/users/%s", i.base(), name)
}

// ActorName is the inverse of Actor; returns "" for foreign IRIs.
func (i IRIs) ActorName(iri string) string {
	prefix := i.base() + "/users/"
	if !strings.HasPrefix(iri, prefix) {
		return ""
	}
	name := strings.TrimPrefix(iri, prefix)
	if idx := strings.Index(name, "/"); idx >= 0 {
		name = name[:idx]
	}
	return name
}

func (i IRIs) Inbox(name string) string     { return i.Actor(name) + "/inbox" }
func (i IRIs) Outbox(name string) string    { return i.Actor(name) + "/outbox" }
func (i IRIs) Followers(name string) string { return i.Actor(name) + "/followers" }
func (i IRIs) Following(name string) string { return i.Actor(name) + "/following" }
func (i IRIs) Liked(name string) string     { return i.Actor(name) + "/liked" }

// Derived collections without a protocol-visible field.
func (i IRIs) Rejections(name string) string { return i.Actor(name) + "/rejections" }
func (i IRIs) Rejected(name string) string   { return i.Actor(name) + "/rejected" }
func (i IRIs) Blocked(name string) string    { return i.Actor(name) + "/blocked" }

// Per-object engagement collections.
func (i IRIs) Shares(objectIRI string) string { return objectIRI + "/shares" }
func (i IRIs) Likes(objectIRI string) string  { return objectIRI + "/likes" }

func (i IRIs) Activity(id string) string { return fmt.Sprintf("%s/activities/%s", i.base(), id) }
func (i IRIs) Object(id string) string   { return fmt.Sprintf("%s/objects/%s", i.base(), id) }

// NewActivity mints a fresh activity IRI.
func (i IRIs) NewActivity() string { return i.Activity(newID()) }

// NewObject mints a fresh object IRI.
func (i IRIs) NewObject() string { return i.Object(newID()) }

// MainKey is the published key id of a local actor.
func (i IRIs) MainKey(name string) string { return i.Actor(name) + "#main-key" }
