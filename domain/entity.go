package domain

import (
	"encoding/json"
	"time"
)

const (
	TypeTombstone = "Tombstone"
	TypeCreate    = "Create"
	PublicAddress = "https://www.w3.org/ns/activitystreams#Public"
)

// Entity is the single record type for activities, objects, and actors.
// ActivityStreams allows most properties to be a bare string, an embedded
// object or an array of either; the wire form is normalized into slices on
// unmarshal so the rest of the code never type-switches on raw JSON.
// Capability checks ("does this object track shares?") are presence checks
// on the optional collection references.
type Entity struct {
	RawContext json.RawMessage `json:"@context,omitempty"`

	ID           string     `json:"id,omitempty"`
	Type         string     `json:"type,omitempty"`
	Actor        IRIList    `json:"actor,omitempty"`
	AttributedTo IRIList    `json:"attributedTo,omitempty"`
	Object       EntityList `json:"object,omitempty"`
	Target       IRIList    `json:"target,omitempty"`
	InReplyTo    IRIList    `json:"inReplyTo,omitempty"`

	To       IRIList `json:"to,omitempty"`
	Bto      IRIList `json:"bto,omitempty"`
	Cc       IRIList `json:"cc,omitempty"`
	Bcc      IRIList `json:"bcc,omitempty"`
	Audience IRIList `json:"audience,omitempty"`

	// Collection references carried by actors and objects. The first
	// element is authoritative; extra elements are preserved as-is.
	Inbox     IRIList `json:"inbox,omitempty"`
	Outbox    IRIList `json:"outbox,omitempty"`
	Followers IRIList `json:"followers,omitempty"`
	Following IRIList `json:"following,omitempty"`
	Liked     IRIList `json:"liked,omitempty"`
	Shares    IRIList `json:"shares,omitempty"`
	Likes     IRIList `json:"likes,omitempty"`

	PreferredUsername string `json:"preferredUsername,omitempty"`
	Name              string `json:"name,omitempty"`
	Summary           string `json:"summary,omitempty"`
	Content           string `json:"content,omitempty"`
	MediaType         string `json:"mediaType,omitempty"`

	Published string `json:"published,omitempty"`
	Updated   string `json:"updated,omitempty"`
	Deleted   string `json:"deleted,omitempty"`

	PublicKey *PublicKey `json:"publicKey,omitempty"`

	// OrderedCollection representation
	TotalItems   *int       `json:"totalItems,omitempty"`
	OrderedItems EntityList `json:"orderedItems,omitempty"`

	// Meta is hidden bookkeeping, never part of the protocol-visible
	// representation.
	Meta Meta `json:"-"`
}

// PublicKey is the actor signing key as published to remote servers.
type PublicKey struct {
	ID           string `json:"id,omitempty"`
	Owner        string `json:"owner,omitempty"`
	PublicKeyPem string `json:"publicKeyPem,omitempty"`
}

// FirstObject returns the embedded object, or nil.
func (e *Entity) FirstObject() *Entity {
	if e == nil || len(e.Object) == 0 {
		return nil
	}
	return e.Object[0]
}

// ObjectID returns the IRI of the entity's object reference, embedded or not.
func (e *Entity) ObjectID() string {
	if o := e.FirstObject(); o != nil {
		return o.ID
	}
	return ""
}

// Recipients collects the visible and hidden audience fields, deduplicated.
func (e *Entity) Recipients() []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range []IRIList{e.To, e.Bto, e.Cc, e.Bcc, e.Audience} {
		for _, iri := range list {
			if iri == "" || seen[iri] {
				continue
			}
			seen[iri] = true
			out = append(out, iri)
		}
	}
	return out
}

// Clone returns a deep copy via the JSON round trip, meta included.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	raw, err := json.Marshal(e)
	if err != nil {
		panic(err)
	}
	var out Entity
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	out.Meta = e.Meta.clone()
	return &out
}

// Merge applies the supplied top-level fields of patch onto e. Absent
// fields (zero strings, nil slices) leave the current value in place, so a
// partial Update only touches the properties it carries.
func (e *Entity) Merge(patch *Entity) {
	if patch == nil {
		return
	}
	if patch.Type != "" {
		e.Type = patch.Type
	}
	if patch.Name != "" {
		e.Name = patch.Name
	}
	if patch.Summary != "" {
		e.Summary = patch.Summary
	}
	if patch.Content != "" {
		e.Content = patch.Content
	}
	if patch.MediaType != "" {
		e.MediaType = patch.MediaType
	}
	if patch.AttributedTo != nil {
		e.AttributedTo = patch.AttributedTo
	}
	if patch.To != nil {
		e.To = patch.To
	}
	if patch.Bto != nil {
		e.Bto = patch.Bto
	}
	if patch.Cc != nil {
		e.Cc = patch.Cc
	}
	if patch.Bcc != nil {
		e.Bcc = patch.Bcc
	}
	if patch.Audience != nil {
		e.Audience = patch.Audience
	}
	if patch.InReplyTo != nil {
		e.InReplyTo = patch.InReplyTo
	}
	if patch.Published != "" {
		e.Published = patch.Published
	}
	e.Updated = time.Now().UTC().Format(time.RFC3339)
}

// Tombstone builds the minimal replacement record for a deleted object.
// Identity is preserved, the original type and content are discarded.
func Tombstone(o *Entity) *Entity {
	now := time.Now().UTC().Format(time.RFC3339)
	published := o.Published
	if published == "" {
		published = now
	}
	return &Entity{
		ID:        o.ID,
		Type:      TypeTombstone,
		Deleted:   now,
		Published: published,
		Updated:   now,
	}
}
