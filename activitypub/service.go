package activitypub

import (
	"context"
	"log"
	"time"

	"github.com/deemkeen/mammut/domain"
	"github.com/google/uuid"
)

// Accepted protocol media types.
const (
	ContentTypeActivityJSON = "application/activity+json"
	ContentTypeLDJSON       = "application/ld+json"
)

// JsonLDTypes lists the media types negotiated for protocol requests.
var JsonLDTypes = []string{ContentTypeActivityJSON, ContentTypeLDJSON}

const ASContext = "https://www.w3.org/ns/activitystreams"

// Store is the persistence contract the engine runs against. Every
// operation may suspend on I/O and fails only on infrastructure errors;
// absence is signaled with domain.ErrNotFound.
type Store interface {
	GetActivity(ctx context.Context, iri string) (*domain.Entity, error)
	GetObject(ctx context.Context, iri string, includePrivate bool) (*domain.Entity, error)
	SaveActivity(ctx context.Context, a *domain.Entity) (saved *domain.Entity, isNew bool, err error)
	SaveObject(ctx context.Context, o *domain.Entity) error
	UpdateObject(ctx context.Context, patch *domain.Entity, actorIRI string, fullReplace bool) (*domain.Entity, error)
	UpdateActivityMeta(ctx context.Context, e *domain.Entity, key, value string, remove bool) (*domain.Entity, error)
	RemoveActivity(ctx context.Context, e *domain.Entity, actorIRI string) error
	GetCollection(ctx context.Context, iri string, filters ...string) (*domain.Entity, error)
}

// Deliverer federates activities to remote inboxes. Retry policy lives
// behind this interface, not in the engine.
type Deliverer interface {
	DeliverActivity(ctx context.Context, actor, activity *domain.Entity) error
	PublishUpdate(ctx context.Context, actor, collection *domain.Entity, excludeIRI string) error
}

// Notifier receives event descriptors after a request's side effects
// completed and its response was committed.
type Notifier interface {
	Notify(e *domain.Event)
}

// Service is the protocol engine: validation, side effects, propagation.
type Service struct {
	Store   Store
	Deliver Deliverer
	Notify  Notifier
	IRIs    IRIs
}

// LogNotifier is the default event sink.
type LogNotifier struct{}

func (LogNotifier) Notify(e *domain.Event) {
	log.Printf("Event: %s activity %s", e.Name, e.Activity.ID)
}

// BuildActivity mints a new locally-addressed activity of the given type.
func (s *Service) BuildActivity(typ, actorIRI string, to []string, object *domain.Entity) *domain.Entity {
	a := &domain.Entity{
		ID:        s.IRIs.NewActivity(),
		Type:      typ,
		Actor:     domain.IRIList{actorIRI},
		To:        domain.IRIList(to),
		Published: time.Now().UTC().Format(time.RFC3339),
	}
	if object != nil {
		a.Object = domain.EntityList{object}
	}
	return a
}

func newID() string {
	return uuid.New().String()
}
