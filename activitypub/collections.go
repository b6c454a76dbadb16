package activitypub

import (
	"context"
	"strings"

	"github.com/deemkeen/mammut/domain"
)

// CollectionSnapshot loads the protocol-visible representation of a
// collection. Follower and following snapshots carry accepted follows
// only, collapsed to the follower or followed actor reference; liked
// collapses to the liked object. Other collections serve the stored
// documents as-is.
func (s *Service) CollectionSnapshot(ctx context.Context, iri string) (*domain.Entity, error) {
	switch {
	case strings.HasSuffix(iri, "/followers"):
		return s.snapshot(ctx, iri, []string{domain.MetaAccepted}, actorRef)
	case strings.HasSuffix(iri, "/following"):
		return s.snapshot(ctx, iri, []string{domain.MetaAccepted}, objectRef)
	case strings.HasSuffix(iri, "/liked"):
		return s.snapshot(ctx, iri, nil, objectRef)
	default:
		return s.Store.GetCollection(ctx, iri)
	}
}

func (s *Service) snapshot(ctx context.Context, iri string, filters []string, ref func(*domain.Entity) string) (*domain.Entity, error) {
	coll, err := s.Store.GetCollection(ctx, iri, filters...)
	if err != nil {
		return nil, err
	}
	for i, item := range coll.OrderedItems {
		if target := ref(item); target != "" {
			coll.OrderedItems[i] = &domain.Entity{ID: target}
		}
	}
	return coll, nil
}

func actorRef(e *domain.Entity) string {
	if len(e.Actor) > 0 {
		return e.Actor[0]
	}
	return ""
}

func objectRef(e *domain.Entity) string {
	return e.ObjectID()
}
