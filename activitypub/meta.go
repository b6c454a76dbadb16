package activitypub

import (
	"context"

	"github.com/deemkeen/mammut/domain"
)

// AddMeta appends value into the entity's named meta set, locally. Set
// semantics: re-adding an existing value is a no-op.
func AddMeta(e *domain.Entity, key, value string) bool {
	return e.Meta.Add(key, value)
}

// HasMeta reports membership of value in the entity's named meta set.
func HasMeta(e *domain.Entity, key, value string) bool {
	return e.Meta.Has(key, value)
}

// UpdateActivityMeta persists an atomic add or remove of one value in one
// named meta set on the canonical stored record and returns that record.
// This is the only way collection membership changes are written; local
// mutation plus whole-document save would clobber concurrent requests.
func (s *Service) UpdateActivityMeta(ctx context.Context, e *domain.Entity, key, value string, remove bool) (*domain.Entity, error) {
	return s.Store.UpdateActivityMeta(ctx, e, key, value, remove)
}
