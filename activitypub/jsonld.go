package activitypub

import (
	"encoding/json"

	"github.com/deemkeen/mammut/domain"
)

// Normalizer turns external protocol documents into the internal
// normalized form. A malformed document yields (nil, nil); errors are
// reserved for collaborator failures such as remote context fetches.
type Normalizer interface {
	Normalize(raw []byte) (*domain.Entity, error)
}

// JSONLD is the built-in normalizer. It relies on the flattening rules of
// the domain types: string-or-object properties become slices, bare IRIs
// become reference entities.
type JSONLD struct{}

func (JSONLD) Normalize(raw []byte) (*domain.Entity, error) {
	var e domain.Entity
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, nil
	}
	if e.Type == "" {
		return nil, nil
	}
	return &e, nil
}
