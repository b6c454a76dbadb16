package activitypub

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/deemkeen/mammut/domain"
)

// TargetActivity resolves a local activity id into the request target.
func (s *Service) TargetActivity(ctx context.Context, c *Context, id string) error {
	activity, err := s.Store.GetActivity(ctx, s.IRIs.Activity(id))
	if errors.Is(err, domain.ErrNotFound) {
		c.Reject(http.StatusNotFound, fmt.Sprintf("'%s' not found", id))
		return nil
	}
	if err != nil {
		return err
	}
	c.Target = activity
	return nil
}

// TargetActor resolves a local actor by name into the request target.
func (s *Service) TargetActor(ctx context.Context, c *Context, name string) error {
	actor, err := s.Store.GetObject(ctx, s.IRIs.Actor(name), false)
	if errors.Is(err, domain.ErrNotFound) {
		c.Reject(http.StatusNotFound, fmt.Sprintf("'%s' not found on this instance", name))
		return nil
	}
	if err != nil {
		return err
	}
	c.Target = actor
	return nil
}

// TargetActorWithKeys is the only resolver that loads an actor's private
// fields. Call it deliberately, from the one place that signs on the
// actor's behalf, to keep keys from leaking into ordinary responses.
func (s *Service) TargetActorWithKeys(ctx context.Context, c *Context, name string) error {
	actor, err := s.Store.GetObject(ctx, s.IRIs.Actor(name), true)
	if errors.Is(err, domain.ErrNotFound) {
		c.Reject(http.StatusNotFound, fmt.Sprintf("'%s' not found on this instance", name))
		return nil
	}
	if err != nil {
		return err
	}
	c.Target = actor
	return nil
}

// TargetObject resolves a local object id into the request target.
func (s *Service) TargetObject(ctx context.Context, c *Context, id string) error {
	obj, err := s.Store.GetObject(ctx, s.IRIs.Object(id), false)
	if errors.Is(err, domain.ErrNotFound) {
		c.Reject(http.StatusNotFound, fmt.Sprintf("'%s' not found", id))
		return nil
	}
	if err != nil {
		return err
	}
	c.Target = obj
	return nil
}

// Save persists the validated activity. A duplicate save reports not-new;
// if the duplicate still targets a collection the record is not yet in,
// the membership is unioned into the canonical record and the delivery
// counts as new after all.
func (s *Service) Save(ctx context.Context, c *Context) error {
	if c.Activity == nil || c.Target == nil {
		return nil
	}
	saved, isNew, err := s.Store.SaveActivity(ctx, c.Activity)
	if err != nil {
		return err
	}
	if isNew {
		c.Activity = saved
		c.IsNew = true
		return nil
	}
	targets := c.Activity.Meta.Get(domain.MetaCollection)
	if c.SkipDelivery || len(targets) == 0 || saved.Meta.Has(domain.MetaCollection, targets[0]) {
		// true duplicate: no new membership, no side effects
		c.Activity = saved
		c.IsNew = false
		return nil
	}
	updated, err := s.Store.UpdateActivityMeta(ctx, saved, domain.MetaCollection, targets[0], false)
	if err != nil {
		return err
	}
	c.Activity = updated
	c.IsNew = true
	return nil
}

// ResolveReferences loads the thread the activity points into: every
// inReplyTo reference on the activity or its embedded object that names a
// known entity is attached to the request context. Unknown references are
// skipped, so remote threads we never stored stay unresolved.
func (s *Service) ResolveReferences(ctx context.Context, c *Context) error {
	if c.Activity == nil {
		return nil
	}
	refs := append(domain.IRIList{}, c.Activity.InReplyTo...)
	if obj := c.Activity.FirstObject(); obj != nil {
		refs = append(refs, obj.InReplyTo...)
	}
	seen := make(map[string]bool)
	for _, iri := range refs {
		if iri == "" || seen[iri] {
			continue
		}
		seen[iri] = true
		linked, err := s.Store.GetObject(ctx, iri, false)
		if errors.Is(err, domain.ErrNotFound) {
			linked, err = s.Store.GetActivity(ctx, iri)
		}
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		c.Linked = append(c.Linked, linked)
	}
	return nil
}

// ResolveObject loads the entity the activity acts on, chosen per verb:
// embedded copies for Create/Update, stored activities for
// Accept/Reject/Undo, stored objects for the rest. Absence leaves Object
// nil; the side-effect tables treat that as a no-op.
func (s *Service) ResolveObject(ctx context.Context, c *Context) error {
	if c.Activity == nil || c.Object != nil {
		return nil
	}
	objectID := c.Activity.ObjectID()
	if objectID == "" {
		return nil
	}
	switch toVerb(c.Activity.Type) {
	case verbCreate, verbUpdate:
		c.Object = c.Activity.FirstObject()
	case verbAccept, verbReject, verbUndo:
		stored, err := s.Store.GetActivity(ctx, objectID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		c.Object = stored
	case verbAnnounce, verbLike, verbDelete:
		stored, err := s.Store.GetObject(ctx, objectID, false)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		c.Object = stored
	case verbAdd, verbRemove:
		// Add/Remove may move plain objects or activities between
		// collections
		stored, err := s.Store.GetObject(ctx, objectID, false)
		if errors.Is(err, domain.ErrNotFound) {
			stored, err = s.Store.GetActivity(ctx, objectID)
		}
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		c.Object = stored
	default:
		if emb := c.Activity.FirstObject(); emb != nil && emb.Type != "" {
			c.Object = emb
		}
	}
	return nil
}
