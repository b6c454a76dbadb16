package activitypub

import (
	"context"
	"net/http"

	"github.com/deemkeen/mammut/domain"
	"golang.org/x/sync/errgroup"
)

type outboxHandler func(s *Service, c *Context) []effect

// outboxEffects is the fixed dispatch table for locally-authored
// activities.
var outboxEffects = map[verb]outboxHandler{
	verbAccept: outboxAccept,
	verbAdd:    outboxAdd,
	verbBlock:  outboxBlock,
	verbCreate: outboxCreate,
	verbDelete: outboxDelete,
	verbLike:   outboxLike,
	verbReject: outboxReject,
	verbRemove: outboxRemove,
	verbUndo:   outboxUndo,
	verbUpdate: outboxUpdate,
}

// OutboxSideEffects applies the per-type reactions to a locally-authored
// activity, then queues federation of the activity ahead of any
// collection publishes scheduled by the same request.
func (s *Service) OutboxSideEffects(ctx context.Context, c *Context) error {
	if c.Target == nil || c.Activity == nil {
		return nil
	}
	actor := c.Target
	c.Status = http.StatusOK
	if !c.IsNew {
		// ignore duplicate submissions
		return nil
	}

	var toDo []effect
	if handler, ok := outboxEffects[toVerb(c.Activity.Type)]; ok {
		toDo = handler(s, c)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range toDo {
		fn := fn
		g.Go(func() error { return fn(gctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.Event = &domain.Event{
		Name:     domain.EventOutbox,
		Actor:    actor,
		Activity: c.Activity,
		Object:   c.Object,
	}
	if !c.SkipDelivery {
		activity := c.Activity
		c.DeferFront(func() error {
			return s.Deliver.DeliverActivity(context.Background(), actor, activity)
		})
	}
	return nil
}

// outboxAccept settles the referenced Follow: it is flagged accepted,
// filed into the actor's following and followers collections, and a
// publish of each updated snapshot is scheduled. The followers membership
// is what makes the new follower reachable by followers-addressed
// deliveries.
func outboxAccept(s *Service, c *Context) []effect {
	object, actor := c.Object, c.Target
	if object == nil || toVerb(object.Type) != verbFollow || len(actor.Following) == 0 {
		return nil
	}
	acceptIRI := c.Activity.ID
	return []effect{func(ctx context.Context) error {
		updated, err := s.Store.UpdateActivityMeta(ctx, object, domain.MetaCollection, actor.Following[0], false)
		if err != nil {
			return err
		}
		updated, err = s.Store.UpdateActivityMeta(ctx, updated, domain.MetaAccepted, acceptIRI, false)
		if err != nil {
			return err
		}
		if len(actor.Followers) > 0 {
			updated, err = s.Store.UpdateActivityMeta(ctx, updated, domain.MetaCollection, actor.Followers[0], false)
			if err != nil {
				return err
			}
		}
		c.Object = updated
		c.Defer(func() error {
			coll, err := s.CollectionSnapshot(context.Background(), actor.Following[0])
			if err != nil {
				return err
			}
			return s.Deliver.PublishUpdate(context.Background(), actor, coll, "")
		})
		if len(actor.Followers) > 0 {
			c.Defer(func() error {
				coll, err := s.CollectionSnapshot(context.Background(), actor.Followers[0])
				if err != nil {
					return err
				}
				return s.Deliver.PublishUpdate(context.Background(), actor, coll, "")
			})
		}
		return nil
	}}
}

// outboxAdd inserts the object into the collection named by the
// activity's target.
func outboxAdd(s *Service, c *Context) []effect {
	object, activity := c.Object, c.Activity
	if object == nil || len(activity.Target) == 0 {
		return nil
	}
	return []effect{func(ctx context.Context) error {
		updated, err := s.Store.UpdateActivityMeta(ctx, object, domain.MetaCollection, activity.Target[0], false)
		if err != nil {
			return err
		}
		c.Object = updated
		return nil
	}}
}

// outboxRemove is the inverse of outboxAdd.
func outboxRemove(s *Service, c *Context) []effect {
	object, activity := c.Object, c.Activity
	if object == nil || len(activity.Target) == 0 {
		return nil
	}
	return []effect{func(ctx context.Context) error {
		updated, err := s.Store.UpdateActivityMeta(ctx, object, domain.MetaCollection, activity.Target[0], true)
		if err != nil {
			return err
		}
		c.Object = updated
		return nil
	}}
}

// outboxBlock files the block under the actor's blocked collection.
func outboxBlock(s *Service, c *Context) []effect {
	actor := c.Target
	return []effect{func(ctx context.Context) error {
		blockedIRI := s.IRIs.Blocked(actor.PreferredUsername)
		updated, err := s.Store.UpdateActivityMeta(ctx, c.Activity, domain.MetaCollection, blockedIRI, false)
		if err != nil {
			return err
		}
		c.Activity = updated
		return nil
	}}
}

// outboxCreate persists the embedded object as a first-class record.
func outboxCreate(s *Service, c *Context) []effect {
	object := c.Object
	if object == nil {
		return nil
	}
	return []effect{func(ctx context.Context) error {
		return s.Store.SaveObject(ctx, object)
	}}
}

// outboxDelete replaces the actor's own object with a tombstone.
// Ownership was already enforced at validation.
func outboxDelete(s *Service, c *Context) []effect {
	object, actor := c.Object, c.Target
	if object == nil {
		return nil
	}
	return []effect{func(ctx context.Context) error {
		_, err := s.Store.UpdateObject(ctx, domain.Tombstone(object), actor.ID, true)
		return err
	}}
}

// outboxLike adds the activity to the actor's liked collection and
// schedules a publish of the snapshot.
func outboxLike(s *Service, c *Context) []effect {
	actor := c.Target
	if len(actor.Liked) == 0 {
		return nil
	}
	return []effect{func(ctx context.Context) error {
		updated, err := s.Store.UpdateActivityMeta(ctx, c.Activity, domain.MetaCollection, actor.Liked[0], false)
		if err != nil {
			return err
		}
		c.Activity = updated
		c.Defer(func() error {
			coll, err := s.CollectionSnapshot(context.Background(), actor.Liked[0])
			if err != nil {
				return err
			}
			return s.Deliver.PublishUpdate(context.Background(), actor, coll, "")
		})
		return nil
	}}
}

// outboxReject files the rejection, flags the object rejected and, when
// it undoes a prior follow accept, strips the followers membership and
// schedules a followers publish.
func outboxReject(s *Service, c *Context) []effect {
	object, actor := c.Object, c.Target
	if object == nil {
		return nil
	}
	rejectIRI := c.Activity.ID
	return []effect{func(ctx context.Context) error {
		rejectedIRI := s.IRIs.Rejected(actor.PreferredUsername)
		updated, err := s.Store.UpdateActivityMeta(ctx, object, domain.MetaCollection, rejectedIRI, false)
		if err != nil {
			return err
		}
		updated, err = s.Store.UpdateActivityMeta(ctx, updated, domain.MetaRejected, rejectIRI, false)
		if err != nil {
			return err
		}
		if len(actor.Followers) > 0 && HasMeta(updated, domain.MetaCollection, actor.Followers[0]) {
			updated, err = s.Store.UpdateActivityMeta(ctx, updated, domain.MetaCollection, actor.Followers[0], true)
			if err != nil {
				return err
			}
			c.Defer(func() error {
				coll, err := s.CollectionSnapshot(context.Background(), actor.Followers[0])
				if err != nil {
					return err
				}
				return s.Deliver.PublishUpdate(context.Background(), actor, coll, "")
			})
		}
		c.Object = updated
		return nil
	}}
}

// outboxUndo mirrors inboxUndo: one keyed removal strips the entity from
// every collection.
func outboxUndo(s *Service, c *Context) []effect {
	object, actor := c.Object, c.Target
	if object == nil {
		return nil
	}
	return []effect{func(ctx context.Context) error {
		return s.Store.RemoveActivity(ctx, object, actor.ID)
	}}
}

// outboxUpdate overwrites the stored object and every embedded copy.
func outboxUpdate(s *Service, c *Context) []effect {
	object, actor := c.Object, c.Target
	if object == nil {
		return nil
	}
	return []effect{func(ctx context.Context) error {
		updated, err := s.Store.UpdateObject(ctx, object, actor.ID, true)
		if err != nil {
			return err
		}
		c.Object = updated
		return nil
	}}
}
