package activitypub

import (
	"context"
	"errors"
	"net/http"

	"github.com/deemkeen/mammut/domain"
	"golang.org/x/sync/errgroup"
)

// effect is one independent unit of side-effect work. All effects of a
// request run concurrently and are joined before the response is emitted.
type effect func(ctx context.Context) error

type inboxHandler func(s *Service, c *Context) []effect

// inboxEffects is the fixed dispatch table for remotely-delivered
// activities. Types without an entry need no effect beyond the default
// persistence already performed upstream.
var inboxEffects = map[verb]inboxHandler{
	verbAccept:   inboxAccept,
	verbAnnounce: inboxAnnounce,
	verbDelete:   inboxDelete,
	verbLike:     inboxLike,
	verbReject:   inboxReject,
	verbUndo:     inboxUndo,
	verbUpdate:   inboxUpdate,
}

// InboxSideEffects applies the per-type reactions to a remotely-delivered
// activity. Preconditions: sender and recipient resolved, activity
// validated and saved. Duplicate deliveries run no effects and still
// report success; inbox processing is accept-and-process, so the status is
// 200 whatever the branch, and only infrastructure failure aborts.
func (s *Service) InboxSideEffects(ctx context.Context, c *Context) error {
	if c.Activity == nil || c.Sender == nil || c.Target == nil {
		return nil
	}
	c.Status = http.StatusOK
	if !c.IsNew {
		// ignore duplicate deliveries
		return nil
	}

	var toDo []effect
	if handler, ok := inboxEffects[toVerb(c.Activity.Type)]; ok {
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
		Name:      domain.EventInbox,
		Actor:     c.Sender,
		Activity:  c.Activity,
		Recipient: c.Target,
		Object:    c.Object,
	}
	return nil
}

// inboxAccept adds the referenced Follow to the recipient's following
// collection, flags it accepted and schedules a publish of the updated
// snapshot.
func inboxAccept(s *Service, c *Context) []effect {
	object, recipient, senderIRI := c.Object, c.Target, c.Sender.ID
	if object == nil || toVerb(object.Type) != verbFollow || len(recipient.Following) == 0 {
		return nil
	}
	acceptIRI := c.Activity.ID
	return []effect{func(ctx context.Context) error {
		updated, err := s.Store.UpdateActivityMeta(ctx, object, domain.MetaCollection, recipient.Following[0], false)
		if err != nil {
			return err
		}
		updated, err = s.Store.UpdateActivityMeta(ctx, updated, domain.MetaAccepted, acceptIRI, false)
		if err != nil {
			return err
		}
		c.Object = updated
		c.Defer(func() error {
			coll, err := s.CollectionSnapshot(context.Background(), recipient.Following[0])
			if err != nil {
				return err
			}
			return s.Deliver.PublishUpdate(context.Background(), recipient, coll, senderIRI)
		})
		return nil
	}}
}

// inboxAnnounce records the share on a locally-owned object's shares
// collection and schedules a publish of the share count.
func inboxAnnounce(s *Service, c *Context) []effect {
	target, recipient, senderIRI := c.Object, c.Target, c.Sender.ID
	if target == nil || !s.IRIs.IsLocal(target.ID) || len(target.Shares) == 0 {
		return nil
	}
	return []effect{func(ctx context.Context) error {
		updated, err := s.Store.UpdateActivityMeta(ctx, c.Activity, domain.MetaCollection, target.Shares[0], false)
		if err != nil {
			return err
		}
		c.Activity = updated
		c.Defer(func() error {
			coll, err := s.CollectionSnapshot(context.Background(), target.Shares[0])
			if err != nil {
				return err
			}
			return s.Deliver.PublishUpdate(context.Background(), recipient, coll, senderIRI)
		})
		return nil
	}}
}

// inboxLike mirrors inboxAnnounce on the likes collection.
func inboxLike(s *Service, c *Context) []effect {
	target, recipient, senderIRI := c.Object, c.Target, c.Sender.ID
	if target == nil || !s.IRIs.IsLocal(target.ID) || len(target.Likes) == 0 {
		return nil
	}
	return []effect{func(ctx context.Context) error {
		updated, err := s.Store.UpdateActivityMeta(ctx, c.Activity, domain.MetaCollection, target.Likes[0], false)
		if err != nil {
			return err
		}
		c.Activity = updated
		c.Defer(func() error {
			coll, err := s.CollectionSnapshot(context.Background(), target.Likes[0])
			if err != nil {
				return err
			}
			return s.Deliver.PublishUpdate(context.Background(), recipient, coll, senderIRI)
		})
		return nil
	}}
}

// inboxDelete replaces a locally-known object with its tombstone. An
// unknown object is a no-op.
func inboxDelete(s *Service, c *Context) []effect {
	object, senderIRI := c.Object, c.Sender.ID
	if object == nil {
		return nil
	}
	return []effect{func(ctx context.Context) error {
		_, err := s.Store.UpdateObject(ctx, domain.Tombstone(object), senderIRI, true)
		return err
	}}
}

// inboxReject files the rejected activity under the recipient's
// rejections collection and flags it rejected. A Reject also undoes a
// prior follow Accept: the membership in following is stripped and a
// followers publish scheduled.
func inboxReject(s *Service, c *Context) []effect {
	object, recipient := c.Object, c.Target
	if object == nil {
		return nil
	}
	rejectIRI := c.Activity.ID
	return []effect{func(ctx context.Context) error {
		rejectionsIRI := s.IRIs.Rejections(recipient.PreferredUsername)
		updated, err := s.Store.UpdateActivityMeta(ctx, object, domain.MetaCollection, rejectionsIRI, false)
		if err != nil {
			return err
		}
		updated, err = s.Store.UpdateActivityMeta(ctx, updated, domain.MetaRejected, rejectIRI, false)
		if err != nil {
			return err
		}
		if len(recipient.Following) > 0 && HasMeta(updated, domain.MetaCollection, recipient.Following[0]) {
			updated, err = s.Store.UpdateActivityMeta(ctx, updated, domain.MetaCollection, recipient.Following[0], true)
			if err != nil {
				return err
			}
			if len(recipient.Followers) > 0 {
				c.Defer(func() error {
					coll, err := s.CollectionSnapshot(context.Background(), recipient.Followers[0])
					if err != nil {
						return err
					}
					return s.Deliver.PublishUpdate(context.Background(), recipient, coll, "")
				})
			}
		}
		c.Object = updated
		return nil
	}}
}

// inboxUndo strips the target entity from every collection it belongs to
// with one store-level removal.
func inboxUndo(s *Service, c *Context) []effect {
	object, senderIRI := c.Object, c.Sender.ID
	if object == nil {
		return nil
	}
	return []effect{func(ctx context.Context) error {
		return s.Store.RemoveActivity(ctx, object, senderIRI)
	}}
}

// inboxUpdate overwrites the stored object and every embedded copy. An
// update for an object we never stored is a no-op.
func inboxUpdate(s *Service, c *Context) []effect {
	object, senderIRI := c.Object, c.Sender.ID
	if object == nil {
		return nil
	}
	return []effect{func(ctx context.Context) error {
		updated, err := s.Store.UpdateObject(ctx, object, senderIRI, true)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		c.Object = updated
		return nil
	}}
}
