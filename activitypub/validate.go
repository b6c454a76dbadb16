package activitypub

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/deemkeen/mammut/domain"
)

// ValidateActivity checks the required activity shape: id, type and actor.
func ValidateActivity(e *domain.Entity) bool {
	return e != nil && e.ID != "" && e.Type != "" && len(e.Actor) > 0
}

// ValidateObject checks the required object shape: id and type.
func ValidateObject(e *domain.Entity) bool {
	return e != nil && e.ID != "" && e.Type != ""
}

// validateUpdate applies the Update-specific rules: the embedded object
// must be resolved, must not itself be an activity, and the requester must
// own it.
func validateUpdate(c *Context, activity *domain.Entity, requesterIRI string) {
	obj := activity.FirstObject()
	if obj == nil || !ValidateObject(obj) {
		c.Reject(http.StatusBadRequest, "Updates must include resolved object")
		return
	}
	if ValidateActivity(obj) {
		c.Reject(http.StatusBadRequest, "Updates to activities not yet supported")
		return
	}
	if requesterIRI != obj.ID && (len(obj.AttributedTo) == 0 || requesterIRI != obj.AttributedTo[0]) {
		c.Reject(http.StatusForbidden, "Objects can only be updated by attributedTo actor")
	}
}

// stampEngagement gives a locally minted object its shares and likes
// collection references, the capability the inbox engine checks before
// recording remote engagement.
func (s *Service) stampEngagement(object *domain.Entity) {
	object.Shares = domain.IRIList{s.IRIs.Shares(object.ID)}
	object.Likes = domain.IRIList{s.IRIs.Likes(object.ID)}
}

// InboxActivity validates a remotely-delivered activity and stamps it with
// the target inbox membership. Preconditions: target and sender resolved.
func (s *Service) InboxActivity(ctx context.Context, c *Context, activity *domain.Entity) error {
	if c.Target == nil || c.Sender == nil {
		return nil
	}
	if !ValidateActivity(activity) {
		c.Reject(http.StatusBadRequest, "Invalid activity")
		return nil
	}
	if toVerb(activity.Type) == verbUpdate {
		validateUpdate(c, activity, c.Sender.ID)
		if c.Rejected() {
			return nil
		}
	}
	if len(c.Target.Inbox) == 0 {
		return fmt.Errorf("target %s has no inbox", c.Target.ID)
	}
	activity.Meta.Add(domain.MetaCollection, c.Target.Inbox[0])
	c.Activity = activity
	return nil
}

// OutboxActivity validates a locally-submitted document. A bare object is
// wrapped in a Create addressed from the actor; a submitted Create has its
// embedded object's attribution and audience overwritten from the
// activity, which is authoritative. Ownership rules for Update and Delete
// run here, before anything is persisted.
func (s *Service) OutboxActivity(ctx context.Context, c *Context, body *domain.Entity) error {
	if c.Target == nil {
		return nil
	}
	actorIRI := c.Target.ID
	activity := body
	activity.ID = s.IRIs.NewActivity()

	if !ValidateActivity(activity) {
		// not a valid activity: check for a valid bare object and wrap it
		object := body
		object.ID = s.IRIs.NewObject()
		if !ValidateObject(object) {
			c.Reject(http.StatusBadRequest, "Invalid activity")
			return nil
		}
		object.AttributedTo = domain.IRIList{actorIRI}
		s.stampEngagement(object)
		activity = s.BuildActivity(domain.TypeCreate, actorIRI, object.To, object)
		activity.Bto = object.Bto
		activity.Cc = object.Cc
		activity.Bcc = object.Bcc
		activity.Audience = object.Audience
	} else {
		switch toVerb(activity.Type) {
		case verbCreate:
			object := activity.FirstObject()
			if object == nil || object.Type == "" {
				c.Reject(http.StatusBadRequest, "Invalid activity")
				return nil
			}
			object.ID = s.IRIs.NewObject()
			s.stampEngagement(object)
			// the activity's attribution and audience are authoritative
			object.AttributedTo = domain.IRIList{actorIRI}
			object.To = activity.To
			object.Bto = activity.Bto
			object.Cc = activity.Cc
			object.Bcc = activity.Bcc
			object.Audience = activity.Audience
		case verbUpdate:
			validateUpdate(c, activity, actorIRI)
			if c.Rejected() {
				return nil
			}
		case verbDelete:
			// deletes are only allowed on the actor's own objects, checked
			// before any store mutation
			stored, err := s.Store.GetObject(ctx, activity.ObjectID(), false)
			if errors.Is(err, domain.ErrNotFound) {
				c.Reject(http.StatusNotFound, fmt.Sprintf("'%s' not found", activity.ObjectID()))
				return nil
			}
			if err != nil {
				return err
			}
			if stored.ID != actorIRI && (len(stored.AttributedTo) == 0 || stored.AttributedTo[0] != actorIRI) {
				c.Reject(http.StatusForbidden, "Objects can only be deleted by attributedTo actor")
				return nil
			}
			c.Object = stored
		}
	}

	if len(c.Target.Outbox) == 0 {
		return fmt.Errorf("target %s has no outbox", c.Target.ID)
	}
	activity.Meta.Add(domain.MetaCollection, c.Target.Outbox[0])
	c.Activity = activity
	return nil
}
