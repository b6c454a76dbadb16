package web

import (
	"log"
	"net/http"

	"github.com/deemkeen/mammut/activitypub"
	"github.com/gin-gonic/gin"
)

// handleInboxPost runs the inbound pipeline: normalize, resolve the target
// actor, verify the HTTP signature against the sender's published key, then
// validate, persist and apply side effects. Expected protocol failures end
// up as a status on the pipeline context; only infrastructure errors become
// a 500.
func (h *handlers) handleInboxPost(c *gin.Context) {
	name := c.Param("actor")
	log.Printf("POST /users/%s/inbox", name)
	ctx := c.Request.Context()

	activity, ok := h.readActivity(c)
	if !ok {
		return
	}

	pc := activitypub.NewContext()
	if err := h.svc.TargetActor(ctx, pc, name); err != nil {
		h.serverError(c, err)
		return
	}
	if pc.Rejected() {
		h.finish(c, pc)
		return
	}

	if len(activity.Actor) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid activity"})
		return
	}
	sender, err := h.svc.GetOrFetchActor(ctx, activity.Actor[0])
	if err != nil || sender.PublicKey == nil {
		log.Printf("Inbox: could not resolve sender %s: %v", activity.Actor[0], err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Signature verification failed"})
		return
	}
	signer, err := activitypub.VerifyRequest(c.Request, sender.PublicKey.PublicKeyPem)
	if err != nil || signer != sender.ID {
		log.Printf("Inbox: signature rejected for %s: %v", activity.Actor[0], err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Signature verification failed"})
		return
	}
	pc.Sender = sender

	if err := h.svc.InboxActivity(ctx, pc, activity); err != nil {
		h.serverError(c, err)
		return
	}
	if pc.Rejected() {
		h.finish(c, pc)
		return
	}
	if err := h.svc.Save(ctx, pc); err != nil {
		h.serverError(c, err)
		return
	}
	if err := h.svc.ResolveObject(ctx, pc); err != nil {
		h.serverError(c, err)
		return
	}
	if pc.Rejected() {
		h.finish(c, pc)
		return
	}
	if err := h.svc.ResolveReferences(ctx, pc); err != nil {
		h.serverError(c, err)
		return
	}
	if err := h.svc.InboxSideEffects(ctx, pc); err != nil {
		h.serverError(c, err)
		return
	}
	h.finish(c, pc)
}
