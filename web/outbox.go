package web

import (
	"errors"
	"log"
	"net/http"

	"github.com/deemkeen/mammut/activitypub"
	"github.com/deemkeen/mammut/domain"
	"github.com/gin-gonic/gin"
)

// handleOutboxPost accepts a locally-submitted activity or bare object,
// wraps and validates it, persists it and schedules federation. On success
// the minted activity IRI is exposed in the Location header.
func (h *handlers) handleOutboxPost(c *gin.Context) {
	name := c.Param("actor")
	log.Printf("POST /users/%s/outbox", name)
	ctx := c.Request.Context()

	body, ok := h.readActivity(c)
	if !ok {
		return
	}

	pc := activitypub.NewContext()
	if err := h.svc.TargetActorWithKeys(ctx, pc, name); err != nil {
		h.serverError(c, err)
		return
	}
	if pc.Rejected() {
		h.finish(c, pc)
		return
	}
	if err := h.svc.OutboxActivity(ctx, pc, body); err != nil {
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
	if err := h.svc.OutboxSideEffects(ctx, pc); err != nil {
		h.serverError(c, err)
		return
	}
	if pc.Activity != nil {
		c.Header("Location", pc.Activity.ID)
	}
	h.finish(c, pc)
}

// handleOutboxGet serves the actor's outbox, filtered to publicly-addressed
// activities so direct messages never show up in the listing.
func (h *handlers) handleOutboxGet(c *gin.Context) {
	ctx := c.Request.Context()
	name := c.Param("actor")

	if _, err := h.svc.Store.GetObject(ctx, h.svc.IRIs.Actor(name), false); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Actor not found"})
		} else {
			h.serverError(c, err)
		}
		return
	}

	col, err := h.svc.Store.GetCollection(ctx, h.svc.IRIs.Outbox(name))
	if err != nil {
		h.serverError(c, err)
		return
	}

	var public domain.EntityList
	for _, item := range col.OrderedItems {
		if isPublic(item) {
			public = append(public, item)
		}
	}
	col.OrderedItems = public
	total := len(public)
	col.TotalItems = &total

	renderEntity(c, http.StatusOK, col)
}

func isPublic(e *domain.Entity) bool {
	for _, iri := range e.Recipients() {
		if iri == domain.PublicAddress {
			return true
		}
	}
	return false
}
