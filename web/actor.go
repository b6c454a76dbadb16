package web

import (
	"errors"
	"net/http"

	"github.com/deemkeen/mammut/domain"
	"github.com/gin-gonic/gin"
)

func (h *handlers) handleActor(c *gin.Context) {
	ctx := c.Request.Context()
	iri := h.svc.IRIs.Actor(c.Param("actor"))

	actor, err := h.svc.Store.GetObject(ctx, iri, false)
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Actor not found"})
		return
	}
	if err != nil {
		h.serverError(c, err)
		return
	}
	renderEntity(c, http.StatusOK, actor)
}

// handleActorCollection serves one of the actor's collections, addressed
// by the IRI scheme. Follower, following and liked listings go through the
// snapshot shaping: settled follows only, members collapsed to references.
func (h *handlers) handleActorCollection(iriOf func(name string) string) gin.HandlerFunc {
	return func(c *gin.Context) {
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

		col, err := h.svc.CollectionSnapshot(ctx, iriOf(name))
		if err != nil {
			h.serverError(c, err)
			return
		}
		renderEntity(c, http.StatusOK, col)
	}
}

// handleObjectCollection serves a per-object collection (shares, likes).
func (h *handlers) handleObjectCollection(iriOf func(objectIRI string) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		objectIRI := h.svc.IRIs.Object(c.Param("id"))

		col, err := h.svc.CollectionSnapshot(ctx, iriOf(objectIRI))
		if err != nil {
			h.serverError(c, err)
			return
		}
		renderEntity(c, http.StatusOK, col)
	}
}

func (h *handlers) handleActivity(c *gin.Context) {
	ctx := c.Request.Context()
	iri := h.svc.IRIs.Activity(c.Param("id"))

	activity, err := h.svc.Store.GetActivity(ctx, iri)
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Activity not found"})
		return
	}
	if err != nil {
		h.serverError(c, err)
		return
	}
	renderEntity(c, http.StatusOK, activity)
}

func (h *handlers) handleObject(c *gin.Context) {
	ctx := c.Request.Context()
	iri := h.svc.IRIs.Object(c.Param("id"))

	obj, err := h.svc.Store.GetObject(ctx, iri, false)
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Object not found"})
		return
	}
	if err != nil {
		h.serverError(c, err)
		return
	}
	// deleted objects keep their IRI but answer with their tombstone
	status := http.StatusOK
	if obj.Type == domain.TypeTombstone {
		status = http.StatusGone
	}
	renderEntity(c, status, obj)
}
