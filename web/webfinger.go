package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/deemkeen/mammut/activitypub"
	"github.com/deemkeen/mammut/domain"
	"github.com/gin-gonic/gin"
)

// handleWebfinger answers acct: lookups for local actors.
func (h *handlers) handleWebfinger(c *gin.Context) {
	resource := c.Query("resource")
	if resource == "" || !strings.HasPrefix(resource, "acct:") {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
		return
	}

	name := strings.TrimPrefix(resource, "acct:")
	name = strings.TrimSuffix(name, fmt.Sprintf("@%s", h.conf.Conf.SslDomain))
	if strings.Contains(name, "@") {
		// acct for a different domain
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
		return
	}

	actorIRI := h.svc.IRIs.Actor(name)
	if _, err := h.svc.Store.GetObject(c.Request.Context(), actorIRI, false); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
		} else {
			h.serverError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subject": fmt.Sprintf("acct:%s@%s", name, h.conf.Conf.SslDomain),
		"links": []gin.H{
			{
				"rel":  "self",
				"type": activitypub.ContentTypeActivityJSON,
				"href": actorIRI,
			},
		},
	})
}
