package web

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/deemkeen/mammut/activitypub"
	"github.com/deemkeen/mammut/domain"
	"github.com/deemkeen/mammut/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"golang.org/x/time/rate"
)

// handlers bundles everything a request needs: the protocol engine, the
// JSON-LD normalizer and the instance configuration.
type handlers struct {
	conf *util.AppConfig
	svc  *activitypub.Service
	norm activitypub.Normalizer
}

// NewRouter builds the gin engine with all federation endpoints mounted.
// Split out of Router so tests can drive it with httptest.
func NewRouter(conf *util.AppConfig, svc *activitypub.Service) *gin.Engine {
	h := &handlers{conf: conf, svc: svc, norm: activitypub.JSONLD{}}

	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limit: 10 requests per second per IP, burst of 20
	g.Use(rateLimit(newClientLimiter(rate.Limit(10), 20)))

	// Stricter limit plus a 1MB body cap on federation POSTs
	postLimit := rateLimit(newClientLimiter(rate.Limit(5), 10))
	maxBodySize := limitBody(1 * 1024 * 1024)
	negotiate := negotiateJSONLD()
	requireType := requireJSONLD()

	g.GET("/.well-known/webfinger", h.handleWebfinger)

	g.GET("/users/:actor", negotiate, h.handleActor)
	g.POST("/users/:actor/inbox", postLimit, maxBodySize, requireType, h.handleInboxPost)
	g.POST("/users/:actor/outbox", postLimit, maxBodySize, requireType, h.handleOutboxPost)

	g.GET("/users/:actor/outbox", negotiate, h.handleOutboxGet)
	g.GET("/users/:actor/followers", negotiate, h.handleActorCollection(svc.IRIs.Followers))
	g.GET("/users/:actor/following", negotiate, h.handleActorCollection(svc.IRIs.Following))
	g.GET("/users/:actor/liked", negotiate, h.handleActorCollection(svc.IRIs.Liked))

	g.GET("/activities/:id", negotiate, h.handleActivity)
	g.GET("/objects/:id", negotiate, h.handleObject)
	g.GET("/objects/:id/shares", negotiate, h.handleObjectCollection(svc.IRIs.Shares))
	g.GET("/objects/:id/likes", negotiate, h.handleObjectCollection(svc.IRIs.Likes))

	// RSS Feed
	g.GET("/feed/:actor", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")
		rss, err := h.buildFeed(c.Request.Context(), c.Param("actor"))
		if err != nil {
			c.Render(http.StatusNotFound, render.String{Format: ""})
		} else {
			c.Render(http.StatusOK, render.String{Format: rss})
		}
	})

	return g
}

// Router starts the HTTP listener and blocks.
func Router(conf *util.AppConfig, svc *activitypub.Service) error {
	log.Printf("Starting federation server on %s:%d", conf.Conf.Host, conf.Conf.HttpPort)
	g := NewRouter(conf, svc)
	return g.Run(fmt.Sprintf(":%d", conf.Conf.HttpPort))
}

// finish commits the pipeline outcome: status plus error detail on a
// rejection, otherwise the drained deferred queue and the event signal.
func (h *handlers) finish(c *gin.Context, pc *activitypub.Context) {
	if pc.Rejected() {
		c.JSON(pc.Status, gin.H{"error": pc.StatusMessage})
		return
	}
	c.Status(pc.Status)
	c.Writer.WriteHeaderNow()
	pc.RunDeferred()
	if pc.Event != nil && h.svc.Notify != nil {
		h.svc.Notify.Notify(pc.Event)
	}
}

func (h *handlers) serverError(c *gin.Context, err error) {
	log.Printf("Web: internal error: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

// renderEntity writes the protocol-visible representation: hidden audience
// stripped, a JSON-LD context guaranteed, served in the negotiated flavor.
func renderEntity(c *gin.Context, status int, e *domain.Entity) {
	out := e.Clone()
	out.Bto = nil
	out.Bcc = nil
	if len(out.RawContext) == 0 {
		out.RawContext = json.RawMessage(fmt.Sprintf("%q", activitypub.ASContext))
	}
	buf, err := json.Marshal(out)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	contentType := activitypub.ContentTypeActivityJSON
	if v, ok := c.Get(responseTypeKey); ok {
		if t, ok := v.(string); ok && t != "" {
			contentType = t
		}
	}
	c.Data(status, contentType+"; charset=utf-8", buf)
}

// readActivity reads and normalizes a POSTed body. A nil entity with a nil
// error means the body was not valid JSON-LD and the response is written.
func (h *handlers) readActivity(c *gin.Context) (*domain.Entity, bool) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return nil, false
	}
	entity, err := h.norm.Normalize(body)
	if err != nil {
		h.serverError(c, err)
		return nil, false
	}
	if entity == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body is not valid JSON-LD"})
		return nil, false
	}
	return entity, true
}
