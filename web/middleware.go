package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/deemkeen/mammut/activitypub"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// responseTypeKey carries the negotiated media type to renderEntity.
const responseTypeKey = "jsonldType"

// clientLimiter hands out one token bucket per client IP. Buckets idle
// for longer than staleAfter are evicted by a background sweep so the map
// does not grow with every scraper that ever hit the instance.
type clientLimiter struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	rate    rate.Limit
	burst   int
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const (
	sweepEvery = 10 * time.Minute
	staleAfter = 30 * time.Minute
)

func newClientLimiter(r rate.Limit, burst int) *clientLimiter {
	cl := &clientLimiter{
		buckets: make(map[string]*clientBucket),
		rate:    r,
		burst:   burst,
	}
	go cl.sweep()
	return cl
}

func (cl *clientLimiter) allow(ip string) bool {
	cl.mu.Lock()
	b, ok := cl.buckets[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(cl.rate, cl.burst)}
		cl.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	cl.mu.Unlock()
	return b.limiter.Allow()
}

func (cl *clientLimiter) sweep() {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-staleAfter)
		cl.mu.Lock()
		for ip, b := range cl.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(cl.buckets, ip)
			}
		}
		cl.mu.Unlock()
	}
}

// rateLimit answers 429 once a client exhausts its bucket.
func rateLimit(cl *clientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cl.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}
		c.Next()
	}
}

// negotiateJSONLD gates protocol GET routes on content negotiation: the
// response is served in the JSON-LD flavor the client accepts. An absent
// Accept header and */* settle on activity+json; a client preferring an
// HTML representation gets 406, no HTML surface is mounted on these
// routes.
func negotiateJSONLD() gin.HandlerFunc {
	offers := append(append([]string{}, activitypub.JsonLDTypes...), "text/html")
	return func(c *gin.Context) {
		negotiated := c.NegotiateFormat(offers...)
		for _, t := range activitypub.JsonLDTypes {
			if negotiated == t {
				c.Set(responseTypeKey, negotiated)
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusNotAcceptable, gin.H{
			"error": "Not acceptable",
		})
	}
}

// requireJSONLD rejects federation POSTs whose body does not declare a
// protocol media type.
func requireJSONLD() gin.HandlerFunc {
	return func(c *gin.Context) {
		ct := c.ContentType()
		for _, t := range activitypub.JsonLDTypes {
			if ct == t {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
			"error": "Unsupported media type",
		})
	}
}

// limitBody caps the request body. The declared Content-Length is checked
// up front, the reader itself is capped for clients that lie about it.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "Request body too large",
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
