package activitypub

import (
	"log"
	"net/http"

	"github.com/deemkeen/mammut/domain"
)

// Task is one unit of deferred work, run after the response is committed.
type Task func() error

// Context carries one request through the pipeline, from resolution and
// validation through the side-effect engines to the deferred queue. It
// replaces any ambient per-request state; every stage receives it
// explicitly.
//
// Expected protocol failures (bad shape, ownership, missing target) are a
// Status/StatusMessage pair on this value and short-circuit the pipeline.
// Go errors are reserved for infrastructure failures.
type Context struct {
	Target   *domain.Entity // resolved addressee (actor, activity or object)
	Sender   *domain.Entity // inbox only: verified remote sender
	Activity *domain.Entity // validated activity, set by the validators
	Object   *domain.Entity // resolved object of the activity

	// Linked holds the resolved thread references (inReplyTo) of the
	// activity, for consumers that want the reply's context.
	Linked domain.EntityList

	Status        int
	StatusMessage string

	// IsNew is false for duplicate deliveries; side effects are skipped.
	IsNew bool

	// SkipDelivery suppresses the federation task for this submission.
	SkipDelivery bool

	Event *domain.Event

	deferred []Task
}

func NewContext() *Context {
	return &Context{Status: http.StatusOK}
}

// Reject records an expected protocol failure.
func (c *Context) Reject(status int, message string) {
	c.Status = status
	c.StatusMessage = message
}

// Rejected reports whether the pipeline has short-circuited.
func (c *Context) Rejected() bool {
	return c.Status >= 400
}

// Defer appends a task to the response-scoped queue.
func (c *Context) Defer(t Task) {
	c.deferred = append(c.deferred, t)
}

// DeferFront prepends a task so it runs before everything queued so far.
// Federation of the primary activity uses this to reach recipients ahead
// of any secondary collection-update publication.
func (c *Context) DeferFront(t Task) {
	c.deferred = append([]Task{t}, c.deferred...)
}

// RunDeferred drains the queue strictly in order, one task at a time. A
// failing task is logged and isolated; the rest still run.
func (c *Context) RunDeferred() {
	for _, t := range c.deferred {
		if err := t(); err != nil {
			log.Printf("Deferred: task failed: %v", err)
		}
	}
	c.deferred = nil
}

// DeferredCount reports the number of queued tasks.
func (c *Context) DeferredCount() int {
	return len(c.deferred)
}
