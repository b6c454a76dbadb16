package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event names emitted after side effects complete.
const (
	EventInbox  = "inbound-activity"
	EventOutbox = "outbound-activity"
)

// Event describes a processed activity for external listeners. Recipient
// is set for inbound deliveries only.
type Event struct {
	Name      string
	Actor     *Entity
	Activity  *Entity
	Recipient *Entity
	Object    *Entity
}

// DeliveryQueueItem is one pending signed delivery to a remote inbox.
type DeliveryQueueItem struct {
	Id           uuid.UUID
	InboxURI     string
	ActorIRI     string // local signing actor
	ActivityJSON string // the complete activity to deliver
	Attempts     int
	NextRetryAt  time.Time
	CreatedAt    time.Time
}
