package activitypub

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/deemkeen/mammut/domain"
	"github.com/deemkeen/mammut/util"
	"github.com/google/uuid"
)

// DeliveryQueue is the persistence side of federation: deliveries are
// enqueued during request handling and drained by a background worker
// with retry/backoff.
type DeliveryQueue interface {
	EnqueueDelivery(ctx context.Context, item *domain.DeliveryQueueItem) error
	ReadPendingDeliveries(ctx context.Context, limit int) ([]domain.DeliveryQueueItem, error)
	UpdateDeliveryAttempt(ctx context.Context, id uuid.UUID, attempts int, nextRetryAt time.Time) error
	DeleteDelivery(ctx context.Context, id uuid.UUID) error
}

// FederatedDelivery implements Deliverer over the persistent queue.
type FederatedDelivery struct {
	Store Store
	Queue DeliveryQueue
	IRIs  IRIs
}

// Address resolves an activity's audience to remote inbox IRIs: local
// collection references expand to their members' actors, remote actor
// references resolve through the actor cache, local actors and the public
// address drop out. Results are deduplicated.
func (d *FederatedDelivery) Address(ctx context.Context, activity *domain.Entity) ([]string, error) {
	return d.address(ctx, activity, "")
}

func (d *FederatedDelivery) address(ctx context.Context, activity *domain.Entity, excludeActor string) ([]string, error) {
	seen := make(map[string]bool)
	var inboxes []string
	svc := &Service{Store: d.Store, IRIs: d.IRIs}

	addActor := func(actorIRI string) error {
		if actorIRI == "" || actorIRI == excludeActor || d.IRIs.IsLocal(actorIRI) {
			return nil
		}
		actor, err := svc.GetOrFetchActor(ctx, actorIRI)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			log.Printf("Delivery: failed to resolve recipient %s: %v", actorIRI, err)
			return nil
		}
		if len(actor.Inbox) == 0 || seen[actor.Inbox[0]] {
			return nil
		}
		seen[actor.Inbox[0]] = true
		inboxes = append(inboxes, actor.Inbox[0])
		return nil
	}

	for _, recipient := range activity.Recipients() {
		if recipient == domain.PublicAddress {
			continue
		}
		if d.IRIs.IsLocal(recipient) {
			if name := d.IRIs.ActorName(recipient); name != "" && d.IRIs.Actor(name) == recipient {
				// local actor, nothing to federate
				continue
			}
			// a local collection: expand to its members' actors
			coll, err := d.Store.GetCollection(ctx, recipient)
			if err != nil {
				return nil, err
			}
			for _, item := range coll.OrderedItems {
				for _, actorIRI := range item.Actor {
					if err := addActor(actorIRI); err != nil {
						return nil, err
					}
				}
			}
			continue
		}
		if err := addActor(recipient); err != nil {
			return nil, err
		}
	}
	return inboxes, nil
}

// DeliverActivity enqueues the activity for each addressed inbox,
// attributed to the local actor whose key the worker signs with.
func (d *FederatedDelivery) DeliverActivity(ctx context.Context, actor, activity *domain.Entity) error {
	return d.deliver(ctx, actor, activity, "")
}

func (d *FederatedDelivery) deliver(ctx context.Context, actor, activity *domain.Entity, excludeActor string) error {
	inboxes, err := d.address(ctx, activity, excludeActor)
	if err != nil {
		return err
	}
	if len(inboxes) == 0 {
		return nil
	}

	out := activity.Clone()
	if len(out.RawContext) == 0 {
		out.RawContext = json.RawMessage(fmt.Sprintf("%q", ASContext))
	}
	out.Bto, out.Bcc = nil, nil
	activityJSON, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	for _, inbox := range inboxes {
		item := &domain.DeliveryQueueItem{
			Id:           uuid.New(),
			InboxURI:     inbox,
			ActorIRI:     actor.ID,
			ActivityJSON: string(activityJSON),
			Attempts:     0,
			NextRetryAt:  time.Now(),
			CreatedAt:    time.Now(),
		}
		if err := d.Queue.EnqueueDelivery(ctx, item); err != nil {
			return fmt.Errorf("failed to queue delivery to %s: %w", inbox, err)
		}
	}
	log.Printf("Delivery: queued %s to %d inboxes", activity.Type, len(inboxes))
	return nil
}

// PublishUpdate federates an Update describing a collection's current
// contents to the actor's followers, optionally excluding one recipient
// (typically the actor whose own action triggered the change).
func (d *FederatedDelivery) PublishUpdate(ctx context.Context, actor, collection *domain.Entity, excludeIRI string) error {
	update := &domain.Entity{
		ID:        d.IRIs.NewActivity(),
		Type:      "Update",
		Actor:     domain.IRIList{actor.ID},
		Object:    domain.EntityList{collection},
		Published: time.Now().UTC().Format(time.RFC3339),
	}
	if len(actor.Followers) > 0 {
		update.To = domain.IRIList{actor.Followers[0]}
	}
	return d.deliver(ctx, actor, update, excludeIRI)
}

// StartDeliveryWorker starts the background worker that drains the
// delivery queue.
func StartDeliveryWorker(d *FederatedDelivery) {
	log.Println("Starting delivery worker...")

	ticker := time.NewTicker(10 * time.Second)
	go func() {
		for range ticker.C {
			d.processQueue(context.Background())
		}
	}()
}

// backoff schedule in minutes, indexed by attempts so far.
var retryBackoff = []int{1, 5, 15, 60, 240, 1440}

const maxDeliveryAttempts = 10

func (d *FederatedDelivery) processQueue(ctx context.Context) {
	items, err := d.Queue.ReadPendingDeliveries(ctx, 50)
	if err != nil {
		log.Printf("DeliveryWorker: Failed to read queue: %v", err)
		return
	}
	if len(items) == 0 {
		return
	}

	log.Printf("DeliveryWorker: Processing %d pending deliveries", len(items))

	for _, item := range items {
		if err := d.send(ctx, &item); err != nil {
			item.Attempts++
			backoffMinutes := retryBackoff[min(item.Attempts-1, len(retryBackoff)-1)]
			nextRetry := time.Now().Add(time.Duration(backoffMinutes) * time.Minute)

			if item.Attempts >= maxDeliveryAttempts {
				log.Printf("DeliveryWorker: Giving up on delivery to %s after %d attempts", item.InboxURI, item.Attempts)
				d.Queue.DeleteDelivery(ctx, item.Id)
			} else {
				log.Printf("DeliveryWorker: Delivery to %s failed (attempt %d), retry in %dm: %v",
					item.InboxURI, item.Attempts, backoffMinutes, err)
				d.Queue.UpdateDeliveryAttempt(ctx, item.Id, item.Attempts, nextRetry)
			}
		} else {
			d.Queue.DeleteDelivery(ctx, item.Id)
		}
	}
}

// send performs one signed POST to a remote inbox.
func (d *FederatedDelivery) send(ctx context.Context, item *domain.DeliveryQueueItem) error {
	actor, err := d.Store.GetObject(ctx, item.ActorIRI, true)
	if err != nil {
		return fmt.Errorf("failed to load signing actor: %w", err)
	}
	keys := actor.Meta.Get(domain.MetaPrivateKey)
	if len(keys) == 0 {
		return fmt.Errorf("actor %s has no signing key", item.ActorIRI)
	}
	privateKey, err := ParsePrivateKey(keys[0])
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	body := []byte(item.ActivityJSON)
	hash := sha256.Sum256(body)
	digest := "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])

	req, err := http.NewRequestWithContext(ctx, "POST", item.InboxURI, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", ContentTypeActivityJSON)
	req.Header.Set("Accept", ContentTypeActivityJSON)
	req.Header.Set("User-Agent", util.GetNameAndVersion())
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", digest)

	keyID := item.ActorIRI + "#main-key"
	if actor.PublicKey != nil && actor.PublicKey.ID != "" {
		keyID = actor.PublicKey.ID
	}
	if err := SignRequest(req, privateKey, keyID); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}
	return nil
}
