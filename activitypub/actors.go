package activitypub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/deemkeen/mammut/domain"
	"github.com/deemkeen/mammut/util"
)

// CreateActor provisions a local actor: profile, collection references
// and a fresh RSA keypair. The private key lives only in the hidden meta
// block.
func (s *Service) CreateActor(ctx context.Context, username, displayName, summary string) (*domain.Entity, error) {
	actorIRI := s.IRIs.Actor(username)
	if _, err := s.Store.GetObject(ctx, actorIRI, false); err == nil {
		return nil, fmt.Errorf("actor '%s' already exists", username)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	keypair := util.GeneratePemKeypair()
	actor := &domain.Entity{
		ID:                actorIRI,
		Type:              "Person",
		PreferredUsername: username,
		Name:              displayName,
		Summary:           summary,
		Inbox:             domain.IRIList{s.IRIs.Inbox(username)},
		Outbox:            domain.IRIList{s.IRIs.Outbox(username)},
		Followers:         domain.IRIList{s.IRIs.Followers(username)},
		Following:         domain.IRIList{s.IRIs.Following(username)},
		Liked:             domain.IRIList{s.IRIs.Liked(username)},
		Published:         time.Now().UTC().Format(time.RFC3339),
		PublicKey: &domain.PublicKey{
			ID:           s.IRIs.MainKey(username),
			Owner:        actorIRI,
			PublicKeyPem: keypair.Public,
		},
	}
	actor.Meta.Add(domain.MetaPrivateKey, keypair.Private)

	if err := s.Store.SaveObject(ctx, actor); err != nil {
		return nil, fmt.Errorf("failed to store actor: %w", err)
	}
	return actor, nil
}

// GetOrFetchActor returns the actor from the object store, fetching and
// caching it from the remote server when unknown. Cached remote profiles
// are refreshed by inbound Update activities rather than on a timer.
func (s *Service) GetOrFetchActor(ctx context.Context, actorIRI string) (*domain.Entity, error) {
	cached, err := s.Store.GetObject(ctx, actorIRI, false)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if s.IRIs.IsLocal(actorIRI) {
		return nil, domain.ErrNotFound
	}
	return s.FetchRemoteActor(ctx, actorIRI)
}

// FetchRemoteActor fetches an actor document from a remote server and
// stores it in the object cache.
func (s *Service) FetchRemoteActor(ctx context.Context, actorIRI string) (*domain.Entity, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", actorIRI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", ContentTypeActivityJSON)
	req.Header.Set("User-Agent", util.GetNameAndVersion())

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("actor fetch failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var actor domain.Entity
	if err := json.Unmarshal(body, &actor); err != nil {
		return nil, fmt.Errorf("failed to parse actor JSON: %w", err)
	}

	if actor.ID == "" || len(actor.Inbox) == 0 || actor.PublicKey == nil || actor.PublicKey.PublicKeyPem == "" {
		return nil, fmt.Errorf("actor missing required fields")
	}

	if err := s.Store.SaveObject(ctx, &actor); err != nil {
		return nil, fmt.Errorf("failed to cache remote actor: %w", err)
	}
	return &actor, nil
}
