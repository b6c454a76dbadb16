package web

import (
	"context"
	"fmt"
	"time"

	"github.com/deemkeen/mammut/domain"
	"github.com/deemkeen/mammut/util"
	"github.com/gorilla/feeds"
)

// buildFeed renders the actor's public posts as RSS. Only Create activities
// addressed to the public collection make it into the feed.
func (h *handlers) buildFeed(ctx context.Context, name string) (string, error) {
	actorIRI := h.svc.IRIs.Actor(name)
	if _, err := h.svc.Store.GetObject(ctx, actorIRI, false); err != nil {
		return "", err
	}

	col, err := h.svc.Store.GetCollection(ctx, h.svc.IRIs.Outbox(name))
	if err != nil {
		return "", err
	}

	email := fmt.Sprintf("%s@%s", name, h.conf.Conf.SslDomain)
	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s Notes - %s", util.Name, name),
		Link:        &feeds.Link{Href: actorIRI},
		Description: fmt.Sprintf("public posts of %s", email),
		Author:      &feeds.Author{Name: name, Email: email},
		Created:     time.Now(),
	}

	var feedItems []*feeds.Item
	for _, activity := range col.OrderedItems {
		if activity.Type != domain.TypeCreate || !isPublic(activity) {
			continue
		}
		obj := activity.FirstObject()
		if obj == nil || obj.Content == "" {
			continue
		}
		created, _ := time.Parse(time.RFC3339, activity.Published)
		feedItems = append(feedItems,
			&feeds.Item{
				Id:      obj.ID,
				Title:   created.Format(time.RFC822),
				Link:    &feeds.Link{Href: obj.ID},
				Content: obj.Content,
				Author:  &feeds.Author{Name: name, Email: email},
				Created: created,
			})
	}

	feed.Items = feedItems
	return feed.ToRss()
}
