// Package feed is the system-wide "message inserted" change feed.
//
// Delivery is at-least-once and unordered: consumers deduplicate by message
// id and order by (created_at, id).
package feed

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Vasilion/UnyX-Social/config"
	"github.com/Vasilion/UnyX-Social/internal/model"
)

// Feed publishes inserted messages to every live subscription.
type Feed interface {
	Publish(ctx context.Context, msg *model.Message) error

	// Subscribe opens an independent subscription. It stays open until
	// Close is called; ctx only bounds the setup.
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription is one consumer's handle on the feed.
type Subscription interface {
	// C is closed after Close returns.
	C() <-chan *model.Message

	// Close releases the subscription. Safe to call more than once.
	Close() error
}

// New builds the feed selected by cfg.Feed.
func New(cfg config.MessagingConfig, client *redis.Client) (Feed, error) {
	switch cfg.Feed {
	case "", "memory":
		return NewInMemory(cfg.FeedBuffer), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("feed: redis feed requires a redis client")
		}
		return NewRedis(client, cfg.FeedChannel, cfg.FeedBuffer), nil
	default:
		return nil, fmt.Errorf("feed: unsupported feed %q", cfg.Feed)
	}
}
