// Package app wires configuration into the running components.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Vasilion/UnyX-Social/config"
	"github.com/Vasilion/UnyX-Social/internal/api"
	"github.com/Vasilion/UnyX-Social/internal/api/handler"
	"github.com/Vasilion/UnyX-Social/internal/cache"
	"github.com/Vasilion/UnyX-Social/internal/feed"
	"github.com/Vasilion/UnyX-Social/internal/live"
	"github.com/Vasilion/UnyX-Social/internal/relay"
	"github.com/Vasilion/UnyX-Social/internal/repository"
	"github.com/Vasilion/UnyX-Social/internal/service"
	"github.com/Vasilion/UnyX-Social/pkg/database"
	"github.com/Vasilion/UnyX-Social/pkg/logger"
	"github.com/Vasilion/UnyX-Social/pkg/storage"
)

// App holds every long-lived component of the service.
type App struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client

	Feed          feed.Feed
	Messages      service.MessageService
	Conversations service.ConversationService
	Items         service.ItemService
	Bridge        *live.Bridge
	Relay         *relay.Worker
	Janitor       *relay.Janitor
	Router        *gin.Engine

	stops []func(context.Context) error
}

// New opens the database (and redis when enabled) and builds the components.
// Background workers are not started; see Start.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, DB: db}

	if cfg.Redis.Enabled {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	store, err := storage.New(cfg.Storage)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Feed, err = feed.New(cfg.Messaging, a.Redis)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	m := cfg.Messaging
	msgRepo := repository.NewMessageRepository(db)
	itemRepo := repository.NewItemRepository(db)
	outbox := repository.NewOutboxRepository(db)
	profiles := cache.NewProfileCache(repository.NewProfileRepository(db), a.Redis, m.ProfileCacheTTL)

	a.Messages = service.NewMessageService(msgRepo, itemRepo, m.StoreTimeout)
	a.Conversations = service.NewConversationService(msgRepo, itemRepo, profiles, m.StoreTimeout)
	a.Items = service.NewItemService(itemRepo, store, cfg.Storage.Bucket, m.StoreTimeout)
	a.Bridge = live.NewBridge(a.Feed, a.Messages, a.Conversations, m.SessionBuffer)
	a.Relay = relay.NewWorker(outbox, msgRepo, a.Feed, m.RelayWorkers, m.RelayClaimLimit, m.RelayPoll, m.RelayMaxAttempts)
	a.Janitor = relay.NewJanitor(outbox, m.ReclaimAfter, m.OutboxRetention)
	a.Router = api.NewRouter(cfg, handler.New(a.Messages, a.Conversations, a.Items, a.Bridge))
	return a, nil
}

// Start runs the outbox relay and the janitor schedule.
func (a *App) Start() error {
	a.stops = append(a.stops, a.Relay.Start())
	stopJanitor, err := a.Janitor.Start(a.Config.Messaging.ReclaimSpec)
	if err != nil {
		return err
	}
	a.stops = append(a.stops, stopJanitor)
	logger.Info("background workers started",
		zap.Int("relay_workers", a.Config.Messaging.RelayWorkers),
		zap.String("reclaim_spec", a.Config.Messaging.ReclaimSpec))
	return nil
}

// Close stops workers, live sessions and connections, in that order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.stops) - 1; i >= 0; i-- {
		if err := a.stops[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.stops = nil
	if a.Bridge != nil {
		a.Bridge.Shutdown()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
