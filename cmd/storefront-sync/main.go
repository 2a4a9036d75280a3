package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/agroconexion/storefront-sync/api"
	"github.com/agroconexion/storefront-sync/api/middleware"
	"github.com/agroconexion/storefront-sync/api/routes"
	"github.com/agroconexion/storefront-sync/internal/backend"
	"github.com/agroconexion/storefront-sync/internal/cart"
	"github.com/agroconexion/storefront-sync/internal/checkout"
	"github.com/agroconexion/storefront-sync/internal/coordinator"
	"github.com/agroconexion/storefront-sync/internal/events"
	"github.com/agroconexion/storefront-sync/internal/i18n"
	"github.com/agroconexion/storefront-sync/internal/notifications"
	"github.com/agroconexion/storefront-sync/pkg/auth"
	"github.com/agroconexion/storefront-sync/pkg/config"
	"github.com/agroconexion/storefront-sync/pkg/instance"
	"github.com/agroconexion/storefront-sync/pkg/logger"
	"github.com/agroconexion/storefront-sync/pkg/metrics"
	"github.com/agroconexion/storefront-sync/pkg/redis"
)

const (
	serviceName     = "storefront-sync"
	shutdownTimeout = 10 * time.Second
	eventBuffer     = 16
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "storefront-sync stopped with errors", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	syncMetrics := metrics.NewSyncMetrics(reg)

	var (
		redisClient *redis.Client
		tokens      auth.TokenSource = auth.StaticToken(cfg.Auth.AccessToken)
	)
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Append(err, redisClient.Close())
		}()
		if cfg.Auth.AccessToken != "" {
			if seedErr := redisClient.StoreAccessToken(ctx, cfg.Auth.UserKey, cfg.Auth.AccessToken, 0); seedErr != nil {
				logg.Warn(logg.WithField(ctx, "error", seedErr.Error()), "auth.token.seed_failed")
			}
		}
		tokens = auth.NewStoredToken(redisClient, cfg.Auth.UserKey, cfg.Auth.AccessToken)
	}

	client, err := backend.New(backend.Options{
		BaseURL: cfg.Backend.APIBaseURL,
		Timeout: cfg.Backend.RequestTimeout,
		Tokens:  tokens,
		Breaker: cfg.Breaker,
		Metrics: syncMetrics,
		Logger:  logg,
	})
	if err != nil {
		return err
	}

	bus := events.NewBus()

	storeOpts := cart.Options{
		Remote:              client,
		CacheKey:            cfg.Auth.UserKey,
		CacheTTL:            cfg.Redis.SnapshotTTL,
		UpdateMode:          cfg.Backend.QuantityUpdateMode,
		ReloadAfterMutation: cfg.Backend.ReloadAfterMutation,
		MediaBaseURL:        cfg.Backend.MediaBase(),
		Events:              bus,
		Metrics:             syncMetrics,
		Logger:              logg,
	}
	if redisClient != nil {
		storeOpts.Cache = redisClient
	}
	store, err := cart.NewStore(storeOpts)
	if err != nil {
		return err
	}

	coord := coordinator.New(store, syncMetrics, logg)

	checkoutSvc, err := checkout.NewService(client, store, bus, logg)
	if err != nil {
		return err
	}

	stream, err := notifications.NewStream(notifications.Options{
		Remote: client,
		Dialer: notifications.WebsocketDialer{
			BaseURL:          cfg.Backend.PushBaseURL,
			HandshakeTimeout: cfg.Push.HandshakeTimeout,
		},
		Tokens:       tokens,
		Push:         cfg.Push,
		MarkReadSync: cfg.Backend.MarkReadSync,
		Events:       bus,
		Metrics:      syncMetrics,
		Logger:       logg,
	})
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, stream.Close())
	}()

	eventCh, cancelEvents := bus.Subscribe(eventBuffer, events.TopicCartUpdated, events.TopicCartChanged, events.TopicNotificationsChanged)
	defer cancelEvents()
	go logEvents(ctx, logg, eventCh, store, stream)

	if restored, restoreErr := store.Restore(ctx); restoreErr != nil {
		logg.Warn(logg.WithField(ctx, "error", restoreErr.Error()), "cart.restore.failed")
	} else if restored {
		logg.Info(ctx, "cart.restore.ok")
	}
	if loadErr := store.Load(ctx); loadErr != nil {
		logg.Error(ctx, "cart.initial_load.failed", loadErr)
	}
	if startErr := stream.Start(ctx); startErr != nil {
		logg.Error(ctx, "notifications.start.failed", startErr)
	}

	deps := routes.Deps{
		Config:        cfg,
		Logger:        logg,
		Translator:    i18n.New(cfg.App.DefaultLanguage),
		Gatherer:      reg,
		Cart:          store,
		Coordinator:   coord,
		Checkout:      checkoutSvc,
		Notifications: stream,
	}
	if redisClient != nil {
		deps.Redis = redisClient
		deps.Idempotency = middleware.IdempotencyStore(redisClient)
	}
	server := api.NewServer(cfg.App, routes.NewRouter(deps))

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "addr": server.Addr, "instance": instance.GetID()}), "starting http shell")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logg.Info(context.Background(), "shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type feedCounter interface {
	UnreadCount() int
}

// logEvents mirrors the change broadcast into the log so the header badges'
// inputs are visible while running headless.
func logEvents(ctx context.Context, logg *logger.Logger, ch <-chan events.Event, store *cart.Store, feed feedCounter) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			fields := map[string]any{"topic": string(ev.Topic), "op": ev.Op}
			switch ev.Topic {
			case events.TopicNotificationsChanged:
				fields["unread"] = feed.UnreadCount()
			default:
				fields["total_items"] = store.Snapshot().Totals().TotalItems
			}
			logg.Debug(logg.WithFields(ctx, fields), "event.published")
		}
	}
}
