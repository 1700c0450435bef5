package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/deskline/support-desk/internal/api/http"
	"github.com/deskline/support-desk/internal/api/http/handlers"
	"github.com/deskline/support-desk/internal/auth"
	"github.com/deskline/support-desk/internal/calendar"
	"github.com/deskline/support-desk/internal/channels"
	"github.com/deskline/support-desk/internal/config"
	"github.com/deskline/support-desk/internal/events"
	"github.com/deskline/support-desk/internal/observability"
	"github.com/deskline/support-desk/internal/persistence"
	"github.com/deskline/support-desk/internal/repository"
	"github.com/deskline/support-desk/internal/repository/memstore"
	"github.com/deskline/support-desk/internal/service"
	"github.com/deskline/support-desk/internal/sla"
	"github.com/deskline/support-desk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing := observability.SetupTracing(ctx, cfg.App, cfg.Telemetry, logger)
	metrics := observability.NewMetrics()

	cal, err := calendar.Weekly(cfg.SLA.Timezone, cfg.SLA.BusinessDays, cfg.SLA.BusinessStart, cfg.SLA.BusinessEnd, cfg.SLA.Holidays)
	if err != nil {
		logger.Fatal("invalid business calendar", zap.Error(err))
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var store repository.Store
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		store = repository.NewPostgresStore(pg.PoolHandle())
	} else {
		logger.Warn("POSTGRES_DSN not provided; using in-memory store")
		store = memstore.New()
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	dispatcher := events.NewInMemoryDispatcher(logger)
	if cfg.Redis.FeedEnabled && redis.Enabled() {
		events.NewRedisFeed(redis, cfg.Redis.ChannelPrefix, logger).Attach(dispatcher)
	}
	service.NewNotificationService(dispatcher, logger).RegisterHandlers()

	queue := worker.NewQueue(cfg.Worker, logger, metrics)
	queue.Start(ctx)

	deps := service.Dependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Calculator: sla.NewCalculator(cal),
		Clock:      time.Now,
		Logger:     logger,
	}
	ticketService := service.NewTicketService(deps)
	slaService := service.NewSLAService(deps)
	registry := channels.NewRegistry(channels.RegistryDependencies{
		Channels:    store.Channels(),
		Messages:    store.Messages(),
		Tickets:     ticketService,
		Outbound:    queue,
		DefaultFrom: cfg.Notification.EmailFrom,
		Logger:      logger,
	})

	go sweepBreaches(ctx, slaService, cfg.SLA.EvaluateInterval, logger)

	readiness := map[string]handlers.Pinger{}
	if pg.Enabled() {
		readiness["postgres"] = pg
	}
	if redis.Enabled() {
		readiness["redis"] = redis
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness, metrics),
		Tickets:        handlers.NewTicketsHandler(ticketService, slaService),
		Relationships:  handlers.NewRelationshipsHandler(service.NewRelationshipService(deps)),
		SLA:            handlers.NewSLAHandler(slaService, service.NewStatisticsService(deps), time.Now),
		Channels:       handlers.NewChannelsHandler(service.NewChannelService(deps)),
		Chat:           handlers.NewChatHandler(registry, time.Now),
		Webhooks:       handlers.NewWebhooksHandler(registry, cfg.App.PublicBaseURL, time.Now, logger),
		AuthMiddleware: auth.NewAuthMiddleware(auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer)),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := queue.Shutdown(shutdownCtx); err != nil {
		logger.Warn("outbound queue shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown", zap.Error(err))
	}
}

// sweepBreaches raises SLA breach flags on a fixed period until ctx ends.
func sweepBreaches(ctx context.Context, svc *service.SLAService, every time.Duration, logger *zap.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			updates, err := svc.EvaluateBreaches(ctx, now)
			if err != nil {
				logger.Warn("sla breach sweep failed", zap.Error(err))
				continue
			}
			if len(updates) > 0 {
				logger.Info("sla breaches flagged", zap.Int("tickets", len(updates)))
			}
		}
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
