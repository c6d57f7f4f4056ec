package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-bot/internal/api/http"
	"github.com/spec-kit/ticket-bot/internal/api/http/handlers"
	"github.com/spec-kit/ticket-bot/internal/config"
	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/gateway"
	"github.com/spec-kit/ticket-bot/internal/observability"
	"github.com/spec-kit/ticket-bot/internal/persistence"
	"github.com/spec-kit/ticket-bot/internal/service"
	"github.com/spec-kit/ticket-bot/internal/ticket"
	"github.com/spec-kit/ticket-bot/internal/transcript"
	"github.com/spec-kit/ticket-bot/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	panel, err := config.LoadPanel(cfg.Tickets.PanelFile)
	if err != nil {
		logger.Fatal("failed to load panel config", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	discord, err := gateway.NewDiscord(cfg.Discord, cfg.Tickets.EphemeralClearDelay(), logger, metrics)
	if err != nil {
		logger.Fatal("failed to create discord session", zap.Error(err))
	}

	var redis *persistence.Redis
	var index ticket.Index
	if cfg.Tickets.IndexBackend == "redis" {
		redis = persistence.NewRedis(cfg.Redis, logger)
		defer redis.Close()
		index = ticket.NewRedisIndex(redis)
	} else {
		index = ticket.NewTopicIndex(discord, cfg.Discord.GuildID)
	}

	dispatcher := events.NewInMemoryDispatcher()
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	controller := ticket.NewController(ticket.ControllerDependencies{
		Discord:    cfg.Discord,
		Policy:     cfg.Tickets,
		Panel:      panel,
		Gateway:    discord,
		Index:      index,
		Archiver:   transcript.NewHTMLArchiver(discord, 1000),
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	if err := discord.Open(controller); err != nil {
		logger.Fatal("failed to open discord gateway", zap.Error(err))
	}
	defer discord.Close() //nolint:errcheck

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger)

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, redis)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{Health: healthHandler})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	logger.Info("ticket bot online",
		zap.String("guild_id", cfg.Discord.GuildID),
		zap.Int("categories", len(panel.Categories)))

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
