package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"garagestock/internal/api"
	"garagestock/internal/config"
	"garagestock/internal/household"
	"garagestock/internal/localstore"
	"garagestock/internal/notify"
	"garagestock/internal/repository"
	"garagestock/internal/repository/postgres"
	"garagestock/internal/service"
	"garagestock/pkg/logger"
)

func main() {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.New(cfg.LogLevel)
	l.Info("Starting garagestock...")

	// Remote backend
	db, err := config.NewDatabase(cfg.DatabaseURL, l)
	if err != nil {
		l.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate("migrations"); err != nil {
		l.Fatalf("Failed to run migrations: %v", err)
	}

	// Local store
	store, err := localstore.Open(cfg.DataPath)
	if err != nil {
		l.Fatalf("Failed to open local store: %v", err)
	}
	defer store.Close()

	// Notifications
	var notifier notify.Notifier = &notify.LogNotifier{Logger: l}
	if cfg.TelegramToken != "" {
		chatID, err := strconv.ParseInt(cfg.TelegramChatID, 10, 64)
		if err != nil {
			l.Fatalf("TELEGRAM_CHAT_ID must be an integer: %v", err)
		}
		notifier, err = notify.NewTelegramNotifier(cfg.TelegramToken, chatID, l)
		if err != nil {
			l.Fatalf("Failed to create Telegram notifier: %v", err)
		}
	}

	// Gateways and repositories
	itemGateway := postgres.NewItemGateway(db.DB, cfg.DatabaseURL, l)
	locationGateway := postgres.NewLocationGateway(db.DB, cfg.DatabaseURL, l)
	householdGateway := postgres.NewHouseholdGateway(db.DB)

	items, err := repository.NewItemRepository(store, itemGateway, notifier, l)
	if err != nil {
		l.Fatalf("Failed to load item repository: %v", err)
	}
	locations, err := repository.NewLocationRepository(store, locationGateway, items, l)
	if err != nil {
		l.Fatalf("Failed to load location repository: %v", err)
	}

	manager, err := household.NewManager(store, householdGateway, cfg.DeviceName, l, items, locations)
	if err != nil {
		l.Fatalf("Failed to load household state: %v", err)
	}

	svc := service.New(l, notifier, items, locations, manager)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		l.Info("Received shutdown signal...")
		cancel()
	}()

	// Resume household membership and start the sync fan-out. Remote
	// failures leave the device usable in local-only mode.
	if err := manager.Initialize(ctx); err != nil {
		l.WithError(err).Warn("Could not resume household membership, continuing local-only")
	}

	go svc.StartLocationSweeper(ctx)

	// Metrics endpoint
	metricsServer := &http.Server{
		Addr:    ":" + cfg.PrometheusPort,
		Handler: promhttp.Handler(),
	}
	go func() {
		l.Infof("Metrics server listening on :%s", cfg.PrometheusPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Errorf("Metrics server error: %v", err)
		}
	}()

	// HTTP API for companion clients
	apiServer := api.NewServer(svc, l)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: apiServer.Handler(),
	}

	go func() {
		l.Infof("HTTP server listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Errorf("HTTP server error: %v", err)
		}
	}()

	l.Info("garagestock started successfully")

	<-ctx.Done()

	l.Info("Shutting down HTTP server...")
	httpServer.Close()
	metricsServer.Close()

	// Drain in-flight remote pushes before the process exits.
	svc.Close()

	l.Info("garagestock stopped")
}
