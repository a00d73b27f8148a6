// Package main wires together the ingestion orchestrator service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ingestion-orchestrator/internal/alert"
	"github.com/JakeFAU/ingestion-orchestrator/internal/api"
	"github.com/JakeFAU/ingestion-orchestrator/internal/catalog"
	"github.com/JakeFAU/ingestion-orchestrator/internal/clock/system"
	"github.com/JakeFAU/ingestion-orchestrator/internal/config"
	"github.com/JakeFAU/ingestion-orchestrator/internal/connector"
	"github.com/JakeFAU/ingestion-orchestrator/internal/executor"
	"github.com/JakeFAU/ingestion-orchestrator/internal/ingest"
	"github.com/JakeFAU/ingestion-orchestrator/internal/logging"
	"github.com/JakeFAU/ingestion-orchestrator/internal/metrics"
	"github.com/JakeFAU/ingestion-orchestrator/internal/reaper"
	"github.com/JakeFAU/ingestion-orchestrator/internal/schedule"
	"github.com/JakeFAU/ingestion-orchestrator/internal/scheduler"
	memoryStorage "github.com/JakeFAU/ingestion-orchestrator/internal/storage/memory"
	"github.com/JakeFAU/ingestion-orchestrator/internal/storage/postgres"
	"github.com/JakeFAU/ingestion-orchestrator/internal/webhook"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	clock := system.New()

	var (
		runStore  ingest.RunStore
		hookStore ingest.WebhookStore
		gapStore  ingest.GapStore
	)
	switch cfg.DB.Provider {
	case "postgres":
		pool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		defer pool.Close()
		runs, err := postgres.NewRunStore(pool)
		if err != nil {
			logger.Fatal("run store init failed", zap.Error(err))
		}
		hooks, err := postgres.NewWebhookStore(pool)
		if err != nil {
			logger.Fatal("webhook store init failed", zap.Error(err))
		}
		gaps, err := postgres.NewGapStore(pool)
		if err != nil {
			logger.Fatal("gap store init failed", zap.Error(err))
		}
		runStore, hookStore, gapStore = runs, hooks, gaps
	default:
		runStore = memoryStorage.NewRunStore()
		hookStore = memoryStorage.NewWebhookStore()
		gapStore = memoryStorage.NewGapStore()
	}

	var alerter ingest.Alerter
	switch cfg.PubSub.Provider {
	case "pubsub":
		pubsubAlerter, err := alert.NewPubSubAlerter(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName, logger.Named("alert"))
		if err != nil {
			logger.Fatal("pubsub alerter init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := pubsubAlerter.Close(); closeErr != nil {
				logger.Warn("pubsub alerter close failed", zap.Error(closeErr))
			}
		}()
		alerter = pubsubAlerter
	default:
		alerter = alert.NewLogAlerter(logger.Named("alert"))
	}

	connectors := connector.NewRegistry(connector.Static{})
	for name, cc := range cfg.Connectors {
		connectors.Register(name, connector.NewHTTPConnector(cc.URL, cc.Timeout(), logger.Named("connector")))
		logger.Info("http connector registered",
			zap.String("connector", name),
			zap.String("url", cc.URL),
		)
	}

	dispatcher := webhook.NewDispatcher(hookStore, alerter, gapStore, clock, webhook.Config{
		Timeout:     cfg.WebhookTimeout(),
		MaxAttempts: cfg.Webhook.MaxAttempts,
		BackoffBase: cfg.WebhookBackoffBase(),
	}, logger.Named("webhook"))

	exec := executor.NewExecutor(runStore, connectors, dispatcher, clock, logger.Named("executor"))

	loader := catalog.NewFileLoader(cfg.Catalog.Path, logger.Named("catalog"))
	registry := schedule.NewCronRegistry()
	defer registry.Close()

	engine := scheduler.NewEngine(loader, registry, exec, clock, scheduler.Config{
		MaxConcurrentFires: cfg.Scheduler.MaxConcurrentFires,
		UpcomingLimit:      cfg.Scheduler.UpcomingLimit,
	}, logger.Named("scheduler"))
	if err := engine.Initialize(); err != nil {
		logger.Fatal("catalog load failed", zap.Error(err))
	}
	if err := engine.Start(ctx); err != nil {
		logger.Fatal("scheduler start failed", zap.Error(err))
	}
	defer engine.Stop()

	sweeper := reaper.NewReaper(runStore, clock, reaper.Config{
		Interval:     cfg.ReaperInterval(),
		StuckTimeout: cfg.StuckTimeout(),
	}, logger.Named("reaper"))
	go sweeper.Run(ctx)

	apiServer := api.NewServer(ctx, engine, runStore, hookStore, dispatcher, clock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
