package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dandantas/renewer/internal/automation"
	"github.com/dandantas/renewer/internal/config"
	"github.com/dandantas/renewer/internal/database"
	"github.com/dandantas/renewer/internal/handler"
	"github.com/dandantas/renewer/internal/model"
	"github.com/dandantas/renewer/internal/monitor"
	"github.com/dandantas/renewer/internal/notify"
	"github.com/dandantas/renewer/internal/queue"
	"github.com/dandantas/renewer/internal/scheduler"
	"github.com/dandantas/renewer/internal/service"
	"github.com/dandantas/renewer/internal/webhook"
	"github.com/dandantas/renewer/internal/worker"
	"github.com/dandantas/renewer/pkg/middleware"
	"github.com/robfig/cron/v3"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	config.InitLogger(cfg)

	slog.Info("Starting Renewer Service", "version", version)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to MongoDB
	db, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoTimeout)
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Disconnect(context.Background()); err != nil {
			slog.Error("Failed to disconnect from MongoDB", "error", err)
		}
	}()

	// Create indexes
	if err := database.CreateIndexes(ctx, db); err != nil {
		slog.Error("Failed to create indexes", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	accountRepo := database.NewAccountRepository(db)
	clientRepo := database.NewClientRepository(db)
	settingsRepo := database.NewSettingsRepository(db, model.RenewalSettings{
		ID:               model.RenewalSettingsID,
		Enabled:          true,
		LookaheadMinutes: cfg.DefaultLookaheadMinutes,
		DistributionMode: model.DistributionAuto,
	})
	taskRepo := database.NewTaskRepository(db)
	healthRepo := database.NewHealthRepository(db)
	suppressionRepo := database.NewSuppressionRepository(db)

	// Initialize notification gateway
	gatewayOpts := []notify.GatewayOption{notify.WithUsername(cfg.WebhookUsername)}
	if cfg.NotificationsDisabled || cfg.WebhookURL == "" {
		slog.Warn("Notifications disabled, alerts will only be logged")
		gatewayOpts = append(gatewayOpts, notify.Disabled())
	}
	dispatcher := webhook.NewDispatcher(webhook.DispatcherConfig{
		Webhook: model.Webhook{
			URL:      cfg.WebhookURL,
			Username: cfg.WebhookUsername,
			RetryConfig: model.RetryConfig{
				MaxAttempts: cfg.WebhookMaxAttempts,
			},
		},
		Timeout:       cfg.WebhookTimeout,
		RatePerMinute: cfg.WebhookRatePerMinute,
	})
	gateway := notify.NewGateway(suppressionRepo, dispatcher, gatewayOpts...)
	// delivery outlives ctx so queued alerts drain during shutdown
	gateway.Start(context.WithoutCancel(ctx))

	// Initialize renewal queue
	renewalQueue := queue.NewManager(taskRepo, accountRepo, queue.Config{
		LockReleaseAfter: cfg.LockReleaseAfter,
		ErrorGracePeriod: cfg.ErrorGracePeriod,
	}, time.Now)

	renewalService := service.NewRenewalService(renewalQueue, taskRepo, accountRepo, gateway, service.Config{
		MaxAttempts:   cfg.WorkerMaxAttempts,
		RenewalPeriod: cfg.RenewalPeriod,
		RetryBackoff:  cfg.WorkerRetryBackoff,
	})

	// Initialize portal automation
	var (
		executor   *automation.Executor
		healthMon  *monitor.Monitor
		workerPool *worker.WorkerPool
	)
	if cfg.AutomationEnabled() {
		executor, err = newExecutor(cfg)
		if err != nil {
			slog.Error("Failed to initialize automation executor", "error", err)
			os.Exit(1)
		}

		// a failed first login is recovered by the watchdog and heartbeat
		if err := executor.Start(ctx); err != nil {
			slog.Error("Automation executor did not start cleanly", "error", err)
		}

		if cfg.MonitorEnabled {
			healthMon = monitor.NewMonitor(monitor.Config{
				HeartbeatInterval: cfg.HeartbeatInterval,
				WatchdogInterval:  cfg.WatchdogInterval,
				RestartDelay:      cfg.RestartDelay,
				Logger:            cron.PrintfLogger(config.StdLogger(slog.LevelWarn)),
			}, executor, healthRepo, gateway)
			healthMon.Start(ctx)
		}

		if cfg.WorkerEnabled {
			workerPool = worker.NewWorkerPool(worker.Config{
				PollInterval: cfg.WorkerPollInterval,
			}, renewalService, executor)
			workerPool.Start(ctx)
		}
	} else {
		slog.Warn("Portal automation not configured, renewal tasks wait for an external worker")
	}

	// Initialize scanner
	stores := scheduler.Stores{
		Accounts: accountRepo,
		Clients:  clientRepo,
		Settings: settingsRepo,
		Tasks:    taskRepo,
	}
	if executor != nil && cfg.MonitorEnabled {
		stores.Health = healthRepo
	}

	var scanner *scheduler.Scanner
	if cfg.ScannerEnabled {
		scanner = scheduler.NewScanner(scheduler.Config{
			Interval:           cfg.ScanInterval,
			DispatchDelay:      cfg.DispatchDelay,
			HeartbeatMaxAge:    cfg.HeartbeatMaxAge,
			ExpiringSoonWindow: cfg.ExpiringSoonWindow,
			StuckTaskAfter:     cfg.StuckTaskAfter,
		}, renewalQueue, stores, gateway)
		scanner.Start(ctx)
	}

	// Initialize handlers
	renewalHandler := handler.NewRenewalHandler(renewalService)
	var automationHealth handler.HealthReader
	if stores.Health != nil {
		automationHealth = healthRepo
	}
	healthHandler := handler.NewHealthHandler(db, automationHealth, cfg.HeartbeatMaxAge, version)
	var challengeResetter handler.ChallengeResetter
	if executor != nil {
		challengeResetter = executor
	}
	automationHandler := handler.NewAutomationHandler(challengeResetter)

	// Create CORS config
	corsConfig := middleware.CORSConfig{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   cfg.CORSAllowedMethods,
		AllowedHeaders:   cfg.CORSAllowedHeaders,
		AllowCredentials: cfg.CORSAllowCredentials,
		MaxAge:           cfg.CORSMaxAge,
	}

	// Create router
	router := handler.NewRouter(renewalHandler, healthHandler, automationHandler, corsConfig)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
	}

	// Start server in goroutine
	go func() {
		slog.Info("Starting HTTP server", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Info("Received shutdown signal, initiating graceful shutdown")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop producers first, then the consumers of their tasks
	if scanner != nil {
		scanner.Stop(shutdownCtx)
	}
	if healthMon != nil {
		healthMon.Stop(shutdownCtx)
	}
	cancel()
	if workerPool != nil {
		workerPool.Stop()
	}
	if executor != nil {
		if err := executor.Stop(); err != nil {
			slog.Error("Failed to stop browser", "error", err)
		}
	}

	// Shutdown HTTP server
	slog.Info("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	gateway.Stop(shutdownCtx)

	slog.Info("Renewer Service stopped")
}

// newExecutor assembles the browser session, selector catalog and the
// optional status probe
func newExecutor(cfg *config.Config) (*automation.Executor, error) {
	selectors, err := automation.LoadSelectors(cfg.PortalSelectorsFile)
	if err != nil {
		return nil, err
	}

	var probe automation.Prober
	if cfg.PortalStatusURL != "" {
		statusProbe, err := automation.NewStatusProbe(cfg.PortalStatusURL, model.ProbeRule{
			Expression:    cfg.PortalStatusJSONPath,
			Operator:      cfg.PortalStatusOperator,
			ExpectedValue: cfg.PortalStatusExpected,
		}, cfg.PortalActionTimeout)
		if err != nil {
			return nil, err
		}
		probe = statusProbe
	}

	browser := automation.NewChromeBrowser(automation.ChromeConfig{
		ProfileDir:    cfg.PortalProfileDir,
		Headless:      cfg.PortalHeadless,
		ActionTimeout: cfg.PortalActionTimeout,
	})

	return automation.NewExecutor(automation.Config{
		BaseURL:       cfg.PortalBaseURL,
		LoginPath:     cfg.PortalLoginPath,
		AccountsPath:  cfg.PortalAccountsPath,
		Username:      cfg.PortalUsername,
		Password:      cfg.PortalPassword,
		ScreenshotDir: cfg.ScreenshotDir,
		StepTimeout:   cfg.PortalActionTimeout,
	}, selectors, browser, probe), nil
}
