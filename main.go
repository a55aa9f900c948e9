package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"strapmon/config"
	"strapmon/log"
	"strapmon/models"
	"strapmon/services"

	"go.uber.org/zap"
)

func main() {
	// Initialize structured logger
	logger := log.GetInstance()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	if !log.SetLevel(cfg.LogLevel) {
		logger.Warn("Unknown LOG_LEVEL, keeping info", zap.String("log_level", cfg.LogLevel))
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatal("Failed to load timezone", zap.String("timezone", cfg.Timezone), zap.Error(err))
	}
	time.Local = loc

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Pull side: the REST API always carries commands; the roster may come from Firebase
	restClient := services.NewRESTClient(cfg.APIURL, &http.Client{Timeout: cfg.HTTPTimeout}, logger)

	var source services.SnapshotSource = restClient
	if cfg.SnapshotSource == config.SnapshotFirebase {
		firebaseSource, err := services.NewFirebaseSnapshotSource(ctx, cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Firebase snapshot source", zap.Error(err))
		}
		defer firebaseSource.Close()
		source = firebaseSource
	}

	dashboard := services.NewDashboard(cfg, source, restClient, logger)

	// Alert targets for revealed notifications
	var targets []services.AlertTarget
	var telegramService *services.TelegramService
	if cfg.TelegramEnabled() {
		telegramService, err = services.NewTelegramService(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram service", zap.Error(err))
		}
		targets = append(targets, telegramService)
	}
	if cfg.HardwareAlertURL != "" {
		targets = append(targets, services.NewHardwareAlertService(logger, cfg.HardwareAlertURL))
		logger.Info("Hardware alert service initialized", zap.String("url", cfg.HardwareAlertURL))
	}
	if len(targets) > 0 {
		dispatcher := services.NewAlertDispatcher(cfg.NotificationCapacity, logger, targets...)
		dashboard.AddSink(dispatcher)
		go dispatcher.Start(ctx)
	}

	// Push side
	events := make(chan models.Event, 256)
	var rabbitMQService *services.RabbitMQService

	switch cfg.PushTransport {
	case config.TransportAMQP:
		rabbitMQService, err = services.NewRabbitMQService(cfg, dashboard.Link(), logger)
		if err != nil {
			logger.Fatal("Failed to initialize RabbitMQ service", zap.Error(err))
		}
		go func() {
			if err := rabbitMQService.Consume(ctx, events); err != nil {
				logger.Error("RabbitMQ consumer stopped", zap.Error(err))
				cancel()
			}
		}()
	default:
		subscriber := services.NewMQTTSubscriber(cfg, dashboard.Link(), logger)
		go func() {
			if err := subscriber.Start(ctx, events); err != nil {
				logger.Error("MQTT subscriber stopped", zap.Error(err))
				cancel()
			}
		}()
	}

	if telegramService != nil {
		if err := telegramService.SendStartupMessage(cfg.PushTransport); err != nil {
			logger.Warn("Failed to send startup message", zap.Error(err))
		}
	}

	logger.Info("Strap monitor dashboard started",
		zap.String("snapshot_source", cfg.SnapshotSource),
		zap.String("push_transport", cfg.PushTransport),
		zap.String("api_url", cfg.APIURL),
		zap.Int("notification_capacity", cfg.NotificationCapacity),
		zap.Bool("notify_unwear", cfg.NotifyUnwear),
	)

	// Set up graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal when cleanup is complete
	cleanupDone := make(chan bool, 1)

	go func() {
		select {
		case <-sigChan:
			logger.Info("Shutdown signal received, stopping services")
		case <-ctx.Done():
		}

		// Cancel context to stop all goroutines
		cancel()

		// Wait for cleanup to complete or timeout
		select {
		case <-cleanupDone:
			logger.Info("Cleanup completed successfully")
		case <-time.After(5 * time.Second):
			logger.Warn("Cleanup timeout, forcing exit")
		}

		logger.Info("Strap monitor dashboard stopped")
		os.Exit(0)
	}()

	go report(ctx, dashboard, cfg.ReportInterval, logger)

	startTime := time.Now()
	if err := dashboard.Run(ctx, events); err != nil {
		logger.Error("Dashboard stopped with error", zap.Error(err))
	}

	// Perform cleanup
	logger.Info("Starting cleanup")

	if rabbitMQService != nil {
		if err := rabbitMQService.Close(); err != nil {
			logger.Error("Error closing RabbitMQ service", zap.Error(err))
		}
	}
	if telegramService != nil {
		if err := telegramService.SendShutdownMessage(time.Since(startTime)); err != nil {
			logger.Warn("Failed to send shutdown message", zap.Error(err))
		}
	}

	// Signal cleanup completion
	cleanupDone <- true
	select {}
}

// report logs the dashboard state on a ticker and the open alerts whenever
// a notification asks to be revealed
func report(ctx context.Context, dashboard *services.Dashboard, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	statsTicker := time.NewTicker(interval)
	defer statsTicker.Stop()

	revealTicker := time.NewTicker(time.Second)
	defer revealTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-revealTicker.C:
			if !dashboard.TakeReveal() {
				continue
			}
			for _, n := range dashboard.Notifications() {
				if !n.Reveal {
					continue
				}
				logger.Warn("Open alert",
					zap.Int64("id", n.ID),
					zap.String("type", string(n.Type)),
					zap.String("title", n.Title),
					zap.String("detail", n.Detail),
					zap.String("device_id", n.DeviceID))
			}

		case <-statsTicker.C:
			summary := dashboard.Summary()
			progress := dashboard.Broadcast()
			link := dashboard.Link().Health()

			logger.Info("Dashboard status",
				zap.Int("devices", summary.Total),
				zap.Int("connected", summary.Connected),
				zap.Int("offline", summary.Offline),
				zap.Int("unworn", summary.Unworn),
				zap.String("broadcast", progress.Text),
				zap.String("link", string(link.Status)),
				zap.Int("notifications", len(dashboard.Notifications())),
			)
		}
	}
}
