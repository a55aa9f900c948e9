package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"strapmon/config"
	"strapmon/models"
	"strapmon/services"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	rabbitMQURL = flag.String("rabbitmq", "", "RabbitMQ URL (default from config)")
	deviceCount = flag.Int("devices", 3, "Number of straps in the scenario")
	scenario    = flag.String("scenario", "push", "Scenario to publish: push, messy-push, empty-push, reset, unwear")
	gap         = flag.Duration("gap", 300*time.Millisecond, "Delay between published events")
)

func main() {
	flag.Parse()

	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Use provided RabbitMQ URL or default from config
	if *rabbitMQURL != "" {
		cfg.RabbitMQURL = *rabbitMQURL
	}

	events, err := buildScenario(*scenario, *deviceCount)
	if err != nil {
		logger.Fatal("Invalid scenario", zap.Error(err))
	}

	// Every event of one run shares a correlation id
	runID := uuid.New().String()

	logger.Info("AMQP scenario generator",
		zap.String("scenario", *scenario),
		zap.String("exchange", cfg.RabbitMQExchange),
		zap.String("correlation_id", runID),
		zap.Int("events", len(events)))

	rabbitMQService, err := services.NewRabbitMQService(cfg, nil, logger)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rabbitMQService.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Interrupted")
		cancel()
	}()

	for i, ev := range events {
		if err := rabbitMQService.Publish(ctx, ev, runID); err != nil {
			logger.Fatal("Failed to publish event", zap.Int("index", i), zap.Error(err))
		}
		logger.Info("Event published",
			zap.Int("index", i),
			zap.String("kind", string(ev.Kind())))

		select {
		case <-ctx.Done():
			return
		case <-time.After(*gap):
		}
	}

	logger.Info("✅ Scenario published. Check the dashboard for notifications!")
}

// buildScenario returns the event sequence of a named scenario
func buildScenario(name string, count int) ([]models.Event, error) {
	if count < 0 {
		return nil, fmt.Errorf("device count must not be negative, got %d", count)
	}

	ids := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		ids = append(ids, fmt.Sprintf("STRAP-%03d", i))
	}
	command := models.DefaultWearPolicy().Descriptor()
	now := time.Now()

	var events []models.Event
	for _, id := range ids {
		events = append(events, models.Connect{DeviceID: id, Name: id})
	}

	switch name {
	case "push", "messy-push":
		events = append(events, models.BroadcastSummary{Phase: models.PhaseStarted, Total: len(ids), Command: command, Timestamp: now})
		success, failed := 0, 0
		for i, id := range ids {
			ok := i%3 != 2
			result := models.BroadcastResult{DeviceID: id, Success: ok, Command: command}
			if ok {
				success++
			} else {
				failed++
				result.Error = "write characteristic failed"
			}
			events = append(events, result)
			if name == "messy-push" && i == 0 {
				// duplicate acknowledgment
				events = append(events, result)
			}
		}
		events = append(events, models.BroadcastSummary{Phase: models.PhaseCompleted, Total: len(ids), Success: &success, Failed: &failed, Command: command})
		if name == "messy-push" && len(ids) > 0 {
			// straggler after completion
			notConnected := false
			events = append(events, models.BroadcastResult{DeviceID: ids[len(ids)-1], Success: false, Connected: &notConnected, Command: command})
		}

	case "empty-push":
		events = append(events, models.BroadcastSummary{Phase: models.PhaseStarted, Total: 0, Command: command, Timestamp: now})

	case "reset":
		events = append(events,
			models.BroadcastSummary{Phase: models.PhaseStarted, Total: len(ids), Command: command, Timestamp: now},
			models.SystemReset{Timestamp: now},
		)

	case "unwear":
		for _, id := range ids {
			events = append(events,
				models.Telemetry{DeviceID: id, Reading: models.Reading{State: models.WearOpen, Distance: "210", Raw: 210, Avg: 205}},
				models.StateChange{DeviceID: id, OldState: models.WearClosed, NewState: models.WearOpen, Timestamp: now},
			)
		}

	default:
		return nil, fmt.Errorf("unknown scenario %q", name)
	}

	return events, nil
}
