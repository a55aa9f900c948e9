package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"strapmon/config"
	"strapmon/models"
	"strapmon/services"

	"go.uber.org/zap"
)

var (
	action   = flag.String("action", "reload", "What to do: reload, push or remove")
	deviceID = flag.String("device", "", "Device id for -action remove")
	distance = flag.Bool("distance", true, "Enable the distance check (push)")
	closeMM  = flag.Int("close", 0, "Worn threshold in mm (push, default from config)")
	openMM   = flag.Int("open", 0, "Not-worn threshold in mm (push, default from config)")
	watch    = flag.Duration("watch", 0, "After a push, follow broadcast progress over the push transport for this long")
)

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	restClient := services.NewRESTClient(cfg.APIURL, &http.Client{Timeout: cfg.HTTPTimeout}, logger)
	dashboard := services.NewDashboard(cfg, restClient, restClient, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second+*watch)
	defer cancel()

	opts := options{
		action:   *action,
		deviceID: *deviceID,
		distance: *distance,
		closeMM:  *closeMM,
		openMM:   *openMM,
		watch:    *watch,
	}
	if err := run(ctx, cfg, dashboard, opts, logger); err != nil {
		logger.Error("Command failed", zap.String("action", *action), zap.Error(err))
		printState(dashboard)
		os.Exit(1)
	}
	printState(dashboard)
}

// options are the parsed command line flags
type options struct {
	action   string
	deviceID string
	distance bool
	closeMM  int
	openMM   int
	watch    time.Duration
}

func run(ctx context.Context, cfg *config.Config, dashboard *services.Dashboard, opts options, logger *zap.Logger) error {
	switch opts.action {
	case "reload":
		policy, err := dashboard.ReloadPolicy(ctx)
		if err != nil {
			return err
		}
		logger.Info("Stored wear policy", zap.String("command", policy.Command()))
		return nil

	case "remove":
		if opts.deviceID == "" {
			return fmt.Errorf("-device is required for remove")
		}
		return dashboard.RemoveDevice(ctx, opts.deviceID)

	case "push":
		policy := models.WearPolicy{
			DistanceEnabled: opts.distance,
			DistanceClose:   cfg.PolicyDistanceClose,
			DistanceOpen:    cfg.PolicyDistanceOpen,
		}
		if opts.closeMM > 0 {
			policy.DistanceClose = opts.closeMM
		}
		if opts.openMM > 0 {
			policy.DistanceOpen = opts.openMM
		}

		var events chan models.Event
		if opts.watch > 0 {
			// subscribe before pushing so the started summary is not missed
			events = make(chan models.Event, 64)
			if err := subscribe(ctx, cfg, dashboard, events, logger); err != nil {
				return err
			}
		}

		receipt, err := dashboard.PushPolicy(ctx, policy)
		if err != nil {
			return err
		}
		logger.Info("Policy push started",
			zap.String("command", receipt.Policy.Command()),
			zap.Int("targets", receipt.Targets))

		if events != nil && receipt.Targets > 0 {
			follow(ctx, dashboard, events, opts.watch, logger)
		}
		return nil

	default:
		return fmt.Errorf("unknown action %q", opts.action)
	}
}

// subscribe starts the configured push transport feeding events
func subscribe(ctx context.Context, cfg *config.Config, dashboard *services.Dashboard, events chan models.Event, logger *zap.Logger) error {
	switch cfg.PushTransport {
	case config.TransportAMQP:
		rabbitMQService, err := services.NewRabbitMQService(cfg, dashboard.Link(), logger)
		if err != nil {
			return fmt.Errorf("connect to RabbitMQ: %w", err)
		}
		go func() {
			<-ctx.Done()
			rabbitMQService.Close()
		}()
		go rabbitMQService.Consume(ctx, events)
	default:
		subscriber := services.NewMQTTSubscriber(cfg, dashboard.Link(), logger)
		go func() {
			if err := subscriber.Start(ctx, events); err != nil {
				logger.Error("MQTT subscriber stopped", zap.Error(err))
			}
		}()
	}
	return nil
}

// follow applies push events until the broadcast completes or the watch
// window closes
func follow(ctx context.Context, dashboard *services.Dashboard, events <-chan models.Event, window time.Duration, logger *zap.Logger) {
	timeout := time.NewTimer(window)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timeout.C:
			logger.Warn("Watch window closed before the push completed",
				zap.String("progress", dashboard.Broadcast().Text))
			return
		case ev := <-events:
			dashboard.Apply(ev)
			progress := dashboard.Broadcast()
			logger.Info("Broadcast progress", zap.String("progress", progress.Text))
			if progress.Status == models.BroadcastCompleted {
				return
			}
		}
	}
}

func printState(dashboard *services.Dashboard) {
	out := map[string]interface{}{
		"policy":        dashboard.Policy(),
		"broadcast":     dashboard.Broadcast(),
		"notifications": dashboard.Notifications(),
	}
	prettyJSON, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	fmt.Fprintln(os.Stdout, string(prettyJSON))
}
