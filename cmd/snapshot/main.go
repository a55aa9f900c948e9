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
	source     = flag.String("source", "", "Snapshot source: rest or firebase (default from config)")
	monitoring = flag.Bool("monitoring", false, "Print devices in monitoring order (unworn first)")
	employees  = flag.Bool("employees", false, "Also print the employee directory (rest only)")
	text       = flag.Bool("text", false, "Print one line per device instead of JSON")
)

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if *source != "" {
		cfg.SnapshotSource = *source
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	restClient := services.NewRESTClient(cfg.APIURL, &http.Client{Timeout: cfg.HTTPTimeout}, logger)

	var snapshotSource services.SnapshotSource = restClient
	if cfg.SnapshotSource == config.SnapshotFirebase {
		firebaseSource, err := services.NewFirebaseSnapshotSource(ctx, cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Firebase snapshot source", zap.Error(err))
		}
		defer firebaseSource.Close()
		snapshotSource = firebaseSource
	}

	devices, err := snapshotSource.FetchDevices(ctx)
	if err != nil {
		logger.Fatal("Error reading device roster", zap.Error(err))
	}

	roster := services.NewRosterStore()
	roster.LoadSnapshot(devices)

	list := roster.List()
	if *monitoring {
		list = roster.Monitoring()
	}

	if *text {
		printText(list, roster.Summary())
		return
	}

	out := map[string]interface{}{
		"source":  cfg.SnapshotSource,
		"summary": roster.Summary(),
		"devices": list,
	}

	if *employees {
		directory, err := restClient.FetchEmployees(ctx)
		if err != nil {
			logger.Fatal("Error reading employees", zap.Error(err))
		}
		out["employees"] = directory
	}

	prettyJSON, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		logger.Fatal("Failed to marshal roster", zap.Error(err))
	}
	fmt.Fprintln(os.Stdout, string(prettyJSON))
}

func printText(devices []*models.Device, summary models.RosterSummary) {
	for _, d := range devices {
		status := models.StatusKind("")
		if d.Status != nil {
			status = d.Status.Kind
		}
		distance := "-"
		if mm, ok := d.LastData.DistanceMM(); ok {
			distance = fmt.Sprintf("%dmm", mm)
		}
		fmt.Fprintf(os.Stdout, "%s %-28s %-7s %-6s %s\n",
			status.GetStatusEmoji(), d.Label(), d.WearState(), distance, status)
	}
	fmt.Fprintf(os.Stdout, "\n%d devices, %d connected, %d offline, %d unworn\n",
		summary.Total, summary.Connected, summary.Offline, summary.Unworn)
}
