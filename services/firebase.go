package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"strapmon/config"
	"strapmon/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// FirebaseSnapshotSource reads the device roster from a Realtime Database
// mirror instead of the strap server's REST API
type FirebaseSnapshotSource struct {
	client *db.Client
	path   string
	logger *zap.Logger
}

func NewFirebaseSnapshotSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*FirebaseSnapshotSource, error) {
	// Parse the service account JSON from environment variable
	serviceAccountJSON := []byte(cfg.FirebaseServiceAccountJSON)

	conf := &firebase.Config{
		DatabaseURL: cfg.FirebaseDbUrl,
	}

	opt := option.WithCredentialsJSON(serviceAccountJSON)
	app, err := firebase.NewApp(ctx, conf, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting database client: %w", err)
	}

	fs := &FirebaseSnapshotSource{
		client: client,
		path:   cfg.FirebaseDevicesPath,
		logger: logger,
	}

	if err := fs.testConnection(ctx); err != nil {
		logger.Error("Firebase connection test failed", zap.Error(err))
		return nil, fmt.Errorf("firebase connection test failed: %w", err)
	}

	return fs, nil
}

// testConnection reads the devices node with retry
func (fs *FirebaseSnapshotSource) testConnection(ctx context.Context) error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		fs.logger.Info("Testing Firebase connection", zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries))

		var data interface{}
		err := fs.client.NewRef(fs.path).Get(ctx, &data)
		if err == nil {
			fs.logger.Info("Firebase connection successful", zap.String("path", fs.path))
			return nil
		}

		fs.logger.Warn("Firebase connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}

	return fmt.Errorf("failed to connect to Firebase after %d attempts", maxRetries)
}

// FetchDevices reads the devices node. The node may be keyed by device id
// or stored as a list; keyed entries are returned in key order.
func (fs *FirebaseSnapshotSource) FetchDevices(ctx context.Context) ([]models.Device, error) {
	var data interface{}
	if err := fs.client.NewRef(fs.path).Get(ctx, &data); err != nil {
		return nil, fmt.Errorf("error getting devices: %w", err)
	}
	return devicesFromTree(data, fs.logger), nil
}

// devicesFromTree converts the raw database value under the devices node
func devicesFromTree(data interface{}, logger *zap.Logger) []models.Device {
	var devices []models.Device

	switch node := data.(type) {
	case nil:
		return devices

	case map[string]interface{}:
		keys := make([]string, 0, len(node))
		for key := range node {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for i, key := range keys {
			entry, ok := node[key].(map[string]interface{})
			if !ok {
				logger.Warn("Invalid device record format", zap.String("record_id", key))
				continue
			}
			p := models.Payload(entry)
			if p.String("id") == "" && p.String("device_id") == "" {
				p["id"] = key
			}
			devices = append(devices, models.DeviceFromPayload(p, i))
		}

	case []interface{}:
		for i, raw := range node {
			// sparse arrays come back with null holes
			entry, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			devices = append(devices, models.DeviceFromPayload(models.Payload(entry), i))
		}

	default:
		logger.Warn("Unexpected devices node type", zap.String("type", fmt.Sprintf("%T", data)))
	}

	return devices
}

// Close closes the Firebase connection
func (fs *FirebaseSnapshotSource) Close() error {
	fs.logger.Info("Closing Firebase snapshot source")
	// Firebase client doesn't require explicit closing but we log it
	return nil
}
