package services

import (
	"context"

	"strapmon/models"

	"go.uber.org/zap"
)

// AlertTarget delivers a notification outside the dashboard
type AlertTarget interface {
	Name() string
	SendAlert(n models.Notification) error
}

// AlertDispatcher forwards revealed notifications to external targets.
// It is registered as a notification sink; delivery happens on its own
// goroutine so a slow target never stalls event handling.
type AlertDispatcher struct {
	queue   chan models.Notification
	targets []AlertTarget
	logger  *zap.Logger
}

// NewAlertDispatcher creates a dispatcher buffering up to size alerts
func NewAlertDispatcher(size int, logger *zap.Logger, targets ...AlertTarget) *AlertDispatcher {
	if size <= 0 {
		size = DefaultNotificationCapacity
	}
	return &AlertDispatcher{
		queue:   make(chan models.Notification, size),
		targets: targets,
		logger:  logger,
	}
}

// Notify queues n when it asks to be revealed. Alerts are dropped when the
// queue is full.
func (a *AlertDispatcher) Notify(n models.Notification) {
	if !n.Reveal || len(a.targets) == 0 {
		return
	}
	select {
	case a.queue <- n:
	default:
		a.logger.Warn("Alert queue full, dropping alert",
			zap.Int64("notification_id", n.ID),
			zap.String("device_id", n.DeviceID))
	}
}

// Start delivers queued alerts until ctx is cancelled
func (a *AlertDispatcher) Start(ctx context.Context) {
	a.logger.Info("Starting alert dispatcher", zap.Int("targets", len(a.targets)))

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Stopping alert dispatcher")
			return

		case n := <-a.queue:
			a.dispatch(n)
		}
	}
}

func (a *AlertDispatcher) dispatch(n models.Notification) {
	for _, target := range a.targets {
		if err := target.SendAlert(n); err != nil {
			a.logger.Error("Failed to deliver alert",
				zap.String("target", target.Name()),
				zap.Int64("notification_id", n.ID),
				zap.String("device_id", n.DeviceID),
				zap.Error(err))
			continue
		}
		a.logger.Debug("Alert delivered",
			zap.String("target", target.Name()),
			zap.Int64("notification_id", n.ID))
	}
}
