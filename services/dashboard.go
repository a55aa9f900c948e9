package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"strapmon/config"
	"strapmon/models"

	"go.uber.org/zap"
)

// DisplayTimeLayout is the timestamp format shown to operators
const DisplayTimeLayout = "2006-01-02 15:04:05"

// SnapshotSource fetches the full device roster
type SnapshotSource interface {
	FetchDevices(ctx context.Context) ([]models.Device, error)
}

// EmployeeSource is implemented by snapshot sources that can also list employees
type EmployeeSource interface {
	FetchEmployees(ctx context.Context) ([]models.Employee, error)
}

// ControlClient issues the request/response commands of the dashboard
type ControlClient interface {
	FetchPolicy(ctx context.Context) (models.WearPolicy, error)
	PushPolicy(ctx context.Context, policy models.WearPolicy) (PushReceipt, error)
	DeleteDevice(ctx context.Context, deviceID string) error
}

// PushReceipt is the server's answer to a policy push initiation
type PushReceipt struct {
	Policy  models.WearPolicy
	Targets int
}

// Dashboard owns one instance of the dashboard state: roster, notifications
// and broadcast tracker. Every mutation, whether a push event or a pull
// completion, runs to completion under the write lock, so handlers never
// interleave. Views take the read lock and return copies.
type Dashboard struct {
	mu            sync.RWMutex
	roster        *RosterStore
	notifications *NotificationEngine
	tracker       *BroadcastTracker
	router        *Router
	link          *LinkMonitor
	refresher     *Refresher
	source        SnapshotSource
	control       ControlClient
	policy        models.WearPolicy
	logger        *zap.Logger
}

// NewDashboard builds a dashboard from configuration. control may be nil
// when only the roster is shown.
func NewDashboard(cfg *config.Config, source SnapshotSource, control ControlClient, logger *zap.Logger) *Dashboard {
	d := &Dashboard{
		roster:        NewRosterStore(),
		notifications: NewNotificationEngine(cfg.NotificationCapacity),
		tracker:       NewBroadcastTracker(),
		link:          NewLinkMonitor(cfg.PushTransport, cfg.LinkTimeout, logger),
		refresher:     NewRefresher(cfg.RefetchDebounce, cfg.SnapshotInterval, logger),
		source:        source,
		control:       control,
		logger:        logger,
		policy: models.WearPolicy{
			DistanceEnabled: true,
			DistanceClose:   cfg.PolicyDistanceClose,
			DistanceOpen:    cfg.PolicyDistanceOpen,
		}.Normalize(),
	}
	d.router = NewRouter(d.roster, d.notifications, d.tracker, d.refresher, logger)
	d.router.SetNotifyUnwear(cfg.NotifyUnwear)
	return d
}

// AddSink forwards accepted notifications to sink
func (d *Dashboard) AddSink(sink NotificationSink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifications.AddSink(sink)
}

// Link returns the push channel connectivity indicator
func (d *Dashboard) Link() *LinkMonitor {
	return d.link
}

// Run consumes push events until ctx is cancelled or events is closed.
// It also drives the snapshot refresher and the link idle checker, and
// requests the initial snapshot.
func (d *Dashboard) Run(ctx context.Context, events <-chan models.Event) error {
	go d.refresher.Start(ctx, d.fetchAndApply)
	go d.link.Start(ctx)
	d.refresher.RequestRefetch("initial load")

	d.logger.Info("Dashboard event loop started")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Dashboard event loop stopped")
			return nil
		case ev, ok := <-events:
			if !ok {
				d.logger.Warn("Event channel closed")
				return nil
			}
			d.Apply(ev)
		}
	}
}

// Apply routes one push event
func (d *Dashboard) Apply(ev models.Event) {
	d.link.Touch()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.router.Dispatch(ev)
}

// RequestRefetch asks for a debounced snapshot fetch
func (d *Dashboard) RequestRefetch(reason string) {
	d.refresher.RequestRefetch(reason)
}

// Refresh fetches a snapshot and applies it. A failed fetch leaves the
// roster as it was and raises one danger notification; it is not retried.
// A fetch cut short by cancellation fails quietly.
func (d *Dashboard) Refresh(ctx context.Context) error {
	devices, err := d.source.FetchDevices(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("fetch device snapshot: %w", err)
		}
		d.logger.Error("Failed to fetch device snapshot", zap.Error(err))
		d.mu.Lock()
		d.notifications.Add(models.Notification{
			Type:    models.SeverityDanger,
			Message: "Failed to load the device list.",
		})
		d.mu.Unlock()
		return fmt.Errorf("fetch device snapshot: %w", err)
	}

	var directory *EmployeeIndex
	if employees, ok := d.source.(EmployeeSource); ok {
		list, err := employees.FetchEmployees(ctx)
		if err != nil {
			d.logger.Warn("Failed to fetch employees", zap.Error(err))
		} else {
			directory = NewEmployeeIndex(list)
		}
	}

	d.mu.Lock()
	d.roster.LoadSnapshot(devices)
	if directory != nil {
		d.router.SetEmployeeDirectory(directory)
	}
	count := d.roster.Len()
	d.mu.Unlock()

	d.logger.Debug("Roster snapshot applied", zap.Int("devices", count))
	return nil
}

func (d *Dashboard) fetchAndApply(ctx context.Context, reason string) {
	if err := d.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn("Snapshot refresh failed", zap.String("reason", reason), zap.Error(err))
	}
}

// ReloadPolicy fetches the stored wear policy. A finished broadcast is
// cleared from the progress panel; one still in progress is kept.
func (d *Dashboard) ReloadPolicy(ctx context.Context) (models.WearPolicy, error) {
	if d.control == nil {
		return models.WearPolicy{}, ErrNoControlClient
	}

	policy, err := d.control.FetchPolicy(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.notifications.Add(models.Notification{
			Type:    models.SeverityDanger,
			Message: "Failed to load the wear policy.",
		})
		return d.policy, fmt.Errorf("fetch wear policy: %w", err)
	}
	d.policy = policy
	d.tracker.Refresh()
	return policy, nil
}

// PushPolicy saves the policy on the server, which fans it out to every
// connected strap. The tracker starts from the target count returned by
// the server; summary and result events then arrive over the push channel.
func (d *Dashboard) PushPolicy(ctx context.Context, policy models.WearPolicy) (PushReceipt, error) {
	if d.control == nil {
		return PushReceipt{}, ErrNoControlClient
	}
	policy = policy.Normalize()

	receipt, err := d.control.PushPolicy(ctx, policy)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.logger.Error("Failed to push wear policy", zap.Error(err))
		d.notifications.Add(models.Notification{
			Type:    models.SeverityDanger,
			Message: "Failed to save the wear policy.",
		})
		return PushReceipt{}, fmt.Errorf("push wear policy: %w", err)
	}

	if receipt.Policy == (models.WearPolicy{}) {
		receipt.Policy = policy
	}
	d.policy = receipt.Policy
	d.tracker.Begin(receipt.Targets, receipt.Policy.Descriptor())

	detail := receipt.Policy.Summary()
	if receipt.Targets > 0 {
		d.notifications.Add(models.Notification{
			Type:    models.SeverityInfo,
			Title:   "Policy saved",
			Message: "Wear policy saved and push started.",
			Detail:  fmt.Sprintf("%s%stargets %d", detail, models.DetailSeparator, receipt.Targets),
		})
	} else {
		d.notifications.Add(models.Notification{
			Type:    models.SeverityWarning,
			Title:   "Policy saved",
			Message: "Wear policy saved but no connected devices to push to.",
			Detail:  detail,
			Reveal:  true,
		})
	}

	d.logger.Info("Wear policy pushed",
		zap.String("command", receipt.Policy.Command()),
		zap.Int("targets", receipt.Targets))
	return receipt, nil
}

// RemoveDevice unregisters a device on the server and, once acknowledged,
// drops it from the roster
func (d *Dashboard) RemoveDevice(ctx context.Context, deviceID string) error {
	if d.control == nil {
		return ErrNoControlClient
	}

	err := d.control.DeleteDevice(ctx, deviceID)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.notifications.Add(models.Notification{
			Type:     models.SeverityDanger,
			Message:  "Failed to remove the device.",
			DeviceID: deviceID,
		})
		return fmt.Errorf("remove device %s: %w", deviceID, err)
	}

	d.roster.Remove(deviceID)
	d.notifications.Add(models.Notification{
		Type:     models.SeveritySuccess,
		Message:  "Device removed.",
		DeviceID: deviceID,
	})
	return nil
}

// DismissNotification removes one notification
func (d *Dashboard) DismissNotification(id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.notifications.Dismiss(id)
}

// ClearNotifications empties the notification queue
func (d *Dashboard) ClearNotifications() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifications.Clear()
}

// TakeReveal reports whether the alert panel should be opened
func (d *Dashboard) TakeReveal() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.notifications.TakeReveal()
}

// Devices returns the roster in snapshot order
func (d *Dashboard) Devices() []*models.Device {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.roster.List()
}

// Monitoring returns the roster in monitoring-grid order
func (d *Dashboard) Monitoring() []*models.Device {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.roster.Monitoring()
}

// Device returns one roster entry
func (d *Dashboard) Device(deviceID string) (*models.Device, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.roster.Get(deviceID)
}

// Summary returns the roster counters
func (d *Dashboard) Summary() models.RosterSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.roster.Summary()
}

// Notifications returns the notification queue, most recent first
func (d *Dashboard) Notifications() []models.Notification {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.notifications.List()
}

// Broadcast returns the policy push progress view
func (d *Dashboard) Broadcast() models.BroadcastProgress {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tracker.Progress()
}

// BroadcastState returns the raw broadcast record
func (d *Dashboard) BroadcastState() models.BroadcastState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tracker.State()
}

// Policy returns the last loaded or pushed wear policy
func (d *Dashboard) Policy() models.WearPolicy {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.policy
}
