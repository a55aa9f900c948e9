package services

import (
	"fmt"
	"strings"

	"strapmon/models"

	"go.uber.org/zap"
)

// RefetchTrigger asks for a fresh roster snapshot. It must not block.
type RefetchTrigger interface {
	RequestRefetch(reason string)
}

// EmployeeDirectory resolves the employee a strap is assigned to
type EmployeeDirectory interface {
	LookupEmployee(employeeID int, deviceID string) (*models.Employee, bool)
}

// Router is the single dispatch point for push events. Each event runs
// exactly one handler against the roster, the notification engine and
// the broadcast tracker. The router keeps no state of its own.
type Router struct {
	roster        *RosterStore
	notifications *NotificationEngine
	tracker       *BroadcastTracker
	refetch       RefetchTrigger
	employees     EmployeeDirectory
	notifyUnwear  bool
	logger        *zap.Logger
}

// NewRouter creates a router over the given components. refetch may be nil.
func NewRouter(roster *RosterStore, notifications *NotificationEngine, tracker *BroadcastTracker, refetch RefetchTrigger, logger *zap.Logger) *Router {
	return &Router{
		roster:        roster,
		notifications: notifications,
		tracker:       tracker,
		refetch:       refetch,
		notifyUnwear:  true,
		logger:        logger,
	}
}

// SetEmployeeDirectory sets the lookup used to enrich wear notifications
func (r *Router) SetEmployeeDirectory(dir EmployeeDirectory) {
	r.employees = dir
}

// SetNotifyUnwear toggles notifications for straps being taken off
func (r *Router) SetNotifyUnwear(enabled bool) {
	r.notifyUnwear = enabled
}

// Dispatch runs the handler for ev. Unknown events are ignored.
func (r *Router) Dispatch(ev models.Event) {
	switch e := ev.(type) {
	case models.Telemetry:
		r.handleTelemetry(e)
	case models.Connect:
		r.handleConnect(e)
	case models.Disconnect:
		r.handleDisconnect(e)
	case models.Status:
		r.handleStatus(e)
	case models.BroadcastSummary:
		r.handleBroadcastSummary(e)
	case models.BroadcastResult:
		r.handleBroadcastResult(e)
	case models.SystemReset:
		r.handleSystemReset(e)
	case models.StateChange:
		r.handleStateChange(e)
	case models.Unknown:
		r.logger.Debug("Ignoring unknown event", zap.String("event", e.Name))
	default:
		r.logger.Debug("Ignoring unhandled event type", zap.String("type", fmt.Sprintf("%T", ev)))
	}
}

func (r *Router) handleTelemetry(e models.Telemetry) {
	if !r.roster.ApplyTelemetry(e) {
		r.logger.Debug("Dropping telemetry for device not on roster",
			zap.String("device_id", e.DeviceID))
		return
	}
	r.logger.Debug("Telemetry applied",
		zap.String("device_id", e.DeviceID),
		zap.String("state", string(e.Reading.State)),
		zap.String("distance", e.Reading.Distance))
}

func (r *Router) handleConnect(e models.Connect) {
	r.roster.ApplyConnection(models.KindConnect, e.DeviceID)

	label := firstNonEmpty(e.Name, e.DeviceID, "unknown")
	parts := []string{label}
	if e.DeviceID != "" {
		parts = append(parts, "ID "+e.DeviceID)
	}
	if e.Address != "" {
		parts = append(parts, e.Address)
	}
	r.notifications.Add(models.Notification{
		Type:     models.SeveritySuccess,
		Title:    "Device connected",
		Message:  "Device connected",
		Detail:   strings.Join(parts, models.DetailSeparator),
		DeviceID: e.DeviceID,
	})

	r.logger.Info("Device connected", zap.String("device_id", e.DeviceID), zap.String("address", e.Address))
	r.requestRefetch("device connected")
}

func (r *Router) handleDisconnect(e models.Disconnect) {
	r.roster.ApplyConnection(models.KindDisconnect, e.DeviceID)

	var parts []string
	if e.DeviceID != "" {
		parts = append(parts, "Device "+e.DeviceID)
	}
	if e.Error != "" {
		parts = append(parts, e.Error)
	}
	detail := strings.Join(parts, models.DetailSeparator)
	if detail == "" {
		detail = "The connection was closed."
	}
	r.notifications.Add(models.Notification{
		Type:     models.SeverityWarning,
		Title:    "Device disconnected",
		Message:  "Device disconnected",
		Detail:   detail,
		DeviceID: e.DeviceID,
		Reveal:   true,
	})

	r.logger.Warn("Device disconnected", zap.String("device_id", e.DeviceID), zap.String("error", e.Error))
	r.requestRefetch("device disconnected")
}

func (r *Router) handleStatus(e models.Status) {
	r.roster.SetStatus(e.DeviceID, e.Status)
	r.logger.Debug("Device status",
		zap.String("device_id", e.DeviceID),
		zap.String("status", string(e.Status.Kind)),
		zap.String("message", e.Status.Message))

	if e.Status.Kind.TriggersRefetch() {
		r.requestRefetch("device status " + string(e.Status.Kind))
	}
}

func (r *Router) handleBroadcastSummary(e models.BroadcastSummary) {
	r.tracker.ApplySummary(e)
	progress := r.tracker.Progress()

	switch e.Phase {
	case models.PhaseStarted:
		if progress.Total > 0 {
			r.notifications.Add(models.Notification{
				Type:    models.SeverityInfo,
				Title:   "Policy push",
				Message: "Wear policy push started.",
				Detail:  fmt.Sprintf("Target devices: %d", progress.Total),
			})
		} else {
			r.notifications.Add(models.Notification{
				Type:    models.SeverityWarning,
				Title:   "Policy push",
				Message: "Wear policy saved but there are no devices to push to.",
				Detail:  "No devices are connected, so the push finished immediately.",
			})
		}
	case models.PhaseCompleted:
		failed := progress.Failed > 0
		severity := models.SeveritySuccess
		if failed {
			severity = models.SeverityWarning
		}
		r.notifications.Add(models.Notification{
			Type:    severity,
			Title:   "Policy push",
			Message: "Wear policy push completed.",
			Detail:  progress.Text,
			Reveal:  failed,
		})
	default:
		r.logger.Debug("Ignoring broadcast summary phase", zap.String("phase", string(e.Phase)))
		return
	}

	r.logger.Info("Policy push summary",
		zap.String("phase", string(e.Phase)),
		zap.Int("total", progress.Total),
		zap.Int("success", progress.Success),
		zap.Int("failed", progress.Failed))
}

func (r *Router) handleBroadcastResult(e models.BroadcastResult) {
	r.tracker.ApplyResult(e)

	var parts []string
	if e.DeviceID != "" {
		parts = append(parts, "Device "+e.DeviceID)
	}
	if e.Error != "" {
		parts = append(parts, e.Error)
	} else if !e.Success && e.Connected != nil && !*e.Connected {
		parts = append(parts, "The device is not connected.")
	}

	n := models.Notification{
		Type:     models.SeveritySuccess,
		Title:    "Policy push succeeded",
		Message:  "Policy command sent to the device.",
		Detail:   strings.Join(parts, models.DetailSeparator),
		DeviceID: e.DeviceID,
	}
	if !e.Success {
		n.Type = models.SeverityDanger
		n.Title = "Policy push failed"
		n.Message = "Failed to send the policy command."
		n.Reveal = true
	}
	r.notifications.Add(n)

	r.logger.Debug("Policy push result",
		zap.String("device_id", e.DeviceID),
		zap.Bool("success", e.Success),
		zap.String("error", e.Error))
}

func (r *Router) handleSystemReset(e models.SystemReset) {
	r.tracker.Reset(e.Timestamp)
	at := r.tracker.State().LastUpdated

	r.notifications.Add(models.Notification{
		Type:    models.SeverityWarning,
		Title:   "System reset",
		Message: "The system was reset. Reloading data.",
		Detail:  at.Format(DisplayTimeLayout),
	})

	r.logger.Warn("System reset received", zap.Time("timestamp", at))
	r.requestRefetch("system reset")
}

func (r *Router) handleStateChange(e models.StateChange) {
	r.logger.Info("Wear state changed",
		zap.String("device_id", e.DeviceID),
		zap.String("old_state", string(e.OldState)),
		zap.String("new_state", string(e.NewState)))

	if e.NewState != models.WearOpen || !r.notifyUnwear {
		return
	}

	n := models.Notification{
		Type:      models.SeverityWarning,
		Title:     "Unwear detected",
		Message:   "Unwear detected",
		DeviceID:  e.DeviceID,
		CreatedAt: e.Timestamp,
	}
	if r.employees != nil {
		if employee, ok := r.employees.LookupEmployee(e.EmployeeID, e.DeviceID); ok {
			n.Employee = employee
		}
	}
	r.notifications.Add(n)
}

func (r *Router) requestRefetch(reason string) {
	if r.refetch != nil {
		r.refetch.RequestRefetch(reason)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
