package models

import (
	"strings"
	"time"
)

// Severity represents the notification type shown by the alert panel
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
	SeverityInfo    Severity = "info"
)

// DefaultTitle returns the title used when a notification carries none
func (s Severity) DefaultTitle() string {
	switch s {
	case SeveritySuccess, SeverityInfo:
		return "Notice"
	case SeverityWarning:
		return "Warning"
	case SeverityDanger:
		return "Alert"
	default:
		return "Notification"
	}
}

// GetSeverityEmoji returns the icon for the severity
func (s Severity) GetSeverityEmoji() string {
	switch s {
	case SeveritySuccess:
		return "✅"
	case SeverityWarning:
		return "⚠️"
	case SeverityDanger:
		return "⛔"
	default:
		return "🔔"
	}
}

// Employee identifies the person a strap is assigned to
type Employee struct {
	ID         int    `json:"id,omitempty"`
	Name       string `json:"name"`
	Number     string `json:"employee_number,omitempty"`
	Department string `json:"department,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
}

// Notification is one alert record in the notification queue
type Notification struct {
	ID        int64     `json:"id"`
	Type      Severity  `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Detail    string    `json:"detail"`
	DeviceID  string    `json:"device_id,omitempty"`
	Employee  *Employee `json:"employee,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	// Reveal asks the presentation layer to open its alert panel now
	Reveal bool `json:"reveal"`
}

// DefaultDetail joins the available employee identity and device id:
// "name (number) · department · Device id"
func (n *Notification) DefaultDetail() string {
	var parts []string
	if n.Employee != nil && n.Employee.Name != "" {
		label := n.Employee.Name
		if n.Employee.Number != "" {
			label += " (" + n.Employee.Number + ")"
		}
		parts = append(parts, label)
		if n.Employee.Department != "" {
			parts = append(parts, n.Employee.Department)
		}
	}
	if n.DeviceID != "" {
		parts = append(parts, "Device "+n.DeviceID)
	}
	return strings.Join(parts, DetailSeparator)
}

// ShowMessage reports whether the message adds anything to the title
func (n *Notification) ShowMessage() bool {
	return n.Message != "" && n.Message != n.Title
}

// DetailSeparator joins the parts of a notification detail line
const DetailSeparator = " · "
