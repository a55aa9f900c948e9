package models

import (
	"time"
)

// StatusKind represents the connection phase a device reports through status events
type StatusKind string

const (
	StatusConnecting   StatusKind = "connecting"
	StatusConnected    StatusKind = "connected"
	StatusReady        StatusKind = "ready"
	StatusDisconnected StatusKind = "disconnected"
	StatusReconnecting StatusKind = "reconnecting"
	StatusError        StatusKind = "error"
)

// TriggersRefetch reports whether a status of this kind may have changed
// fields that are only authoritative from the snapshot path
func (k StatusKind) TriggersRefetch() bool {
	switch k {
	case StatusConnected, StatusReady, StatusDisconnected, StatusError:
		return true
	default:
		return false
	}
}

// GetStatusEmoji returns appropriate emoji for the status kind
func (k StatusKind) GetStatusEmoji() string {
	switch k {
	case StatusConnecting, StatusReconnecting:
		return "🔄"
	case StatusConnected, StatusReady:
		return "✅"
	case StatusDisconnected:
		return "⚠️"
	case StatusError:
		return "❌"
	default:
		return "❔"
	}
}

// DeviceStatus is the last status line reported for a device
type DeviceStatus struct {
	Kind      StatusKind `json:"status"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

// LinkStatus represents the health of the push-event channel
type LinkStatus string

const (
	LinkOffline LinkStatus = "offline"
	LinkOnline  LinkStatus = "online"
	LinkStale   LinkStatus = "stale" // connected but silent past the idle timeout
)

// LinkHealth tracks the connectivity indicator of the push subscription
type LinkHealth struct {
	Transport   string
	Status      LinkStatus
	Since       time.Time // when Status last changed
	LastEventAt time.Time
	LastError   string
}
