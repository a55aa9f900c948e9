package models

import (
	"strconv"
	"time"
)

// WearState represents the clasp state reported by the strap hall sensor
type WearState string

const (
	WearOpen   WearState = "OPEN"   // strap unfastened, not worn
	WearClosed WearState = "CLOSED" // strap fastened, worn
)

// DistanceError is the distance value a strap reports when its range sensor fails
const DistanceError = "ERR"

// Reading represents the last telemetry sample received from a strap device
type Reading struct {
	State        WearState `json:"state"`
	Distance     string    `json:"distance"`
	Raw          int       `json:"raw"`
	Avg          int       `json:"avg"`
	Diff         int       `json:"diff"`
	Timestamp    time.Time `json:"timestamp"`
	EmployeeName string    `json:"employee_name,omitempty"`
}

// Worn reports whether the strap is fastened
func (r *Reading) Worn() bool {
	return r != nil && r.State == WearClosed
}

// DistanceMM returns the measured distance in millimetres. The second
// return value is false when the sensor reported an error or no value.
func (r *Reading) DistanceMM() (int, bool) {
	if r == nil || r.Distance == "" || r.Distance == DistanceError {
		return 0, false
	}
	mm, err := strconv.Atoi(r.Distance)
	if err != nil {
		return 0, false
	}
	return mm, true
}

// GetStateLabel returns a short operator-facing label for the wear state
func (s WearState) GetStateLabel() string {
	switch s {
	case WearClosed:
		return "worn"
	case WearOpen:
		return "not worn"
	default:
		return "unknown"
	}
}

// GetStateEmoji returns an indicator for the wear state
func (s WearState) GetStateEmoji() string {
	switch s {
	case WearClosed:
		return "🟢"
	case WearOpen:
		return "🟠"
	default:
		return "⚪"
	}
}

func parseWearState(value string) WearState {
	switch WearState(value) {
	case WearOpen, WearClosed:
		return WearState(value)
	default:
		// the dashboard treats an unknown clasp state as unworn
		return WearOpen
	}
}
