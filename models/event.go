package models

import (
	"strings"
	"time"
)

// EventKind is the tag of a push event on the wire
type EventKind string

const (
	KindTelemetry        EventKind = "telemetry"
	KindConnect          EventKind = "connect"
	KindDisconnect       EventKind = "disconnect"
	KindStatus           EventKind = "status"
	KindBroadcastSummary EventKind = "broadcast-summary"
	KindBroadcastResult  EventKind = "broadcast-result"
	KindSystemReset      EventKind = "system-reset"
	KindStateChange      EventKind = "state-change"
	KindUnknown          EventKind = "unknown"
)

// socket.io names used by the strap server
var kindAliases = map[string]EventKind{
	"device_data":         KindTelemetry,
	"device_connected":    KindConnect,
	"device_disconnected": KindDisconnect,
	"device_status":       KindStatus,
	"policy_push_summary": KindBroadcastSummary,
	"policy_push_result":  KindBroadcastResult,
	"system_reset":        KindSystemReset,
	"state_change":        KindStateChange,
}

// ParseEventKind maps a wire event name to its kind. Names are matched
// case-insensitively and underscores are accepted in place of dashes.
func ParseEventKind(name string) (EventKind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if kind, ok := kindAliases[name]; ok {
		return kind, true
	}
	kind := EventKind(strings.ReplaceAll(name, "_", "-"))
	switch kind {
	case KindTelemetry, KindConnect, KindDisconnect, KindStatus,
		KindBroadcastSummary, KindBroadcastResult, KindSystemReset, KindStateChange:
		return kind, true
	}
	return KindUnknown, false
}

// Event is a decoded push event. The set of implementations is closed.
type Event interface {
	Kind() EventKind
	isEvent()
}

// Telemetry carries a new strap reading
type Telemetry struct {
	DeviceID string
	Reading  Reading
}

// Connect reports that the server established a link to a device
type Connect struct {
	DeviceID string
	Name     string
	Address  string
}

// Disconnect reports that the server lost a device
type Disconnect struct {
	DeviceID string
	Error    string
}

// Status carries a connection phase update for a device
type Status struct {
	DeviceID string
	Status   DeviceStatus
}

// SummaryPhase is the status field of a broadcast summary
type SummaryPhase string

const (
	PhaseStarted   SummaryPhase = "started"
	PhaseCompleted SummaryPhase = "completed"
)

// BroadcastSummary marks the start or end of a policy fan-out.
// Success and Failed are only set when the payload carried them.
type BroadcastSummary struct {
	Phase     SummaryPhase
	Total     int
	Success   *int
	Failed    *int
	Command   string
	Timestamp time.Time
}

// BroadcastResult is one device's acknowledgment of a policy fan-out
type BroadcastResult struct {
	DeviceID  string
	Success   bool
	Error     string
	Connected *bool
	Command   string
	Timestamp time.Time
}

// SystemReset reports that the server wiped its state
type SystemReset struct {
	Timestamp time.Time
}

// StateChange reports a wear transition detected by the server
type StateChange struct {
	DeviceID   string
	EmployeeID int // zero when the strap is unassigned
	OldState   WearState
	NewState   WearState
	Timestamp  time.Time
}

// Unknown is any event the dashboard does not understand
type Unknown struct {
	Name string
	Body []byte
}

func (Telemetry) Kind() EventKind        { return KindTelemetry }
func (Connect) Kind() EventKind          { return KindConnect }
func (Disconnect) Kind() EventKind       { return KindDisconnect }
func (Status) Kind() EventKind           { return KindStatus }
func (BroadcastSummary) Kind() EventKind { return KindBroadcastSummary }
func (BroadcastResult) Kind() EventKind  { return KindBroadcastResult }
func (SystemReset) Kind() EventKind      { return KindSystemReset }
func (StateChange) Kind() EventKind      { return KindStateChange }
func (Unknown) Kind() EventKind          { return KindUnknown }

func (Telemetry) isEvent()        {}
func (Connect) isEvent()          {}
func (Disconnect) isEvent()       {}
func (Status) isEvent()           {}
func (BroadcastSummary) isEvent() {}
func (BroadcastResult) isEvent()  {}
func (SystemReset) isEvent()      {}
func (StateChange) isEvent()      {}
func (Unknown) isEvent()          {}
