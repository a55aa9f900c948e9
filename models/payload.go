package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// UnknownDeviceID is the placeholder for payloads that omit device_id
const UnknownDeviceID = "unknown"

// Payload is a loosely typed JSON object as delivered by the strap server.
// Accessors never fail; missing or mistyped fields yield zero values.
type Payload map[string]interface{}

// String returns the field as a string. Numbers are formatted.
func (p Payload) String(key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Int returns the field as an int and whether it held a finite number
func (p Payload) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return int(f), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// IntOr returns the field as an int or def when absent
func (p Payload) IntOr(key string, def int) int {
	if v, ok := p.Int(key); ok {
		return v
	}
	return def
}

// Bool returns the field as a bool using JavaScript truthiness
func (p Payload) Bool(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0 && !math.IsNaN(v)
	case string:
		return v != ""
	case nil:
		return false
	default:
		return true
	}
}

// OptionalBool returns the field only when it holds a JSON boolean
func (p Payload) OptionalBool(key string) *bool {
	if v, ok := p[key].(bool); ok {
		return &v
	}
	return nil
}

// Time returns the field parsed as a timestamp, or the zero time
func (p Payload) Time(key string) time.Time {
	switch v := p[key].(type) {
	case string:
		return ParseTimestamp(v)
	case float64:
		// epoch milliseconds
		return time.UnixMilli(int64(v))
	default:
		return time.Time{}
	}
}

// Object returns a nested object field
func (p Payload) Object(key string) Payload {
	if v, ok := p[key].(map[string]interface{}); ok {
		return Payload(v)
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts RFC 3339 and the naive ISO format the strap
// server emits. Naive timestamps are read in the local zone. Unparseable
// input yields the zero time.
func ParseTimestamp(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

// DecodeEvent turns a named wire event into its typed form. Unknown names
// decode to Unknown. A known name whose body is not a JSON object decodes
// with placeholders, the same as an empty body.
func DecodeEvent(name string, body []byte) Event {
	ev, _ := DecodeEventChecked(name, body)
	return ev
}

// DecodeEventChecked is DecodeEvent that also reports a body it could not
// read. The returned event is usable either way.
func DecodeEventChecked(name string, body []byte) (Event, error) {
	kind, ok := ParseEventKind(name)
	if !ok {
		return Unknown{Name: name, Body: body}, nil
	}

	var p Payload
	var bodyErr error
	if len(body) > 0 {
		if err := json.Unmarshal(body, &p); err != nil {
			bodyErr = fmt.Errorf("malformed %s body: %w", kind, err)
			p = nil
		}
	}
	if p == nil {
		p = Payload{}
	}
	return DecodePayload(kind, p), bodyErr
}

// DecodePayload builds the typed event of the given kind from a payload,
// substituting placeholders for anything missing.
func DecodePayload(kind EventKind, p Payload) Event {
	switch kind {
	case KindTelemetry:
		return Telemetry{DeviceID: deviceID(p), Reading: ReadingFromPayload(p)}
	case KindConnect:
		return Connect{DeviceID: p.String("device_id"), Name: p.String("name"), Address: p.String("address")}
	case KindDisconnect:
		return Disconnect{DeviceID: p.String("device_id"), Error: p.String("error")}
	case KindStatus:
		return Status{
			DeviceID: deviceID(p),
			Status: DeviceStatus{
				Kind:      StatusKind(p.String("status")),
				Message:   p.String("message"),
				Timestamp: p.Time("timestamp"),
			},
		}
	case KindBroadcastSummary:
		summary := BroadcastSummary{
			Phase:     SummaryPhase(p.String("status")),
			Total:     p.IntOr("total", 0),
			Command:   p.String("command"),
			Timestamp: p.Time("timestamp"),
		}
		if v, ok := p.Int("success"); ok {
			summary.Success = &v
		}
		if v, ok := p.Int("failed"); ok {
			summary.Failed = &v
		}
		return summary
	case KindBroadcastResult:
		return BroadcastResult{
			DeviceID:  p.String("device_id"),
			Success:   p.Bool("success"),
			Error:     p.String("error"),
			Connected: p.OptionalBool("connected"),
			Command:   p.String("command"),
			Timestamp: p.Time("timestamp"),
		}
	case KindSystemReset:
		return SystemReset{Timestamp: p.Time("timestamp")}
	case KindStateChange:
		return StateChange{
			DeviceID:   deviceID(p),
			EmployeeID: p.IntOr("employee_id", 0),
			OldState:   WearState(p.String("old_state")),
			NewState:   parseWearState(p.String("new_state")),
			Timestamp:  p.Time("timestamp"),
		}
	default:
		return Unknown{Name: string(kind)}
	}
}

// ReadingFromPayload builds a reading from a telemetry or last_data object
func ReadingFromPayload(p Payload) Reading {
	return Reading{
		State:        parseWearState(p.String("state")),
		Distance:     p.String("distance"),
		Raw:          p.IntOr("raw", 0),
		Avg:          p.IntOr("avg", 0),
		Diff:         p.IntOr("diff", 0),
		Timestamp:    p.Time("timestamp"),
		EmployeeName: p.String("employee_name"),
	}
}

// DeviceFromPayload builds a roster entry from one snapshot list element.
// index is used to synthesise an id for entries that carry none.
func DeviceFromPayload(p Payload, index int) Device {
	id := firstNonEmpty(p.String("id"), p.String("device_id"), p.String("address"))
	if id == "" {
		id = fmt.Sprintf("device_%d", index)
	}
	device := Device{
		ID:           id,
		Address:      p.String("address"),
		DisplayName:  p.String("name"),
		Connected:    p.Bool("connected"),
		EmployeeName: p.String("employee_name"),
	}
	if last := p.Object("last_data"); last != nil {
		reading := ReadingFromPayload(last)
		device.LastData = &reading
	}
	return device
}

// EmployeeFromPayload builds an employee from one directory list element
func EmployeeFromPayload(p Payload) Employee {
	return Employee{
		ID:         p.IntOr("id", 0),
		Name:       p.String("name"),
		Number:     p.String("employee_number"),
		Department: p.String("department"),
		DeviceID:   p.String("device_id"),
	}
}

// WearPolicyFromPayload reads a stored policy. Missing fields fall back to
// the defaults and the result is normalized.
func WearPolicyFromPayload(p Payload) WearPolicy {
	policy := DefaultWearPolicy()
	if _, ok := p["distance_enabled"]; ok {
		policy.DistanceEnabled = p.Bool("distance_enabled")
	}
	policy.DistanceClose = p.IntOr("distance_close", policy.DistanceClose)
	policy.DistanceOpen = p.IntOr("distance_open", policy.DistanceOpen)
	return policy.Normalize()
}

// EncodeEvent renders an event in the wire format DecodeEvent reads
func EncodeEvent(ev Event) (EventKind, []byte, error) {
	var p Payload
	switch e := ev.(type) {
	case Telemetry:
		p = Payload{
			"device_id": e.DeviceID,
			"state":     string(e.Reading.State),
			"distance":  e.Reading.Distance,
			"raw":       e.Reading.Raw,
			"avg":       e.Reading.Avg,
			"diff":      e.Reading.Diff,
			"timestamp": formatTimestamp(e.Reading.Timestamp),
		}
		if e.Reading.EmployeeName != "" {
			p["employee_name"] = e.Reading.EmployeeName
		}
	case Connect:
		p = Payload{"device_id": e.DeviceID, "name": e.Name, "address": e.Address}
	case Disconnect:
		p = Payload{"device_id": e.DeviceID}
		if e.Error != "" {
			p["error"] = e.Error
		}
	case Status:
		p = Payload{
			"device_id": e.DeviceID,
			"status":    string(e.Status.Kind),
			"message":   e.Status.Message,
			"timestamp": formatTimestamp(e.Status.Timestamp),
		}
	case BroadcastSummary:
		p = Payload{
			"status":    string(e.Phase),
			"total":     e.Total,
			"timestamp": formatTimestamp(e.Timestamp),
		}
		if e.Command != "" {
			p["command"] = e.Command
		}
		if e.Success != nil {
			p["success"] = *e.Success
		}
		if e.Failed != nil {
			p["failed"] = *e.Failed
		}
	case BroadcastResult:
		p = Payload{
			"device_id": e.DeviceID,
			"success":   e.Success,
			"timestamp": formatTimestamp(e.Timestamp),
		}
		if e.Error != "" {
			p["error"] = e.Error
		}
		if e.Connected != nil {
			p["connected"] = *e.Connected
		}
		if e.Command != "" {
			p["command"] = e.Command
		}
	case SystemReset:
		p = Payload{"timestamp": formatTimestamp(e.Timestamp)}
	case StateChange:
		p = Payload{
			"device_id": e.DeviceID,
			"old_state": string(e.OldState),
			"new_state": string(e.NewState),
			"timestamp": formatTimestamp(e.Timestamp),
		}
		if e.EmployeeID != 0 {
			p["employee_id"] = e.EmployeeID
		}
	default:
		return KindUnknown, nil, fmt.Errorf("cannot encode event of kind %s", ev.Kind())
	}

	body, err := json.Marshal(p)
	if err != nil {
		return ev.Kind(), nil, fmt.Errorf("failed to marshal %s event: %w", ev.Kind(), err)
	}
	return ev.Kind(), body, nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func deviceID(p Payload) string {
	if id := p.String("device_id"); id != "" {
		return id
	}
	return UnknownDeviceID
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
