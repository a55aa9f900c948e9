package services

import (
	"sort"
	"strings"
	"time"

	"strapmon/models"
)

// RosterStore is the canonical mapping of device id to last-known state.
// Snapshots replace it wholesale; push events mutate entries it already
// knows. It is not safe for concurrent use; the Dashboard owns it.
type RosterStore struct {
	devices map[string]*models.Device
	order   []string // snapshot order of ids
	now     func() time.Time
}

// NewRosterStore creates an empty roster
func NewRosterStore() *RosterStore {
	return &RosterStore{
		devices: make(map[string]*models.Device),
		now:     time.Now,
	}
}

// LoadSnapshot replaces the entire roster with list. Devices missing from
// list disappear even if push events touched them moments ago. A repeated
// id keeps its first position and its last record.
func (r *RosterStore) LoadSnapshot(list []models.Device) {
	devices := make(map[string]*models.Device, len(list))
	order := make([]string, 0, len(list))

	for i := range list {
		device := models.CloneDevice(&list[i])
		if device.ID == "" {
			continue
		}
		if _, seen := devices[device.ID]; !seen {
			order = append(order, device.ID)
		}
		devices[device.ID] = device
	}

	r.devices = devices
	r.order = order
}

// ApplyTelemetry overwrites the last reading of a known device and marks
// it connected. Readings for unknown ids are dropped until a snapshot
// introduces the device. There is no timestamp ordering: a stale reading
// applied after a fresh one wins.
func (r *RosterStore) ApplyTelemetry(ev models.Telemetry) bool {
	device, ok := r.devices[ev.DeviceID]
	if !ok {
		return false
	}

	reading := ev.Reading
	if reading.Timestamp.IsZero() {
		reading.Timestamp = r.now()
	}
	device.LastData = &reading
	device.Connected = true
	return true
}

// ApplyConnection flips the connected flag of a known device for connect
// and disconnect events. Name and address are left alone; only the
// snapshot path is authoritative for them.
func (r *RosterStore) ApplyConnection(kind models.EventKind, deviceID string) bool {
	device, ok := r.devices[deviceID]
	if !ok {
		return false
	}

	switch kind {
	case models.KindConnect:
		device.Connected = true
	case models.KindDisconnect:
		device.Connected = false
	default:
		return false
	}
	return true
}

// SetStatus records the latest connection phase reported for a known device
func (r *RosterStore) SetStatus(deviceID string, status models.DeviceStatus) bool {
	device, ok := r.devices[deviceID]
	if !ok {
		return false
	}
	if status.Timestamp.IsZero() {
		status.Timestamp = r.now()
	}
	device.Status = &status
	return true
}

// Remove drops a device after the server acknowledged its removal
func (r *RosterStore) Remove(deviceID string) bool {
	if _, ok := r.devices[deviceID]; !ok {
		return false
	}
	delete(r.devices, deviceID)
	for i, id := range r.order {
		if id == deviceID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a copy of one device
func (r *RosterStore) Get(deviceID string) (*models.Device, bool) {
	device, ok := r.devices[deviceID]
	if !ok {
		return nil, false
	}
	return models.CloneDevice(device), true
}

// Len returns the number of devices on the roster
func (r *RosterStore) Len() int {
	return len(r.devices)
}

// List returns copies of all devices in snapshot order
func (r *RosterStore) List() []*models.Device {
	out := make([]*models.Device, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, models.CloneDevice(r.devices[id]))
	}
	return out
}

// Monitoring returns the devices in monitoring-grid order: unworn straps
// first, then by employee or device name.
func (r *RosterStore) Monitoring() []*models.Device {
	out := r.List()
	sort.SliceStable(out, func(i, j int) bool {
		openI, openJ := reportsOpen(out[i]), reportsOpen(out[j])
		if openI != openJ {
			return openI
		}
		return strings.ToLower(sortName(out[i])) < strings.ToLower(sortName(out[j]))
	})
	return out
}

// Summary counts devices for the dashboard stat cards
func (r *RosterStore) Summary() models.RosterSummary {
	var s models.RosterSummary
	for _, device := range r.devices {
		s.Total++
		if device.Connected {
			s.Connected++
		} else {
			s.Offline++
		}
		if reportsOpen(device) {
			s.Unworn++
		}
	}
	return s
}

func reportsOpen(d *models.Device) bool {
	return d.LastData != nil && d.LastData.State == models.WearOpen
}

func sortName(d *models.Device) string {
	if name := d.Employee(); name != "" {
		return name
	}
	return d.DisplayName
}
