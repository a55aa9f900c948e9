package models

import "fmt"

// Device is one roster entry: a registered strap and its last-known state
type Device struct {
	ID           string        `json:"id"`
	Address      string        `json:"address"`
	DisplayName  string        `json:"name"`
	Connected    bool          `json:"connected"`
	EmployeeName string        `json:"employee_name,omitempty"`
	LastData     *Reading      `json:"last_data,omitempty"`
	Status       *DeviceStatus `json:"status,omitempty"`
}

// Label returns the name a presentation layer shows for the device.
// An assigned employee wins over the device's own name.
func (d *Device) Label() string {
	if name := d.Employee(); name != "" {
		return fmt.Sprintf("%s (%s)", name, d.ID)
	}
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.ID
}

// Employee returns the employee name attached to the latest reading,
// falling back to the one attached by the snapshot.
func (d *Device) Employee() string {
	if d.LastData != nil && d.LastData.EmployeeName != "" {
		return d.LastData.EmployeeName
	}
	return d.EmployeeName
}

// WearState returns the state of the latest reading. Devices without
// telemetry are shown as unworn.
func (d *Device) WearState() WearState {
	if d.LastData == nil || d.LastData.State == "" {
		return WearOpen
	}
	return d.LastData.State
}

// CloneDevice returns a deep copy safe to hand to readers
func CloneDevice(d *Device) *Device {
	if d == nil {
		return nil
	}
	out := *d
	if d.LastData != nil {
		reading := *d.LastData
		out.LastData = &reading
	}
	if d.Status != nil {
		status := *d.Status
		out.Status = &status
	}
	return &out
}

// RosterSummary holds the counters shown on the dashboard stat cards
type RosterSummary struct {
	Total     int `json:"total"`
	Connected int `json:"connected"`
	Offline   int `json:"offline"`
	Unworn    int `json:"unworn"`
}
