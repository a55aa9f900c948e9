package models

import "fmt"

// Distance bounds accepted by the strap firmware, in millimetres
const (
	minDistanceClose = 30
	maxDistanceClose = 400
	maxDistanceOpen  = 500
	minHysteresis    = 10
)

// WearPolicy is the fleet-wide wear detection policy pushed to every strap
type WearPolicy struct {
	DistanceEnabled bool `json:"distance_enabled"`
	DistanceClose   int  `json:"distance_close"` // at or below: worn
	DistanceOpen    int  `json:"distance_open"`  // at or above: not worn
}

// DefaultWearPolicy returns the policy the server starts with
func DefaultWearPolicy() WearPolicy {
	return WearPolicy{
		DistanceEnabled: true,
		DistanceClose:   120,
		DistanceOpen:    160,
	}
}

// Normalize clamps the thresholds into the range the firmware accepts and
// keeps the open threshold at least 10mm above the close threshold
func (p WearPolicy) Normalize() WearPolicy {
	p.DistanceClose = clamp(p.DistanceClose, minDistanceClose, maxDistanceClose)
	p.DistanceOpen = clamp(p.DistanceOpen, p.DistanceClose+minHysteresis, maxDistanceOpen)
	return p
}

// Command returns the BLE command string that applies the policy on a strap
func (p WearPolicy) Command() string {
	n := p.Normalize()
	return fmt.Sprintf("POLICY:DIST_EN=%d;DIST_CLOSE=%d;DIST_OPEN=%d", boolToInt(n.DistanceEnabled), n.DistanceClose, n.DistanceOpen)
}

// Descriptor returns the short form shown next to the broadcast progress
func (p WearPolicy) Descriptor() string {
	return fmt.Sprintf("DIST_EN=%d, CLOSE=%d, OPEN=%d", boolToInt(p.DistanceEnabled), p.DistanceClose, p.DistanceOpen)
}

// Summary describes the policy for operators
func (p WearPolicy) Summary() string {
	state := "disabled"
	if p.DistanceEnabled {
		state = "enabled"
	}
	return fmt.Sprintf("Distance check %s%sworn %dmm%snot worn %dmm", state, DetailSeparator, p.DistanceClose, DetailSeparator, p.DistanceOpen)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
