package models

import "time"

// BroadcastStatus represents the lifecycle phase of a policy fan-out
type BroadcastStatus string

const (
	BroadcastIdle       BroadcastStatus = "idle"
	BroadcastInProgress BroadcastStatus = "in-progress"
	BroadcastCompleted  BroadcastStatus = "completed"
)

// BroadcastState is the singleton record of the tracked policy push.
// Success+Failed is meant to stay within Total but duplicate or late
// acknowledgments can push it past.
type BroadcastState struct {
	Status      BroadcastStatus `json:"status"`
	Total       int             `json:"total"`
	Success     int             `json:"success"`
	Failed      int             `json:"failed"`
	LastUpdated time.Time       `json:"last_updated"`
	Command     string          `json:"command,omitempty"`
}

// BroadcastProgress is the view model of the policy push panel
type BroadcastProgress struct {
	Status      BroadcastStatus `json:"status"`
	Total       int             `json:"total"`
	Done        int             `json:"done"` // success+failed clamped to total
	Success     int             `json:"success"`
	Failed      int             `json:"failed"`
	NoTargets   bool            `json:"no_targets"`
	Text        string          `json:"text"`
	Command     string          `json:"command,omitempty"`
	LastUpdated time.Time       `json:"last_updated"`
}
