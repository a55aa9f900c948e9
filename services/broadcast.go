package services

import (
	"fmt"
	"time"

	"strapmon/models"
)

// BroadcastTracker aggregates the acknowledgments of the one policy push
// being tracked. The server fans out per device with no commit, so
// acknowledgments may arrive in any order, partially, or twice. Only a
// "completed" summary ends a broadcast; the counters reaching the total
// does not.
//
// Acknowledgments are not deduplicated by device and are accepted even
// when no broadcast is outstanding.
type BroadcastTracker struct {
	state models.BroadcastState
	now   func() time.Time
}

// NewBroadcastTracker creates an idle tracker
func NewBroadcastTracker() *BroadcastTracker {
	return &BroadcastTracker{
		state: models.BroadcastState{Status: models.BroadcastIdle},
		now:   time.Now,
	}
}

// Begin starts tracking a broadcast from the initiation response of a
// policy push, before any summary event arrives
func (t *BroadcastTracker) Begin(total int, command string) {
	t.start(total, command, t.now())
}

// ApplySummary applies a started or completed summary. Other phases are
// ignored.
func (t *BroadcastTracker) ApplySummary(ev models.BroadcastSummary) {
	switch ev.Phase {
	case models.PhaseStarted:
		command := ev.Command
		if command == "" {
			command = t.state.Command
		}
		t.start(ev.Total, command, t.stamp(ev.Timestamp))

	case models.PhaseCompleted:
		if t.state.Status == models.BroadcastIdle {
			// completion without a tracked start: adopt the server's total
			t.state.Total = max(ev.Total, 0)
		}
		t.state.Status = models.BroadcastCompleted
		if ev.Success != nil {
			t.state.Success = *ev.Success
		}
		if ev.Failed != nil {
			t.state.Failed = *ev.Failed
		}
		if ev.Command != "" {
			t.state.Command = ev.Command
		}
		t.state.LastUpdated = t.stamp(ev.Timestamp)
	}
}

// ApplyResult counts one device acknowledgment. Every result counts, also
// a repeat for the same device and a straggler arriving while idle or
// after completion; either way the tracker reports in-progress until the
// next completed summary.
func (t *BroadcastTracker) ApplyResult(ev models.BroadcastResult) {
	if ev.Success {
		t.state.Success++
	} else {
		t.state.Failed++
	}
	t.state.Status = models.BroadcastInProgress
	t.state.LastUpdated = t.stamp(ev.Timestamp)
}

// Reset forces the tracker back to idle from any state
func (t *BroadcastTracker) Reset(at time.Time) {
	t.state = models.BroadcastState{
		Status:      models.BroadcastIdle,
		LastUpdated: t.stamp(at),
	}
}

// Refresh is applied when the policy is reloaded: a finished broadcast is
// forgotten, one still in progress is kept
func (t *BroadcastTracker) Refresh() {
	if t.state.Status == models.BroadcastInProgress {
		t.state.LastUpdated = t.now()
		return
	}
	t.Reset(time.Time{})
}

// State returns the current record
func (t *BroadcastTracker) State() models.BroadcastState {
	return t.state
}

// Progress returns the view model of the broadcast panel
func (t *BroadcastTracker) Progress() models.BroadcastProgress {
	s := t.state
	p := models.BroadcastProgress{
		Status:      s.Status,
		Total:       s.Total,
		Done:        min(s.Success+s.Failed, s.Total),
		Success:     s.Success,
		Failed:      s.Failed,
		Command:     s.Command,
		LastUpdated: s.LastUpdated,
	}

	switch {
	case s.Status == models.BroadcastIdle:
		p.Text = "No policy push in progress"
	case s.Status == models.BroadcastCompleted && s.Total == 0:
		p.NoTargets = true
		p.Text = "No connected devices to push to"
	case s.Status == models.BroadcastCompleted:
		p.Text = fmt.Sprintf("Push completed • success %d / failed %d", s.Success, s.Failed)
	case s.Total > 0:
		p.Text = fmt.Sprintf("Pushing • done %d/%d", p.Done, s.Total)
	default:
		p.Text = fmt.Sprintf("Pushing • %d acknowledged", s.Success+s.Failed)
	}
	return p
}

func (t *BroadcastTracker) start(total int, command string, at time.Time) {
	total = max(total, 0)
	status := models.BroadcastInProgress
	if total == 0 {
		// nothing to wait for
		status = models.BroadcastCompleted
	}
	t.state = models.BroadcastState{
		Status:      status,
		Total:       total,
		LastUpdated: at,
		Command:     command,
	}
}

func (t *BroadcastTracker) stamp(at time.Time) time.Time {
	if at.IsZero() {
		return t.now()
	}
	return at
}
