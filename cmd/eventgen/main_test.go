package main

import (
	"testing"

	"strapmon/models"
)

func TestPolicyPushWithoutFailures(t *testing.T) {
	t.Parallel()

	f := NewFleetSimulator(4, 0, 0)
	events := f.PolicyPush(0, false, false)

	if len(events) != 6 {
		t.Fatalf("got %d events, want started + 4 results + completed", len(events))
	}
	first, ok := events[0].(models.BroadcastSummary)
	if !ok || first.Phase != models.PhaseStarted || first.Total != 4 {
		t.Fatalf("first event = %+v", events[0])
	}
	last, ok := events[5].(models.BroadcastSummary)
	if !ok || last.Phase != models.PhaseCompleted || *last.Success != 4 || *last.Failed != 0 {
		t.Fatalf("last event = %+v", events[5])
	}
}

func TestPolicyPushStraggler(t *testing.T) {
	t.Parallel()

	f := NewFleetSimulator(2, 0, 0)
	events := f.PolicyPush(1, false, true)

	if _, ok := events[len(events)-1].(models.BroadcastResult); !ok {
		t.Fatalf("straggler should follow the completed summary")
	}
}

func TestPolicyPushNoConnectedStraps(t *testing.T) {
	t.Parallel()

	f := NewFleetSimulator(2, 0, 0)
	for _, s := range f.straps {
		s.connected = false
	}
	events := f.PolicyPush(0, true, true)
	if len(events) != 1 {
		t.Fatalf("only the started summary is expected, got %d events", len(events))
	}
}

func TestNextTelemetry(t *testing.T) {
	t.Parallel()

	f := NewFleetSimulator(3, 0, 0)
	for i := 0; i < 20; i++ {
		events := f.Next()
		if len(events) != 1 {
			t.Fatalf("stable fleet should emit one reading per tick, got %d", len(events))
		}
		tel, ok := events[0].(models.Telemetry)
		if !ok || tel.Reading.State != models.WearClosed {
			t.Fatalf("unexpected event %+v", events[0])
		}
	}
}
