package main

import (
	"testing"

	"strapmon/models"
	"strapmon/services"

	"go.uber.org/zap"
)

func replay(t *testing.T, events []models.Event) *services.BroadcastTracker {
	t.Helper()
	tracker := services.NewBroadcastTracker()
	router := services.NewRouter(services.NewRosterStore(), services.NewNotificationEngine(0), tracker, nil, zap.NewNop())
	for _, ev := range events {
		router.Dispatch(ev)
	}
	return tracker
}

func TestScenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  models.BroadcastStatus
		success int
		failed  int
	}{
		{"push", models.BroadcastCompleted, 2, 1},
		{"messy-push", models.BroadcastInProgress, 2, 2},
		{"empty-push", models.BroadcastCompleted, 0, 0},
		{"reset", models.BroadcastIdle, 0, 0},
		{"unwear", models.BroadcastIdle, 0, 0},
	}
	for _, tt := range tests {
		events, err := buildScenario(tt.name, 3)
		if err != nil {
			t.Fatalf("buildScenario(%q) error = %v", tt.name, err)
		}
		s := replay(t, events).State()
		if s.Status != tt.status || s.Success != tt.success || s.Failed != tt.failed {
			t.Fatalf("%s: final state %+v, want %s %d/%d", tt.name, s, tt.status, tt.success, tt.failed)
		}
	}
}

func TestScenarioErrors(t *testing.T) {
	t.Parallel()

	if _, err := buildScenario("nope", 1); err == nil {
		t.Fatalf("unknown scenario should fail")
	}
	if _, err := buildScenario("push", -1); err == nil {
		t.Fatalf("negative device count should fail")
	}
}
