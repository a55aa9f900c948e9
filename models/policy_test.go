package models

import "testing"

func TestWearPolicyNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   WearPolicy
		want WearPolicy
	}{
		{"defaults untouched", DefaultWearPolicy(), DefaultWearPolicy()},
		{"close too low", WearPolicy{true, 5, 100}, WearPolicy{true, 30, 100}},
		{"close too high", WearPolicy{true, 900, 100}, WearPolicy{true, 400, 410}},
		{"open under hysteresis", WearPolicy{false, 120, 125}, WearPolicy{false, 120, 130}},
		{"open too high", WearPolicy{true, 120, 9000}, WearPolicy{true, 120, 500}},
	}
	for _, tt := range tests {
		if got := tt.in.Normalize(); got != tt.want {
			t.Fatalf("%s: Normalize() = %+v, want %+v", tt.name, got, tt.want)
		}
	}
}

func TestWearPolicyCommand(t *testing.T) {
	t.Parallel()

	p := DefaultWearPolicy()
	if got := p.Command(); got != "POLICY:DIST_EN=1;DIST_CLOSE=120;DIST_OPEN=160" {
		t.Fatalf("Command() = %q", got)
	}
	if got := p.Descriptor(); got != "DIST_EN=1, CLOSE=120, OPEN=160" {
		t.Fatalf("Descriptor() = %q", got)
	}

	off := WearPolicy{DistanceEnabled: false, DistanceClose: 10, DistanceOpen: 10}
	if got := off.Command(); got != "POLICY:DIST_EN=0;DIST_CLOSE=30;DIST_OPEN=40" {
		t.Fatalf("Command() should normalize, got %q", got)
	}
}

func TestWearPolicyFromPayload(t *testing.T) {
	t.Parallel()

	got := WearPolicyFromPayload(Payload{"distance_enabled": 0.0, "distance_close": 100.0})
	want := WearPolicy{DistanceEnabled: false, DistanceClose: 100, DistanceOpen: 160}
	if got != want {
		t.Fatalf("WearPolicyFromPayload() = %+v, want %+v", got, want)
	}

	if got := WearPolicyFromPayload(Payload{}); got != DefaultWearPolicy() {
		t.Fatalf("empty payload should yield defaults, got %+v", got)
	}
}

func TestNotificationDefaultDetail(t *testing.T) {
	t.Parallel()

	n := Notification{
		DeviceID: "S1",
		Employee: &Employee{Name: "Kim", Number: "E-12", Department: "Assembly"},
	}
	if got := n.DefaultDetail(); got != "Kim (E-12) · Assembly · Device S1" {
		t.Fatalf("DefaultDetail() = %q", got)
	}

	bare := Notification{}
	if got := bare.DefaultDetail(); got != "" {
		t.Fatalf("DefaultDetail() without identity = %q, want empty", got)
	}
}
