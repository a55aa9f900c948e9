package services

import (
	"testing"
	"time"

	"strapmon/models"
)

func snapshot(ids ...string) []models.Device {
	out := make([]models.Device, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Device{ID: id, DisplayName: "name-" + id})
	}
	return out
}

func TestRosterLoadSnapshotReplaces(t *testing.T) {
	t.Parallel()

	r := NewRosterStore()
	r.LoadSnapshot(snapshot("a", "b", "c"))
	r.ApplyTelemetry(models.Telemetry{DeviceID: "c", Reading: models.Reading{State: models.WearClosed}})

	r.LoadSnapshot(snapshot("b", "d"))
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	if _, ok := r.Get("c"); ok {
		t.Fatalf("device missing from the snapshot should be gone")
	}

	list := r.List()
	if list[0].ID != "b" || list[1].ID != "d" {
		t.Fatalf("List() order = %s,%s; want b,d", list[0].ID, list[1].ID)
	}
}

func TestRosterLoadSnapshotDuplicatesAndEmptyIDs(t *testing.T) {
	t.Parallel()

	r := NewRosterStore()
	r.LoadSnapshot([]models.Device{
		{ID: "a", DisplayName: "first"},
		{ID: ""},
		{ID: "b"},
		{ID: "a", DisplayName: "second"},
	})
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	list := r.List()
	if list[0].ID != "a" || list[0].DisplayName != "second" {
		t.Fatalf("duplicate should keep first position and last record, got %+v", list[0])
	}
}

func TestRosterApplyTelemetry(t *testing.T) {
	t.Parallel()

	r := NewRosterStore()
	fixed := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }
	r.LoadSnapshot(snapshot("a"))

	if r.ApplyTelemetry(models.Telemetry{DeviceID: "ghost"}) {
		t.Fatalf("telemetry for an unknown device should be dropped")
	}
	if r.Len() != 1 {
		t.Fatalf("unknown telemetry must not create entries")
	}

	if !r.ApplyTelemetry(models.Telemetry{DeviceID: "a", Reading: models.Reading{State: models.WearOpen, Distance: "220"}}) {
		t.Fatalf("telemetry for a known device should apply")
	}
	d, _ := r.Get("a")
	if !d.Connected {
		t.Fatalf("telemetry should mark the device connected")
	}
	if d.LastData.Distance != "220" || !d.LastData.Timestamp.Equal(fixed) {
		t.Fatalf("unexpected last data: %+v", d.LastData)
	}

	// no ordering: an older reading still overwrites
	old := fixed.Add(-time.Hour)
	r.ApplyTelemetry(models.Telemetry{DeviceID: "a", Reading: models.Reading{State: models.WearClosed, Timestamp: old}})
	d, _ = r.Get("a")
	if d.LastData.State != models.WearClosed || !d.LastData.Timestamp.Equal(old) {
		t.Fatalf("last applied reading should win, got %+v", d.LastData)
	}
}

func TestRosterApplyConnection(t *testing.T) {
	t.Parallel()

	r := NewRosterStore()
	r.LoadSnapshot([]models.Device{{ID: "a", Connected: false, DisplayName: "A"}})

	r.ApplyConnection(models.KindConnect, "a")
	d, _ := r.Get("a")
	if !d.Connected || d.DisplayName != "A" {
		t.Fatalf("connect should only flip the flag: %+v", d)
	}

	r.ApplyConnection(models.KindDisconnect, "a")
	d, _ = r.Get("a")
	if d.Connected {
		t.Fatalf("disconnect should clear the flag")
	}

	if r.ApplyConnection(models.KindConnect, "ghost") {
		t.Fatalf("connection events for unknown devices should be ignored")
	}
}

func TestRosterReadsAreCopies(t *testing.T) {
	t.Parallel()

	r := NewRosterStore()
	r.LoadSnapshot(snapshot("a"))
	r.ApplyTelemetry(models.Telemetry{DeviceID: "a", Reading: models.Reading{State: models.WearClosed}})

	d, _ := r.Get("a")
	d.LastData.State = models.WearOpen
	d.DisplayName = "mutated"

	again, _ := r.Get("a")
	if again.LastData.State != models.WearClosed || again.DisplayName != "name-a" {
		t.Fatalf("mutating a read copy leaked into the store: %+v", again)
	}
}

func TestRosterMonitoringAndSummary(t *testing.T) {
	t.Parallel()

	r := NewRosterStore()
	r.LoadSnapshot([]models.Device{
		{ID: "1", DisplayName: "zed", Connected: true},
		{ID: "2", DisplayName: "Amy"},
		{ID: "3", EmployeeName: "bob", Connected: true},
	})
	r.ApplyTelemetry(models.Telemetry{DeviceID: "1", Reading: models.Reading{State: models.WearOpen}})
	r.ApplyTelemetry(models.Telemetry{DeviceID: "3", Reading: models.Reading{State: models.WearClosed}})

	got := r.Monitoring()
	want := []string{"1", "2", "3"}
	for i, d := range got {
		if d.ID != want[i] {
			t.Fatalf("Monitoring()[%d] = %s, want %s", i, d.ID, want[i])
		}
	}

	s := r.Summary()
	if s.Total != 3 || s.Connected != 2 || s.Offline != 1 || s.Unworn != 1 {
		t.Fatalf("Summary() = %+v", s)
	}
}

func TestRosterSetStatusAndRemove(t *testing.T) {
	t.Parallel()

	r := NewRosterStore()
	r.LoadSnapshot(snapshot("a", "b"))

	if !r.SetStatus("a", models.DeviceStatus{Kind: models.StatusReconnecting, Message: "retry 2"}) {
		t.Fatalf("SetStatus on a known device should apply")
	}
	d, _ := r.Get("a")
	if d.Status == nil || d.Status.Kind != models.StatusReconnecting || d.Status.Timestamp.IsZero() {
		t.Fatalf("unexpected status: %+v", d.Status)
	}

	if !r.Remove("a") || r.Remove("a") {
		t.Fatalf("Remove should succeed once")
	}
	if list := r.List(); len(list) != 1 || list[0].ID != "b" {
		t.Fatalf("List() after Remove = %v", list)
	}
}
