package services

import (
	"testing"
	"time"

	"strapmon/models"

	"go.uber.org/zap"
)

type fakeRefetch struct {
	reasons []string
}

func (f *fakeRefetch) RequestRefetch(reason string) {
	f.reasons = append(f.reasons, reason)
}

type routerFixture struct {
	router        *Router
	roster        *RosterStore
	notifications *NotificationEngine
	tracker       *BroadcastTracker
	refetch       *fakeRefetch
}

func newRouterFixture(ids ...string) *routerFixture {
	f := &routerFixture{
		roster:        NewRosterStore(),
		notifications: NewNotificationEngine(DefaultNotificationCapacity),
		tracker:       NewBroadcastTracker(),
		refetch:       &fakeRefetch{},
	}
	f.roster.LoadSnapshot(snapshot(ids...))
	f.router = NewRouter(f.roster, f.notifications, f.tracker, f.refetch, zap.NewNop())
	return f
}

func TestRouterTelemetry(t *testing.T) {
	t.Parallel()

	f := newRouterFixture("a")
	f.router.Dispatch(models.Telemetry{DeviceID: "a", Reading: models.Reading{State: models.WearOpen}})
	f.router.Dispatch(models.Telemetry{DeviceID: "ghost", Reading: models.Reading{State: models.WearOpen}})

	d, _ := f.roster.Get("a")
	if d.LastData == nil || d.LastData.State != models.WearOpen {
		t.Fatalf("telemetry not applied: %+v", d)
	}
	if f.roster.Len() != 1 {
		t.Fatalf("unknown telemetry must not create entries")
	}
	if f.notifications.Len() != 0 || len(f.refetch.reasons) != 0 {
		t.Fatalf("telemetry should neither notify nor refetch")
	}
}

func TestRouterConnectAndDisconnect(t *testing.T) {
	t.Parallel()

	f := newRouterFixture("a")
	f.router.Dispatch(models.Connect{DeviceID: "a", Name: "Strap A", Address: "AA:BB"})

	list := f.notifications.List()
	if len(list) != 1 || list[0].Type != models.SeveritySuccess {
		t.Fatalf("connect should raise a success notification: %+v", list)
	}
	if list[0].Detail != "Strap A · ID a · AA:BB" {
		t.Fatalf("connect detail = %q", list[0].Detail)
	}
	if d, _ := f.roster.Get("a"); !d.Connected {
		t.Fatalf("connect should mark the device connected")
	}

	f.router.Dispatch(models.Disconnect{DeviceID: "a"})
	list = f.notifications.List()
	if list[0].Type != models.SeverityWarning || !list[0].Reveal {
		t.Fatalf("disconnect should raise a revealed warning: %+v", list[0])
	}
	if d, _ := f.roster.Get("a"); d.Connected {
		t.Fatalf("disconnect should clear the connected flag")
	}
	if !f.notifications.TakeReveal() {
		t.Fatalf("disconnect should set the reveal latch")
	}
	if len(f.refetch.reasons) != 2 {
		t.Fatalf("connect and disconnect should each request a refetch, got %v", f.refetch.reasons)
	}
}

func TestRouterStatusRefetch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind    models.StatusKind
		refetch bool
	}{
		{models.StatusConnecting, false},
		{models.StatusConnected, true},
		{models.StatusReady, true},
		{models.StatusDisconnected, true},
		{models.StatusReconnecting, false},
		{models.StatusError, true},
	}
	for _, tt := range tests {
		f := newRouterFixture("a")
		f.router.Dispatch(models.Status{DeviceID: "a", Status: models.DeviceStatus{Kind: tt.kind}})
		if got := len(f.refetch.reasons) == 1; got != tt.refetch {
			t.Fatalf("status %q: refetch = %v, want %v", tt.kind, got, tt.refetch)
		}
		if f.notifications.Len() != 0 {
			t.Fatalf("status %q should not notify", tt.kind)
		}
		d, _ := f.roster.Get("a")
		if d.Status == nil || d.Status.Kind != tt.kind {
			t.Fatalf("status %q not recorded", tt.kind)
		}
	}
}

func TestRouterBroadcastFlow(t *testing.T) {
	t.Parallel()

	f := newRouterFixture("a", "b")
	f.router.Dispatch(started(2))
	f.router.Dispatch(result("a", true))
	f.router.Dispatch(models.BroadcastResult{DeviceID: "b", Success: false, Error: "timeout"})
	f.router.Dispatch(completed(intPtr(1), intPtr(1)))

	s := f.tracker.State()
	if s.Status != models.BroadcastCompleted || s.Success != 1 || s.Failed != 1 {
		t.Fatalf("unexpected tracker state: %+v", s)
	}

	list := f.notifications.List()
	if len(list) != 4 {
		t.Fatalf("expected 4 notifications, got %d", len(list))
	}
	// most recent first: completed, failed result, ok result, started
	if list[0].Type != models.SeverityWarning || !list[0].Reveal {
		t.Fatalf("completion with failures should be a revealed warning: %+v", list[0])
	}
	if list[1].Type != models.SeverityDanger || list[1].Detail != "Device b · timeout" {
		t.Fatalf("failed result notification: %+v", list[1])
	}
	if list[2].Type != models.SeveritySuccess {
		t.Fatalf("ok result notification: %+v", list[2])
	}
	if list[3].Type != models.SeverityInfo || list[3].Detail != "Target devices: 2" {
		t.Fatalf("started notification: %+v", list[3])
	}
}

func TestRouterResultNotConnected(t *testing.T) {
	t.Parallel()

	f := newRouterFixture()
	notConnected := false
	f.router.Dispatch(models.BroadcastResult{DeviceID: "z", Success: false, Connected: &notConnected})

	n := f.notifications.List()[0]
	if n.Detail != "Device z · The device is not connected." {
		t.Fatalf("detail = %q", n.Detail)
	}
	if s := f.tracker.State(); s.Status != models.BroadcastInProgress || s.Failed != 1 {
		t.Fatalf("out-of-band result should count: %+v", s)
	}
}

func TestRouterSystemReset(t *testing.T) {
	t.Parallel()

	f := newRouterFixture("a")
	f.router.Dispatch(started(3))
	f.router.Dispatch(result("a", true))

	at := time.Date(2024, 5, 1, 9, 15, 0, 0, time.UTC)
	f.router.Dispatch(models.SystemReset{Timestamp: at})

	s := f.tracker.State()
	if s.Status != models.BroadcastIdle || s.Total != 0 || s.Success != 0 {
		t.Fatalf("system reset should zero the tracker: %+v", s)
	}
	n := f.notifications.List()[0]
	if n.Type != models.SeverityWarning || n.Detail != "2024-05-01 09:15:00" {
		t.Fatalf("reset notification: %+v", n)
	}
	if len(f.refetch.reasons) != 1 || f.refetch.reasons[0] != "system reset" {
		t.Fatalf("reset should request a refetch, got %v", f.refetch.reasons)
	}
}

func TestRouterStateChange(t *testing.T) {
	t.Parallel()

	f := newRouterFixture("a")
	f.router.SetEmployeeDirectory(NewEmployeeIndex([]models.Employee{
		{ID: 7, Name: "Kim", Number: "E-7", Department: "Line 2", DeviceID: "a"},
	}))

	f.router.Dispatch(models.StateChange{DeviceID: "a", OldState: models.WearOpen, NewState: models.WearClosed})
	if f.notifications.Len() != 0 {
		t.Fatalf("putting a strap on should not notify")
	}

	f.router.Dispatch(models.StateChange{DeviceID: "a", EmployeeID: 7, OldState: models.WearClosed, NewState: models.WearOpen})
	n := f.notifications.List()[0]
	if n.Type != models.SeverityWarning || n.Employee == nil || n.Employee.Name != "Kim" {
		t.Fatalf("unwear notification: %+v", n)
	}
	if n.Detail != "Kim (E-7) · Line 2 · Device a" {
		t.Fatalf("unwear detail = %q", n.Detail)
	}

	f.router.SetNotifyUnwear(false)
	f.router.Dispatch(models.StateChange{DeviceID: "a", NewState: models.WearOpen})
	if f.notifications.Len() != 1 {
		t.Fatalf("unwear notifications should be switchable")
	}
}

func TestRouterIgnoresUnknown(t *testing.T) {
	t.Parallel()

	f := newRouterFixture("a")
	f.router.Dispatch(models.DecodeEvent("firmware_log", []byte(`{"line":"x"}`)))

	if f.notifications.Len() != 0 || len(f.refetch.reasons) != 0 {
		t.Fatalf("unknown events must have no effect")
	}
	if s := f.tracker.State(); s.Status != models.BroadcastIdle {
		t.Fatalf("unknown events must not touch the tracker")
	}
}

func TestRouterNilRefetch(t *testing.T) {
	t.Parallel()

	router := NewRouter(NewRosterStore(), NewNotificationEngine(5), NewBroadcastTracker(), nil, zap.NewNop())
	router.Dispatch(models.SystemReset{})
	router.Dispatch(models.Connect{DeviceID: "x"})
}

func TestRouterMalformedBodiesStillApply(t *testing.T) {
	t.Parallel()

	f := newRouterFixture("a")
	f.router.Dispatch(started(3))
	f.router.Dispatch(models.DecodeEvent("policy_push_result", []byte(`[1,2]`)))
	if s := f.tracker.State(); s.Failed != 1 {
		t.Fatalf("unreadable result should count as a failure: %+v", s)
	}

	f.router.Dispatch(models.DecodeEvent("system-reset", []byte(`"2024-01-01T00:00:00"`)))
	if s := f.tracker.State(); s.Status != models.BroadcastIdle || s.Total != 0 || s.Failed != 0 {
		t.Fatalf("unreadable system reset should still reset the tracker: %+v", s)
	}
}
