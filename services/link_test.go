package services

import (
	"errors"
	"testing"
	"time"

	"strapmon/models"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLinkMonitorLifecycle(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	m := NewLinkMonitor("mqtt", time.Minute, zap.NewNop())
	m.now = clock.Now

	if m.Online() {
		t.Fatalf("new monitor should be offline")
	}

	m.MarkConnected()
	h := m.Health()
	if h.Status != models.LinkOnline || h.Transport != "mqtt" || !h.Since.Equal(clock.t) {
		t.Fatalf("unexpected health after connect: %+v", h)
	}

	clock.Advance(30 * time.Second)
	m.checkIdle()
	if m.Health().Status != models.LinkOnline {
		t.Fatalf("link within timeout should stay online")
	}

	clock.Advance(2 * time.Minute)
	m.checkIdle()
	if m.Health().Status != models.LinkStale {
		t.Fatalf("silent link should go stale")
	}
	if !m.Online() {
		t.Fatalf("a stale link is still online")
	}

	m.Touch()
	if m.Health().Status != models.LinkOnline {
		t.Fatalf("an event should revive a stale link")
	}

	m.MarkDisconnected(errors.New("broker gone"))
	h = m.Health()
	if h.Status != models.LinkOffline || h.LastError != "broker gone" {
		t.Fatalf("unexpected health after disconnect: %+v", h)
	}

	clock.Advance(time.Hour)
	m.checkIdle()
	if m.Health().Status != models.LinkOffline {
		t.Fatalf("idle check must not touch an offline link")
	}
}

func TestLinkMonitorLogsTransitions(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	m := NewLinkMonitor("amqp", time.Minute, zap.New(core))

	m.MarkConnected()
	m.MarkConnected()
	m.MarkDisconnected(nil)

	if got := logs.FilterMessage("Push channel connected").Len(); got != 1 {
		t.Fatalf("connected logged %d times, want 1", got)
	}
	entries := logs.FilterMessage("Push channel disconnected, waiting for transport to reconnect").All()
	if len(entries) != 1 {
		t.Fatalf("disconnect should be logged once, got %d", len(entries))
	}
	if entries[0].ContextMap()["transport"] != "amqp" {
		t.Fatalf("transport field missing: %v", entries[0].ContextMap())
	}
}
