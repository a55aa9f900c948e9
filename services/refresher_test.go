package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestRefresherCoalescesBurst(t *testing.T) {
	t.Parallel()

	rf := NewRefresher(30*time.Millisecond, 0, zap.NewNop())
	for i := 0; i < 5; i++ {
		rf.RequestRefetch("burst")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fetches atomic.Int32
	go rf.Start(ctx, func(context.Context, string) { fetches.Add(1) })

	waitFor(t, time.Second, func() bool { return fetches.Load() >= 1 })
	time.Sleep(100 * time.Millisecond)
	if got := fetches.Load(); got != 1 {
		t.Fatalf("burst of requests produced %d fetches, want 1", got)
	}

	rf.RequestRefetch("later")
	waitFor(t, time.Second, func() bool { return fetches.Load() == 2 })
}

func TestRefresherWithoutDebounce(t *testing.T) {
	t.Parallel()

	rf := NewRefresher(0, 0, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fetches atomic.Int32
	go rf.Start(ctx, func(context.Context, string) { fetches.Add(1) })

	rf.RequestRefetch("a")
	rf.RequestRefetch("b")
	rf.RequestRefetch("c")
	waitFor(t, time.Second, func() bool { return fetches.Load() == 3 })
}

func TestRefresherPeriodic(t *testing.T) {
	t.Parallel()

	rf := NewRefresher(time.Hour, 20*time.Millisecond, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reasons := make(chan string, 16)
	go rf.Start(ctx, func(_ context.Context, reason string) {
		select {
		case reasons <- reason:
		default:
		}
	})

	select {
	case reason := <-reasons:
		if reason != "periodic refresh" {
			t.Fatalf("reason = %q, want periodic refresh", reason)
		}
	case <-time.After(time.Second):
		t.Fatalf("no periodic fetch")
	}
}

func TestRefresherRequestNeverBlocks(t *testing.T) {
	t.Parallel()

	rf := NewRefresher(time.Second, 0, zap.NewNop())
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			rf.RequestRefetch("flood")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("RequestRefetch blocked without a running loop")
	}
}
