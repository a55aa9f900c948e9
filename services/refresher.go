package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// FetchFunc performs one snapshot fetch and applies its result
type FetchFunc func(ctx context.Context, reason string)

// Refresher schedules roster snapshot fetches. Refetch requests arriving
// within the debounce window are coalesced into one fetch, and a periodic
// fetch keeps the roster from drifting when no push events arrive.
// Fetches are not fenced against each other: whichever completes last wins.
type Refresher struct {
	requests chan string
	debounce time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// NewRefresher creates a refresher. A zero interval disables periodic fetches.
func NewRefresher(debounce, interval time.Duration, logger *zap.Logger) *Refresher {
	return &Refresher{
		requests: make(chan string, 64),
		debounce: debounce,
		interval: interval,
		logger:   logger,
	}
}

// RequestRefetch queues a fetch. It never blocks; when the queue is full a
// fetch is already pending and the request is dropped.
func (rf *Refresher) RequestRefetch(reason string) {
	select {
	case rf.requests <- reason:
	default:
		rf.logger.Debug("Refetch already pending, dropping request", zap.String("reason", reason))
	}
}

// Start runs the scheduling loop until ctx is cancelled
func (rf *Refresher) Start(ctx context.Context, fetch FetchFunc) {
	rf.logger.Info("Starting snapshot refresher",
		zap.Duration("debounce", rf.debounce),
		zap.Duration("interval", rf.interval))

	// Initialize debounce timer stopped
	debounceTimer := time.NewTimer(time.Hour)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	armed := false
	pendingReason := ""
	coalesced := 0

	var tick <-chan time.Time
	if rf.interval > 0 {
		ticker := time.NewTicker(rf.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			debounceTimer.Stop()
			rf.logger.Info("Snapshot refresher stopped")
			return

		case reason := <-rf.requests:
			if armed {
				coalesced++
				continue
			}
			pendingReason = reason
			coalesced = 0
			if rf.debounce <= 0 {
				go fetch(ctx, pendingReason)
				continue
			}
			debounceTimer.Reset(rf.debounce)
			armed = true

		case <-debounceTimer.C:
			armed = false
			rf.logger.Debug("Refetching roster snapshot",
				zap.String("reason", pendingReason),
				zap.Int("coalesced", coalesced))
			go fetch(ctx, pendingReason)

		case <-tick:
			go fetch(ctx, "periodic refresh")
		}
	}
}
