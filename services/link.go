package services

import (
	"context"
	"sync"
	"time"

	"strapmon/models"

	"go.uber.org/zap"
)

// LinkMonitor is the connectivity indicator of the push subscription. The
// transport reports connects and disconnects; every applied event counts
// as a sign of life. A link that stays silent past the timeout is shown as
// stale. The monitor never reconnects anything itself.
type LinkMonitor struct {
	mu      sync.RWMutex
	health  models.LinkHealth
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewLinkMonitor creates an offline indicator for the named transport
func NewLinkMonitor(transport string, timeout time.Duration, logger *zap.Logger) *LinkMonitor {
	m := &LinkMonitor{
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
	m.health = models.LinkHealth{
		Transport: transport,
		Status:    models.LinkOffline,
		Since:     m.now(),
	}
	return m
}

// MarkConnected records that the transport (re)established its link
func (m *LinkMonitor) MarkConnected() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	wasOffline := m.health.Status == models.LinkOffline
	m.setStatus(models.LinkOnline, now)
	m.health.LastEventAt = now
	m.health.LastError = ""

	if wasOffline {
		m.logger.Info("Push channel connected", zap.String("transport", m.health.Transport))
	}
}

// MarkDisconnected records that the transport lost its link
func (m *LinkMonitor) MarkDisconnected(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setStatus(models.LinkOffline, m.now())
	if err != nil {
		m.health.LastError = err.Error()
	}

	m.logger.Warn("Push channel disconnected, waiting for transport to reconnect",
		zap.String("transport", m.health.Transport),
		zap.Error(err))
}

// Touch records that an event arrived
func (m *LinkMonitor) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.health.LastEventAt = now
	if m.health.Status == models.LinkStale {
		m.setStatus(models.LinkOnline, now)
		m.logger.Info("Push channel active again", zap.String("transport", m.health.Transport))
	}
}

// Health returns the current indicator state
func (m *LinkMonitor) Health() models.LinkHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health
}

// Online reports whether the link is up, stale or not
func (m *LinkMonitor) Online() bool {
	return m.Health().Status != models.LinkOffline
}

// Start runs the idle checker until ctx is cancelled
func (m *LinkMonitor) Start(ctx context.Context) {
	if m.timeout <= 0 {
		return
	}

	interval := m.timeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkIdle()
		}
	}
}

// checkIdle marks an online link stale when no event arrived within the timeout
func (m *LinkMonitor) checkIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.health.Status != models.LinkOnline || m.timeout <= 0 {
		return
	}

	now := m.now()
	silence := now.Sub(m.health.LastEventAt)
	if silence > m.timeout {
		m.setStatus(models.LinkStale, now)
		m.logger.Warn("Push channel silent past timeout",
			zap.String("transport", m.health.Transport),
			zap.Time("last_event_at", m.health.LastEventAt),
			zap.Duration("silence", silence))
	}
}

func (m *LinkMonitor) setStatus(status models.LinkStatus, at time.Time) {
	if m.health.Status != status {
		m.health.Status = status
		m.health.Since = at
	}
}
