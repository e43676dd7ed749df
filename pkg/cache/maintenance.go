package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Maintainer runs scheduled cache maintenance: purging expired entries
// from memory and the persistent store on a cron schedule.
type Maintainer struct {
	cache    *DecisionCache
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
	mu       sync.Mutex
	running  bool
}

// NewMaintainer creates a maintainer for the cache. The schedule is a
// standard cron expression; an empty schedule disables maintenance.
func NewMaintainer(c *DecisionCache, schedule string) *Maintainer {
	return &Maintainer{
		cache:    c,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "cache.maintainer"),
	}
}

// Start begins scheduled maintenance. It returns immediately; purge runs
// happen on the cron goroutine until the context is cancelled or Stop is
// called.
func (m *Maintainer) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.schedule == "" {
		m.logger.Info("maintenance schedule not configured, skipping")
		return nil
	}
	if m.running {
		return fmt.Errorf("maintainer already running")
	}

	if _, err := cron.ParseStandard(m.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", m.schedule, err)
	}

	if _, err := m.cron.AddFunc(m.schedule, func() {
		purged := m.cache.PurgeExpired(ctx)
		if purged > 0 {
			m.logger.Info("scheduled purge completed", "purged", purged)
		} else {
			m.logger.Debug("scheduled purge completed, nothing expired")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}

	m.cron.Start()
	m.running = true
	m.logger.Info("cache maintenance started", "schedule", m.schedule)

	go func() {
		<-ctx.Done()
		m.Stop()
	}()

	return nil
}

// Stop stops scheduled maintenance and waits for a running purge to finish.
func (m *Maintainer) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	<-m.cron.Stop().Done()
	m.running = false
	m.logger.Info("cache maintenance stopped")
}
