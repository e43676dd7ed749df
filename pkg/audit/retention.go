package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/sentinel/pkg/config"
)

// Pruner enforces audit retention: records older than the retention
// period are deleted, then the total count is trimmed to the cap.
type Pruner struct {
	store  Store
	cfg    config.AuditRetentionConfig
	cron   *cron.Cron
	logger *slog.Logger
}

// NewPruner creates a pruner. Start schedules it.
func NewPruner(store Store, cfg config.AuditRetentionConfig, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default().With("component", "audit.retention")
	}
	return &Pruner{store: store, cfg: cfg, cron: cron.New(), logger: logger}
}

// Prune runs one retention pass: age-based first, then count-based.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.cfg.Days > 0 {
		cutoff := time.Now().AddDate(0, 0, -p.cfg.Days)
		n, err := p.store.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return total, fmt.Errorf("age-based prune failed: %w", err)
		}
		total += n
	}

	if p.cfg.MaxRecords > 0 {
		n, err := p.store.TrimToNewest(ctx, int64(p.cfg.MaxRecords))
		if err != nil {
			return total, fmt.Errorf("count-based prune failed: %w", err)
		}
		total += n
	}

	if total > 0 {
		p.logger.Info("audit records pruned", "removed", total)
	}
	return total, nil
}

// Start schedules pruning runs on the configured cron expression. A nil
// error means the schedule was accepted and the pruner is running.
func (p *Pruner) Start() error {
	schedule := p.cfg.Schedule
	if schedule == "" {
		schedule = "0 3 * * *"
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}

	_, err := p.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := p.Prune(ctx); err != nil {
			p.logger.Error("scheduled prune failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	p.cron.Start()
	p.logger.Info("audit retention scheduled",
		"schedule", schedule, "days", p.cfg.Days, "max_records", p.cfg.MaxRecords)
	return nil
}

// Stop halts scheduled pruning, waiting for an in-flight run.
func (p *Pruner) Stop() {
	<-p.cron.Stop().Done()
}
