// Package retention prunes old usage records and hosts the gateway's cron
// scheduler.
//
// A retention period of zero days keeps usage forever. The prune schedule is
// a standard cron expression evaluated in UTC, "0 3 * * *" by default.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Ledger is the pruning surface of the usage ledger.
type Ledger interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Pruner deletes usage records older than the retention period.
type Pruner struct {
	ledger        Ledger
	retentionDays int
	now           func() time.Time
	logger        *slog.Logger
}

// NewPruner creates a pruner for ledger.
func NewPruner(ledger Ledger, retentionDays int) *Pruner {
	return &Pruner{
		ledger:        ledger,
		retentionDays: retentionDays,
		now:           time.Now,
		logger:        slog.Default().With("component", "usage.retention"),
	}
}

// Cutoff returns the instant before which records are pruned.
func (p *Pruner) Cutoff() time.Time {
	return p.now().AddDate(0, 0, -p.retentionDays)
}

// Prune deletes expired records and returns how many were removed.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.retentionDays <= 0 {
		p.logger.Debug("retention disabled, nothing pruned")
		return 0, nil
	}

	cutoff := p.Cutoff()
	deleted, err := p.ledger.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune usage older than %d days: %w", p.retentionDays, err)
	}

	if deleted > 0 {
		p.logger.Info("pruned usage records",
			"deleted_count", deleted,
			"retention_days", p.retentionDays,
			"cutoff", cutoff,
		)
	}
	return deleted, nil
}

// Schedule registers the pruner on s under the "usage-prune" job.
func (p *Pruner) Schedule(s *Scheduler, spec string) error {
	return s.AddJob("usage-prune", spec, func(ctx context.Context) {
		if _, err := p.Prune(ctx); err != nil {
			p.logger.Error("scheduled pruning failed", "error", err)
		}
	})
}
