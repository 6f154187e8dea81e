package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cptspacemanspiff/eco-monitor/internal/metrics"
)

// DeleteOlderThan deletes events recorded before the given unix millisecond
// timestamp, along with subscriptions that ended before it. Returns the total
// number of deleted rows.
func (d *DB) DeleteOlderThan(before int64) (int64, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}

	var total int64
	tables := []struct {
		name  string
		where string
	}{
		{"events", "timestamp < ?"},
		{"subscriptions", "end_time != 0 AND end_time < ?"},
	}

	// Table names and predicates come from the fixed slice above; only the
	// cutoff is a bound parameter.
	for _, t := range tables {
		res, err := tx.Exec(
			fmt.Sprintf("DELETE FROM %s WHERE %s", t.name, t.where),
			before,
		)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("delete from %s: %w", t.name, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return total, nil
}

// RunRetention prunes rows older than retention every interval until ctx is
// done. A zero retention keeps everything.
func (d *DB) RunRetention(ctx context.Context, retention, interval time.Duration, logger *slog.Logger) {
	if retention <= 0 {
		return
	}
	prune := func() {
		cutoff := time.Now().Add(-retention).UnixMilli()
		n, err := d.DeleteOlderThan(cutoff)
		if err != nil {
			logger.Error("journal cleanup", "err", err)
			return
		}
		metrics.JournalPruned.Add(float64(n))
		if n > 0 {
			logger.Info("journal cleanup", "deleted", n, "cutoff", cutoff)
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
