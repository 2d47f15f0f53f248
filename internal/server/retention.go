package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner deletes stored rows older than a cutoff day.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoffDay string) (int64, error)
}

// RetentionCutoff returns the first day kept when retaining days days
// before now.
func RetentionCutoff(now time.Time, days int) string {
	return now.UTC().AddDate(0, 0, -days).Format("2006-01-02")
}

// RunRetention prunes rows older than days every interval until ctx is
// canceled. It prunes once at start.
func RunRetention(ctx context.Context, p Pruner, days int, interval time.Duration, logger *slog.Logger) error {
	if days <= 0 {
		return fmt.Errorf("retention days must be positive, got %d", days)
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	prune := func() {
		cutoff := RetentionCutoff(time.Now(), days)
		n, err := p.PruneBefore(ctx, cutoff)
		if err != nil {
			logger.Error("retention prune failed", "cutoff", cutoff, "error", err)
			return
		}
		logger.Info("retention prune", "cutoff", cutoff, "deleted", n)
	}

	cr := cron.New()
	if _, err := cr.AddFunc(fmt.Sprintf("@every %s", interval), prune); err != nil {
		return fmt.Errorf("schedule retention: %w", err)
	}

	prune()
	cr.Start()
	<-ctx.Done()
	<-cr.Stop().Done()
	return nil
}
