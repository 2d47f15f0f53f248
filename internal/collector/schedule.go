package collector

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule collects every six hours.
const DefaultSchedule = "@every 6h"

// Schedule collects once immediately and then on every tick of spec until
// ctx is canceled. Failed runs are logged and the next tick runs as usual.
// Ticks that arrive while a run is in flight are skipped.
func (c *Collector) Schedule(ctx context.Context, spec string) error {
	if spec == "" {
		spec = DefaultSchedule
	}

	cr := cron.New(cron.WithChain(cron.Recover(cronLogger{c})))
	if _, err := cr.AddFunc(spec, func() { c.tick(ctx) }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	c.tick(ctx)
	cr.Start()
	c.log.Info("collector scheduled", "schedule", spec)

	<-ctx.Done()
	<-cr.Stop().Done()
	return nil
}

func (c *Collector) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := c.Collect(ctx, 0, true)
	switch {
	case errors.Is(err, ErrBusy):
		c.log.Debug("skipping tick, collection in flight")
	case err != nil:
		c.log.Error("scheduled collection failed", "error", err)
	}
}

// cronLogger adapts the collector's slog logger to cron.Logger.
type cronLogger struct{ c *Collector }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.c.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.c.log.Error(msg, append(keysAndValues, "error", err)...)
}
