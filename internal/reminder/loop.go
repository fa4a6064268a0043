package reminder

import (
	"context"
	"time"
)

const DefaultInterval = 15 * time.Second

// Run evaluates once immediately and then on every tick until ctx is done.
// Ticks missed while a pass is running are dropped, not replayed.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	t.log.WithField("interval", interval).Info("reminder loop started")
	t.Evaluate(ctx, t.now())
	for {
		select {
		case <-ctx.Done():
			t.log.Info("reminder loop stopped")
			return
		case <-ticker.C:
			t.Evaluate(ctx, t.now())
		}
	}
}
