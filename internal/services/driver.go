package services

import (
	"context"
	"time"
)

// Driver runs trading cycles on a fixed interval. Cycles are strictly
// sequential: a cycle that outlasts the interval delays the next tick
// rather than overlapping it.
type Driver struct {
	trader   *Trader
	interval time.Duration
}

func NewDriver(trader *Trader, interval time.Duration) *Driver {
	return &Driver{trader: trader, interval: interval}
}

// Run executes cycles until the context is cancelled. The first cycle runs
// immediately rather than waiting one full interval.
func (d *Driver) Run(ctx context.Context) {
	log.Infof("cycle driver started, interval=%s", d.interval)
	d.trader.RunCycle(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("cycle driver stopped")
			return
		case <-ticker.C:
			d.trader.RunCycle(ctx)
		}
	}
}
