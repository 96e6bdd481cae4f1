package services

import (
	"context"
	"errors"
	"time"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/aggregates/importplan"
)

const staleMessage = "Ingestion failed: ingestion timed out"

// Watchdog fails runs left Ongoing past StaleAfter, for example by a process
// that died mid-run.
type Watchdog struct {
	plans importplan.Repository
	opts  WatchdogOptions
	m     *metrics
}

func NewWatchdog(plans importplan.Repository, opts WatchdogOptions) (*Watchdog, error) {
	if plans == nil {
		return nil, invalidConfig("plan repository is required")
	}
	opts.setDefaults()
	if opts.Interval < 0 || opts.StaleAfter < 0 {
		return nil, invalidConfig("interval and stale-after must be positive")
	}
	return &Watchdog{plans: plans, opts: opts, m: getMetrics()}, nil
}

func (w *Watchdog) Run(ctx context.Context) error {
	if ctx == nil {
		return invalidConfig("ctx is required")
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if _, err := w.ReapOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			w.opts.Logger.WithError(err).Warn("ingestion: watchdog tick failed")
		}
	}
}

// ReapOnce fails every stale run and reports how many there were.
func (w *Watchdog) ReapOnce(ctx context.Context) (int, error) {
	cutoff := w.opts.Now().Add(-w.opts.StaleAfter)
	n, err := w.plans.MarkStale(ctx, cutoff, staleMessage)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		w.m.staleReapedTotal.Add(float64(n))
		w.opts.Logger.WithField("count", n).Warn("ingestion: failed stale runs")
	}
	return n, nil
}
