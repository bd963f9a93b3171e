package service

import (
	"context"
	"log/slog"
	"time"
)

// Poller drives the aggregator's periodic full resync. Singleflight inside
// Refresh keeps an overdue tick from stacking on a slow in-flight one.
type Poller struct {
	agg      *Aggregator
	interval time.Duration
	logger   *slog.Logger

	stop chan struct{}
	done chan struct{}
}

func NewPoller(agg *Aggregator, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		agg:      agg,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start kicks one immediate refresh and then resyncs on the interval until
// Stop is called.
func (p *Poller) Start() {
	go func() {
		defer close(p.done)

		if err := p.agg.Refresh(context.Background()); err != nil {
			p.logger.Warn("poller: initial refresh failed", "err", err)
		}

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				if err := p.agg.Refresh(context.Background()); err != nil {
					p.logger.Warn("poller: refresh failed, feed may be stale", "err", err)
				}
			}
		}
	}()
}

// Stop halts the loop and waits for it to exit.
func (p *Poller) Stop() {
	close(p.stop)
	<-p.done
}
