package model

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mash-protocol/meshmodel/pkg/timer"
)

// Publication drives periodic publication for a server model.
//
// The publish callback runs under the Publication lock, so once SetPeriod(0)
// or Stop returns no further publication happens.
type Publication struct {
	mu      sync.Mutex
	period  time.Duration
	publish func()
	logger  *slog.Logger
	timer   timer.Periodic
}

// NewPublication returns an idle Publication calling publish on each tick.
func NewPublication(publish func(), logger *slog.Logger) *Publication {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publication{publish: publish, logger: logger}
}

// SetPeriod changes the publication period. 0 cancels publication. Periods
// below one second are not supported; they are logged and the current
// schedule is kept. A new period on a running schedule applies from the
// next tick.
func (p *Publication) SetPeriod(period time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if period == 0 {
		p.period = 0
		p.timer.Cancel()
		p.logger.Debug("publication disabled")
		return
	}
	if period < timer.MinInterval {
		p.logger.Warn("publication period below one second ignored", "period", period)
		return
	}

	p.period = period
	if err := p.timer.Start(period, p.tick); err != nil {
		p.logger.Warn("publication timer not started", "period", period, "error", err)
		return
	}
	p.logger.Debug("publication scheduled", "period", period)
}

// Period returns the active period, 0 when disabled.
func (p *Publication) Period() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.period
}

// Stop disables publication and waits for a running tick to finish.
func (p *Publication) Stop() {
	p.mu.Lock()
	p.period = 0
	p.timer.Cancel()
	p.mu.Unlock()

	p.timer.Stop()
}

func (p *Publication) tick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.period == 0 {
		return
	}
	p.publish()
}
