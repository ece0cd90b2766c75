package timer

import (
	"errors"
	"sync"
	"time"
)

// MinInterval is the smallest interval accepted by Start.
const MinInterval = 1 * time.Second

// Timer errors.
var (
	ErrInvalidInterval = errors.New("invalid timer interval")
	ErrNoCallback      = errors.New("timer callback is nil")
)

// Periodic runs a callback every interval until cancelled.
// The zero value is ready to use.
type Periodic struct {
	mu sync.Mutex

	interval time.Duration
	fn       func()

	// timer is the pending runtime timer, nil when idle.
	timer *time.Timer

	// gen invalidates firings scheduled before the last Start/Cancel.
	gen     uint64
	running bool

	inflight sync.WaitGroup
}

// Start schedules fn to run every interval.
// If the timer is already running no second timer is created; interval and
// fn replace the current ones from the next re-arm on.
func (p *Periodic) Start(interval time.Duration, fn func()) error {
	if interval < MinInterval {
		return ErrInvalidInterval
	}
	return p.start(interval, fn)
}

func (p *Periodic) start(interval time.Duration, fn func()) error {
	if fn == nil {
		return ErrNoCallback
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.interval = interval
	p.fn = fn
	if p.running {
		return nil
	}

	p.running = true
	p.gen++
	p.scheduleLocked(p.gen)
	return nil
}

// Cancel stops future firings. It does not wait for a callback that is
// already executing.
func (p *Periodic) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked()
}

// Stop cancels the timer and waits for an in-flight callback to return.
// It must not be called from inside the callback.
func (p *Periodic) Stop() {
	p.Cancel()
	p.inflight.Wait()
}

// Running reports whether the timer is scheduled.
func (p *Periodic) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Interval returns the interval used for the next re-arm.
func (p *Periodic) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

func (p *Periodic) cancelLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.running = false
	p.gen++
}

func (p *Periodic) scheduleLocked(gen uint64) {
	p.timer = time.AfterFunc(p.interval, func() {
		p.fire(gen)
	})
}

func (p *Periodic) fire(gen uint64) {
	p.mu.Lock()
	if !p.running || gen != p.gen {
		p.mu.Unlock()
		return
	}
	fn := p.fn
	p.inflight.Add(1)
	p.mu.Unlock()

	fn()
	p.inflight.Done()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running && gen == p.gen {
		p.scheduleLocked(gen)
	}
}
