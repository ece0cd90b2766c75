package model

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mash-protocol/meshmodel/pkg/timer"
)

// TransactionTimeout is how long a (tid, source, destination) triple is
// remembered for duplicate detection.
const TransactionTimeout = 6 * time.Second

// Transactions tracks the open transaction of a server model.
type Transactions struct {
	mu      sync.Mutex
	timeout time.Duration

	open bool
	tid  uint8
	src  uint16
	dst  Address

	// seq identifies the current record so a stale expiry cannot clear a
	// newer one.
	seq   uint64
	timer timer.Periodic

	logger *slog.Logger
}

// NewTransactions returns a tracker with the given window. Windows below
// timer.MinInterval are raised to it. A nil logger uses slog.Default().
func NewTransactions(timeout time.Duration, logger *slog.Logger) *Transactions {
	if timeout < timer.MinInterval {
		timeout = timer.MinInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transactions{timeout: timeout, logger: logger}
}

// Observe reports whether (tid, src, dst) repeats the open transaction.
// A new triple replaces the record and restarts the window; a repeat leaves
// the window running.
func (t *Transactions) Observe(tid uint8, src uint16, dst Address) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.open && t.tid == tid && t.src == src && t.dst == dst {
		return true
	}

	t.open = true
	t.tid, t.src, t.dst = tid, src, dst
	t.seq++
	seq := t.seq

	t.timer.Cancel()
	if err := t.timer.Start(t.timeout, func() { t.expire(seq) }); err != nil {
		// Without an expiry the record would suppress this triple forever.
		t.logger.Warn("transaction window not started", "timeout", t.timeout, "error", err)
		t.open = false
	}
	return false
}

// Open reports whether a transaction window is open.
func (t *Transactions) Open() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

// Stop closes the window and releases the timer.
func (t *Transactions) Stop() {
	t.mu.Lock()
	t.open = false
	t.seq++
	t.timer.Cancel()
	t.mu.Unlock()

	t.timer.Stop()
}

func (t *Transactions) expire(seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seq != t.seq {
		return
	}
	t.open = false
	t.timer.Cancel()
}
