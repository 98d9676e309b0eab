package scheduler

import (
	"sync"
	"time"
)

// Timer calls fire after each period and re-arms itself with the period fire
// returns. Reset replaces the schedule: the old timer is stopped before the
// new one is armed, and a callback from the old schedule that is still
// running will not re-arm.
type Timer struct {
	fire func() time.Duration

	mu     sync.Mutex
	t      *time.Timer
	seq    uint64
	period time.Duration
	fires  uint64
	closed bool
}

func NewTimer(fire func() time.Duration) *Timer {
	return &Timer{fire: fire}
}

// Reset stops any pending callback and arms a new one d from now.
func (t *Timer) Reset(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if t.t != nil {
		t.t.Stop()
	}
	t.armLocked(d)
}

// Stop cancels the schedule permanently.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.seq++
	if t.t != nil {
		t.t.Stop()
	}
}

// Period is the delay of the currently armed callback.
func (t *Timer) Period() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.period
}

// Fires counts completed callbacks.
func (t *Timer) Fires() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fires
}

func (t *Timer) armLocked(d time.Duration) {
	if d <= 0 {
		d = time.Millisecond
	}
	t.seq++
	seq := t.seq
	t.period = d
	t.t = time.AfterFunc(d, func() { t.run(seq) })
}

func (t *Timer) run(seq uint64) {
	next := t.fire()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.fires++
	if t.closed || seq != t.seq {
		return
	}
	t.armLocked(next)
}
