package guard

import (
	"time"

	"github.com/tao-rt/tao/internal/clock"
	"github.com/tao-rt/tao/internal/status"
)

// Cond is a process-shared condition variable: a monotone sequence counter
// that Wait snapshots before releasing the paired mutex, so a Signal/
// Broadcast that lands between the snapshot and the futex_wait syscall is
// never lost — the kernel compares against the live value atomically.
type Cond struct {
	seq cell32
}

// NewCond binds a Cond to the 4 bytes at offset within mem.
func NewCond(mem []byte, offset int) *Cond {
	return &Cond{seq: newCell32(mem, offset)}
}

func (c *Cond) Signal() {
	c.seq.add(1)
	futexWake(c.seq.p, 1)
}

func (c *Cond) Broadcast() {
	c.seq.add(1)
	futexWake(c.seq.p, 1<<30)
}

// Wait atomically releases m and blocks until woken, then re-acquires m
// before returning, per the generic condition-variable contract (§4.2,
// §4.3: "the wait family atomically releases and re-acquires [the mutex]").
func (c *Cond) Wait(m *Mutex) {
	s := c.seq.load()
	m.Unlock()
	futexWait(c.seq.p, s, nil)
	m.Lock()
}

// TimedWait blocks for at most d, degraded per clock.Degrade the same way
// Mutex.TimedLock is.
func (c *Cond) TimedWait(m *Mutex, d time.Duration) status.Code {
	switch clock.Degrade(d) {
	case clock.DegradedToBlocking:
		c.Wait(m)
		return status.OK
	case clock.DegradedToTry:
		return status.TIMEOUT
	default:
		return c.AbstimedWait(m, clock.Deadline(d))
	}
}

// AbstimedWait blocks until woken or deadline passes, always re-acquiring m
// before returning (even on timeout), matching §4.2/§4.5's requirement that
// timed variants leave no partial side effects: the caller always regains
// the mutex it held before calling.
func (c *Cond) AbstimedWait(m *Mutex, deadline time.Time) status.Code {
	s := c.seq.load()
	m.Unlock()
	woken := futexWait(c.seq.p, s, timespecFromDuration(clock.Remaining(deadline)))
	m.Lock()
	if woken {
		return status.OK
	}
	return status.TIMEOUT
}
