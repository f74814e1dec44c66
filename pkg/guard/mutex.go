package guard

import (
	"time"

	"github.com/tao-rt/tao/internal/clock"
	"github.com/tao-rt/tao/internal/status"
)

// Mutex states, following the classic three-state futex mutex (Drepper,
// "Futexes Are Tricky" §3): unlocked, locked-uncontended, locked-contended.
// The contended state is what lets Unlock know whether it needs to wake a
// waiter, so an uncontended lock/unlock pair never touches the kernel.
const (
	mutexUnlocked   int32 = 0
	mutexLocked     int32 = 1
	mutexContended  int32 = 2
)

// Mutex is a process-shared mutex living at a 4-byte offset inside a shared
// segment (or, just as well, inside an ordinary heap slice for
// process-private use — see package doc).
type Mutex struct {
	state cell32
}

// NewMutex binds a Mutex to the 4 bytes at offset within mem. The caller is
// responsible for zero-initializing mem (true of any freshly created
// segment, per spec §4.1) so the mutex starts unlocked.
func NewMutex(mem []byte, offset int) *Mutex {
	return &Mutex{state: newCell32(mem, offset)}
}

func (m *Mutex) Lock() {
	if m.state.cas(mutexUnlocked, mutexLocked) {
		return
	}
	for m.state.swap(mutexContended) != mutexUnlocked {
		futexWait(m.state.p, mutexContended, nil)
	}
}

func (m *Mutex) TryLock() bool {
	return m.state.cas(mutexUnlocked, mutexLocked)
}

// TimedLock blocks for at most d before giving up. d is degraded per
// clock.Degrade: very long waits become untimed blocking locks, sub-tick
// waits become TryLock.
func (m *Mutex) TimedLock(d time.Duration) status.Code {
	switch clock.Degrade(d) {
	case clock.DegradedToBlocking:
		m.Lock()
		return status.OK
	case clock.DegradedToTry:
		if m.TryLock() {
			return status.OK
		}
		return status.TIMEOUT
	default:
		return m.AbstimedLock(clock.Deadline(d))
	}
}

// AbstimedLock blocks until the mutex is acquired or deadline passes.
func (m *Mutex) AbstimedLock(deadline time.Time) status.Code {
	if m.state.cas(mutexUnlocked, mutexLocked) {
		return status.OK
	}
	for {
		remaining := clock.Remaining(deadline)
		if remaining == 0 && !deadline.IsZero() && !time.Now().Before(deadline) {
			return status.TIMEOUT
		}

		if m.state.swap(mutexContended) == mutexUnlocked {
			return status.OK
		}

		if !futexWait(m.state.p, mutexContended, timespecFromDuration(remaining)) {
			// Woke on timeout: re-check once more before giving up, since
			// the lock may have been released in the same instant.
			if m.state.cas(mutexUnlocked, mutexContended) {
				return status.OK
			}
			return status.TIMEOUT
		}
	}
}

func (m *Mutex) Unlock() {
	if m.state.add(-1) != mutexUnlocked {
		m.state.store(mutexUnlocked)
		futexWake(m.state.p, 1)
	}
}
