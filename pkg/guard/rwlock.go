package guard

import (
	"time"

	"github.com/tao-rt/tao/internal/clock"
	"github.com/tao-rt/tao/internal/status"
)

// RWLock is the generic process-shared many-readers/one-writer primitive of
// component B — for guarding arbitrary shared state that is not part of the
// shared-object hierarchy. (The r/w-locked object, pkg/object's RWLocked,
// implements its own copy of this protocol directly against a Header's
// embedded mutex and two conditions of its own per spec §4.4, rather than layering on top
// of this type, since it must interleave with the header's generic
// lock/wait surface — see pkg/object/rwlocked.go.)
//
// The algorithm is the same writer-preference protocol as §4.4: a reader
// blocks while a writer is pending or active; a writer blocks until no
// reader or writer is active, ahead of any later-arriving reader.
type RWLock struct {
	mu       *Mutex
	readable *Cond
	writable *Cond
	writers  cell32
	users    cell32
}

// RWLockSize is the byte footprint an RWLock reserves inside a layout: one
// Mutex cell, two Cond cells, two counters.
const RWLockSize = 5 * Size32

// NewRWLock binds an RWLock to 5 consecutive 4-byte cells starting at
// offset: mutex, reader-cond, writer-cond, writers, users.
func NewRWLock(mem []byte, offset int) *RWLock {
	return &RWLock{
		mu:       NewMutex(mem, offset),
		readable: NewCond(mem, offset+Size32),
		writable: NewCond(mem, offset+2*Size32),
		writers:  newCell32(mem, offset+3*Size32),
		users:    newCell32(mem, offset+4*Size32),
	}
}

func (l *RWLock) RLock() {
	l.mu.Lock()
	for l.writers.load() > 0 || l.users.load() == -1 {
		l.readable.Wait(l.mu)
	}
	l.users.add(1)
	l.mu.Unlock()
}

func (l *RWLock) TryRLock() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writers.load() > 0 || l.users.load() == -1 {
		return false
	}
	l.users.add(1)
	return true
}

func (l *RWLock) AbstimedRLock(deadline time.Time) status.Code {
	if code := l.mu.AbstimedLock(deadline); code != status.OK {
		return code
	}
	for l.writers.load() > 0 || l.users.load() == -1 {
		if code := l.readable.AbstimedWait(l.mu, deadline); code != status.OK {
			l.mu.Unlock()
			return status.TIMEOUT
		}
	}
	l.users.add(1)
	l.mu.Unlock()
	return status.OK
}

func (l *RWLock) TimedRLock(d time.Duration) status.Code {
	return l.AbstimedRLock(clock.Deadline(d))
}

func (l *RWLock) WLock() {
	l.mu.Lock()
	l.writers.add(1)
	for l.users.load() != 0 {
		l.writable.Wait(l.mu)
	}
	l.writers.add(-1)
	l.users.store(-1)
	l.mu.Unlock()
}

func (l *RWLock) TryWLock() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.users.load() != 0 {
		return false
	}
	l.users.store(-1)
	return true
}

func (l *RWLock) AbstimedWLock(deadline time.Time) status.Code {
	if code := l.mu.AbstimedLock(deadline); code != status.OK {
		return code
	}
	l.writers.add(1)
	for l.users.load() != 0 {
		if code := l.writable.AbstimedWait(l.mu, deadline); code != status.OK {
			// Preserve the writers invariant on timeout (§4.4).
			l.writers.add(-1)
			l.mu.Unlock()
			return status.TIMEOUT
		}
	}
	l.writers.add(-1)
	l.users.store(-1)
	l.mu.Unlock()
	return status.OK
}

func (l *RWLock) TimedWLock(d time.Duration) status.Code {
	return l.AbstimedWLock(clock.Deadline(d))
}

// Unlock releases either a read or a write hold; the lock tracks which via
// the sign of users.
func (l *RWLock) Unlock() status.Code {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.users.load() == -1:
		l.users.store(0)
		l.readable.Broadcast()
		l.writable.Broadcast()
	case l.users.load() > 0:
		if l.users.add(-1) == 0 && l.writers.load() > 0 {
			l.writable.Signal()
		}
	default:
		return status.New("guard.RWLock.Unlock", status.KindCorrupted, nil)
	}
	return status.OK
}
