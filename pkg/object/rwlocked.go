package object

import (
	"time"

	"github.com/tao-rt/tao/internal/clock"
	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/pkg/guard"
	"github.com/tao-rt/tao/pkg/shm"
)

// RWLocked extra fields, placed immediately after Header. Unlike
// pkg/guard.RWLock, this does not reuse the base mutex/condition for r/w
// signalling — the header's Cond stays available for generic use (§4.4)
// and the r/w protocol gets two dedicated conditions of its own.
const (
	offReaderCond = HeaderSize + 0
	offWriterCond = HeaderSize + 4
	offWriters    = HeaderSize + 8
	offUsers      = HeaderSize + 12

	// RWLockedHeaderSize is the fixed prefix of every r/w-locked object,
	// padded so subclass payloads (pkg/array's element buffer, in
	// particular) start on a 64-byte boundary.
	RWLockedHeaderSize = 128
)

// RWLocked is component E: a Header plus the writer-preference
// many-readers/one-writer protocol of spec §4.4.
type RWLocked struct {
	*Header
	readerCond *guard.Cond
	writerCond *guard.Cond
	writers    guard.Atomic32
	users      guard.Atomic32
}

// NewRWLocked wraps an already-bound Header whose backing memory is at
// least RWLockedHeaderSize bytes.
func NewRWLocked(h *Header, mem []byte) *RWLocked {
	return &RWLocked{
		Header:     h,
		readerCond: guard.NewCond(mem, offReaderCond),
		writerCond: guard.NewCond(mem, offWriterCond),
		writers:    guard.NewAtomic32(mem, offWriters),
		users:      guard.NewAtomic32(mem, offUsers),
	}
}

// CreateRWLocked allocates a segment of totalSize bytes (must be at least
// RWLockedHeaderSize, typically RWLockedHeaderSize + a subclass payload)
// and initializes both the Header and the r/w-lock counters.
func CreateRWLocked(family uint32, totalSize int, flags uint32) (*RWLocked, *shm.Segment, status.Code) {
	h, seg, code := CreateObject(family, totalSize, flags)
	if code != status.OK {
		return nil, nil, code
	}
	// writers and users both start at zero; CreateObject zero-fills.
	return NewRWLocked(h, seg.Bytes()), seg, status.OK
}

// AttachRWLocked maps an existing r/w-locked object, verifying it descends
// from wantFamily (typically FamilyRWLocked).
func AttachRWLocked(shmid int32, wantFamily uint32) (*RWLocked, *shm.Segment, status.Code) {
	h, seg, code := AttachObject(shmid, wantFamily)
	if code != status.OK {
		return nil, nil, code
	}
	if seg.Size() < RWLockedHeaderSize {
		seg.Detach()
		return nil, nil, status.New("object.AttachRWLocked", status.KindBadSize, nil)
	}
	return NewRWLocked(h, seg.Bytes()), seg, status.OK
}

func (l *RWLocked) checkCorrupted() status.Code {
	if u := l.users.Load(); u < -1 {
		return status.New("object.RWLocked", status.KindCorrupted, nil)
	}
	return status.OK
}

func (l *RWLocked) RLock() status.Code {
	if code := l.checkCorrupted(); code != status.OK {
		return code
	}
	l.Mutex.Lock()
	for l.writers.Load() > 0 || l.users.Load() == -1 {
		l.readerCond.Wait(l.Mutex)
	}
	l.users.Add(1)
	l.Mutex.Unlock()
	return status.OK
}

func (l *RWLocked) TryRLock() status.Code {
	if code := l.checkCorrupted(); code != status.OK {
		return code
	}
	l.Mutex.Lock()
	defer l.Mutex.Unlock()
	if l.writers.Load() > 0 || l.users.Load() == -1 {
		return status.TIMEOUT
	}
	l.users.Add(1)
	return status.OK
}

func (l *RWLocked) AbstimedRLock(deadline time.Time) status.Code {
	if code := l.checkCorrupted(); code != status.OK {
		return code
	}
	if code := l.Mutex.AbstimedLock(deadline); code != status.OK {
		return code
	}
	for l.writers.Load() > 0 || l.users.Load() == -1 {
		if code := l.readerCond.AbstimedWait(l.Mutex, deadline); code != status.OK {
			l.Mutex.Unlock()
			return status.TIMEOUT
		}
	}
	l.users.Add(1)
	l.Mutex.Unlock()
	return status.OK
}

func (l *RWLocked) TimedRLock(d time.Duration) status.Code {
	switch clock.Degrade(d) {
	case clock.DegradedToBlocking:
		return l.RLock()
	case clock.DegradedToTry:
		return l.TryRLock()
	default:
		return l.AbstimedRLock(clock.Deadline(d))
	}
}

func (l *RWLocked) WLock() status.Code {
	if code := l.checkCorrupted(); code != status.OK {
		return code
	}
	l.Mutex.Lock()
	l.writers.Add(1)
	for l.users.Load() != 0 {
		l.writerCond.Wait(l.Mutex)
	}
	l.writers.Add(-1)
	l.users.Store(-1)
	l.Mutex.Unlock()
	return status.OK
}

func (l *RWLocked) TryWLock() status.Code {
	if code := l.checkCorrupted(); code != status.OK {
		return code
	}
	l.Mutex.Lock()
	defer l.Mutex.Unlock()
	if l.users.Load() != 0 {
		return status.TIMEOUT
	}
	l.users.Store(-1)
	return status.OK
}

func (l *RWLocked) AbstimedWLock(deadline time.Time) status.Code {
	if code := l.checkCorrupted(); code != status.OK {
		return code
	}
	if code := l.Mutex.AbstimedLock(deadline); code != status.OK {
		return code
	}
	l.writers.Add(1)
	for l.users.Load() != 0 {
		if code := l.writerCond.AbstimedWait(l.Mutex, deadline); code != status.OK {
			// Preserve the writers invariant on timeout (§4.4).
			l.writers.Add(-1)
			l.Mutex.Unlock()
			return status.TIMEOUT
		}
	}
	l.writers.Add(-1)
	l.users.Store(-1)
	l.Mutex.Unlock()
	return status.OK
}

func (l *RWLocked) TimedWLock(d time.Duration) status.Code {
	switch clock.Degrade(d) {
	case clock.DegradedToBlocking:
		return l.WLock()
	case clock.DegradedToTry:
		return l.TryWLock()
	default:
		return l.AbstimedWLock(clock.Deadline(d))
	}
}

// RWUnlock releases either a read or a write hold; which is determined by
// the sign of users. The only fatal outcome is a corrupted counter, left
// untouched (§4.4).
func (l *RWLocked) RWUnlock() status.Code {
	l.Mutex.Lock()
	defer l.Mutex.Unlock()

	switch {
	case l.users.Load() == -1:
		l.users.Store(0)
		l.readerCond.Broadcast()
		l.writerCond.Broadcast()
	case l.users.Load() > 0:
		if l.users.Add(-1) == 0 && l.writers.Load() > 0 {
			l.writerCond.Signal()
		}
	default:
		return status.New("object.RWLocked.RWUnlock", status.KindCorrupted, nil)
	}
	return status.OK
}

// Users and Writers expose the raw counters; they are read without the
// mutex, matching the getter-never-blocks
// texture of size/type/shmid.
func (l *RWLocked) Users() int32   { return l.users.Load() }
func (l *RWLocked) Writers() int32 { return l.writers.Load() }
