package guard

import (
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tao-rt/tao/internal/clock"
	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/pkg/shm"
)

// Sem is the counting semaphore primitive of component B: Post/Wait/TryWait
// /TimedWait/AbstimedWait/GetValue over a single 4-byte counter.
type Sem struct {
	count cell32
}

// SemSize is the byte footprint a Sem reserves inside a layout.
const SemSize = Size32

// NewSem binds an anonymous semaphore to the 4 bytes at offset within mem,
// initializing it to initial. Anonymous semaphores live inside an existing
// shared-object segment, attached implicitly by whoever maps that segment —
// this mirrors POSIX sem_init, as opposed to the named flavor below, which
// mirrors sem_open.
func NewSem(mem []byte, offset int, initial int32) *Sem {
	s := &Sem{count: newCell32(mem, offset)}
	s.count.store(initial)
	return s
}

// BindSem binds to a semaphore cell that has already been initialized by
// its creator (e.g. after Attach).
func BindSem(mem []byte, offset int) *Sem {
	return &Sem{count: newCell32(mem, offset)}
}

func (s *Sem) Post() {
	s.count.add(1)
	futexWake(s.count.p, 1)
}

func (s *Sem) Wait() {
	for {
		v := s.count.load()
		if v > 0 && s.count.cas(v, v-1) {
			return
		}
		futexWait(s.count.p, v, nil)
	}
}

func (s *Sem) TryWait() bool {
	v := s.count.load()
	return v > 0 && s.count.cas(v, v-1)
}

func (s *Sem) TimedWait(d time.Duration) status.Code {
	switch clock.Degrade(d) {
	case clock.DegradedToBlocking:
		s.Wait()
		return status.OK
	case clock.DegradedToTry:
		if s.TryWait() {
			return status.OK
		}
		return status.TIMEOUT
	default:
		return s.AbstimedWait(clock.Deadline(d))
	}
}

func (s *Sem) AbstimedWait(deadline time.Time) status.Code {
	for {
		v := s.count.load()
		if v > 0 && s.count.cas(v, v-1) {
			return status.OK
		}
		remaining := clock.Remaining(deadline)
		if remaining == 0 {
			return status.TIMEOUT
		}
		futexWait(s.count.p, v, timespecFromDuration(remaining))
	}
}

func (s *Sem) GetValue() int32 {
	return s.count.load()
}

// --- named semaphores -------------------------------------------------

// namedSemRegistry backs NamedSem: a process-wide table of small shm
// segments keyed by name, so unrelated processes that Open the same name
// rendezvous on the same kernel segment the way POSIX sem_open(3) does with
// its /dev/shm-backed namespace.
var (
	namedSemMu sync.Mutex
	namedSems  = map[string]*namedSemHandle{}
)

type namedSemHandle struct {
	seg    *shm.Segment
	sem    *Sem
	opened int
}

// NamedSem is a semaphore discoverable by name across processes that did
// not otherwise share a segment.
type NamedSem struct {
	name string
	sem  *Sem
}

// key derives a stable, process-independent key for a named semaphore. This
// stands in for the filesystem-backed identity POSIX sem_open gets for
// free from /dev/shm; here, any process calling OpenNamedSem(name, ...)
// derives the same shmget key from the name.
func key(name string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte("tao-named-sem:" + name))
	// Keep the key in the positive int range SysvShmGet expects.
	return int(h.Sum32() & 0x7fffffff)
}

// OpenNamedSem attaches to (creating if necessary) the named semaphore,
// initializing it to initial only on first creation.
func OpenNamedSem(name string, initial int32) (*NamedSem, status.Code) {
	namedSemMu.Lock()
	defer namedSemMu.Unlock()

	if h, ok := namedSems[name]; ok {
		h.opened++
		return &NamedSem{name: name, sem: h.sem}, status.OK
	}

	k := key(name)
	created := true
	id, err := unix.SysvShmGet(k, SemSize, int(shm.DefaultPerms)|unix.IPC_CREAT|unix.IPC_EXCL)
	if err != nil {
		// Segment already exists under this key: attach to it instead.
		id, err = unix.SysvShmGet(k, SemSize, int(shm.DefaultPerms))
		if err != nil {
			return nil, status.New("guard.OpenNamedSem", status.KindNotFound, err)
		}
		created = false
	}

	seg, code := shm.Attach(int32(id))
	if code != status.OK {
		return nil, code
	}

	var sem *Sem
	if created {
		sem = NewSem(seg.Bytes(), 0, initial)
	} else {
		sem = BindSem(seg.Bytes(), 0)
	}

	namedSems[name] = &namedSemHandle{seg: seg, sem: sem, opened: 1}
	return &NamedSem{name: name, sem: sem}, status.OK
}

// Close detaches this process's handle to a named semaphore; the
// underlying segment is destroyed once every opener has closed.
func (n *NamedSem) Close() status.Code {
	namedSemMu.Lock()
	defer namedSemMu.Unlock()

	h, ok := namedSems[n.name]
	if !ok {
		return status.New("guard.NamedSem.Close", status.KindNotFound, nil)
	}
	h.opened--
	if h.opened > 0 {
		return status.OK
	}

	shmid := h.seg.Shmid()
	code := h.seg.Detach()
	if code == status.OK {
		code = shm.Destroy(shmid)
	}
	delete(namedSems, n.name)
	return code
}

func (n *NamedSem) Post()                                 { n.sem.Post() }
func (n *NamedSem) Wait()                                 { n.sem.Wait() }
func (n *NamedSem) TryWait() bool                         { return n.sem.TryWait() }
func (n *NamedSem) TimedWait(d time.Duration) status.Code { return n.sem.TimedWait(d) }
func (n *NamedSem) GetValue() int32                       { return n.sem.GetValue() }
