package object

import (
	"encoding/binary"
	"time"

	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/pkg/guard"
	"github.com/tao-rt/tao/pkg/shm"
)

// Header layout (spec §6): "u32 type; u32 size_lo; ...; total 40 bytes
// incl. mutex and cond and shmid on Linux/glibc; pad to 64 bytes for
// alignment." A pthread mutex/cond pair is ~40-48 bytes on glibc; this
// port's futex-based guard.Mutex/guard.Cond are 4 bytes each, so the same
// 64-byte pad covers type, size, shmid, flags, mutex and cond with room to
// spare for subclasses that want to round up further.
const (
	offType   = 0
	offSize   = 8
	offShmid  = 16
	offFlags  = 20
	offMutex  = 24
	offCond   = 28
	HeaderSize = 64
)

// Header is component D: the fixed prefix every shared object starts with.
// Size, Type and Shmid are written once by the creator and never change;
// Lock/Cond delegate to the embedded process-shared guards.
type Header struct {
	mem   []byte
	Mutex *guard.Mutex
	Cond  *guard.Cond
}

// InitHeader writes a fresh header into mem (which must be at least
// HeaderSize bytes, normally a whole freshly created segment) and returns a
// bound Header. Called exactly once, by the creator.
func InitHeader(mem []byte, family uint32, size int64, shmid int32, flags uint32) *Header {
	binary.LittleEndian.PutUint32(mem[offType:], Type(family))
	binary.LittleEndian.PutUint64(mem[offSize:], uint64(size))
	binary.LittleEndian.PutUint32(mem[offShmid:], uint32(shmid))
	binary.LittleEndian.PutUint32(mem[offFlags:], flags)
	return &Header{
		mem:   mem,
		Mutex: guard.NewMutex(mem, offMutex),
		Cond:  guard.NewCond(mem, offCond),
	}
}

// BindHeader binds to a header already written by its creator, as Attach
// does after validating the type tag.
func BindHeader(mem []byte) *Header {
	return &Header{
		mem:   mem,
		Mutex: guard.NewMutex(mem, offMutex),
		Cond:  guard.NewCond(mem, offCond),
	}
}

func (h *Header) raw() []byte { return h.mem }

func (h *Header) Type() uint32   { return binary.LittleEndian.Uint32(h.mem[offType:]) }
func (h *Header) Family() uint32 { return h.Type() & 0xff }
func (h *Header) Size() int64    { return int64(binary.LittleEndian.Uint64(h.mem[offSize:])) }
func (h *Header) Shmid() int32   { return int32(binary.LittleEndian.Uint32(h.mem[offShmid:])) }
func (h *Header) Flags() uint32  { return binary.LittleEndian.Uint32(h.mem[offFlags:]) }
func (h *Header) Persistent() bool { return h.Flags()&shm.Persistent != 0 }

// Generic lock family, delegating to the embedded mutex (§4.3).
func (h *Header) Lock()                                       { h.Mutex.Lock() }
func (h *Header) TryLock() bool                                { return h.Mutex.TryLock() }
func (h *Header) TimedLock(d time.Duration) status.Code        { return h.Mutex.TimedLock(d) }
func (h *Header) AbstimedLock(deadline time.Time) status.Code  { return h.Mutex.AbstimedLock(deadline) }
func (h *Header) Unlock()                                      { h.Mutex.Unlock() }

// Generic condition family, delegating to the embedded condition (§4.3);
// the caller must hold Mutex around Wait/Signal interactions.
func (h *Header) Signal()    { h.Cond.Signal() }
func (h *Header) Broadcast() { h.Cond.Broadcast() }
func (h *Header) Wait()      { h.Cond.Wait(h.Mutex) }
func (h *Header) TimedWait(d time.Duration) status.Code {
	return h.Cond.TimedWait(h.Mutex, d)
}
func (h *Header) AbstimedWait(deadline time.Time) status.Code {
	return h.Cond.AbstimedWait(h.Mutex, deadline)
}

// CreateObject allocates a segment of totalSize bytes and writes a fresh
// header of the given family into it (§4.3 step 1-3). Callers that need
// extra fields beyond HeaderSize (RWLocked, Remote, and the subclasses on
// top of them) pass the subclass's total footprint as totalSize and lay
// their own fields out past HeaderSize themselves.
func CreateObject(family uint32, totalSize int, flags uint32) (*Header, *shm.Segment, status.Code) {
	if totalSize < HeaderSize {
		return nil, nil, status.New("object.CreateObject", status.KindBadSize, nil)
	}
	seg, code := shm.Create(totalSize, shm.DefaultPerms)
	if code != status.OK {
		return nil, nil, code
	}
	h := InitHeader(seg.Bytes(), family, int64(totalSize), seg.Shmid(), flags)
	return h, seg, status.OK
}

// AttachObject maps an existing segment and verifies its header (§4.3
// attach): magic must match, and the family must be a recognized
// descendant of wantFamily.
func AttachObject(shmid int32, wantFamily uint32) (*Header, *shm.Segment, status.Code) {
	seg, code := shm.Attach(shmid)
	if code != status.OK {
		return nil, nil, code
	}
	if seg.Size() < HeaderSize {
		seg.Detach()
		return nil, nil, status.New("object.AttachObject", status.KindBadSize, nil)
	}
	h := BindHeader(seg.Bytes())
	if _, code := CheckTag(h.Type(), wantFamily); code != status.OK {
		seg.Detach()
		return nil, nil, code
	}
	return h, seg, status.OK
}

// DetachObject unmaps seg; the base mutex must not be held (§4.3: "calling
// detach while holding the mutex is undefined"). If the object was created
// without the persistent flag, this also issues the kernel-level destroy —
// safe to call from every detaching process since IPC_RMID only takes
// effect once the last attachment actually drops (pkg/shm.Destroy).
func DetachObject(h *Header, seg *shm.Segment) status.Code {
	persistent := h.Persistent()
	code := seg.Detach()
	if code != status.OK {
		return code
	}
	if !persistent {
		_ = shm.Destroy(seg.Shmid())
	}
	return status.OK
}
