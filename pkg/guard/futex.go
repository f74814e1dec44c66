// Package guard implements the four process-shared concurrency primitives
// component B of the TAO spec calls for — mutex, condition variable, r/w
// lock, counting semaphore — each with lock/unlock, try, relative-timeout
// and absolute-timeout variants.
//
// Every primitive here operates directly on 4-byte (int32) cells inside a
// []byte handed to it, so it works equally well
// whether that []byte came from a plain heap allocation (process-private)
// or from a shm.Segment (process-shared): the underlying mechanism is the
// Linux futex syscall, which only cares about the physical page backing the
// address, not which process mapped it — exactly the property §4.2's
// "cross-process sharing is enabled at initialization" needs. There is no
// separate "is-shared" flag to carry at runtime, the way e.g. pthread
// attributes require: futex-based synchronization is shared by
// construction once the backing memory is shared.
package guard

import (
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	futexWaitOp = 0
	futexWakeOp = 1
)

// futexWait blocks while *addr == expected, waking early if another thread
// calls futexWake on addr, or timeout expires (nil means block forever).
// Returns true if it was woken (or the value had already changed), false on
// timeout.
func futexWait(addr *int32, expected int32, timeout *unix.Timespec) bool {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWaitOp,
		uintptr(expected),
		uintptr(unsafe.Pointer(timeout)),
		0, 0,
	)
	return errno != unix.ETIMEDOUT
}

func futexWake(addr *int32, n int32) {
	unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWakeOp,
		uintptr(n),
		0, 0, 0,
	)
}

func timespecFromDuration(d time.Duration) *unix.Timespec {
	if d < 0 {
		d = 0
	}
	ts := unix.NsecToTimespec(d.Nanoseconds())
	return &ts
}

// cell32 is the load/store/cas surface every guard primitive is built from.
// It is a thin wrapper so the rest of the package reads as plain atomics
// regardless of where the backing bytes came from.
type cell32 struct {
	p *int32
}

func newCell32(mem []byte, offset int) cell32 {
	if offset+4 > len(mem) {
		panic("guard: cell32 offset out of range")
	}
	return cell32{p: (*int32)(unsafe.Pointer(&mem[offset]))}
}

func (c cell32) load() int32              { return atomic.LoadInt32(c.p) }
func (c cell32) store(v int32)            { atomic.StoreInt32(c.p, v) }
func (c cell32) add(delta int32) int32    { return atomic.AddInt32(c.p, delta) }
func (c cell32) swap(v int32) int32       { return atomic.SwapInt32(c.p, v) }
func (c cell32) cas(old, new int32) bool  { return atomic.CompareAndSwapInt32(c.p, old, new) }

// Size32 is the byte footprint reserved in a shared layout per guard cell.
const Size32 = 4
