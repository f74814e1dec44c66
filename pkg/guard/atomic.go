package guard

import (
	"sync/atomic"
	"unsafe"
)

// Atomic32 and Atomic64 are small, exported atomic-cell views over a []byte,
// used throughout pkg/object, pkg/array and pkg/camera/mirror/sensor for the
// monotone fields spec §4.5/§4.6 requires acquire/release semantics on:
// serial, ncmds, state, per-slot dataframe serials.
type Atomic32 struct{ p *int32 }

func NewAtomic32(mem []byte, offset int) Atomic32 {
	if offset+4 > len(mem) {
		panic("guard: Atomic32 offset out of range")
	}
	return Atomic32{p: (*int32)(unsafe.Pointer(&mem[offset]))}
}

func (a Atomic32) Load() int32             { return atomic.LoadInt32(a.p) }
func (a Atomic32) Store(v int32)           { atomic.StoreInt32(a.p, v) }
func (a Atomic32) Add(delta int32) int32   { return atomic.AddInt32(a.p, delta) }
func (a Atomic32) Swap(v int32) int32      { return atomic.SwapInt32(a.p, v) }
func (a Atomic32) CAS(old, new int32) bool { return atomic.CompareAndSwapInt32(a.p, old, new) }

type Atomic64 struct{ p *int64 }

func NewAtomic64(mem []byte, offset int) Atomic64 {
	if offset+8 > len(mem) {
		panic("guard: Atomic64 offset out of range")
	}
	return Atomic64{p: (*int64)(unsafe.Pointer(&mem[offset]))}
}

func (a Atomic64) Load() int64             { return atomic.LoadInt64(a.p) }
func (a Atomic64) Store(v int64)           { atomic.StoreInt64(a.p, v) }
func (a Atomic64) Add(delta int64) int64   { return atomic.AddInt64(a.p, delta) }
func (a Atomic64) Swap(v int64) int64      { return atomic.SwapInt64(a.p, v) }
func (a Atomic64) CAS(old, new int64) bool { return atomic.CompareAndSwapInt64(a.p, old, new) }
