// Package arraytools implements component J: rectangular-region copy
// between any two array kinds (plain or shared), with source-before-
// destination lock ordering to avoid self-deadlock (spec §4.11). Grounded
// on spec §4.11's text directly; the teacher has no analogous "copy a
// sub-box between two typed buffers" operation, so the multi-index walker
// is original to this port, kept in the same plain-loop, no-cleverness
// style as pkg/pixel's row loops.
package arraytools

import (
	"time"

	"github.com/tao-rt/tao/internal/status"
)

// Region is anything copy_region can read from or write to: pkg/array's
// Array satisfies it already (Dims/Get/Set/Offset), as does the plain,
// unshared implementation below.
type Region interface {
	Dims() []int64
	Get(i int64) float64
	Set(i int64, v float64)
	Offset(index []int64) (int64, status.Code)
}

// lockable is satisfied by shared arrays (pkg/array.Array, via its
// embedded pkg/object.RWLocked); plain regions don't implement it and
// CopyRegion simply skips locking them.
type lockable interface {
	AbstimedRLock(deadline time.Time) status.Code
	AbstimedWLock(deadline time.Time) status.Code
	RWUnlock() status.Code
}

// identifiable is satisfied by shared arrays, letting CopyRegion detect
// src == dst even when they arrived as distinct Go values wrapping the
// same segment.
type identifiable interface {
	Shmid() int32
}

// PlainArray is a non-shared, column-major, float64-backed Region, the
// "plain array" side of §4.11's copy between "any two array kinds".
type PlainArray struct {
	data []float64
	dims []int64
}

// NewPlain allocates a zero-filled plain array of the given shape.
func NewPlain(dims []int64) *PlainArray {
	n := int64(1)
	for _, d := range dims {
		n *= d
	}
	return &PlainArray{data: make([]float64, n), dims: append([]int64(nil), dims...)}
}

func (p *PlainArray) Dims() []int64        { return append([]int64(nil), p.dims...) }
func (p *PlainArray) Get(i int64) float64  { return p.data[i] }
func (p *PlainArray) Set(i int64, v float64) { p.data[i] = v }

func (p *PlainArray) Offset(index []int64) (int64, status.Code) {
	if len(index) != len(p.dims) {
		return 0, status.New("arraytools.PlainArray.Offset", status.KindBadRank, nil)
	}
	var off, stride int64 = 0, 1
	for k, idx := range index {
		if idx < 0 || idx >= p.dims[k] {
			return 0, status.New("arraytools.PlainArray.Offset", status.KindBadArgument, nil)
		}
		off += idx * stride
		stride *= p.dims[k]
	}
	return off, status.OK
}

func lockRegion(r Region, write bool, deadline time.Time) status.Code {
	l, ok := r.(lockable)
	if !ok {
		return status.OK
	}
	if write {
		return l.AbstimedWLock(deadline)
	}
	return l.AbstimedRLock(deadline)
}

func unlockRegion(r Region) {
	if l, ok := r.(lockable); ok {
		l.RWUnlock()
	}
}

func sameSegment(dst, src Region) bool {
	d, ok1 := dst.(identifiable)
	s, ok2 := src.(identifiable)
	return ok1 && ok2 && d.Shmid() == s.Shmid()
}

// CopyRegion copies the rectangular box described by lens, located at
// srcOffs within src and dstOffs within dst, converting element values as
// it goes (Region.Get/Set already coerce through float64, the same
// elementwise conversion §4.10 describes for pixel data). When either side
// is a shared array, the read lock is taken on src and the write lock on
// dst, always source-before-destination; src == dst is rejected outright
// rather than risk self-deadlock.
func CopyRegion(dst, src Region, dstOffs, srcOffs, lens []int64, deadline time.Time) status.Code {
	if len(lens) != len(dstOffs) || len(lens) != len(srcOffs) {
		return status.New("arraytools.CopyRegion", status.KindBadRank, nil)
	}
	if sameSegment(dst, src) {
		return status.New("arraytools.CopyRegion", status.KindAlreadyInUse, nil)
	}

	srcDims, dstDims := src.Dims(), dst.Dims()
	if len(lens) != len(srcDims) || len(lens) != len(dstDims) {
		return status.New("arraytools.CopyRegion", status.KindBadRank, nil)
	}
	for k, n := range lens {
		if n < 0 {
			return status.New("arraytools.CopyRegion", status.KindBadArgument, nil)
		}
		if srcOffs[k]+n > srcDims[k] || dstOffs[k]+n > dstDims[k] {
			return status.New("arraytools.CopyRegion", status.KindBadRange, nil)
		}
	}

	if code := lockRegion(src, false, deadline); code != status.OK {
		return code
	}
	defer unlockRegion(src)
	if code := lockRegion(dst, true, deadline); code != status.OK {
		return code
	}
	defer unlockRegion(dst)

	ndims := len(lens)
	total := int64(1)
	for _, n := range lens {
		total *= n
	}

	idx := make([]int64, ndims)
	for n := int64(0); n < total; n++ {
		srcIdx := make([]int64, ndims)
		dstIdx := make([]int64, ndims)
		for k := 0; k < ndims; k++ {
			srcIdx[k] = srcOffs[k] + idx[k]
			dstIdx[k] = dstOffs[k] + idx[k]
		}
		srcOff, code := src.Offset(srcIdx)
		if code != status.OK {
			return code
		}
		dstOff, code := dst.Offset(dstIdx)
		if code != status.OK {
			return code
		}
		dst.Set(dstOff, src.Get(srcOff))

		advance(idx, lens)
	}
	return status.OK
}

// advance steps idx to the next column-major position within lens,
// returning false once every position has been visited.
func advance(idx, lens []int64) bool {
	for k := 0; k < len(idx); k++ {
		idx[k]++
		if idx[k] < lens[k] {
			return true
		}
		idx[k] = 0
	}
	return false
}
