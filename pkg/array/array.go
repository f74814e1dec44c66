// Package array implements the shared multi-dimensional array, component G:
// a typed, n-dimensional, column-major payload sitting on pkg/object's
// r/w-locked object (E). Grounded on spec §4.6/§6's shared-array header
// layout; the payload itself has no teacher analogue (YANET has no typed
// numeric array type), so its element-coercion logic is built directly
// against the spec text, using encoding/binary the way pkg/object already
// does for its own header fields.
package array

import (
	"encoding/binary"
	"math"

	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/pkg/guard"
	"github.com/tao-rt/tao/pkg/object"
	"github.com/tao-rt/tao/pkg/shm"
)

// ElemType enumerates the 10 element encodings (spec §6): values 1..10 are
// stable on the wire and must not be renumbered.
type ElemType int32

const (
	ElemI8 ElemType = iota + 1
	ElemU8
	ElemI16
	ElemU16
	ElemI32
	ElemU32
	ElemI64
	ElemU64
	ElemF32
	ElemF64
)

func (e ElemType) Size() int {
	switch e {
	case ElemI8, ElemU8:
		return 1
	case ElemI16, ElemU16:
		return 2
	case ElemI32, ElemU32, ElemF32:
		return 4
	case ElemI64, ElemU64, ElemF64:
		return 8
	default:
		return 0
	}
}

func (e ElemType) valid() bool { return e >= ElemI8 && e <= ElemF64 }

// MaxDims is the largest number of dimensions an array may have (spec
// §3: "n ∈ [0,5]").
const MaxDims = 5

// Header layout, placed after object.RWLockedHeaderSize (spec §6):
// i64 nelem; i32 ndims; i64 dims[5]; i32 eltype; volatile i64 serial;
// volatile struct{i64 sec; i64 nsec} ts[5].
const (
	offNelem  = object.RWLockedHeaderSize
	offNdims  = offNelem + 8
	offDims   = offNdims + 4
	offEltype = offDims + 8*MaxDims
	offSerial = offEltype + 4
	offTS     = offSerial + 8
	tsStride  = 16 // sec + nsec, 8 bytes each

	// HeaderSize is the fixed prefix of every shared array, padded so the
	// element payload starts 64-byte aligned — the platform SIMD alignment
	// spec §4.6 asks for.
	HeaderSize = 320
)

// Array is component G.
type Array struct {
	*object.RWLocked
	mem        []byte
	nelem      int64
	ndims      int32
	dims       [MaxDims]int64
	eltype     ElemType
	elemSize   int
	dataOffset int64
	serial     guard.Atomic64
}

func elementCount(dims []int64) (int64, status.Code) {
	n := int64(1)
	for _, d := range dims {
		if d < 1 {
			return 0, status.New("array.elementCount", status.KindBadRange, nil)
		}
		if n > math.MaxInt64/d {
			return 0, status.New("array.elementCount", status.KindBadRange, nil)
		}
		n *= d
	}
	return n, status.OK
}

// Create allocates and initializes a new shared array (spec §4.6 create).
func Create(eltype ElemType, dims []int64, flags uint32) (*Array, *shm.Segment, status.Code) {
	if !eltype.valid() {
		return nil, nil, status.New("array.Create", status.KindBadPixelType, nil)
	}
	if len(dims) > MaxDims {
		return nil, nil, status.New("array.Create", status.KindBadRank, nil)
	}
	nelem, code := elementCount(dims)
	if code != status.OK {
		return nil, nil, code
	}

	elemSize := eltype.Size()
	payload := nelem * int64(elemSize)
	total := int(HeaderSize + payload)

	rw, seg, code := object.CreateRWLocked(object.FamilySharedArray, total, flags)
	if code != status.OK {
		return nil, nil, code
	}
	mem := seg.Bytes()

	binary.LittleEndian.PutUint64(mem[offNelem:], uint64(nelem))
	binary.LittleEndian.PutUint32(mem[offNdims:], uint32(len(dims)))
	var dimsArr [MaxDims]int64
	for i, d := range dims {
		dimsArr[i] = d
		binary.LittleEndian.PutUint64(mem[offDims+8*i:], uint64(d))
	}
	binary.LittleEndian.PutUint32(mem[offEltype:], uint32(eltype))

	a := &Array{
		RWLocked:   rw,
		mem:        mem,
		nelem:      nelem,
		ndims:      int32(len(dims)),
		dims:       dimsArr,
		eltype:     eltype,
		elemSize:   elemSize,
		dataOffset: HeaderSize,
		serial:     guard.NewAtomic64(mem, offSerial),
	}
	return a, seg, status.OK
}

// Attach maps an existing shared array, verifying it descends from
// FamilySharedArray.
func Attach(shmid int32) (*Array, *shm.Segment, status.Code) {
	rw, seg, code := object.AttachRWLocked(shmid, object.FamilySharedArray)
	if code != status.OK {
		return nil, nil, code
	}
	mem := seg.Bytes()
	if seg.Size() < HeaderSize {
		seg.Detach()
		return nil, nil, status.New("array.Attach", status.KindBadSize, nil)
	}

	nelem := int64(binary.LittleEndian.Uint64(mem[offNelem:]))
	ndims := int32(binary.LittleEndian.Uint32(mem[offNdims:]))
	var dims [MaxDims]int64
	for i := 0; i < MaxDims; i++ {
		dims[i] = int64(binary.LittleEndian.Uint64(mem[offDims+8*i:]))
	}
	eltype := ElemType(int32(binary.LittleEndian.Uint32(mem[offEltype:])))
	if !eltype.valid() {
		seg.Detach()
		return nil, nil, status.New("array.Attach", status.KindBadPixelType, nil)
	}

	a := &Array{
		RWLocked:   rw,
		mem:        mem,
		nelem:      nelem,
		ndims:      ndims,
		dims:       dims,
		eltype:     eltype,
		elemSize:   eltype.Size(),
		dataOffset: HeaderSize,
		serial:     guard.NewAtomic64(mem, offSerial),
	}
	return a, seg, status.OK
}

func (a *Array) Nelem() int64      { return a.nelem }
func (a *Array) Ndims() int32      { return a.ndims }
func (a *Array) Dims() []int64     { return append([]int64(nil), a.dims[:a.ndims]...) }
func (a *Array) ElemType() ElemType { return a.eltype }
func (a *Array) ElemSize() int     { return a.elemSize }

// Offset computes the column-major element offset for an index tuple
// (spec §4.6: offset = Σ_k i_k · ∏_{j<k} dims[j]).
func (a *Array) Offset(index []int64) (int64, status.Code) {
	if int32(len(index)) != a.ndims {
		return 0, status.New("array.Offset", status.KindBadRank, nil)
	}
	var off, stride int64 = 0, 1
	for k := 0; k < len(index); k++ {
		if index[k] < 0 || index[k] >= a.dims[k] {
			return 0, status.New("array.Offset", status.KindBadArgument, nil)
		}
		off += index[k] * stride
		stride *= a.dims[k]
	}
	return off, status.OK
}

// GetData returns the raw element bytes, valid only while the caller holds
// the array's read or write lock (spec §4.6).
func (a *Array) GetData() []byte {
	return a.mem[a.dataOffset : a.dataOffset+a.nelem*int64(a.elemSize)]
}

// Serial and SetSerial access the volatile frame serial; both assume the
// caller already holds the appropriate lock (read for Serial, write for
// SetSerial), matching seed scenario 5's explicit wrlock/.../unlock shape.
func (a *Array) Serial() int64        { return a.serial.Load() }
func (a *Array) SetSerial(s int64)    { a.serial.Store(s) }

// Timestamp and SetTimestamp access one of the five (sec, nsec) slots.
func (a *Array) Timestamp(i int) (sec, nsec int64) {
	off := offTS + i*tsStride
	return int64(binary.LittleEndian.Uint64(a.mem[off:])), int64(binary.LittleEndian.Uint64(a.mem[off+8:]))
}

func (a *Array) SetTimestamp(i int, sec, nsec int64) {
	off := offTS + i*tsStride
	binary.LittleEndian.PutUint64(a.mem[off:], uint64(sec))
	binary.LittleEndian.PutUint64(a.mem[off+8:], uint64(nsec))
}

// Get and Set read/write a single element, coerced to/from float64. Both
// assume the caller holds the appropriate lock.
func (a *Array) Get(i int64) float64 {
	off := a.dataOffset + i*int64(a.elemSize)
	switch a.eltype {
	case ElemI8:
		return float64(int8(a.mem[off]))
	case ElemU8:
		return float64(a.mem[off])
	case ElemI16:
		return float64(int16(binary.LittleEndian.Uint16(a.mem[off:])))
	case ElemU16:
		return float64(binary.LittleEndian.Uint16(a.mem[off:]))
	case ElemI32:
		return float64(int32(binary.LittleEndian.Uint32(a.mem[off:])))
	case ElemU32:
		return float64(binary.LittleEndian.Uint32(a.mem[off:]))
	case ElemI64:
		return float64(int64(binary.LittleEndian.Uint64(a.mem[off:])))
	case ElemU64:
		return float64(binary.LittleEndian.Uint64(a.mem[off:]))
	case ElemF32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(a.mem[off:])))
	case ElemF64:
		return math.Float64frombits(binary.LittleEndian.Uint64(a.mem[off:]))
	default:
		return 0
	}
}

func (a *Array) Set(i int64, v float64) {
	off := a.dataOffset + i*int64(a.elemSize)
	switch a.eltype {
	case ElemI8:
		a.mem[off] = byte(int8(v))
	case ElemU8:
		a.mem[off] = byte(uint8(v))
	case ElemI16:
		binary.LittleEndian.PutUint16(a.mem[off:], uint16(int16(v)))
	case ElemU16:
		binary.LittleEndian.PutUint16(a.mem[off:], uint16(v))
	case ElemI32:
		binary.LittleEndian.PutUint32(a.mem[off:], uint32(int32(v)))
	case ElemU32:
		binary.LittleEndian.PutUint32(a.mem[off:], uint32(v))
	case ElemI64:
		binary.LittleEndian.PutUint64(a.mem[off:], uint64(int64(v)))
	case ElemU64:
		binary.LittleEndian.PutUint64(a.mem[off:], uint64(v))
	case ElemF32:
		binary.LittleEndian.PutUint32(a.mem[off:], math.Float32bits(float32(v)))
	case ElemF64:
		binary.LittleEndian.PutUint64(a.mem[off:], math.Float64bits(v))
	}
}

// Fill writes value, coerced to the array's element type, to every
// element. The caller must already hold the write lock (spec §4.6).
func (a *Array) Fill(value float64) {
	for i := int64(0); i < a.nelem; i++ {
		a.Set(i, value)
	}
}
