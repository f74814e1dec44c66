// Package pixel implements the copy/convert/affine-correct/weight engine,
// component I: turning a raw camera buffer into the pixel type a shared
// array payload (pkg/array) holds. Grounded on spec §4.10's four
// operations; the row-parallel worker pool is modeled on the teacher's
// ringBuffer reader fan-out (modules/pdump/controlplane/ring.go's
// runReaders), swapping its errgroup-driven reader goroutines for a
// semaphore.Weighted-bounded row pool, since rows here are independent
// and restartable (spec: "process rows in order and are restartable
// per-row, which enables SIMD vectorization" — here, concurrency instead).
package pixel

import (
	"context"
	"math"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/tao-rt/tao/internal/status"
)

// Op selects which of the four operations (spec §4.10) Process runs.
type Op int

const (
	OpCopy Op = iota
	OpConvert
	OpAffine
	OpAffineWeights
)

// RawType is the encoding of the input buffer.
type RawType int

const (
	RawU8 RawType = iota
	RawPacked12
	RawU16
	RawU32
)

// TargetType is the encoding of the output buffer.
type TargetType int

const (
	TargetU8 TargetType = iota
	TargetU16
	TargetU32
	TargetF32
	TargetF64
)

func (t TargetType) size() int {
	switch t {
	case TargetU8:
		return 1
	case TargetU16:
		return 2
	case TargetU32, TargetF32:
		return 4
	case TargetF64:
		return 8
	default:
		return 0
	}
}

// Params groups one Process call's inputs. A, B, Q, R are per-pixel
// correction arrays (row-major, Width*Height long), required only for
// OpAffine/OpAffineWeights per the table in §4.7 (none/affine/full).
type Params struct {
	Op         Op
	Raw        []byte
	RawType    RawType
	RawStride  int // bytes per row in Raw, ≥ the tight row size
	Width      int
	Height     int
	Target     []byte
	TargetType TargetType
	A, B       []float64
	Q, R       []float64 // only for OpAffineWeights
	Weight     []byte    // f64 rows, only written for OpAffineWeights
	Workers    int64     // max concurrent row workers; ≤0 means GOMAXPROCS
}

func (p *Params) targetStride() int { return p.Width * p.TargetType.size() }

func (p *Params) validate() status.Code {
	if p.Width <= 0 || p.Height <= 0 {
		return status.New("pixel.Process", status.KindBadSize, nil)
	}
	if len(p.Target) < p.targetStride()*p.Height {
		return status.New("pixel.Process", status.KindBadSize, nil)
	}
	if (p.Op == OpAffine || p.Op == OpAffineWeights) && (len(p.A) < p.Width*p.Height || len(p.B) < p.Width*p.Height) {
		return status.New("pixel.Process", status.KindBadArgument, nil)
	}
	if p.Op == OpAffineWeights {
		if len(p.Q) < p.Width*p.Height || len(p.R) < p.Width*p.Height {
			return status.New("pixel.Process", status.KindBadArgument, nil)
		}
		if len(p.Weight) < p.Width*p.Height*8 {
			return status.New("pixel.Process", status.KindBadSize, nil)
		}
	}
	return status.OK
}

// Process runs one of the four pixel operations over every row, fanning
// rows out across a bounded worker pool.
func Process(ctx context.Context, p Params) status.Code {
	if code := p.validate(); code != status.OK {
		return code
	}

	workers := p.Workers
	if workers <= 0 {
		workers = int64(runtime.GOMAXPROCS(0))
	}
	sem := semaphore.NewWeighted(workers)

	var wg sync.WaitGroup
	for row := 0; row < p.Height; row++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return status.New("pixel.Process", status.KindUnreachable, err)
		}
		wg.Add(1)
		go func(row int) {
			defer sem.Release(1)
			defer wg.Done()
			processRow(&p, row)
		}(row)
	}
	wg.Wait()
	return status.OK
}

func processRow(p *Params, row int) {
	samples := decodeRow(p, row)

	base := row * p.Width
	dat := make([]float64, p.Width)
	switch p.Op {
	case OpCopy, OpConvert:
		copy(dat, samples)
	case OpAffine, OpAffineWeights:
		for i, s := range samples {
			dat[i] = (s - p.B[base+i]) * p.A[base+i]
		}
	}

	writeTargetRow(p, row, dat)

	if p.Op == OpAffineWeights {
		woff := row * p.Width * 8
		for i, d := range dat {
			w := p.Q[base+i] / (stableMaxZero(d) + p.R[base+i])
			putFloat64(p.Weight[woff+i*8:], w)
		}
	}
}

// stableMaxZero is max(x, 0) written so it never introduces a NaN when x
// is finite, matching the "numerically stable forms" requirement (§4.10).
func stableMaxZero(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func decodeRow(p *Params, row int) []float64 {
	out := make([]float64, p.Width)
	rowBytes := p.Raw[row*p.RawStride:]
	switch p.RawType {
	case RawU8:
		for i := 0; i < p.Width; i++ {
			out[i] = float64(rowBytes[i])
		}
	case RawU16:
		for i := 0; i < p.Width; i++ {
			out[i] = float64(getUint16(rowBytes[i*2:]))
		}
	case RawU32:
		for i := 0; i < p.Width; i++ {
			out[i] = float64(getUint32(rowBytes[i*4:]))
		}
	case RawPacked12:
		unpacked := unpackPacked12(rowBytes, p.Width)
		for i, v := range unpacked {
			out[i] = float64(v)
		}
	}
	return out
}

// unpackPacked12 unpacks n 12-bit samples from triples of bytes, two
// samples per triple: byte0 = low 8 bits of sample 0; byte1 = high 4 bits
// of sample 0 (low nibble) | low 4 bits of sample 1 (high nibble); byte2 =
// high 8 bits of sample 1.
func unpackPacked12(data []byte, n int) []uint16 {
	out := make([]uint16, n)
	i, j := 0, 0
	for i+1 < n {
		b0, b1, b2 := data[j], data[j+1], data[j+2]
		out[i] = uint16(b0) | uint16(b1&0x0f)<<8
		out[i+1] = uint16(b1>>4) | uint16(b2)<<4
		i += 2
		j += 3
	}
	if i < n {
		out[i] = uint16(data[j]) | uint16(data[j+1]&0x0f)<<8
	}
	return out
}

func writeTargetRow(p *Params, row int, dat []float64) {
	off := row * p.targetStride()
	switch p.TargetType {
	case TargetU8:
		for i, d := range dat {
			p.Target[off+i] = byte(clampUint(d, math.MaxUint8))
		}
	case TargetU16:
		for i, d := range dat {
			putUint16(p.Target[off+i*2:], uint16(clampUint(d, math.MaxUint16)))
		}
	case TargetU32:
		for i, d := range dat {
			putUint32(p.Target[off+i*4:], uint32(clampUint(d, math.MaxUint32)))
		}
	case TargetF32:
		for i, d := range dat {
			putFloat32(p.Target[off+i*4:], float32(d))
		}
	case TargetF64:
		for i, d := range dat {
			putFloat64(p.Target[off+i*8:], d)
		}
	}
}

func clampUint(v float64, max float64) float64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
