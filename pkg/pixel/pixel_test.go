package pixel_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/pkg/pixel"
)

// Seed scenario 6: raw u8 8x8 of all 100, a=0.5 uniform, b=10 uniform,
// q=1, r=1 -> result pixel = 45, weight = 1/46.
func TestAffineWeightsSeedScenario(t *testing.T) {
	const w, h = 8, 8
	raw := make([]byte, w*h)
	for i := range raw {
		raw[i] = 100
	}
	a := make([]float64, w*h)
	b := make([]float64, w*h)
	q := make([]float64, w*h)
	r := make([]float64, w*h)
	for i := range a {
		a[i], b[i], q[i], r[i] = 0.5, 10, 1, 1
	}

	target := make([]byte, w*h*8)
	weight := make([]byte, w*h*8)

	code := pixel.Process(context.Background(), pixel.Params{
		Op:         pixel.OpAffineWeights,
		Raw:        raw,
		RawType:    pixel.RawU8,
		RawStride:  w,
		Width:      w,
		Height:     h,
		Target:     target,
		TargetType: pixel.TargetF64,
		A:          a,
		B:          b,
		Q:          q,
		R:          r,
		Weight:     weight,
		Workers:    4,
	})
	require.Equal(t, status.OK, code)

	got := readF64(target)
	gotW := readF64(weight)
	for i := 0; i < w*h; i++ {
		require.InDelta(t, 45.0, got[i], 1e-9)
		require.InDelta(t, 1.0/46.0, gotW[i], 1e-9)
	}
}

func TestCopyU8(t *testing.T) {
	const w, h = 4, 2
	raw := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	target := make([]byte, w*h)

	code := pixel.Process(context.Background(), pixel.Params{
		Op:         pixel.OpCopy,
		Raw:        raw,
		RawType:    pixel.RawU8,
		RawStride:  w,
		Width:      w,
		Height:     h,
		Target:     target,
		TargetType: pixel.TargetU8,
	})
	require.Equal(t, status.OK, code)
	require.Equal(t, raw, target)
}

func TestConvertWithStridePadding(t *testing.T) {
	const w, h, stride = 3, 2, 5 // 2 padding bytes per row
	raw := []byte{
		10, 20, 30, 0, 0,
		40, 50, 60, 0, 0,
	}
	target := make([]byte, w*h*4)

	code := pixel.Process(context.Background(), pixel.Params{
		Op:         pixel.OpConvert,
		Raw:        raw,
		RawType:    pixel.RawU8,
		RawStride:  stride,
		Width:      w,
		Height:     h,
		Target:     target,
		TargetType: pixel.TargetU32,
	})
	require.Equal(t, status.OK, code)

	got := readU32(target)
	require.Equal(t, []uint32{10, 20, 30, 40, 50, 60}, got)
}

func TestPacked12Unpack(t *testing.T) {
	// Two 12-bit samples, 0xABC and 0x123, packed per the spec's scheme.
	raw := []byte{0xBC, 0x3A, 0x12}
	target := make([]byte, 2*8)

	code := pixel.Process(context.Background(), pixel.Params{
		Op:         pixel.OpConvert,
		Raw:        raw,
		RawType:    pixel.RawPacked12,
		RawStride:  3,
		Width:      2,
		Height:     1,
		Target:     target,
		TargetType: pixel.TargetF64,
	})
	require.Equal(t, status.OK, code)
	got := readF64(target)
	require.EqualValues(t, 0xABC, got[0])
	require.EqualValues(t, 0x123, got[1])
}

func readF64(b []byte) []float64 {
	out := make([]float64, len(b)/8)
	for i := range out {
		bits := uint64(0)
		for k := 0; k < 8; k++ {
			bits |= uint64(b[i*8+k]) << (8 * k)
		}
		out[i] = math.Float64frombits(bits)
	}
	return out
}

func readU32(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
	}
	return out
}
