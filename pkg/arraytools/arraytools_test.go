package arraytools_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/pkg/array"
	"github.com/tao-rt/tao/pkg/arraytools"
	"github.com/tao-rt/tao/pkg/object"
)

func TestCopyRegionPlainToPlain(t *testing.T) {
	src := arraytools.NewPlain([]int64{4, 3})
	dst := arraytools.NewPlain([]int64{4, 3})
	for i := int64(0); i < 12; i++ {
		src.Set(i, float64(i))
	}

	code := arraytools.CopyRegion(dst, src, []int64{0, 0}, []int64{0, 0}, []int64{2, 2}, time.Time{})
	require.Equal(t, status.OK, code)

	// Column-major 4x3: offset(i,j) = i + j*4.
	for _, ij := range [][2]int64{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		off, _ := src.Offset([]int64{ij[0], ij[1]})
		require.Equal(t, src.Get(off), dst.Get(off))
	}
	off, _ := dst.Offset([]int64{2, 0})
	require.Zero(t, dst.Get(off)) // outside the copied box, untouched
}

func TestCopyRegionSharedToPlain(t *testing.T) {
	shared, seg, code := array.Create(array.ElemF32, []int64{4, 3}, 0)
	require.Equal(t, status.OK, code)
	defer object.DetachObject(shared.Header, seg)

	require.Equal(t, status.OK, shared.WLock())
	shared.Fill(7)
	require.Equal(t, status.OK, shared.RWUnlock())

	plain := arraytools.NewPlain([]int64{4, 3})
	deadline := time.Now().Add(time.Second)
	code = arraytools.CopyRegion(plain, shared, []int64{0, 0}, []int64{0, 0}, []int64{4, 3}, deadline)
	require.Equal(t, status.OK, code)

	for i := int64(0); i < 12; i++ {
		require.Equal(t, 7.0, plain.Get(i))
	}
}

func TestCopyRegionRejectsSelf(t *testing.T) {
	shared, seg, code := array.Create(array.ElemF32, []int64{4, 3}, 0)
	require.Equal(t, status.OK, code)
	defer object.DetachObject(shared.Header, seg)

	shared2, seg2, code := array.Attach(seg.Shmid())
	require.Equal(t, status.OK, code)
	defer object.DetachObject(shared2.Header, seg2)

	code = arraytools.CopyRegion(shared2, shared, []int64{0, 0}, []int64{0, 0}, []int64{1, 1}, time.Now().Add(time.Second))
	require.Equal(t, status.ERROR, code)
}

func TestCopyRegionRejectsOutOfBounds(t *testing.T) {
	src := arraytools.NewPlain([]int64{2, 2})
	dst := arraytools.NewPlain([]int64{2, 2})
	code := arraytools.CopyRegion(dst, src, []int64{0, 0}, []int64{0, 0}, []int64{3, 2}, time.Time{})
	require.Equal(t, status.ERROR, code)
}
