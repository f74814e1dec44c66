package array_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/pkg/array"
	"github.com/tao-rt/tao/pkg/object"
)

// Seed scenario 5: create 2-D f32 array 4x3 filled with 1.0; serial is 0.
// wrlock; fill(2.5); set_serial(1); unlock; rdlock; read payload;
// get_serial == 1; unlock.
func TestArraySerialization(t *testing.T) {
	a, seg, code := array.Create(array.ElemF32, []int64{4, 3}, 0)
	require.Equal(t, status.OK, code)
	defer object.DetachObject(a.Header, seg)

	require.EqualValues(t, 12, a.Nelem())
	require.EqualValues(t, 0, a.Serial())

	require.Equal(t, status.OK, a.WLock())
	a.Fill(1.0)
	a.SetSerial(0)
	require.Equal(t, status.OK, a.RWUnlock())

	require.Equal(t, status.OK, a.WLock())
	a.Fill(2.5)
	a.SetSerial(1)
	require.Equal(t, status.OK, a.RWUnlock())

	require.Equal(t, status.OK, a.RLock())
	for i := int64(0); i < a.Nelem(); i++ {
		require.Equal(t, 2.5, a.Get(i))
	}
	require.EqualValues(t, 1, a.Serial())
	require.Equal(t, status.OK, a.RWUnlock())
}

func TestArrayColumnMajorOffset(t *testing.T) {
	a, seg, code := array.Create(array.ElemI32, []int64{4, 3}, 0)
	require.Equal(t, status.OK, code)
	defer object.DetachObject(a.Header, seg)

	off, code := a.Offset([]int64{1, 2})
	require.Equal(t, status.OK, code)
	require.EqualValues(t, 1+2*4, off)

	_, code = a.Offset([]int64{0, 3})
	require.Equal(t, status.ERROR, code)
}

func TestArrayZeroDims(t *testing.T) {
	a, seg, code := array.Create(array.ElemF64, nil, 0)
	require.Equal(t, status.OK, code)
	defer object.DetachObject(a.Header, seg)

	require.EqualValues(t, 1, a.Nelem())
	require.EqualValues(t, 0, a.Ndims())
}

func TestArrayAttach(t *testing.T) {
	a, seg, code := array.Create(array.ElemU8, []int64{8, 8}, 0)
	require.Equal(t, status.OK, code)
	defer object.DetachObject(a.Header, seg)

	a2, seg2, code := array.Attach(seg.Shmid())
	require.Equal(t, status.OK, code)
	defer object.DetachObject(a2.Header, seg2)

	require.Equal(t, a.Dims(), a2.Dims())
	require.Equal(t, a.ElemType(), a2.ElemType())
}

func TestArrayBadRank(t *testing.T) {
	_, _, code := array.Create(array.ElemF32, []int64{1, 2, 3, 4, 5, 6}, 0)
	require.Equal(t, status.ERROR, code)
}

func TestArrayOverflow(t *testing.T) {
	huge := int64(1) << 62
	_, _, code := array.Create(array.ElemF64, []int64{huge, huge}, 0)
	require.Equal(t, status.ERROR, code)
}
