package shm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/pkg/shm"
)

// TestLifecycle exercises spec §8 seed scenario 1: create, attach twice,
// detach twice, destroy, segment gone.
func TestLifecycle(t *testing.T) {
	seg, code := shm.Create(4096, shm.DefaultPerms)
	require.Equal(t, status.OK, code)
	require.Equal(t, 4096, seg.Size())

	size, attach := shm.Stat(seg.Shmid())
	require.EqualValues(t, 4096, size)
	require.EqualValues(t, 1, attach)

	seg2, code := shm.Attach(seg.Shmid())
	require.Equal(t, status.OK, code)

	size, attach = shm.Stat(seg.Shmid())
	require.EqualValues(t, 4096, size)
	require.EqualValues(t, 2, attach)

	require.Equal(t, status.OK, seg.Detach())
	require.Equal(t, status.OK, seg2.Detach())
	require.Equal(t, status.OK, shm.Destroy(seg.Shmid()))

	size, attach = shm.Stat(seg.Shmid())
	require.Zero(t, size)
	require.Zero(t, attach)
}

func TestAttachBadShmid(t *testing.T) {
	_, code := shm.Attach(shm.BadShmid)
	require.Equal(t, status.ERROR, code)
}

func TestCreateZeroFilled(t *testing.T) {
	seg, code := shm.Create(128, shm.DefaultPerms)
	require.Equal(t, status.OK, code)
	defer func() {
		shm.Destroy(seg.Shmid())
		seg.Detach()
	}()

	for _, b := range seg.Bytes() {
		require.Zero(t, b)
	}
}
