package object_test

import (
	"github.com/tao-rt/tao/pkg/object"
	"github.com/tao-rt/tao/pkg/shm"
)

func shmStat(shmid int32) (size, count int64) { return shm.Stat(shmid) }

// destroyPersistent detaches and explicitly destroys an object created with
// the persistent flag, for test cleanup only — production code never needs
// this since non-persistent detach already handles it.
func destroyPersistent(h *object.Header, seg *shm.Segment) error {
	_ = h
	shmid := seg.Shmid()
	seg.Detach()
	shm.Destroy(shmid)
	return nil
}
