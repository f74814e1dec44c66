package object_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/pkg/object"
)

func TestCreateAttachDetach(t *testing.T) {
	h, seg, code := object.CreateObject(object.FamilyBase, object.HeaderSize, 0)
	require.Equal(t, status.OK, code)
	require.Equal(t, object.Type(object.FamilyBase), h.Type())
	require.Equal(t, int64(object.HeaderSize), h.Size())
	require.Equal(t, seg.Shmid(), h.Shmid())
	require.False(t, h.Persistent())

	h2, seg2, code := object.AttachObject(seg.Shmid(), object.FamilyBase)
	require.Equal(t, status.OK, code)
	require.Equal(t, h.Type(), h2.Type())

	require.Equal(t, status.OK, object.DetachObject(h2, seg2))
	require.Equal(t, status.OK, object.DetachObject(h, seg))

	size, count := shmStat(seg.Shmid())
	require.Zero(t, size)
	require.Zero(t, count)
}

func TestAttachRejectsWrongFamily(t *testing.T) {
	h, seg, code := object.CreateObject(object.FamilyRemote, object.HeaderSize, 0)
	require.Equal(t, status.OK, code)
	defer object.DetachObject(h, seg)

	_, _, code = object.AttachObject(seg.Shmid(), object.FamilyRWLocked)
	require.Equal(t, status.ERROR, code)
}

func TestIsDescendant(t *testing.T) {
	require.True(t, object.IsDescendant(object.FamilySharedArray, object.FamilyRWLocked))
	require.True(t, object.IsDescendant(object.FamilyRWLocked, object.FamilyRWLocked))
	require.True(t, object.IsDescendant(object.FamilyRemoteCamera, object.FamilyRemote))
	require.False(t, object.IsDescendant(object.FamilyRemoteCamera, object.FamilyRemoteMirror))
	require.False(t, object.IsDescendant(object.FamilySharedArray, object.FamilyRemote))
	require.True(t, object.IsDescendant(object.FamilyRemoteCamera, object.FamilyBase))
}

func TestPersistentSurvivesAllDetaches(t *testing.T) {
	h, seg, code := object.CreateObject(object.FamilyBase, object.HeaderSize, 1<<20)
	require.Equal(t, status.OK, code)
	require.True(t, h.Persistent())

	shmid := seg.Shmid()
	require.Equal(t, status.OK, object.DetachObject(h, seg))

	size, _ := shmStat(shmid)
	require.NotZero(t, size)

	// Clean up: attach once more and destroy explicitly.
	h2, seg2, code := object.AttachObject(shmid, object.FamilyBase)
	require.Equal(t, status.OK, code)
	require.NoError(t, destroyPersistent(h2, seg2))
}
