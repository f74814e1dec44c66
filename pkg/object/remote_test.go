package object_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/pkg/object"
)

func newRemote(t *testing.T, nbufs, stride int64) *object.Remote {
	t.Helper()
	total := int(object.RemoteHeaderSize + nbufs*stride)
	r, seg, code := object.CreateRemote(object.FamilyRemote, total, nbufs, object.RemoteHeaderSize, stride, "srv", 0)
	require.Equal(t, status.OK, code)
	t.Cleanup(func() { object.DetachObject(r.Header, seg) })
	return r
}

// Seed scenario 2: create with nbufs=4, stride=256, owner="srv"; client
// calls start(deadline=+1s) -> expected=1; server processes; client
// wait_command(1, +1s) -> OK; ncmds == 1.
func TestRemoteCommandRoundTrip(t *testing.T) {
	r := newRemote(t, 4, 256)
	require.Equal(t, "srv", r.Owner())
	require.Equal(t, object.StateWaiting, r.State())

	expected, code := r.QueueCommand(object.CommandStart, time.Now().Add(time.Second), nil)
	require.Equal(t, status.OK, code)
	require.EqualValues(t, 1, expected)

	done := make(chan struct{})
	go func() {
		cmd := r.ServerAwaitCommand()
		require.Equal(t, object.CommandStart, cmd)
		r.ServerReleaseCommand()
		r.SetState(object.StateStarting)
		r.SetState(object.StateWorking)
		r.ServerCompleteCommand(object.StateWorking)
		close(done)
	}()

	require.Equal(t, status.OK, r.WaitCommand(expected, time.Now().Add(time.Second)))
	<-done
	require.EqualValues(t, 1, r.Ncmds())
	require.Equal(t, object.StateWorking, r.State())
}

// Seed scenario 3: nbufs=2; server publishes 1,2,3; client calls
// wait_output(1, +0.1s) -> -1, wait_output(2, +0.1s) -> 2,
// wait_output(4, +0.1s) -> 0 (not yet).
func TestRemoteOutputRingOverwrite(t *testing.T) {
	r := newRemote(t, 2, 64)

	publish := func(serial int64) {
		r.Publish(func(slot []byte, s int64) {
			require.Equal(t, serial, s)
		})
	}
	publish(1)
	publish(2)
	publish(3)

	s, code := r.WaitOutput(1, time.Now().Add(100*time.Millisecond))
	require.Equal(t, object.OutputOverwritten, s)
	require.Equal(t, status.ERROR, code)

	s, code = r.WaitOutput(2, time.Now().Add(100*time.Millisecond))
	require.EqualValues(t, 2, s)
	require.Equal(t, status.OK, code)

	s, code = r.WaitOutput(4, time.Now().Add(100*time.Millisecond))
	require.EqualValues(t, 0, s)
	require.Equal(t, status.TIMEOUT, code)
}

func TestRemoteQueueRejectsWhileCommandPending(t *testing.T) {
	r := newRemote(t, 2, 64)

	_, code := r.QueueCommand(object.CommandConfig, time.Now().Add(time.Second), nil)
	require.Equal(t, status.OK, code)

	// A second client racing the same slot must block until the server
	// clears it; with a near-immediate deadline it times out.
	_, code = r.QueueCommand(object.CommandStart, time.Now().Add(20*time.Millisecond), nil)
	require.Equal(t, status.TIMEOUT, code)
}

func TestRemoteSlotGeometry(t *testing.T) {
	r := newRemote(t, 3, 128)
	s0 := r.Slot(0)
	s3 := r.Slot(3) // wraps to slot 0 (serial 4 -> index 3 mod 3 = 0)
	require.Len(t, s0, 128)
	require.Equal(t, &s0[0], &s3[0])
}
