package mirror_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/pkg/mirror"
	"github.com/tao-rt/tao/pkg/object"
)

func newMirror(t *testing.T, nacts int32) *mirror.Mirror {
	t.Helper()
	m, seg, code := mirror.Create(nacts, nacts, 1, -1.0, 1.0, 4, "test-dm", 0)
	require.Equal(t, status.OK, code)
	t.Cleanup(func() { object.DetachObject(m.Header, seg) })
	return m
}

func serve(t *testing.T, m *mirror.Mirror) {
	t.Helper()
	cmd := m.ServerAwaitCommand()
	kind := m.SendKind()
	m.ServerReleaseCommand()
	switch {
	case cmd == object.CommandSend && kind == mirror.SendKindReference:
		m.ServerApplySetReference()
	case cmd == object.CommandSend && kind == mirror.SendKindPerturbation:
		m.ServerApplySetPerturbation()
	case cmd == object.CommandSend:
		m.ServerApplySend(nil)
	default:
		t.Fatalf("unexpected command %v", cmd)
	}
}

func TestMirrorSendClampsToBounds(t *testing.T) {
	m := newMirror(t, 4)
	deadline := time.Now().Add(time.Second)

	expected, code := m.QueueSend([]float64{2, -2, 0.5, -0.5}, 7, deadline)
	require.Equal(t, status.OK, code)
	serve(t, m)
	require.Equal(t, status.OK, m.WaitCommand(expected, deadline))

	mark, _, _, vals := m.ReadSlot(1)
	require.Equal(t, int32(7), mark)
	require.Equal(t, []float64{1, -1, 0.5, -0.5}, vals)
	require.Equal(t, vals, m.Effective())
}

func TestMirrorReferenceAndPerturbationAccumulate(t *testing.T) {
	m := newMirror(t, 2)
	deadline := time.Now().Add(time.Second)

	expected, code := m.QueueSetReference([]float64{0.2, 0.1}, deadline)
	require.Equal(t, status.OK, code)
	serve(t, m)
	require.Equal(t, status.OK, m.WaitCommand(expected, deadline))
	require.Equal(t, []float64{0.2, 0.1}, m.Reference())

	expected, code = m.QueueSetPerturbation([]float64{0.05, -0.05}, deadline)
	require.Equal(t, status.OK, code)
	serve(t, m)
	require.Equal(t, status.OK, m.WaitCommand(expected, deadline))

	expected, code = m.QueueSend([]float64{0, 0}, 1, deadline)
	require.Equal(t, status.OK, code)
	serve(t, m)
	require.Equal(t, status.OK, m.WaitCommand(expected, deadline))

	_, _, _, vals := m.ReadSlot(1)
	require.InDeltaSlice(t, []float64{0.25, 0.05}, vals, 1e-9)
	// Perturbation is one-shot: cleared after the send it applied to.
	require.Equal(t, []float64{0, 0}, m.Perturbation())
}

func TestMirrorOnSendHookRestrictsTarget(t *testing.T) {
	m := newMirror(t, 2)
	deadline := time.Now().Add(time.Second)

	expected, code := m.QueueSend([]float64{0.9, 0.9}, 3, deadline)
	require.Equal(t, status.OK, code)

	cmd := m.ServerAwaitCommand()
	require.Equal(t, object.CommandSend, cmd)
	m.ServerReleaseCommand()
	m.ServerApplySend(func(target []float64) []float64 {
		out := make([]float64, len(target))
		for i, v := range target {
			out[i] = v * 0.5
		}
		return out
	})
	require.Equal(t, status.OK, m.WaitCommand(expected, deadline))

	_, _, _, vals := m.ReadSlot(1)
	require.InDeltaSlice(t, []float64{0.45, 0.45}, vals, 1e-9)
}

func TestMirrorResetZeroesTarget(t *testing.T) {
	m := newMirror(t, 3)
	deadline := time.Now().Add(time.Second)

	expected, code := m.QueueReset(9, deadline)
	require.Equal(t, status.OK, code)
	serve(t, m)
	require.Equal(t, status.OK, m.WaitCommand(expected, deadline))

	mark, _, _, vals := m.ReadSlot(1)
	require.Equal(t, int32(9), mark)
	require.Equal(t, []float64{0, 0, 0}, vals)
}
