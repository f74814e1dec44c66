package object_test

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/pkg/object"
)

func TestRWLockedWriterPreference(t *testing.T) {
	l, seg, code := object.CreateRWLocked(object.FamilyRWLocked, object.RWLockedHeaderSize, 0)
	require.Equal(t, status.OK, code)
	defer object.DetachObject(l.Header, seg)

	// Same seed scenario as pkg/guard's RWLock test, now against the
	// object-hierarchy r/w lock that layers on a Header.
	require.Equal(t, status.OK, l.RLock()) // A

	var mu sync.Mutex
	var order []string
	record := func(who string) {
		mu.Lock()
		order = append(order, who)
		mu.Unlock()
	}

	bReady := make(chan struct{})
	go func() {
		close(bReady)
		l.WLock()
		record("B")
		time.Sleep(10 * time.Millisecond)
		l.RWUnlock()
	}()
	<-bReady
	time.Sleep(10 * time.Millisecond)

	cDone := make(chan struct{})
	go func() {
		l.RLock()
		record("C")
		l.RWUnlock()
		close(cDone)
	}()
	time.Sleep(10 * time.Millisecond)

	l.RWUnlock() // A releases

	select {
	case <-cDone:
	case <-time.After(time.Second):
		t.Fatal("reader C never acquired")
	}
	require.Equal(t, []string{"B", "C"}, order)
}

func TestRWLockedCorruptedCounter(t *testing.T) {
	l, seg, code := object.CreateRWLocked(object.FamilyRWLocked, object.RWLockedHeaderSize, 0)
	require.Equal(t, status.OK, code)
	defer object.DetachObject(l.Header, seg)

	require.Equal(t, status.OK, l.TryWLock())
	require.Equal(t, status.OK, l.RWUnlock())

	require.Equal(t, status.OK, l.RLock())
	require.Equal(t, status.OK, l.RWUnlock())

	// Corrupt users directly, as if a bad writer scribbled over it: the
	// next acquire refuses with CORRUPTED and leaves the counter as is.
	corrupt := int32(-5)
	binary.LittleEndian.PutUint32(seg.Bytes()[object.HeaderSize+12:], uint32(corrupt))
	require.Equal(t, status.ERROR, l.RLock())
	require.Equal(t, status.KindCorrupted, status.Last().Kind)
	require.EqualValues(t, -5, l.Users())
}

func TestRWLockedTryContention(t *testing.T) {
	l, seg, code := object.CreateRWLocked(object.FamilyRWLocked, object.RWLockedHeaderSize, 0)
	require.Equal(t, status.OK, code)
	defer object.DetachObject(l.Header, seg)

	require.Equal(t, status.OK, l.TryWLock())
	require.Equal(t, status.TIMEOUT, l.TryRLock())
	require.Equal(t, status.OK, l.RWUnlock())

	require.Equal(t, status.OK, l.TryRLock())
	require.Equal(t, status.OK, l.TryRLock())
	require.Equal(t, status.TIMEOUT, l.TryWLock())
	require.Equal(t, status.OK, l.RWUnlock())
	require.Equal(t, status.OK, l.RWUnlock())
}
