package object

import (
	"encoding/binary"

	"github.com/tao-rt/tao/pkg/guard"
)

// Dataframe header fields (spec §3): "fixed layout at the beginning of
// each slot: atomic serial, user-defined mark, timestamp." Shared by the
// mirror and sensor ring slots, whose payload (actuator vector or
// Shack-Hartmann measurements) follows immediately after.
const (
	dfOffSerial = 0
	dfOffMark   = 8
	dfOffSec    = 16
	dfOffNsec   = 24

	// DataframeHeaderSize is the fixed prefix of every mirror/sensor ring
	// slot, ahead of its type-specific payload.
	DataframeHeaderSize = 32
)

// WriteDataframeHeader stamps a ring slot's header fields; called by the
// server while holding the remote object's mutex (inside Remote.Publish's
// writeSlot callback).
func WriteDataframeHeader(slot []byte, serial int64, mark int32, sec, nsec int64) {
	binary.LittleEndian.PutUint32(slot[dfOffMark:], uint32(mark))
	binary.LittleEndian.PutUint64(slot[dfOffSec:], uint64(sec))
	binary.LittleEndian.PutUint64(slot[dfOffNsec:], uint64(nsec))
	guard.NewAtomic64(slot, dfOffSerial).Store(serial)
}

// ReadDataframeHeader decodes a ring slot's header fields.
func ReadDataframeHeader(slot []byte) (serial int64, mark int32, sec, nsec int64) {
	serial = guard.NewAtomic64(slot, dfOffSerial).Load()
	mark = int32(binary.LittleEndian.Uint32(slot[dfOffMark:]))
	sec = int64(binary.LittleEndian.Uint64(slot[dfOffSec:]))
	nsec = int64(binary.LittleEndian.Uint64(slot[dfOffNsec:]))
	return
}

// DataframePayload returns the bytes of a ring slot following its
// dataframe header.
func DataframePayload(slot []byte) []byte { return slot[DataframeHeaderSize:] }
