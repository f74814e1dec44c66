// Package mirror implements component H-mirror (spec §4.8): a remote
// object driving a deformable mirror's actuators, with inline ring slots
// (unlike pkg/camera's out-of-line image shmids). Grounded on pkg/object's
// Remote for the command queue and server state machine.
package mirror

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/tao-rt/tao/internal/clock"
	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/pkg/object"
	"github.com/tao-rt/tao/pkg/shm"
)

// Fixed fields after object.RemoteHeaderSize: i32 nacts; i32 grid[2];
// i64 refOffset (byte offset of the reference vector, for parity with the
// spec's explicit "offset to reference vector" field); f64 cmin, cmax;
// i32 mark (most recent mark value passed to send/reset); then the
// indexed layout (2*nacts int32 grid coordinates) and the four working
// vectors (reference, perturbation, requested, effective), each nacts
// float64s, in that order.
const (
	offNacts    = object.RemoteHeaderSize
	offGrid     = offNacts + 4
	offRefOff   = offGrid + 8
	offCMin     = offRefOff + 8
	offCMax     = offCMin + 8
	offMark     = offCMax + 8
	// offSendKind distinguishes the three client calls that all queue
	// under object.CommandSend (set_reference/set_perturbation/send),
	// since the shared Command enum has only one "send" member; the
	// server dispatches on this discriminant after ServerAwaitCommand
	// returns CommandSend.
	offSendKind = offMark + 4
	fixedEnd    = offSendKind + 4
	vectorCount = 4 // reference, perturbation, requested, effective
)

// SendKind discriminates the three operations multiplexed onto
// object.CommandSend.
type SendKind int32

const (
	SendKindMove SendKind = iota
	SendKindReference
	SendKindPerturbation
)

func indexLayoutOffset() int64 { return int64(fixedEnd) }
func vectorsOffset(nacts int32) int64 {
	return indexLayoutOffset() + 2*int64(nacts)*4
}
func ringOffset(nacts int32) int64 {
	end := vectorsOffset(nacts) + vectorCount*int64(nacts)*8
	const align = 8
	return (end + align - 1) / align * align
}
func slotStride(nacts int32) int64 {
	return object.DataframeHeaderSize + int64(nacts)*8
}

// Mirror is component H-mirror.
type Mirror struct {
	*object.Remote
	mem   []byte
	nacts int32
}

// Create allocates a mirror segment for nacts actuators laid out on a
// gridW x gridH grid, with actuator command bounds [cmin, cmax] and nbufs
// ring slots for the published actuation history.
func Create(nacts int32, gridW, gridH int32, cmin, cmax float64, nbufs int64, owner string, flags uint32) (*Mirror, *shm.Segment, status.Code) {
	if nacts <= 0 {
		return nil, nil, status.New("mirror.Create", status.KindBadArgument, nil)
	}
	ro := ringOffset(nacts)
	stride := slotStride(nacts)
	totalSize := int(ro + nbufs*stride)

	r, seg, code := object.CreateRemote(object.FamilyRemoteMirror, totalSize, nbufs, ro, stride, owner, flags)
	if code != status.OK {
		return nil, nil, code
	}
	mem := seg.Bytes()
	binary.LittleEndian.PutUint32(mem[offNacts:], uint32(nacts))
	binary.LittleEndian.PutUint32(mem[offGrid:], uint32(gridW))
	binary.LittleEndian.PutUint32(mem[offGrid+4:], uint32(gridH))
	binary.LittleEndian.PutUint64(mem[offRefOff:], uint64(vectorsOffset(nacts)))
	binary.LittleEndian.PutUint64(mem[offCMin:], math.Float64bits(cmin))
	binary.LittleEndian.PutUint64(mem[offCMax:], math.Float64bits(cmax))

	m := &Mirror{Remote: r, mem: mem, nacts: nacts}
	for i := 0; i < int(nacts); i++ {
		m.setIndex(i, int32(i%int(gridW)), int32(i/int(gridW)))
	}
	return m, seg, status.OK
}

// Attach maps an existing mirror object.
func Attach(shmid int32) (*Mirror, *shm.Segment, status.Code) {
	r, seg, code := object.AttachRemote(shmid, object.FamilyRemoteMirror)
	if code != status.OK {
		return nil, nil, code
	}
	mem := seg.Bytes()
	nacts := int32(binary.LittleEndian.Uint32(mem[offNacts:]))
	return &Mirror{Remote: r, mem: mem, nacts: nacts}, seg, status.OK
}

func (m *Mirror) Nacts() int32          { return m.nacts }
func (m *Mirror) Grid() (w, h int32)    { return int32(binary.LittleEndian.Uint32(m.mem[offGrid:])), int32(binary.LittleEndian.Uint32(m.mem[offGrid+4:])) }
func (m *Mirror) Bounds() (cmin, cmax float64) {
	return math.Float64frombits(binary.LittleEndian.Uint64(m.mem[offCMin:])),
		math.Float64frombits(binary.LittleEndian.Uint64(m.mem[offCMax:]))
}
func (m *Mirror) Mark() int32 { return int32(binary.LittleEndian.Uint32(m.mem[offMark:])) }

// SendKind reports which of the three operations multiplexed onto
// object.CommandSend is currently staged; valid only between
// ServerAwaitCommand returning CommandSend and the matching
// ServerApply*/ServerCompleteCommand call.
func (m *Mirror) SendKind() SendKind {
	return SendKind(int32(binary.LittleEndian.Uint32(m.mem[offSendKind:])))
}

func (m *Mirror) setIndex(i int, x, y int32) {
	off := indexLayoutOffset() + int64(i)*8
	binary.LittleEndian.PutUint32(m.mem[off:], uint32(x))
	binary.LittleEndian.PutUint32(m.mem[off+4:], uint32(y))
}

// Index returns the grid coordinates of actuator i.
func (m *Mirror) Index(i int) (x, y int32) {
	off := indexLayoutOffset() + int64(i)*8
	return int32(binary.LittleEndian.Uint32(m.mem[off:])), int32(binary.LittleEndian.Uint32(m.mem[off+4:]))
}

func (m *Mirror) vector(which int) []float64 {
	base := vectorsOffset(m.nacts) + int64(which)*int64(m.nacts)*8
	out := make([]float64, m.nacts)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(m.mem[base+int64(i)*8:]))
	}
	return out
}

func (m *Mirror) setVector(which int, vals []float64) {
	base := vectorsOffset(m.nacts) + int64(which)*int64(m.nacts)*8
	for i, v := range vals {
		binary.LittleEndian.PutUint64(m.mem[base+int64(i)*8:], math.Float64bits(v))
	}
}

const (
	vecReference = iota
	vecPerturbation
	vecRequested
	vecEffective
)

func (m *Mirror) Reference() []float64    { return m.vector(vecReference) }
func (m *Mirror) Perturbation() []float64  { return m.vector(vecPerturbation) }
func (m *Mirror) Requested() []float64     { return m.vector(vecRequested) }
func (m *Mirror) Effective() []float64     { return m.vector(vecEffective) }

func (m *Mirror) checkVector(vals []float64) status.Code {
	if int32(len(vals)) != m.nacts {
		return status.New("mirror.Mirror", status.KindBadSize, nil)
	}
	return status.OK
}

func (m *Mirror) setSendKind(k SendKind) {
	binary.LittleEndian.PutUint32(m.mem[offSendKind:], uint32(k))
}

// QueueSetReference is the client side of §4.8's set_reference command.
func (m *Mirror) QueueSetReference(vals []float64, deadline time.Time) (int64, status.Code) {
	if code := m.checkVector(vals); code != status.OK {
		return 0, code
	}
	return m.QueueCommand(object.CommandSend, deadline, func() {
		m.setSendKind(SendKindReference)
		m.setVector(vecRequested, vals)
	})
}

// ServerApplySetReference is the server side of set_reference: called
// after ServerAwaitCommand returns CommandSend with SendKind ==
// SendKindReference.
func (m *Mirror) ServerApplySetReference() {
	m.setVector(vecReference, m.Requested())
	m.ServerCompleteCommand(m.State())
}

// QueueSetPerturbation installs a one-shot perturbation applied to the
// next send.
func (m *Mirror) QueueSetPerturbation(vals []float64, deadline time.Time) (int64, status.Code) {
	if code := m.checkVector(vals); code != status.OK {
		return 0, code
	}
	return m.QueueCommand(object.CommandSend, deadline, func() {
		m.setSendKind(SendKindPerturbation)
		m.setVector(vecPerturbation, vals)
	})
}

// ServerApplySetPerturbation is the server side of set_perturbation: the
// staged vector is already in place (QueueSetPerturbation wrote it
// directly), so this just completes the command.
func (m *Mirror) ServerApplySetPerturbation() {
	m.ServerCompleteCommand(m.State())
}

// QueueSend requests effective = clamp(reference + perturbation + vals,
// cmin, cmax) and publishes it in the next ring slot carrying mark.
func (m *Mirror) QueueSend(vals []float64, mark int32, deadline time.Time) (int64, status.Code) {
	if code := m.checkVector(vals); code != status.OK {
		return 0, code
	}
	return m.QueueCommand(object.CommandSend, deadline, func() {
		m.setSendKind(SendKindMove)
		m.setVector(vecRequested, vals)
		binary.LittleEndian.PutUint32(m.mem[offMark:], uint32(mark))
	})
}

// QueueReset is equivalent to QueueSend with vals ≡ 0.
func (m *Mirror) QueueReset(mark int32, deadline time.Time) (int64, status.Code) {
	return m.QueueSend(make([]float64, m.nacts), mark, deadline)
}

// OnSend is the server callback contract of §4.8: given the pre-clamped
// target (reference + perturbation + requested), it may further restrict
// the vector (device-dependent); the value it returns is what gets
// clamped to [cmin,cmax] and published.
type OnSend func(requestedEffective []float64) []float64

// ServerApplySend is the server side of send/reset: it computes the
// pre-clamped target, runs the optional hook, clamps to the actuator
// bounds, stores the result as Effective, clears the one-shot
// perturbation, publishes the ring slot, and completes the command.
func (m *Mirror) ServerApplySend(hook OnSend) {
	reference, perturbation, requested := m.Reference(), m.Perturbation(), m.Requested()
	target := make([]float64, m.nacts)
	for i := range target {
		target[i] = reference[i] + perturbation[i] + requested[i]
	}
	if hook != nil {
		target = hook(target)
	}
	cmin, cmax := m.Bounds()
	effective := make([]float64, m.nacts)
	for i, v := range target {
		effective[i] = clampFloat(v, cmin, cmax)
	}
	m.setVector(vecEffective, effective)
	m.setVector(vecPerturbation, make([]float64, m.nacts))

	mark := m.Mark()
	m.Publish(func(slot []byte, s int64) {
		sec, nsec := clock.Now()
		object.WriteDataframeHeader(slot, s, mark, sec, nsec)
		payload := object.DataframePayload(slot)
		for i, v := range effective {
			binary.LittleEndian.PutUint64(payload[i*8:], math.Float64bits(v))
		}
	})
	m.ServerCompleteCommand(m.State())
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ReadSlot decodes a published ring slot's dataframe header plus its
// nacts-long effective-vector payload.
func (m *Mirror) ReadSlot(serial int64) (mark int32, sec, nsec int64, vals []float64) {
	slot := m.Slot((serial - 1) % m.Nbufs())
	_, mark, sec, nsec = object.ReadDataframeHeader(slot)
	payload := object.DataframePayload(slot)
	vals = make([]float64, m.nacts)
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[i*8:]))
	}
	return mark, sec, nsec, vals
}

// QueueStart, QueueStop, QueueAbort and QueueKill queue the corresponding
// argument-less commands.
func (m *Mirror) QueueStart(deadline time.Time) (int64, status.Code) {
	return m.QueueCommand(object.CommandStart, deadline, nil)
}
func (m *Mirror) QueueStop(deadline time.Time) (int64, status.Code) {
	return m.QueueCommand(object.CommandStop, deadline, nil)
}
func (m *Mirror) QueueAbort(deadline time.Time) (int64, status.Code) {
	return m.QueueCommand(object.CommandAbort, deadline, nil)
}
func (m *Mirror) QueueKill(deadline time.Time) (int64, status.Code) {
	return m.QueueCommand(object.CommandKill, deadline, nil)
}
