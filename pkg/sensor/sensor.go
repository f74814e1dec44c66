// Package sensor implements component H-sensor (spec §4.9): a remote
// wavefront sensor publishing Shack-Hartmann sub-image measurements,
// layered the same way pkg/camera and pkg/mirror are over pkg/object.Remote.
package sensor

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/tao-rt/tao/internal/clock"
	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/pkg/object"
	"github.com/tao-rt/tao/pkg/shm"
)

// Two contiguous Config records (primary active, secondary staged for
// configure) after object.RemoteHeaderSize, per §4.9.
const (
	offActiveConfig  = object.RemoteHeaderSize
	offStagingConfig = offActiveConfig + ConfigSize

	// measurementSize: slopeX, slopeY, flux float64 (24) + valid int32 +
	// 4 bytes pad for 8-byte alignment of the next measurement (32).
	measurementSize = 32
)

func ringOffset() int64 {
	end := int64(offStagingConfig + ConfigSize)
	const align = 8
	return (end + align - 1) / align * align
}

func slotStride() int64 {
	return object.DataframeHeaderSize + MaxNsubs*measurementSize
}

// Measurement is one sub-aperture's centroid slope estimate.
type Measurement struct {
	SlopeX, SlopeY, Flux float64
	Valid                bool
}

// Sensor is component H-sensor.
type Sensor struct {
	*object.Remote
	mem []byte
}

// Create allocates a sensor segment with the given initial configuration
// and nbufs ring slots, each sized to hold up to MaxNsubs measurements.
func Create(cfg Config, nbufs int64, owner string, flags uint32) (*Sensor, *shm.Segment, status.Code) {
	ro := ringOffset()
	stride := slotStride()
	totalSize := int(ro + nbufs*stride)

	r, seg, code := object.CreateRemote(object.FamilyRemoteSensor, totalSize, nbufs, ro, stride, owner, flags)
	if code != status.OK {
		return nil, nil, code
	}
	mem := seg.Bytes()
	encodeConfig(mem[offActiveConfig:], cfg)
	encodeConfig(mem[offStagingConfig:], cfg)
	return &Sensor{Remote: r, mem: mem}, seg, status.OK
}

// Attach maps an existing sensor object.
func Attach(shmid int32) (*Sensor, *shm.Segment, status.Code) {
	r, seg, code := object.AttachRemote(shmid, object.FamilyRemoteSensor)
	if code != status.OK {
		return nil, nil, code
	}
	return &Sensor{Remote: r, mem: seg.Bytes()}, seg, status.OK
}

// GetConfiguration returns the currently active configuration.
func (s *Sensor) GetConfiguration() Config {
	s.Lock()
	defer s.Unlock()
	return decodeConfig(s.mem[offActiveConfig:])
}

// TuneConfig updates run-time-only parameters (forgetting factor, gain,
// threshold) directly under the base lock, bypassing the command queue
// entirely — per §4.9, "online tuning of run-time parameters only", since
// it can never change the sub-image layout.
func (s *Sensor) TuneConfig(forgettingFactor, gain, threshold float64) {
	s.Lock()
	defer s.Unlock()
	cfg := decodeConfig(s.mem[offActiveConfig:])
	cfg.Params.ForgettingFactor = forgettingFactor
	cfg.Params.Gain = gain
	cfg.Params.Threshold = threshold
	encodeConfig(s.mem[offActiveConfig:], cfg)
}

// QueueConfigure is the client side of §4.9's configure command: it may
// change the sub-image layout, so it goes through the command queue like
// pkg/camera's configure.
func (s *Sensor) QueueConfigure(cfg Config, deadline time.Time) (int64, status.Code) {
	if len(cfg.Indices) > MaxNinds || len(cfg.SubImages) > MaxNsubs {
		return 0, status.New("sensor.Sensor.QueueConfigure", status.KindBadSize, nil)
	}
	return s.QueueCommand(object.CommandConfig, deadline, func() {
		encodeConfig(s.mem[offStagingConfig:], cfg)
	})
}

// ServerApplyConfig is the server side: promotes the staged configuration
// to active and returns to waiting. Layout bounds were already checked at
// queue time; there is no read-only-attribute concept here (unlike
// camera), so there is nothing left to reject.
func (s *Sensor) ServerApplyConfig() {
	cfg := decodeConfig(s.mem[offStagingConfig:])
	encodeConfig(s.mem[offActiveConfig:], cfg)
	s.ServerCompleteCommand(object.StateWaiting)
}

// QueueStart, QueueStop, QueueAbort, QueueReset and QueueKill queue the
// corresponding argument-less commands.
func (s *Sensor) QueueStart(deadline time.Time) (int64, status.Code) {
	return s.QueueCommand(object.CommandStart, deadline, nil)
}
func (s *Sensor) QueueStop(deadline time.Time) (int64, status.Code) {
	return s.QueueCommand(object.CommandStop, deadline, nil)
}
func (s *Sensor) QueueAbort(deadline time.Time) (int64, status.Code) {
	return s.QueueCommand(object.CommandAbort, deadline, nil)
}
func (s *Sensor) QueueReset(deadline time.Time) (int64, status.Code) {
	return s.QueueCommand(object.CommandReset, deadline, nil)
}
func (s *Sensor) QueueKill(deadline time.Time) (int64, status.Code) {
	return s.QueueCommand(object.CommandKill, deadline, nil)
}

// PublishMeasurements is the server side of the acquisition loop: it
// writes nsubs Shack-Hartmann measurements into the next ring slot under
// a fresh dataframe header.
func (s *Sensor) PublishMeasurements(mark int32, meas []Measurement) status.Code {
	if len(meas) > MaxNsubs {
		return status.New("sensor.Sensor.PublishMeasurements", status.KindBadSize, nil)
	}
	s.Publish(func(slot []byte, serial int64) {
		sec, nsec := clock.Now()
		object.WriteDataframeHeader(slot, serial, mark, sec, nsec)
		payload := object.DataframePayload(slot)
		for i, m := range meas {
			off := i * measurementSize
			binary.LittleEndian.PutUint64(payload[off:], math.Float64bits(m.SlopeX))
			binary.LittleEndian.PutUint64(payload[off+8:], math.Float64bits(m.SlopeY))
			binary.LittleEndian.PutUint64(payload[off+16:], math.Float64bits(m.Flux))
			valid := uint32(0)
			if m.Valid {
				valid = 1
			}
			binary.LittleEndian.PutUint32(payload[off+24:], valid)
		}
	})
	return status.OK
}

// ReadSlot decodes a published ring slot's dataframe header plus its
// nsubs measurements.
func (s *Sensor) ReadSlot(serial int64, nsubs int) (mark int32, sec, nsec int64, meas []Measurement) {
	slot := s.Slot((serial - 1) % s.Nbufs())
	_, mark, sec, nsec = object.ReadDataframeHeader(slot)
	payload := object.DataframePayload(slot)
	meas = make([]Measurement, nsubs)
	for i := range meas {
		off := i * measurementSize
		meas[i] = Measurement{
			SlopeX: math.Float64frombits(binary.LittleEndian.Uint64(payload[off:])),
			SlopeY: math.Float64frombits(binary.LittleEndian.Uint64(payload[off+8:])),
			Flux:   math.Float64frombits(binary.LittleEndian.Uint64(payload[off+16:])),
			Valid:  binary.LittleEndian.Uint32(payload[off+24:]) != 0,
		}
	}
	return mark, sec, nsec, meas
}
