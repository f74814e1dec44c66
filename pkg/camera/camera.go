// Package camera implements component H-camera (spec §4.7): a remote
// object whose ring slots don't carry image data inline — each slot holds
// only the shmid of an externally allocated pkg/array.Array, so a consumer
// attaches to the array it names rather than reading the ring directly.
// Grounded on pkg/object.Remote for the command queue/state machine and
// output ring, the same way pkg/array builds on pkg/object.RWLocked.
package camera

import (
	"encoding/binary"
	"time"

	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/pkg/object"
	"github.com/tao-rt/tao/pkg/shm"
)

// Layout after object.RemoteHeaderSize: active config, staging config (the
// target of a pending configure command), then the four preprocessing
// correction-array shmids (a, b, q, r), then the ring of per-frame shmids.
const (
	offActiveConfig  = object.RemoteHeaderSize
	offStagingConfig = offActiveConfig + ConfigSize
	offPreproc       = offStagingConfig + ConfigSize
	preprocCount     = 4
	preprocSize      = preprocCount * 4

	ringStride = 64 // one cache line per slot; only the first 4 bytes are used
)

func ringOffset() int64 {
	end := int64(offPreproc + preprocSize)
	return (end + ringStride - 1) / ringStride * ringStride
}

// Camera is component H-camera.
type Camera struct {
	*object.Remote
	mem []byte
}

// Create allocates a camera segment sized for nbufs frame slots and writes
// an all-zero active/staging configuration stamped with the given
// (immutable) sensor dimensions.
func Create(sensorWidth, sensorHeight int32, nbufs int64, owner string, flags uint32) (*Camera, *shm.Segment, status.Code) {
	ro := ringOffset()
	totalSize := int(ro + nbufs*ringStride)

	r, seg, code := object.CreateRemote(object.FamilyRemoteCamera, totalSize, nbufs, ro, ringStride, owner, flags)
	if code != status.OK {
		return nil, nil, code
	}
	mem := seg.Bytes()

	cfg := Config{SensorWidth: sensorWidth, SensorHeight: sensorHeight}
	cfg.encode(mem[offActiveConfig:])
	cfg.encode(mem[offStagingConfig:])
	for i := 0; i < preprocCount; i++ {
		binary.LittleEndian.PutUint32(mem[offPreproc+i*4:], uint32(shm.BadShmid))
	}
	c := &Camera{Remote: r, mem: mem}
	for i := int64(0); i < nbufs; i++ {
		c.setSlotShmid(i, shm.BadShmid)
	}
	return c, seg, status.OK
}

// Attach maps an existing camera object.
func Attach(shmid int32) (*Camera, *shm.Segment, status.Code) {
	r, seg, code := object.AttachRemote(shmid, object.FamilyRemoteCamera)
	if code != status.OK {
		return nil, nil, code
	}
	return &Camera{Remote: r, mem: seg.Bytes()}, seg, status.OK
}

// GetConfiguration returns the currently active configuration.
func (c *Camera) GetConfiguration() Config {
	c.Lock()
	defer c.Unlock()
	return decodeConfig(c.mem[offActiveConfig:])
}

func (c *Camera) readStaging() Config { return decodeConfig(c.mem[offStagingConfig:]) }
func (c *Camera) writeStaging(cfg Config) status.Code {
	return cfg.encode(c.mem[offStagingConfig:])
}
func (c *Camera) writeActive(cfg Config) { cfg.encode(c.mem[offActiveConfig:]) }

// QueueConfigure is the client side of §4.7's configure command: it stages
// the requested configuration and returns the serial ServerApplyConfig will
// complete, exactly like any other command.
func (c *Camera) QueueConfigure(cfg Config, deadline time.Time) (int64, status.Code) {
	return c.QueueCommand(object.CommandConfig, deadline, func() {
		c.writeStaging(cfg)
	})
}

// ServerApplyConfig is the server side: called after ServerAwaitCommand
// returns object.CommandConfig and the mutex has been released via
// ServerReleaseCommand. It validates the staged configuration against the
// sensor bounds and the active configuration's read-only attributes; on
// success the staged configuration becomes active and the server returns
// to waiting, on rejection the state moves to error and the command still
// completes. The validation failure's kind is returned by this call (and
// recorded in the calling goroutine's last-error record); the completion
// itself carries no kind, so a client's WaitCommand reports only that the
// command completed, and the rejection is visible to it as the error state.
func (c *Camera) ServerApplyConfig() status.Code {
	cfg := c.readStaging()
	if code := c.validateConfig(cfg); code != status.OK {
		c.ServerCompleteCommand(object.StateError)
		return code
	}
	c.writeActive(cfg)
	c.ServerCompleteCommand(object.StateWaiting)
	return status.OK
}

// validateConfig checks the ROI against the (immutable) sensor bounds, the
// encoding/pixel-type/preprocessing triple's compatibility, and rejects
// any write to a non-writable existing attribute, per §4.7: "configure
// validates the region-of-interest against sensor bounds, the
// encoding/pixel-type/preprocessing triple's compatibility, and rejects
// attribute changes that target read-only attributes."
func (c *Camera) validateConfig(cfg Config) status.Code {
	active := decodeConfig(c.mem[offActiveConfig:])
	if cfg.SensorWidth != active.SensorWidth || cfg.SensorHeight != active.SensorHeight {
		return status.New("camera.Camera.validateConfig", status.KindForbiddenChange, nil)
	}
	if cfg.ROIXOffset < 0 || cfg.ROIYOffset < 0 ||
		cfg.ROIXOffset+cfg.MacroWidth > cfg.SensorWidth ||
		cfg.ROIYOffset+cfg.MacroHeight > cfg.SensorHeight {
		return status.New("camera.Camera.validateConfig", status.KindBadRange, nil)
	}
	if cfg.Preprocessing < PreprocessNone || cfg.Preprocessing > PreprocessFull {
		return status.New("camera.Camera.validateConfig", status.KindBadArgument, nil)
	}

	sensorEnc, bufEnc := Encoding(cfg.SensorEncoding), Encoding(cfg.BufEncoding)
	if !validEncoding(sensorEnc) || !validEncoding(bufEnc) {
		return status.New("camera.Camera.validateConfig", status.KindBadEncoding, nil)
	}
	if !compatibleProcessedType(bufEnc, cfg.ProcessedPixelType) {
		return status.New("camera.Camera.validateConfig", status.KindBadEncoding, nil)
	}
	if !compatiblePreprocessing(bufEnc, cfg.Preprocessing) {
		return status.New("camera.Camera.validateConfig", status.KindBadEncoding, nil)
	}

	byKey := make(map[string]Attribute, len(active.Attributes))
	for _, a := range active.Attributes {
		byKey[a.Key] = a
	}
	for _, a := range cfg.Attributes {
		prev, ok := byKey[a.Key]
		if !ok {
			continue
		}
		if prev.Access&AttrWritable == 0 && !prev.equalValue(a) {
			return status.New("camera.Camera.validateConfig", status.KindForbiddenChange, nil)
		}
	}
	return status.OK
}

// QueueStart, QueueStop, QueueAbort, QueueReset and QueueKill queue the
// corresponding argument-less commands of §4.7.
func (c *Camera) QueueStart(deadline time.Time) (int64, status.Code) {
	return c.QueueCommand(object.CommandStart, deadline, nil)
}
func (c *Camera) QueueStop(deadline time.Time) (int64, status.Code) {
	return c.QueueCommand(object.CommandStop, deadline, nil)
}
func (c *Camera) QueueAbort(deadline time.Time) (int64, status.Code) {
	return c.QueueCommand(object.CommandAbort, deadline, nil)
}
func (c *Camera) QueueReset(deadline time.Time) (int64, status.Code) {
	return c.QueueCommand(object.CommandReset, deadline, nil)
}
func (c *Camera) QueueKill(deadline time.Time) (int64, status.Code) {
	return c.QueueCommand(object.CommandKill, deadline, nil)
}

func (c *Camera) slotShmid(i int64) int32 {
	slot := c.Slot(i)
	return int32(binary.LittleEndian.Uint32(slot))
}
func (c *Camera) setSlotShmid(i int64, shmid int32) {
	slot := c.Slot(i)
	binary.LittleEndian.PutUint32(slot, uint32(shmid))
}

// PublishImage is the server side of the acquisition loop: it publishes the
// shmid of a frame already filled in an external shared array.
func (c *Camera) PublishImage(arrShmid int32) {
	c.Publish(func(slot []byte, s int64) {
		binary.LittleEndian.PutUint32(slot, uint32(arrShmid))
	})
}

// GetImageShmid returns the shmid of the acquired-frame array published
// with the given serial, or shm.BadShmid if that serial hasn't been
// published yet or has already been overwritten.
func (c *Camera) GetImageShmid(serial int64) int32 {
	if serial <= 0 || serial > c.Serial() || serial <= c.Serial()-c.Nbufs() {
		return shm.BadShmid
	}
	return c.slotShmid((serial - 1) % c.Nbufs())
}

// SetPreprocessingShmid stores the shmid of one of the four correction
// arrays (0=a, 1=b, 2=q, 3=r); called by the server once it has created
// them under a configure with Preprocessing != PreprocessNone.
func (c *Camera) SetPreprocessingShmid(i int, shmid int32) status.Code {
	if i < 0 || i >= preprocCount {
		return status.New("camera.Camera.SetPreprocessingShmid", status.KindBadArgument, nil)
	}
	binary.LittleEndian.PutUint32(c.mem[offPreproc+i*4:], uint32(shmid))
	return status.OK
}

// GetPreprocessingShmid returns the shmid of correction array i, or
// shm.BadShmid if the active configuration's preprocessing level doesn't
// require it: none requires none, affine requires a/b (0,1), full requires
// all four.
func (c *Camera) GetPreprocessingShmid(i int) int32 {
	if i < 0 || i >= preprocCount {
		return shm.BadShmid
	}
	level := c.GetConfiguration().Preprocessing
	needed := 0
	switch level {
	case PreprocessAffine:
		needed = 2
	case PreprocessFull:
		needed = 4
	}
	if i >= needed {
		return shm.BadShmid
	}
	return int32(binary.LittleEndian.Uint32(c.mem[offPreproc+i*4:]))
}
