package sensor

import (
	"encoding/binary"
	"math"
)

// MaxNinds and MaxNsubs bound the flexible layout grid and per-sub-image
// descriptor list (spec §4.9: "the flexible layout grid of sub-image
// indices (≤ max_ninds), and the per-sub-image descriptors (≤ max_nsubs)").
const (
	MaxNinds = 64
	MaxNsubs = 64

	ownerLen = 64
)

// Params are the Shack-Hartmann wavefront-sensor parameters; TuneConfig
// adjusts ForgettingFactor, Gain and Threshold online.
type Params struct {
	SubWidth, SubHeight int32
	Threshold           float64
	Gain                float64
	ForgettingFactor    float64
}

// CameraRef identifies the camera a sensor reads sub-images from.
type CameraRef struct {
	Owner string
	Shmid int32
	Width, Height int32
}

// SubImage is one Shack-Hartmann sub-aperture's location in the camera
// frame.
type SubImage struct {
	X, Y, Width, Height int32
}

// Config is one of the sensor's two contiguous configuration records
// (primary active, secondary staged).
type Config struct {
	Params    Params
	Camera    CameraRef
	Indices   []int32 // layout grid, length ≤ MaxNinds
	SubImages []SubImage
}

const (
	cfOffSubWidth  = 0
	cfOffSubHeight = 4
	cfOffThreshold = 8
	cfOffGain      = 16
	cfOffForget    = 24
	cfOffOwner     = 32
	cfOffShmid     = cfOffOwner + ownerLen
	cfOffCamW      = cfOffShmid + 4
	cfOffCamH      = cfOffCamW + 4
	cfOffNinds     = cfOffCamH + 4
	cfOffNsubs     = cfOffNinds + 4
	cfOffIndices   = cfOffNsubs + 4
	cfOffSubImages = cfOffIndices + MaxNinds*4
	subImageSize   = 16

	// ConfigSize is the fixed on-the-wire footprint of one Config.
	ConfigSize = cfOffSubImages + MaxNsubs*subImageSize
)

func encodeConfig(buf []byte, c Config) {
	binary.LittleEndian.PutUint32(buf[cfOffSubWidth:], uint32(c.Params.SubWidth))
	binary.LittleEndian.PutUint32(buf[cfOffSubHeight:], uint32(c.Params.SubHeight))
	binary.LittleEndian.PutUint64(buf[cfOffThreshold:], math.Float64bits(c.Params.Threshold))
	binary.LittleEndian.PutUint64(buf[cfOffGain:], math.Float64bits(c.Params.Gain))
	binary.LittleEndian.PutUint64(buf[cfOffForget:], math.Float64bits(c.Params.ForgettingFactor))

	var owner [ownerLen]byte
	copy(owner[:], c.Camera.Owner)
	copy(buf[cfOffOwner:cfOffOwner+ownerLen], owner[:])
	binary.LittleEndian.PutUint32(buf[cfOffShmid:], uint32(c.Camera.Shmid))
	binary.LittleEndian.PutUint32(buf[cfOffCamW:], uint32(c.Camera.Width))
	binary.LittleEndian.PutUint32(buf[cfOffCamH:], uint32(c.Camera.Height))

	ninds := len(c.Indices)
	if ninds > MaxNinds {
		ninds = MaxNinds
	}
	nsubs := len(c.SubImages)
	if nsubs > MaxNsubs {
		nsubs = MaxNsubs
	}
	binary.LittleEndian.PutUint32(buf[cfOffNinds:], uint32(ninds))
	binary.LittleEndian.PutUint32(buf[cfOffNsubs:], uint32(nsubs))

	for i := 0; i < ninds; i++ {
		binary.LittleEndian.PutUint32(buf[cfOffIndices+i*4:], uint32(c.Indices[i]))
	}
	for i := 0; i < nsubs; i++ {
		off := cfOffSubImages + i*subImageSize
		s := c.SubImages[i]
		binary.LittleEndian.PutUint32(buf[off:], uint32(s.X))
		binary.LittleEndian.PutUint32(buf[off+4:], uint32(s.Y))
		binary.LittleEndian.PutUint32(buf[off+8:], uint32(s.Width))
		binary.LittleEndian.PutUint32(buf[off+12:], uint32(s.Height))
	}
}

func decodeConfig(buf []byte) Config {
	var c Config
	c.Params.SubWidth = int32(binary.LittleEndian.Uint32(buf[cfOffSubWidth:]))
	c.Params.SubHeight = int32(binary.LittleEndian.Uint32(buf[cfOffSubHeight:]))
	c.Params.Threshold = math.Float64frombits(binary.LittleEndian.Uint64(buf[cfOffThreshold:]))
	c.Params.Gain = math.Float64frombits(binary.LittleEndian.Uint64(buf[cfOffGain:]))
	c.Params.ForgettingFactor = math.Float64frombits(binary.LittleEndian.Uint64(buf[cfOffForget:]))

	end := 0
	for end < ownerLen && buf[cfOffOwner+end] != 0 {
		end++
	}
	c.Camera.Owner = string(buf[cfOffOwner : cfOffOwner+end])
	c.Camera.Shmid = int32(binary.LittleEndian.Uint32(buf[cfOffShmid:]))
	c.Camera.Width = int32(binary.LittleEndian.Uint32(buf[cfOffCamW:]))
	c.Camera.Height = int32(binary.LittleEndian.Uint32(buf[cfOffCamH:]))

	ninds := int(binary.LittleEndian.Uint32(buf[cfOffNinds:]))
	nsubs := int(binary.LittleEndian.Uint32(buf[cfOffNsubs:]))
	if ninds > MaxNinds {
		ninds = MaxNinds
	}
	if nsubs > MaxNsubs {
		nsubs = MaxNsubs
	}

	c.Indices = make([]int32, ninds)
	for i := 0; i < ninds; i++ {
		c.Indices[i] = int32(binary.LittleEndian.Uint32(buf[cfOffIndices+i*4:]))
	}
	c.SubImages = make([]SubImage, nsubs)
	for i := 0; i < nsubs; i++ {
		off := cfOffSubImages + i*subImageSize
		c.SubImages[i] = SubImage{
			X:      int32(binary.LittleEndian.Uint32(buf[off:])),
			Y:      int32(binary.LittleEndian.Uint32(buf[off+4:])),
			Width:  int32(binary.LittleEndian.Uint32(buf[off+8:])),
			Height: int32(binary.LittleEndian.Uint32(buf[off+12:])),
		}
	}
	return c
}
