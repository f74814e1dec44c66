package camera

import (
	"encoding/binary"
	"math"

	"github.com/gobwas/glob"

	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/pkg/array"
)

// PreprocessLevel selects which correction arrays (spec §4.7) a
// configuration requires.
type PreprocessLevel int32

const (
	PreprocessNone PreprocessLevel = iota
	PreprocessAffine
	PreprocessFull
)

// AttrType and AttrAccess describe one entry of a configuration's
// key/value attribute set (spec §3: "up to 50 key/value attributes").
type AttrType int32

const (
	AttrBool AttrType = iota
	AttrInt
	AttrFloat
	AttrString
)

type AttrAccess uint32

const (
	AttrReadable AttrAccess = 1 << iota
	AttrWritable
	AttrVariable
)

// MaxAttributes and MaxKeyLen/MaxStringLen bound the attribute set exactly
// as spec §3 does ("key ≤ 30 chars, value ... 32-char string").
const (
	MaxAttributes = 50
	MaxKeyLen     = 30
	MaxStringLen  = 32
)

// Attribute is one camera configuration key/value pair.
type Attribute struct {
	Key    string
	Type   AttrType
	Bool   bool
	Int    int64
	Float  float64
	Str    string
	Access AttrAccess
}

func (a Attribute) equalValue(b Attribute) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case AttrBool:
		return a.Bool == b.Bool
	case AttrInt:
		return a.Int == b.Int
	case AttrFloat:
		return a.Float == b.Float
	default:
		return a.Str == b.Str
	}
}

// MatchAttributes returns every attribute of cfg whose key matches the
// given glob pattern (e.g. "roi_*", "*gain*"), used by the inspector CLI
// to look up groups of related attributes without an exact key.
func MatchAttributes(cfg Config, pattern string) ([]Attribute, status.Code) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, status.New("camera.MatchAttributes", status.KindBadArgument, nil)
	}
	var out []Attribute
	for _, a := range cfg.Attributes {
		if g.Match(a.Key) {
			out = append(out, a)
		}
	}
	return out, status.OK
}

// attrRecordSize is the fixed on-the-wire size of one Attribute: 30-byte
// key, 2 bytes pad, 4-byte type, 4-byte access, 32-byte value union (first
// 8 bytes double as int64/float64/bool storage).
const attrRecordSize = MaxKeyLen + 2 + 4 + 4 + MaxStringLen

func encodeAttr(buf []byte, a Attribute) {
	var key [MaxKeyLen]byte
	copy(key[:], a.Key)
	copy(buf[0:MaxKeyLen], key[:])
	binary.LittleEndian.PutUint32(buf[32:], uint32(a.Type))
	binary.LittleEndian.PutUint32(buf[36:], uint32(a.Access))
	switch a.Type {
	case AttrBool:
		if a.Bool {
			buf[40] = 1
		}
	case AttrInt:
		binary.LittleEndian.PutUint64(buf[40:], uint64(a.Int))
	case AttrFloat:
		binary.LittleEndian.PutUint64(buf[40:], math.Float64bits(a.Float))
	case AttrString:
		var s [MaxStringLen]byte
		copy(s[:], a.Str)
		copy(buf[40:40+MaxStringLen], s[:])
	}
}

func decodeAttr(buf []byte) Attribute {
	var a Attribute
	end := 0
	for end < MaxKeyLen && buf[end] != 0 {
		end++
	}
	a.Key = string(buf[0:end])
	a.Type = AttrType(int32(binary.LittleEndian.Uint32(buf[32:])))
	a.Access = AttrAccess(binary.LittleEndian.Uint32(buf[36:]))
	switch a.Type {
	case AttrBool:
		a.Bool = buf[40] != 0
	case AttrInt:
		a.Int = int64(binary.LittleEndian.Uint64(buf[40:]))
	case AttrFloat:
		a.Float = math.Float64frombits(binary.LittleEndian.Uint64(buf[40:]))
	case AttrString:
		send := 40
		for send < 40+MaxStringLen && buf[send] != 0 {
			send++
		}
		a.Str = string(buf[40:send])
	}
	return a
}

// Config is the camera configuration "plain record" of spec §3.
type Config struct {
	SensorWidth, SensorHeight   int32
	ROIXBin, ROIYBin            int32
	ROIXOffset, ROIYOffset      int32
	MacroWidth, MacroHeight     int32
	FrameRate                   float64
	ExposureTime                float64
	NumBuffers                  int32
	ProcessedPixelType          array.ElemType
	SensorEncoding, BufEncoding uint32
	Preprocessing               PreprocessLevel
	Attributes                  []Attribute
}

// configFixedSize is everything in Config up to the attribute list.
const configFixedSize = 4*8 + 8*2 + 4 + 4 + 4*2 + 4 + 4 // = 72, rounded up to 80 below

// ConfigSize is the fixed on-the-wire footprint of one Config, including
// its full (zero-padded) attribute slots.
const ConfigSize = 80 + MaxAttributes*attrRecordSize

func (c Config) encode(buf []byte) status.Code {
	if len(c.Attributes) > MaxAttributes {
		return status.New("camera.Config.encode", status.KindBadArgument, nil)
	}
	binary.LittleEndian.PutUint32(buf[0:], uint32(c.SensorWidth))
	binary.LittleEndian.PutUint32(buf[4:], uint32(c.SensorHeight))
	binary.LittleEndian.PutUint32(buf[8:], uint32(c.ROIXBin))
	binary.LittleEndian.PutUint32(buf[12:], uint32(c.ROIYBin))
	binary.LittleEndian.PutUint32(buf[16:], uint32(c.ROIXOffset))
	binary.LittleEndian.PutUint32(buf[20:], uint32(c.ROIYOffset))
	binary.LittleEndian.PutUint32(buf[24:], uint32(c.MacroWidth))
	binary.LittleEndian.PutUint32(buf[28:], uint32(c.MacroHeight))
	binary.LittleEndian.PutUint64(buf[32:], math.Float64bits(c.FrameRate))
	binary.LittleEndian.PutUint64(buf[40:], math.Float64bits(c.ExposureTime))
	binary.LittleEndian.PutUint32(buf[48:], uint32(c.NumBuffers))
	binary.LittleEndian.PutUint32(buf[52:], uint32(c.ProcessedPixelType))
	binary.LittleEndian.PutUint32(buf[56:], c.SensorEncoding)
	binary.LittleEndian.PutUint32(buf[60:], c.BufEncoding)
	binary.LittleEndian.PutUint32(buf[64:], uint32(c.Preprocessing))
	binary.LittleEndian.PutUint32(buf[68:], uint32(len(c.Attributes)))

	for i, a := range c.Attributes {
		encodeAttr(buf[80+i*attrRecordSize:], a)
	}
	return status.OK
}

func decodeConfig(buf []byte) Config {
	var c Config
	c.SensorWidth = int32(binary.LittleEndian.Uint32(buf[0:]))
	c.SensorHeight = int32(binary.LittleEndian.Uint32(buf[4:]))
	c.ROIXBin = int32(binary.LittleEndian.Uint32(buf[8:]))
	c.ROIYBin = int32(binary.LittleEndian.Uint32(buf[12:]))
	c.ROIXOffset = int32(binary.LittleEndian.Uint32(buf[16:]))
	c.ROIYOffset = int32(binary.LittleEndian.Uint32(buf[20:]))
	c.MacroWidth = int32(binary.LittleEndian.Uint32(buf[24:]))
	c.MacroHeight = int32(binary.LittleEndian.Uint32(buf[28:]))
	c.FrameRate = math.Float64frombits(binary.LittleEndian.Uint64(buf[32:]))
	c.ExposureTime = math.Float64frombits(binary.LittleEndian.Uint64(buf[40:]))
	c.NumBuffers = int32(binary.LittleEndian.Uint32(buf[48:]))
	c.ProcessedPixelType = array.ElemType(int32(binary.LittleEndian.Uint32(buf[52:])))
	c.SensorEncoding = binary.LittleEndian.Uint32(buf[56:])
	c.BufEncoding = binary.LittleEndian.Uint32(buf[60:])
	c.Preprocessing = PreprocessLevel(int32(binary.LittleEndian.Uint32(buf[64:])))
	n := int(binary.LittleEndian.Uint32(buf[68:]))
	if n > MaxAttributes {
		n = MaxAttributes
	}
	c.Attributes = make([]Attribute, n)
	for i := 0; i < n; i++ {
		c.Attributes[i] = decodeAttr(buf[80+i*attrRecordSize:])
	}
	return c
}
