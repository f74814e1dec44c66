package camera

import "github.com/tao-rt/tao/pkg/array"

// Encoding is the 32-bit pixel-encoding tag of spec §3/§6: bits-per-pixel
// (bits 0-7), bits-per-packet (8-15), colorant id (16-23), flags (24-31).
// SensorEncoding and BufEncoding in Config both hold one of these.
type Encoding uint32

const (
	encBitsPerPixelShift  = 0
	encBitsPerPacketShift = 8
	encColorantShift      = 16
	encFlagsShift         = 24
	encByteMask           = 0xff
)

// Colorant identifies the channel layout a pixel encoding's bytes hold.
type Colorant uint32

const (
	ColorantMono Colorant = iota
	ColorantRGB
	ColorantBGR
	ColorantARGB
	ColorantBayer
	ColorantYUV
)

// Encoding flag bits (bits 24-31).
const (
	FlagMSBPad uint32 = 1 << iota
	FlagLSBPad
	FlagCoded
	FlagParallel
)

// PackEncoding builds an Encoding tag from its four fields.
func PackEncoding(bitsPerPixel, bitsPerPacket int, colorant Colorant, flags uint32) Encoding {
	return Encoding(
		uint32(bitsPerPixel)&encByteMask<<encBitsPerPixelShift |
			uint32(bitsPerPacket)&encByteMask<<encBitsPerPacketShift |
			uint32(colorant)&encByteMask<<encColorantShift |
			flags&encByteMask<<encFlagsShift,
	)
}

func (e Encoding) BitsPerPixel() int  { return int(uint32(e)>>encBitsPerPixelShift) & encByteMask }
func (e Encoding) BitsPerPacket() int { return int(uint32(e)>>encBitsPerPacketShift) & encByteMask }
func (e Encoding) Colorant() Colorant {
	return Colorant((uint32(e) >> encColorantShift) & encByteMask)
}
func (e Encoding) Flags() uint32 { return (uint32(e) >> encFlagsShift) & encByteMask }

// Known encodings (spec §3: "mono 8/12/12-packed/16/32, RGB/BGR/ARGB
// variants, Bayer, YUV family, and camera-specific quirks"). Computed
// rather than hand-packed into hex literals so the field breakdown stays
// the single source of truth.
var (
	EncodingMono8        = PackEncoding(8, 8, ColorantMono, 0)
	EncodingMono12       = PackEncoding(12, 16, ColorantMono, 0)
	EncodingMono12Packed = PackEncoding(12, 12, ColorantMono, FlagCoded)
	EncodingMono16       = PackEncoding(16, 16, ColorantMono, 0)
	EncodingMono32       = PackEncoding(32, 32, ColorantMono, 0)
	EncodingRGB8         = PackEncoding(24, 24, ColorantRGB, 0)
	EncodingBGR8         = PackEncoding(24, 24, ColorantBGR, 0)
	EncodingARGB8        = PackEncoding(32, 32, ColorantARGB, 0)
	EncodingBayerRGGB8   = PackEncoding(8, 8, ColorantBayer, 0)
	EncodingYUV422       = PackEncoding(16, 16, ColorantYUV, 0)
	// EncodingParallel22Bit is the spec's named quirk: 4 pixels packed
	// into 11 bytes (88 bits), 22 bits/pixel.
	EncodingParallel22Bit = PackEncoding(22, 88, ColorantMono, FlagParallel|FlagCoded)
)

// validEncoding rejects a tag whose fields can't describe a real pixel
// layout: zero bits-per-pixel, or a packet narrower than a single pixel.
func validEncoding(e Encoding) bool {
	return e.BitsPerPixel() > 0 && e.BitsPerPacket() >= e.BitsPerPixel()
}

// compatibleProcessedType reports whether pixelType is wide enough to
// hold one sample of bufEnc without truncation.
func compatibleProcessedType(bufEnc Encoding, pixelType array.ElemType) bool {
	return pixelType.Size()*8 >= bufEnc.BitsPerPixel()
}

// compatiblePreprocessing reports whether bufEnc can be fed through the
// given preprocessing level: affine correction (§4.10) is a per-pixel
// scalar operation on raw mono sensor samples, so any level beyond none
// requires a mono buffer encoding — a demosaiced or chroma-subsampled
// encoding has no single per-pixel intensity to correct.
func compatiblePreprocessing(bufEnc Encoding, level PreprocessLevel) bool {
	if level == PreprocessNone {
		return true
	}
	return bufEnc.Colorant() == ColorantMono
}
