package camera

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tao-rt/tao/internal/status"
)

func TestConfigEncodeDecodeRoundTrip(t *testing.T) {
	cfg := Config{
		SensorWidth:  1024,
		SensorHeight: 768,
		ROIXBin:      2,
		ROIYBin:      2,
		ROIXOffset:   10,
		ROIYOffset:   20,
		MacroWidth:   512,
		MacroHeight:  384,
		FrameRate:    60.5,
		ExposureTime: 0.016667,
		NumBuffers:     8,
		SensorEncoding: uint32(EncodingMono16),
		BufEncoding:    uint32(EncodingMono8),
		Preprocessing:  PreprocessAffine,
		Attributes: []Attribute{
			{Key: "gain", Type: AttrFloat, Float: 1.5, Access: AttrReadable | AttrWritable},
			{Key: "serial_number", Type: AttrString, Str: "CAM-0042", Access: AttrReadable},
			{Key: "cooled", Type: AttrBool, Bool: true, Access: AttrReadable | AttrVariable},
			{Key: "frame_count", Type: AttrInt, Int: 123456789, Access: AttrReadable},
		},
	}

	buf := make([]byte, ConfigSize)
	if code := cfg.encode(buf); code != status.OK {
		t.Fatalf("encode failed: %v", code)
	}
	got := decodeConfig(buf)

	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Errorf("config round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigEncodeRejectsTooManyAttributes(t *testing.T) {
	attrs := make([]Attribute, MaxAttributes+1)
	cfg := Config{Attributes: attrs}
	buf := make([]byte, ConfigSize)
	if code := cfg.encode(buf); code == status.OK {
		t.Fatal("expected encode to reject an oversized attribute list")
	}
}
