package camera

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tao-rt/tao/pkg/array"
)

func TestPackEncodingRoundTrip(t *testing.T) {
	e := PackEncoding(22, 88, ColorantMono, FlagParallel|FlagCoded)
	require.Equal(t, 22, e.BitsPerPixel())
	require.Equal(t, 88, e.BitsPerPacket())
	require.Equal(t, ColorantMono, e.Colorant())
	require.Equal(t, FlagParallel|FlagCoded, e.Flags())
	require.Equal(t, EncodingParallel22Bit, e)
}

func TestValidEncoding(t *testing.T) {
	require.True(t, validEncoding(EncodingMono8))
	require.False(t, validEncoding(Encoding(0)))
	require.False(t, validEncoding(PackEncoding(12, 8, ColorantMono, 0))) // packet narrower than pixel
}

func TestCompatibleProcessedType(t *testing.T) {
	require.True(t, compatibleProcessedType(EncodingMono8, array.ElemU8))
	require.True(t, compatibleProcessedType(EncodingMono8, array.ElemU16))
	require.False(t, compatibleProcessedType(EncodingMono16, array.ElemU8))
}

func TestCompatiblePreprocessing(t *testing.T) {
	require.True(t, compatiblePreprocessing(EncodingBayerRGGB8, PreprocessNone))
	require.False(t, compatiblePreprocessing(EncodingBayerRGGB8, PreprocessAffine))
	require.True(t, compatiblePreprocessing(EncodingMono8, PreprocessFull))
}
