package camera_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/pkg/array"
	"github.com/tao-rt/tao/pkg/camera"
	"github.com/tao-rt/tao/pkg/object"
	"github.com/tao-rt/tao/pkg/shm"
)

func newCamera(t *testing.T, nbufs int64) *camera.Camera {
	t.Helper()
	c, seg, code := camera.Create(128, 96, nbufs, "test-cam", 0)
	require.Equal(t, status.OK, code)
	t.Cleanup(func() { object.DetachObject(c.Header, seg) })
	return c
}

func TestCameraConfigureRejectsOutOfBoundsROI(t *testing.T) {
	c := newCamera(t, 4)

	expected, code := c.QueueConfigure(camera.Config{
		SensorWidth: 128, SensorHeight: 96,
		ROIXOffset: 100, MacroWidth: 64,
		ROIYOffset: 0, MacroHeight: 32,
	}, time.Now().Add(time.Second))
	require.Equal(t, status.OK, code)

	cmd := c.ServerAwaitCommand()
	require.Equal(t, object.CommandConfig, cmd)
	c.ServerReleaseCommand()
	code = c.ServerApplyConfig()
	require.Equal(t, status.ERROR, code)
	require.Equal(t, status.KindBadRange, status.Last().Kind)

	require.Equal(t, status.OK, c.WaitCommand(expected, time.Now().Add(time.Second)))
	require.Equal(t, object.StateError, c.State())
}

func TestCameraConfigureRejectsReadOnlyAttributeChange(t *testing.T) {
	c := newCamera(t, 4)

	_, code := c.QueueConfigure(camera.Config{
		SensorWidth: 128, SensorHeight: 96,
		SensorEncoding: uint32(camera.EncodingMono8), BufEncoding: uint32(camera.EncodingMono8),
		ProcessedPixelType: array.ElemU8,
		Attributes:         []camera.Attribute{{Key: "serial-number", Type: camera.AttrString, Str: "abc123", Access: camera.AttrReadable}},
	}, time.Now().Add(time.Second))
	require.Equal(t, status.OK, code)
	cmd := c.ServerAwaitCommand()
	require.Equal(t, object.CommandConfig, cmd)
	c.ServerReleaseCommand()
	require.Equal(t, status.OK, c.ServerApplyConfig())

	_, code = c.QueueConfigure(camera.Config{
		SensorWidth: 128, SensorHeight: 96,
		SensorEncoding: uint32(camera.EncodingMono8), BufEncoding: uint32(camera.EncodingMono8),
		ProcessedPixelType: array.ElemU8,
		Attributes:         []camera.Attribute{{Key: "serial-number", Type: camera.AttrString, Str: "changed", Access: camera.AttrReadable}},
	}, time.Now().Add(time.Second))
	require.Equal(t, status.OK, code)
	cmd = c.ServerAwaitCommand()
	c.ServerReleaseCommand()
	code = c.ServerApplyConfig()
	require.Equal(t, status.ERROR, code)
	require.Equal(t, status.KindForbiddenChange, status.Last().Kind)
}

func TestCameraImageRingAndShmidByLevel(t *testing.T) {
	c := newCamera(t, 2)

	require.Equal(t, shm.BadShmid, c.GetImageShmid(1))

	c.PublishImage(42)
	require.Equal(t, int32(42), c.GetImageShmid(1))
	c.PublishImage(43)
	require.Equal(t, int32(43), c.GetImageShmid(2))
	// Third publish overwrites slot 0 (2-deep ring): serial 1 is gone.
	c.PublishImage(44)
	require.Equal(t, shm.BadShmid, c.GetImageShmid(1))
	require.Equal(t, int32(44), c.GetImageShmid(3))

	require.Equal(t, shm.BadShmid, c.GetPreprocessingShmid(0))
	require.Equal(t, status.OK, c.SetPreprocessingShmid(0, 7))
	require.Equal(t, status.OK, c.SetPreprocessingShmid(1, 8))
	require.Equal(t, status.OK, c.SetPreprocessingShmid(2, 9))
	require.Equal(t, status.OK, c.SetPreprocessingShmid(3, 10))

	_, code := c.QueueConfigure(camera.Config{
		SensorWidth: 128, SensorHeight: 96, Preprocessing: camera.PreprocessAffine,
		SensorEncoding: uint32(camera.EncodingMono8), BufEncoding: uint32(camera.EncodingMono8),
		ProcessedPixelType: array.ElemU8,
	}, time.Now().Add(time.Second))
	require.Equal(t, status.OK, code)
	cmd := c.ServerAwaitCommand()
	require.Equal(t, object.CommandConfig, cmd)
	c.ServerReleaseCommand()
	require.Equal(t, status.OK, c.ServerApplyConfig())

	require.Equal(t, int32(7), c.GetPreprocessingShmid(0))
	require.Equal(t, int32(8), c.GetPreprocessingShmid(1))
	require.Equal(t, shm.BadShmid, c.GetPreprocessingShmid(2))
	require.Equal(t, shm.BadShmid, c.GetPreprocessingShmid(3))
}

func TestCameraConfigureRejectsMalformedEncoding(t *testing.T) {
	c := newCamera(t, 4)

	_, code := c.QueueConfigure(camera.Config{
		SensorWidth: 128, SensorHeight: 96,
		SensorEncoding: uint32(camera.EncodingMono8), BufEncoding: 0,
		ProcessedPixelType: array.ElemU8,
	}, time.Now().Add(time.Second))
	require.Equal(t, status.OK, code)
	cmd := c.ServerAwaitCommand()
	require.Equal(t, object.CommandConfig, cmd)
	c.ServerReleaseCommand()
	code = c.ServerApplyConfig()
	require.Equal(t, status.ERROR, code)
	require.Equal(t, status.KindBadEncoding, status.Last().Kind)
}

func TestCameraConfigureRejectsPreprocessingOnColorEncoding(t *testing.T) {
	c := newCamera(t, 4)

	_, code := c.QueueConfigure(camera.Config{
		SensorWidth: 128, SensorHeight: 96, Preprocessing: camera.PreprocessAffine,
		SensorEncoding: uint32(camera.EncodingBayerRGGB8), BufEncoding: uint32(camera.EncodingBayerRGGB8),
		ProcessedPixelType: array.ElemU8,
	}, time.Now().Add(time.Second))
	require.Equal(t, status.OK, code)
	cmd := c.ServerAwaitCommand()
	require.Equal(t, object.CommandConfig, cmd)
	c.ServerReleaseCommand()
	code = c.ServerApplyConfig()
	require.Equal(t, status.ERROR, code)
	require.Equal(t, status.KindBadEncoding, status.Last().Kind)
}

func TestCameraConfigureRejectsTooNarrowProcessedType(t *testing.T) {
	c := newCamera(t, 4)

	_, code := c.QueueConfigure(camera.Config{
		SensorWidth: 128, SensorHeight: 96,
		SensorEncoding: uint32(camera.EncodingMono16), BufEncoding: uint32(camera.EncodingMono16),
		ProcessedPixelType: array.ElemU8,
	}, time.Now().Add(time.Second))
	require.Equal(t, status.OK, code)
	cmd := c.ServerAwaitCommand()
	require.Equal(t, object.CommandConfig, cmd)
	c.ServerReleaseCommand()
	code = c.ServerApplyConfig()
	require.Equal(t, status.ERROR, code)
	require.Equal(t, status.KindBadEncoding, status.Last().Kind)
}
