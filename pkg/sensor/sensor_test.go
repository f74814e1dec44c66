package sensor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/pkg/object"
	"github.com/tao-rt/tao/pkg/sensor"
)

func baseConfig() sensor.Config {
	return sensor.Config{
		Params: sensor.Params{SubWidth: 16, SubHeight: 16, Threshold: 0.1, Gain: 1.0, ForgettingFactor: 0.95},
		Camera: sensor.CameraRef{Owner: "wfs-cam", Shmid: 5, Width: 128, Height: 128},
		Indices:   []int32{0, 1, 2, 3},
		SubImages: []sensor.SubImage{{X: 0, Y: 0, Width: 16, Height: 16}, {X: 16, Y: 0, Width: 16, Height: 16}},
	}
}

func newSensor(t *testing.T) *sensor.Sensor {
	t.Helper()
	s, seg, code := sensor.Create(baseConfig(), 4, "test-wfs", 0)
	require.Equal(t, status.OK, code)
	t.Cleanup(func() { object.DetachObject(s.Header, seg) })
	return s
}

func TestSensorTuneConfigBypassesCommandQueue(t *testing.T) {
	s := newSensor(t)
	before := s.Ncmds()

	s.TuneConfig(0.5, 2.0, 0.2)

	require.Equal(t, before, s.Ncmds()) // no command queued
	got := s.GetConfiguration()
	require.Equal(t, 0.5, got.Params.ForgettingFactor)
	require.Equal(t, 2.0, got.Params.Gain)
	require.Equal(t, 0.2, got.Params.Threshold)
	require.Equal(t, int32(16), got.Params.SubWidth) // layout untouched
}

func TestSensorConfigureChangesLayoutViaCommandQueue(t *testing.T) {
	s := newSensor(t)
	deadline := time.Now().Add(time.Second)

	newCfg := baseConfig()
	newCfg.SubImages = append(newCfg.SubImages, sensor.SubImage{X: 32, Y: 0, Width: 16, Height: 16})
	newCfg.Indices = append(newCfg.Indices, 4)

	expected, code := s.QueueConfigure(newCfg, deadline)
	require.Equal(t, status.OK, code)

	cmd := s.ServerAwaitCommand()
	require.Equal(t, object.CommandConfig, cmd)
	s.ServerReleaseCommand()
	s.ServerApplyConfig()

	require.Equal(t, status.OK, s.WaitCommand(expected, deadline))
	got := s.GetConfiguration()
	require.Len(t, got.SubImages, 3)
	require.Len(t, got.Indices, 5)
}

func TestSensorConfigureRejectsOversizedLayout(t *testing.T) {
	s := newSensor(t)
	cfg := baseConfig()
	cfg.Indices = make([]int32, sensor.MaxNinds+1)

	_, code := s.QueueConfigure(cfg, time.Now().Add(time.Second))
	require.Equal(t, status.ERROR, code)
	require.Equal(t, status.KindBadSize, status.Last().Kind)
}

func TestSensorPublishAndReadMeasurements(t *testing.T) {
	s := newSensor(t)

	meas := []sensor.Measurement{
		{SlopeX: 0.1, SlopeY: -0.2, Flux: 1000, Valid: true},
		{SlopeX: 0.0, SlopeY: 0.0, Flux: 0, Valid: false},
	}
	require.Equal(t, status.OK, s.PublishMeasurements(42, meas))

	mark, _, _, got := s.ReadSlot(1, len(meas))
	require.Equal(t, int32(42), mark)
	require.Equal(t, meas, got)
}
