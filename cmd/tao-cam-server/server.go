package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tao-rt/tao/internal/clock"
	"github.com/tao-rt/tao/internal/config"
	"github.com/tao-rt/tao/internal/logging"
	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/internal/xcmd"
	"github.com/tao-rt/tao/pkg/array"
	"github.com/tao-rt/tao/pkg/camera"
	"github.com/tao-rt/tao/pkg/object"
	"github.com/tao-rt/tao/pkg/shm"
)

var serverCmdArgs struct {
	ConfigPath string
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the synthetic acquisition server",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServer(); err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	serverCmd.Flags().StringVarP(&serverCmdArgs.ConfigPath, "config", "c", "", "Path to the configuration file")
}

// ServerConfig is the configuration for the synthetic camera server.
type ServerConfig struct {
	Logging       logging.Config    `yaml:"logging"`
	Owner         string            `yaml:"owner"`
	SensorWidth   int32             `yaml:"sensor_width"`
	SensorHeight  int32             `yaml:"sensor_height"`
	Nbufs         int64             `yaml:"nbufs"`
	FrameInterval time.Duration     `yaml:"frame_interval"`
	FrameBudget   datasize.ByteSize `yaml:"frame_budget"`
}

// DefaultServerConfig returns the default configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Logging:       logging.Config{Level: zapcore.InfoLevel},
		Owner:         "tao-cam-server",
		SensorWidth:   640,
		SensorHeight:  480,
		Nbufs:         4,
		FrameInterval: 100 * time.Millisecond,
		FrameBudget:   10 * datasize.MB,
	}
}

func runServer() error {
	cfg := DefaultServerConfig()
	if serverCmdArgs.ConfigPath != "" {
		if err := config.Load(serverCmdArgs.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	log, _, err := logging.Init(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Sync()

	cam, seg, code := camera.Create(cfg.SensorWidth, cfg.SensorHeight, cfg.Nbufs, cfg.Owner, 0)
	if code != status.OK {
		return fmt.Errorf("failed to create camera: %s", status.Last())
	}
	defer object.DetachObject(cam.Header, seg)

	frameBytes := datasize.ByteSize(int64(cfg.SensorWidth) * int64(cfg.SensorHeight) * 2)
	log.Infow("camera segment created",
		"shmid", seg.Shmid(),
		"sensor_width", cfg.SensorWidth,
		"sensor_height", cfg.SensorHeight,
		"per_frame_size", frameBytes.String(),
		"frame_budget", cfg.FrameBudget.String(),
	)
	if frameBytes*datasize.ByteSize(cfg.Nbufs) > cfg.FrameBudget {
		log.Warnw("ring exceeds configured frame budget",
			"ring_size", (frameBytes * datasize.ByteSize(cfg.Nbufs)).String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); serveCommands(ctx, cam, log) }()
	go func() { defer wg.Done(); acquireLoop(ctx, cam, cfg, log) }()

	if err := xcmd.WaitInterrupted(context.Background()); err != nil {
		log.Infow("shutting down", "reason", err)
	}
	cancel()
	if _, code := cam.QueueKill(clock.Deadline(2 * time.Second)); code != status.OK {
		log.Warnw("failed to queue kill command", "error", status.Last())
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		log.Warn("timed out waiting for server loops to exit")
	}
	return nil
}

// serveCommands runs the server half of the command protocol until it
// observes object.CommandKill.
func serveCommands(ctx context.Context, cam *camera.Camera, log *zap.SugaredLogger) {
	for {
		cmd := cam.ServerAwaitCommand()
		cam.ServerReleaseCommand()

		switch cmd {
		case object.CommandConfig:
			if code := cam.ServerApplyConfig(); code != status.OK {
				log.Warnw("configure rejected", "error", status.Last())
			} else {
				log.Debug("configure applied")
			}
		case object.CommandStart:
			cam.ServerCompleteCommand(object.StateWorking)
			log.Info("acquisition started")
		case object.CommandStop:
			cam.ServerCompleteCommand(object.StateWaiting)
			log.Info("acquisition stopped")
		case object.CommandAbort:
			cam.ServerCompleteCommand(object.StateWaiting)
			log.Warn("acquisition aborted")
		case object.CommandReset:
			cam.ServerCompleteCommand(object.StateWaiting)
			log.Info("camera reset")
		case object.CommandKill:
			cam.ServerCompleteCommand(object.StateQuitting)
			log.Info("server quitting")
			return
		default:
			cam.ServerCompleteCommand(cam.State())
		}

		if ctx.Err() != nil {
			return
		}
	}
}

// acquireLoop publishes a synthetic frame every FrameInterval while the
// camera is in the working state, recycling the ring's array segments as
// they fall out of the addressable window.
func acquireLoop(ctx context.Context, cam *camera.Camera, cfg *ServerConfig, log *zap.SugaredLogger) {
	ticker := time.NewTicker(cfg.FrameInterval)
	defer ticker.Stop()

	type slot struct {
		arr *array.Array
		seg *shm.Segment
	}
	slots := make([]slot, cfg.Nbufs)
	defer func() {
		for _, s := range slots {
			if s.arr != nil {
				object.DetachObject(s.arr.Header, s.seg)
			}
		}
	}()

	var frame int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cam.State() != object.StateWorking {
				continue
			}
			frame++
			idx := (frame - 1) % cfg.Nbufs

			arr, arrSeg, code := array.Create(array.ElemU16, []int64{int64(cfg.SensorWidth), int64(cfg.SensorHeight)}, 0)
			if code != status.OK {
				log.Warnw("failed to allocate frame array", "error", status.Last())
				continue
			}
			arr.WLock()
			arr.Fill(float64(frame % 4096))
			arr.SetSerial(frame)
			arr.RWUnlock()

			if slots[idx].arr != nil {
				object.DetachObject(slots[idx].arr.Header, slots[idx].seg)
			}
			slots[idx] = slot{arr: arr, seg: arrSeg}

			cam.PublishImage(arrSeg.Shmid())
			log.Debugw("published frame", "serial", frame, "shmid", arrSeg.Shmid())
		}
	}
}
