package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/tao-rt/tao/internal/clock"
	"github.com/tao-rt/tao/internal/config"
	"github.com/tao-rt/tao/internal/logging"
	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/internal/xcmd"
	"github.com/tao-rt/tao/pkg/mirror"
	"github.com/tao-rt/tao/pkg/object"
)

var serverCmdArgs struct {
	ConfigPath string
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the synthetic deformable-mirror server",
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

// ServerConfig is the configuration for the synthetic mirror server.
type ServerConfig struct {
	Logging   logging.Config `yaml:"logging"`
	Owner     string         `yaml:"owner"`
	Nacts     int32          `yaml:"nacts"`
	GridWidth int32          `yaml:"grid_width"`
	GridHeight int32         `yaml:"grid_height"`
	CMin      float64        `yaml:"cmin"`
	CMax      float64        `yaml:"cmax"`
	Nbufs     int64          `yaml:"nbufs"`
	// SlewLimit restricts how far the on_send hook lets any single
	// actuator move per command, simulating a device-dependent rate limit.
	SlewLimit float64 `yaml:"slew_limit"`
}

// DefaultServerConfig returns the default configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Logging:    logging.Config{Level: zapcore.InfoLevel},
		Owner:      "tao-mirror-server",
		Nacts:      97,
		GridWidth:  11,
		GridHeight: 9,
		CMin:       -1.0,
		CMax:       1.0,
		Nbufs:      8,
		SlewLimit:  0.2,
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

	m, seg, code := mirror.Create(cfg.Nacts, cfg.GridWidth, cfg.GridHeight, cfg.CMin, cfg.CMax, cfg.Nbufs, cfg.Owner, 0)
	if code != status.OK {
		return fmt.Errorf("failed to create mirror: %s", status.Last())
	}
	defer object.DetachObject(m.Header, seg)

	log.Infow("mirror segment created",
		"shmid", seg.Shmid(),
		"nacts", cfg.Nacts,
		"bounds", []float64{cfg.CMin, cfg.CMax},
	)

	wg, ctx := errgroup.WithContext(context.Background())
	wg.Go(func() error {
		serveCommands(ctx, m, cfg, log)
		return nil
	})

	if err := xcmd.WaitInterrupted(context.Background()); err != nil {
		log.Infow("shutting down", "reason", err)
	}
	if _, code := m.QueueKill(clock.Deadline(2 * time.Second)); code != status.OK {
		log.Warnw("failed to queue kill command", "error", status.Last())
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		log.Warn("timed out waiting for the server loop to exit")
	}
	return nil
}

func serveCommands(ctx context.Context, m *mirror.Mirror, cfg *ServerConfig, log *zap.SugaredLogger) {
	hook := slewLimiter(m, cfg.SlewLimit)

	for {
		cmd := m.ServerAwaitCommand()
		kind := m.SendKind()
		m.ServerReleaseCommand()

		switch {
		case cmd == object.CommandSend && kind == mirror.SendKindReference:
			m.ServerApplySetReference()
			log.Debug("reference updated")
		case cmd == object.CommandSend && kind == mirror.SendKindPerturbation:
			m.ServerApplySetPerturbation()
			log.Debug("perturbation staged")
		case cmd == object.CommandSend:
			m.ServerApplySend(hook)
			log.Debugw("actuators moved", "mark", m.Mark())
		case cmd == object.CommandStart:
			m.ServerCompleteCommand(object.StateWorking)
		case cmd == object.CommandStop:
			m.ServerCompleteCommand(object.StateWaiting)
		case cmd == object.CommandAbort:
			m.ServerCompleteCommand(object.StateWaiting)
		case cmd == object.CommandKill:
			m.ServerCompleteCommand(object.StateQuitting)
			log.Info("server quitting")
			return
		default:
			m.ServerCompleteCommand(m.State())
		}

		if ctx.Err() != nil {
			return
		}
	}
}

// slewLimiter builds an mirror.OnSend hook that clamps each actuator's
// per-command movement relative to the mirror's last published effective
// vector, simulating a device-dependent rate limit (spec §4.8: "may
// further restrict it, device-dependent").
func slewLimiter(m *mirror.Mirror, limit float64) mirror.OnSend {
	return func(target []float64) []float64 {
		if limit <= 0 {
			return target
		}
		prev := m.Effective()
		out := make([]float64, len(target))
		for i, v := range target {
			delta := v - prev[i]
			if delta > limit {
				delta = limit
			} else if delta < -limit {
				delta = -limit
			}
			out[i] = prev[i] + delta
		}
		return out
	}
}
