package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/tao-rt/tao/internal/clock"
	"github.com/tao-rt/tao/internal/logging"
	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/pkg/array"
	"github.com/tao-rt/tao/pkg/camera"
	"github.com/tao-rt/tao/pkg/object"
	"github.com/tao-rt/tao/pkg/shm"
)

var watchCmdArgs struct {
	Shmid        int
	ROIWidth     int32
	ROIHeight    int32
	Frames       int
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Configure, start and watch a camera's image ring",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runWatch(); err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	watchCmd.Flags().IntVar(&watchCmdArgs.Shmid, "shmid", 0, "Camera segment id (required)")
	watchCmd.MarkFlagRequired("shmid")
	watchCmd.Flags().Int32Var(&watchCmdArgs.ROIWidth, "roi-width", 640, "Region-of-interest macro width")
	watchCmd.Flags().Int32Var(&watchCmdArgs.ROIHeight, "roi-height", 480, "Region-of-interest macro height")
	watchCmd.Flags().IntVar(&watchCmdArgs.Frames, "frames", 10, "Number of frames to watch before exiting")
}

func runWatch() error {
	log, _, err := logging.Init(&logging.Config{Level: zapcore.InfoLevel})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Sync()

	cam, seg, code := camera.Attach(int32(watchCmdArgs.Shmid))
	if code != status.OK {
		return fmt.Errorf("failed to attach to camera %d: %s", watchCmdArgs.Shmid, status.Last())
	}
	defer object.DetachObject(cam.Header, seg)

	// Start from the active configuration and only change the ROI: the
	// encoding/pixel-type/preprocessing triple must stay self-consistent
	// or ServerApplyConfig rejects the whole configure with BadEncoding.
	next := cam.GetConfiguration()
	next.MacroWidth = watchCmdArgs.ROIWidth
	next.MacroHeight = watchCmdArgs.ROIHeight

	deadline := clock.Deadline(5 * time.Second)
	expected, code := cam.QueueConfigure(next, deadline)
	if code != status.OK {
		return fmt.Errorf("failed to queue configure: %s", status.Last())
	}
	if code := cam.WaitCommand(expected, deadline); code != status.OK {
		return fmt.Errorf("configure did not complete: %s", code)
	}

	deadline = clock.Deadline(5 * time.Second)
	expected, code = cam.QueueStart(deadline)
	if code != status.OK {
		return fmt.Errorf("failed to queue start: %s", status.Last())
	}
	if code := cam.WaitCommand(expected, deadline); code != status.OK {
		return fmt.Errorf("start did not complete: %s", code)
	}
	log.Info("acquisition started")

	var serial int64
	for i := 0; i < watchCmdArgs.Frames; i++ {
		s, code := cam.WaitOutput(serial+1, clock.Deadline(5*time.Second))
		switch {
		case code == status.OK:
			serial = s
		case s == object.OutputOverwritten:
			log.Warn("frame overwritten before we could read it, resyncing")
			serial = cam.Serial()
			continue
		case s == object.OutputUnreachable:
			return fmt.Errorf("camera server is no longer reachable")
		default:
			return fmt.Errorf("wait_output failed: %s", code)
		}

		arrShmid := cam.GetImageShmid(serial)
		arr, arrSeg, err := attachWithRetry(arrShmid)
		if err != nil {
			log.Warnw("failed to attach to frame array", "error", err)
			continue
		}

		arr.AbstimedRLock(clock.Deadline(time.Second))
		arraySerial := arr.Serial()
		sample := arr.Get(0)
		arr.RWUnlock()
		object.DetachObject(arr.Header, arrSeg)

		log.Infow("frame received", "serial", serial, "array_serial", arraySerial, "sample", sample)
	}
	return nil
}

// attachWithRetry retries attaching to a just-published frame array: the
// shmid is valid the instant wait_output returns it, but a client racing a
// server detach of a stale slot may transiently see ENOENT.
func attachWithRetry(shmid int32) (*array.Array, *shm.Segment, error) {
	type result struct {
		arr *array.Array
		seg *shm.Segment
	}
	op := func() (result, error) {
		arr, seg, code := array.Attach(shmid)
		if code != status.OK {
			return result{}, fmt.Errorf("%s", status.Last())
		}
		return result{arr: arr, seg: seg}, nil
	}
	r, err := backoff.Retry(context.Background(), op,
		backoff.WithMaxTries(5), backoff.WithBackOff(backoff.NewExponentialBackOff()))
	if err != nil {
		return nil, nil, err
	}
	return r.arr, r.seg, nil
}
