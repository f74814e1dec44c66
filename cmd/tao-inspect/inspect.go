package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/pkg/camera"
	"github.com/tao-rt/tao/pkg/mirror"
	"github.com/tao-rt/tao/pkg/object"
	"github.com/tao-rt/tao/pkg/sensor"
)

var inspectCmdArgs struct {
	Shmid int
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print a shared object's header and, for remote objects, its state",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runInspect(); err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	inspectCmd.Flags().IntVar(&inspectCmdArgs.Shmid, "shmid", 0, "Shared object segment id (required)")
	inspectCmd.MarkFlagRequired("shmid")
}

func runInspect() error {
	shmid := int32(inspectCmdArgs.Shmid)

	h, seg, code := object.AttachObject(shmid, object.FamilyBase)
	if code != status.OK {
		return fmt.Errorf("failed to attach to object %d: %s", shmid, status.Last())
	}
	family := h.Family()
	fmt.Printf("shmid:  %d\n", h.Shmid())
	fmt.Printf("family: 0x%02x\n", family)
	fmt.Printf("size:   %d bytes\n", h.Size())
	fmt.Printf("flags:  0x%08x (persistent=%v)\n", h.Flags(), h.Persistent())
	object.DetachObject(h, seg)

	switch family {
	case object.FamilyRemoteCamera:
		cam, seg, code := camera.Attach(shmid)
		if code != status.OK {
			return fmt.Errorf("failed to attach as camera: %s", status.Last())
		}
		defer object.DetachObject(cam.Header, seg)
		printRemoteState(cam.Remote)
		cfg := cam.GetConfiguration()
		fmt.Printf("sensor: %dx%d  roi: %dx%d @ (%d,%d)  macro: %dx%d\n",
			cfg.SensorWidth, cfg.SensorHeight, cfg.ROIXBin, cfg.ROIYBin,
			cfg.ROIXOffset, cfg.ROIYOffset, cfg.MacroWidth, cfg.MacroHeight)
		fmt.Printf("frame_rate: %.3f  exposure: %.6f  preprocessing: %v  attributes: %d\n",
			cfg.FrameRate, cfg.ExposureTime, cfg.Preprocessing, len(cfg.Attributes))

	case object.FamilyRemoteMirror:
		m, seg, code := mirror.Attach(shmid)
		if code != status.OK {
			return fmt.Errorf("failed to attach as mirror: %s", status.Last())
		}
		defer object.DetachObject(m.Header, seg)
		printRemoteState(m.Remote)
		w, hgt := m.Grid()
		cmin, cmax := m.Bounds()
		fmt.Printf("nacts: %d  grid: %dx%d  bounds: [%.3f, %.3f]  mark: %d\n",
			m.Nacts(), w, hgt, cmin, cmax, m.Mark())

	case object.FamilyRemoteSensor:
		s, seg, code := sensor.Attach(shmid)
		if code != status.OK {
			return fmt.Errorf("failed to attach as sensor: %s", status.Last())
		}
		defer object.DetachObject(s.Header, seg)
		printRemoteState(s.Remote)
		cfg := s.GetConfiguration()
		fmt.Printf("sub_images: %d  indices: %d  threshold: %.3f  gain: %.3f\n",
			len(cfg.SubImages), len(cfg.Indices), cfg.Params.Threshold, cfg.Params.Gain)

	case object.FamilySharedArray:
		fmt.Println("(shared array: attach with the array-specific tooling for element detail)")

	default:
		fmt.Println("(base/rwlocked object: no further remote state to print)")
	}
	return nil
}

func printRemoteState(r *object.Remote) {
	fmt.Printf("state:  %s\n", r.State())
	fmt.Printf("ncmds:  %d  serial: %d  nbufs: %d\n", r.Ncmds(), r.Serial(), r.Nbufs())
}
