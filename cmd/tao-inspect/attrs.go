package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tao-rt/tao/internal/status"
	"github.com/tao-rt/tao/pkg/camera"
	"github.com/tao-rt/tao/pkg/object"
)

var attrsCmdArgs struct {
	Shmid   int
	Pattern string
}

var attrsCmd = &cobra.Command{
	Use:   "attrs",
	Short: "List a camera's configuration attributes matching a glob pattern",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runAttrs(); err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	attrsCmd.Flags().IntVar(&attrsCmdArgs.Shmid, "shmid", 0, "Camera segment id (required)")
	attrsCmd.MarkFlagRequired("shmid")
	attrsCmd.Flags().StringVar(&attrsCmdArgs.Pattern, "pattern", "*", "Glob pattern matched against attribute keys")
}

func runAttrs() error {
	shmid := int32(attrsCmdArgs.Shmid)
	cam, seg, code := camera.Attach(shmid)
	if code != status.OK {
		return fmt.Errorf("failed to attach to camera %d: %s", shmid, status.Last())
	}
	defer object.DetachObject(cam.Header, seg)

	cfg := cam.GetConfiguration()
	matches, code := camera.MatchAttributes(cfg, attrsCmdArgs.Pattern)
	if code != status.OK {
		return fmt.Errorf("bad pattern %q: %s", attrsCmdArgs.Pattern, status.Last())
	}
	if len(matches) == 0 {
		fmt.Println("(no attributes matched)")
		return nil
	}
	for _, a := range matches {
		fmt.Printf("%-30s %-7v %s\n", a.Key, attrValue(a), accessString(a.Access))
	}
	return nil
}

func attrValue(a camera.Attribute) any {
	switch a.Type {
	case camera.AttrBool:
		return a.Bool
	case camera.AttrInt:
		return a.Int
	case camera.AttrFloat:
		return a.Float
	default:
		return a.Str
	}
}

func accessString(acc camera.AttrAccess) string {
	s := ""
	if acc&camera.AttrReadable != 0 {
		s += "r"
	}
	if acc&camera.AttrWritable != 0 {
		s += "w"
	}
	if acc&camera.AttrVariable != 0 {
		s += "v"
	}
	if s == "" {
		return "-"
	}
	return s
}
