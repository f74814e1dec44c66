// Command tao-inspect attaches to any TAO shared object by shmid and
// prints its header and, for remote objects, its command/output ring
// state. Cameras additionally support attribute lookup by glob pattern.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tao-inspect",
	Short: "Inspect a TAO shared object",
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(attrsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}
