// Command tao-cam-server runs a synthetic acquisition loop against a
// pkg/camera remote object: a demonstration and integration-test harness
// for the command queue and image ring, not a real sensor driver.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tao-cam-server",
	Short: "Synthetic TAO camera acquisition server",
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}
