// Command tao-cam-client drives a running tao-cam-server: configures it,
// starts acquisition, and prints frame statistics as they arrive.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tao-cam-client",
	Short: "TAO camera client",
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}
