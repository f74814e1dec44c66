// Command tao-mirror-server runs a synthetic deformable-mirror driver
// against a pkg/mirror remote object.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tao-mirror-server",
	Short: "Synthetic TAO deformable-mirror server",
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
