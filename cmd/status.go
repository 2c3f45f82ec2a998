package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sergev/floppycore/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the status of the floppy controller",
	Long:  "Check the status of the USB floppy disk controller and report retry support.",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Adapter supports retries: %v\n", activeTransport.SupportsRetries())
		fmt.Printf("Floppy drive: %s\n", config.DriveName)
		fmt.Printf("Geometry: %d cylinders, %d side(s)\n", config.Cyls, config.Heads)
		fmt.Printf("Speed: %d RPM, max %d kbps\n", config.RPM, config.MaxKBps)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
