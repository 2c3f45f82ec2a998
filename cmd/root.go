// Package cmd wires the cobra CLI to the transport/imagecodec/demanddisk
// stack, replacing the teacher's adapter.FloppyAdapter dispatch (a single
// interface with just PrintStatus/Read/Write methods, type-asserted back
// to *greaseweazle.Client whenever a verb needed more) with a root verb
// set built directly on transport.Transport plus the shared disk/
// demanddisk/config/imagecodec packages every verb operates through.
package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"

	"github.com/sergev/floppycore/config"
	_ "github.com/sergev/floppycore/imagecodec/adf"
	_ "github.com/sergev/floppycore/imagecodec/hfe"
	_ "github.com/sergev/floppycore/imagecodec/rawimg"
	"github.com/sergev/floppycore/logging"
	"github.com/sergev/floppycore/transport"
	"github.com/sergev/floppycore/transport/greaseweazle"
	"github.com/sergev/floppycore/transport/kryoflux"
	"github.com/sergev/floppycore/transport/supercardpro"
)

var (
	activeTransport transport.Transport
	logger          = logging.Stderr
)

var rootCmd = &cobra.Command{
	Use:   "floppycore",
	Short: "A CLI program which works with floppy disks via USB adapter",
	Long:  "floppycore reads and writes floppy disks through a Greaseweazle, SuperCard Pro, or KryoFlux USB adapter.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		t, err := findTransport()
		if err != nil {
			return fmt.Errorf("failed to find USB adapter: %w", err)
		}
		activeTransport = t
		return nil
	},
}

// findTransport probes connected serial ports for a Greaseweazle,
// SuperCard Pro, or KryoFlux adapter, trying them in that order the way
// the teacher's findAdapter did.
func findTransport() (transport.Transport, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	matches := func(port *enumerator.PortDetails, vid, pid uint16) bool {
		gotVID, err := strconv.ParseUint(port.VID, 16, 16)
		if err != nil {
			return false
		}
		gotPID, err := strconv.ParseUint(port.PID, 16, 16)
		if err != nil {
			return false
		}
		return uint16(gotVID) == vid && uint16(gotPID) == pid
	}

	for _, port := range ports {
		if matches(port, greaseweazle.VendorID, greaseweazle.ProductID) {
			if c, err := greaseweazle.NewClient(port.Name); err == nil {
				return c, nil
			}
		}
	}
	for _, port := range ports {
		if matches(port, supercardpro.VendorID, supercardpro.ProductID) {
			if c, err := supercardpro.NewClient(port.Name); err == nil {
				return c, nil
			}
		}
	}
	for _, port := range ports {
		if matches(port, kryoflux.VendorID, kryoflux.ProductID) {
			if c, err := kryoflux.NewClient(port.Name); err == nil {
				return c, nil
			}
		}
	}

	return nil, fmt.Errorf("no supported USB adapter found (Greaseweazle: VID=0x%04x PID=0x%04x, SuperCard Pro: VID=0x%04x PID=0x%04x, KryoFlux: VID=0x%04x PID=0x%04x)",
		greaseweazle.VendorID, greaseweazle.ProductID,
		supercardpro.VendorID, supercardpro.ProductID,
		kryoflux.VendorID, kryoflux.ProductID)
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	cobra.CheckErr(rootCmd.ExecuteContext(context.Background()))
}
