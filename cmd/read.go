package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sergev/floppycore/config"
	"github.com/sergev/floppycore/demanddisk"
	"github.com/sergev/floppycore/disk"
)

var readCmd = &cobra.Command{
	Use:   "read [FILE]",
	Short: "Read the floppy disk and save it to an image file",
	Long:  "Read every track of the floppy disk through the attached adapter and write it to FILE (default floppy.hfe).",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filename := "floppy.hfe"
		if len(args) > 0 {
			filename = args[0]
		}

		codec, err := codecForFilename(filename)
		if err != nil {
			return err
		}

		f := config.SelectedFormat()
		d := disk.New(f)
		dd := demanddisk.New(d, activeTransport)
		dd.SetLogger(logger)

		r := disk.NewRange(f)
		ctx := cmd.Context()
		for _, ch := range r.All() {
			fmt.Printf("Reading cylinder %d, head %d...\n", ch.Cyl, ch.Head)
			if _, err := dd.Read(ctx, ch, false); err != nil {
				return fmt.Errorf("failed to read cylinder %d head %d: %w", ch.Cyl, ch.Head, err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		out, err := createFile(filename)
		if err != nil {
			return fmt.Errorf("failed to create output file %q: %w", filename, err)
		}
		defer out.Close()

		if err := codec.Writer.Write(out, d); err != nil {
			return fmt.Errorf("failed to write image %q: %w", filename, err)
		}

		fmt.Printf("Successfully read floppy disk to %s\n", filename)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(readCmd)
}
