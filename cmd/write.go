package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sergev/floppycore/config"
	"github.com/sergev/floppycore/demanddisk"
	"github.com/sergev/floppycore/imagecodec"
)

var writeCmd = &cobra.Command{
	Use:   "write FILE",
	Short: "Write an image file to the floppy disk",
	Long:  "Decode FILE with the first image codec that recognizes it and write every track to the attached floppy drive.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filename := args[0]

		in, err := openFile(filename)
		if err != nil {
			return fmt.Errorf("failed to open image %q: %w", filename, err)
		}
		defer in.Close()

		info, err := in.Stat()
		if err != nil {
			return fmt.Errorf("failed to stat image %q: %w", filename, err)
		}

		d, name, err := imagecodec.Detect(in, info.Size())
		if err != nil {
			return err
		}

		if d.Fmt.Heads > config.Heads {
			return fmt.Errorf("image with %d sides is incompatible with drive %s", d.Fmt.Heads, config.DriveName)
		}

		fmt.Printf("Detected image format: %s\n", name)
		fmt.Printf("Writing %d cylinders, %d side(s)\n", d.Fmt.Cyls, d.Fmt.Heads)

		fmt.Print("Insert TARGET diskette in drive and press Enter when ready...")
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')

		dd := demanddisk.New(d, activeTransport)
		dd.SetLogger(logger)

		ctx := cmd.Context()
		for _, ch := range d.CylHeads() {
			td, ok := d.Get(ch)
			if !ok {
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			fmt.Printf("Writing cylinder %d, head %d...\n", ch.Cyl, ch.Head)
			if err := activeTransport.Save(ctx, ch, dd.Write(ch, td)); err != nil {
				return fmt.Errorf("failed to write cylinder %d head %d: %w", ch.Cyl, ch.Head, err)
			}
		}

		fmt.Println("Floppy disk written successfully.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(writeCmd)
}
