package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sergev/floppycore/chs"
	"github.com/sergev/floppycore/config"
	"github.com/sergev/floppycore/trackdata"
)

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Erase the floppy disk",
	Long:  "Overwrite every track of the attached floppy disk with blank, fill-byte sectors.",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := config.SelectedFormat()
		extraCyls := f.Cyls + 2

		fmt.Printf("Erasing %d cylinders, %d side(s)\n", extraCyls, f.Heads)
		fmt.Print("Insert TARGET diskette in drive and press Enter when ready...")
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')

		ctx := cmd.Context()
		for cyl := 0; cyl < extraCyls; cyl++ {
			for head := 0; head < f.Heads; head++ {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				ch := chs.CylHead{Cyl: cyl, Head: head}
				tr := f.BlankTrack(cyl, head)
				fmt.Printf("Erasing cylinder %d, head %d...\n", cyl, head)
				if err := activeTransport.Save(ctx, ch, trackdata.NewTrack(ch, tr)); err != nil {
					return fmt.Errorf("failed to erase cylinder %d head %d: %w", cyl, head, err)
				}
			}
		}

		fmt.Println("Floppy disk erased successfully.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eraseCmd)
}
