package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sergev/floppycore/config"
	"github.com/sergev/floppycore/demanddisk"
	"github.com/sergev/floppycore/images"
)

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Format the floppy disk",
	Long:  "Format the attached floppy disk by selecting from the built-in blank images configured for this drive.",
	RunE: func(cmd *cobra.Command, args []string) error {
		imageNames := config.Images
		if len(imageNames) == 0 {
			return fmt.Errorf("no images available for current drive")
		}

		fmt.Printf("Available formats for floppy drive %s:\n", config.DriveName)
		for i, name := range imageNames {
			fmt.Printf("  %s. %s\n", indexToTag(i), name)
		}
		fmt.Print("\nSelect format (default 1): ")

		reader := bufio.NewReader(os.Stdin)
		selection, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read selection: %w", err)
		}
		selection = strings.TrimSpace(selection)

		selectedIndex := 0
		if selection != "" {
			selectedIndex, err = tagToIndex(selection, len(imageNames))
			if err != nil {
				return fmt.Errorf("invalid selection: %w", err)
			}
		}

		selectedName := imageNames[selectedIndex]
		fmt.Printf("\nSelected: %s\n", selectedName)

		d, err := images.Get(selectedName)
		if err != nil {
			return fmt.Errorf("failed to build image %q: %w", selectedName, err)
		}

		if d.Fmt.Heads > config.Heads {
			return fmt.Errorf("image with %d sides is incompatible with drive %s", d.Fmt.Heads, config.DriveName)
		}

		fmt.Printf("Writing %d cylinders, %d side(s)\n\n", d.Fmt.Cyls, d.Fmt.Heads)
		fmt.Print("Insert TARGET diskette in drive and press Enter when ready...")
		_, _ = reader.ReadString('\n')
		fmt.Println()

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

		fmt.Printf("\nDiskette formatted as %q.\n", selectedName)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(formatCmd)
}

// indexToTag converts a 0-based index to a menu tag: 1-9, then a-z.
func indexToTag(index int) string {
	if index < 9 {
		return fmt.Sprintf("%d", index+1)
	}
	return string(rune('a' + index - 9))
}

// tagToIndex converts a menu tag (1-9, a-z) back to a 0-based index.
func tagToIndex(tag string, maxIndex int) (int, error) {
	tag = strings.ToLower(tag)
	if len(tag) != 1 {
		return -1, fmt.Errorf("tag must be a single character")
	}

	c := tag[0]
	switch {
	case c >= '1' && c <= '9':
		index := int(c - '1')
		if index >= maxIndex {
			return -1, fmt.Errorf("tag %s is out of range", tag)
		}
		return index, nil
	case c >= 'a' && c <= 'z':
		index := 9 + int(c-'a')
		if index >= maxIndex {
			return -1, fmt.Errorf("tag %s is out of range", tag)
		}
		return index, nil
	default:
		return -1, fmt.Errorf("invalid tag: %s (must be 1-9 or a-z)", tag)
	}
}
