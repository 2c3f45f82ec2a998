// Package images supplies the built-in starting images config.floppy.toml's
// [[image]] table names, replacing the teacher's catalog of pre-made
// gzip-compressed binary disk dumps (andos.bkd.gz, fat1.44.img.gz, and so
// on — none of which shipped with this retrieval) with on-the-fly
// synthesis: each named image maps to a format.BlankDisk catalog entry,
// built fresh every time rather than decompressed from an embedded blob.
package images

import (
	"fmt"

	"github.com/sergev/floppycore/disk"
	"github.com/sergev/floppycore/format"
	"github.com/sergev/floppycore/trackdata"
)

// catalogFor maps a config image name to the format.Names() entry it
// synthesizes. Extend this table, not format's catalog, when exposing a
// new built-in starting point.
var catalogFor = map[string]string{
	"blank360":  "PC 360K",
	"blank720":  "PC 720K",
	"blank1440": "PC 1.44M",
}

// Get builds a blank disk.Disk for the named built-in image, synthesizing
// every track from its format.Format via BlankTrack rather than reading
// embedded bytes.
func Get(name string) (*disk.Disk, error) {
	formatName, ok := catalogFor[name]
	if !ok {
		return nil, fmt.Errorf("embedded image not found: %s", name)
	}
	tracks, f, ok := format.BlankDisk(formatName)
	if !ok {
		return nil, fmt.Errorf("image %s names unknown format %q", name, formatName)
	}

	d := disk.New(f)
	for ch, tr := range tracks {
		d.Set(ch, trackdata.NewTrack(ch, tr))
	}
	return d, nil
}

// Names lists every built-in image name this package can synthesize.
func Names() []string {
	names := make([]string, 0, len(catalogFor))
	for name := range catalogFor {
		names = append(names, name)
	}
	return names
}
