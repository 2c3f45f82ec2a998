// Package transport defines the capture/write-back boundary between the
// flux data model and physical hardware or flux-level image files
// (spec.md §6), implemented concretely by transport/greaseweazle,
// transport/supercardpro and transport/kryoflux.
package transport

import (
	"context"

	"github.com/sergev/floppycore/chs"
	"github.com/sergev/floppycore/trackdata"
)

// Transport is the capability set DemandDisk needs from a physical or
// file-backed flux source: load one track's flux revolutions, write one
// back, and report whether retried reads are meaningful for this source
// (a flux image file has exactly the revolutions it was captured with; a
// live drive can be re-read).
type Transport interface {
	Load(ctx context.Context, ch chs.CylHead, revs int, firstRead bool) (trackdata.TrackData, error)
	Save(ctx context.Context, ch chs.CylHead, td trackdata.TrackData) error
	SupportsRetries() bool
}
