// Package decode turns flux timings and raw bitstreams into Tracks of
// Sectors, implementing the scan_flux/scan_bitstream family spec.md §4.4
// and §4.5 describe (grounded on original_source/include/BitstreamDecoder.h
// and mfm/reader.go's IBM-PC and Amiga sync hunters).
package decode

import (
	"github.com/sergev/floppycore/bitbuffer"
	"github.com/sergev/floppycore/chs"
	"github.com/sergev/floppycore/pll"
)

// FluxToBitstream recovers one revolution's reversal-interval sequence into
// a raw bitcell stream, running it through the adaptive software PLL: an
// interval spanning n whole bitcells resolves to (n-1) clocked zero bits
// followed by the '1' bit marking the reversal itself, the same convention
// mfm.GenerateFluxTransitions uses in the encode direction, but arrived at
// here by phase tracking rather than simple rounding, so jitter in real
// capture data doesn't accumulate drift across a long run of same-length
// intervals.
func FluxToBitstream(intervals []uint64, rate chs.DataRate) *bitbuffer.BitBuffer {
	return pll.Decode(intervals, rate)
}
