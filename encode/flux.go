package encode

import (
	"github.com/sergev/floppycore/chs"
	"github.com/sergev/floppycore/flux"
)

// FluxTrackBuffer builds the same bitcell stream a BitstreamTrackBuffer
// does, then renders it as reversal-interval timings on demand, for
// transports (Greaseweazle, SuperCard Pro) that write flux
// rather than a pre-clocked bitstream to the drive.
type FluxTrackBuffer struct {
	*BitstreamTrackBuffer
	rate chs.DataRate
}

// NewFluxTrackBuffer creates an empty flux track buffer for the given
// encoding and data rate.
func NewFluxTrackBuffer(encoding chs.Encoding, rate chs.DataRate) *FluxTrackBuffer {
	return &FluxTrackBuffer{
		BitstreamTrackBuffer: NewBitstreamTrackBuffer(encoding, rate),
		rate:                 rate,
	}
}

// Flux renders the accumulated bitstream as one revolution's reversal
// intervals: a run of n zero bits followed by a '1' encodes as a single
// interval of (n+1) bitcell periods, the inverse of pll.Decode's
// convention (see decode/flux.go).
func (w *FluxTrackBuffer) Flux() *flux.Data {
	period := uint64(w.rate.BitcellNs())
	bb := w.Bits()

	fd := flux.New()
	var intervals []uint64
	run := uint64(0)
	bb.Seek(0)
	for i := 0; i < bb.Len(); i++ {
		bit, _ := bb.PeekBit(i)
		run++
		if bit == 1 {
			intervals = append(intervals, run*period)
			run = 0
		}
	}
	if run > 0 {
		intervals = append(intervals, run*period)
	}
	fd.AddRevolution(intervals)
	return fd
}
