package pll

import (
	"github.com/sergev/floppycore/bitbuffer"
	"github.com/sergev/floppycore/chs"
)

// Decode phase-recovers one revolution's reversal-interval sequence into a
// raw bitcell BitBuffer, running the same adaptive software PLL real
// capture hardware firmware uses rather than a fixed-threshold quantizer.
func Decode(intervals []uint64, rate chs.DataRate) *bitbuffer.BitBuffer {
	cumulative := make([]uint64, len(intervals))
	var t uint64
	for i, iv := range intervals {
		t += iv
		cumulative[i] = t
	}

	d := NewDecoderPeriod(cumulative, float64(rate.BitcellNs()))
	bb := bitbuffer.New(rate)
	for !(d.IsDone() && d.Flux < d.Period/2) {
		if d.NextBit() {
			bb.AppendBit(1)
		} else {
			bb.AppendBit(0)
		}
	}
	return bb
}
