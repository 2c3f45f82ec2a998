package pll

import (
	"testing"

	"github.com/sergev/floppycore/chs"
)

// TestDecodeFluxStreamAt250K exercises the {2000,2000,4000,2000}ns flux
// stream at 250K named in spec.md §8 scenario 6. The PLL phase-tracks the
// stream the way legacy/mfmdisk/scp.c's pll_next_bit does rather than
// applying a fixed per-interval quantizer, so for this jitter-free,
// exactly period-aligned input the two leading single-cell intervals both
// resolve as clocked transitions (bits 1, 1) before the double-width
// interval produces the padding zero that marks it, then the trailing
// single-cell interval resolves as one more transition.
func TestDecodeFluxStreamAt250K(t *testing.T) {
	bb := Decode([]uint64{2000, 2000, 4000, 2000}, chs.DataRate250K)

	want := []int{1, 1, 0, 1, 1}
	if bb.Len() != len(want) {
		t.Fatalf("got %d bits, want %d", bb.Len(), len(want))
	}
	for i, w := range want {
		bit, err := bb.ReadBit()
		if err != nil {
			t.Fatalf("ReadBit(%d): %v", i, err)
		}
		if bit != w {
			t.Fatalf("bit %d = %d, want %d", i, bit, w)
		}
	}
}

// TestDecodeEmptyFluxYieldsNoBits confirms the loop guard terminates
// immediately when there are no transitions to phase-lock onto.
func TestDecodeEmptyFluxYieldsNoBits(t *testing.T) {
	bb := Decode(nil, chs.DataRate250K)
	if bb.Len() != 0 {
		t.Fatalf("got %d bits, want 0", bb.Len())
	}
}
