package supercardpro

import (
	"encoding/binary"
	"testing"
)

func TestSplitRevolutionsCutsAtIndexBoundary(t *testing.T) {
	// Four intervals of 1000ns (40*25) each; the index boundary falls
	// after the first two (2000ns).
	raw := make([]byte, 8)
	binary.BigEndian.PutUint16(raw[0:2], 40)
	binary.BigEndian.PutUint16(raw[2:4], 40)
	binary.BigEndian.PutUint16(raw[4:6], 40)
	binary.BigEndian.PutUint16(raw[6:8], 40)

	var info [5]FluxInfo
	info[0].IndexTime = 80 // 80 * 25ns = 2000ns

	revs := splitRevolutions(info, raw)
	if len(revs) != 1 {
		t.Fatalf("got %d revolutions, want 1 (second revolution has no IndexTime)", len(revs))
	}
	if len(revs[0]) != 2 {
		t.Fatalf("got %d intervals in revolution 0, want 2", len(revs[0]))
	}
	if revs[0][0] != 1000 || revs[0][1] != 1000 {
		t.Fatalf("revolution 0 = %v, want [1000 1000]", revs[0])
	}
}

func TestJoinRevolutionsRoundTripsThroughSplit(t *testing.T) {
	original := [][]uint64{{1000, 2000, 500}}
	raw := joinRevolutions(original)

	var info [5]FluxInfo
	total := uint64(0)
	for _, ns := range original[0] {
		total += ns
	}
	info[0].IndexTime = uint32(total / 25)

	got := splitRevolutions(info, raw)
	if len(got) != 1 || len(got[0]) != len(original[0]) {
		t.Fatalf("got %v, want one revolution with %d intervals", got, len(original[0]))
	}
	for i := range original[0] {
		if got[0][i] != original[0][i] {
			t.Fatalf("interval %d: got %d, want %d", i, got[0][i], original[0][i])
		}
	}
}

func TestSendRejectsOversizedData(t *testing.T) {
	// send() needs a live serial.Port past its argument check, so this
	// covers only the length validation, which fires before the checksum
	// is computed or any I/O is attempted.
	c := &Client{}
	oversized := make([]byte, 256)
	if err := c.send(cmdReadFlux, oversized, nil); err == nil {
		t.Fatal("expected an error for data longer than 255 bytes")
	}
}
