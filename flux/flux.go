// Package flux holds FluxData, the per-revolution sequences of
// nanosecond reversal timings captured from a drive head or stored in a
// flux-level image (spec.md §3).
package flux

// Data is a set of independent revolutions of one track. Revolutions do
// not wrap into each other: each is the flux seen between two index
// pulses (or, for the first partial segment before any index, it is
// discarded by the capture layer before reaching this type).
type Data struct {
	Revolutions [][]uint64 // nanosecond intervals between reversals, per revolution
}

// New creates an empty FluxData.
func New() *Data {
	return &Data{}
}

// AddRevolution appends one revolution's reversal-interval sequence.
func (d *Data) AddRevolution(intervals []uint64) {
	d.Revolutions = append(d.Revolutions, intervals)
}

// NumRevolutions reports how many independent revolutions were captured.
func (d *Data) NumRevolutions() int {
	return len(d.Revolutions)
}

// TotalNs sums the reversal intervals of one revolution, giving its
// approximate rotational period.
func (d *Data) TotalNs(revolution int) uint64 {
	if revolution < 0 || revolution >= len(d.Revolutions) {
		return 0
	}
	var total uint64
	for _, ns := range d.Revolutions[revolution] {
		total += ns
	}
	return total
}
