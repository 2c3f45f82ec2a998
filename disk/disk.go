// Package disk holds Disk, the top-level container mapping physical
// addresses to their track data, plus Range, the (C,H) traversal helper
// DemandDisk.preload and the CLI's read/write loops walk (spec.md §3).
package disk

import (
	"sync"

	"github.com/sergev/floppycore/chs"
	"github.com/sergev/floppycore/format"
	"github.com/sergev/floppycore/trackdata"
)

// Disk is a mapping CylHead → TrackData plus the Format it's assumed to
// follow and free-form metadata (source filename, comments, whatever an
// image codec wants to stash). The map itself is mutex-guarded so
// concurrent track loads (see demanddisk) can populate it safely; bulk
// iteration goes through CylHeads, which returns a snapshot of the keys.
type Disk struct {
	mu    sync.Mutex
	m     map[chs.CylHead]trackdata.TrackData
	Fmt   format.Format
	Meta  map[string]string
}

// New creates an empty Disk assumed to follow f.
func New(f format.Format) *Disk {
	return &Disk{
		m:    make(map[chs.CylHead]trackdata.TrackData),
		Fmt:  f,
		Meta: make(map[string]string),
	}
}

// Get returns the stored TrackData for ch, and whether an entry exists at
// all (an empty TrackData is a valid stored value, distinct from "never
// touched").
func (d *Disk) Get(ch chs.CylHead) (trackdata.TrackData, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	td, ok := d.m[ch]
	return td, ok
}

// Set stores td for ch, replacing whatever was there.
func (d *Disk) Set(ch chs.CylHead, td trackdata.TrackData) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.m[ch] = td
}

// Extend ensures every CylHead in r has at least an empty TrackData entry,
// the way a Range walk that grows the Disk's addressable space does before
// DemandDisk.load ever runs.
func (d *Disk) Extend(r Range) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range r.All() {
		if _, ok := d.m[ch]; !ok {
			d.m[ch] = trackdata.NewEmpty(ch)
		}
	}
}

// CylHeads returns every physical address currently present in the Disk,
// in no particular order; callers that need cyl/head-major order should
// build a Range instead and walk it.
func (d *Disk) CylHeads() []chs.CylHead {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]chs.CylHead, 0, len(d.m))
	for ch := range d.m {
		out = append(out, ch)
	}
	return out
}

// Range describes an inclusive rectangle of cylinders/heads to traverse,
// in either head-major order (head varies fastest: every head of a
// cylinder before the next cylinder) or, with CylsFirst, cylinder-major
// order (cylinder varies fastest: every cylinder of a head before the
// next head), the two physical scan orders real controllers step through.
type Range struct {
	CylStart, CylEnd   int // inclusive
	HeadStart, HeadEnd int // inclusive
	CylsFirst          bool
}

// NewRange builds a Range covering every cylinder/head of f, ordered the
// way f.CylsFirst says the medium is conventionally scanned.
func NewRange(f format.Format) Range {
	return Range{
		CylStart: 0, CylEnd: f.Cyls - 1,
		HeadStart: 0, HeadEnd: f.Heads - 1,
		CylsFirst: f.CylsFirst,
	}
}

// All enumerates every CylHead the range covers, in the configured order.
func (r Range) All() []chs.CylHead {
	var out []chs.CylHead
	if r.CylsFirst {
		for h := r.HeadStart; h <= r.HeadEnd; h++ {
			for c := r.CylStart; c <= r.CylEnd; c++ {
				out = append(out, chs.CylHead{Cyl: c, Head: h})
			}
		}
		return out
	}
	for c := r.CylStart; c <= r.CylEnd; c++ {
		for h := r.HeadStart; h <= r.HeadEnd; h++ {
			out = append(out, chs.CylHead{Cyl: c, Head: h})
		}
	}
	return out
}
