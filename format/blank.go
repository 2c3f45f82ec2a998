package format

import (
	"github.com/sergev/floppycore/chs"
	"github.com/sergev/floppycore/sector"
	"github.com/sergev/floppycore/track"
)

// BlankTrack synthesizes a Track holding every sector this format expects
// on cylinder cyl/head, each carrying fill-byte payload, in place of the
// fixed catalog of pre-made binary disk images the original distribution
// ships (spec.md's images.BlankDisk replacement; see DESIGN.md).
func (f Format) BlankTrack(cyl, head int) *track.Track {
	ids := f.SectorIDs(cyl)
	tr := track.New(0)
	fill := make([]byte, f.SectorSize())
	for i := range fill {
		fill[i] = f.Fill
	}

	for _, id := range ids {
		hdr := chs.Header{Cyl: cyl, Head: f.HeadValue(head), Sector: id, SizeCode: f.SizeCode}
		s := sector.New(f.DataRate, f.Encoding, hdr, f.Gap3)
		s.Add(append([]byte(nil), fill...), false, sector.DAMNormal)
		tr.Add(s)
	}
	return tr
}

// BlankDisk synthesizes every track of a named catalog format, for use as
// an in-memory starting point when no source image is supplied (e.g. the
// `format` CLI verb re-initializing a disk from scratch).
func BlankDisk(name string) (map[chs.CylHead]*track.Track, Format, bool) {
	f, ok := ByName(name)
	if !ok {
		return nil, Format{}, false
	}
	tracks := make(map[chs.CylHead]*track.Track, f.Cyls*f.Heads)
	for cyl := 0; cyl < f.Cyls; cyl++ {
		for head := 0; head < f.Heads; head++ {
			tracks[chs.CylHead{Cyl: cyl, Head: head}] = f.BlankTrack(cyl, head)
		}
	}
	return tracks, f, true
}
