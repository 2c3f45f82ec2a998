package encode

import (
	"github.com/sergev/floppycore/chs"
	"github.com/sergev/floppycore/format"
)

// gap2 is the fixed gap between a sector's ID field and its data field in
// the IBM System/34 scheme; unlike gap3 it isn't format-tunable.
const gap2 = 22

// BuildTrackIBM lays out one full IBM-PC/System-34 track into buf:
// gap4a+index mark+gap1, then each sector in f's scheduled physical order
// (spec.md §4.6, §4.8), generalized from mfm.Writer.EncodeTrackIBMPC's
// fixed 512-byte/sequential-ID layout to an arbitrary Format.
func BuildTrackIBM(buf TrackBuffer, f format.Format, cyl, head int, sectors map[int][]byte) {
	buf.AddTrackStart(50)

	ids := f.SectorIDs(cyl)
	for _, id := range ids {
		hdr := chs.Header{Cyl: cyl, Head: f.HeadValue(head), Sector: id, SizeCode: f.SizeCode}
		data := sectors[id]
		if data == nil {
			data = make([]byte, f.SectorSize())
			for i := range data {
				data[i] = f.Fill
			}
		}
		buf.AddSector(hdr, data, 0xfb, false, false, gap2, f.Gap3, f.Fill)
	}
}
