// Package rawimg implements the raw IMG/IMA sector dump format: every
// sector's payload concatenated in logical order with no header bytes,
// the same shape as adf's but sized against format's general catalog
// instead of one fixed Amiga geometry (grounded on hfe/img.go, whose
// ReadIMG/WriteIMG were left as "not yet implemented" stubs in the
// teacher's own tree).
//
// Because a raw dump carries no signature, Read only recognizes sizes
// that exactly match a catalog entry; register this codec after any
// codec with a real magic number so ambiguous files prefer the stricter
// match.
package rawimg

import (
	"fmt"
	"io"

	"github.com/sergev/floppycore/chs"
	"github.com/sergev/floppycore/disk"
	"github.com/sergev/floppycore/format"
	"github.com/sergev/floppycore/imagecodec"
	"github.com/sergev/floppycore/sector"
	"github.com/sergev/floppycore/track"
	"github.com/sergev/floppycore/trackdata"
)

// Codec is the registered raw-image reader/writer pair.
var Codec = imagecodec.Codec{Name: "img", Reader: reader{}, Writer: writer{}}

func init() {
	imagecodec.Register(Codec)
}

type reader struct{}

func (reader) Read(r io.ReaderAt, size int64) (*disk.Disk, bool, error) {
	f, ok := format.FromSize(int(size))
	if !ok {
		return nil, false, nil
	}

	buf := make([]byte, size)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, false, err
	}

	d := disk.New(f)
	sectorSize := f.SectorSize()
	offset := 0
	for cyl := 0; cyl < f.Cyls; cyl++ {
		for head := 0; head < f.Heads; head++ {
			ch := chs.CylHead{Cyl: cyl, Head: head}
			tr := track.New(f.SectorsPerTrack)
			for id := 0; id < f.SectorsPerTrack; id++ {
				hdr := chs.Header{Cyl: cyl, Head: f.HeadValue(head), Sector: f.BaseID + id, SizeCode: f.SizeCode}
				s := sector.New(f.DataRate, f.Encoding, hdr, f.Gap3)
				data := append([]byte(nil), buf[offset:offset+sectorSize]...)
				s.Add(data, false, sector.DAMNormal)
				tr.Add(s)
				offset += sectorSize
			}
			d.Set(ch, trackdata.NewTrack(ch, tr))
		}
	}

	return d, true, nil
}

type writer struct{}

func (writer) Write(w io.WriterAt, d *disk.Disk) error {
	f := d.Fmt
	if f.SectorsPerTrack == 0 {
		return fmt.Errorf("disk has no known sector geometry to write as a raw image")
	}

	offset := int64(0)
	for cyl := 0; cyl < f.Cyls; cyl++ {
		for head := 0; head < f.Heads; head++ {
			ch := chs.CylHead{Cyl: cyl, Head: head}
			td, ok := d.Get(ch)
			if !ok {
				return fmt.Errorf("missing track %d.%d", cyl, head)
			}
			tr, err := td.Track()
			if err != nil {
				return fmt.Errorf("decoding track %d.%d: %w", cyl, head, err)
			}

			bySector := make(map[int][]byte, f.SectorsPerTrack)
			for _, s := range tr.Sectors {
				if s.HasGoodData() {
					bySector[s.Header.Sector] = s.DataCopy(0)
				}
			}

			for id := 0; id < f.SectorsPerTrack; id++ {
				want := f.BaseID + id
				data, ok := bySector[want]
				if !ok {
					return fmt.Errorf("missing sector %d of track %d.%d", want, cyl, head)
				}
				if _, err := w.WriteAt(data, offset); err != nil {
					return fmt.Errorf("writing sector %d of track %d.%d: %w", want, cyl, head, err)
				}
				offset += int64(len(data))
			}
		}
	}

	return nil
}
