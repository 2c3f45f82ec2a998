// Package adf implements the Amiga ADF image format: a raw concatenation
// of every sector's 512-byte payload in logical order, no header bytes
// and no magic signature, recognized by file size alone (grounded on
// hfe/adf.go's ReadADF/WriteADF, retargeted from the teacher's Disk/
// mfm.Writer model onto disk.Disk/trackdata/sector/track).
package adf

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

const catalogName = "AmigaDOS 880K"

// Codec is the registered ADF reader/writer pair.
var Codec = imagecodec.Codec{Name: "adf", Reader: reader{}, Writer: writer{}}

func init() {
	imagecodec.Register(Codec)
}

type reader struct{}

func (reader) Read(r io.ReaderAt, size int64) (*disk.Disk, bool, error) {
	f, ok := format.ByName(catalogName)
	if !ok {
		return nil, false, fmt.Errorf("%s catalog entry missing", catalogName)
	}
	if size != int64(f.DiskSize()) {
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
	f, ok := format.ByName(catalogName)
	if !ok {
		return fmt.Errorf("%s catalog entry missing", catalogName)
	}
	if d.Fmt.Cyls != f.Cyls || d.Fmt.Heads != f.Heads || d.Fmt.SectorsPerTrack != f.SectorsPerTrack {
		return fmt.Errorf("disk geometry %dx%dx%d does not match ADF's %dx%dx%d",
			d.Fmt.Cyls, d.Fmt.Heads, d.Fmt.SectorsPerTrack, f.Cyls, f.Heads, f.SectorsPerTrack)
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
