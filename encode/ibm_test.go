package encode

import (
	"bytes"
	"testing"

	"github.com/sergev/floppycore/chs"
	"github.com/sergev/floppycore/decode"
	"github.com/sergev/floppycore/format"
)

func TestBuildTrackIBMRoundTripsThroughDecode(t *testing.T) {
	f := format.Format{
		Cyls: 1, Heads: 1, SectorsPerTrack: 3, SizeCode: 2,
		BaseID: 1, Interleave: 1, Gap3: 0x2a, Fill: 0x4e,
		DataRate: chs.DataRate250K, Encoding: chs.EncodingMFM,
	}

	sectors := map[int][]byte{
		1: bytes.Repeat([]byte{0x11}, 512),
		2: bytes.Repeat([]byte{0x22}, 512),
		3: bytes.Repeat([]byte{0x33}, 512),
	}

	buf := NewBitstreamTrackBuffer(chs.EncodingMFM, chs.DataRate250K)
	BuildTrackIBM(buf, f, 0, 0, sectors)

	tr, err := decode.ScanIBM(buf.Bits(), chs.DataRate250K, chs.EncodingMFM)
	if err != nil {
		t.Fatalf("ScanIBM: %v", err)
	}
	if tr.Size() != 3 {
		t.Fatalf("track has %d sectors, want 3", tr.Size())
	}

	bySector := make(map[int][]byte)
	for _, s := range tr.Sectors {
		if s.BadIDCRC() || s.BadDataCRC() {
			t.Fatalf("sector %d: bad CRC (id=%v data=%v)", s.Header.Sector, s.BadIDCRC(), s.BadDataCRC())
		}
		bySector[s.Header.Sector] = s.DataCopy(0)
	}
	for id, want := range sectors {
		got, ok := bySector[id]
		if !ok {
			t.Fatalf("sector %d missing from decoded track", id)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("sector %d data mismatch", id)
		}
	}
}

func TestAddCRCCorruptsValue(t *testing.T) {
	// crcWritten returns the CRC AddCRC appended: the last 16 data bits,
	// each the second bitcell of its clock/data pair.
	crcWritten := func(bad bool) uint16 {
		w := NewBitstreamTrackBuffer(chs.EncodingMFM, chs.DataRate250K)
		w.AddAM(0xfe)
		w.AddByteWithClock(0, 0)
		w.AddCRC(bad)
		if w.Len() == 0 {
			t.Fatal("expected bits written")
		}
		bb := w.Bits()
		var v uint16
		for i := bb.Len() - 32; i < bb.Len(); i += 2 {
			bit, _ := bb.PeekBit(i + 1)
			v = v<<1 | uint16(bit)
		}
		return v
	}
	good, bad := crcWritten(false), crcWritten(true)
	if good^bad != 0x5555 {
		t.Fatalf("good CRC %04x, bad CRC %04x: want them to differ by 0x5555", good, bad)
	}
}
