package encode

import (
	"bytes"
	"testing"

	"github.com/sergev/floppycore/chs"
	"github.com/sergev/floppycore/decode"
	"github.com/sergev/floppycore/format"
)

func TestBuildTrackAmigaRoundTripsThroughDecode(t *testing.T) {
	f := format.Format{
		Cyls: 1, Heads: 1, SectorsPerTrack: 2, SizeCode: 2,
		BaseID: 0, Interleave: 1,
		DataRate: chs.DataRate250K, Encoding: chs.EncodingAmiga,
	}

	sectors := map[int][]byte{
		0: bytes.Repeat([]byte{0xaa}, 512),
		1: bytes.Repeat([]byte{0x55}, 512),
	}

	w := NewBitstreamTrackBuffer(chs.EncodingAmiga, chs.DataRate250K)
	BuildTrackAmiga(w, f, 0, 0, sectors)

	tr, err := decode.ScanAmiga(w.Bits(), chs.DataRate250K, 0, 0)
	if err != nil {
		t.Fatalf("ScanAmiga: %v", err)
	}
	if tr.Size() != 2 {
		t.Fatalf("track has %d sectors, want 2", tr.Size())
	}
	for _, s := range tr.Sectors {
		if s.BadIDCRC() {
			t.Fatalf("sector %d: bad header checksum", s.Header.Sector)
		}
		want := sectors[s.Header.Sector]
		if !bytes.Equal(s.DataCopy(0), want) {
			t.Fatalf("sector %d data mismatch", s.Header.Sector)
		}
	}
}
