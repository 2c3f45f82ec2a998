package decode

import (
	"bytes"
	"testing"

	"github.com/sergev/floppycore/bitbuffer"
	"github.com/sergev/floppycore/chs"
)

// shuffle is the inverse of unshuffle, used only here to build synthetic
// Amiga-encoded fixtures: it splits a 32-bit word into its odd/even
// (MSB-first) bit halves the way trackdisk.device's encoder does.
func shuffle(word uint32) (odd, even uint16) {
	for i := 0; i < 16; i++ {
		oddBit := (word >> uint(31-2*i)) & 1
		evenBit := (word >> uint(30-2*i)) & 1
		odd = (odd << 1) | uint16(oddBit)
		even = (even << 1) | uint16(evenBit)
	}
	return
}

func TestShuffleUnshuffleRoundTrip(t *testing.T) {
	for _, w := range []uint32{0, 0xffffffff, 0x12345678, 0xa5a5a5a5} {
		odd, even := shuffle(w)
		if got := unshuffle(odd, even); got != w {
			t.Errorf("unshuffle(shuffle(%#x)) = %#x", w, got)
		}
	}
}

func appendWord(bb *bitbuffer.BitBuffer, odd, even uint16) {
	appendMFMByte(bb, byte(odd>>8))
	appendMFMByte(bb, byte(odd))
	appendMFMByte(bb, byte(even>>8))
	appendMFMByte(bb, byte(even))
}

func buildAmigaTrack(t *testing.T, cyl, head, sec int, data []byte) *bitbuffer.BitBuffer {
	t.Helper()
	bb := bitbuffer.New(chs.DataRate250K)

	appendMFMBytes(bb, bytes.Repeat([]byte{0x00}, 8))
	ident := uint32(0xff)<<24 | uint32(cyl*2+head)<<16 | uint32(sec)<<8 | 0
	identOdd, identEven := shuffle(ident)

	// Sync: 00 a1 a1 <tag, the high byte of the shuffled ident's odd half>.
	appendMFMBytes(bb, []byte{0xa1, 0xa1, byte(identOdd >> 8)})
	appendMFMByte(bb, byte(identOdd))      // oddLow
	appendMFMByte(bb, byte(identEven>>8))  // evenHigh
	appendMFMByte(bb, byte(identEven))     // evenLow

	headerSum := uint32(identOdd) ^ uint32(identEven)

	// 4 label longwords, all zero.
	for i := 0; i < 4; i++ {
		appendWord(bb, 0, 0)
	}

	// Header checksum is stored as a plain 32-bit big-endian value, not
	// shuffled, per ReadSectorAmiga.
	appendMFMByte(bb, byte(headerSum>>24))
	appendMFMByte(bb, byte(headerSum>>16))
	appendMFMByte(bb, byte(headerSum>>8))
	appendMFMByte(bb, byte(headerSum))

	var dataSum uint32
	oddWords := make([]uint16, len(data)/4)
	evenWords := make([]uint16, len(data)/4)
	for i := 0; i < len(data)/4; i++ {
		w := uint32(data[4*i])<<24 | uint32(data[4*i+1])<<16 | uint32(data[4*i+2])<<8 | uint32(data[4*i+3])
		o, e := shuffle(w)
		oddWords[i], evenWords[i] = o, e
		dataSum ^= uint32(o) ^ uint32(e)
	}

	appendMFMByte(bb, byte(dataSum>>24))
	appendMFMByte(bb, byte(dataSum>>16))
	appendMFMByte(bb, byte(dataSum>>8))
	appendMFMByte(bb, byte(dataSum))

	for _, o := range oddWords {
		appendMFMByte(bb, byte(o>>8))
		appendMFMByte(bb, byte(o))
	}
	for _, e := range evenWords {
		appendMFMByte(bb, byte(e>>8))
		appendMFMByte(bb, byte(e))
	}

	return bb
}

func TestScanAmigaGoodSector(t *testing.T) {
	data := bytes.Repeat([]byte{0x77}, amigaSectorSize)
	bb := buildAmigaTrack(t, 0, 0, 4, data)

	tr, err := ScanAmiga(bb, chs.DataRate250K, 0, 0)
	if err != nil {
		t.Fatalf("ScanAmiga: %v", err)
	}
	if tr.Size() != 1 {
		t.Fatalf("track has %d sectors, want 1", tr.Size())
	}
	s := tr.Sectors[0]
	if s.Header.Sector != 4 {
		t.Fatalf("sector number = %d, want 4", s.Header.Sector)
	}
	if s.BadIDCRC() {
		t.Fatal("unexpected bad header checksum")
	}
	if !bytes.Equal(s.DataCopy(0), data) {
		t.Fatal("decoded data mismatch")
	}
}
