package encode

import (
	"github.com/sergev/floppycore/format"
)

// shuffle splits a 32-bit word into its odd/even (MSB-first) bit halves,
// the inverse of decode.unshuffle, matching trackdisk.device's encoder.
func shuffle(word uint32) (odd, even uint16) {
	for i := 0; i < 16; i++ {
		oddBit := (word >> uint(31-2*i)) & 1
		evenBit := (word >> uint(30-2*i)) & 1
		odd = (odd << 1) | uint16(oddBit)
		even = (even << 1) | uint16(evenBit)
	}
	return
}

func addAmigaWord(w *BitstreamTrackBuffer, odd, even uint16) {
	w.AddByte(byte(odd >> 8))
	w.AddByte(byte(odd))
	w.AddByte(byte(even >> 8))
	w.AddByte(byte(even))
}

// addAmigaSector writes one Amiga trackdisk.device sector: the zero-run
// plus odd/even-shuffled identifier that the sync hunt in
// decode.ScanAmiga recognizes as a 0x00a1a1fX marker, 4 zero label
// longwords, header checksum, data checksum, then the odd/even-interleaved
// 512-byte payload (grounded on decode/amiga_test.go's buildAmigaTrack,
// itself grounded on mfm.Reader.ReadSectorAmiga/readDataAmiga run in
// reverse).
func addAmigaSector(w *BitstreamTrackBuffer, cyl, head, sec int, data []byte) {
	w.AddGap(8, 0x00)

	ident := uint32(0xff)<<24 | uint32(cyl*2+head)<<16 | uint32(sec)<<8
	identOdd, identEven := shuffle(ident)

	w.AddByte(0xa1)
	w.AddByte(0xa1)
	w.AddByte(byte(identOdd >> 8))
	w.AddByte(byte(identOdd))
	w.AddByte(byte(identEven >> 8))
	w.AddByte(byte(identEven))

	headerSum := uint32(identOdd) ^ uint32(identEven)
	for i := 0; i < 4; i++ {
		addAmigaWord(w, 0, 0)
	}
	w.AddByte(byte(headerSum >> 24))
	w.AddByte(byte(headerSum >> 16))
	w.AddByte(byte(headerSum >> 8))
	w.AddByte(byte(headerSum))

	n := len(data) / 4
	oddWords := make([]uint16, n)
	evenWords := make([]uint16, n)
	var dataSum uint32
	for i := 0; i < n; i++ {
		word := uint32(data[4*i])<<24 | uint32(data[4*i+1])<<16 | uint32(data[4*i+2])<<8 | uint32(data[4*i+3])
		o, e := shuffle(word)
		oddWords[i], evenWords[i] = o, e
		dataSum ^= uint32(o) ^ uint32(e)
	}

	w.AddByte(byte(dataSum >> 24))
	w.AddByte(byte(dataSum >> 16))
	w.AddByte(byte(dataSum >> 8))
	w.AddByte(byte(dataSum))

	for _, o := range oddWords {
		w.AddByte(byte(o >> 8))
		w.AddByte(byte(o))
	}
	for _, e := range evenWords {
		w.AddByte(byte(e >> 8))
		w.AddByte(byte(e))
	}
}

// BuildTrackAmiga lays out one full Amiga track: f's scheduled sectors in
// physical order, each written by addAmigaSector, with a short leading gap
// matching trackdisk.device's own inter-sector spacing.
func BuildTrackAmiga(w *BitstreamTrackBuffer, f format.Format, cyl, head int, sectors map[int][]byte) {
	ids := f.SectorIDs(cyl)
	for _, id := range ids {
		data := sectors[id]
		if data == nil {
			data = make([]byte, f.SectorSize())
		}
		addAmigaSector(w, cyl, head, id, data)
	}
}
