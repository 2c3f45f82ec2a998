package decode

import (
	"bytes"
	"testing"

	"github.com/sergev/floppycore/bitbuffer"
	"github.com/sergev/floppycore/chs"
	"github.com/sergev/floppycore/crc16"
)

// appendMFMByte appends one byte as MFM data bits: a throwaway clock bit
// (0, since ScanIBM/ibmReader only ever keeps the second half-bit of each
// pair) followed by the real data bit, for every bit of v.
func appendMFMByte(bb *bitbuffer.BitBuffer, v byte) {
	for i := 7; i >= 0; i-- {
		bb.AppendBit(0)
		bb.AppendBit(int((v >> uint(i)) & 1))
	}
}

func appendMFMBytes(bb *bitbuffer.BitBuffer, data []byte) {
	for _, b := range data {
		appendMFMByte(bb, b)
	}
}

func buildSectorTrack(t *testing.T, cyl, head, sec, sizeCode int, data []byte, corruptDataCRC bool) *bitbuffer.BitBuffer {
	t.Helper()
	bb := bitbuffer.New(chs.DataRate250K)

	// IDAM, preceded by the usual sync-field zero run.
	appendMFMBytes(bb, bytes.Repeat([]byte{0x00}, 12))
	appendMFMBytes(bb, []byte{0xa1, 0xa1, 0xa1, 0xfe, byte(cyl), byte(head), byte(sec), byte(sizeCode)})
	hc := crc16.New(crc16.A1A1A1)
	hc.AddBytes([]byte{0xfe, byte(cyl), byte(head), byte(sec), byte(sizeCode)})
	hv := hc.Value()
	appendMFMByte(bb, byte(hv>>8))
	appendMFMByte(bb, byte(hv))

	// gap
	appendMFMBytes(bb, bytes.Repeat([]byte{0x4e}, 8))

	// DAM + data, again preceded by a zero sync field.
	appendMFMBytes(bb, bytes.Repeat([]byte{0x00}, 12))
	appendMFMBytes(bb, []byte{0xa1, 0xa1, 0xa1, 0xfb})
	appendMFMBytes(bb, data)
	dc := crc16.New(crc16.A1A1A1)
	dc.Add(0xfb)
	dc.AddBytes(data)
	dv := dc.Value()
	if corruptDataCRC {
		dv ^= 0xffff
	}
	appendMFMByte(bb, byte(dv>>8))
	appendMFMByte(bb, byte(dv))

	appendMFMBytes(bb, bytes.Repeat([]byte{0x4e}, 16))
	return bb
}

func TestScanIBMGoodSector(t *testing.T) {
	data := bytes.Repeat([]byte{0x55}, 512)
	bb := buildSectorTrack(t, 0, 0, 1, 2, data, false)

	tr, err := ScanIBM(bb, chs.DataRate250K, chs.EncodingMFM)
	if err != nil {
		t.Fatalf("ScanIBM: %v", err)
	}
	if tr.Size() != 1 {
		t.Fatalf("track has %d sectors, want 1", tr.Size())
	}
	s := tr.Sectors[0]
	if s.Header.Sector != 1 || s.Header.SizeCode != 2 {
		t.Fatalf("header = %v, want sector 1 size code 2", s.Header)
	}
	if s.BadIDCRC() || s.BadDataCRC() {
		t.Fatalf("sector has bad CRC flags, want both clean")
	}
	if !bytes.Equal(s.DataCopy(0), data) {
		t.Fatalf("decoded data mismatch")
	}
}

func TestScanIBMBadDataCRC(t *testing.T) {
	data := bytes.Repeat([]byte{0xaa}, 512)
	bb := buildSectorTrack(t, 0, 0, 1, 2, data, true)

	tr, err := ScanIBM(bb, chs.DataRate250K, chs.EncodingMFM)
	if err != nil {
		t.Fatalf("ScanIBM: %v", err)
	}
	if !tr.Sectors[0].BadDataCRC() {
		t.Fatal("expected bad data CRC to be detected")
	}
}

func TestScanIBMNoMarkers(t *testing.T) {
	bb := bitbuffer.New(chs.DataRate250K)
	appendMFMBytes(bb, bytes.Repeat([]byte{0x4e}, 64))

	if _, err := ScanIBM(bb, chs.DataRate250K, chs.EncodingMFM); err == nil {
		t.Fatal("expected error scanning a track with no address marks")
	}
}

// appendFMByte appends one byte as FM data bits: the fixed all-ones clock
// ordinary FM data carries, interleaved with v's data bits, matching
// encode.BitstreamTrackBuffer.AddDataBit's FM branch.
func appendFMByte(bb *bitbuffer.BitBuffer, v byte) {
	for i := 7; i >= 0; i-- {
		bb.AppendBit(1)
		bb.AppendBit(int((v >> uint(i)) & 1))
	}
}

func appendFMBytes(bb *bitbuffer.BitBuffer, data []byte) {
	for _, b := range data {
		appendFMByte(bb, b)
	}
}

// appendFMMark appends one address-mark byte with the clock-violated
// pattern (clock 0xc7) FM address marks use in place of the normal
// all-ones clock, matching encode.BitstreamTrackBuffer.AddAM's FM branch.
func appendFMMark(bb *bitbuffer.BitBuffer, tag byte) {
	for i := 7; i >= 0; i-- {
		clockBit := int((fmClockAddress >> uint(i)) & 1)
		dataBit := int((tag >> uint(i)) & 1)
		bb.AppendBit(clockBit)
		bb.AppendBit(dataBit)
	}
}

func buildSectorTrackFM(t *testing.T, cyl, head, sec, sizeCode int, data []byte, corruptDataCRC bool) *bitbuffer.BitBuffer {
	t.Helper()
	bb := bitbuffer.New(chs.DataRate250K)

	// IDAM, preceded by FM's shorter six-byte zero sync field.
	appendFMBytes(bb, bytes.Repeat([]byte{0x00}, 6))
	appendFMMark(bb, 0xfe)
	appendFMBytes(bb, []byte{byte(cyl), byte(head), byte(sec), byte(sizeCode)})
	hc := crc16.New(crc16.A1A1A1)
	hc.AddBytes([]byte{0xfe, byte(cyl), byte(head), byte(sec), byte(sizeCode)})
	hv := hc.Value()
	appendFMByte(bb, byte(hv>>8))
	appendFMByte(bb, byte(hv))

	appendFMBytes(bb, bytes.Repeat([]byte{0x4e}, 8))

	// DAM + data, again preceded by a zero sync field.
	appendFMBytes(bb, bytes.Repeat([]byte{0x00}, 6))
	appendFMMark(bb, 0xfb)
	appendFMBytes(bb, data)
	dc := crc16.New(crc16.A1A1A1)
	dc.Add(0xfb)
	dc.AddBytes(data)
	dv := dc.Value()
	if corruptDataCRC {
		dv ^= 0xffff
	}
	appendFMByte(bb, byte(dv>>8))
	appendFMByte(bb, byte(dv))

	appendFMBytes(bb, bytes.Repeat([]byte{0x4e}, 16))
	return bb
}

func TestScanIBMGoodSectorFM(t *testing.T) {
	data := bytes.Repeat([]byte{0x66}, 256)
	bb := buildSectorTrackFM(t, 0, 0, 1, 1, data, false)

	tr, err := ScanIBM(bb, chs.DataRate250K, chs.EncodingFM)
	if err != nil {
		t.Fatalf("ScanIBM: %v", err)
	}
	if tr.Size() != 1 {
		t.Fatalf("track has %d sectors, want 1", tr.Size())
	}
	s := tr.Sectors[0]
	if s.Header.Sector != 1 || s.Header.SizeCode != 1 {
		t.Fatalf("header = %v, want sector 1 size code 1", s.Header)
	}
	if s.BadIDCRC() || s.BadDataCRC() {
		t.Fatalf("sector has bad CRC flags, want both clean")
	}
	if !bytes.Equal(s.DataCopy(0), data) {
		t.Fatalf("decoded data mismatch")
	}
}

func TestScanIBMBadDataCRCFM(t *testing.T) {
	data := bytes.Repeat([]byte{0x99}, 256)
	bb := buildSectorTrackFM(t, 0, 0, 1, 1, data, true)

	tr, err := ScanIBM(bb, chs.DataRate250K, chs.EncodingFM)
	if err != nil {
		t.Fatalf("ScanIBM: %v", err)
	}
	if !tr.Sectors[0].BadDataCRC() {
		t.Fatal("expected bad data CRC to be detected")
	}
}

func TestScanIBMNoMarkersFM(t *testing.T) {
	bb := bitbuffer.New(chs.DataRate250K)
	appendFMBytes(bb, bytes.Repeat([]byte{0x4e}, 64))

	if _, err := ScanIBM(bb, chs.DataRate250K, chs.EncodingFM); err == nil {
		t.Fatal("expected error scanning a track with no address marks")
	}
}
