package hfe

import (
	"bytes"
	"testing"

	"github.com/sergev/floppycore/bitbuffer"
	"github.com/sergev/floppycore/chs"
	"github.com/sergev/floppycore/disk"
	"github.com/sergev/floppycore/format"
	"github.com/sergev/floppycore/trackdata"
)

// memDisk is a minimal io.ReaderAt/io.WriterAt over an in-memory buffer,
// growing on WriteAt the way an *os.File would.
type memDisk struct {
	buf []byte
}

func (m *memDisk) ReadAt(p []byte, off int64) (int, error) {
	if int(off) >= len(m.buf) {
		return 0, nil
	}
	n := copy(p, m.buf[off:])
	return n, nil
}

func (m *memDisk) WriteAt(p []byte, off int64) (int, error) {
	end := int(off) + len(p)
	if end > len(m.buf) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[off:], p)
	return len(p), nil
}

func TestReadRejectsUnknownSignature(t *testing.T) {
	m := &memDisk{buf: make([]byte, 1024)}
	copy(m.buf, "NOTHFE!!")
	_, ok, err := Codec.Reader.Read(m, int64(len(m.buf)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for an unrecognized signature")
	}
}

func TestWriteThenReadRoundTripsBitstream(t *testing.T) {
	f := format.Format{Cyls: 1, Heads: 1, DataRate: chs.DataRate250K, Encoding: chs.EncodingMFM}
	d := disk.New(f)

	pattern := []byte{0xaa, 0x55, 0xf0, 0x0f, 0x12, 0x34}
	ch := chs.CylHead{Cyl: 0, Head: 0}
	bb := bitbuffer.FromBits(pattern, len(pattern)*8, chs.DataRate250K)
	d.Set(ch, trackdata.NewBitstream(ch, bb, chs.EncodingMFM))

	m := &memDisk{}
	if err := Codec.Writer.Write(m, d); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, ok, err := Codec.Reader.Read(m, int64(len(m.buf)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true for a freshly written HFE image")
	}

	td, ok := got.Get(ch)
	if !ok {
		t.Fatal("expected a track at (0,0)")
	}
	gotBits, err := td.Bitstream()
	if err != nil {
		t.Fatalf("Bitstream: %v", err)
	}
	if !bytes.Equal(gotBits.Bytes()[:len(pattern)], pattern) {
		t.Fatalf("got %x, want %x", gotBits.Bytes()[:len(pattern)], pattern)
	}
}

func TestProcessTrackOpcodesStripsSetIndexAndNop(t *testing.T) {
	data := []byte{0xaa, 0xf1, 0x55, 0xf0}
	got, err := processTrackOpcodes(data)
	if err != nil {
		t.Fatalf("processTrackOpcodes: %v", err)
	}
	// SETINDEX at position 1 rotates the track so the following byte (the
	// index mark) becomes bit 0; NOP at the end contributes no output bits.
	if len(got) != 2 {
		t.Fatalf("got %d bytes, want 2", len(got))
	}
}
