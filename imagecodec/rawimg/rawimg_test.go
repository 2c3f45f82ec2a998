package rawimg

import (
	"bytes"
	"testing"

	"github.com/sergev/floppycore/format"
)

type memDisk struct{ buf []byte }

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

func TestReadRejectsUnknownSize(t *testing.T) {
	m := &memDisk{buf: make([]byte, 513)}
	_, ok, err := Codec.Reader.Read(m, int64(len(m.buf)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for a size matching no catalog entry")
	}
}

func TestReadThenWriteRoundTripsPC360K(t *testing.T) {
	f, ok := format.ByName("PC 360K")
	if !ok {
		t.Fatal("PC 360K catalog entry missing")
	}
	size := f.DiskSize()

	src := make([]byte, size)
	for i := range src {
		src[i] = byte(i * 3)
	}
	m := &memDisk{buf: append([]byte(nil), src...)}

	d, ok, err := Codec.Reader.Read(m, int64(size))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true for an image matching the PC 360K catalog size")
	}

	out := &memDisk{}
	if err := Codec.Writer.Write(out, d); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if !bytes.Equal(out.buf, src) {
		t.Fatal("round trip through raw IMG reader/writer did not reproduce the original bytes")
	}
}
