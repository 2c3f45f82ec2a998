package bitbuffer

import (
	"testing"

	"github.com/sergev/floppycore/chs"
)

func TestAppendAndReadRoundTrip(t *testing.T) {
	b := New(chs.DataRate250K)
	want := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	b.AppendBytes(want)

	if b.Len() != len(want)*8 {
		t.Fatalf("Len() = %d, want %d", b.Len(), len(want)*8)
	}

	for i, w := range want {
		got, err := b.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte(%d): %v", i, err)
		}
		if got != w {
			t.Fatalf("byte %d = %#02x, want %#02x", i, got, w)
		}
	}
}

func TestSeekWraps(t *testing.T) {
	b := New(chs.DataRate250K)
	b.AppendBytes([]byte{0xF0})

	b.Seek(-1)
	if b.Pos() != 7 {
		t.Fatalf("Seek(-1) pos = %d, want 7", b.Pos())
	}

	b.Seek(10)
	if b.Pos() != 2 {
		t.Fatalf("Seek(10) pos on 8-bit buffer = %d, want 2", b.Pos())
	}
}

func TestReadWrapsAroundIndex(t *testing.T) {
	b := New(chs.DataRate250K)
	b.AppendBytes([]byte{0xFF})
	b.Seek(7)

	bit, err := b.ReadBit()
	if err != nil || bit != 1 {
		t.Fatalf("last bit = %d, %v", bit, err)
	}
	if b.Pos() != 0 {
		t.Fatalf("pos after wrap = %d, want 0", b.Pos())
	}
}
