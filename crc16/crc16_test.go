package crc16

import "testing"

func TestA1A1A1(t *testing.T) {
	got := Of(0xffff, []byte{0xa1, 0xa1, 0xa1})
	if got != A1A1A1 {
		t.Fatalf("CRC of three 0xA1 bytes = %#04x, want %#04x", got, A1A1A1)
	}
}

func TestRoundTripToZero(t *testing.T) {
	// Appending a correct CRC (MSB then LSB) to the covered bytes must
	// bring the running CRC back to zero.
	header := []byte{0xa1, 0xa1, 0xa1, 0xfe, 0x00, 0x00, 0x01, 0x02}
	sum := Of(0xffff, header)

	full := append(append([]byte{}, header...), byte(sum>>8), byte(sum))
	if got := Of(0xffff, full); got != 0 {
		t.Fatalf("CRC over header+CRC = %#04x, want 0", got)
	}
}

func TestAddRepeat(t *testing.T) {
	c := New(0xffff)
	c.AddRepeat(0xa1, 3)
	if c.Value() != A1A1A1 {
		t.Fatalf("AddRepeat(0xa1, 3) = %#04x, want %#04x", c.Value(), A1A1A1)
	}
}

func TestIncrementalMatchesOneShot(t *testing.T) {
	buf := []byte{0xfe, 0x01, 0x00, 0x05, 0x02}
	oneShot := Of(0xffff, buf)

	c := New(0xffff)
	for _, b := range buf {
		c.Add(b)
	}
	if c.Value() != oneShot {
		t.Fatalf("incremental = %#04x, one-shot = %#04x", c.Value(), oneShot)
	}
}
