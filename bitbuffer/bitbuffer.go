// Package bitbuffer implements BitBuffer, a bit-addressable bitstream with
// a data rate and index position, used as the intermediate representation
// between flux timings and decoded tracks (spec.md §3, §4.4).
package bitbuffer

import (
	"fmt"

	"github.com/sergev/floppycore/chs"
)

// BitBuffer holds a packed, MSB-first bit sequence plus the positional
// metadata a decoder or encoder needs: where the index pulse fell, and
// where a write-back splice should be placed to avoid disturbing a
// in-progress sector.
type BitBuffer struct {
	bits         []byte
	nbits        int
	pos          int
	DataRate     chs.DataRate
	IndexOffset  int
	SpliceOffset int
}

// New creates an empty bitbuffer at the given data rate.
func New(rate chs.DataRate) *BitBuffer {
	return &BitBuffer{DataRate: rate}
}

// FromBits wraps an existing packed, MSB-first bit sequence of length
// nbits without copying, for read-only scanning.
func FromBits(bits []byte, nbits int, rate chs.DataRate) *BitBuffer {
	return &BitBuffer{bits: bits, nbits: nbits, DataRate: rate}
}

// Len returns the number of valid bits in the buffer.
func (b *BitBuffer) Len() int { return b.nbits }

// Pos returns the current read cursor, in bits from the start of the buffer.
func (b *BitBuffer) Pos() int { return b.pos }

// Bytes returns the packed byte slice backing the buffer. The caller must
// not mutate it if the buffer is still in use: ownership is not copied.
func (b *BitBuffer) Bytes() []byte { return b.bits }

// Seek moves the read cursor to an absolute bit position, wrapping modulo
// the buffer length the way a track read wraps around the index.
func (b *BitBuffer) Seek(bitPos int) {
	if b.nbits == 0 {
		b.pos = 0
		return
	}
	bitPos %= b.nbits
	if bitPos < 0 {
		bitPos += b.nbits
	}
	b.pos = bitPos
}

// AppendBit appends a single bit (0 or non-zero) to the buffer, growing the
// backing slice as needed.
func (b *BitBuffer) AppendBit(bit int) {
	byteIdx := b.nbits / 8
	for byteIdx >= len(b.bits) {
		b.bits = append(b.bits, 0)
	}
	if bit != 0 {
		bitIdx := 7 - (b.nbits & 7)
		b.bits[byteIdx] |= 1 << uint(bitIdx)
	}
	b.nbits++
}

// AppendByte appends all 8 bits of b, MSB first.
func (b *BitBuffer) AppendByte(value byte) {
	for i := 7; i >= 0; i-- {
		b.AppendBit(int((value >> uint(i)) & 1))
	}
}

// AppendBytes appends every byte of buf via AppendByte.
func (b *BitBuffer) AppendBytes(buf []byte) {
	for _, v := range buf {
		b.AppendByte(v)
	}
}

// ReadBit returns the bit at the cursor and advances it by one, wrapping
// around the index the way a continuously-spinning disk does.
func (b *BitBuffer) ReadBit() (int, error) {
	if b.nbits == 0 {
		return 0, fmt.Errorf("bitbuffer: empty")
	}
	byteIdx := b.pos / 8
	bitIdx := 7 - (b.pos & 7)
	bit := (b.bits[byteIdx] >> uint(bitIdx)) & 1
	b.pos++
	if b.pos >= b.nbits {
		b.pos = 0
	}
	return int(bit), nil
}

// ReadByte reads 8 bits MSB-first and packs them into a byte.
func (b *BitBuffer) ReadByte() (byte, error) {
	var result byte
	for i := 0; i < 8; i++ {
		bit, err := b.ReadBit()
		if err != nil {
			return 0, err
		}
		result = (result << 1) | byte(bit)
	}
	return result, nil
}

// PeekBit returns the bit at a given forward offset from the cursor
// without consuming it, useful for lookahead during sync hunting.
func (b *BitBuffer) PeekBit(offset int) (int, error) {
	if b.nbits == 0 {
		return 0, fmt.Errorf("bitbuffer: empty")
	}
	p := (b.pos + offset) % b.nbits
	byteIdx := p / 8
	bitIdx := 7 - (p & 7)
	return int((b.bits[byteIdx] >> uint(bitIdx)) & 1), nil
}
