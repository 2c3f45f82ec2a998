// Package encode builds a bitstream or flux-level track from a Format and
// sector payloads, the write-side counterpart to the decode package,
// implementing the add_data_bit/add_byte/add_sync/add_AM/add_CRC/
// add_sector/add_track_start primitives spec.md §4.8 describes (grounded
// on mfm/writer.go's Writer: writeHalfBit, writeBit, writeByte, writeGap,
// writeMarker, writeIndexMarker, EncodeTrackIBMPC).
package encode

import (
	"github.com/sergev/floppycore/bitbuffer"
	"github.com/sergev/floppycore/chs"
	"github.com/sergev/floppycore/crc16"
)

// Clock-violation patterns for the MFM address marks: the clock half-bit
// sequence laid over each data byte's 8 bits, matching the fixed violation
// pattern real FDC silicon emits for A1/C2 so the sync hunt can tell a
// mark from an ordinary 0xA1 byte of data.
const (
	ClockA1 byte = 0x0a
	ClockC2 byte = 0x14
	// ClockFM is the all-ones clock FM data bytes normally carry; FM marks
	// substitute ClockFMAddress instead to create the same kind of
	// detectable violation.
	ClockFM        byte = 0xff
	ClockFMAddress byte = 0xc7
)

// TrackBuffer accumulates one track's worth of encoded output, abstracting
// over whether the destination is a raw bitcell stream or flux reversal
// timings.
type TrackBuffer interface {
	// AddDataBit writes one data bit using the buffer's normal encoding
	// rule (MFM bit-stuffing, or FM's fixed all-ones clock).
	AddDataBit(bit int)
	// AddByte writes all 8 bits of v, MSB first, via AddDataBit.
	AddByte(v byte)
	// AddBytes writes every byte of buf via AddByte.
	AddBytes(buf []byte)
	// AddByteWithClock writes v with an explicit per-bit clock pattern
	// instead of the normal encoding rule, for address marks.
	AddByteWithClock(v, clock byte)
	// AddSync writes the run of zero bytes preceding a sync mark: 12 for
	// MFM, 6 for FM.
	AddSync()
	// AddAM writes a full address mark: sync, then for MFM three
	// clock-violated 0xA1 bytes followed by the tag byte, for FM the tag
	// byte itself with the address-mark clock violation.
	AddAM(tag byte)
	// AddCRC computes the CRC-16/CCITT of everything written since the
	// last AddAM and appends it, corrupting it (XOR 0x5555) if bad is true.
	AddCRC(bad bool)
	// AddSector writes one complete sector: ID field, header CRC, gap2,
	// data field, data CRC, gap3.
	AddSector(hdr chs.Header, data []byte, dam byte, badIDCRC, badDataCRC bool, gap2, gap3 int, fill byte)
	// AddTrackStart writes the System/34-style track preamble: gap4a,
	// index mark, gap1.
	AddTrackStart(gap1 int)
	// AddGap writes n bytes of the given fill value.
	AddGap(n int, fill byte)
	// Len reports how many raw bitcells (clock and data, two per data bit)
	// have been written so far.
	Len() int
}

// BitstreamTrackBuffer accumulates a raw bitcell stream, mirroring
// mfm.Writer's half-bit bookkeeping but generalized to both MFM and FM and
// to an arbitrary sector schedule instead of one fixed IBM-PC layout.
type BitstreamTrackBuffer struct {
	bb          *bitbuffer.BitBuffer
	encoding    chs.Encoding
	lastDataBit int
	crc         *crc16.CRC
}

// NewBitstreamTrackBuffer creates an empty track buffer for the given
// encoding and nominal data rate.
func NewBitstreamTrackBuffer(encoding chs.Encoding, rate chs.DataRate) *BitstreamTrackBuffer {
	return &BitstreamTrackBuffer{
		bb:       bitbuffer.New(rate),
		encoding: encoding,
	}
}

// Bits returns the accumulated bitstream.
func (w *BitstreamTrackBuffer) Bits() *bitbuffer.BitBuffer { return w.bb }

func (w *BitstreamTrackBuffer) Len() int { return w.bb.Len() }

func (w *BitstreamTrackBuffer) AddDataBit(bit int) {
	if w.encoding == chs.EncodingFM {
		// FM: every data bit is preceded by a clock bit fixed at 1.
		w.bb.AppendBit(1)
		w.bb.AppendBit(bit)
		return
	}
	// MFM bit-stuffing: a clock bit is only written when neither the
	// previous nor the current data bit is a 1.
	if bit != 0 {
		w.bb.AppendBit(0)
		w.bb.AppendBit(1)
	} else {
		w.bb.AppendBit(w.lastDataBit ^ 1)
		w.bb.AppendBit(0)
	}
	w.lastDataBit = bit
}

func (w *BitstreamTrackBuffer) AddByte(v byte) {
	for i := 7; i >= 0; i-- {
		w.AddDataBit(int((v >> uint(i)) & 1))
	}
}

func (w *BitstreamTrackBuffer) AddBytes(buf []byte) {
	for _, v := range buf {
		w.AddByte(v)
	}
}

// AddByteWithClock writes v's 8 data bits interleaved with an explicit
// clock bit per position, taken from clock's corresponding bit, bypassing
// the normal bit-stuffing rule so a mark's violation survives.
func (w *BitstreamTrackBuffer) AddByteWithClock(v, clock byte) {
	for i := 7; i >= 0; i-- {
		clockBit := int((clock >> uint(i)) & 1)
		dataBit := int((v >> uint(i)) & 1)
		w.bb.AppendBit(clockBit)
		w.bb.AppendBit(dataBit)
	}
	w.lastDataBit = int(v & 1)
}

func (w *BitstreamTrackBuffer) AddSync() {
	n := 12
	if w.encoding == chs.EncodingFM {
		n = 6
	}
	for i := 0; i < n; i++ {
		w.AddByte(0x00)
	}
}

func (w *BitstreamTrackBuffer) AddAM(tag byte) {
	w.AddSync()
	if w.encoding == chs.EncodingFM {
		w.AddByteWithClock(tag, ClockFMAddress)
		w.crc = crcSeedFor(tag)
		return
	}
	for i := 0; i < 3; i++ {
		w.AddByteWithClock(0xa1, ClockA1)
	}
	w.AddByte(tag)
	w.crc = crcSeedFor(tag)
}

// AddIndexMark writes the System/34 index address mark: sync, three
// clock-violated 0xC2 bytes, then the 0xFC tag. Unlike AddAM's ID/data
// marks it isn't followed by a CRC, so it leaves the CRC accumulator
// untouched.
func (w *BitstreamTrackBuffer) AddIndexMark() {
	w.AddSync()
	if w.encoding == chs.EncodingFM {
		w.AddByteWithClock(0xfc, ClockFMAddress)
		return
	}
	for i := 0; i < 3; i++ {
		w.AddByteWithClock(0xc2, ClockC2)
	}
	w.AddByte(0xfc)
}

// crcSeedFor returns the CRC accumulator seeded as if the three A1 sync
// bytes preceding tag had already been folded in (crc16.A1A1A1's
// precomputed value), followed by tag itself.
func crcSeedFor(tag byte) *crc16.CRC {
	c := crc16.New(crc16.A1A1A1)
	c.Add(tag)
	return c
}

func (w *BitstreamTrackBuffer) AddCRC(bad bool) {
	var v uint16
	if w.crc != nil {
		v = w.crc.Value()
	}
	if bad {
		v ^= 0x5555
	}
	w.AddByte(byte(v >> 8))
	w.AddByte(byte(v))
	w.crc = nil
}

func (w *BitstreamTrackBuffer) AddGap(n int, fill byte) {
	for i := 0; i < n; i++ {
		w.AddByte(fill)
	}
}

// addByteTracked feeds every AddByte call through the in-progress CRC
// accumulator as well as the bitstream, so AddCRC sees the right bytes.
func (w *BitstreamTrackBuffer) addByteTracked(v byte) {
	w.AddByte(v)
	if w.crc != nil {
		w.crc.Add(v)
	}
}

func (w *BitstreamTrackBuffer) addBytesTracked(buf []byte) {
	for _, v := range buf {
		w.addByteTracked(v)
	}
}

func (w *BitstreamTrackBuffer) AddSector(hdr chs.Header, data []byte, dam byte, badIDCRC, badDataCRC bool, gap2, gap3 int, fill byte) {
	w.AddAM(0xfe)
	w.addBytesTracked([]byte{byte(hdr.Cyl), byte(hdr.Head), byte(hdr.Sector), byte(hdr.SizeCode)})
	w.AddCRC(badIDCRC)

	w.AddGap(gap2, fill)

	w.AddAM(dam)
	w.addBytesTracked(data)
	w.AddCRC(badDataCRC)

	w.AddGap(gap3, fill)
}

func (w *BitstreamTrackBuffer) AddTrackStart(gap1 int) {
	w.AddGap(80, 0x4e)
	w.AddIndexMark()
	w.AddGap(gap1, 0x4e)
}
