package decode

import (
	"github.com/sergev/floppycore/bitbuffer"
	"github.com/sergev/floppycore/chs"
	"github.com/sergev/floppycore/crc16"
	"github.com/sergev/floppycore/diskerr"
	"github.com/sergev/floppycore/sector"
	"github.com/sergev/floppycore/track"
)

// scanBudgetFactor bounds how many raw bits ScanIBM will read looking for
// markers before giving up: the bitstream wraps around the index forever,
// so a track with no recognizable markers would otherwise spin this loop
// indefinitely.
const scanBudgetFactor = 3

// ibmReader reads IBM-PC-style encoded bits: MFM and FM both put a clock
// bit ahead of every data bit, and readBit keeps only the last bitcell of
// each halfBitsPerDataBit group (the data bit).
type ibmReader struct {
	bb           *bitbuffer.BitBuffer
	halfBitsPerDataBit int
}

func (r *ibmReader) readBit() (int, error) {
	var bit int
	for i := 0; i < r.halfBitsPerDataBit; i++ {
		b, err := r.bb.ReadBit()
		if err != nil {
			return 0, err
		}
		bit = b
	}
	return bit, nil
}

func (r *ibmReader) readByte() (byte, error) {
	var v byte
	for i := 0; i < 8; i++ {
		b, err := r.readBit()
		if err != nil {
			return 0, err
		}
		v = (v << 1) | byte(b)
	}
	return v, nil
}

// resync drops one raw bit, the same half-bit realignment mfm.Reader.scanIBMPC
// does after an all-ones run, so the shift register lands back on a data-bit
// boundary.
func (r *ibmReader) resync() {
	r.bb.ReadBit()
}

// readRawBit reads one raw bitcell straight off the bitstream, bypassing the
// halfBitsPerDataBit grouping readBit applies. FM's address marks are only
// recognizable at this raw level: they carry no multi-byte preamble the way
// MFM's 0xA1/0xC2 marks do, only a single byte whose clock track violates
// the normal all-ones clock (spec.md:204-207).
func (r *ibmReader) readRawBit() (int, error) {
	return r.bb.ReadBit()
}

// ScanIBM decodes one revolution's worth of MFM or FM encoded bits into a
// Track of IBM-PC style sectors (IDAM/DAM address marks, CRC-16/CCITT),
// grounded on mfm.Reader's scanIBMPC/ReadSectorIBMPC but generalized to
// arbitrary sector size codes and sector counts instead of a fixed 512-byte,
// hardcoded-CHS layout.
func ScanIBM(bb *bitbuffer.BitBuffer, rate chs.DataRate, encoding chs.Encoding) (*track.Track, error) {
	if encoding == chs.EncodingFM {
		return scanIBMFM(bb, rate)
	}
	return scanIBMMFM(bb, rate)
}

// scanIBMMFM hunts for MFM's three-byte 0xA1/0xC2 clock-violated preambles,
// identifiable from the data-bit history alone since readBit already
// discards the clock half-bits.
func scanIBMMFM(bb *bitbuffer.BitBuffer, rate chs.DataRate) (*track.Track, error) {
	r := &ibmReader{bb: bb, halfBitsPerDataBit: 2}

	tr := track.New(32)
	tr.TrackLen = bb.Len()

	budget := bb.Len()*scanBudgetFactor + 64
	history := uint32(0)

	for budget > 0 {
		bit, err := r.readBit()
		if err != nil {
			break
		}
		budget--
		history = (history<<1 | uint32(bit)) & 0xffffffff

		if history == 0xffffffff {
			r.resync()
			history = 0
			continue
		}
		if history != 0x00a1a1a1 && history != 0x00c2c2c2 {
			continue
		}

		offset := bb.Pos()
		tag, err := r.readByte()
		if err != nil {
			break
		}
		// Whatever happens next, the bytes we're about to read weren't
		// folded into history bit by bit, so it no longer reflects the
		// actual last 32 bits once we resume the rolling scan below.
		history = 0
		if tag != 0xfe {
			continue
		}

		cyl, e1 := r.readByte()
		head, e2 := r.readByte()
		sec, e3 := r.readByte()
		size, e4 := r.readByte()
		sumHi, e5 := r.readByte()
		sumLo, e6 := r.readByte()
		if e1 != nil || e2 != nil || e3 != nil || e4 != nil || e5 != nil || e6 != nil {
			break
		}
		budget -= 6 * 8 * 2

		hdr := chs.Header{Cyl: int(cyl), Head: int(head), Sector: int(sec), SizeCode: int(size)}
		s := sector.New(rate, chs.EncodingMFM, hdr, 0)
		s.Offset = offset

		headerCRC := crc16.New(crc16.A1A1A1)
		headerCRC.AddBytes([]byte{0xfe, cyl, head, sec, size})
		wantSum := uint16(sumHi)<<8 | uint16(sumLo)
		if headerCRC.Value() != wantSum {
			s.SetBadIDCRC(true)
			if _, err := tr.Add(s); err != nil {
				return tr, err
			}
			continue
		}

		dtag, dBudget, err := scanForDAM(r, budget)
		budget = dBudget
		if err != nil || (dtag != sector.DAMNormal && dtag != sector.DAMDeleted &&
			dtag != sector.DAMDeleted2 && dtag != sector.DAMAlt && dtag != sector.DAMRX02) {
			// No data field follows: a header-only sector still belongs on
			// the track, just without data.
			if _, err := tr.Add(s); err != nil {
				return tr, err
			}
			continue
		}

		size_bytes := hdr.Size()
		data := make([]byte, size_bytes)
		ok := true
		for i := range data {
			b, err := r.readByte()
			if err != nil {
				ok = false
				break
			}
			data[i] = b
		}
		budget -= size_bytes * 8 * 2
		if !ok {
			if _, err := tr.Add(s); err != nil {
				return tr, err
			}
			continue
		}

		dSumHi, e1 := r.readByte()
		dSumLo, e2 := r.readByte()
		badDataCRC := e1 != nil || e2 != nil
		if !badDataCRC {
			dataCRC := crc16.New(crc16.A1A1A1)
			dataCRC.Add(dtag)
			dataCRC.AddBytes(data)
			badDataCRC = dataCRC.Value() != (uint16(dSumHi)<<8 | uint16(dSumLo))
		}

		s.Add(data, badDataCRC, dtag)
		if _, err := tr.Add(s); err != nil {
			return tr, err
		}
	}

	if tr.Empty() {
		return tr, diskerr.New(diskerr.FormatUnrecognized, "no IBM-format address marks found")
	}
	return tr, nil
}

// scanForDAM hunts forward from just after an IDAM for the next address
// mark, returning its tag byte and the remaining scan budget.
func scanForDAM(r *ibmReader, budget int) (byte, int, error) {
	history := uint32(0)
	for budget > 0 {
		bit, err := r.readBit()
		if err != nil {
			return 0, budget, err
		}
		budget--
		history = (history<<1 | uint32(bit)) & 0xffffffff

		if history == 0xffffffff {
			r.resync()
			history = 0
			continue
		}
		if history == 0x00a1a1a1 || history == 0x00c2c2c2 {
			tag, err := r.readByte()
			return tag, budget, err
		}
	}
	return 0, budget, diskerr.New(diskerr.CorruptImage, "data mark not found within scan budget")
}

// fmClockAddress is the per-bit clock pattern FM address marks carry instead
// of the all-ones clock ordinary FM data bytes use (encode.ClockFMAddress).
const fmClockAddress byte = 0xc7

// fmMarkPattern returns the 16 raw bits (clock bit, data bit, MSB first for
// each of tag's 8 bits) an address mark byte produces on the wire, for
// sliding-window matching against the live raw bitstream.
func fmMarkPattern(tag, clock byte) uint32 {
	var pattern uint32
	for i := 7; i >= 0; i-- {
		clockBit := (clock >> uint(i)) & 1
		dataBit := (tag >> uint(i)) & 1
		pattern = pattern<<2 | uint32(clockBit)<<1 | uint32(dataBit)
	}
	return pattern
}

var fmIDAMPattern = fmMarkPattern(0xfe, fmClockAddress)

// fmDAMPatterns maps every data address mark's raw 16-bit pattern back to
// its tag byte.
var fmDAMPatterns = map[uint32]byte{
	fmMarkPattern(sector.DAMNormal, fmClockAddress):   sector.DAMNormal,
	fmMarkPattern(sector.DAMDeleted, fmClockAddress):  sector.DAMDeleted,
	fmMarkPattern(sector.DAMDeleted2, fmClockAddress): sector.DAMDeleted2,
	fmMarkPattern(sector.DAMAlt, fmClockAddress):      sector.DAMAlt,
	fmMarkPattern(sector.DAMRX02, fmClockAddress):     sector.DAMRX02,
}

// scanIBMFM hunts for FM's single-byte clock-violated address marks: unlike
// MFM there is no multi-byte 0xA1/0xC2 preamble to recognize from the data
// bits alone, so the hunt inspects raw clock+data bit pairs directly
// (spec.md:204-207), then falls back to the same header/data field layout
// and CRC-16/CCITT handling scanIBMMFM uses.
func scanIBMFM(bb *bitbuffer.BitBuffer, rate chs.DataRate) (*track.Track, error) {
	r := &ibmReader{bb: bb, halfBitsPerDataBit: 2}

	tr := track.New(32)
	tr.TrackLen = bb.Len()

	budget := bb.Len()*scanBudgetFactor + 64
	window := uint32(0)

	for budget > 0 {
		bit, err := r.readRawBit()
		if err != nil {
			break
		}
		budget--
		window = (window<<1 | uint32(bit)) & 0xffff

		if window != fmIDAMPattern {
			continue
		}

		offset := bb.Pos()
		cyl, e1 := r.readByte()
		head, e2 := r.readByte()
		sec, e3 := r.readByte()
		size, e4 := r.readByte()
		sumHi, e5 := r.readByte()
		sumLo, e6 := r.readByte()
		if e1 != nil || e2 != nil || e3 != nil || e4 != nil || e5 != nil || e6 != nil {
			break
		}
		budget -= 6 * 8 * 2

		hdr := chs.Header{Cyl: int(cyl), Head: int(head), Sector: int(sec), SizeCode: int(size)}
		s := sector.New(rate, chs.EncodingFM, hdr, 0)
		s.Offset = offset

		headerCRC := crc16.New(crc16.A1A1A1)
		headerCRC.AddBytes([]byte{0xfe, cyl, head, sec, size})
		wantSum := uint16(sumHi)<<8 | uint16(sumLo)
		if headerCRC.Value() != wantSum {
			s.SetBadIDCRC(true)
			if _, err := tr.Add(s); err != nil {
				return tr, err
			}
			window = 0
			continue
		}

		dtag, dBudget, err := scanForDAMFM(r, budget)
		budget = dBudget
		if err != nil {
			if _, err := tr.Add(s); err != nil {
				return tr, err
			}
			window = 0
			continue
		}

		size_bytes := hdr.Size()
		data := make([]byte, size_bytes)
		ok := true
		for i := range data {
			b, err := r.readByte()
			if err != nil {
				ok = false
				break
			}
			data[i] = b
		}
		budget -= size_bytes * 8 * 2
		if !ok {
			if _, err := tr.Add(s); err != nil {
				return tr, err
			}
			window = 0
			continue
		}

		dSumHi, e1 := r.readByte()
		dSumLo, e2 := r.readByte()
		badDataCRC := e1 != nil || e2 != nil
		if !badDataCRC {
			dataCRC := crc16.New(crc16.A1A1A1)
			dataCRC.Add(dtag)
			dataCRC.AddBytes(data)
			badDataCRC = dataCRC.Value() != (uint16(dSumHi)<<8 | uint16(dSumLo))
		}

		s.Add(data, badDataCRC, dtag)
		if _, err := tr.Add(s); err != nil {
			return tr, err
		}
		window = 0
	}

	if tr.Empty() {
		return tr, diskerr.New(diskerr.FormatUnrecognized, "no IBM-format address marks found")
	}
	return tr, nil
}

// scanForDAMFM hunts forward from just after an FM IDAM for the next data
// address mark, returning its tag byte and the remaining scan budget.
func scanForDAMFM(r *ibmReader, budget int) (byte, int, error) {
	window := uint32(0)
	for budget > 0 {
		bit, err := r.readRawBit()
		if err != nil {
			return 0, budget, err
		}
		budget--
		window = (window<<1 | uint32(bit)) & 0xffff

		if tag, ok := fmDAMPatterns[window]; ok {
			return tag, budget, nil
		}
	}
	return 0, budget, diskerr.New(diskerr.CorruptImage, "data mark not found within scan budget")
}
