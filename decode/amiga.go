package decode

import (
	"github.com/sergev/floppycore/bitbuffer"
	"github.com/sergev/floppycore/chs"
	"github.com/sergev/floppycore/diskerr"
	"github.com/sergev/floppycore/sector"
	"github.com/sergev/floppycore/track"
)

// amigaSectorSize is the fixed 512-byte data size Amiga trackdisk sectors
// always use; unlike IBM-PC format, the size isn't carried in the header.
const amigaSectorSize = 512

// unshuffle reconstructs a 32-bit word from its odd/even bit-interleaved
// halves, the inverse of the MFM bit-doubling Amiga's trackdisk.device
// encoder applies. Grounded on mfm.unshuffle.
func unshuffle(odd, even uint16) uint32 {
	var word uint32
	for i := 0; i < 16; i++ {
		word <<= 2
		word |= uint32((even>>15)&1) | uint32((odd>>14)&2)
		odd <<= 1
		even <<= 1
	}
	return word
}

// ScanAmiga decodes one revolution's worth of Amiga MFM bits into a Track,
// grounded on mfm.Reader.ReadSectorAmiga/readDataAmiga but reading every
// sector present instead of a single requested one.
func ScanAmiga(bb *bitbuffer.BitBuffer, rate chs.DataRate, cyl, head int) (*track.Track, error) {
	r := &ibmReader{bb: bb, halfBitsPerDataBit: 2}

	tr := track.New(16)
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
		if history&0xfffffff0 != 0x00a1a1f0 {
			continue
		}

		offset := bb.Pos() - 8
		tagLow := byte(history & 0xff)
		history = 0

		oddLow, e1 := r.readByte()
		evenHigh, e2 := r.readByte()
		evenLow, e3 := r.readByte()
		if e1 != nil || e2 != nil || e3 != nil {
			break
		}
		budget -= 3 * 8 * 2

		odd := uint16(tagLow)<<8 | uint16(oddLow)
		even := uint16(evenHigh)<<8 | uint16(evenLow)
		ident := unshuffle(odd, even) & 0xffffff
		headerSum := uint32(odd) ^ uint32(even)
		sec := int((ident >> 8) & 0xff)

		// Sector label: 4 application-defined longwords, unused by the
		// format itself but still part of the header checksum.
		ok := true
		for i := 0; i < 4; i++ {
			oh, e1 := r.readByte()
			ol, e2 := r.readByte()
			eh, e3 := r.readByte()
			el, e4 := r.readByte()
			if e1 != nil || e2 != nil || e3 != nil || e4 != nil {
				ok = false
				break
			}
			o := uint16(oh)<<8 | uint16(ol)
			e := uint16(eh)<<8 | uint16(el)
			headerSum ^= uint32(o) ^ uint32(e)
		}
		if !ok {
			break
		}
		budget -= 16 * 8 * 2

		sumBytes, err := readN(r, 4)
		if err != nil {
			break
		}
		budget -= 4 * 8 * 2
		wantHeaderSum := uint32(sumBytes[0])<<24 | uint32(sumBytes[1])<<16 | uint32(sumBytes[2])<<8 | uint32(sumBytes[3])

		hdr := chs.Header{Cyl: cyl, Head: head, Sector: sec, SizeCode: 2}
		s := sector.New(rate, chs.EncodingAmiga, hdr, 0)
		s.Offset = offset

		readTrack := int(ident >> 16)
		if headerSum != wantHeaderSum || readTrack != cyl*2+head {
			s.SetBadIDCRC(true)
			if _, err := tr.Add(s); err != nil {
				return tr, err
			}
			continue
		}

		dataSumBytes, err := readN(r, 4)
		if err != nil {
			if _, err := tr.Add(s); err != nil {
				return tr, err
			}
			break
		}
		budget -= 4 * 8 * 2
		wantDataSum := uint32(dataSumBytes[0])<<24 | uint32(dataSumBytes[1])<<16 | uint32(dataSumBytes[2])<<8 | uint32(dataSumBytes[3])

		data := make([]byte, amigaSectorSize)
		dataSum, err := readDataAmiga(r, data)
		budget -= amigaSectorSize * 2 * 8
		if err != nil {
			if _, err := tr.Add(s); err != nil {
				return tr, err
			}
			continue
		}

		s.Add(data, dataSum != wantDataSum, sector.DAMNormal)
		if _, err := tr.Add(s); err != nil {
			return tr, err
		}
	}

	if tr.Empty() {
		return tr, diskerr.New(diskerr.FormatUnrecognized, "no Amiga sectors found")
	}
	return tr, nil
}

func readN(r *ibmReader, n int) ([]byte, error) {
	buf := make([]byte, n)
	for i := range buf {
		b, err := r.readByte()
		if err != nil {
			return nil, err
		}
		buf[i] = b
	}
	return buf, nil
}

// readDataAmiga reads a 512-byte Amiga data block, stored as two halves of
// odd then even interleaved bits, and returns its running XOR checksum.
func readDataAmiga(r *ibmReader, data []byte) (uint32, error) {
	n := len(data)
	odd := make([]uint16, n/4)
	for i := range odd {
		hi, err := r.readByte()
		if err != nil {
			return 0, err
		}
		lo, err := r.readByte()
		if err != nil {
			return 0, err
		}
		odd[i] = uint16(hi)<<8 | uint16(lo)
	}
	even := make([]uint16, n/4)
	for i := range even {
		hi, err := r.readByte()
		if err != nil {
			return 0, err
		}
		lo, err := r.readByte()
		if err != nil {
			return 0, err
		}
		even[i] = uint16(hi)<<8 | uint16(lo)
	}

	var sum uint32
	for i := range odd {
		word := unshuffle(odd[i], even[i])
		sum ^= uint32(odd[i]) ^ uint32(even[i])
		data[4*i] = byte(word >> 24)
		data[4*i+1] = byte(word >> 16)
		data[4*i+2] = byte(word >> 8)
		data[4*i+3] = byte(word)
	}
	return sum, nil
}
