// Package hfe implements imagecodec.Reader/Writer for the HFE floppy
// image format (v1 and v3), adapted from the teacher's hfe package: the
// same header layout, 256-byte-per-side block interleaving, the
// byteBitsInverter LSB<->MSB swap and the v3 opcode stream, retargeted
// from a raw []byte-per-side Disk model onto trackdata.TrackData's
// bitbuffer view.
package hfe

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sergev/floppycore/bitbuffer"
	"github.com/sergev/floppycore/chs"
	"github.com/sergev/floppycore/disk"
	"github.com/sergev/floppycore/format"
	"github.com/sergev/floppycore/imagecodec"
	"github.com/sergev/floppycore/trackdata"
)

const (
	sigV1 = "HXCPICFE"
	sigV3 = "HXCHFEV3"

	blockSize = 512

	opcodeMask    = 0xf0
	nopOpcode     = 0xf0
	setIndexOp    = 0xf1
	setBitrateOp  = 0xf2
	skipBitsOp    = 0xf3
	randOpcode    = 0xf4
)

const (
	encISOIBMMFM = 0
	encAmigaMFM  = 1
	encISOIBMFM  = 2
)

// header mirrors the 32-byte HFE descriptor block, little-endian.
type header struct {
	Signature           [8]byte
	FormatRevision      uint8
	NumberOfTrack       uint8
	NumberOfSide        uint8
	TrackEncoding       uint8
	BitRate             uint16
	FloppyRPM           uint16
	FloppyInterfaceMode uint8
	WriteProtected      uint8
	TrackListOffset     uint16
	WriteAllowed        uint8
	SingleStep          uint8
	Track0S0AltEncoding uint8
	Track0S0Encoding    uint8
	Track0S1AltEncoding uint8
	Track0S1Encoding    uint8
}

type trackEntry struct {
	Offset   uint16
	TrackLen uint16
}

var byteBitsInverter [256]byte

func init() {
	for i := 0; i < 256; i++ {
		var inverted byte
		for j := 0; j < 8; j++ {
			if i&(1<<j) != 0 {
				inverted |= 1 << (7 - j)
			}
		}
		byteBitsInverter[i] = inverted
	}
}

func dataRateFromKbps(kbps uint16) chs.DataRate {
	switch kbps {
	case 250:
		return chs.DataRate250K
	case 300:
		return chs.DataRate300K
	case 500:
		return chs.DataRate500K
	case 1000:
		return chs.DataRate1M
	default:
		return chs.DataRateUnknown
	}
}

func kbpsFromDataRate(rate chs.DataRate) uint16 {
	switch rate {
	case chs.DataRate250K:
		return 250
	case chs.DataRate300K:
		return 300
	case chs.DataRate500K:
		return 500
	case chs.DataRate1M:
		return 1000
	default:
		return 250
	}
}

func encodingFromTrackEncoding(te uint8) chs.Encoding {
	switch te {
	case encAmigaMFM:
		return chs.EncodingAmiga
	case encISOIBMFM:
		return chs.EncodingFM
	default:
		return chs.EncodingMFM
	}
}

func trackEncodingFromEncoding(enc chs.Encoding) uint8 {
	switch enc {
	case chs.EncodingAmiga:
		return encAmigaMFM
	case chs.EncodingFM:
		return encISOIBMFM
	default:
		return encISOIBMMFM
	}
}

// Codec is the registered imagecodec.Codec implementation.
var Codec = imagecodec.Codec{Name: "hfe", Reader: reader{}, Writer: writer{}}

type reader struct{}
type writer struct{}

func init() {
	imagecodec.Register(Codec)
}

func (reader) Read(r io.ReaderAt, size int64) (*disk.Disk, bool, error) {
	if size < blockSize {
		return nil, false, nil
	}
	hdrBuf := make([]byte, 32)
	if _, err := r.ReadAt(hdrBuf, 0); err != nil {
		return nil, false, nil
	}

	sig := string(hdrBuf[0:8])
	isV1 := sig == sigV1
	isV3 := sig == sigV3
	if !isV1 && !isV3 {
		return nil, false, nil
	}

	var hdr header
	copy(hdr.Signature[:], hdrBuf[0:8])
	hdr.FormatRevision = hdrBuf[8]
	hdr.NumberOfTrack = hdrBuf[9]
	hdr.NumberOfSide = hdrBuf[10]
	hdr.TrackEncoding = hdrBuf[11]
	hdr.BitRate = binary.LittleEndian.Uint16(hdrBuf[12:14])
	hdr.FloppyRPM = binary.LittleEndian.Uint16(hdrBuf[14:16])
	hdr.FloppyInterfaceMode = hdrBuf[16]
	hdr.WriteProtected = hdrBuf[17]
	hdr.TrackListOffset = binary.LittleEndian.Uint16(hdrBuf[18:20])

	if hdr.FormatRevision != 0 {
		return nil, false, fmt.Errorf("unsupported HFE format revision %d", hdr.FormatRevision)
	}
	if hdr.BitRate == 0 || hdr.NumberOfTrack == 0 || hdr.NumberOfSide == 0 {
		return nil, true, fmt.Errorf("invalid HFE header: zero bit rate, track count or side count")
	}

	trackListOff := int64(hdr.TrackListOffset) * blockSize
	trackHeaders := make([]trackEntry, hdr.NumberOfTrack)
	thBuf := make([]byte, int(hdr.NumberOfTrack)*4)
	if _, err := r.ReadAt(thBuf, trackListOff); err != nil {
		return nil, true, fmt.Errorf("read track list: %w", err)
	}
	for i := range trackHeaders {
		trackHeaders[i].Offset = binary.LittleEndian.Uint16(thBuf[i*4 : i*4+2])
		trackHeaders[i].TrackLen = binary.LittleEndian.Uint16(thBuf[i*4+2 : i*4+4])
	}

	rate := dataRateFromKbps(hdr.BitRate)
	encoding := encodingFromTrackEncoding(hdr.TrackEncoding)
	f := format.Format{
		Name:     "hfe",
		Cyls:     int(hdr.NumberOfTrack),
		Heads:    int(hdr.NumberOfSide),
		DataRate: rate,
		Encoding: encoding,
	}
	d := disk.New(f)

	for cyl := range trackHeaders {
		side0, side1, err := readTrack(r, &trackHeaders[cyl], int(hdr.NumberOfSide), isV3)
		if err != nil {
			return nil, true, fmt.Errorf("read track %d: %w", cyl, err)
		}
		storeSide(d, cyl, 0, side0, rate, encoding)
		if hdr.NumberOfSide > 1 {
			storeSide(d, cyl, 1, side1, rate, encoding)
		}
	}
	return d, true, nil
}

func storeSide(d *disk.Disk, cyl, head int, bits []byte, rate chs.DataRate, encoding chs.Encoding) {
	ch := chs.CylHead{Cyl: cyl, Head: head}
	bb := bitbuffer.FromBits(bits, len(bits)*8, rate)
	d.Set(ch, trackdata.NewBitstream(ch, bb, encoding))
}

func readTrack(r io.ReaderAt, th *trackEntry, numSides int, processOpcodes bool) (side0, side1 []byte, err error) {
	trackLen := int(th.TrackLen)
	if trackLen&0x1ff != 0 {
		trackLen = (trackLen &^ 0x1ff) + 0x200
	}

	buf := make([]byte, trackLen)
	if _, err := r.ReadAt(buf, int64(th.Offset)*blockSize); err != nil {
		return nil, nil, fmt.Errorf("read track data: %w", err)
	}

	side0Data := make([]byte, trackLen/2)
	side1Data := make([]byte, trackLen/2)
	for j := 0; j < trackLen; j += blockSize {
		for k := 0; k < 256; k++ {
			side0Data[j/2+k] = byteBitsInverter[buf[j+k]]
			if numSides > 1 {
				side1Data[j/2+k] = byteBitsInverter[buf[j+256+k]]
			}
		}
	}

	if !processOpcodes {
		return side0Data, side1Data, nil
	}

	side0, err = processTrackOpcodes(side0Data)
	if err != nil {
		return nil, nil, fmt.Errorf("side 0 opcodes: %w", err)
	}
	if numSides > 1 {
		side1, err = processTrackOpcodes(side1Data)
		if err != nil {
			return nil, nil, fmt.Errorf("side 1 opcodes: %w", err)
		}
	}
	return side0, side1, nil
}

// processTrackOpcodes strips HFEv3's NOP/SETINDEX/SETBITRATE/SKIPBITS/RAND
// opcode stream down to the raw MFM bitstream, rotating the track so the
// index pulse sits at bit 0.
func processTrackOpcodes(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	inBit, outBit, indexBit := 0, 0, 0

	for inBit/8 < len(data) {
		if inBit&7 != 0 {
			return nil, fmt.Errorf("opcode stream not byte-aligned")
		}
		opc := data[inBit/8]

		if opc&opcodeMask == opcodeMask {
			switch opc & 0x0f {
			case nopOpcode & 0x0f:
				inBit += 8
			case setIndexOp & 0x0f:
				inBit += 8
				indexBit = outBit
			case setBitrateOp & 0x0f:
				if inBit/8+1 >= len(data) {
					return nil, fmt.Errorf("SETBITRATE: insufficient data")
				}
				inBit += 16
			case skipBitsOp & 0x0f:
				if inBit/8+1 >= len(data) {
					return nil, fmt.Errorf("SKIPBITS: insufficient data")
				}
				skip := int(data[inBit/8+1])
				if skip > 8 {
					return nil, fmt.Errorf("SKIPBITS: skip value %d > 8", skip)
				}
				inBit += 16 + skip
				bitCopy(out, outBit, data, inBit, 8-skip)
				inBit += 8 - skip
				outBit += 8 - skip
			case randOpcode & 0x0f:
				inBit += 8
				outBit += 8
			default:
				return nil, fmt.Errorf("unknown HFE opcode 0x%02x", opc)
			}
		} else {
			b := data[inBit/8]
			if b >= 0x60 && b <= 0x6f {
				b ^= 0x90
			}
			bitCopy(out, outBit, []byte{b}, 0, 8)
			inBit += 8
			outBit += 8
		}
	}

	lenBits := outBit
	result := make([]byte, (lenBits+7)/8)
	if indexBit < lenBits {
		bitCopy(result, 0, out, indexBit, lenBits-indexBit)
		bitCopy(result, lenBits-indexBit, out, 0, indexBit)
	} else {
		copy(result, out[:lenBits/8])
	}
	return result, nil
}

func bitCopy(dst []byte, dstOff int, src []byte, srcOff int, size int) int {
	for i := 0; i < size; i++ {
		if srcOff >= len(src)*8 || dstOff >= len(dst)*8 {
			return dstOff
		}
		srcBit := (src[srcOff/8] >> (7 - (srcOff & 7))) & 1
		if srcBit != 0 {
			dst[dstOff/8] |= 1 << (7 - (dstOff & 7))
		} else {
			dst[dstOff/8] &^= 1 << (7 - (dstOff & 7))
		}
		srcOff++
		dstOff++
	}
	return dstOff
}

// Write implements imagecodec.Writer, always as HFE v1 (raw per-side
// bitstreams, no opcode stream) — the simpler of the two variants the
// teacher's WriteHFE supported.
func (writer) Write(w io.WriterAt, d *disk.Disk) error {
	chsList := d.CylHeads()
	if len(chsList) == 0 {
		return fmt.Errorf("hfe: disk has no tracks to write")
	}

	maxCyl, maxHead := 0, 0
	for _, ch := range chsList {
		if ch.Cyl > maxCyl {
			maxCyl = ch.Cyl
		}
		if ch.Head > maxHead {
			maxHead = ch.Head
		}
	}
	numTracks := maxCyl + 1
	numSides := maxHead + 1

	sides := make([][2][]byte, numTracks)
	rate := d.Fmt.DataRate
	encoding := d.Fmt.Encoding
	for cyl := 0; cyl < numTracks; cyl++ {
		for head := 0; head < numSides; head++ {
			td, ok := d.Get(chs.CylHead{Cyl: cyl, Head: head})
			if !ok {
				continue
			}
			bb, err := td.Bitstream()
			if err != nil {
				continue
			}
			sides[cyl][head] = bb.Bytes()
			if rate == chs.DataRateUnknown {
				rate = td.Rate
			}
			if encoding == chs.EncodingUnknown {
				encoding = td.Encoding
			}
		}
	}

	hdr := header{
		NumberOfTrack:       uint8(numTracks),
		NumberOfSide:        uint8(numSides),
		TrackEncoding:       trackEncodingFromEncoding(encoding),
		BitRate:             kbpsFromDataRate(rate),
		FloppyRPM:           300,
		FloppyInterfaceMode: 0,
		TrackListOffset:     1,
	}
	copy(hdr.Signature[:], sigV1)

	headerBlock := make([]byte, blockSize)
	for i := range headerBlock {
		headerBlock[i] = 0xff
	}
	headerData := make([]byte, 32)
	copy(headerData[0:8], hdr.Signature[:])
	headerData[8] = hdr.FormatRevision
	headerData[9] = hdr.NumberOfTrack
	headerData[10] = hdr.NumberOfSide
	headerData[11] = hdr.TrackEncoding
	binary.LittleEndian.PutUint16(headerData[12:14], hdr.BitRate)
	binary.LittleEndian.PutUint16(headerData[14:16], hdr.FloppyRPM)
	headerData[16] = hdr.FloppyInterfaceMode
	headerData[17] = hdr.WriteProtected
	binary.LittleEndian.PutUint16(headerData[18:20], hdr.TrackListOffset)
	copy(headerBlock, headerData)
	if _, err := w.WriteAt(headerBlock, 0); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	trackListBlock := make([]byte, blockSize)
	for i := range trackListBlock {
		trackListBlock[i] = 0xff
	}

	entries := make([]trackEntry, numTracks)
	trackPos := uint16(2)
	for cyl := 0; cyl < numTracks; cyl++ {
		maxLen := len(sides[cyl][0])
		if len(sides[cyl][1]) > maxLen {
			maxLen = len(sides[cyl][1])
		}
		byteLen := maxLen * 2
		trackLen := byteLen
		if trackLen%blockSize != 0 {
			trackLen = (trackLen/blockSize + 1) * blockSize
		}
		entries[cyl] = trackEntry{Offset: trackPos, TrackLen: uint16(trackLen)}
		trackPos += uint16(trackLen / blockSize)
	}
	if numTracks > 128 {
		return fmt.Errorf("hfe: too many tracks for a single track list block")
	}
	for i, e := range entries {
		binary.LittleEndian.PutUint16(trackListBlock[i*4:i*4+2], e.Offset)
		binary.LittleEndian.PutUint16(trackListBlock[i*4+2:i*4+4], e.TrackLen)
	}
	if _, err := w.WriteAt(trackListBlock, blockSize); err != nil {
		return fmt.Errorf("write track list: %w", err)
	}

	for cyl, e := range entries {
		if err := writeRawTrack(w, e, sides[cyl][0], sides[cyl][1], numSides); err != nil {
			return fmt.Errorf("write track %d: %w", cyl, err)
		}
	}
	return nil
}

func writeRawTrack(w io.WriterAt, e trackEntry, side0, side1 []byte, numSides int) error {
	trackLen := int(e.TrackLen)
	side0Buf := make([]byte, trackLen/2)
	side1Buf := make([]byte, trackLen/2)

	copy(side0Buf, side0)
	for i := len(side0); i < len(side0Buf); i++ {
		side0Buf[i] = 0xff
	}
	if numSides > 1 {
		copy(side1Buf, side1)
		for i := len(side1); i < len(side1Buf); i++ {
			side1Buf[i] = 0xff
		}
	} else {
		copy(side1Buf, side0Buf)
	}

	trackBuf := make([]byte, trackLen)
	for k := 0; k < trackLen/blockSize; k++ {
		for j := 0; j < 256; j++ {
			trackBuf[k*blockSize+j] = byteBitsInverter[side0Buf[k*256+j]]
			trackBuf[k*blockSize+j+256] = byteBitsInverter[side1Buf[k*256+j]]
		}
	}
	_, err := w.WriteAt(trackBuf, int64(e.Offset)*blockSize)
	return err
}
