// Package trackdata implements TrackData, the tagged union over a track's
// possible representations (flux, bitstream, decoded sectors) that spec.md
// §3/§4.4 describes: callers may demand whichever view they need and the
// conversions between views are computed once and memoized, the way a
// lazily-evaluated pipeline stage would be in any other language, but
// expressed here as plain Go methods rather than a promise/future type.
package trackdata

import (
	"fmt"

	"github.com/sergev/floppycore/chs"
	"github.com/sergev/floppycore/decode"

	"github.com/sergev/floppycore/bitbuffer"
	"github.com/sergev/floppycore/flux"
	"github.com/sergev/floppycore/track"
)

// Kind reports which representation a TrackData was constructed from. A
// TrackData always remembers its origin even after higher views have been
// derived and cached, since re-deriving from a different origin (e.g.
// overwriting a decoded Track from a later flux capture) isn't supported:
// each TrackData instance is written once per origin kind.
type Kind int

const (
	Empty Kind = iota
	FluxKind
	BitstreamKind
	TrackKind
)

func (k Kind) String() string {
	switch k {
	case FluxKind:
		return "flux"
	case BitstreamKind:
		return "bitstream"
	case TrackKind:
		return "track"
	default:
		return "empty"
	}
}

// TrackData holds exactly one track's data, tagged with its physical
// address, in whichever representation it was captured or synthesized in,
// plus the higher-level views already derived from it.
type TrackData struct {
	CylHead  chs.CylHead
	Rate     chs.DataRate
	Encoding chs.Encoding // Unknown: Track() probes MFM, FM and Amiga in turn

	kind Kind
	flux *flux.Data
	bits *bitbuffer.BitBuffer
	trk  *track.Track
}

// NewEmpty creates a placeholder for a track that hasn't been read yet.
func NewEmpty(ch chs.CylHead) TrackData {
	return TrackData{CylHead: ch, kind: Empty}
}

// NewFlux wraps a captured flux revolution set.
func NewFlux(ch chs.CylHead, fd *flux.Data, rate chs.DataRate, encoding chs.Encoding) TrackData {
	return TrackData{CylHead: ch, Rate: rate, Encoding: encoding, kind: FluxKind, flux: fd}
}

// NewBitstream wraps an already phase-recovered bitstream.
func NewBitstream(ch chs.CylHead, bb *bitbuffer.BitBuffer, encoding chs.Encoding) TrackData {
	return TrackData{CylHead: ch, Rate: bb.DataRate, Encoding: encoding, kind: BitstreamKind, bits: bb}
}

// NewTrack wraps an already decoded track.
func NewTrack(ch chs.CylHead, tr *track.Track) TrackData {
	rate := chs.DataRateUnknown
	if !tr.Empty() {
		rate = tr.Sectors[0].DataRate
	}
	return TrackData{CylHead: ch, Rate: rate, kind: TrackKind, trk: tr}
}

// Kind reports the representation this TrackData currently holds (its
// origin; see NewEmpty/NewFlux/NewBitstream/NewTrack).
func (td *TrackData) Kind() Kind { return td.kind }

// Empty reports whether no data at all was captured for this track.
func (td *TrackData) Empty() bool { return td.kind == Empty }

// Flux returns the raw flux revolutions, if this TrackData was built from
// them; otherwise it reports that no flux-level view is available (the
// pipeline only ever promotes flux -> bitstream -> track, never back down).
func (td *TrackData) Flux() (*flux.Data, error) {
	if td.flux == nil {
		return nil, fmt.Errorf("trackdata %v: no flux-level data available", td.CylHead)
	}
	return td.flux, nil
}

// Bitstream returns the phase-recovered bitstream, decoding it from flux
// (using the first revolution) the first time it's demanded and caching
// the result for subsequent calls.
func (td *TrackData) Bitstream() (*bitbuffer.BitBuffer, error) {
	if td.bits != nil {
		return td.bits, nil
	}
	if td.flux == nil {
		return nil, fmt.Errorf("trackdata %v: no flux data to recover a bitstream from", td.CylHead)
	}
	if td.flux.NumRevolutions() == 0 {
		return nil, fmt.Errorf("trackdata %v: flux capture has no revolutions", td.CylHead)
	}
	td.bits = decode.FluxToBitstream(td.flux.Revolutions[0], td.Rate)
	return td.bits, nil
}

// Track returns the decoded sector sequence, computing it (and any
// necessary lower-level conversion) on first demand and caching the
// result. When Encoding is Unknown, MFM, FM and Amiga decoders are each
// tried in turn, keeping the first one that actually finds sectors.
func (td *TrackData) Track() (*track.Track, error) {
	if td.trk != nil {
		return td.trk, nil
	}

	if td.flux != nil && td.flux.NumRevolutions() > 1 {
		return td.trackFromMultipleRevolutions()
	}

	bits, err := td.Bitstream()
	if err != nil {
		return nil, err
	}
	tr, enc, err := decodeBitstream(bits, td.CylHead, td.Rate, td.Encoding)
	if err != nil {
		return nil, err
	}
	td.Encoding = enc
	td.trk = tr
	return tr, nil
}

// trackFromMultipleRevolutions decodes every captured revolution
// independently and merges them into one track, giving the sector merge
// algebra a chance to recover good data that a single noisy revolution
// didn't carry.
func (td *TrackData) trackFromMultipleRevolutions() (*track.Track, error) {
	merged := track.New(32)
	var lastErr error
	decoded := 0
	for _, rev := range td.flux.Revolutions {
		bits := decode.FluxToBitstream(rev, td.Rate)
		tr, enc, err := decodeBitstream(bits, td.CylHead, td.Rate, td.Encoding)
		if err != nil {
			lastErr = err
			continue
		}
		td.Encoding = enc
		decoded++
		if err := merged.AddTrack(tr); err != nil {
			return nil, err
		}
	}
	if decoded == 0 {
		return nil, lastErr
	}
	td.trk = merged
	return merged, nil
}

// decodeBitstream tries the requested encoding, or each known encoding in
// turn if it's Unknown, returning the first successfully decoded track.
func decodeBitstream(bits *bitbuffer.BitBuffer, ch chs.CylHead, rate chs.DataRate, encoding chs.Encoding) (*track.Track, chs.Encoding, error) {
	tryOrder := []chs.Encoding{encoding}
	if encoding == chs.EncodingUnknown {
		tryOrder = []chs.Encoding{chs.EncodingMFM, chs.EncodingFM, chs.EncodingAmiga}
	}

	var lastErr error
	for _, enc := range tryOrder {
		var tr *track.Track
		var err error
		switch enc {
		case chs.EncodingAmiga:
			tr, err = decode.ScanAmiga(bits, rate, ch.Cyl, ch.Head)
		default:
			tr, err = decode.ScanIBM(bits, rate, enc)
		}
		if err == nil {
			return tr, enc, nil
		}
		lastErr = err
		bits.Seek(0)
	}
	return nil, encoding, lastErr
}
