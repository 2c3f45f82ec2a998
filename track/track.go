// Package track implements the Track container: an ordered sequence of
// sectors keyed by bit-offset from index, with the insert/merge/overlap
// logic spec.md §4.3 describes (grounded on original_source/src/Track.cpp).
package track

import (
	"sort"

	"github.com/sergev/floppycore/chs"
	"github.com/sergev/floppycore/diskerr"
	"github.com/sergev/floppycore/sector"
)

// CompareToleranceBits is the bit-distance window, on the track's own
// circular offset space, within which two same-header sectors are
// considered the same physical sector rather than a rewritten duplicate.
const CompareToleranceBits = 64 * 16

// AddResult reports what Track.Add did.
type AddResult int

const (
	Append AddResult = iota
	Insert
	Merged
	AddUnchanged
)

// per-encoding overhead used by DataExtentBytes: total non-data bytes a
// sector occupies between its IDAM sync and the next IDAM sync, and the
// portion of that which is the sync field alone. These are structural
// approximations (sync+mark+CRC+gap2/gap3 accounting), used only to flag
// likely overlapping rewritten sectors; exact per-format gap lengths are
// a formatting choice, not a decoding invariant.
var sectorOverhead = map[chs.Encoding]int{
	chs.EncodingFM:  36,
	chs.EncodingMFM: 60,
}

var syncOverhead = map[chs.Encoding]int{
	chs.EncodingFM:  6,
	chs.EncodingMFM: 15,
}

// Track is an ordered sequence of Sectors plus the two scalars that
// describe the physical revolution they were read from.
type Track struct {
	Sectors   []*sector.Sector
	TrackLen  int // bits/revolution
	TrackTime int // microseconds/revolution
}

// New creates an empty track, optionally pre-sizing the sector slice.
func New(capacity int) *Track {
	return &Track{Sectors: make([]*sector.Sector, 0, capacity)}
}

func (t *Track) Empty() bool { return len(t.Sectors) == 0 }
func (t *Track) Size() int   { return len(t.Sectors) }

// datarate returns the track's established data rate, or Unknown if empty.
func (t *Track) datarate() chs.DataRate {
	if t.Empty() {
		return chs.DataRateUnknown
	}
	return t.Sectors[0].DataRate
}

func wrapDistance(a, b, trackLen int) int {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	direct := hi - lo
	if trackLen <= 0 {
		return direct
	}
	wrapped := trackLen - direct
	if wrapped < direct {
		return wrapped
	}
	return direct
}

// findMatch returns the index of a sector already on the track that the
// given header/offset pair should merge into, or -1 if none qualifies.
func (t *Track) findMatch(s *sector.Sector) int {
	for i, existing := range t.Sectors {
		if !existing.Header.Equal(s.Header) {
			continue
		}
		if wrapDistance(existing.Offset, s.Offset, t.TrackLen) <= CompareToleranceBits {
			return i
		}
	}
	return -1
}

// DataExtentBits approximates the bit distance from a sector's IDAM to the
// next sector's IDAM (for the last sector, wrapping past the index to the
// first sector's IDAM).
func (t *Track) DataExtentBits(s *sector.Sector) int {
	idx := -1
	for i, existing := range t.Sectors {
		if existing == s {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0
	}
	trackLen := t.TrackLen
	if idx+1 < len(t.Sectors) {
		return t.Sectors[idx+1].Offset - s.Offset
	}
	return trackLen + t.Sectors[0].Offset - s.Offset
}

// DataExtentBytes is the basis for overlap detection: the byte span
// actually available for this sector's data before the next sector's
// header begins, per spec.md §4.3.
func (t *Track) DataExtentBytes(s *sector.Sector) int {
	if s.Encoding != chs.EncodingMFM && s.Encoding != chs.EncodingFM {
		return s.Size()
	}
	shift := 4
	if s.Encoding == chs.EncodingFM {
		shift = 5
	}
	gapBytes := t.DataExtentBits(s) >> uint(shift)
	overhead := sectorOverhead[s.Encoding] - syncOverhead[s.Encoding]
	extent := gapBytes - overhead
	if extent < 0 {
		extent = 0
	}
	return extent
}

// DataOverlap reports whether the sector's recorded extent is shorter than
// its natural size — i.e. a later rewrite trimmed the gap before it.
func (t *Track) DataOverlap(s *sector.Sector) bool {
	if s.Offset == 0 {
		return false
	}
	return t.DataExtentBytes(s) < s.Size()
}

// Is8KTrack reports the special single-8K-sector track shape.
func (t *Track) Is8KTrack() bool {
	return len(t.Sectors) == 1 && t.Sectors[0].Is8K()
}

// Add inserts or merges a sector into the track, implementing spec.md
// §4.3's Track::add.
func (t *Track) Add(s *sector.Sector) (AddResult, error) {
	if !t.Empty() && t.datarate() != s.DataRate {
		return AddUnchanged, diskerr.New(diskerr.GeometryMismatch,
			"can't mix datarates on a track: have %v, adding %v", t.datarate(), s.DataRate)
	}

	if s.Offset == 0 {
		t.Sectors = append(t.Sectors, s)
		return Append, nil
	}

	if i := t.findMatch(s); i >= 0 {
		existing := t.Sectors[i]
		ret := existing.Merge(s)
		if ret == sector.Unchanged {
			return AddUnchanged, nil
		}
		if t.DataOverlap(existing) && !t.Is8KTrack() {
			existing.SetMaxCopies(1)
		}
		return Merged, nil
	}

	pos := sort.Search(len(t.Sectors), func(i int) bool {
		return t.Sectors[i].Offset > 0 && t.Sectors[i].Offset >= s.Offset
	})
	t.Sectors = append(t.Sectors, nil)
	copy(t.Sectors[pos+1:], t.Sectors[pos:])
	t.Sectors[pos] = s
	return Insert, nil
}

// AddTrack merges every sector of another track (e.g. a second revolution's
// decode) into this one, keeping the longest trackLen/trackTime seen.
func (t *Track) AddTrack(other *Track) error {
	if other.Empty() {
		return nil
	}
	if other.TrackLen > t.TrackLen {
		t.TrackLen = other.TrackLen
	}
	if other.TrackTime > t.TrackTime {
		t.TrackTime = other.TrackTime
	}
	for _, s := range other.Sectors {
		if _, err := t.Add(s); err != nil {
			return err
		}
	}
	return nil
}

// HasDataError reports whether any sector is missing data or has a bad
// data CRC. 8K sectors are not special-cased: their data CRC error counts
// even when their secondary checksum was recognized.
func (t *Track) HasDataError() bool {
	for _, s := range t.Sectors {
		if !s.HasData() || s.BadDataCRC() {
			return true
		}
	}
	return false
}
