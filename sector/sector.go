// Package sector implements the Sector type and its merge algebra: the
// logic that combines multiple noisy reads of the same physical sector
// into a best-effort reconstruction.
package sector

import "github.com/sergev/floppycore/chs"

// MergeResult reports what a merge operation did to a sector.
type MergeResult int

const (
	Unchanged MergeResult = iota
	Improved
	NewData
)

func (r MergeResult) String() string {
	switch r {
	case Improved:
		return "Improved"
	case NewData:
		return "NewData"
	default:
		return "Unchanged"
	}
}

// Standard address mark bytes.
const (
	DAMNormal   byte = 0xfb
	DAMDeleted  byte = 0xf8
	DAMDeleted2 byte = 0xf9
	DAMAlt      byte = 0xfa
	DAMRX02     byte = 0xfd
)

// DefaultMaxCopies bounds how many divergent bad-CRC copies a sector keeps.
const DefaultMaxCopies = 3

// completeSize8K is the "complete enough" length for a 250Kbps/MFM/size-code-6
// sector: it always carries a CRC error, but 0x1800 bytes is considered a
// full read for merge purposes (see is8K).
const completeSize8K = 0x1800

// Sector is one logical sector: a header plus zero or more data copies.
type Sector struct {
	Header   chs.Header
	DataRate chs.DataRate
	Encoding chs.Encoding
	Offset   int    // bitstream offset from index, in bits
	Gap3     int    // inter-sector gap length in bytes
	DAM      byte   // data address mark of the most recently accepted copy

	badIDCRC   bool
	badDataCRC bool
	copies     [][]byte
	maxCopies  int
}

// New creates an empty sector for the given header.
func New(datarate chs.DataRate, encoding chs.Encoding, header chs.Header, gap3 int) *Sector {
	return &Sector{
		Header:    header,
		DataRate:  datarate,
		Encoding:  encoding,
		Gap3:      gap3,
		DAM:       DAMNormal,
		maxCopies: DefaultMaxCopies,
	}
}

// SetMaxCopies overrides the copy-retention cap (Track::add forces this to
// 1 when a sector overlaps its successor on the medium).
func (s *Sector) SetMaxCopies(n int) {
	if n < 1 {
		n = 1
	}
	s.maxCopies = n
	s.limitCopies()
}

func (s *Sector) maxCopiesOrDefault() int {
	if s.maxCopies <= 0 {
		return DefaultMaxCopies
	}
	return s.maxCopies
}

// Size returns the natural sector length implied by the header's size code.
func (s *Sector) Size() int {
	return s.Header.Size()
}

// DataSize returns the length of the first data copy, or 0 if there is none.
func (s *Sector) DataSize() int {
	if len(s.copies) == 0 {
		return 0
	}
	return len(s.copies[0])
}

// Copies returns the number of retained data copies.
func (s *Sector) Copies() int {
	return len(s.copies)
}

// DataCopy returns the i'th data copy. Out-of-range indices clamp to the
// nearest valid copy, matching the source's defensive accessor.
func (s *Sector) DataCopy(i int) []byte {
	if len(s.copies) == 0 {
		return nil
	}
	if i < 0 {
		i = 0
	}
	if i >= len(s.copies) {
		i = len(s.copies) - 1
	}
	return s.copies[i]
}

// HasData reports whether any data copy is present.
func (s *Sector) HasData() bool {
	return len(s.copies) != 0
}

// HasGoodData reports whether the sector has data and no data CRC error.
func (s *Sector) HasGoodData() bool {
	return s.HasData() && !s.badDataCRC
}

// HasGapData reports whether the retained data runs past the natural size.
func (s *Sector) HasGapData() bool {
	return s.DataSize() > s.Size()
}

// HasShortData reports whether the retained data falls short of natural size.
func (s *Sector) HasShortData() bool {
	return s.DataSize() < s.Size()
}

// BadIDCRC reports the header CRC state.
func (s *Sector) BadIDCRC() bool { return s.badIDCRC }

// BadDataCRC reports the data CRC state.
func (s *Sector) BadDataCRC() bool { return s.badDataCRC }

// SetBadIDCRC marks (or clears) the header CRC error flag. Per the model's
// invariant, setting it drops any retained data copies.
func (s *Sector) SetBadIDCRC(bad bool) {
	s.badIDCRC = bad
	if bad {
		s.copies = nil
	}
}

// SetBadDataCRC marks (or clears) the data CRC error flag directly, without
// going through the merge algebra. Used by decoders emitting a fresh sector.
func (s *Sector) SetBadDataCRC(bad bool) {
	s.badDataCRC = bad
}

// IsDeleted reports whether the carried DAM marks a deleted-data sector.
func (s *Sector) IsDeleted() bool {
	return s.DAM == DAMDeleted || s.DAM == DAMDeleted2
}

// IsAltDAM reports the alternate-DAM marker used by some copy-protected formats.
func (s *Sector) IsAltDAM() bool {
	return s.DAM == DAMAlt
}

// IsRX02DAM reports the RX02 double-density DAM marker.
func (s *Sector) IsRX02DAM() bool {
	return s.DAM == DAMRX02
}

// Is8K reports whether this sector is the special 250K/MFM/size-code-6
// "8K sector" case, which always carries a CRC error but may be
// recognizable via a secondary checksum.
func (s *Sector) Is8K() bool {
	return s.DataRate == chs.DataRate250K && s.Encoding == chs.EncodingMFM && s.Header.SizeCode == 6
}

func (s *Sector) completeSize() int {
	if s.Is8K() {
		return completeSize8K
	}
	return s.Size()
}

func (s *Sector) limitCopies() {
	max := s.maxCopiesOrDefault()
	if len(s.copies) > max {
		s.copies = s.copies[:max]
	}
}

// equalPrefix reports whether a and b agree over their first n bytes,
// returning false if either is shorter than n.
func equalPrefix(a, b []byte, n int) bool {
	if len(a) < n || len(b) < n {
		return false
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// isSuperset reports whether haystack is at least as long as needle and
// begins with it.
func isSuperset(haystack, needle []byte) bool {
	return len(haystack) >= len(needle) && equalPrefix(haystack, needle, len(needle))
}

// Add folds one freshly-read data copy into the sector, implementing
// spec.md §4.2 steps 1-9 (called "Sector::add" in the source this is
// grounded on).
func (s *Sector) Add(data []byte, badCRC bool, dam byte) MergeResult {
	ret := NewData

	// 1. A bad ID CRC sector can't usefully carry data.
	if s.badIDCRC {
		return Unchanged
	}

	// 3. Both bad, differing DAM: keep what we have.
	if badCRC && s.badDataCRC && dam != s.DAM {
		return Unchanged
	}

	// 4. Existing good, incoming bad: keep existing.
	if badCRC && s.HasGoodData() {
		return Unchanged
	}

	// 5. Existing bad, incoming good: drop everything we had.
	if !badCRC && s.badDataCRC {
		s.copies = nil
		ret = Improved
	}

	// 6. 8K secondary-checksum recognizer.
	if s.Is8K() {
		if recognizeChecksum(data) {
			s.copies = nil
			ret = Improved
		} else if len(s.copies) == 1 && recognizeChecksum(s.copies[0]) {
			return Unchanged
		}
	}

	// 7. Superset/subset pruning against existing copies.
	for _, existing := range s.copies {
		if isSuperset(existing, data) {
			return Unchanged
		}
	}
	for i, existing := range s.copies {
		if isSuperset(data, existing) {
			if len(existing) < s.Size() {
				ret = Improved
			} else {
				ret = NewData
			}
			s.copies = append(s.copies[:i], s.copies[i+1:]...)
			break
		}
	}

	// 8. Complete-size reconciliation.
	complete := s.completeSize()
	if len(data) >= complete {
		matchIdx := -1
		for i, existing := range s.copies {
			if len(existing) >= complete && equalPrefix(existing, data, complete) {
				matchIdx = i
				break
			}
		}
		if matchIdx >= 0 {
			if len(data) <= len(s.copies[matchIdx]) {
				return Unchanged
			}
			s.copies = append(s.copies[:matchIdx], s.copies[matchIdx+1:]...)
		}

		if len(s.copies) > 0 {
			// We should never see multiple distinct good copies.
			minLen := len(data)
			for _, existing := range s.copies {
				if len(existing) < minLen {
					minLen = len(existing)
				}
			}
			data = data[:minLen]
			for i := range s.copies {
				if len(s.copies[i]) > minLen {
					s.copies[i] = s.copies[i][:minLen]
				}
			}
		}
	}

	// 9. Append, cap, and update CRC/DAM state.
	s.copies = append(s.copies, data)
	s.limitCopies()
	s.badDataCRC = badCRC
	s.DAM = dam

	return ret
}

// Merge folds another read of the same physical sector (e.g. from a second
// revolution or a retry) into s, implementing spec.md §4.2's merge step.
func (s *Sector) Merge(other *Sector) MergeResult {
	ret := Unchanged

	// 1. A bad incoming ID CRC carries nothing usable.
	if other.badIDCRC {
		return Unchanged
	}

	// 2. Repair a bad existing header from a good incoming one.
	if s.badIDCRC {
		s.Header = other.Header
		s.SetBadIDCRC(false)
		ret = Improved
	}

	// Good data is never displaced by bad.
	if !s.badDataCRC && other.badDataCRC {
		return ret
	}

	for _, data := range other.copies {
		addRet := s.Add(data, other.badDataCRC, other.DAM)
		if addRet == Improved || ret == Unchanged {
			ret = addRet
		}
	}
	return ret
}

// recognizeChecksum attempts the secondary checksum methods known for 8K
// sectors. These are deliberately simple, documented checks (a trailing
// XOR checksum and a trailing 16-bit additive checksum) rather than a
// reverse-engineered catalog of copy-protection-specific schemes; see
// DESIGN.md's "Core data model" section for the rationale.
func recognizeChecksum(data []byte) bool {
	if len(data) < 3 {
		return false
	}
	// Trailing-byte XOR checksum over everything before it.
	var xorSum byte
	for _, b := range data[:len(data)-1] {
		xorSum ^= b
	}
	if xorSum == data[len(data)-1] {
		return true
	}
	// Trailing 16-bit little-endian additive checksum.
	if len(data) >= 2 {
		var sum uint16
		for _, b := range data[:len(data)-2] {
			sum += uint16(b)
		}
		want := uint16(data[len(data)-2]) | uint16(data[len(data)-1])<<8
		if sum == want {
			return true
		}
	}
	return false
}
