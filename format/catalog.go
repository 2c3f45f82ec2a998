package format

import "github.com/sergev/floppycore/chs"

// catalog lists the formats FromSize recognizes, in priority order: a raw
// image's length can be ambiguous (e.g. 737280 bytes matches more than one
// geometry) so earlier entries win, mirroring the original's fixed lookup
// order from most to least common (spec.md §4.9).
var catalog = []Format{
	{
		Name: "PC 1.44M", Cyls: 80, Heads: 2, SectorsPerTrack: 18, SizeCode: 2,
		BaseID: 1, Interleave: 1, Skew: 0, Head0Val: 0, Head1Val: 1,
		Gap3: 0x54, Fill: 0x6c, DataRate: chs.DataRate500K, Encoding: chs.EncodingMFM,
		FDC: FDCPC,
	},
	{
		Name: "PC 720K", Cyls: 80, Heads: 2, SectorsPerTrack: 9, SizeCode: 2,
		BaseID: 1, Interleave: 1, Skew: 0, Head0Val: 0, Head1Val: 1,
		Gap3: 0x50, Fill: 0xf6, DataRate: chs.DataRate250K, Encoding: chs.EncodingMFM,
		FDC: FDCPC,
	},
	{
		Name: "PC 360K", Cyls: 40, Heads: 2, SectorsPerTrack: 9, SizeCode: 2,
		BaseID: 1, Interleave: 1, Skew: 0, Head0Val: 0, Head1Val: 1,
		Gap3: 0x50, Fill: 0xf6, DataRate: chs.DataRate250K, Encoding: chs.EncodingMFM,
		FDC: FDCPC,
	},
	{
		Name: "MGT", Cyls: 80, Heads: 2, SectorsPerTrack: 10, SizeCode: 2,
		BaseID: 1, Interleave: 1, Skew: 0, Head0Val: 0, Head1Val: 1,
		Gap3: 0x18, Fill: 0x00, DataRate: chs.DataRate250K, Encoding: chs.EncodingMFM,
		FDC: FDCWD,
	},
	{
		Name: "AmigaDOS 880K", Cyls: 80, Heads: 2, SectorsPerTrack: 11, SizeCode: 2,
		BaseID: 0, Interleave: 1, Skew: 0, Head0Val: 0, Head1Val: 1,
		Gap3: 0, Fill: 0x00, DataRate: chs.DataRate250K, Encoding: chs.EncodingAmiga,
		FDC: FDCAmiga,
	},
	{
		Name: "ProDOS 800K", Cyls: 80, Heads: 2, SectorsPerTrack: 8, SizeCode: 3,
		BaseID: 0, Interleave: 1, Skew: 0, Head0Val: 0, Head1Val: 1,
		Gap3: 0, Fill: 0x00, DataRate: chs.DataRate250K, Encoding: chs.EncodingGCR,
		FDC: FDCApple,
	},
	{
		Name: "Atari ST 720K", Cyls: 80, Heads: 2, SectorsPerTrack: 9, SizeCode: 2,
		BaseID: 1, Interleave: 1, Skew: 1, Head0Val: 0, Head1Val: 1,
		Gap3: 0x2a, Fill: 0x4e, DataRate: chs.DataRate250K, Encoding: chs.EncodingMFM,
		FDC: FDCPC, CylsFirst: true,
	},
	{
		Name: "D81", Cyls: 80, Heads: 2, SectorsPerTrack: 10, SizeCode: 2,
		BaseID: 0, Interleave: 1, Skew: 0, Head0Val: 0, Head1Val: 1,
		Gap3: 0x16, Fill: 0x4e, DataRate: chs.DataRate250K, Encoding: chs.EncodingMFM,
		FDC: FDCWD,
	},
	{
		Name: "D2M", Cyls: 80, Heads: 2, SectorsPerTrack: 20, SizeCode: 2,
		BaseID: 0, Interleave: 1, Skew: 0, Head0Val: 0, Head1Val: 1,
		Gap3: 0x16, Fill: 0x4e, DataRate: chs.DataRate500K, Encoding: chs.EncodingMFM,
		FDC: FDCWD,
	},
	{
		Name: "D4M", Cyls: 80, Heads: 2, SectorsPerTrack: 40, SizeCode: 2,
		BaseID: 0, Interleave: 1, Skew: 0, Head0Val: 0, Head1Val: 1,
		Gap3: 0x16, Fill: 0x4e, DataRate: chs.DataRate1M, Encoding: chs.EncodingMFM,
		FDC: FDCWD,
	},
}

// FromSize recognizes a raw image by its exact byte length, walking the
// catalog in priority order and returning the first match. The bool result
// is false if no known format has that size.
func FromSize(totalBytes int) (Format, bool) {
	for _, f := range catalog {
		if f.DiskSize() == totalBytes {
			return f, true
		}
	}
	return Format{}, false
}

// ByName looks up a catalog entry by its exact display name, for callers
// (config, CLI flags) that name a format explicitly rather than inferring
// it from an image's size.
func ByName(name string) (Format, bool) {
	for _, f := range catalog {
		if f.Name == name {
			return f, true
		}
	}
	return Format{}, false
}

// Names lists the catalog in priority order, for CLI help text and config
// validation.
func Names() []string {
	names := make([]string, len(catalog))
	for i, f := range catalog {
		names[i] = f.Name
	}
	return names
}
