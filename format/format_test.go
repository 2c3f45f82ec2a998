package format

import "testing"

func TestSectorIDsPermutation(t *testing.T) {
	f := Format{SectorsPerTrack: 9, BaseID: 1, Interleave: 2, Skew: 1}
	ids := f.SectorIDs(3)
	if len(ids) != 9 {
		t.Fatalf("got %d ids, want 9", len(ids))
	}
	seen := make(map[int]bool)
	for _, id := range ids {
		if id < f.BaseID || id >= f.BaseID+f.SectorsPerTrack {
			t.Fatalf("id %d out of range", id)
		}
		if seen[id] {
			t.Fatalf("id %d assigned twice", id)
		}
		seen[id] = true
	}
}

func TestSectorIDsNoInterleaveIsSequential(t *testing.T) {
	f := Format{SectorsPerTrack: 5, BaseID: 1, Interleave: 1, Skew: 0}
	ids := f.SectorIDs(0)
	for i, id := range ids {
		if id != f.BaseID+i {
			t.Fatalf("ids[%d] = %d, want %d", i, id, f.BaseID+i)
		}
	}
}

func TestSectorIDsInterleave2Skew0(t *testing.T) {
	f := Format{SectorsPerTrack: 9, BaseID: 1, Interleave: 2, Skew: 0}
	ids := f.SectorIDs(0)
	want := []int{1, 6, 2, 7, 3, 8, 4, 9, 5}
	if len(ids) != len(want) {
		t.Fatalf("got %d ids, want %d", len(ids), len(want))
	}
	for i, id := range ids {
		if id != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestFromSizeRecognizesPC1440(t *testing.T) {
	f, ok := FromSize(80 * 2 * 18 * 512)
	if !ok {
		t.Fatal("expected a match for a 1.44M-sized image")
	}
	if f.Name != "PC 1.44M" {
		t.Fatalf("got %q, want PC 1.44M", f.Name)
	}
}

func TestFromSizeUnknown(t *testing.T) {
	if _, ok := FromSize(12345); ok {
		t.Fatal("expected no match for an arbitrary size")
	}
}

func TestBlankDiskPopulatesEveryTrack(t *testing.T) {
	tracks, f, ok := BlankDisk("PC 360K")
	if !ok {
		t.Fatal("expected PC 360K to be a known format")
	}
	if len(tracks) != f.Cyls*f.Heads {
		t.Fatalf("got %d tracks, want %d", len(tracks), f.Cyls*f.Heads)
	}
	for ch, tr := range tracks {
		if tr.Size() != f.SectorsPerTrack {
			t.Fatalf("track %v has %d sectors, want %d", ch, tr.Size(), f.SectorsPerTrack)
		}
	}
}
