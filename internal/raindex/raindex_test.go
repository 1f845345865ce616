package raindex

import (
	"reflect"
	"testing"
)

func TestFinalizeSortsByBlockThenChromThenMin(t *testing.T) {
	idx := New()
	idx.Append(Entry{ChromIndex: 1, MinPos: 10, MaxPos: 20, BlockIndex: 2})
	idx.Append(Entry{ChromIndex: 0, MinPos: 5, MaxPos: 15, BlockIndex: 1})
	idx.Append(Entry{ChromIndex: 0, MinPos: 1, MaxPos: 4, BlockIndex: 1})

	got := idx.Finalize()
	want := []Entry{
		{ChromIndex: 0, MinPos: 1, MaxPos: 4, BlockIndex: 1},
		{ChromIndex: 0, MinPos: 5, MaxPos: 15, BlockIndex: 1},
		{ChromIndex: 1, MinPos: 10, MaxPos: 20, BlockIndex: 2},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Finalize() = %+v, want %+v", got, want)
	}
}

func TestOverlaps(t *testing.T) {
	e := Entry{ChromIndex: 3, MinPos: 100, MaxPos: 200, BlockIndex: 0}
	cases := []struct {
		r    Region
		want bool
	}{
		{Region{ChromIndex: 3, Min: 150, Max: 160}, true},
		{Region{ChromIndex: 3, Min: 0, Max: 100}, true},
		{Region{ChromIndex: 3, Min: 200, Max: 300}, true},
		{Region{ChromIndex: 3, Min: 201, Max: 300}, false},
		{Region{ChromIndex: 3, Min: 0, Max: 99}, false},
		{Region{ChromIndex: 4, Min: 100, Max: 200}, false},
	}
	for _, c := range cases {
		if got := e.Overlaps(c.r); got != c.want {
			t.Errorf("Entry{%+v}.Overlaps(%+v) = %v, want %v", e, c.r, got, c.want)
		}
	}
}

func TestBlocksForDedupsAndSorts(t *testing.T) {
	entries := []Entry{
		{ChromIndex: 0, MinPos: 0, MaxPos: 10, BlockIndex: 5},
		{ChromIndex: 0, MinPos: 20, MaxPos: 30, BlockIndex: 2},
		{ChromIndex: 0, MinPos: 40, MaxPos: 50, BlockIndex: 2},
		{ChromIndex: 1, MinPos: 0, MaxPos: 10, BlockIndex: 9},
	}
	regions := []Region{{ChromIndex: 0, Min: 5, Max: 45}}

	got := BlocksFor(entries, regions)
	want := []uint32{2, 5}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("BlocksFor() = %v, want %v", got, want)
	}
}

func TestBlocksForNoMatches(t *testing.T) {
	entries := []Entry{{ChromIndex: 0, MinPos: 0, MaxPos: 10, BlockIndex: 1}}
	regions := []Region{{ChromIndex: 9, Min: 0, Max: 10}}
	if got := BlocksFor(entries, regions); got != nil {
		t.Fatalf("BlocksFor() = %v, want nil", got)
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	entries := []Entry{
		{ChromIndex: 1, MinPos: 100, MaxPos: 200, BlockIndex: 3},
		{ChromIndex: 2, MinPos: 0, MaxPos: 0, BlockIndex: 0},
	}
	buf := Marshal(entries)
	if len(buf) != len(entries)*entrySize {
		t.Fatalf("Marshal() length = %d, want %d", len(buf), len(entries)*entrySize)
	}
	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, entries) {
		t.Fatalf("Unmarshal() = %+v, want %+v", got, entries)
	}
}

func TestUnmarshalRejectsMisalignedBody(t *testing.T) {
	if _, err := Unmarshal(make([]byte, entrySize+1)); err == nil {
		t.Fatal("Unmarshal: want error for body length not a multiple of entry size")
	}
}

func TestUnmarshalEmpty(t *testing.T) {
	got, err := Unmarshal(nil)
	if err != nil {
		t.Fatalf("Unmarshal(nil): %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Unmarshal(nil) = %+v, want empty", got)
	}
}
