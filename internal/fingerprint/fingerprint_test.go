package fingerprint

import "testing"

func TestNewStampsCategory(t *testing.T) {
	for _, cat := range []Category{Primary, Subfield1, Subfield2} {
		id := New("POS", cat)
		if got := id.Category(); got != cat {
			t.Fatalf("Category() = %v, want %v", got, cat)
		}
		if got := id.Name(); got != "POS" {
			t.Fatalf("Name() = %q, want %q", got, "POS")
		}
	}
}

func TestNewTruncatesAndPads(t *testing.T) {
	long := New("ABCDEFGHIJ", Primary)
	if got := long.Name(); got != "ABCDEFGH" {
		t.Fatalf("Name() = %q, want truncated to 8 bytes", got)
	}

	short := New("ID", Subfield1)
	if got := short.Name(); got != "ID" {
		t.Fatalf("Name() = %q, want %q", got, "ID")
	}
}

func TestDistinctCategoriesDistinctIDs(t *testing.T) {
	a := New("INFO", Primary)
	b := New("INFO", Subfield1)
	if a == b {
		t.Fatal("fingerprints for the same name but different categories must differ")
	}
}

func TestStringMatchesName(t *testing.T) {
	id := New("CHROM", Primary)
	if id.String() != id.Name() {
		t.Fatalf("String() = %q, Name() = %q, want equal", id.String(), id.Name())
	}
}
