package segment

import (
	"bytes"
	"testing"

	"github.com/gtcio/gtc/internal/block"
	"github.com/gtcio/gtc/internal/raindex"
)

func TestVCFSegmentReconstructRoundTrip(t *testing.T) {
	cap, err := Lookup("vcf")
	if err != nil {
		t.Fatalf("Lookup(vcf): %v", err)
	}

	records := [][]byte{
		[]byte("chr1\t100\trs1\tA\tG\t30\tPASS\tDP=10;AF=0.5\tGT\t0/1\t1/1"),
		[]byte("chr1\t200\trs2\tC\tT\t40\tPASS\tDP=5"),
		[]byte("chr2\t50\t.\tG\tA\t.\tq10\t.\tGT\t0/0"),
	}

	cs := NewContexts()
	b := block.New(0)
	for i, line := range records {
		rc := &RecordCtx{Block: b, Contexts: cs, LineIndex: int64(i)}
		if err := cap.SegmentRecord(rc, [][]byte{line}); err != nil {
			t.Fatalf("SegmentRecord(%d): %v", i, err)
		}
	}
	sealBlock(t, b)

	rc := &RecordCtx{Block: b, Contexts: cs}
	for i, want := range records {
		lines, keep, err := cap.ReconstructRecord(rc)
		if err != nil {
			t.Fatalf("ReconstructRecord(%d): %v", i, err)
		}
		if !keep {
			t.Fatalf("ReconstructRecord(%d): keep = false, want true", i)
		}
		if len(lines) != 1 || !bytes.Equal(lines[0], want) {
			t.Fatalf("ReconstructRecord(%d) = %q, want %q", i, lines, want)
		}
	}
}

func TestVCFRegionFilterDropsNonOverlapping(t *testing.T) {
	cap, _ := Lookup("vcf")
	cs := NewContexts()
	b := block.New(0)

	records := [][]byte{
		[]byte("chr1\t100\trs1\tA\tG\t30\tPASS\t."),
		[]byte("chr1\t900\trs2\tA\tG\t30\tPASS\t."),
	}
	for i, line := range records {
		rc := &RecordCtx{Block: b, Contexts: cs, LineIndex: int64(i)}
		if err := cap.SegmentRecord(rc, [][]byte{line}); err != nil {
			t.Fatalf("SegmentRecord(%d): %v", i, err)
		}
	}
	sealBlock(t, b)

	chromCtx, _, _, _, _, _, _, _, _ := vcfContexts(cs)
	chromIdx, err := chromCtx.Intern([]byte("chr1"))
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}

	filter := &Filter{Regions: []raindex.Region{{ChromIndex: chromIdx, Min: 0, Max: 200}}}
	rc := &RecordCtx{Block: b, Contexts: cs, Filter: filter}

	_, keep, err := cap.ReconstructRecord(rc)
	if err != nil {
		t.Fatalf("ReconstructRecord #1: %v", err)
	}
	if !keep {
		t.Fatal("ReconstructRecord #1: want keep = true (pos 100 inside [0,200])")
	}
	_, keep, err = cap.ReconstructRecord(rc)
	if err != nil {
		t.Fatalf("ReconstructRecord #2: %v", err)
	}
	if keep {
		t.Fatal("ReconstructRecord #2: want keep = false (pos 900 outside [0,200])")
	}
}

func TestVCFInfoEndWidensRandomAccessEntry(t *testing.T) {
	cap, _ := Lookup("vcf")
	cs := NewContexts()
	b := block.New(0)

	rc := &RecordCtx{Block: b, Contexts: cs}
	line := []byte("chr1\t150\trs1\tA\t<DEL>\t.\tPASS\tEND=200")
	if err := cap.SegmentRecord(rc, [][]byte{line}); err != nil {
		t.Fatalf("SegmentRecord: %v", err)
	}
	rc.CloseBlock()

	if len(b.RAEntries) != 1 {
		t.Fatalf("RAEntries = %+v, want 1 entry", b.RAEntries)
	}
	if b.RAEntries[0].MinPos != 150 || b.RAEntries[0].MaxPos != 200 {
		t.Fatalf("RAEntries[0] = %+v, want MinPos=150 MaxPos=200 (widened by INFO END)", b.RAEntries[0])
	}
}

func TestVCFRegionFilterIncludesRecordViaInfoEnd(t *testing.T) {
	// Spec §8 scenario 5: a record at POS 150 with INFO END=200 must be kept
	// under a region filter of [195,205], even though POS itself falls
	// outside that range, because the record's span [150,200] overlaps it.
	cap, _ := Lookup("vcf")
	cs := NewContexts()
	b := block.New(0)

	records := [][]byte{
		[]byte("chr1\t150\trs1\tA\t<DEL>\t.\tPASS\tEND=200"),
		[]byte("chr1\t900\trs2\tA\tG\t.\tPASS\t."),
	}
	for i, line := range records {
		rc := &RecordCtx{Block: b, Contexts: cs, LineIndex: int64(i)}
		if err := cap.SegmentRecord(rc, [][]byte{line}); err != nil {
			t.Fatalf("SegmentRecord(%d): %v", i, err)
		}
	}
	sealBlock(t, b)

	chromCtx, _, _, _, _, _, _, _, _ := vcfContexts(cs)
	chromIdx, err := chromCtx.Intern([]byte("chr1"))
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}

	filter := &Filter{Regions: []raindex.Region{{ChromIndex: chromIdx, Min: 195, Max: 205}}}
	rc := &RecordCtx{Block: b, Contexts: cs, Filter: filter}

	_, keep, err := cap.ReconstructRecord(rc)
	if err != nil {
		t.Fatalf("ReconstructRecord #1: %v", err)
	}
	if !keep {
		t.Fatal("ReconstructRecord #1: want keep = true (span [150,200] overlaps [195,205] via INFO END)")
	}
	_, keep, err = cap.ReconstructRecord(rc)
	if err != nil {
		t.Fatalf("ReconstructRecord #2: %v", err)
	}
	if keep {
		t.Fatal("ReconstructRecord #2: want keep = false (pos 900 outside [195,205])")
	}
}
