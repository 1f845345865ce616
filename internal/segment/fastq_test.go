package segment

import (
	"bytes"
	"testing"

	"github.com/gtcio/gtc/internal/block"
)

func TestFASTQSegmentReconstructRoundTrip(t *testing.T) {
	cap, err := Lookup("fastq")
	if err != nil {
		t.Fatalf("Lookup(fastq): %v", err)
	}

	records := [][][]byte{
		{[]byte("@read1"), []byte("ACGTACGT"), []byte("+"), []byte("IIIIIIII")},
		{[]byte("@read2 extra"), []byte("GGCCGGCC"), []byte("+read2 extra"), []byte("!!!!!!!!")},
	}

	cs := NewContexts()
	b := block.New(0)
	for i, lines := range records {
		rc := &RecordCtx{Block: b, Contexts: cs, LineIndex: int64(i)}
		if err := cap.SegmentRecord(rc, lines); err != nil {
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
		if len(lines) != 4 {
			t.Fatalf("ReconstructRecord(%d) returned %d lines, want 4", i, len(lines))
		}
		for j := range want {
			if !bytes.Equal(lines[j], want[j]) {
				t.Fatalf("ReconstructRecord(%d) line %d = %q, want %q", i, j, lines[j], want[j])
			}
		}
	}
}

func TestFASTQGrepStillConsumesStreams(t *testing.T) {
	cap, _ := Lookup("fastq")
	cs := NewContexts()
	b := block.New(0)

	records := [][][]byte{
		{[]byte("@match-me"), []byte("ACGT"), []byte("+"), []byte("IIII")},
		{[]byte("@skip-me"), []byte("GGCC"), []byte("+"), []byte("IIII")},
	}
	for i, lines := range records {
		rc := &RecordCtx{Block: b, Contexts: cs, LineIndex: int64(i)}
		if err := cap.SegmentRecord(rc, lines); err != nil {
			t.Fatalf("SegmentRecord(%d): %v", i, err)
		}
	}
	sealBlock(t, b)

	rc := &RecordCtx{Block: b, Contexts: cs, Filter: &Filter{Grep: []byte("match")}}
	lines, keep, err := cap.ReconstructRecord(rc)
	if err != nil {
		t.Fatalf("ReconstructRecord #1: %v", err)
	}
	if !keep || len(lines) != 4 {
		t.Fatalf("ReconstructRecord #1: keep=%v lines=%v, want matching record kept", keep, lines)
	}

	// The second record must still be fully consumed (not just skipped), so
	// the context cursors stay aligned for any record after it.
	lines, keep, err = cap.ReconstructRecord(rc)
	if err != nil {
		t.Fatalf("ReconstructRecord #2: %v", err)
	}
	if keep {
		t.Fatalf("ReconstructRecord #2: keep = true, want false (does not match grep)")
	}
	if lines != nil {
		t.Fatalf("ReconstructRecord #2: lines = %v, want nil", lines)
	}
}
