package segment

import (
	"bytes"
	"testing"

	"github.com/gtcio/gtc/internal/block"
)

func TestFASTASegmentReconstructRoundTrip(t *testing.T) {
	cap, err := Lookup("fasta")
	if err != nil {
		t.Fatalf("Lookup(fasta): %v", err)
	}

	records := [][][]byte{
		{[]byte(">seq1 description"), []byte("ACGTACGT"), []byte("ACGT")},
		{[]byte(">seq2"), []byte("GGCCGGCC")},
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
		if len(lines) != len(want) {
			t.Fatalf("ReconstructRecord(%d) returned %d lines, want %d", i, len(lines), len(want))
		}
		for j := range want {
			if !bytes.Equal(lines[j], want[j]) {
				t.Fatalf("ReconstructRecord(%d) line %d = %q, want %q", i, j, lines[j], want[j])
			}
		}
	}
}

func TestFASTARecordBoundary(t *testing.T) {
	cap, _ := Lookup("fasta")
	if !cap.RecordBoundary([]byte(">desc")) {
		t.Fatal("RecordBoundary: '>' line must start a new record")
	}
	if cap.RecordBoundary([]byte("ACGT")) {
		t.Fatal("RecordBoundary: sequence line must not start a new record")
	}
	if cap.LinesPerRecord() != Variable {
		t.Fatal("LinesPerRecord: fasta must report Variable")
	}
}

func TestFASTASingleLineOption(t *testing.T) {
	// Spec §8 scenario 3: a decode-time "single line per sequence" option
	// reconstructs the wrapped body as one line, while leaving it off
	// reproduces the original wrap split from the same input lines.
	cap, _ := Lookup("fasta")
	cs := NewContexts()
	b := block.New(0)

	rc := &RecordCtx{Block: b, Contexts: cs}
	lines := [][]byte{
		[]byte(">seq1 description"),
		[]byte("AAAAAAAAAAAAAAAAAAAA"),
		[]byte("CCCCCCCCCCCCCCCCCCCC"),
	}
	if err := cap.SegmentRecord(rc, lines); err != nil {
		t.Fatalf("SegmentRecord: %v", err)
	}
	sealBlock(t, b)

	rc1 := &RecordCtx{Block: b, Contexts: cs, Filter: &Filter{SingleLine: true}}
	got, keep, err := cap.ReconstructRecord(rc1)
	if err != nil {
		t.Fatalf("ReconstructRecord (single-line): %v", err)
	}
	if !keep {
		t.Fatal("ReconstructRecord (single-line): keep = false, want true")
	}
	wantJoined := [][]byte{[]byte(">seq1 description"), []byte("AAAAAAAAAAAAAAAAAAAACCCCCCCCCCCCCCCCCCCC")}
	if len(got) != len(wantJoined) {
		t.Fatalf("ReconstructRecord (single-line) = %q, want %q", got, wantJoined)
	}
	for i := range wantJoined {
		if !bytes.Equal(got[i], wantJoined[i]) {
			t.Fatalf("ReconstructRecord (single-line)[%d] = %q, want %q", i, got[i], wantJoined[i])
		}
	}

	// Decoding a second block, segmented from the same lines, without the
	// option reproduces the original 20-20 wrap split.
	cs2 := NewContexts()
	b2 := block.New(0)
	rc2 := &RecordCtx{Block: b2, Contexts: cs2}
	if err := cap.SegmentRecord(rc2, lines); err != nil {
		t.Fatalf("SegmentRecord (second copy): %v", err)
	}
	sealBlock(t, b2)

	rc3 := &RecordCtx{Block: b2, Contexts: cs2}
	got2, keep2, err := cap.ReconstructRecord(rc3)
	if err != nil {
		t.Fatalf("ReconstructRecord (wrapped): %v", err)
	}
	if !keep2 {
		t.Fatal("ReconstructRecord (wrapped): keep = false, want true")
	}
	if len(got2) != len(lines) {
		t.Fatalf("ReconstructRecord (wrapped) returned %d lines, want %d", len(got2), len(lines))
	}
	for i := range lines {
		if !bytes.Equal(got2[i], lines[i]) {
			t.Fatalf("ReconstructRecord (wrapped)[%d] = %q, want %q", i, got2[i], lines[i])
		}
	}
}

func TestFASTAGrepFiltersByDescription(t *testing.T) {
	cap, _ := Lookup("fasta")
	cs := NewContexts()
	b := block.New(0)

	lines := [][]byte{[]byte(">seq1 chromosome1"), []byte("ACGT")}
	rc := &RecordCtx{Block: b, Contexts: cs}
	if err := cap.SegmentRecord(rc, lines); err != nil {
		t.Fatalf("SegmentRecord: %v", err)
	}
	sealBlock(t, b)

	rc2 := &RecordCtx{Block: b, Contexts: cs, Filter: &Filter{Grep: []byte("nomatch")}}
	_, keep, err := cap.ReconstructRecord(rc2)
	if err != nil {
		t.Fatalf("ReconstructRecord: %v", err)
	}
	if keep {
		t.Fatal("ReconstructRecord: want keep = false when grep substring absent from description")
	}
}
