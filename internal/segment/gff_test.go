package segment

import (
	"bytes"
	"testing"

	"github.com/gtcio/gtc/internal/block"
)

func TestGFFSegmentReconstructRoundTrip(t *testing.T) {
	cap, err := Lookup("gff")
	if err != nil {
		t.Fatalf("Lookup(gff): %v", err)
	}

	records := [][]byte{
		[]byte("chr1\tensembl\tgene\t1000\t2000\t.\t+\t.\tID=gene1;Name=FOO"),
		[]byte("chr1\tensembl\texon\t1000\t1200\t0.9\t+\t0\tID=exon1;Parent=gene1"),
		[]byte("chr2\tensembl\tgene\t500\t5000\t.\t-\t.\tID=gene2"),
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
