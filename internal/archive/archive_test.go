package archive

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/gtcio/gtc/internal/raindex"
	"github.com/gtcio/gtc/internal/segment"
)

const testVCF = `##fileformat=VCFv4.2
##source=test
chr1	100	rs1	A	G	30	PASS	DP=10;AF=0.5
chr1	200	rs2	C	T	40	PASS	DP=5
chr2	50	rs3	G	A	50	PASS	.
chr2	999	rs4	T	C	60	PASS	DP=1
`

func buildArchive(t *testing.T, password string, targetSize int) []byte {
	t.Helper()
	var buf bytes.Buffer
	aw, err := NewWriter(&buf, password, 2, targetSize, nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := aw.WriteComponent(context.Background(), "variants.vcf", "vcf", strings.NewReader(testVCF)); err != nil {
		t.Fatalf("WriteComponent: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func TestWriterReaderRoundTrip(t *testing.T) {
	data := buildArchive(t, "", 0)

	ar, err := NewReader(bytes.NewReader(data), int64(len(data)), "", 2, nil)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	infos := ar.Components()
	if len(infos) != 1 || infos[0].DataType != "vcf" || infos[0].Name != "variants.vcf" {
		t.Fatalf("Components() = %+v, want one vcf component named variants.vcf", infos)
	}

	var out bytes.Buffer
	if err := ar.DecodeComponent(context.Background(), 0, &out, nil); err != nil {
		t.Fatalf("DecodeComponent: %v", err)
	}
	if out.String() != testVCF {
		t.Fatalf("DecodeComponent() output mismatch:\ngot:  %q\nwant: %q", out.String(), testVCF)
	}
	if err := ar.VerifyArchiveDigest(); err != nil {
		t.Fatalf("VerifyArchiveDigest: %v", err)
	}
}

func TestWriterReaderRoundTripMultiBlock(t *testing.T) {
	// A tiny target size forces the splitter to emit several small blocks, so
	// this also exercises cross-block dictionary reuse end to end.
	data := buildArchive(t, "", 64)

	ar, err := NewReader(bytes.NewReader(data), int64(len(data)), "", 2, nil)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	var out bytes.Buffer
	if err := ar.DecodeComponent(context.Background(), 0, &out, nil); err != nil {
		t.Fatalf("DecodeComponent: %v", err)
	}
	if out.String() != testVCF {
		t.Fatalf("DecodeComponent() with multiple blocks mismatch:\ngot:  %q\nwant: %q", out.String(), testVCF)
	}
	if err := ar.VerifyArchiveDigest(); err != nil {
		t.Fatalf("VerifyArchiveDigest: %v", err)
	}
}

func TestRegionFilteredDecode(t *testing.T) {
	data := buildArchive(t, "", 0)
	ar, err := NewReader(bytes.NewReader(data), int64(len(data)), "", 2, nil)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	chromIdx, ok := ar.ResolveChromIndex("vcf", []byte("chr2"))
	if !ok {
		t.Fatal("ResolveChromIndex: chr2 not found")
	}
	filter := &segment.Filter{Regions: []raindex.Region{{ChromIndex: chromIdx, Min: 0, Max: 100}}}

	var out bytes.Buffer
	if err := ar.DecodeComponent(context.Background(), 0, &out, filter); err != nil {
		t.Fatalf("DecodeComponent: %v", err)
	}
	want := "chr2\t50\trs3\tG\tA\t50\tPASS\t.\n"
	if out.String() != want {
		t.Fatalf("region-filtered decode = %q, want %q", out.String(), want)
	}
}

func TestGrepFilteredDecode(t *testing.T) {
	data := buildArchive(t, "", 0)
	ar, err := NewReader(bytes.NewReader(data), int64(len(data)), "", 2, nil)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	filter := &segment.Filter{Grep: []byte("rs2")}
	var out bytes.Buffer
	if err := ar.DecodeComponent(context.Background(), 0, &out, filter); err != nil {
		t.Fatalf("DecodeComponent: %v", err)
	}
	want := "chr1\t200\trs2\tC\tT\t40\tPASS\tDP=5\n"
	if out.String() != want {
		t.Fatalf("grep-filtered decode = %q, want %q", out.String(), want)
	}
}

func TestEncryptedArchiveRoundTrip(t *testing.T) {
	data := buildArchive(t, "hunter2", 0)

	ar, err := NewReader(bytes.NewReader(data), int64(len(data)), "hunter2", 2, nil)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	var out bytes.Buffer
	if err := ar.DecodeComponent(context.Background(), 0, &out, nil); err != nil {
		t.Fatalf("DecodeComponent: %v", err)
	}
	if out.String() != testVCF {
		t.Fatalf("encrypted round trip mismatch:\ngot:  %q\nwant: %q", out.String(), testVCF)
	}
}

func TestEncryptedArchiveWrongPassword(t *testing.T) {
	data := buildArchive(t, "hunter2", 0)

	if _, err := NewReader(bytes.NewReader(data), int64(len(data)), "wrong-password", 2, nil); err == nil {
		t.Fatal("NewReader: want error when opening an encrypted archive with the wrong password")
	}
}

func TestEncryptedArchiveMissingPassword(t *testing.T) {
	data := buildArchive(t, "hunter2", 0)

	if _, err := NewReader(bytes.NewReader(data), int64(len(data)), "", 2, nil); err == nil {
		t.Fatal("NewReader: want error when opening an encrypted archive with no password")
	}
}

func TestMultiComponentConcatenation(t *testing.T) {
	var buf bytes.Buffer
	aw, err := NewWriter(&buf, "", 2, 0, nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	part1 := "chr1\t1\trsA\tA\tG\t.\tPASS\t.\n"
	part2 := "chr1\t2\trsB\tA\tG\t.\tPASS\t.\n"
	if err := aw.WriteComponent(context.Background(), "a.vcf", "vcf", strings.NewReader(part1)); err != nil {
		t.Fatalf("WriteComponent a: %v", err)
	}
	if err := aw.WriteComponent(context.Background(), "b.vcf", "vcf", strings.NewReader(part2)); err != nil {
		t.Fatalf("WriteComponent b: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ar, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()), "", 2, nil)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	infos := ar.Components()
	if len(infos) != 2 {
		t.Fatalf("Components() returned %d entries, want 2", len(infos))
	}

	var out bytes.Buffer
	if err := ar.DecodeComponent(context.Background(), 0, &out, nil); err != nil {
		t.Fatalf("DecodeComponent(0): %v", err)
	}
	if out.String() != part1 {
		t.Fatalf("component 0 = %q, want %q", out.String(), part1)
	}
	out.Reset()
	if err := ar.DecodeComponent(context.Background(), 1, &out, nil); err != nil {
		t.Fatalf("DecodeComponent(1): %v", err)
	}
	if out.String() != part2 {
		t.Fatalf("component 1 = %q, want %q", out.String(), part2)
	}
}
