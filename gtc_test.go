package gtc

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

const sessionTestFASTA = ">seq1 description\nACGTACGTACGT\nACGT\n>seq2\nTTTTGGGGCCCC\n"

func TestSessionCompressDecodeRoundTrip(t *testing.T) {
	s := NewSession()

	var archive bytes.Buffer
	err := s.Compress(context.Background(), &archive, Component{
		Name: "genome.fasta", DataType: "fasta", Data: strings.NewReader(sessionTestFASTA),
	})
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	dec, err := s.Open(bytes.NewReader(archive.Bytes()), int64(archive.Len()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	infos := dec.Components()
	if len(infos) != 1 || infos[0].Name != "genome.fasta" || infos[0].DataType != "fasta" {
		t.Fatalf("Components() = %+v, want one fasta component named genome.fasta", infos)
	}

	var out bytes.Buffer
	if err := dec.DecodeAll(context.Background(), &out); err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	if out.String() != sessionTestFASTA {
		t.Fatalf("DecodeAll() = %q, want %q", out.String(), sessionTestFASTA)
	}
}

func TestSessionEncryptedRoundTrip(t *testing.T) {
	s := NewSession(WithPassword("correct-horse"))

	var archive bytes.Buffer
	err := s.Compress(context.Background(), &archive, Component{
		Name: "genome.fasta", DataType: "fasta", Data: strings.NewReader(sessionTestFASTA),
	})
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	dec, err := s.Open(bytes.NewReader(archive.Bytes()), int64(archive.Len()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var out bytes.Buffer
	if err := dec.DecodeAll(context.Background(), &out); err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	if out.String() != sessionTestFASTA {
		t.Fatalf("DecodeAll() = %q, want %q", out.String(), sessionTestFASTA)
	}

	wrong := NewSession(WithPassword("wrong-password"))
	if _, err := wrong.Open(bytes.NewReader(archive.Bytes()), int64(archive.Len())); err == nil {
		t.Fatal("Open: want error for wrong password")
	}
}

func TestCompressRejectsNoComponents(t *testing.T) {
	s := NewSession()
	var archive bytes.Buffer
	if err := s.Compress(context.Background(), &archive); err == nil {
		t.Fatal("Compress: want error when no components are given")
	}
}

func TestRegionFilteredDecodeViaSession(t *testing.T) {
	s := NewSession()
	var archive bytes.Buffer
	vcf := "##fileformat=VCFv4.2\nchr1\t10\trs1\tA\tG\t.\tPASS\t.\nchr1\t500\trs2\tA\tG\t.\tPASS\t.\n"
	err := s.Compress(context.Background(), &archive, Component{
		Name: "calls.vcf", DataType: "vcf", Data: strings.NewReader(vcf),
	})
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	dec, err := s.Open(bytes.NewReader(archive.Bytes()), int64(archive.Len()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var out bytes.Buffer
	err = dec.Decode(context.Background(), 0, &out, []RegionFilter{{Chrom: "chr1", Min: 0, Max: 100}}, "")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := "chr1\t10\trs1\tA\tG\t.\tPASS\t.\n"
	if out.String() != want {
		t.Fatalf("Decode() region-filtered = %q, want %q", out.String(), want)
	}
}
