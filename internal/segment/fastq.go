package segment

import (
	"bytes"
	"fmt"

	"github.com/gtcio/gtc/internal/context"
	"github.com/gtcio/gtc/internal/fingerprint"
)

func init() {
	Register(fastqCapability{})
}

// fastqCapability implements Capability for FASTQ-like sequence reads: a
// fixed 4-line record (identifier, bases, '+' separator, quality), spec §4.4
// "FASTQ-like sequence reads".
type fastqCapability struct{}

func (fastqCapability) Name() string             { return "fastq" }
func (fastqCapability) LinesPerRecord() int      { return 4 }
func (fastqCapability) RecordBoundary([]byte) bool { return true } // unused: fixed record size

func fastqContexts(c *Contexts) (ident, sep, bases, qual *context.Context) {
	ident = c.Get("IDENT", fingerprint.Primary, context.Flags{AllowOneUp: true})
	sep = c.Get("SEP", fingerprint.Primary, context.Flags{AllowOneUp: true})
	bases = c.Get("BASES", fingerprint.Primary, context.Flags{LocalLType: context.LTypeSequence})
	qual = c.Get("QUAL", fingerprint.Primary, context.Flags{LocalLType: context.LTypeSequence})
	return
}

func (fastqCapability) SegmentRecord(rc *RecordCtx, lines [][]byte) error {
	if len(lines) != 4 {
		return fmt.Errorf("segment: fastq: record %d has %d lines, want 4", rc.LineIndex, len(lines))
	}
	identLine, basesLine, sepLine, qualLine := lines[0], lines[1], lines[2], lines[3]
	if len(identLine) == 0 || identLine[0] != '@' {
		return fmt.Errorf("segment: fastq: record %d: identifier line must start with '@', got %q", rc.LineIndex, identLine)
	}
	if len(sepLine) == 0 || sepLine[0] != '+' {
		return fmt.Errorf("segment: fastq: record %d: separator line must start with '+', got %q", rc.LineIndex, sepLine)
	}
	if len(basesLine) != len(qualLine) {
		return fmt.Errorf("segment: fastq: record %d: bases length %d != quality length %d", rc.LineIndex, len(basesLine), len(qualLine))
	}

	identCtx, sepCtx, basesCtx, qualCtx := fastqContexts(rc.Contexts)
	PutField(rc, identCtx, identLine, true)
	PutField(rc, sepCtx, sepLine, true)
	PutSequence(rc, basesCtx, basesLine)
	PutSequence(rc, qualCtx, qualLine)
	return nil
}

func (fastqCapability) ReconstructRecord(rc *RecordCtx) (lines [][]byte, keep bool, err error) {
	identCtx, sepCtx, basesCtx, qualCtx := fastqContexts(rc.Contexts)

	ident, _, err := GetField(rc, identCtx)
	if err != nil {
		return nil, false, err
	}
	if !rc.Filter.MatchesGrep(ident) {
		// Still must consume this record's streams in lockstep with every
		// other context before the caller can move on to the next record.
		sep, _, err := GetField(rc, sepCtx)
		if err != nil {
			return nil, false, err
		}
		_ = sep
		if _, err := GetSequence(rc, basesCtx); err != nil {
			return nil, false, err
		}
		if _, err := GetSequence(rc, qualCtx); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	sep, _, err := GetField(rc, sepCtx)
	if err != nil {
		return nil, false, err
	}
	bases, err := GetSequence(rc, basesCtx)
	if err != nil {
		return nil, false, err
	}
	qual, err := GetSequence(rc, qualCtx)
	if err != nil {
		return nil, false, err
	}

	return [][]byte{
		bytes.Clone(ident), bytes.Clone(bases), bytes.Clone(sep), bytes.Clone(qual),
	}, true, nil
}
