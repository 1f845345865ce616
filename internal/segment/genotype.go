package segment

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/gtcio/gtc/internal/context"
	"github.com/gtcio/gtc/internal/fingerprint"
)

func init() {
	Register(genotypeCapability{})
}

// genotypeCapability implements Capability for personal-genotype exports (the
// flat rsid/chromosome/position/genotype tables produced by consumer DNA
// services): one line per record, tab-separated rsid, chromosome, position,
// genotype call (spec §4.4 "personal-genotype export", "a simplified
// VCF... no INFO/FORMAT machinery, just four columns").
type genotypeCapability struct{}

func (genotypeCapability) Name() string             { return "genotype" }
func (genotypeCapability) LinesPerRecord() int      { return 1 }
func (genotypeCapability) RecordBoundary([]byte) bool { return true } // unused: fixed record size

func genotypeContexts(c *Contexts) (rsid, chrom, call *context.Context) {
	rsid = c.Get("RSID", fingerprint.Primary, context.Flags{AllowOneUp: true})
	chrom = c.Get("CHR", fingerprint.Primary, context.Flags{NoSingletons: true, AllowOneUp: true})
	// Genotype calls (e.g. "AA", "AG", "--") are a small fixed alphabet per
	// site but vary per individual; they belong to the genotype-data context
	// family, so the one-up shortcut stays off (spec §9).
	call = c.Get("CALL", fingerprint.Subfield1, context.Flags{AllowOneUp: false})
	return
}

func genotypePosContext(c *Contexts) *context.Context {
	return c.Get("POS", fingerprint.Primary, context.Flags{NoSingletons: true, StoreValue: true})
}

func (genotypeCapability) SegmentRecord(rc *RecordCtx, lines [][]byte) error {
	line := lines[0]
	cols := bytes.Split(line, []byte{'\t'})
	if len(cols) != 4 {
		return fmt.Errorf("segment: genotype: record %d has %d columns, want 4", rc.LineIndex, len(cols))
	}
	rsidCtx, chromCtx, callCtx := genotypeContexts(rc.Contexts)
	posCtx := genotypePosContext(rc.Contexts)

	PutField(rc, rsidCtx, cols[0], true)

	chromIdx, err := chromCtx.Intern(cols[1])
	if err != nil {
		return fmt.Errorf("segment: genotype: record %d: %w", rc.LineIndex, err)
	}
	bw := rc.Block.WriterFor(chromCtx, rc.Contexts.LocalSizeHint(chromCtx.Fingerprint))
	bw.AppendB250(context.Ref{Kind: context.RefGlobal, Index: chromIdx})

	pos, err := strconv.ParseInt(string(cols[2]), 10, 64)
	if err != nil {
		return fmt.Errorf("segment: genotype: record %d: bad position %q: %w", rc.LineIndex, cols[2], err)
	}
	PutPosition(rc, posCtx, chromIdx, pos)

	PutField(rc, callCtx, cols[3], true)
	return nil
}

func (genotypeCapability) ReconstructRecord(rc *RecordCtx) (lines [][]byte, keep bool, err error) {
	rsidCtx, chromCtx, callCtx := genotypeContexts(rc.Contexts)
	posCtx := genotypePosContext(rc.Contexts)

	rsidVal, _, err := GetField(rc, rsidCtx)
	if err != nil {
		return nil, false, err
	}

	chromBR, ok := rc.Block.Readers[chromCtx.Fingerprint]
	if !ok {
		return nil, false, fmt.Errorf("segment: genotype: no CHR stream in block %d", rc.Block.Index)
	}
	chromIdx, err := chromBR.NextRef()
	if err != nil {
		return nil, false, err
	}
	chromVal, err := chromBR.Snip(chromIdx)
	if err != nil {
		return nil, false, err
	}

	pos, err := GetDeltaSelf(rc, posCtx)
	if err != nil {
		return nil, false, err
	}
	rc.UpdatePosition(chromIdx, uint32(pos))

	callVal, _, err := GetField(rc, callCtx)
	if err != nil {
		return nil, false, err
	}

	keep = rc.Filter.MatchesRegions(chromIdx, uint32(pos)) && rc.Filter.MatchesGrep(rsidVal)
	if !keep {
		return nil, false, nil
	}

	out := bytes.Join([][]byte{
		rsidVal, chromVal, []byte(strconv.FormatInt(pos, 10)), callVal,
	}, []byte{'\t'})
	return [][]byte{out}, true, nil
}
