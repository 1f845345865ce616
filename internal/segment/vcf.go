package segment

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/gtcio/gtc/internal/context"
	"github.com/gtcio/gtc/internal/fingerprint"
)

func init() {
	Register(vcfCapability{})
}

// vcfCapability implements Capability for VCF-like variant call records: one
// line per record, tab-separated CHROM/POS/ID/REF/ALT/QUAL/FILTER/INFO
// followed by an optional FORMAT column and one column per sample (spec §4.4
// "VCF-like variant calls").
type vcfCapability struct{}

func (vcfCapability) Name() string       { return "vcf" }
func (vcfCapability) LinesPerRecord() int { return 1 }
func (vcfCapability) RecordBoundary([]byte) bool {
	return true // unused: LinesPerRecord is fixed, not Variable
}

func vcfContexts(c *Contexts) (chrom, id, ref, alt, qual, filter, info, format, nsamp *context.Context) {
	chrom = c.Get("CHROM", fingerprint.Primary, context.Flags{NoSingletons: true, AllowOneUp: true})
	id = c.Get("ID", fingerprint.Primary, context.Flags{AllowOneUp: true})
	ref = c.Get("REF", fingerprint.Primary, context.Flags{AllowOneUp: true})
	alt = c.Get("ALT", fingerprint.Primary, context.Flags{AllowOneUp: true})
	qual = c.Get("QUAL", fingerprint.Primary, context.Flags{AllowOneUp: true})
	filter = c.Get("FILTER", fingerprint.Primary, context.Flags{AllowOneUp: true})
	info = c.Get("INFO", fingerprint.Primary, context.Flags{AllowOneUp: true})
	format = c.Get("FORMAT", fingerprint.Primary, context.Flags{AllowOneUp: true})
	nsamp = c.Get("NSAMP", fingerprint.Primary, context.Flags{AllowOneUp: true})
	return
}

// vcfPosContext is kept separate from vcfContexts since it carries
// Flags.StoreValue rather than a dictionary (POS is delta-encoded, not
// dictionary-modeled).
func vcfPosContext(c *Contexts) *context.Context {
	return c.Get("POS", fingerprint.Primary, context.Flags{NoSingletons: true, StoreValue: true})
}

// vcfSampleContext returns the per-sample-column context. Sample genotype
// columns form their own context family with the b250 one-up shortcut
// disabled (spec §9 "the one-up shortcut is disabled for genotype-data
// contexts"). Each sample column is modeled as a single opaque field (e.g.
// "GT:DP:AD" as one value) rather than decomposed per FORMAT key; decomposing
// further is a straightforward extension left for a later pass.
func vcfSampleContext(c *Contexts, sampleIdx int) *context.Context {
	return c.Get(fmt.Sprintf("S%d", sampleIdx), fingerprint.Subfield1, context.Flags{AllowOneUp: false})
}

// vcfInfoEnd looks up the INFO END key (spec §8 scenario 5: "a VCF record
// with INFO END=200... because END extends into the region"), the
// conventional VCF way of giving a record a span rather than a single
// coordinate.
func vcfInfoEnd(pairs []InfoPair) (int64, bool) {
	for _, p := range pairs {
		if p.Name != "END" || !p.Present {
			continue
		}
		end, err := strconv.ParseInt(string(p.Value), 10, 64)
		if err != nil {
			return 0, false
		}
		return end, true
	}
	return 0, false
}

func (vcfCapability) SegmentRecord(rc *RecordCtx, lines [][]byte) error {
	line := lines[0]
	cols := bytes.Split(line, []byte{'\t'})
	if len(cols) < 8 {
		return fmt.Errorf("segment: vcf: record %d has %d columns, want at least 8", rc.LineIndex, len(cols))
	}
	chromCtx, idCtx, refCtx, altCtx, qualCtx, filterCtx, infoCtx, formatCtx, nsampCtx := vcfContexts(rc.Contexts)
	posCtx := vcfPosContext(rc.Contexts)

	chromIdx, err := chromCtx.Intern(cols[0])
	if err != nil {
		return fmt.Errorf("segment: vcf: record %d: %w", rc.LineIndex, err)
	}
	bw := rc.Block.WriterFor(chromCtx, rc.Contexts.LocalSizeHint(chromCtx.Fingerprint))
	bw.AppendB250(context.Ref{Kind: context.RefGlobal, Index: chromIdx})

	pos, err := strconv.ParseInt(string(cols[1]), 10, 64)
	if err != nil {
		return fmt.Errorf("segment: vcf: record %d: bad POS %q: %w", rc.LineIndex, cols[1], err)
	}
	PutPosition(rc, posCtx, chromIdx, pos)

	PutField(rc, idCtx, cols[2], true)
	PutField(rc, refCtx, cols[3], true)
	PutField(rc, altCtx, cols[4], true)
	PutField(rc, qualCtx, cols[5], true)
	PutField(rc, filterCtx, cols[6], true)

	pairs := SplitInfo(cols[7])
	PutField(rc, infoCtx, EncodeInfoTemplate(pairs), true)
	for _, p := range pairs {
		sub := rc.Contexts.Get("INFO/"+p.Name, fingerprint.Subfield1, context.Flags{AllowOneUp: true})
		PutField(rc, sub, p.Value, p.Present)
	}

	// A record whose INFO END key reaches past POS covers an interval, not a
	// point (spec §8 scenario 5); widen the block's random-access entry so a
	// region query landing inside [POS, END] still finds this block.
	if end, ok := vcfInfoEnd(pairs); ok && end > pos {
		rc.UpdatePosition(chromIdx, uint32(end))
	}

	if len(cols) > 8 {
		PutField(rc, formatCtx, cols[8], true)
		samples := cols[9:]
		PutField(rc, nsampCtx, []byte(strconv.Itoa(len(samples))), true)
		for i, sampleCol := range samples {
			PutField(rc, vcfSampleContext(rc.Contexts, i), sampleCol, true)
		}
	} else {
		PutField(rc, formatCtx, nil, false)
	}

	return nil
}

func (vcfCapability) ReconstructRecord(rc *RecordCtx) (lines [][]byte, keep bool, err error) {
	chromCtx, idCtx, refCtx, altCtx, qualCtx, filterCtx, infoCtx, formatCtx, nsampCtx := vcfContexts(rc.Contexts)
	posCtx := vcfPosContext(rc.Contexts)

	chromBR, ok := rc.Block.Readers[chromCtx.Fingerprint]
	if !ok {
		return nil, false, fmt.Errorf("segment: vcf: no CHROM stream in block %d", rc.Block.Index)
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

	idVal, _, err := GetField(rc, idCtx)
	if err != nil {
		return nil, false, err
	}
	refVal, _, err := GetField(rc, refCtx)
	if err != nil {
		return nil, false, err
	}
	altVal, _, err := GetField(rc, altCtx)
	if err != nil {
		return nil, false, err
	}
	qualVal, _, err := GetField(rc, qualCtx)
	if err != nil {
		return nil, false, err
	}
	filterVal, _, err := GetField(rc, filterCtx)
	if err != nil {
		return nil, false, err
	}

	templateVal, _, err := GetField(rc, infoCtx)
	if err != nil {
		return nil, false, err
	}
	pairs := DecodeInfoTemplate(templateVal)
	for i := range pairs {
		sub := rc.Contexts.Get("INFO/"+pairs[i].Name, fingerprint.Subfield1, context.Flags{AllowOneUp: true})
		v, present, err := GetField(rc, sub)
		if err != nil {
			return nil, false, err
		}
		pairs[i].Value = v
		pairs[i].Present = present
	}
	infoVal := JoinInfo(pairs)

	end := pos
	if e, ok := vcfInfoEnd(pairs); ok && e > pos {
		end = e
	}
	keep = rc.Filter.MatchesInterval(chromIdx, uint32(pos), uint32(end)) && rc.Filter.MatchesGrep(idVal)

	out := bytes.Join([][]byte{
		chromVal,
		[]byte(strconv.FormatInt(pos, 10)),
		idVal, refVal, altVal, qualVal, filterVal, infoVal,
	}, []byte{'\t'})

	formatVal, hasFormat, err := GetField(rc, formatCtx)
	if err != nil {
		return nil, false, err
	}
	if hasFormat {
		nsampVal, _, err := GetField(rc, nsampCtx)
		if err != nil {
			return nil, false, err
		}
		n, err := strconv.Atoi(string(nsampVal))
		if err != nil {
			return nil, false, fmt.Errorf("segment: vcf: bad sample count %q: %w", nsampVal, err)
		}
		cols := make([][]byte, 0, n+2)
		cols = append(cols, out, formatVal)
		for i := 0; i < n; i++ {
			sv, _, err := GetField(rc, vcfSampleContext(rc.Contexts, i))
			if err != nil {
				return nil, false, err
			}
			cols = append(cols, sv)
		}
		out = bytes.Join(cols, []byte{'\t'})
	}

	// A filtered-out record still reads its FORMAT and sample streams above,
	// so the next record starts in step.
	if !keep {
		return nil, false, nil
	}
	return [][]byte{out}, true, nil
}
