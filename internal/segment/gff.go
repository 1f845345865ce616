package segment

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/gtcio/gtc/internal/context"
	"github.com/gtcio/gtc/internal/fingerprint"
)

func init() {
	Register(gffCapability{})
}

// gffCapability implements Capability for GFF-like genomic feature tables:
// one line per record, tab-separated seqid/source/type/start/end/score/
// strand/phase/attributes (spec §4.4 "GFF-like genomic feature tables").
// Attributes reuse the info-style helpers ("name=value;name=value"), the
// same shape as a VCF INFO field.
type gffCapability struct{}

func (gffCapability) Name() string             { return "gff" }
func (gffCapability) LinesPerRecord() int      { return 1 }
func (gffCapability) RecordBoundary([]byte) bool { return true } // unused: fixed record size

func gffContexts(c *Contexts) (seqid, source, typ, score, strand, phase, attrs *context.Context) {
	seqid = c.Get("SEQID", fingerprint.Primary, context.Flags{NoSingletons: true, AllowOneUp: true})
	source = c.Get("SOURCE", fingerprint.Primary, context.Flags{AllowOneUp: true})
	typ = c.Get("TYPE", fingerprint.Primary, context.Flags{AllowOneUp: true})
	score = c.Get("SCORE", fingerprint.Primary, context.Flags{AllowOneUp: true})
	strand = c.Get("STRAND", fingerprint.Primary, context.Flags{AllowOneUp: true})
	phase = c.Get("PHASE", fingerprint.Primary, context.Flags{AllowOneUp: true})
	attrs = c.Get("ATTRS", fingerprint.Primary, context.Flags{AllowOneUp: true})
	return
}

func gffStartContext(c *Contexts) *context.Context {
	return c.Get("START", fingerprint.Primary, context.Flags{NoSingletons: true, StoreValue: true})
}

// gffEndContext holds the feature length (end-start), not end itself, so
// that fixed-length features (a common case) collapse to one dictionary
// value instead of drifting with start (spec §4.4 "delta... against a
// related field").
func gffEndContext(c *Contexts) *context.Context {
	return c.Get("ENDLEN", fingerprint.Primary, context.Flags{AllowOneUp: true})
}

func (gffCapability) SegmentRecord(rc *RecordCtx, lines [][]byte) error {
	line := lines[0]
	cols := bytes.Split(line, []byte{'\t'})
	if len(cols) != 9 {
		return fmt.Errorf("segment: gff: record %d has %d columns, want 9", rc.LineIndex, len(cols))
	}
	seqidCtx, sourceCtx, typCtx, scoreCtx, strandCtx, phaseCtx, attrsCtx := gffContexts(rc.Contexts)
	startCtx := gffStartContext(rc.Contexts)
	endCtx := gffEndContext(rc.Contexts)

	seqidIdx, err := seqidCtx.Intern(cols[0])
	if err != nil {
		return fmt.Errorf("segment: gff: record %d: %w", rc.LineIndex, err)
	}
	bw := rc.Block.WriterFor(seqidCtx, rc.Contexts.LocalSizeHint(seqidCtx.Fingerprint))
	bw.AppendB250(context.Ref{Kind: context.RefGlobal, Index: seqidIdx})

	PutField(rc, sourceCtx, cols[1], true)
	PutField(rc, typCtx, cols[2], true)

	start, err := strconv.ParseInt(string(cols[3]), 10, 64)
	if err != nil {
		return fmt.Errorf("segment: gff: record %d: bad start %q: %w", rc.LineIndex, cols[3], err)
	}
	end, err := strconv.ParseInt(string(cols[4]), 10, 64)
	if err != nil {
		return fmt.Errorf("segment: gff: record %d: bad end %q: %w", rc.LineIndex, cols[4], err)
	}
	PutPosition(rc, startCtx, seqidIdx, start)
	rc.UpdatePosition(seqidIdx, uint32(end))
	PutField(rc, endCtx, []byte(strconv.FormatInt(end-start, 10)), true)

	PutField(rc, scoreCtx, cols[5], true)
	PutField(rc, strandCtx, cols[6], true)
	PutField(rc, phaseCtx, cols[7], true)

	pairs := SplitInfo(cols[8])
	PutField(rc, attrsCtx, EncodeInfoTemplate(pairs), true)
	for _, p := range pairs {
		sub := rc.Contexts.Get("ATTR/"+p.Name, fingerprint.Subfield1, context.Flags{AllowOneUp: true})
		PutField(rc, sub, p.Value, p.Present)
	}
	return nil
}

func (gffCapability) ReconstructRecord(rc *RecordCtx) (lines [][]byte, keep bool, err error) {
	seqidCtx, sourceCtx, typCtx, scoreCtx, strandCtx, phaseCtx, attrsCtx := gffContexts(rc.Contexts)
	startCtx := gffStartContext(rc.Contexts)
	endCtx := gffEndContext(rc.Contexts)

	seqidBR, ok := rc.Block.Readers[seqidCtx.Fingerprint]
	if !ok {
		return nil, false, fmt.Errorf("segment: gff: no SEQID stream in block %d", rc.Block.Index)
	}
	seqidIdx, err := seqidBR.NextRef()
	if err != nil {
		return nil, false, err
	}
	seqidVal, err := seqidBR.Snip(seqidIdx)
	if err != nil {
		return nil, false, err
	}

	sourceVal, _, err := GetField(rc, sourceCtx)
	if err != nil {
		return nil, false, err
	}
	typVal, _, err := GetField(rc, typCtx)
	if err != nil {
		return nil, false, err
	}

	start, err := GetDeltaSelf(rc, startCtx)
	if err != nil {
		return nil, false, err
	}
	endLenVal, _, err := GetField(rc, endCtx)
	if err != nil {
		return nil, false, err
	}
	endLen, err := strconv.ParseInt(string(endLenVal), 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("segment: gff: bad feature length %q: %w", endLenVal, err)
	}
	end := start + endLen
	rc.UpdatePosition(seqidIdx, uint32(end))

	scoreVal, _, err := GetField(rc, scoreCtx)
	if err != nil {
		return nil, false, err
	}
	strandVal, _, err := GetField(rc, strandCtx)
	if err != nil {
		return nil, false, err
	}
	phaseVal, _, err := GetField(rc, phaseCtx)
	if err != nil {
		return nil, false, err
	}

	templateVal, _, err := GetField(rc, attrsCtx)
	if err != nil {
		return nil, false, err
	}
	pairs := DecodeInfoTemplate(templateVal)
	for i := range pairs {
		sub := rc.Contexts.Get("ATTR/"+pairs[i].Name, fingerprint.Subfield1, context.Flags{AllowOneUp: true})
		v, present, err := GetField(rc, sub)
		if err != nil {
			return nil, false, err
		}
		pairs[i].Value = v
		pairs[i].Present = present
	}
	attrsVal := JoinInfo(pairs)

	keep = rc.Filter.MatchesRegions(seqidIdx, uint32(start)) && rc.Filter.MatchesGrep(seqidVal)
	if !keep {
		return nil, false, nil
	}

	out := bytes.Join([][]byte{
		seqidVal, sourceVal, typVal,
		[]byte(strconv.FormatInt(start, 10)),
		[]byte(strconv.FormatInt(end, 10)),
		scoreVal, strandVal, phaseVal, attrsVal,
	}, []byte{'\t'})
	return [][]byte{out}, true, nil
}
