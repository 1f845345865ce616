package segment

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/gtcio/gtc/internal/context"
	"github.com/gtcio/gtc/internal/fingerprint"
)

func init() {
	Register(samCapability{})
}

// samCapability implements Capability for SAM-like aligned reads: one line
// per record, tab-separated QNAME/FLAG/RNAME/POS/MAPQ/CIGAR/RNEXT/PNEXT/TLEN/
// SEQ/QUAL plus any trailing optional tag fields, which are carried as a
// single opaque blob (spec §4.4 "SAM-like aligned reads").
type samCapability struct{}

func (samCapability) Name() string             { return "sam" }
func (samCapability) LinesPerRecord() int      { return 1 }
func (samCapability) RecordBoundary([]byte) bool { return true } // unused: fixed record size

func samContexts(c *Contexts) (qname, flag, rname, mapq, cigar, rnext, pnext, tlen, seq, qual, tags *context.Context) {
	qname = c.Get("QNAME", fingerprint.Primary, context.Flags{AllowOneUp: true})
	flag = c.Get("FLAG", fingerprint.Primary, context.Flags{AllowOneUp: true})
	rname = c.Get("RNAME", fingerprint.Primary, context.Flags{NoSingletons: true, AllowOneUp: true})
	mapq = c.Get("MAPQ", fingerprint.Primary, context.Flags{AllowOneUp: true})
	cigar = c.Get("CIGAR", fingerprint.Primary, context.Flags{AllowOneUp: true})
	rnext = c.Get("RNEXT", fingerprint.Primary, context.Flags{AllowOneUp: true})
	pnext = c.Get("PNEXT", fingerprint.Primary, context.Flags{AllowOneUp: true})
	tlen = c.Get("TLEN", fingerprint.Primary, context.Flags{AllowOneUp: true})
	seq = c.Get("SEQ", fingerprint.Primary, context.Flags{LocalLType: context.LTypeSequence})
	qual = c.Get("SAMQUAL", fingerprint.Primary, context.Flags{LocalLType: context.LTypeSequence})
	tags = c.Get("TAGS", fingerprint.Primary, context.Flags{AllowOneUp: true})
	return
}

func samPosContext(c *Contexts) *context.Context {
	return c.Get("POS", fingerprint.Primary, context.Flags{NoSingletons: true, StoreValue: true})
}

func (samCapability) SegmentRecord(rc *RecordCtx, lines [][]byte) error {
	line := lines[0]
	cols := bytes.SplitN(line, []byte{'\t'}, 12)
	if len(cols) < 11 {
		return fmt.Errorf("segment: sam: record %d has %d columns, want at least 11", rc.LineIndex, len(cols))
	}
	qnameCtx, flagCtx, rnameCtx, mapqCtx, cigarCtx, rnextCtx, pnextCtx, tlenCtx, seqCtx, qualCtx, tagsCtx := samContexts(rc.Contexts)
	posCtx := samPosContext(rc.Contexts)

	PutField(rc, qnameCtx, cols[0], true)
	PutField(rc, flagCtx, cols[1], true)

	rnameIdx, err := rnameCtx.Intern(cols[2])
	if err != nil {
		return fmt.Errorf("segment: sam: record %d: %w", rc.LineIndex, err)
	}
	bw := rc.Block.WriterFor(rnameCtx, rc.Contexts.LocalSizeHint(rnameCtx.Fingerprint))
	bw.AppendB250(context.Ref{Kind: context.RefGlobal, Index: rnameIdx})

	pos, err := strconv.ParseInt(string(cols[3]), 10, 64)
	if err != nil {
		return fmt.Errorf("segment: sam: record %d: bad POS %q: %w", rc.LineIndex, cols[3], err)
	}
	PutPosition(rc, posCtx, rnameIdx, pos)

	PutField(rc, mapqCtx, cols[4], true)
	PutField(rc, cigarCtx, cols[5], true)
	PutField(rc, rnextCtx, cols[6], true)
	PutField(rc, pnextCtx, cols[7], true)
	PutField(rc, tlenCtx, cols[8], true)
	PutSequence(rc, seqCtx, cols[9])
	PutSequence(rc, qualCtx, cols[10])

	if len(cols) == 12 {
		PutField(rc, tagsCtx, cols[11], true)
	} else {
		PutField(rc, tagsCtx, nil, false)
	}
	return nil
}

func (samCapability) ReconstructRecord(rc *RecordCtx) (lines [][]byte, keep bool, err error) {
	qnameCtx, flagCtx, rnameCtx, mapqCtx, cigarCtx, rnextCtx, pnextCtx, tlenCtx, seqCtx, qualCtx, tagsCtx := samContexts(rc.Contexts)
	posCtx := samPosContext(rc.Contexts)

	qnameVal, _, err := GetField(rc, qnameCtx)
	if err != nil {
		return nil, false, err
	}
	flagVal, _, err := GetField(rc, flagCtx)
	if err != nil {
		return nil, false, err
	}

	rnameBR, ok := rc.Block.Readers[rnameCtx.Fingerprint]
	if !ok {
		return nil, false, fmt.Errorf("segment: sam: no RNAME stream in block %d", rc.Block.Index)
	}
	rnameIdx, err := rnameBR.NextRef()
	if err != nil {
		return nil, false, err
	}
	rnameVal, err := rnameBR.Snip(rnameIdx)
	if err != nil {
		return nil, false, err
	}

	pos, err := GetDeltaSelf(rc, posCtx)
	if err != nil {
		return nil, false, err
	}
	rc.UpdatePosition(rnameIdx, uint32(pos))

	mapqVal, _, err := GetField(rc, mapqCtx)
	if err != nil {
		return nil, false, err
	}
	cigarVal, _, err := GetField(rc, cigarCtx)
	if err != nil {
		return nil, false, err
	}
	rnextVal, _, err := GetField(rc, rnextCtx)
	if err != nil {
		return nil, false, err
	}
	pnextVal, _, err := GetField(rc, pnextCtx)
	if err != nil {
		return nil, false, err
	}
	tlenVal, _, err := GetField(rc, tlenCtx)
	if err != nil {
		return nil, false, err
	}
	seqVal, err := GetSequence(rc, seqCtx)
	if err != nil {
		return nil, false, err
	}
	qualVal, err := GetSequence(rc, qualCtx)
	if err != nil {
		return nil, false, err
	}
	tagsVal, hasTags, err := GetField(rc, tagsCtx)
	if err != nil {
		return nil, false, err
	}

	keep = rc.Filter.MatchesRegions(rnameIdx, uint32(pos)) && rc.Filter.MatchesGrep(qnameVal)
	if !keep {
		return nil, false, nil
	}

	parts := [][]byte{
		qnameVal, flagVal, rnameVal,
		[]byte(strconv.FormatInt(pos, 10)),
		mapqVal, cigarVal, rnextVal, pnextVal, tlenVal, seqVal, qualVal,
	}
	if hasTags {
		parts = append(parts, tagsVal)
	}
	return [][]byte{bytes.Join(parts, []byte{'\t'})}, true, nil
}
