package segment

import (
	"bytes"
	"fmt"

	"github.com/gtcio/gtc/internal/context"
	"github.com/gtcio/gtc/internal/fingerprint"
)

func init() {
	Register(fastaCapability{})
}

// fastaCapability implements Capability for FASTA-like reference sequences:
// a description line ('>'-prefixed) followed by a variable number of
// sequence-body lines up to the next description line (spec §4.4 "FASTA-like
// reference sequences", a content-delimited record).
//
// The body's line-wrap width is stored once per record (the length of its
// first body line) and the joined sequence is re-wrapped at that width on
// reconstruction, so a shorter final line comes back as it was. A record
// whose body lines before the last differ in length is not reproduced
// exactly: it comes back wrapped at its first line's width.
type fastaCapability struct{}

func (fastaCapability) Name() string             { return "fasta" }
func (fastaCapability) LinesPerRecord() int      { return Variable }
func (fastaCapability) RecordBoundary(line []byte) bool {
	return len(line) > 0 && line[0] == '>'
}

func fastaContexts(c *Contexts) (desc, wrap, body *context.Context) {
	desc = c.Get("DESC", fingerprint.Primary, context.Flags{AllowOneUp: true})
	wrap = c.Get("WRAP", fingerprint.Primary, context.Flags{AllowOneUp: true})
	body = c.Get("SEQ", fingerprint.Primary, context.Flags{LocalLType: context.LTypeSequence})
	return
}

func (fastaCapability) SegmentRecord(rc *RecordCtx, lines [][]byte) error {
	if len(lines) < 1 || len(lines[0]) == 0 || lines[0][0] != '>' {
		return fmt.Errorf("segment: fasta: record %d missing '>' description line", rc.LineIndex)
	}
	descCtx, wrapCtx, bodyCtx := fastaContexts(rc.Contexts)

	PutField(rc, descCtx, lines[0], true)

	bodyLines := lines[1:]
	wrapWidth := 0
	if len(bodyLines) > 0 {
		wrapWidth = len(bodyLines[0])
	}
	PutDeltaSelf(rc, wrapCtx, int64(wrapWidth))

	var seq bytes.Buffer
	for _, l := range bodyLines {
		seq.Write(l)
	}
	PutSequence(rc, bodyCtx, seq.Bytes())
	return nil
}

func (fastaCapability) ReconstructRecord(rc *RecordCtx) (lines [][]byte, keep bool, err error) {
	descCtx, wrapCtx, bodyCtx := fastaContexts(rc.Contexts)

	desc, _, err := GetField(rc, descCtx)
	if err != nil {
		return nil, false, err
	}
	wrapWidth, err := GetDeltaSelf(rc, wrapCtx)
	if err != nil {
		return nil, false, err
	}
	seq, err := GetSequence(rc, bodyCtx)
	if err != nil {
		return nil, false, err
	}

	if !rc.Filter.MatchesGrep(desc) {
		return nil, false, nil
	}

	out := make([][]byte, 0, len(seq)/max(1, int(wrapWidth))+2)
	out = append(out, desc)
	if wrapWidth <= 0 || (rc.Filter != nil && rc.Filter.SingleLine) {
		if len(seq) > 0 {
			out = append(out, seq)
		}
		return out, true, nil
	}
	for off := 0; off < len(seq); off += int(wrapWidth) {
		end := off + int(wrapWidth)
		if end > len(seq) {
			end = len(seq)
		}
		out = append(out, seq[off:end])
	}
	return out, true, nil
}
