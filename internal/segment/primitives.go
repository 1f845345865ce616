package segment

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/gtcio/gtc/internal/context"
	"github.com/gtcio/gtc/internal/varint"
)

// PutField implements the "one-field" primitive (spec §4.4): evaluate value
// into ctx and append a b250 reference, distinguishing an entirely absent
// subfield from one present-but-empty.
func PutField(rc *RecordCtx, ctx *context.Context, value []byte, present bool) {
	bw := rc.Block.WriterFor(ctx, rc.Contexts.LocalSizeHint(ctx.Fingerprint))
	if !present {
		bw.AppendMissing()
		return
	}
	if len(value) == 0 {
		bw.AppendEmpty()
		return
	}
	ref := bw.Evaluate(value)
	bw.AppendB250(ref)
}

// GetField is the inverse of PutField.
func GetField(rc *RecordCtx, ctx *context.Context) (value []byte, present bool, err error) {
	br, ok := rc.Block.Readers[ctx.Fingerprint]
	if !ok {
		return nil, false, fmt.Errorf("segment: no b250 stream for context %s in block %d", ctx.Name, rc.Block.Index)
	}
	idx, err := br.NextRef()
	if err != nil {
		return nil, false, err
	}
	switch idx {
	case varint.IndexMissing:
		return nil, false, nil
	case varint.IndexEmpty:
		return []byte{}, true, nil
	default:
		v, err := br.Snip(idx)
		return v, true, err
	}
}

// PutDeltaSelf implements the "delta" primitive against ctx's own previous
// value in this block (spec §4.4).
func PutDeltaSelf(rc *RecordCtx, ctx *context.Context, value int64) {
	bw := rc.Block.WriterFor(ctx, rc.Contexts.LocalSizeHint(ctx.Fingerprint))
	prev, have := bw.LastValue()
	delta := value
	if have {
		delta = value - prev
	}
	bw.StoreInt(delta)
	bw.SetLastValue(value)
}

// GetDeltaSelf is the inverse of PutDeltaSelf.
func GetDeltaSelf(rc *RecordCtx, ctx *context.Context) (int64, error) {
	br, ok := rc.Block.Readers[ctx.Fingerprint]
	if !ok {
		return 0, fmt.Errorf("segment: no local stream for context %s in block %d", ctx.Name, rc.Block.Index)
	}
	delta, err := br.NextInt()
	if err != nil {
		return 0, err
	}
	prev, have := br.LastValue()
	v := delta
	if have {
		v = prev + delta
	}
	br.SetLastValue(v)
	return v, nil
}

// PutPosition implements the "position" primitive: delta-encodes an integer
// position against the same context's previous value, and simultaneously
// widens the block's current random-access entry (spec §4.4).
func PutPosition(rc *RecordCtx, ctx *context.Context, chromIdx uint32, pos int64) {
	PutDeltaSelf(rc, ctx, pos)
	rc.UpdatePosition(chromIdx, uint32(pos))
}

// PutSequence implements the "sequence-like" primitive: the payload goes to
// the local stream uncompressed (the section codec still compresses the
// stream as a whole); only its length is dictionary-referenced, so that
// uniform-length reads collapse to a single dictionary entry (spec §4.4).
func PutSequence(rc *RecordCtx, ctx *context.Context, data []byte) {
	bw := rc.Block.WriterFor(ctx, rc.Contexts.LocalSizeHint(ctx.Fingerprint))
	lenStr := strconv.Itoa(len(data))
	ref := bw.Evaluate([]byte(lenStr))
	bw.AppendB250(ref)
	bw.StoreText(data)
}

// GetSequence is the inverse of PutSequence.
func GetSequence(rc *RecordCtx, ctx *context.Context) ([]byte, error) {
	lenStr, present, err := GetField(rc, ctx)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, fmt.Errorf("segment: sequence length missing for context %s", ctx.Name)
	}
	n, err := strconv.Atoi(string(lenStr))
	if err != nil {
		return nil, fmt.Errorf("segment: bad sequence length %q for context %s: %w", lenStr, ctx.Name, err)
	}
	br := rc.Block.Readers[ctx.Fingerprint]
	return br.NextText(n)
}

// InfoPair is one name=value pair of an info-style field.
type InfoPair struct {
	Name    string
	Value   []byte
	Present bool // false means the key had no '=' (a flag, e.g. "PASS")
}

// SplitInfo parses a ';'-delimited "name1=value1;name2=value2;flag3" field
// into its ordered pairs (spec §4.4 "info-style").
func SplitInfo(field []byte) []InfoPair {
	if len(field) == 0 || (len(field) == 1 && field[0] == '.') {
		return nil
	}
	parts := bytes.Split(field, []byte{';'})
	out := make([]InfoPair, 0, len(parts))
	for _, p := range parts {
		if len(p) == 0 {
			continue
		}
		if i := bytes.IndexByte(p, '='); i >= 0 {
			out = append(out, InfoPair{Name: string(p[:i]), Value: p[i+1:], Present: true})
		} else {
			out = append(out, InfoPair{Name: string(p), Present: false})
		}
	}
	return out
}

// EncodeInfoTemplate renders the ordered list of names (and whether each
// carries a value) as a single dictionary-friendly snip, so that rows
// sharing the same INFO "shape" collapse to one dictionary entry (spec §4.4
// "info-style... the ordered list of names becomes one snip").
func EncodeInfoTemplate(pairs []InfoPair) []byte {
	if len(pairs) == 0 {
		return []byte{'.'}
	}
	var buf bytes.Buffer
	for i, p := range pairs {
		if i > 0 {
			buf.WriteByte(';')
		}
		buf.WriteString(p.Name)
		if p.Present {
			buf.WriteByte('=')
		}
	}
	return buf.Bytes()
}

// DecodeInfoTemplate is the inverse of EncodeInfoTemplate; Value is left
// unset, to be filled in from each named subfield's own context.
func DecodeInfoTemplate(template []byte) []InfoPair {
	if len(template) == 0 || (len(template) == 1 && template[0] == '.') {
		return nil
	}
	parts := bytes.Split(template, []byte{';'})
	out := make([]InfoPair, 0, len(parts))
	for _, p := range parts {
		if len(p) == 0 {
			continue
		}
		if i := bytes.IndexByte(p, '='); i >= 0 {
			out = append(out, InfoPair{Name: string(p[:i]), Present: true})
		} else {
			out = append(out, InfoPair{Name: string(p), Present: false})
		}
	}
	return out
}

// JoinInfo is the inverse of SplitInfo.
func JoinInfo(pairs []InfoPair) []byte {
	if len(pairs) == 0 {
		return []byte{'.'}
	}
	var buf bytes.Buffer
	for i, p := range pairs {
		if i > 0 {
			buf.WriteByte(';')
		}
		buf.WriteString(p.Name)
		if p.Present {
			buf.WriteByte('=')
			buf.Write(p.Value)
		}
	}
	return buf.Bytes()
}
