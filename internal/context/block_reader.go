package context

import (
	"fmt"

	"github.com/gtcio/gtc/internal/varint"
)

// BlockReader is the per-block decode-side iterator state for one context:
// a cursor into the block's b250 stream and its local stream (spec §4.5
// "Contexts carry iterator state").
type BlockReader struct {
	ctx *Context

	b250       []byte
	b250Pos    int
	prevIndex  int64

	localBytes []byte
	localPos   int

	localInts    []int64
	localIntPos  int

	lastValue    int64
	haveLastValu bool
}

// NewBlockReader wraps the raw b250/local sections read for this context in
// the current block into an iterator.
func NewBlockReader(ctx *Context, b250 []byte, local []byte, localInts []int64) *BlockReader {
	return &BlockReader{ctx: ctx, b250: b250, prevIndex: -1, localBytes: local, localInts: localInts}
}

// NextRef decodes the next b250 reference: a resolved dictionary index, or
// the Missing/Empty sentinel.
func (br *BlockReader) NextRef() (idx uint32, err error) {
	if br.b250Pos >= len(br.b250) {
		return 0, fmt.Errorf("context %s: b250 stream exhausted", br.ctx.Name)
	}
	idx, n, err := varint.Decode(br.b250[br.b250Pos:], br.prevIndex)
	if err != nil {
		return 0, fmt.Errorf("context %s: %w", br.ctx.Name, err)
	}
	br.b250Pos += n
	if idx != varint.IndexMissing && idx != varint.IndexEmpty {
		br.prevIndex = int64(idx)
	}
	return idx, nil
}

// Snip resolves a b250 index to its dictionary bytes.
func (br *BlockReader) Snip(idx uint32) ([]byte, error) {
	return br.ctx.Value(idx)
}

// NextText consumes n bytes from the local text/sequence stream.
func (br *BlockReader) NextText(n int) ([]byte, error) {
	if br.localPos+n > len(br.localBytes) {
		return nil, fmt.Errorf("context %s: local stream exhausted (want %d have %d)", br.ctx.Name, n, len(br.localBytes)-br.localPos)
	}
	b := br.localBytes[br.localPos : br.localPos+n]
	br.localPos += n
	return b, nil
}

// NextInt consumes one value from the local fixed-width integer stream.
func (br *BlockReader) NextInt() (int64, error) {
	if br.localIntPos >= len(br.localInts) {
		return 0, fmt.Errorf("context %s: local int stream exhausted", br.ctx.Name)
	}
	v := br.localInts[br.localIntPos]
	br.localIntPos++
	return v, nil
}

// SetLastValue records the numeric value of the most recently reconstructed
// snip, mirroring BlockWriter.SetLastValue on the decode side.
func (br *BlockReader) SetLastValue(v int64) {
	br.lastValue = v
	br.haveLastValu = true
}

// LastValue returns the last numeric value reconstructed, if any.
func (br *BlockReader) LastValue() (int64, bool) {
	return br.lastValue, br.haveLastValu
}

// HasMore reports whether the b250 stream has unread references.
func (br *BlockReader) HasMore() bool {
	return br.b250Pos < len(br.b250)
}
