package context

import (
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/gtcio/gtc/internal/varint"
)

// RefKind distinguishes how an Evaluate call resolved a value.
type RefKind uint8

const (
	// RefGlobal means the value was already present in the shared
	// dictionary; Index is a final global dictionary index.
	RefGlobal RefKind = iota
	// RefLocalPending means the value is new to this block; Index is a
	// 0-based index into the block's pending (not yet merged) entries.
	RefLocalPending
)

// Ref is the result of Evaluate: a reference to a dictionary slot that may
// or may not yet have a final global index.
type Ref struct {
	Kind  RefKind
	Index uint32
}

type pendingEntry struct {
	value []byte
	hash  uint64
	freq  int
}

type tokenKind uint8

const (
	tokRef tokenKind = iota
	tokMissing
	tokEmpty
)

type token struct {
	kind tokenKind
	ref  Ref
}

// BlockWriter is the per-block, per-context scratch used while encoding: a
// local (block-private, lock-free) hash table staging new values, plus a
// deferred token list for the b250 stream (spec §4.2 "local hash table" /
// "b250 stream").
//
// The b250 stream is modeled as a token list rather than a packed byte
// buffer until finalizeB250 is called (after MergeInto resolves every
// pending local index to a final global one): this gives the same observable
// encoding spec §3 describes ("every reference in b250 resolves to a valid
// dictionary index") without requiring literal in-place byte-width surgery
// once a value's final index is known.
type BlockWriter struct {
	ctx *Context

	localTable   *table
	pending      []pendingEntry
	localHashIdx map[uint64][]int // hash -> indices into pending, for exact-match disambiguation

	tokens []token

	localStream  []byte
	localInts    []int64
	localIntType LType

	lastValue    int64
	haveLastValu bool
	lastLineIdx  int64
}

// NewBlockWriter creates block-local scratch for ctx, sized from localSizeHint
// distinct values (estimated from the previous block's dictionary growth, or
// a constant bootstrap value for the first block, per spec §4.3).
func NewBlockWriter(ctx *Context, localSizeHint int) *BlockWriter {
	if localSizeHint <= 0 {
		localSizeHint = 64
	}
	return &BlockWriter{
		ctx:          ctx,
		localTable:   newTable(localSizeHint, defaultChainCap),
		localHashIdx: make(map[uint64][]int, localSizeHint),
		localIntType: ctx.Flags.LocalLType,
	}
}

// Context returns the shared Context this writer stages values for.
func (bw *BlockWriter) Context() *Context { return bw.ctx }

// Reset clears a BlockWriter for reuse against the same context on a new
// block, reusing its allocations.
func (bw *BlockWriter) Reset() {
	bw.localTable = newTable(len(bw.pending)+8, defaultChainCap)
	for k := range bw.localHashIdx {
		delete(bw.localHashIdx, k)
	}
	bw.pending = bw.pending[:0]
	bw.tokens = bw.tokens[:0]
	bw.localStream = bw.localStream[:0]
	bw.localInts = bw.localInts[:0]
	bw.lastValue = 0
	bw.haveLastValu = false
	bw.lastLineIdx = 0
}

// Evaluate looks up value, first in the block-local staging dictionary, then
// (read-locked) in the shared global dictionary, and otherwise stages it as
// a new pending local entry. It never blocks on another worker's merge.
func (bw *BlockWriter) Evaluate(value []byte) Ref {
	h := xxhash.Sum64(value)
	if bw.ctx.Degraded() {
		bw.pending = append(bw.pending, pendingEntry{value: append([]byte(nil), value...), hash: h, freq: 1})
		return Ref{Kind: RefLocalPending, Index: uint32(len(bw.pending) - 1)}
	}
	if idxs, ok := bw.localHashIdx[h]; ok {
		for _, pi := range idxs {
			if string(bw.pending[pi].value) == string(value) {
				bw.pending[pi].freq++
				return Ref{Kind: RefLocalPending, Index: uint32(pi)}
			}
		}
	}
	bw.ctx.mu.RLock()
	gidx, found, chainExceeded := bw.ctx.global.Lookup(h, func(idx uint32) bool { return bw.ctx.dictEqual(idx, value) })
	bw.ctx.mu.RUnlock()
	if chainExceeded {
		bw.ctx.mu.Lock()
		bw.ctx.degraded = true
		bw.ctx.mu.Unlock()
	}
	if found {
		return Ref{Kind: RefGlobal, Index: gidx}
	}
	pi := len(bw.pending)
	bw.pending = append(bw.pending, pendingEntry{value: append([]byte(nil), value...), hash: h, freq: 1})
	bw.localHashIdx[h] = append(bw.localHashIdx[h], pi)
	bw.localTable.Insert(h, uint32(pi))
	return Ref{Kind: RefLocalPending, Index: uint32(pi)}
}

// AppendB250 defers a reference token for the current row.
func (bw *BlockWriter) AppendB250(ref Ref) {
	bw.tokens = append(bw.tokens, token{kind: tokRef, ref: ref})
}

// AppendMissing defers the "subfield absent" b250 escape for the current row.
func (bw *BlockWriter) AppendMissing() {
	bw.tokens = append(bw.tokens, token{kind: tokMissing})
}

// AppendEmpty defers the "subfield present but empty" b250 escape for the
// current row.
func (bw *BlockWriter) AppendEmpty() {
	bw.tokens = append(bw.tokens, token{kind: tokEmpty})
}

// StoreText appends bytes to the local text stream.
func (bw *BlockWriter) StoreText(b []byte) {
	bw.localStream = append(bw.localStream, b...)
}

// StoreInt appends an integer to the local fixed-width stream.
func (bw *BlockWriter) StoreInt(v int64) {
	bw.localInts = append(bw.localInts, v)
}

// SetLastValue records the numeric value of the most recently evaluated
// snip, for contexts with Flags.StoreValue set.
func (bw *BlockWriter) SetLastValue(v int64) {
	bw.lastValue = v
	bw.haveLastValu = true
}

// LastValue returns the last numeric value stored this block, if any.
func (bw *BlockWriter) LastValue() (int64, bool) {
	return bw.lastValue, bw.haveLastValu
}

// MergeInto merges every pending value into the shared context dictionary
// under its exclusive lock, then finalizes this block's b250 token stream
// into its packed byte encoding (spec §4.2 "merge_into_global").
func (bw *BlockWriter) MergeInto() ([]byte, error) {
	ctx := bw.ctx
	ctx.mu.Lock()
	localToGlobal := make([]uint32, len(bw.pending))
	type newEntry struct {
		pendingIdx int
		freq       int
	}
	var fresh []newEntry
	for i, pe := range bw.pending {
		if idx, found, chainExceeded := ctx.global.Lookup(pe.hash, func(idx uint32) bool { return ctx.dictEqual(idx, pe.value) }); found {
			localToGlobal[i] = idx
			continue
		} else if chainExceeded {
			ctx.degraded = true
		}
		fresh = append(fresh, newEntry{pendingIdx: i, freq: pe.freq})
	}
	firstTouch := !ctx.touched
	if firstTouch && len(fresh) > 0 {
		sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].freq > fresh[j].freq })
	}
	for _, fe := range fresh {
		pe := bw.pending[fe.pendingIdx]
		idx, err := ctx.appendLocked(pe.value)
		if err != nil {
			ctx.mu.Unlock()
			return nil, err
		}
		ctx.global.Insert(pe.hash, idx)
		localToGlobal[fe.pendingIdx] = idx
	}
	ctx.touched = true
	ctx.mu.Unlock()

	return bw.finalizeB250(localToGlobal), nil
}

func (bw *BlockWriter) finalizeB250(localToGlobal []uint32) []byte {
	out := make([]byte, 0, len(bw.tokens)*2)
	prev := int64(-1)
	for _, t := range bw.tokens {
		switch t.kind {
		case tokMissing:
			out = varint.AppendMissing(out)
		case tokEmpty:
			out = varint.AppendEmpty(out)
		default:
			idx := t.ref.Index
			if t.ref.Kind == RefLocalPending {
				idx = localToGlobal[idx]
			}
			out = varint.AppendIndex(out, idx, prev, bw.ctx.Flags.AllowOneUp)
			prev = int64(idx)
		}
	}
	return out
}

// LocalStream returns the finalized local byte stream for this block.
func (bw *BlockWriter) LocalStream() []byte { return bw.localStream }

// LocalInts returns the finalized local integer stream for this block.
func (bw *BlockWriter) LocalInts() []int64 { return bw.localInts }
