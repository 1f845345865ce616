// Package block implements the bounded unit of text processed end-to-end by
// one worker: its payload, line directory, per-field context scratch and
// compressed-output buffer (spec §3 "Block", §4.1 "Buffer pool & arena").
package block

import (
	"github.com/gtcio/gtc/internal/buffer"
	"github.com/gtcio/gtc/internal/context"
	"github.com/gtcio/gtc/internal/fingerprint"
	"github.com/gtcio/gtc/internal/raindex"
)

// DefaultTargetSize is the default block size target (spec §3: "target size
// configurable, default 16 MiB").
const DefaultTargetSize = 16 << 20

// Line records one logical line's extent within Text.
type Line struct {
	Start  int
	Len    int // excludes the line terminator
	CRLF   bool
	NoTerm bool // true only for a final line with no trailing terminator at all
}

// Stream is one context's finalized, ready-to-persist output for this block.
type Stream struct {
	B250      []byte
	Local     []byte
	LocalInts []int64
}

// Block is a bounded unit of input text (compress side) or reconstructed
// output text (decode side), owning its own text payload, line table,
// per-context scratch and compressed-output buffer exclusively: only the
// worker processing it touches these fields, so no locking is needed here
// (spec §3 "Ownership").
type Block struct {
	Index int64

	// Text holds input bytes to segment (compress) or output bytes already
	// reconstructed (decode).
	Text  []byte
	Lines []Line

	// CarryOver holds the bytes carried into this block from the previous
	// block's read: a record-boundary line, terminator included, that the
	// splitter read while filling the previous block and placed as this
	// block's first line instead.
	CarryOver []byte

	Arena *buffer.Arena

	Writers map[fingerprint.ID]*context.BlockWriter
	Readers map[fingerprint.ID]*context.BlockReader
	Streams map[fingerprint.ID]*Stream

	// RecordCount is the number of logical records this block was segmented
	// into (compress side) or must be reconstructed into (decode side);
	// needed on decode to know when to stop calling ReconstructRecord for
	// Variable-LinesPerRecord data types, where line count alone doesn't
	// determine record count.
	RecordCount int

	RAEntries []raindex.Entry

	// InUse marks a block as checked out of its Pool.
	InUse bool
}

// New creates an empty block for blockIndex.
func New(blockIndex int64) *Block {
	return &Block{
		Index:   blockIndex,
		Arena:   buffer.NewArena(blockIndex),
		Writers: make(map[fingerprint.ID]*context.BlockWriter),
		Readers: make(map[fingerprint.ID]*context.BlockReader),
		Streams: make(map[fingerprint.ID]*Stream),
	}
}

// Reset clears a block's contents for reuse with a new index, retaining its
// map and slice capacities.
func (b *Block) Reset(newIndex int64) {
	if err := b.Arena.Release(); err != nil {
		// Overflow is a programming error in a segmenter/reconstructor, not a
		// data problem; surface it loudly rather than silently losing it.
		panic(err)
	}
	b.Index = newIndex
	b.Arena.Reset(newIndex)
	b.Text = b.Text[:0]
	b.Lines = b.Lines[:0]
	b.CarryOver = b.CarryOver[:0]
	b.RAEntries = b.RAEntries[:0]
	b.RecordCount = 0
	for k := range b.Writers {
		delete(b.Writers, k)
	}
	for k := range b.Readers {
		delete(b.Readers, k)
	}
	for k := range b.Streams {
		delete(b.Streams, k)
	}
	b.InUse = false
}

// WriterFor returns (creating if necessary) the BlockWriter for ctx within
// this block.
func (b *Block) WriterFor(ctx *context.Context, localSizeHint int) *context.BlockWriter {
	if bw, ok := b.Writers[ctx.Fingerprint]; ok {
		return bw
	}
	bw := context.NewBlockWriter(ctx, localSizeHint)
	b.Writers[ctx.Fingerprint] = bw
	return bw
}
