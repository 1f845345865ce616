// Package raindex implements the random-access index: (chrom-index,
// min-position, max-position, block-index) tuples that let the decoder skip
// straight to the blocks a region filter overlaps (spec §3 "Random-access
// entry", §4.8 "Random access").
//
// Grounded on the bucketed-offset design of compactindex (FKS hashtable over
// buckets of entries, binary-searchable) adapted here to a much smaller,
// linearly-scanned list: RA entries number in the thousands per archive, not
// the billions compactindex targets, so a sorted slice plus a coarse mutex
// for concurrent appends (spec §5 "random-access buffer uses a coarser mutex
// around appends") is the idiomatic fit rather than a perfect-hash bucket
// structure.
package raindex

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
)

// Entry is one random-access tuple.
type Entry struct {
	ChromIndex uint32
	MinPos     uint32
	MaxPos     uint32
	BlockIndex uint32
}

const entrySize = 4 * 4

// Index is the archive-wide, append-only set of Entry values.
type Index struct {
	mu      sync.Mutex
	entries []Entry
}

// New creates an empty index.
func New() *Index { return &Index{} }

// Append records a new RA entry as a block closes. Entries may arrive out of
// block order (workers finish concurrently); Append does not sort — sorting
// happens once, at Finalize, so that entries end up emitted in block-index
// order (spec §5 "Random-access entries are emitted in block-index order").
func (x *Index) Append(e Entry) {
	x.mu.Lock()
	x.entries = append(x.entries, e)
	x.mu.Unlock()
}

// Finalize sorts accumulated entries by block index (then chrom/position)
// and returns them, ready to serialize.
func (x *Index) Finalize() []Entry {
	x.mu.Lock()
	defer x.mu.Unlock()
	sort.Slice(x.entries, func(i, j int) bool {
		a, b := x.entries[i], x.entries[j]
		if a.BlockIndex != b.BlockIndex {
			return a.BlockIndex < b.BlockIndex
		}
		if a.ChromIndex != b.ChromIndex {
			return a.ChromIndex < b.ChromIndex
		}
		return a.MinPos < b.MinPos
	})
	return x.entries
}

// Region is a user-supplied genomic region filter, already resolved to a
// chromosome's dictionary index.
type Region struct {
	ChromIndex uint32
	Min, Max   uint32 // inclusive
}

// Overlaps reports whether e and r share any position range on the same
// chromosome.
func (e Entry) Overlaps(r Region) bool {
	return e.ChromIndex == r.ChromIndex && e.MinPos <= r.Max && r.Min <= e.MaxPos
}

// BlocksFor returns the sorted, de-duplicated set of block indices whose RA
// entries overlap any of regions. A block may appear because only one of
// several RA entries within it overlaps; per spec §4.8 the whole block is
// still decompressed and per-row filtering is applied at reconstruction.
func BlocksFor(entries []Entry, regions []Region) []uint32 {
	seen := make(map[uint32]bool)
	var out []uint32
	for _, e := range entries {
		for _, r := range regions {
			if e.Overlaps(r) {
				if !seen[e.BlockIndex] {
					seen[e.BlockIndex] = true
					out = append(out, e.BlockIndex)
				}
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Marshal serializes entries into a flat, fixed-width record stream for the
// random-access section body.
func Marshal(entries []Entry) []byte {
	buf := make([]byte, len(entries)*entrySize)
	for i, e := range entries {
		off := i * entrySize
		binary.LittleEndian.PutUint32(buf[off:], e.ChromIndex)
		binary.LittleEndian.PutUint32(buf[off+4:], e.MinPos)
		binary.LittleEndian.PutUint32(buf[off+8:], e.MaxPos)
		binary.LittleEndian.PutUint32(buf[off+12:], e.BlockIndex)
	}
	return buf
}

// Unmarshal parses the random-access section body written by Marshal.
func Unmarshal(buf []byte) ([]Entry, error) {
	if len(buf)%entrySize != 0 {
		return nil, fmt.Errorf("raindex: body length %d not a multiple of entry size %d", len(buf), entrySize)
	}
	n := len(buf) / entrySize
	entries := make([]Entry, n)
	for i := 0; i < n; i++ {
		off := i * entrySize
		entries[i] = Entry{
			ChromIndex: binary.LittleEndian.Uint32(buf[off:]),
			MinPos:     binary.LittleEndian.Uint32(buf[off+4:]),
			MaxPos:     binary.LittleEndian.Uint32(buf[off+8:]),
			BlockIndex: binary.LittleEndian.Uint32(buf[off+12:]),
		}
	}
	return entries, nil
}
