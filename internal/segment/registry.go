// Package segment implements the data-type-specific capability tables that
// turn text rows into context contributions and back (spec §4.4
// "Segmenter", §4.5 "Reconstructor", §9 "polymorphism over data types").
//
// Each supported bioinformatics format implements Capability once; dispatch
// from a format name to its Capability is a registry lookup, never
// inheritance, per Design Notes §9.
package segment

import (
	"fmt"
	"sync"

	"github.com/gtcio/gtc/internal/context"
	"github.com/gtcio/gtc/internal/fingerprint"
)

// Capability is the full set of behaviors one bioinformatics data type must
// provide. LinesPerRecord is fixed for line-regular formats (1 for VCF/GFF,
// 4 for FASTQ) or Variable for formats whose record boundary is content-
// defined (FASTA: description-line to next description-line).
type Capability interface {
	// Name identifies the data type for diagnostics and the component header.
	Name() string
	// LinesPerRecord returns a fixed record size, or Variable.
	LinesPerRecord() int
	// RecordBoundary is only called when LinesPerRecord() == Variable: it
	// reports whether line begins a new record (so the previous record, if
	// any, ends immediately before it).
	RecordBoundary(line []byte) bool
	// SegmentRecord parses one logical record's raw lines (with terminators
	// stripped) into context contributions.
	SegmentRecord(rc *RecordCtx, lines [][]byte) error
	// ReconstructRecord rebuilds one logical record's lines from context
	// state. keep reports whether the record survives any active filters.
	ReconstructRecord(rc *RecordCtx) (lines [][]byte, keep bool, err error)
}

// Variable is the LinesPerRecord sentinel for content-delimited records.
const Variable = -1

var (
	mu       sync.RWMutex
	registry = map[string]Capability{}
)

// Register adds a Capability under its own Name(). Intended to be called
// from package init() in each data-type's file.
func Register(c Capability) {
	mu.Lock()
	defer mu.Unlock()
	registry[c.Name()] = c
}

// Lookup returns the Capability registered under name.
func Lookup(name string) (Capability, error) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("segment: unknown data type %q", name)
	}
	return c, nil
}

// Names returns every registered data-type name, for CLI help / diagnostics.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	return out
}

// Contexts is the archive-wide registry of field Contexts, created lazily the
// first time a field is seen in any block (spec §3 "Lifecycle"). Creation is
// guarded by its own mutex; once created, all further access to one Context
// goes through that Context's own lock, never this one (spec §5 locking
// discipline: a worker never holds more than one context lock at a time).
type Contexts struct {
	mu   sync.Mutex
	byFP map[fingerprint.ID]*context.Context
	// localSizeHint is updated after each block's merge from that context's
	// dictionary growth, used to size the next block's local hash table
	// (spec §4.3 "sized from an estimate of distinct values per block
	// derived from the prior block's dictionary growth").
	localSizeHint map[fingerprint.ID]int
}

// NewContexts creates an empty registry.
func NewContexts() *Contexts {
	return &Contexts{
		byFP:          make(map[fingerprint.ID]*context.Context),
		localSizeHint: make(map[fingerprint.ID]int),
	}
}

// Get returns (creating if necessary) the Context for name/category/flags.
// Flags are only consulted the first time a field is seen; later calls with
// differing flags are a programming error (a field's shape does not change
// within one data type) and are ignored.
func (c *Contexts) Get(name string, cat fingerprint.Category, flags context.Flags) *context.Context {
	fp := fingerprint.New(name, cat)
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx, ok := c.byFP[fp]; ok {
		return ctx
	}
	ctx := context.New(fp, flags)
	c.byFP[fp] = ctx
	return ctx
}

// All returns every context created so far, for dictionary-fragment flush
// and footer bookkeeping.
func (c *Contexts) All() []*context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*context.Context, 0, len(c.byFP))
	for _, ctx := range c.byFP {
		out = append(out, ctx)
	}
	return out
}

// LocalSizeHint returns the suggested local-hash-table size for fp's next
// block, from the previous block's dictionary growth (bootstrapped to a
// constant, per spec §4.3).
func (c *Contexts) LocalSizeHint(fp fingerprint.ID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.localSizeHint[fp]; ok {
		return n
	}
	return 64
}

// RecordGrowth updates the size hint for fp after a block's merge from the
// number of genuinely new dictionary entries it contributed.
func (c *Contexts) RecordGrowth(fp fingerprint.ID, grew int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.localSizeHint[fp] = grew + grew/2 + 8
}
