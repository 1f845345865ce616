// Package context implements the per-field context: the dictionary,
// hash tables, b250 stream and local stream that together model every value
// ever seen for one logical field (spec §3 "Context", §4.2 "Context
// operations", §4.3 "Hash tables").
//
// Grounded on grailbio-bio's fieldio Writer/Reader (per-field buffering,
// delta encoding of coordinates and strings, reset-for-reuse scratch
// buffers) generalized from a fixed sam.Record field set to an arbitrary,
// dynamically-discovered field set keyed by fingerprint.ID.
package context

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/gtcio/gtc/internal/fingerprint"
	"github.com/gtcio/gtc/internal/varint"
)

// LType describes how a context's local stream is typed.
type LType uint8

const (
	LTypeNone LType = iota
	LTypeText
	LTypeInt8
	LTypeUint8
	LTypeInt16
	LTypeUint16
	LTypeInt32
	LTypeUint32
	LTypeInt64
	LTypeSequence
)

// Flags configure how a Context behaves, per spec §3.
type Flags struct {
	// NoSingletons disables externalizing rare singleton values into the
	// local stream; required for random-access key contexts (chromosome,
	// position) so that dictionary indices stay stable across reads.
	NoSingletons bool
	// StoreValue marks a numeric, delta-encoded context (POS, START). No
	// code reads the flag: BlockWriter and BlockReader keep a last value
	// for every context whether or not it is set.
	StoreValue bool
	// LocalLType selects the local stream's payload type.
	LocalLType LType
	// AllowOneUp enables the b250 one-up shortcut. It is forced off for
	// genotype-data contexts: spec §9 notes their b250 stream is later
	// re-partitioned by sample and can no longer be read sequentially, which
	// the one-up shortcut depends on.
	AllowOneUp bool
}

type dictEntry struct {
	offset uint32
	length uint32
}

// Context is the archive-wide aggregation for one field. A single instance
// is shared, via a dense pool index (the "opaque handle" of Design Notes §9),
// across every block that has seen the field; all mutation funnels through
// mu so that concurrent workers can merge safely.
type Context struct {
	Fingerprint fingerprint.ID
	Name        string
	Flags       Flags

	mu          sync.RWMutex
	dictBytes   []byte
	dictEntries []dictEntry
	global      *table
	touched     bool // true once the first block has merged into this context
	degraded    bool // true once a pathological collision chain was detected

	// flushedEntries is the count of dictEntries already written to a
	// dictionary-fragment section; MergeInto only ever appends past it.
	flushedEntries int
}

// New creates an empty context for fingerprint fp.
func New(fp fingerprint.ID, flags Flags) *Context {
	return &Context{
		Fingerprint: fp,
		Name:        fp.Name(),
		Flags:       flags,
		global:      newTable(1024, defaultChainCap),
	}
}

// Degraded reports whether this context suffered a pathological collision
// chain and fell back to append-only, non-deduplicated storage (spec §4.2).
func (c *Context) Degraded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.degraded
}

// DictLen returns the number of distinct values currently in the dictionary.
func (c *Context) DictLen() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.dictEntries)
}

// Value returns the dictionary string stored at global index idx.
func (c *Context) Value(idx uint32) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if int(idx) >= len(c.dictEntries) {
		return nil, fmt.Errorf("context %s: b250 index %d has no dictionary entry (dict has %d)", c.Name, idx, len(c.dictEntries))
	}
	e := c.dictEntries[idx]
	return c.dictBytes[e.offset : e.offset+e.length], nil
}

func (c *Context) dictEqual(idx uint32, value []byte) bool {
	e := c.dictEntries[idx]
	return string(c.dictBytes[e.offset:e.offset+e.length]) == string(value)
}

// Intern immediately resolves value to a final global dictionary index,
// bypassing the block-private local staging/merge-later path. It is used
// for random-access-key contexts (chromosome-like fields) where the decoder
// needs a stable index at the moment a random-access entry is recorded,
// rather than deferred until the block's batched merge (spec §3 "For any
// field designated as a random-access key... no_singletons holds so that
// indices are stable across reads"). The one-time first-block
// frequency-sort optimization of §4.2 is intentionally skipped here: it
// matters for large dictionaries, and random-access keys (a handful of
// chromosome names) are not one.
func (c *Context) Intern(value []byte) (uint32, error) {
	h := xxhash.Sum64(value)
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx, found, chainExceeded := c.global.Lookup(h, func(idx uint32) bool { return c.dictEqual(idx, value) }); found {
		return idx, nil
	} else if chainExceeded {
		c.degraded = true
	}
	idx, err := c.appendLocked(value)
	if err != nil {
		return 0, err
	}
	c.global.Insert(h, idx)
	c.touched = true
	return idx, nil
}

// appendLocked appends value to the dictionary and returns its new global
// index. Caller must hold c.mu for writing.
func (c *Context) appendLocked(value []byte) (uint32, error) {
	if uint64(len(c.dictBytes))+uint64(len(value)) > 1<<32 {
		return 0, fmt.Errorf("context %s: dictionary exceeds 4GiB", c.Name)
	}
	idx := uint32(len(c.dictEntries))
	off := uint32(len(c.dictBytes))
	c.dictBytes = append(c.dictBytes, value...)
	c.dictEntries = append(c.dictEntries, dictEntry{offset: off, length: uint32(len(value))})
	return idx, nil
}

// DictionaryFragment returns the dictionary values appended since the last
// MarkFlushed, in index order, for persisting as a dictionary fragment
// section when the archive is closed (spec §4.7).
func (c *Context) DictionaryFragment() (values [][]byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := c.flushedEntries; i < len(c.dictEntries); i++ {
		e := c.dictEntries[i]
		values = append(values, c.dictBytes[e.offset:e.offset+e.length])
	}
	return values
}

// MarkFlushed records that every dictionary entry up to the current length
// has been durably written.
func (c *Context) MarkFlushed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushedEntries = len(c.dictEntries)
}

// LoadDictionary appends previously-persisted dictionary fragment values
// in order, used when decoding to repopulate a context before any block is
// read.
func (c *Context) LoadDictionary(values [][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range values {
		idx := uint32(len(c.dictEntries))
		off := uint32(len(c.dictBytes))
		c.dictBytes = append(c.dictBytes, v...)
		c.dictEntries = append(c.dictEntries, dictEntry{offset: off, length: uint32(len(v))})
		h := xxhash.Sum64(v)
		c.global.Insert(h, idx)
	}
	c.flushedEntries = len(c.dictEntries)
	c.touched = true
}
