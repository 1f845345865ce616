// Package buffer implements the growable byte buffers a Block hands out to
// its contexts, and the per-block arena that tracks and recycles them (spec
// §4.1 "Buffer pool & arena").
//
// Grounded on the buffer-reuse discipline in grailbio-bio's fieldio Writer
// (reset-in-place fieldWriteBuf/byteBuffer, freepool-backed reuse) adapted
// here to growable slices with geometric growth instead of a fixed pool.
package buffer

import "fmt"

const (
	growthFactor  = 1.2
	minGrowthStep = 64
	canaryLen     = 8
)

var canary = [canaryLen]byte{0xde, 0xad, 0xbe, 0xef, 0xde, 0xad, 0xbe, 0xef}

// Buffer is a growable byte buffer owned by exactly one Block at a time. It
// carries diagnostic metadata (name, owning block index) so that overflow —
// a write past the logical end that corrupts the canary — is caught at
// Release instead of silently corrupting an adjacent allocation.
type Buffer struct {
	Name        string
	BlockIndex  int64
	data        []byte
	len         int
	overflowed  bool
}

// New creates an empty buffer with the given diagnostic name.
func New(name string, blockIndex int64) *Buffer {
	return &Buffer{Name: name, BlockIndex: blockIndex}
}

// Len returns the logical length of the buffer (not its capacity).
func (b *Buffer) Len() int { return b.len }

// Bytes returns the logical contents of the buffer.
func (b *Buffer) Bytes() []byte { return b.data[:b.len] }

// Reset truncates the buffer to zero length, retaining its capacity. It is
// called when a block is recycled from the pool.
func (b *Buffer) Reset() {
	b.len = 0
	b.overflowed = false
}

// grow ensures at least n additional bytes of capacity exist past the
// logical end, growing geometrically (x1.2, minimum step 64 bytes) and
// re-planting the overflow canary after the new capacity.
func (b *Buffer) grow(n int) {
	need := b.len + n + canaryLen
	if cap(b.data) >= need {
		return
	}
	newCap := cap(b.data)
	if newCap == 0 {
		newCap = minGrowthStep
	}
	for newCap < need {
		step := int(float64(newCap) * growthFactor)
		if step-newCap < minGrowthStep {
			step = newCap + minGrowthStep
		}
		newCap = step
	}
	grown := make([]byte, b.len, newCap)
	copy(grown, b.data[:b.len])
	b.data = grown
}

// Append appends p to the buffer, growing as needed.
func (b *Buffer) Append(p []byte) {
	b.grow(len(p))
	b.data = b.data[:b.len+len(p)]
	copy(b.data[b.len:], p)
	b.len += len(p)
	b.plantCanary()
}

// AppendByte appends a single byte, growing as needed.
func (b *Buffer) AppendByte(c byte) {
	b.grow(1)
	b.data = b.data[:b.len+1]
	b.data[b.len] = c
	b.len++
	b.plantCanary()
}

func (b *Buffer) plantCanary() {
	end := b.len
	if cap(b.data) < end+canaryLen {
		return
	}
	full := b.data[:end+canaryLen]
	copy(full[end:], canary[:])
}

// CheckOverflow verifies the canary planted past the logical end has not
// been disturbed by an out-of-bounds write performed through a raw pointer
// obtained while a worker held a reference into this buffer. It is called at
// Release.
func (b *Buffer) CheckOverflow() error {
	end := b.len
	if cap(b.data) < end+canaryLen {
		return nil
	}
	full := b.data[:end+canaryLen]
	for i := 0; i < canaryLen; i++ {
		if full[end+i] != canary[i] {
			b.overflowed = true
			return fmt.Errorf("buffer %q (block %d): overflow detected past offset %d", b.Name, b.BlockIndex, end)
		}
	}
	return nil
}

// Arena owns every Buffer handed out within one Block. Buffers are never
// moved while a worker holds a pointer into them: Arena only ever appends new
// Buffer pointers, it never reallocates the registry slice in a way that
// invalidates previously returned pointers.
type Arena struct {
	blockIndex int64
	buffers    []*Buffer
}

// NewArena creates an arena for the given block index.
func NewArena(blockIndex int64) *Arena {
	return &Arena{blockIndex: blockIndex}
}

// Get returns a buffer with the given diagnostic name, allocating a new one.
// Arenas do not currently share buffers across calls with the same name:
// each field's context keeps its own buffer instance across the Block's
// lifetime and calls Reset, not Get, on recycle.
func (a *Arena) Get(name string) *Buffer {
	b := New(name, a.blockIndex)
	a.buffers = append(a.buffers, b)
	return b
}

// Adopt registers a buffer that was allocated elsewhere (typically one kept
// alive across block recycles by a context) so that Release still visits it.
func (a *Arena) Adopt(b *Buffer) {
	b.BlockIndex = a.blockIndex
	a.buffers = append(a.buffers, b)
}

// Reset rebinds the arena to a new block index, ready to Get fresh buffers.
// Release must be called first if the arena held buffers from a prior block.
func (a *Arena) Reset(blockIndex int64) {
	a.blockIndex = blockIndex
}

// Release resets every buffer in the arena to zero length (retaining
// capacity) in O(buffers), checking each for overflow first.
func (a *Arena) Release() error {
	var firstErr error
	for _, b := range a.buffers {
		if err := b.CheckOverflow(); err != nil && firstErr == nil {
			firstErr = err
		}
		b.Reset()
	}
	a.buffers = a.buffers[:0]
	return firstErr
}
