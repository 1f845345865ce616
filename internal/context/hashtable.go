package context

// table is the open-addressing hash table described in spec §4.3: power-of-
// two sized, double hashing for reprobing, storing only a 64-bit value hash
// and a dense index — equality on collision is delegated to the caller
// (it must read the dictionary bytes at the candidate index).
//
// A table is used both as the archive-wide global table (guarded externally
// by Context.mu, single-writer/multiple-reader) and as a block-private local
// table (no locking: only the owning goroutine touches it).
type table struct {
	slots []tableSlot
	count int
	// chainCap bounds how many slots a single probe sequence may visit
	// before the table is declared pathological (spec §4.2 "hash collision
	// chains exceeding a hard cap").
	chainCap int
	// maxChainSeen records the longest probe chain observed, for diagnostics.
	maxChainSeen int
}

type tableSlot struct {
	used bool
	hash uint64
	idx  uint32
}

const defaultChainCap = 64

func newTable(sizeHint int, chainCap int) *table {
	n := 8
	for n < sizeHint*2 {
		n <<= 1
	}
	if chainCap <= 0 {
		chainCap = defaultChainCap
	}
	return &table{slots: make([]tableSlot, n), chainCap: chainCap}
}

func (t *table) mask() uint64 { return uint64(len(t.slots) - 1) }

// step returns the reprobe stride for hash, taken from its upper 32 bits
// (forced odd); probing starts at hash & mask and advances by this stride,
// per spec "reprobing uses a secondary hash to avoid clustering".
func (t *table) step(hash uint64) uint64 {
	s := (hash >> 32) | 1
	return s
}

// Lookup searches for hash, calling equal(idx) to disambiguate collisions.
// It reports whether the probe chain exceeded the hard cap (pathological
// input) alongside the normal found/not-found result.
func (t *table) Lookup(hash uint64, equal func(idx uint32) bool) (idx uint32, found bool, chainExceeded bool) {
	pos := hash & t.mask()
	step := t.step(hash)
	for i := 0; i <= t.chainCap; i++ {
		slot := &t.slots[pos]
		if !slot.used {
			return 0, false, false
		}
		if slot.hash == hash && equal(slot.idx) {
			return slot.idx, true, false
		}
		pos = (pos + step) & t.mask()
	}
	return 0, false, true
}

// Insert records hash -> idx, growing the table first if the load factor
// would exceed 0.7.
func (t *table) Insert(hash uint64, idx uint32) {
	if t.count+1 > (len(t.slots)*7)/10 {
		t.grow()
	}
	pos := hash & t.mask()
	step := t.step(hash)
	for {
		slot := &t.slots[pos]
		if !slot.used {
			slot.used = true
			slot.hash = hash
			slot.idx = idx
			t.count++
			return
		}
		pos = (pos + step) & t.mask()
	}
}

func (t *table) grow() {
	old := t.slots
	t.slots = make([]tableSlot, len(old)*2)
	t.count = 0
	for _, s := range old {
		if s.used {
			t.Insert(s.hash, s.idx)
		}
	}
}
