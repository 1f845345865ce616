package segment

import (
	"bytes"

	"github.com/gtcio/gtc/internal/block"
	"github.com/gtcio/gtc/internal/raindex"
)

// Filter carries the user-requested region and identifier-substring filters,
// plus decode-time presentation options, applied at reconstruction time
// (spec §4.5).
type Filter struct {
	Regions []raindex.Region
	Grep    []byte // substring to require in an identifier line; nil disables

	// SingleLine requests that a FASTA-like sequence body be reconstructed as
	// a single unwrapped line rather than re-wrapped at its stored width
	// (spec §8 scenario 3, "single line per sequence").
	SingleLine bool
}

// MatchesRegions reports whether (chromIdx, pos) falls inside any configured
// region, or whether no region filter is active at all.
func (f *Filter) MatchesRegions(chromIdx uint32, pos uint32) bool {
	return f.MatchesInterval(chromIdx, pos, pos)
}

// MatchesInterval reports whether [start, end] overlaps any configured
// region on chromIdx, or whether no region filter is active at all. A record
// whose own span extends beyond its start position (e.g. a VCF record whose
// INFO END key reaches into the region) must be tested against its full
// span, not just its start, to match spec §8 scenario 5 ("included because
// END extends into the region").
func (f *Filter) MatchesInterval(chromIdx uint32, start, end uint32) bool {
	if f == nil || len(f.Regions) == 0 {
		return true
	}
	for _, r := range f.Regions {
		if r.ChromIndex == chromIdx && start <= r.Max && end >= r.Min {
			return true
		}
	}
	return false
}

// MatchesGrep reports whether ident contains the configured substring, or
// whether no grep filter is active at all.
func (f *Filter) MatchesGrep(ident []byte) bool {
	if f == nil || len(f.Grep) == 0 {
		return true
	}
	return bytes.Contains(ident, f.Grep)
}

// RecordCtx is the state threaded through one record's Segment/Reconstruct
// call: the block it belongs to, the archive-wide context registry, and (on
// decode) the active filters. RA tracking (spec §4.4 "Chromosome and
// position parsing updates the block's random-access entry") lives here
// because it spans records within one block.
type RecordCtx struct {
	Block     *block.Block
	Contexts  *Contexts
	LineIndex int64
	Filter    *Filter

	raOpen  bool
	raChrom uint32
	raMin   uint32
	raMax   uint32
}

// UpdatePosition folds one (chromIdx, pos) observation into the block's
// open random-access entry, closing and reopening on chromosome change
// (spec §4.4).
func (rc *RecordCtx) UpdatePosition(chromIdx uint32, pos uint32) {
	if !rc.raOpen {
		rc.raOpen = true
		rc.raChrom = chromIdx
		rc.raMin = pos
		rc.raMax = pos
		return
	}
	if chromIdx != rc.raChrom {
		rc.closeRA()
		rc.raOpen = true
		rc.raChrom = chromIdx
		rc.raMin = pos
		rc.raMax = pos
		return
	}
	if pos < rc.raMin {
		rc.raMin = pos
	}
	if pos > rc.raMax {
		rc.raMax = pos
	}
}

func (rc *RecordCtx) closeRA() {
	if !rc.raOpen {
		return
	}
	rc.Block.RAEntries = append(rc.Block.RAEntries, raindex.Entry{
		ChromIndex: rc.raChrom,
		MinPos:     rc.raMin,
		MaxPos:     rc.raMax,
		BlockIndex: uint32(rc.Block.Index),
	})
	rc.raOpen = false
}

// CloseBlock finalizes any still-open random-access entry. Called once after
// the last record of a block has been segmented.
func (rc *RecordCtx) CloseBlock() {
	rc.closeRA()
}
