// Package digest implements the running cryptographic checksum used to
// verify round-trip integrity (spec §4.10). It is fed bytes in read order on
// the compress side and in write order on the decompress side; it never
// sees bytes the decoder chose not to emit (filtered-out rows).
package digest

import "golang.org/x/crypto/blake2b"

// Running is an incremental digest over a byte stream. Each Archive and each
// Component owns its own instance (spec §3 "running digests per-component
// and whole-archive").
type Running struct {
	h [32]byte // placeholder zero value before first Write; hash.Hash is stateful below
	state interface {
		Write(p []byte) (int, error)
		Sum(b []byte) []byte
	}
}

// New creates a fresh running digest.
func New() *Running {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only errors for bad keyed-mode key lengths; nil key
		// is always valid, so this is unreachable.
		panic(err)
	}
	return &Running{state: h}
}

// Write feeds bytes into the digest. It never returns an error (matches
// hash.Hash's Write contract).
func (r *Running) Write(p []byte) {
	_, _ = r.state.Write(p)
}

// Sum returns the current digest value.
func (r *Running) Sum() [32]byte {
	var out [32]byte
	copy(out[:], r.state.Sum(nil))
	return out
}
