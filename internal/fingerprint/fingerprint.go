// Package fingerprint implements the value-fingerprint identifiers used as
// map keys throughout the context model (spec §3 "Value fingerprint").
package fingerprint

import "strings"

// Category is encoded in the two high bits of an ID's first byte.
type Category uint8

const (
	// Primary identifies a top-level field of a data type (e.g. CHROM, POS).
	Primary Category = 0
	// Subfield1 identifies a type-1 subfield (e.g. an INFO key, a FORMAT key).
	Subfield1 Category = 1
	// Subfield2 identifies a type-2 subfield (a subfield of a subfield, used
	// for compound templates nested inside info-style fields).
	Subfield2 Category = 2
)

const (
	maxNameLen  = 8
	categoryBit = 6 // top two bits of byte 0
)

// ID is an opaque 8-byte fingerprint, stable across files, usable as a map
// key and safe to persist on disk (it IS the on-disk context identifier).
type ID [maxNameLen]byte

// New derives a fingerprint from a short field name. Names longer than 8
// bytes are truncated; shorter names are zero-padded. The category is
// stamped into the two high bits of the first byte, matching spec §3. Bit 6
// of the first name byte, which the category overwrites, is kept in the high
// bit of the last byte (always clear in an ASCII name) so Name can restore it.
func New(name string, cat Category) ID {
	var id ID
	n := copy(id[:], name)
	_ = n
	id[maxNameLen-1] |= (id[0] & 0x40) << 1
	id[0] &^= 0xc0
	id[0] |= byte(cat) << categoryBit
	return id
}

// Category extracts the category bits stamped by New.
func (id ID) Category() Category {
	return Category(id[0] >> categoryBit)
}

// Name recovers the zero-padding-stripped name used to construct id. The
// category bits are masked out of the first byte and its bit 6 is restored
// from the high bit of the last byte, so any ASCII name comes back exactly.
func (id ID) Name() string {
	tmp := id
	tmp[0] = tmp[0]&^0xc0 | (tmp[maxNameLen-1]&0x80)>>1
	tmp[maxNameLen-1] &^= 0x80
	return strings.TrimRight(string(tmp[:]), "\x00")
}

// String implements fmt.Stringer for diagnostics.
func (id ID) String() string {
	return id.Name()
}
