// Package section implements bit-exact serialization of the typed,
// length-prefixed units that make up an archive on disk (spec §4.7
// "Section I/O").
package section

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gtcio/gtc/internal/codec"
)

// Magic is the fixed 4-byte value that opens every section. It is never
// encrypted (the decoder's encryption self-test relies on reading it in the
// clear, per spec §4.7 and §8 scenario 6).
const Magic = uint32(0x67746301) // "gtc" + format byte

// HeaderLen is the fixed, bit-exact on-disk length of a Header, matching the
// layout given in spec §6:
//
//	magic:u32 | section_type:u16 | flags:u16 |
//	comp_len:u32 | uncomp_len:u32 | codec:u8 | reserved:u8 |
//	vblock_index:u32 | section_in_vblock_index:u16 | reserved2:u16
const HeaderLen = 4 + 2 + 2 + 4 + 4 + 1 + 1 + 4 + 2 + 2

// Header is the fixed-layout prefix of every section.
type Header struct {
	Type             Type
	Flags            Flag
	CompLen          uint32
	UncompLen        uint32
	Codec            codec.Tag
	BlockIndex       uint32
	SectionInBlockID uint16
}

// Encode writes h in its bit-exact on-disk layout, little-endian throughout
// (spec §6: "Little-endian throughout except for b250 encoded integers").
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderLen)
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(h.Type))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(h.Flags))
	binary.LittleEndian.PutUint32(buf[8:12], h.CompLen)
	binary.LittleEndian.PutUint32(buf[12:16], h.UncompLen)
	buf[16] = byte(h.Codec)
	buf[17] = 0
	binary.LittleEndian.PutUint32(buf[18:22], h.BlockIndex)
	binary.LittleEndian.PutUint16(buf[22:24], h.SectionInBlockID)
	binary.LittleEndian.PutUint16(buf[24:26], 0)
	return buf
}

// DecodeHeader parses a Header from the first HeaderLen bytes of buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, fmt.Errorf("section: short header: %d bytes", len(buf))
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != Magic {
		return Header{}, fmt.Errorf("%w: got %#x", ErrBadMagic, magic)
	}
	return Header{
		Type:             Type(binary.LittleEndian.Uint16(buf[4:6])),
		Flags:            Flag(binary.LittleEndian.Uint16(buf[6:8])),
		CompLen:          binary.LittleEndian.Uint32(buf[8:12]),
		UncompLen:        binary.LittleEndian.Uint32(buf[12:16]),
		Codec:            codec.Tag(buf[16]),
		BlockIndex:       binary.LittleEndian.Uint32(buf[18:22]),
		SectionInBlockID: binary.LittleEndian.Uint16(buf[22:24]),
	}, nil
}

// ErrBadMagic is returned when a section's magic number does not match,
// i.e. the bytes read are not the start of a section (a corrupt or
// truncated file, or not an archive at all). The magic is never encrypted,
// so a missing or wrong password never produces this error.
var ErrBadMagic = fmt.Errorf("section: bad magic number")

// ReadFull is a small helper matching io.ReadFull's contract but named for
// call-site clarity in this package's readers.
func ReadFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}
