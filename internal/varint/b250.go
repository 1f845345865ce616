// Package varint implements the b250 variable-length numeric encoding used
// for every reference a context makes into its dictionary (spec §3, §9
// "variable-length b250 encoding: keep as a first-class numeric codec
// module").
//
// Reserved escape codes (the first byte of an encoded reference):
//
//	0..249      literal dictionary index, one byte, no escape.
//	250 OneUp   index is the previous index written to this stream, plus one.
//	251 Missing the subfield is absent entirely (distinct from empty).
//	252 Empty   the subfield is present but has an empty value.
//	253 Esc16   next 2 bytes (big-endian) hold index-250.
//	254 Esc24   next 3 bytes (big-endian) hold index-250-0xffff.
//	255 Esc32   next 4 bytes (big-endian) hold the index directly.
package varint

import (
	"encoding/binary"
	"fmt"
)

const (
	literalMax = 249

	OneUp   = 250
	Missing = 251
	Empty   = 252
	esc16   = 253
	esc24   = 254
	esc32   = 255
)

// IndexMissing and IndexEmpty are the indices Decode returns for the
// Missing and Empty codes; they are never valid dictionary indices.
const (
	IndexMissing = ^uint32(0)
	IndexEmpty   = ^uint32(0) - 1
)

// MaxEncodedLen is the widest a single reference can ever be (spec §4.2:
// "b250 overflow beyond 5 bytes is fatal").
const MaxEncodedLen = 5

// AppendIndex appends the encoding of index (given the previous index
// written to this stream, or -1 if none) to dst, applying the OneUp
// shortcut when allowed and applicable. It returns the extended slice.
func AppendIndex(dst []byte, index uint32, prev int64, oneUpAllowed bool) []byte {
	if oneUpAllowed && prev >= 0 && index == uint32(prev)+1 {
		return append(dst, OneUp)
	}
	return appendLiteral(dst, index)
}

// AppendMissing appends the reserved "subfield is absent" code.
func AppendMissing(dst []byte) []byte { return append(dst, Missing) }

// AppendEmpty appends the reserved "subfield is present but empty" code.
func AppendEmpty(dst []byte) []byte { return append(dst, Empty) }

func appendLiteral(dst []byte, index uint32) []byte {
	switch {
	case index <= literalMax:
		return append(dst, byte(index))
	case index <= literalMax+0xffff:
		v := index - (literalMax + 1)
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(v))
		return append(dst, esc16, b[0], b[1])
	case index <= literalMax+0xffff+0xffffff:
		v := index - (literalMax + 1) - 0xffff
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		return append(dst, esc24, b[1], b[2], b[3])
	default:
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], index)
		return append(dst, esc32, b[0], b[1], b[2], b[3])
	}
}

// Decode reads one encoded reference from src (which must start at the
// reference's first byte) given the previous decoded index (or -1). It
// returns the resolved index (or IndexMissing/IndexEmpty), the number of
// bytes consumed, and an error if src is truncated or the escape code is
// unrecognized.
func Decode(src []byte, prev int64) (index uint32, n int, err error) {
	if len(src) == 0 {
		return 0, 0, fmt.Errorf("varint: empty b250 stream")
	}
	b0 := src[0]
	switch {
	case b0 <= literalMax:
		return uint32(b0), 1, nil
	case b0 == OneUp:
		if prev < 0 {
			return 0, 0, fmt.Errorf("varint: one-up with no previous index")
		}
		return uint32(prev) + 1, 1, nil
	case b0 == Missing:
		return IndexMissing, 1, nil
	case b0 == Empty:
		return IndexEmpty, 1, nil
	case b0 == esc16:
		if len(src) < 3 {
			return 0, 0, fmt.Errorf("varint: truncated esc16 reference")
		}
		v := binary.BigEndian.Uint16(src[1:3])
		return literalMax + 1 + uint32(v), 3, nil
	case b0 == esc24:
		if len(src) < 4 {
			return 0, 0, fmt.Errorf("varint: truncated esc24 reference")
		}
		v := uint32(src[1])<<16 | uint32(src[2])<<8 | uint32(src[3])
		return literalMax + 1 + 0xffff + v, 4, nil
	case b0 == esc32:
		if len(src) < 5 {
			return 0, 0, fmt.Errorf("varint: truncated esc32 reference")
		}
		return binary.BigEndian.Uint32(src[1:5]), 5, nil
	default:
		return 0, 0, fmt.Errorf("varint: unreachable escape code %d", b0)
	}
}
