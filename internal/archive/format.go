// Package archive implements the archive manager: file-header/footer,
// per-component boundaries, and the section-traversal state machines that
// drive compression and decode (spec §4.11 "Archive manager").
package archive

import (
	"encoding/binary"
	"fmt"

	"github.com/gtcio/gtc/internal/codec"
	"github.com/gtcio/gtc/internal/fingerprint"
	"github.com/gtcio/gtc/internal/section"
)

// FormatVersion is bumped whenever the on-disk layout changes in a way that
// breaks compatibility (spec §4.11, §7 "Unsupported format version").
const FormatVersion = 1

// codecFor assigns each section type the codec best suited to its payload
// shape (spec §4.6): Brotli for dictionary-like content (short, highly
// repetitive strings), LZ4 for bulk sequence/quality local streams where
// decode speed dominates, Zstd elsewhere.
func codecFor(t section.Type) codec.Tag {
	switch t {
	case section.TypeContextB250, section.TypeDictFragment:
		return codec.Brotli
	case section.TypeContextLocal:
		return codec.LZ4
	default:
		return codec.Zstd
	}
}

func putString(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, s...)
}

func getString(buf []byte) (s string, rest []byte, err error) {
	if len(buf) < 4 {
		return "", nil, fmt.Errorf("archive: truncated string length")
	}
	n := binary.LittleEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint64(len(buf)) < uint64(n) {
		return "", nil, fmt.Errorf("archive: truncated string body")
	}
	return string(buf[:n]), buf[n:], nil
}

func putBytes(buf []byte, b []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, b...)
}

func getBytes(buf []byte) (b []byte, rest []byte, err error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("archive: truncated bytes length")
	}
	n := binary.LittleEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint64(len(buf)) < uint64(n) {
		return nil, nil, fmt.Errorf("archive: truncated bytes body")
	}
	return buf[:n], buf[n:], nil
}

// fileHeaderBody is the FileHeader section body: format version, and (when
// the archive is encrypted) the salt used to derive the AEAD key from the
// user's password. This section is always written and read in the clear
// (spec §4.7 "a nonce derived from... the decoder's encryption self-test
// relies on reading [the magic] in the clear").
type fileHeaderBody struct {
	version   uint32
	encrypted bool
	salt      []byte
}

func encodeFileHeader(b fileHeaderBody) []byte {
	buf := make([]byte, 0, 32)
	var vbuf [4]byte
	binary.LittleEndian.PutUint32(vbuf[:], b.version)
	buf = append(buf, vbuf[:]...)
	if b.encrypted {
		buf = append(buf, 1)
		buf = putBytes(buf, b.salt)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func decodeFileHeader(buf []byte) (fileHeaderBody, error) {
	if len(buf) < 5 {
		return fileHeaderBody{}, fmt.Errorf("archive: truncated file header")
	}
	var b fileHeaderBody
	b.version = binary.LittleEndian.Uint32(buf[:4])
	buf = buf[4:]
	b.encrypted = buf[0] == 1
	buf = buf[1:]
	if b.encrypted {
		salt, _, err := getBytes(buf)
		if err != nil {
			return fileHeaderBody{}, err
		}
		b.salt = salt
	}
	return b, nil
}

// componentHeaderBody is the ComponentHeader section body: the data type
// this component was segmented with, whether its lines are CRLF-terminated,
// and any pass-through header text from the original input (VCF meta-lines,
// a SAM header, etc.) that precedes the first data row (spec §3 "Archive").
type componentHeaderBody struct {
	dataType   string
	crlf       bool
	headerText []byte
}

func encodeComponentHeader(b componentHeaderBody) []byte {
	buf := make([]byte, 0, 64+len(b.headerText))
	buf = putString(buf, b.dataType)
	if b.crlf {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = putBytes(buf, b.headerText)
	return buf
}

func decodeComponentHeader(buf []byte) (componentHeaderBody, error) {
	dt, rest, err := getString(buf)
	if err != nil {
		return componentHeaderBody{}, err
	}
	if len(rest) < 1 {
		return componentHeaderBody{}, fmt.Errorf("archive: truncated component header")
	}
	crlf := rest[0] == 1
	rest = rest[1:]
	ht, _, err := getBytes(rest)
	if err != nil {
		return componentHeaderBody{}, err
	}
	return componentHeaderBody{dataType: dt, crlf: crlf, headerText: ht}, nil
}

// blockHeaderBody is the VB-header section body (spec §4.7 "a VB-header
// section carrying line count, uncompressed size, longest line length, and
// per-context presence bitmap").
type blockHeaderBody struct {
	lineCount       uint32
	recordCount     uint32
	uncompSize      uint32
	longestLine     uint32
	finalLineNoTerm bool // true only for a block ending the component with no trailing terminator
	present         []fingerprint.ID // contexts with a stream in this block
}

func encodeBlockHeader(b blockHeaderBody) []byte {
	buf := make([]byte, 0, 24+len(b.present)*8)
	var head [21]byte
	binary.LittleEndian.PutUint32(head[0:4], b.lineCount)
	binary.LittleEndian.PutUint32(head[4:8], b.recordCount)
	binary.LittleEndian.PutUint32(head[8:12], b.uncompSize)
	binary.LittleEndian.PutUint32(head[12:16], b.longestLine)
	if b.finalLineNoTerm {
		head[16] = 1
	}
	binary.LittleEndian.PutUint32(head[17:21], uint32(len(b.present)))
	buf = append(buf, head[:]...)
	for _, fp := range b.present {
		buf = append(buf, fp[:]...)
	}
	return buf
}

func decodeBlockHeader(buf []byte) (blockHeaderBody, error) {
	if len(buf) < 21 {
		return blockHeaderBody{}, fmt.Errorf("archive: truncated block header")
	}
	var b blockHeaderBody
	b.lineCount = binary.LittleEndian.Uint32(buf[0:4])
	b.recordCount = binary.LittleEndian.Uint32(buf[4:8])
	b.uncompSize = binary.LittleEndian.Uint32(buf[8:12])
	b.longestLine = binary.LittleEndian.Uint32(buf[12:16])
	b.finalLineNoTerm = buf[16] == 1
	n := binary.LittleEndian.Uint32(buf[17:21])
	buf = buf[21:]
	if uint64(len(buf)) < uint64(n)*8 {
		return blockHeaderBody{}, fmt.Errorf("archive: truncated block header presence list")
	}
	b.present = make([]fingerprint.ID, n)
	for i := range b.present {
		copy(b.present[i][:], buf[i*8:i*8+8])
	}
	return b, nil
}

// encodeLocalInts zigzag-varint encodes a local integer stream; codec
// compression afterward benefits from the smaller, self-delimiting byte
// stream this produces for the small deltas local int streams typically
// carry (spec §4.2 "local byte/int streams").
func encodeLocalInts(vals []int64) []byte {
	buf := make([]byte, 0, len(vals)*2)
	var scratch [binary.MaxVarintLen64]byte
	for _, v := range vals {
		n := binary.PutVarint(scratch[:], v)
		buf = append(buf, scratch[:n]...)
	}
	return buf
}

func decodeLocalInts(buf []byte, n int) ([]int64, error) {
	out := make([]int64, 0, n)
	for len(buf) > 0 && len(out) < n {
		v, sz := binary.Varint(buf)
		if sz <= 0 {
			return nil, fmt.Errorf("archive: corrupt local int stream")
		}
		out = append(out, v)
		buf = buf[sz:]
	}
	if len(out) != n {
		return nil, fmt.Errorf("archive: local int stream short: got %d want %d", len(out), n)
	}
	return out, nil
}

// encodeDictFragment serializes the dictionary values appended to a context
// since its last flush as a run of length-prefixed strings (spec §4.7
// "dictionary-fragment section... a run of length-prefixed dictionary
// values").
func encodeDictFragment(values [][]byte) []byte {
	buf := make([]byte, 0, 64*len(values))
	for _, v := range values {
		buf = putBytes(buf, v)
	}
	return buf
}

func decodeDictFragment(body []byte) ([][]byte, error) {
	var values [][]byte
	for len(body) > 0 {
		v, rest, err := getBytes(body)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		body = rest
	}
	return values, nil
}

// footerBody is the final Footer section body: per-component and
// whole-archive digests, original sizes, and the section list (spec §3
// "The footer carries: original uncompressed sizes, running digests...
// section list offsets, file-format version").
type footerBody struct {
	version       uint32
	archiveDigest [32]byte
	components    []componentDigest
	sections      []sectionListEntry
}

type componentDigest struct {
	name       string
	origSize   uint64
	digest     [32]byte
}

type sectionListEntry struct {
	typ        section.Type
	offset     uint64
	length     uint64
	blockIndex uint32
	secID      uint16
	fp         fingerprint.ID
}

// trailerMagic and trailerLen describe the fixed trailer written after the
// footer section, so a reader can locate the footer by seeking to the end
// without first scanning the whole archive (spec §4.11 "section list
// offsets"). Grounded on the Parquet/ORC convention of a small fixed-size
// pointer at true EOF, generalized here to a single (offset, magic) pair
// since this format has exactly one footer, not a thrift-encoded schema.
const (
	trailerMagic = uint32(0x67746366) // "gtcf"
	trailerLen   = 8 + 4
)

func encodeFooter(b footerBody) []byte {
	buf := make([]byte, 0, 256)
	var vbuf [4]byte
	binary.LittleEndian.PutUint32(vbuf[:], b.version)
	buf = append(buf, vbuf[:]...)
	buf = append(buf, b.archiveDigest[:]...)

	var nComp [4]byte
	binary.LittleEndian.PutUint32(nComp[:], uint32(len(b.components)))
	buf = append(buf, nComp[:]...)
	for _, c := range b.components {
		buf = putString(buf, c.name)
		var sz [8]byte
		binary.LittleEndian.PutUint64(sz[:], c.origSize)
		buf = append(buf, sz[:]...)
		buf = append(buf, c.digest[:]...)
	}

	var nSec [4]byte
	binary.LittleEndian.PutUint32(nSec[:], uint32(len(b.sections)))
	buf = append(buf, nSec[:]...)
	for _, s := range b.sections {
		var entry [2 + 8 + 8 + 4 + 2 + 8]byte
		binary.LittleEndian.PutUint16(entry[0:2], uint16(s.typ))
		binary.LittleEndian.PutUint64(entry[2:10], s.offset)
		binary.LittleEndian.PutUint64(entry[10:18], s.length)
		binary.LittleEndian.PutUint32(entry[18:22], s.blockIndex)
		binary.LittleEndian.PutUint16(entry[22:24], s.secID)
		copy(entry[24:32], s.fp[:])
		buf = append(buf, entry[:]...)
	}
	return buf
}

func decodeFooter(buf []byte) (footerBody, error) {
	var b footerBody
	if len(buf) < 4+32+4 {
		return b, fmt.Errorf("archive: truncated footer")
	}
	b.version = binary.LittleEndian.Uint32(buf[0:4])
	copy(b.archiveDigest[:], buf[4:36])
	buf = buf[36:]

	nComp := binary.LittleEndian.Uint32(buf[0:4])
	buf = buf[4:]
	b.components = make([]componentDigest, nComp)
	for i := range b.components {
		name, rest, err := getString(buf)
		if err != nil {
			return footerBody{}, err
		}
		if len(rest) < 8+32 {
			return footerBody{}, fmt.Errorf("archive: truncated footer component entry")
		}
		origSize := binary.LittleEndian.Uint64(rest[:8])
		var dg [32]byte
		copy(dg[:], rest[8:40])
		b.components[i] = componentDigest{name: name, origSize: origSize, digest: dg}
		buf = rest[40:]
	}

	if len(buf) < 4 {
		return footerBody{}, fmt.Errorf("archive: truncated footer section list header")
	}
	nSec := binary.LittleEndian.Uint32(buf[0:4])
	buf = buf[4:]
	const entryLen = 2 + 8 + 8 + 4 + 2 + 8
	b.sections = make([]sectionListEntry, nSec)
	for i := range b.sections {
		if len(buf) < entryLen {
			return footerBody{}, fmt.Errorf("archive: truncated footer section entry")
		}
		e := buf[:entryLen]
		var fp fingerprint.ID
		copy(fp[:], e[24:32])
		b.sections[i] = sectionListEntry{
			typ:        section.Type(binary.LittleEndian.Uint16(e[0:2])),
			offset:     binary.LittleEndian.Uint64(e[2:10]),
			length:     binary.LittleEndian.Uint64(e[10:18]),
			blockIndex: binary.LittleEndian.Uint32(e[18:22]),
			secID:      binary.LittleEndian.Uint16(e[22:24]),
			fp:         fp,
		}
		buf = buf[entryLen:]
	}
	return b, nil
}
