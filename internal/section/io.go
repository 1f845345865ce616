package section

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gtcio/gtc/internal/codec"
)

// SubHeaderLen returns the fixed size of the type-specific sub-header that
// follows a Header, per spec §4.7 ("a type-specific sub-header, e.g. context
// sections carry a fingerprint and a local-type tag"). Every other section
// type carries its metadata in its (self-describing) body instead.
func SubHeaderLen(t Type) int {
	switch t {
	case TypeContextB250, TypeContextLocal:
		return 9 // 8-byte fingerprint + 1-byte local-type tag
	case TypeDictFragment:
		return 8 // 8-byte fingerprint
	default:
		return 0
	}
}

// Identity is the (type, block, section-in-block) triple a nonce is derived
// from. The caller supplies it when reading an encrypted section, since the
// header itself — which would normally carry these fields — is part of the
// ciphertext.
type Identity struct {
	Type             Type
	BlockIndex       uint32
	SectionInBlockID uint16
}

// Write serializes one section: magic (always in the clear, for stream
// resynchronization), then the header/sub-header/compressed-body, optionally
// sealed as a single AEAD ciphertext when key is non-nil.
func Write(w io.Writer, h Header, subHeader []byte, rawBody []byte, key []byte) error {
	compBody, err := codec.Compress(h.Codec, rawBody)
	if err != nil {
		return fmt.Errorf("section: compress %s: %w", h.Type, err)
	}
	h.CompLen = uint32(len(compBody))
	h.UncompLen = uint32(len(rawBody))

	var magic [4]byte
	binary.LittleEndian.PutUint32(magic[:], Magic)
	if _, err := w.Write(magic[:]); err != nil {
		return fmt.Errorf("section: write magic: %w", err)
	}

	headerAfterMagic := h.Encode()[4:]
	plain := make([]byte, 0, len(headerAfterMagic)+len(subHeader)+len(compBody))
	plain = append(plain, headerAfterMagic...)
	plain = append(plain, subHeader...)
	plain = append(plain, compBody...)

	if key != nil {
		h.Flags |= FlagEncrypted
		// h.Encode() above didn't know about FlagEncrypted yet; patch it into
		// the plaintext we're about to seal.
		binary.LittleEndian.PutUint16(plain[2:4], uint16(h.Flags))
		sealed, err := Encrypt(key, h, plain)
		if err != nil {
			return fmt.Errorf("section: encrypt %s: %w", h.Type, err)
		}
		if _, err := w.Write(sealed); err != nil {
			return fmt.Errorf("section: write ciphertext: %w", err)
		}
		return nil
	}
	_, err = w.Write(plain)
	if err != nil {
		return fmt.Errorf("section: write body: %w", err)
	}
	return nil
}

// Read parses one section from r. If key is non-nil, id must identify the
// section about to be read (the archive manager always knows this from its
// own traversal order) so the correct nonce can be derived before the header
// fields themselves are available in the clear.
func Read(r io.Reader, key []byte, id Identity) (Header, []byte, []byte, error) {
	var magic [4]byte
	if err := ReadFull(r, magic[:]); err != nil {
		return Header{}, nil, nil, fmt.Errorf("section: read magic: %w", err)
	}
	if binary.LittleEndian.Uint32(magic[:]) != Magic {
		return Header{}, nil, nil, ErrBadMagic
	}

	if key != nil {
		return readEncrypted(r, key, id)
	}
	return readPlain(r)
}

func readPlain(r io.Reader) (Header, []byte, []byte, error) {
	rest := make([]byte, HeaderLen-4)
	if err := ReadFull(r, rest); err != nil {
		return Header{}, nil, nil, fmt.Errorf("section: read header: %w", err)
	}
	var full [HeaderLen]byte
	binary.LittleEndian.PutUint32(full[0:4], Magic)
	copy(full[4:], rest)
	h, err := DecodeHeader(full[:])
	if err != nil {
		return Header{}, nil, nil, err
	}
	sh := make([]byte, SubHeaderLen(h.Type))
	if err := ReadFull(r, sh); err != nil {
		return Header{}, nil, nil, fmt.Errorf("section: read sub-header: %w", err)
	}
	body := make([]byte, h.CompLen)
	if err := ReadFull(r, body); err != nil {
		return Header{}, nil, nil, fmt.Errorf("section: read body: %w", err)
	}
	return h, sh, body, nil
}

// readEncrypted reads the remainder of the stream as a single AEAD sealed
// blob. Since the plaintext length (and therefore the ciphertext length) is
// not known up front, the caller's io.Reader must be a bounded reader (the
// archive layer writes the ciphertext length in front of each sealed section
// and hands Read a reader over exactly the magic and that ciphertext).
func readEncrypted(r io.Reader, key []byte, id Identity) (Header, []byte, []byte, error) {
	sealed, err := io.ReadAll(r)
	if err != nil {
		return Header{}, nil, nil, fmt.Errorf("section: read ciphertext: %w", err)
	}
	probe := Header{Type: id.Type, BlockIndex: id.BlockIndex, SectionInBlockID: id.SectionInBlockID}
	plain, err := Decrypt(key, probe, sealed)
	if err != nil {
		return Header{}, nil, nil, err
	}
	var full [HeaderLen]byte
	binary.LittleEndian.PutUint32(full[0:4], Magic)
	copy(full[4:], plain[:HeaderLen-4])
	h, err := DecodeHeader(full[:])
	if err != nil {
		return Header{}, nil, nil, err
	}
	rest := plain[HeaderLen-4:]
	shLen := SubHeaderLen(h.Type)
	if len(rest) < shLen+int(h.CompLen) {
		return Header{}, nil, nil, fmt.Errorf("section: truncated encrypted payload")
	}
	sh := rest[:shLen]
	body := rest[shLen : shLen+int(h.CompLen)]
	return h, sh, body, nil
}
