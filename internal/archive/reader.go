package archive

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gtcio/gtc/internal/block"
	"github.com/gtcio/gtc/internal/codec"
	fctx "github.com/gtcio/gtc/internal/context"
	"github.com/gtcio/gtc/internal/digest"
	"github.com/gtcio/gtc/internal/dispatch"
	"github.com/gtcio/gtc/internal/fingerprint"
	"github.com/gtcio/gtc/internal/gtcerr"
	"github.com/gtcio/gtc/internal/raindex"
	"github.com/gtcio/gtc/internal/section"
	"github.com/gtcio/gtc/internal/segment"
)

// chromContextName maps a data type to the field whose dictionary is the
// random-access key, per data type (spec §4.8 "random access is keyed by
// chromosome/contig name").
var chromContextName = map[string]string{
	"vcf":      "CHROM",
	"gff":      "SEQID",
	"genotype": "CHR",
	"sam":      "RNAME",
}

// ComponentInfo describes one decodable component without reading its data.
type ComponentInfo struct {
	Name     string
	DataType string
}

type componentGroup struct {
	header     componentHeaderBody
	name       string
	origSize   uint64
	wantDigest [32]byte
	sections   []sectionListEntry
}

type blockGroup struct {
	index   uint32
	entries []sectionListEntry // entries[0] is always the block's header section
}

// Reader is the archive-wide decompressor. Because the shared dictionary is
// flushed only once, archive-wide, at Close (spec §3 "After all components,
// one global dictionary-fragment run"), sequential streaming decode cannot
// work: a block's b250 references cannot be resolved until every dictionary
// entry referenced by any earlier-written block has been loaded, and that
// only happens after the whole file has been seen. Reader instead locates
// the footer first (the way archive/zip.NewReader or a Parquet/ORC reader
// seeks to a trailing pointer rather than scanning from byte 0), loads every
// context's dictionary up front, and only then decodes block sections —
// which its io.ReaderAt lets it do by direct offset, in any order, even in
// parallel (spec §4.11, §4.8 "Random access").
type Reader struct {
	ra          io.ReaderAt
	size        int64
	key         []byte
	concurrency int
	log         *zap.Logger

	contexts      *segment.Contexts
	archiveDigest *digest.Running
	footer        footerBody
	raEntries     []raindex.Entry

	groups []componentGroup
}

// NewReader opens an archive for reading. size is the total byte length of
// the underlying storage (spec §4.11, grounded on archive/zip.NewReader's
// io.ReaderAt+size convention, which a seekable archive format needs for the
// same reason zip does: the footer lives at the end, not the start).
// A nil logger is replaced with zap.NewNop().
func NewReader(ra io.ReaderAt, size int64, password string, concurrency int, logger *zap.Logger) (*Reader, error) {
	if concurrency <= 0 {
		concurrency = dispatch.DefaultConcurrency()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if size < int64(section.HeaderLen) {
		return nil, fmt.Errorf("archive: file too short to be a valid archive")
	}
	_, _, fhBody, err := readSectionAt(io.NewSectionReader(ra, 0, size), nil, section.Identity{Type: section.TypeFileHeader})
	if err != nil {
		if err == section.ErrBadMagic {
			return nil, fmt.Errorf("archive: %w", gtcerr.Wrap(gtcerr.Malformed, "archive", fmt.Errorf("not a gtc archive, or truncated at the very start")))
		}
		return nil, fmt.Errorf("archive: read file header: %w", err)
	}
	fh, err := decodeFileHeader(fhBody)
	if err != nil {
		return nil, err
	}

	var key []byte
	if fh.encrypted {
		if password == "" {
			return nil, fmt.Errorf("archive: %w", gtcerr.Wrap(gtcerr.Malformed, "archive", fmt.Errorf("archive is encrypted, a password is required")))
		}
		key = section.DeriveKey(password, fh.salt)
	} else if password != "" {
		logger.Warn("password supplied for an unencrypted archive; ignoring")
	}

	if size < int64(trailerLen) {
		return nil, fmt.Errorf("archive: file too short to contain a trailer")
	}
	var trailer [trailerLen]byte
	if _, err := ra.ReadAt(trailer[:], size-int64(trailerLen)); err != nil {
		return nil, fmt.Errorf("archive: read trailer: %w", err)
	}
	if binary.LittleEndian.Uint32(trailer[8:12]) != trailerMagic {
		return nil, fmt.Errorf("archive: %w", gtcerr.Wrap(gtcerr.Malformed, "archive", fmt.Errorf("bad trailer magic: file truncated or not a gtc archive")))
	}
	footerOffset := binary.LittleEndian.Uint64(trailer[0:8])
	if int64(footerOffset) >= size-int64(trailerLen) {
		return nil, fmt.Errorf("archive: trailer points outside the file")
	}

	footerSR := io.NewSectionReader(ra, int64(footerOffset), size-int64(footerOffset)-int64(trailerLen))
	_, _, footerBytes, err := readSectionAt(footerSR, key, section.Identity{Type: section.TypeFooter})
	if err != nil {
		return nil, fmt.Errorf("archive: read footer: %w", err)
	}
	footer, err := decodeFooter(footerBytes)
	if err != nil {
		return nil, fmt.Errorf("archive: decode footer: %w", err)
	}
	if footer.version != FormatVersion {
		return nil, fmt.Errorf("archive: %w: archive is format version %d, this reader supports %d",
			gtcerr.Wrap(gtcerr.Unsupported, "archive", fmt.Errorf("version mismatch")), footer.version, FormatVersion)
	}

	ar := &Reader{
		ra: ra, size: size, key: key, concurrency: concurrency, log: logger,
		contexts:      segment.NewContexts(),
		archiveDigest: digest.New(),
		footer:        footer,
	}
	if err := ar.loadDictionariesAndIndex(); err != nil {
		return nil, err
	}
	if err := ar.groupComponents(); err != nil {
		return nil, err
	}
	logger.Debug("archive opened", zap.Bool("encrypted", fh.encrypted), zap.Int("components", len(ar.groups)))
	return ar, nil
}

// readSectionAt reads one section framed by r, which must be bounded to
// exactly that section's byte span (an io.SectionReader built from the
// footer's recorded offset/length). For an encrypted archive it first peels
// off the externally-prefixed sealed-length (written by Writer.writeSection
// outside of section.Write's own framing, since that length lives inside the
// ciphertext and a reader has no other way to bound it), then reconstructs
// the magic+ciphertext shape section.Read expects.
func readSectionAt(r io.Reader, key []byte, id section.Identity) (section.Header, []byte, []byte, error) {
	var h section.Header
	var sh, body []byte
	var err error
	if key == nil {
		h, sh, body, err = section.Read(r, nil, id)
	} else {
		var magic [4]byte
		if _, ferr := io.ReadFull(r, magic[:]); ferr != nil {
			return section.Header{}, nil, nil, fmt.Errorf("archive: read section magic: %w", ferr)
		}
		var lenBuf [4]byte
		if _, ferr := io.ReadFull(r, lenBuf[:]); ferr != nil {
			return section.Header{}, nil, nil, fmt.Errorf("archive: read sealed length: %w", ferr)
		}
		sealedLen := binary.LittleEndian.Uint32(lenBuf[:])
		cipher := make([]byte, sealedLen)
		if _, ferr := io.ReadFull(r, cipher); ferr != nil {
			return section.Header{}, nil, nil, fmt.Errorf("archive: read sealed body: %w", ferr)
		}
		combined := make([]byte, 0, 4+len(cipher))
		combined = append(combined, magic[:]...)
		combined = append(combined, cipher...)
		h, sh, body, err = section.Read(bytes.NewReader(combined), key, id)
	}
	if err != nil {
		return section.Header{}, nil, nil, err
	}
	plain, err := codecDecompress(h, body)
	if err != nil {
		return section.Header{}, nil, nil, fmt.Errorf("archive: decompress %s section: %w", h.Type, err)
	}
	return h, sh, plain, nil
}

// codecDecompress inflates a section body: section.Read hands back the raw
// (still-compressed) bytes, since the section package has no opinion on
// payload shape — decompression is this package's job, same as Writer
// chooses the codec via codecFor.
func codecDecompress(h section.Header, body []byte) ([]byte, error) {
	return codec.Decompress(h.Codec, body, int(h.UncompLen))
}

func (ar *Reader) readSectionData(s sectionListEntry) (section.Header, []byte, []byte, error) {
	sr := io.NewSectionReader(ar.ra, int64(s.offset), int64(s.length))
	id := section.Identity{Type: s.typ, BlockIndex: s.blockIndex, SectionInBlockID: s.secID}
	return readSectionAt(sr, ar.key, id)
}

func (ar *Reader) loadDictionariesAndIndex() error {
	for _, s := range ar.footer.sections {
		switch s.typ {
		case section.TypeDictFragment:
			_, sh, body, err := ar.readSectionData(s)
			if err != nil {
				return fmt.Errorf("archive: read dictionary fragment: %w", err)
			}
			fp := fpOf(sh)
			values, err := decodeDictFragment(body)
			if err != nil {
				return fmt.Errorf("archive: decode dictionary fragment for %s: %w", fp.Name(), err)
			}
			ctx := ar.contexts.Get(fp.Name(), fp.Category(), fctx.Flags{})
			ctx.LoadDictionary(values)
		case section.TypeRandomAccess:
			_, _, body, err := ar.readSectionData(s)
			if err != nil {
				return fmt.Errorf("archive: read random-access index: %w", err)
			}
			entries, err := raindex.Unmarshal(body)
			if err != nil {
				return fmt.Errorf("archive: decode random-access index: %w", err)
			}
			ar.raEntries = entries
		}
	}
	return nil
}

// groupComponents walks the footer's section list (already in write order)
// and buckets every block/context section under the ComponentHeader section
// that precedes it, matching each group against the footer's per-component
// digest entry by position.
func (ar *Reader) groupComponents() error {
	var cur *componentGroup
	compIdx := 0
	for _, s := range ar.footer.sections {
		switch s.typ {
		case section.TypeFileHeader, section.TypeDictFragment, section.TypeRandomAccess, section.TypeFooter:
			continue
		case section.TypeComponentHeader:
			if cur != nil {
				ar.groups = append(ar.groups, *cur)
			}
			_, _, body, err := ar.readSectionData(s)
			if err != nil {
				return fmt.Errorf("archive: read component header: %w", err)
			}
			ch, err := decodeComponentHeader(body)
			if err != nil {
				return fmt.Errorf("archive: decode component header: %w", err)
			}
			g := &componentGroup{header: ch, name: fmt.Sprintf("component-%d", compIdx)}
			if compIdx < len(ar.footer.components) {
				c := ar.footer.components[compIdx]
				g.name, g.origSize, g.wantDigest = c.name, c.origSize, c.digest
			}
			cur = g
			compIdx++
		default:
			if cur == nil {
				return fmt.Errorf("archive: block section before any component header")
			}
			cur.sections = append(cur.sections, s)
		}
	}
	if cur != nil {
		ar.groups = append(ar.groups, *cur)
	}
	return nil
}

// groupByBlock partitions a component's sections by block index, in
// ascending order, with each group's header section first.
func groupByBlock(sections []sectionListEntry) []blockGroup {
	byIdx := make(map[uint32]*blockGroup)
	var order []uint32
	for _, s := range sections {
		bg, ok := byIdx[s.blockIndex]
		if !ok {
			bg = &blockGroup{index: s.blockIndex}
			byIdx[s.blockIndex] = bg
			order = append(order, s.blockIndex)
		}
		if s.typ == section.TypeBlockHeader {
			bg.entries = append([]sectionListEntry{s}, bg.entries...)
		} else {
			bg.entries = append(bg.entries, s)
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]blockGroup, len(order))
	for i, idx := range order {
		out[i] = *byIdx[idx]
	}
	return out
}

// Components lists every component in write order, for a caller deciding
// what to decode and in what order (spec §3 "Archive").
func (ar *Reader) Components() []ComponentInfo {
	out := make([]ComponentInfo, len(ar.groups))
	for i, g := range ar.groups {
		out[i] = ComponentInfo{Name: g.name, DataType: g.header.dataType}
	}
	return out
}

// ChromContext returns the field name whose dictionary is dataType's
// random-access key (e.g. CHROM for vcf), or false if dataType has none.
func ChromContext(dataType string) (string, bool) {
	name, ok := chromContextName[dataType]
	return name, ok
}

// ResolveChromIndex maps a chromosome/contig name to its dictionary index
// within dataType's random-access key context, by a linear scan: Context has
// no reverse name-to-index lookup, and random-access key dictionaries are a
// handful of entries, not a scale that needs one (spec §4.8).
func (ar *Reader) ResolveChromIndex(dataType string, name []byte) (uint32, bool) {
	ctxName, ok := ChromContext(dataType)
	if !ok {
		return 0, false
	}
	ctx := ar.contexts.Get(ctxName, fingerprint.Primary, fctx.Flags{})
	for i := 0; i < ctx.DictLen(); i++ {
		v, err := ctx.Value(uint32(i))
		if err != nil {
			break
		}
		if bytes.Equal(v, name) {
			return uint32(i), true
		}
	}
	return 0, false
}

// RAEntries returns the archive's full random-access index, for building
// Region filters via raindex.BlocksFor.
func (ar *Reader) RAEntries() []raindex.Entry { return ar.raEntries }

// VerifyArchiveDigest compares the running whole-archive digest accumulated
// by every DecodeComponent call so far against the one recorded in the
// footer (spec §4.10 "whole-archive digest"). Call only after every
// component of interest has been decoded.
func (ar *Reader) VerifyArchiveDigest() error {
	if got := ar.archiveDigest.Sum(); got != ar.footer.archiveDigest {
		return fmt.Errorf("archive: %w", gtcerr.Wrap(gtcerr.Integrity, "archive", fmt.Errorf("whole-archive digest mismatch")))
	}
	return nil
}

// DecodeComponent reconstructs the index'th component (in Components()
// order) onto w, applying filter (nil decodes every record). It mirrors the
// compress side's dispatch.Run pipeline exactly: block sections are
// independently addressable via io.NewSectionReader, so per-block decode
// (including decompression) runs concurrently across workers, while output
// is written and digested strictly in ascending block-index order (spec
// §4.9, §4.11). With a non-nil filter the output is a subset of the
// component: its pass-through header text is not written and the component
// digest is not checked.
func (ar *Reader) DecodeComponent(ctx context.Context, index int, w io.Writer, filter *segment.Filter) error {
	if index < 0 || index >= len(ar.groups) {
		return fmt.Errorf("archive: component index %d out of range (have %d)", index, len(ar.groups))
	}
	g := ar.groups[index]
	cap, err := segment.Lookup(g.header.dataType)
	if err != nil {
		return err
	}
	if len(g.header.headerText) > 0 && filter == nil {
		if _, err := w.Write(g.header.headerText); err != nil {
			return fmt.Errorf("archive: write component header text: %w", err)
		}
	}

	groups := groupByBlock(g.sections)
	if len(groups) == 0 {
		return nil
	}
	byIdx := make(map[int64]blockGroup, len(groups))
	for _, bg := range groups {
		byIdx[int64(bg.index)] = bg
	}
	startIndex := int64(groups[0].index)

	compDigest := digest.New()
	blockCh := make(chan *block.Block, ar.concurrency)
	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer close(blockCh)
		for _, bg := range groups {
			b := block.New(int64(bg.index))
			select {
			case blockCh <- b:
			case <-egctx.Done():
				return egctx.Err()
			}
		}
		return nil
	})
	eg.Go(func() error {
		return dispatch.Run(egctx, ar.concurrency, startIndex, blockCh,
			func(b *block.Block) error {
				return ar.decodeBlock(b, byIdx[b.Index], cap, g.header.crlf, filter)
			},
			func(b *block.Block) error {
				return ar.flushDecodedBlock(b, w, compDigest)
			},
		)
	})
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("archive: decode component %q: %w", g.name, err)
	}

	if got := compDigest.Sum(); filter == nil && got != g.wantDigest {
		return fmt.Errorf("archive: %w: component %q", gtcerr.Wrap(gtcerr.Integrity, "archive", fmt.Errorf("digest mismatch")), g.name)
	}
	ar.log.Debug("component decoded", zap.String("name", g.name), zap.Int("blocks", len(groups)))
	return nil
}

type blockSectionParts struct {
	ltype     fctx.LType
	b250      []byte
	local     []byte
	haveLocal bool
}

// decodeBlock is the dispatch Process step: it reads and decompresses every
// section belonging to one block (parallelizable work, since every section
// is independently addressable by offset) and reconstructs its records,
// stopping at hdr.recordCount records rather than a line-count derived
// figure, since Variable-LinesPerRecord data types (FASTA) can't otherwise
// tell the decoder when one record ends.
func (ar *Reader) decodeBlock(b *block.Block, bg blockGroup, cap segment.Capability, crlf bool, filter *segment.Filter) error {
	if len(bg.entries) == 0 || bg.entries[0].typ != section.TypeBlockHeader {
		return fmt.Errorf("archive: block %d missing its header section", bg.index)
	}
	_, _, hdrBody, err := ar.readSectionData(bg.entries[0])
	if err != nil {
		return fmt.Errorf("archive: block %d header: %w", bg.index, err)
	}
	hdr, err := decodeBlockHeader(hdrBody)
	if err != nil {
		return fmt.Errorf("archive: block %d header: %w", bg.index, err)
	}

	parts := make(map[fingerprint.ID]*blockSectionParts, len(hdr.present))
	for _, fp := range hdr.present {
		parts[fp] = &blockSectionParts{}
	}
	for _, s := range bg.entries[1:] {
		_, sh, body, err := ar.readSectionData(s)
		if err != nil {
			return fmt.Errorf("archive: block %d section: %w", bg.index, err)
		}
		fp := fpOf(sh)
		p, ok := parts[fp]
		if !ok {
			p = &blockSectionParts{}
			parts[fp] = p
		}
		if len(sh) >= 9 {
			p.ltype = fctx.LType(sh[8])
		}
		switch s.typ {
		case section.TypeContextB250:
			p.b250 = body
		case section.TypeContextLocal:
			p.local = body
			p.haveLocal = true
		}
	}

	for fp, p := range parts {
		fieldCtx := ar.contexts.Get(fp.Name(), fp.Category(), fctx.Flags{})
		var localInts []int64
		var localBytes []byte
		if p.haveLocal {
			if isIntLType(p.ltype) {
				if len(p.local) < 4 {
					return fmt.Errorf("archive: block %d context %s: truncated local int stream", bg.index, fp.Name())
				}
				n := binary.LittleEndian.Uint32(p.local[:4])
				vals, err := decodeLocalInts(p.local[4:], int(n))
				if err != nil {
					return fmt.Errorf("archive: block %d context %s: %w", bg.index, fp.Name(), err)
				}
				localInts = vals
			} else {
				localBytes = p.local
			}
		}
		b.Readers[fp] = fctx.NewBlockReader(fieldCtx, p.b250, localBytes, localInts)
	}

	rc := &segment.RecordCtx{Block: b, Contexts: ar.contexts, Filter: filter}
	n := int(hdr.recordCount)
	for i := 0; i < n; i++ {
		rc.LineIndex = int64(i)
		lines, keep, err := cap.ReconstructRecord(rc)
		if err != nil {
			return fmt.Errorf("archive: block %d record %d: %w", bg.index, i, err)
		}
		if !keep {
			continue
		}
		last := i == n-1
		for j, line := range lines {
			noTerm := hdr.finalLineNoTerm && last && j == len(lines)-1
			appendLine(b, line, crlf, noTerm)
		}
	}
	return nil
}

// flushDecodedBlock is the dispatch Ordered step: writing reconstructed
// bytes and feeding both digests must happen in ascending block-index order,
// even though decodeBlock ran out of order across workers (spec §4.11
// "owned by the I/O thread").
func (ar *Reader) flushDecodedBlock(b *block.Block, w io.Writer, compDigest *digest.Running) error {
	raw := reconstructWithTerminators(b)
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("archive: write reconstructed bytes: %w", err)
	}
	compDigest.Write(raw)
	ar.archiveDigest.Write(raw)
	return nil
}
