package archive

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gtcio/gtc/internal/block"
	fctx "github.com/gtcio/gtc/internal/context"
	"github.com/gtcio/gtc/internal/digest"
	"github.com/gtcio/gtc/internal/dispatch"
	"github.com/gtcio/gtc/internal/fingerprint"
	"github.com/gtcio/gtc/internal/raindex"
	"github.com/gtcio/gtc/internal/section"
	"github.com/gtcio/gtc/internal/segment"
)

// countingWriter tracks the byte offset of everything written so far, so
// sectionListEntry.offset can be recorded without a Seek (the underlying
// writer may be a pipe).
type countingWriter struct {
	w   io.Writer
	off uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.off += uint64(n)
	return n, err
}

// passthroughPrefix names the leading-comment convention each data type
// preserves verbatim ahead of its first data row (spec §3 "pass-through
// header text"). FASTQ/FASTA have none.
var passthroughPrefix = map[string][]byte{
	"vcf":      []byte("##"),
	"gff":      []byte("#"),
	"sam":      []byte("@"),
	"genotype": []byte("#"),
}

// Writer is the archive-wide compressor: it owns the shared Contexts
// registry, the running whole-archive digest, the random-access index, and
// the growing section list that becomes the footer (spec §4.11 "Archive
// manager").
//
// Grounded on pbzip2's top-level Compressor (one scanner feeding one
// dispatch loop per input, writing a self-contained framed stream),
// generalized to multiple components sharing one dictionary and one
// whole-archive digest.
type Writer struct {
	w    *countingWriter
	pool *block.Pool

	key  []byte
	salt []byte

	concurrency int
	targetSize  int

	contexts      *segment.Contexts
	raIndex       *raindex.Index
	archiveDigest *digest.Running

	components []componentDigest
	sections   []sectionListEntry

	log *zap.Logger

	closed bool
}

// NewWriter begins a new archive on w. An empty password leaves the archive
// unencrypted; concurrency/targetSize of 0 fall back to their package
// defaults. A nil logger is replaced with zap.NewNop().
func NewWriter(w io.Writer, password string, concurrency, targetSize int, logger *zap.Logger) (*Writer, error) {
	if concurrency <= 0 {
		concurrency = dispatch.DefaultConcurrency()
	}
	if targetSize <= 0 {
		targetSize = block.DefaultTargetSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	aw := &Writer{
		w:             &countingWriter{w: w},
		pool:          block.NewPool(),
		concurrency:   concurrency,
		targetSize:    targetSize,
		contexts:      segment.NewContexts(),
		raIndex:       raindex.New(),
		archiveDigest: digest.New(),
		log:           logger,
	}

	encrypted := password != ""
	if encrypted {
		salt := make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("archive: generate salt: %w", err)
		}
		aw.salt = salt
		aw.key = section.DeriveKey(password, salt)
	}

	// Always written in the clear: the decoder's encryption self-test reads
	// the very first section's magic before it has a key to try (spec §4.7,
	// §8 scenario 6).
	body := encodeFileHeader(fileHeaderBody{version: FormatVersion, encrypted: encrypted, salt: aw.salt})
	if err := aw.writeSection(section.TypeFileHeader, 0, 0, nil, body, false); err != nil {
		return nil, err
	}
	aw.log.Debug("archive opened", zap.Bool("encrypted", encrypted), zap.Int("concurrency", concurrency), zap.Int("targetSize", targetSize))
	return aw, nil
}

func fpOf(subHeader []byte) fingerprint.ID {
	var fp fingerprint.ID
	if len(subHeader) >= len(fp) {
		copy(fp[:], subHeader[:len(fp)])
	}
	return fp
}

// writeSection frames and writes one section. When encrypt is true and the
// archive carries a key, the section is sealed and prefixed with its own
// 4-byte little-endian ciphertext length (after the section's in-the-clear
// magic) so a sequential reader can bound an io.LimitReader before handing
// the ciphertext to section.Read — section.Read itself has no way to learn
// that length, since it lives inside the ciphertext (spec §4.7 resolution,
// see DESIGN.md).
func (aw *Writer) writeSection(typ section.Type, blockIndex uint32, secInBlock uint16, subHeader, body []byte, encrypt bool) error {
	h := section.Header{Type: typ, Codec: codecFor(typ), BlockIndex: blockIndex, SectionInBlockID: secInBlock}
	var key []byte
	if encrypt {
		key = aw.key
	}

	var buf bytes.Buffer
	if err := section.Write(&buf, h, subHeader, body, key); err != nil {
		return fmt.Errorf("archive: write %s section: %w", typ, err)
	}
	raw := buf.Bytes()

	startOff := aw.w.off
	if key != nil {
		magic, cipher := raw[:4], raw[4:]
		if _, err := aw.w.Write(magic); err != nil {
			return fmt.Errorf("archive: write %s magic: %w", typ, err)
		}
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(cipher)))
		if _, err := aw.w.Write(lenBuf[:]); err != nil {
			return fmt.Errorf("archive: write %s sealed length: %w", typ, err)
		}
		if _, err := aw.w.Write(cipher); err != nil {
			return fmt.Errorf("archive: write %s ciphertext: %w", typ, err)
		}
	} else if _, err := aw.w.Write(raw); err != nil {
		return fmt.Errorf("archive: write %s: %w", typ, err)
	}

	aw.sections = append(aw.sections, sectionListEntry{
		typ: typ, offset: startOff, length: aw.w.off - startOff,
		blockIndex: blockIndex, secID: secInBlock, fp: fpOf(subHeader),
	})
	return nil
}

func peelHeader(br *bufio.Reader, dataType string) (headerText []byte, crlf bool, err error) {
	prefix, ok := passthroughPrefix[dataType]
	var buf bytes.Buffer
	for ok {
		peeked, perr := br.Peek(len(prefix))
		if perr != nil || !bytes.Equal(peeked, prefix) {
			break
		}
		line, lerr := br.ReadString('\n')
		if lerr != nil && lerr != io.EOF {
			return nil, false, fmt.Errorf("archive: read header line: %w", lerr)
		}
		buf.WriteString(line)
		if lerr == io.EOF {
			break
		}
	}
	peek, _ := br.Peek(4096)
	crlf = bytes.Contains(peek, []byte("\r\n"))
	return buf.Bytes(), crlf, nil
}

func isIntLType(lt fctx.LType) bool {
	switch lt {
	case fctx.LTypeInt8, fctx.LTypeUint8, fctx.LTypeInt16, fctx.LTypeUint16,
		fctx.LTypeInt32, fctx.LTypeUint32, fctx.LTypeInt64:
		return true
	default:
		return false
	}
}

// WriteComponent segments r as one component of dataType's data type,
// appending it to the archive. name is a caller-supplied label (typically
// the source file's base name) carried through to the footer's per-
// component digest entry (spec §3 "Archive" / "Component").
func (aw *Writer) WriteComponent(ctx context.Context, name, dataType string, r io.Reader) error {
	cap, err := segment.Lookup(dataType)
	if err != nil {
		return err
	}

	br := bufio.NewReaderSize(r, 64<<10)
	headerText, crlf, err := peelHeader(br, dataType)
	if err != nil {
		return err
	}
	if err := aw.writeSection(section.TypeComponentHeader, 0, 0, nil,
		encodeComponentHeader(componentHeaderBody{dataType: dataType, crlf: crlf, headerText: headerText}), true); err != nil {
		return err
	}

	splitter := NewSplitter(br, aw.pool, cap, aw.targetSize)
	if !splitter.Scan(ctx) {
		return splitter.Err()
	}
	first := splitter.Block()
	startIndex := first.Index

	compDigest := digest.New()
	var origSize uint64

	blockCh := make(chan *block.Block, aw.concurrency)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(blockCh)
		select {
		case blockCh <- first:
		case <-gctx.Done():
			return gctx.Err()
		}
		for splitter.Scan(gctx) {
			select {
			case blockCh <- splitter.Block():
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return splitter.Err()
	})
	g.Go(func() error {
		return dispatch.Run(gctx, aw.concurrency, startIndex, blockCh,
			func(b *block.Block) error { return aw.segmentBlock(b, cap) },
			func(b *block.Block) error { return aw.flushBlock(b, compDigest, &origSize) },
		)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	aw.components = append(aw.components, componentDigest{
		name: name, origSize: origSize, digest: compDigest.Sum(),
	})
	aw.log.Info("component written", zap.String("name", name), zap.String("dataType", dataType), zap.Uint64("origSize", origSize))
	return nil
}

// segmentBlock is the dispatch Process step: it runs concurrently across
// worker goroutines, one block at a time, parsing every record into context
// contributions and merging each touched context's local staging entries
// into the shared dictionary (spec §4.9 "Worker").
func (aw *Writer) segmentBlock(b *block.Block, cap segment.Capability) error {
	rc := &segment.RecordCtx{Block: b, Contexts: aw.contexts}
	count := int64(0)
	if err := forEachRecord(b, cap, func(idx int64, lines [][]byte) error {
		rc.LineIndex = idx
		count = idx + 1
		return cap.SegmentRecord(rc, lines)
	}); err != nil {
		return err
	}
	rc.CloseBlock()
	b.RecordCount = int(count)

	for fp, bw := range b.Writers {
		fctxPtr := bw.Context()
		before := fctxPtr.DictLen()
		b250, err := bw.MergeInto()
		if err != nil {
			return fmt.Errorf("archive: merge context %s: %w", fctxPtr.Name, err)
		}
		aw.contexts.RecordGrowth(fp, fctxPtr.DictLen()-before)
		b.Streams[fp] = &block.Stream{B250: b250, Local: bw.LocalStream(), LocalInts: bw.LocalInts()}
	}
	return nil
}

// flushBlock is the dispatch Ordered step: it runs on a single goroutine,
// strictly in ascending block-index order, so the running digests and the
// section list never need their own lock (spec §4.11 "owned by the I/O
// thread").
func (aw *Writer) flushBlock(b *block.Block, compDigest *digest.Running, origSize *uint64) error {
	raw := reconstructWithTerminators(b)
	compDigest.Write(raw)
	aw.archiveDigest.Write(raw)
	*origSize += uint64(len(raw))

	present := make([]fingerprint.ID, 0, len(b.Streams))
	for fp := range b.Streams {
		present = append(present, fp)
	}
	sort.Slice(present, func(i, j int) bool { return bytes.Compare(present[i][:], present[j][:]) < 0 })

	var finalLineNoTerm bool
	if n := len(b.Lines); n > 0 {
		finalLineNoTerm = b.Lines[n-1].NoTerm
	}

	blockIdx := uint32(b.Index)
	hdr := blockHeaderBody{
		lineCount:       uint32(len(b.Lines)),
		recordCount:     uint32(b.RecordCount),
		uncompSize:      uint32(len(raw)),
		longestLine:     longestLine(b),
		finalLineNoTerm: finalLineNoTerm,
		present:         present,
	}
	if err := aw.writeSection(section.TypeBlockHeader, blockIdx, 0, nil, encodeBlockHeader(hdr), true); err != nil {
		return err
	}

	secID := uint16(1)
	for _, fp := range present {
		stream := b.Streams[fp]
		fctxPtr := b.Writers[fp].Context()
		sh := append(append([]byte(nil), fp[:]...), byte(fctxPtr.Flags.LocalLType))

		if len(stream.B250) > 0 {
			if err := aw.writeSection(section.TypeContextB250, blockIdx, secID, sh, stream.B250, true); err != nil {
				return err
			}
			secID++
		}

		if isIntLType(fctxPtr.Flags.LocalLType) {
			if len(stream.LocalInts) > 0 {
				var countBuf [4]byte
				binary.LittleEndian.PutUint32(countBuf[:], uint32(len(stream.LocalInts)))
				body := append(append([]byte(nil), countBuf[:]...), encodeLocalInts(stream.LocalInts)...)
				if err := aw.writeSection(section.TypeContextLocal, blockIdx, secID, sh, body, true); err != nil {
					return err
				}
				secID++
			}
		} else if len(stream.Local) > 0 {
			if err := aw.writeSection(section.TypeContextLocal, blockIdx, secID, sh, stream.Local, true); err != nil {
				return err
			}
			secID++
		}
	}

	for _, e := range b.RAEntries {
		aw.raIndex.Append(e)
	}
	aw.pool.Put(b)
	return nil
}

// Close flushes the single, archive-wide dictionary-fragment run, the
// random-access index and the footer (spec §3 "After all components, one
// global dictionary-fragment run... one global footer").
func (aw *Writer) Close() error {
	if aw.closed {
		return fmt.Errorf("archive: writer already closed")
	}
	aw.closed = true

	for _, c := range aw.contexts.All() {
		frag := c.DictionaryFragment()
		if len(frag) == 0 {
			continue
		}
		if err := aw.writeSection(section.TypeDictFragment, 0, 0, c.Fingerprint[:], encodeDictFragment(frag), true); err != nil {
			return err
		}
		if c.Degraded() {
			aw.log.Warn("context degraded to append-only storage", zap.String("context", c.Name))
		}
		c.MarkFlushed()
	}

	raBody := raindex.Marshal(aw.raIndex.Finalize())
	if err := aw.writeSection(section.TypeRandomAccess, 0, 0, nil, raBody, true); err != nil {
		return err
	}

	// The footer's own offset must be captured before it is written, so the
	// trailer that follows it can point back at it (spec §4.11 "section list
	// offsets"); a reader locates the footer via the trailer at the very end
	// of the file rather than scanning from the start.
	footerOffset := aw.w.off
	footer := footerBody{
		version:       FormatVersion,
		archiveDigest: aw.archiveDigest.Sum(),
		components:    aw.components,
		sections:      aw.sections,
	}
	if err := aw.writeSection(section.TypeFooter, 0, 0, nil, encodeFooter(footer), true); err != nil {
		return err
	}

	var trailer [trailerLen]byte
	binary.LittleEndian.PutUint64(trailer[0:8], footerOffset)
	binary.LittleEndian.PutUint32(trailer[8:12], trailerMagic)
	if _, err := aw.w.Write(trailer[:]); err != nil {
		return fmt.Errorf("archive: write trailer: %w", err)
	}

	aw.log.Debug("archive closed", zap.Int("components", len(aw.components)), zap.Int("sections", len(aw.sections)))
	return nil
}
