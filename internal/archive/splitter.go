package archive

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/gtcio/gtc/internal/block"
	"github.com/gtcio/gtc/internal/gtcerr"
	"github.com/gtcio/gtc/internal/segment"
)

// Splitter turns a raw byte stream into a sequence of Blocks at record
// boundaries, following the same Scan/Err/Block shape as a conventional Go
// line scanner (spec §4.1 "Line splitting", §9 "record boundary spanning a
// block").
//
// Grounded on pbzip2's Scanner (a stateful Scan(ctx) bool / Block() / Err()
// loop wrapping a bufio.Reader), generalized from bzip2 block-magic
// resynchronization to text line/record boundaries, driven by a
// segment.Capability instead of a fixed wire format.
type Splitter struct {
	rd         *bufio.Reader
	pool       *block.Pool
	cap        segment.Capability
	targetSize int

	carry []byte
	err   error
	done  bool
	cur   *block.Block
}

// NewSplitter creates a Splitter reading from r, producing blocks from pool
// sized to targetSize, cut only at boundaries cap agrees are safe.
func NewSplitter(r io.Reader, pool *block.Pool, cap segment.Capability, targetSize int) *Splitter {
	if targetSize <= 0 {
		targetSize = block.DefaultTargetSize
	}
	return &Splitter{
		rd:         bufio.NewReaderSize(r, 64<<10),
		pool:       pool,
		cap:        cap,
		targetSize: targetSize,
	}
}

// Err returns the first error encountered, valid after Scan returns false.
func (s *Splitter) Err() error { return s.err }

// Block returns the block most recently produced by Scan.
func (s *Splitter) Block() *block.Block { return s.cur }

func readLine(rd *bufio.Reader) (content []byte, crlf bool, eof bool, err error) {
	raw, rerr := rd.ReadBytes('\n')
	if len(raw) == 0 {
		if rerr == io.EOF {
			return nil, false, true, nil
		}
		return nil, false, false, rerr
	}
	if raw[len(raw)-1] == '\n' {
		raw = raw[:len(raw)-1]
		if len(raw) > 0 && raw[len(raw)-1] == '\r' {
			raw = raw[:len(raw)-1]
			crlf = true
		}
		if rerr != nil && rerr != io.EOF {
			return nil, false, false, rerr
		}
		return raw, crlf, false, nil
	}
	// Last line of the stream with no trailing terminator (spec §9 "missing
	// trailing terminator").
	if rerr != nil && rerr != io.EOF {
		return nil, false, false, rerr
	}
	return raw, false, true, nil
}

func appendLine(b *block.Block, content []byte, crlf bool, noTerm bool) {
	start := len(b.Text)
	b.Text = append(b.Text, content...)
	b.Lines = append(b.Lines, block.Line{Start: start, Len: len(content), CRLF: crlf, NoTerm: noTerm})
}

// Scan produces the next Block, returning false at EOF or on error.
func (s *Splitter) Scan(ctx context.Context) bool {
	if s.err != nil || s.done {
		return false
	}
	select {
	case <-ctx.Done():
		s.err = ctx.Err()
		return false
	default:
	}

	cur := s.pool.Get()
	if len(s.carry) > 0 {
		cur.CarryOver = append(cur.CarryOver[:0], s.carry...)
		content := bytes.TrimSuffix(s.carry, []byte("\n"))
		crlf := bytes.HasSuffix(content, []byte("\r"))
		if crlf {
			content = content[:len(content)-1]
		}
		appendLine(cur, content, crlf, false)
		s.carry = s.carry[:0]
	}

	n := s.cap.LinesPerRecord()
	if n == segment.Variable {
		s.scanVariable(cur)
	} else {
		s.scanFixed(cur, n)
	}
	if s.err != nil {
		return false
	}
	s.cur = cur
	return true
}

func (s *Splitter) scanFixed(cur *block.Block, n int) {
	lineCount := 0
	recordStart := len(cur.Text)
	for {
		content, crlf, eof, err := readLine(s.rd)
		if err != nil {
			s.err = gtcerr.Wrap(gtcerr.IO, "splitter", err)
			return
		}
		if content == nil && eof {
			s.done = true
			return
		}
		appendLine(cur, content, crlf, eof)
		lineCount++
		if lineCount%n == 0 {
			if len(cur.Text)-recordStart > s.targetSize {
				s.err = fmt.Errorf("archive: %w: record ending at line %d is %d bytes, exceeds block target %d",
					gtcerr.Wrap(gtcerr.Exhausted, "splitter", fmt.Errorf("record exceeds block size")),
					len(cur.Lines), len(cur.Text)-recordStart, s.targetSize)
				return
			}
			recordStart = len(cur.Text)
			if len(cur.Text) >= s.targetSize {
				if eof {
					s.done = true
				}
				return
			}
		}
		if eof {
			s.done = true
			return
		}
	}
}

func (s *Splitter) scanVariable(cur *block.Block) {
	haveRecord := len(cur.Lines) > 0
	recordStart := len(cur.Text)
	for {
		content, crlf, eof, err := readLine(s.rd)
		if err != nil {
			s.err = gtcerr.Wrap(gtcerr.IO, "splitter", err)
			return
		}
		if content == nil && eof {
			s.done = true
			return
		}
		isBoundary := s.cap.RecordBoundary(content)
		if isBoundary && len(cur.Lines) > 0 {
			if haveRecord && len(cur.Text) >= s.targetSize {
				s.carry = reconstructLine(content, crlf)
				return
			}
			if len(cur.Text)-recordStart > s.targetSize {
				s.err = fmt.Errorf("archive: %w: record ending before line %d is %d bytes, exceeds block target %d",
					gtcerr.Wrap(gtcerr.Exhausted, "splitter", fmt.Errorf("record exceeds block size")),
					len(cur.Lines), len(cur.Text)-recordStart, s.targetSize)
				return
			}
			recordStart = len(cur.Text)
		}
		if isBoundary {
			haveRecord = true
		}
		appendLine(cur, content, crlf, eof)
		if eof {
			s.done = true
			return
		}
	}
}

func reconstructLine(content []byte, crlf bool) []byte {
	var buf bytes.Buffer
	buf.Write(content)
	if crlf {
		buf.WriteByte('\r')
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}
