package archive

import (
	"bytes"

	"github.com/gtcio/gtc/internal/block"
	"github.com/gtcio/gtc/internal/segment"
)

// reconstructWithTerminators rebuilds a block's exact original byte span,
// terminator included, from its terminator-stripped Text/Lines (spec §4.10:
// the digest is fed "bytes in read order", which means the bytes as they
// actually appeared in the input, not the splitter's internal
// representation of them).
func reconstructWithTerminators(b *block.Block) []byte {
	var buf bytes.Buffer
	buf.Grow(len(b.Text) + len(b.Lines)*2)
	for _, l := range b.Lines {
		buf.Write(b.Text[l.Start : l.Start+l.Len])
		if l.NoTerm {
			continue
		}
		if l.CRLF {
			buf.WriteByte('\r')
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func longestLine(b *block.Block) uint32 {
	var max uint32
	for _, l := range b.Lines {
		if uint32(l.Len) > max {
			max = uint32(l.Len)
		}
	}
	return max
}

// forEachRecord walks b's lines grouped into logical records the way c
// defines them (a fixed line count, or content-delimited boundaries for
// Variable formats), mirroring the grouping Splitter used to decide block
// cuts in the first place.
func forEachRecord(b *block.Block, c segment.Capability, fn func(idx int64, lines [][]byte) error) error {
	extract := func(l block.Line) []byte { return b.Text[l.Start : l.Start+l.Len] }

	n := c.LinesPerRecord()
	if n != segment.Variable {
		for i := 0; i+n <= len(b.Lines); i += n {
			rec := make([][]byte, n)
			for j := 0; j < n; j++ {
				rec[j] = extract(b.Lines[i+j])
			}
			if err := fn(int64(i/n), rec); err != nil {
				return err
			}
		}
		return nil
	}

	var cur [][]byte
	idx := int64(0)
	for i, l := range b.Lines {
		content := extract(l)
		if i > 0 && len(cur) > 0 && c.RecordBoundary(content) {
			if err := fn(idx, cur); err != nil {
				return err
			}
			idx++
			cur = nil
		}
		cur = append(cur, content)
	}
	if len(cur) > 0 {
		if err := fn(idx, cur); err != nil {
			return err
		}
	}
	return nil
}
