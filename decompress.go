package gtc

import (
	"context"
	"fmt"
	"io"

	"github.com/gtcio/gtc/internal/archive"
	"github.com/gtcio/gtc/internal/raindex"
	"github.com/gtcio/gtc/internal/segment"
)

// ComponentInfo describes one component available for decode, without
// reading its data.
type ComponentInfo = archive.ComponentInfo

// RegionFilter restricts decode to rows overlapping [Min, Max] on Chrom
// (spec §4.8 "Random access", §8 scenario 5 "region filter"). Chrom is
// resolved against the target archive's own random-access key dictionary, so
// the same RegionFilter value can be reused across archives built from
// different reference sets.
type RegionFilter struct {
	Chrom    string
	Min, Max uint32
}

// Decoder wraps an opened archive for listing and decoding (spec §6 "cat,
// decompress, list metadata" as a programmatic API rather than a CLI).
type Decoder struct {
	ar *archive.Reader
}

// Open prepares an archive of size bytes on ra for decoding. ra must support
// random access for the lifetime of the returned Decoder (spec §4.11,
// grounded on archive/zip.NewReader's io.ReaderAt+size convention).
func (s *Session) Open(ra io.ReaderAt, size int64) (*Decoder, error) {
	ar, err := archive.NewReader(ra, size, s.opts.password, s.opts.concurrency, s.opts.logger)
	if err != nil {
		return nil, fmt.Errorf("gtc: open archive for reading: %w", err)
	}
	return &Decoder{ar: ar}, nil
}

// Components lists every component in the archive, in write order.
func (d *Decoder) Components() []ComponentInfo {
	return d.ar.Components()
}

func (d *Decoder) buildFilter(dataType string, regions []RegionFilter, grep string) *segment.Filter {
	if len(regions) == 0 && grep == "" {
		return nil
	}
	f := &segment.Filter{}
	if grep != "" {
		f.Grep = []byte(grep)
	}
	for _, r := range regions {
		idx, ok := d.ar.ResolveChromIndex(dataType, []byte(r.Chrom))
		if !ok {
			// Spec §7 "Partial match": an unresolvable chromosome name yields
			// no rows for that filter term rather than an error.
			continue
		}
		f.Regions = append(f.Regions, raindex.Region{ChromIndex: idx, Min: r.Min, Max: r.Max})
	}
	return f
}

// Decode reconstructs the index'th component onto w (Components() order),
// applying an optional region and/or identifier-substring filter.
func (d *Decoder) Decode(ctx context.Context, index int, w io.Writer, regions []RegionFilter, grep string) error {
	infos := d.ar.Components()
	if index < 0 || index >= len(infos) {
		return fmt.Errorf("gtc: decode: component index %d out of range (have %d)", index, len(infos))
	}
	filter := d.buildFilter(infos[index].DataType, regions, grep)
	if err := d.ar.DecodeComponent(ctx, index, w, filter); err != nil {
		return fmt.Errorf("gtc: decode %q: %w", infos[index].Name, err)
	}
	return nil
}

// DecodeAll decodes every component in order onto w with no filtering
// (concatenation mode, spec §8 scenario 4), then verifies the whole-archive
// digest recorded in the footer.
func (d *Decoder) DecodeAll(ctx context.Context, w io.Writer) error {
	for i := range d.ar.Components() {
		if err := d.Decode(ctx, i, w, nil, ""); err != nil {
			return err
		}
	}
	if err := d.ar.VerifyArchiveDigest(); err != nil {
		return fmt.Errorf("gtc: %w", err)
	}
	return nil
}
