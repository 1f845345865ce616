package gtc

import (
	"context"
	"fmt"
	"io"

	"github.com/gtcio/gtc/internal/archive"
)

// Component names one input stream and the registered data type it should be
// segmented as (spec §3 "Archive" / "Component").
type Component struct {
	Name     string
	DataType string
	Data     io.Reader
}

// Compress writes components to w as a single archive, preserving their
// given order. Concatenating several inputs of the same data type as
// separate Components (rather than pre-joining their bytes) lets a later
// decode reproduce either the per-file boundary or the merged byte stream
// (spec §8 scenario 4 "concatenation associativity").
func (s *Session) Compress(ctx context.Context, w io.Writer, components ...Component) error {
	if len(components) == 0 {
		return fmt.Errorf("gtc: compress: no components given")
	}
	aw, err := archive.NewWriter(w, s.opts.password, s.opts.concurrency, s.opts.targetSize, s.opts.logger)
	if err != nil {
		return fmt.Errorf("gtc: open archive for writing: %w", err)
	}
	for _, c := range components {
		if err := aw.WriteComponent(ctx, c.Name, c.DataType, c.Data); err != nil {
			return fmt.Errorf("gtc: compress %q: %w", c.Name, err)
		}
	}
	if err := aw.Close(); err != nil {
		return fmt.Errorf("gtc: finalize archive: %w", err)
	}
	return nil
}
