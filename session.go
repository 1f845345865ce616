// Package gtc implements a domain-specific archive format for bioinformatics
// tabular and sequence files: per-field dictionary/delta encoding plus a
// random-access index, instead of generic byte-stream compression.
//
// Every operation is a method on a Session rather than a package-level
// function operating on process-wide state, so a program can run several
// independently-configured compressions or decompressions concurrently in
// one process (Design Notes "explicit session object... unit tests
// instantiate multiple sessions in one process").
package gtc

import "go.uber.org/zap"

type options struct {
	password    string
	concurrency int
	targetSize  int
	logger      *zap.Logger
}

// Option configures a Session, in the functional-options style the teacher
// uses for ScannerOption/DecompressorOption/ReaderOption.
type Option func(*options)

// WithPassword enables archive-wide encryption (compress) or supplies the
// password to decrypt (decompress). The zero value leaves the archive
// unencrypted.
func WithPassword(password string) Option {
	return func(o *options) { o.password = password }
}

// WithConcurrency bounds the worker pool size. Zero or negative selects
// runtime.GOMAXPROCS, matching the teacher's default.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithTargetSize sets the target uncompressed size of each block. Zero or
// negative selects the package default (16 MiB).
func WithTargetSize(n int) Option {
	return func(o *options) { o.targetSize = n }
}

// WithLogger attaches a zap logger. A nil (or never-supplied) logger is
// replaced with zap.NewNop(), so library code never needs a nil check.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Session carries the configuration threaded through every compress and
// decompress operation it performs.
type Session struct {
	opts options
}

// NewSession builds a Session from opts, applied in order.
func NewSession(opts ...Option) *Session {
	s := &Session{}
	for _, fn := range opts {
		fn(&s.opts)
	}
	if s.opts.logger == nil {
		s.opts.logger = zap.NewNop()
	}
	return s
}
