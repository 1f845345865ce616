// Command gtc is a thin illustrative wrapper around the core library: the
// command surface is an external collaborator, not part of the core, per
// spec §1/§6.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gtcio/gtc"
)

var (
	password    string
	concurrency int
	targetSize  int
	verbose     bool
)

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func newSession() *gtc.Session {
	return gtc.NewSession(
		gtc.WithPassword(password),
		gtc.WithConcurrency(concurrency),
		gtc.WithTargetSize(targetSize),
		gtc.WithLogger(newLogger()),
	)
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gtc:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gtc",
		Short:         "a domain-specific compressor for bioinformatics tabular/sequence files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&password, "password", "", "archive password; omit for an unencrypted archive")
	root.PersistentFlags().IntVar(&concurrency, "concurrency", 0, "worker pool size; 0 selects GOMAXPROCS")
	root.PersistentFlags().IntVar(&targetSize, "target-size", 0, "target uncompressed block size in bytes; 0 selects the package default")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "emit structured trace logging")

	root.AddCommand(compressCmd(), decompressCmd(), catCmd(), listCmd())
	return root
}

func compressCmd() *cobra.Command {
	var output, dataType string
	cmd := &cobra.Command{
		Use:   "compress [files...]",
		Short: "compress one or more files of the same data type into an archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataType == "" {
				return fmt.Errorf("--type is required")
			}
			out := os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				defer f.Close()
				out = f
			}

			var components []gtc.Component
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("open %s: %w", path, err)
				}
				defer f.Close()
				components = append(components, gtc.Component{
					Name: filepath.Base(path), DataType: dataType, Data: f,
				})
			}
			return newSession().Compress(cmd.Context(), out, components...)
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "output archive path; omit for stdout")
	cmd.Flags().StringVar(&dataType, "type", "", "data type of every input file (vcf, gff, sam, genotype, fastq, fasta)")
	return cmd
}

func decompressCmd() *cobra.Command {
	var output string
	var regions []string
	var grep string
	cmd := &cobra.Command{
		Use:   "decompress [archive]",
		Short: "reconstruct every component of an archive, in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd.Context(), args[0], output, regions, grep)
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "output path; omit for stdout")
	cmd.Flags().StringArrayVar(&regions, "region", nil, "restrict output to chrom:min-max (repeatable)")
	cmd.Flags().StringVar(&grep, "grep", "", "restrict output to records whose identifier contains this substring")
	return cmd
}

func catCmd() *cobra.Command {
	var regions []string
	var grep string
	cmd := &cobra.Command{
		Use:   "cat [archive]",
		Short: "reconstruct an archive's components to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd.Context(), args[0], "", regions, grep)
		},
	}
	cmd.Flags().StringArrayVar(&regions, "region", nil, "restrict output to chrom:min-max (repeatable)")
	cmd.Flags().StringVar(&grep, "grep", "", "restrict output to records whose identifier contains this substring")
	return cmd
}

func runDecode(ctx context.Context, archivePath, output string, rawRegions []string, grep string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", archivePath, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", archivePath, err)
	}

	regions, err := parseRegions(rawRegions)
	if err != nil {
		return err
	}

	dec, err := newSession().Open(f, info.Size())
	if err != nil {
		return err
	}

	out := os.Stdout
	if output != "" {
		of, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create %s: %w", output, err)
		}
		defer of.Close()
		out = of
	}

	components := dec.Components()
	for i := range components {
		if err := dec.Decode(ctx, i, out, regions, grep); err != nil {
			return err
		}
	}
	return nil
}

// parseRegions parses "chrom:min-max" region flags (spec §6 "flags to
// select... region filter").
func parseRegions(raw []string) ([]gtc.RegionFilter, error) {
	var out []gtc.RegionFilter
	for _, r := range raw {
		chrom, span, ok := strings.Cut(r, ":")
		if !ok {
			return nil, fmt.Errorf("invalid --region %q: want chrom:min-max", r)
		}
		lo, hi, ok := strings.Cut(span, "-")
		if !ok {
			return nil, fmt.Errorf("invalid --region %q: want chrom:min-max", r)
		}
		min, err := strconv.ParseUint(lo, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid --region %q: %w", r, err)
		}
		max, err := strconv.ParseUint(hi, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid --region %q: %w", r, err)
		}
		out = append(out, gtc.RegionFilter{Chrom: chrom, Min: uint32(min), Max: uint32(max)})
	}
	return out, nil
}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [archive]",
		Short: "list an archive's components and their data types",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return fmt.Errorf("stat %s: %w", args[0], err)
			}
			dec, err := newSession().Open(f, info.Size())
			if err != nil {
				return err
			}
			for i, c := range dec.Components() {
				fmt.Printf("%d\t%s\t%s\n", i, c.Name, c.DataType)
			}
			return nil
		},
	}
	return cmd
}
