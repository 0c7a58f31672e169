package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/goopsie/ba2FileTools/pkg/archive"
	"github.com/goopsie/ba2FileTools/pkg/ba2"
	"github.com/goopsie/ba2FileTools/pkg/extract"
)

var (
	argOutput  string
	argWorkers int
	argRaw     bool
	argZstd    bool
	argFilter  string
)

var extractCmd = &cobra.Command{
	Use:   "extract ARCHIVE",
	Short: "Extract textures as DDS files",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringVarP(&argOutput, "output", "o", "", "Output directory")
	extractCmd.Flags().IntVarP(&argWorkers, "workers", "j", 0, "Concurrent workers (default GOMAXPROCS)")
	extractCmd.Flags().BoolVar(&argRaw, "raw", false, "Copy chunks as stored, without DDS headers or decompression")
	extractCmd.Flags().BoolVar(&argZstd, "zstd", false, "Wrap each output file in a zstd container")
	extractCmd.Flags().StringVar(&argFilter, "filter", "", "Only extract paths matching this glob, e.g. 'textures/armor/*'")
}

// errFailures is returned when some textures could not be extracted.
var errFailures = errors.New("some textures failed to extract")

func runExtract(cmd *cobra.Command, args []string) error {
	if argOutput == "" {
		return errors.New("--output is required")
	}
	if argFilter != "" {
		if _, err := path.Match(argFilter, ""); err != nil {
			return fmt.Errorf("--filter: %w", err)
		}
	}

	a, err := archive.Open(args[0])
	if err != nil {
		return err
	}

	opts := []extract.Option{
		extract.WithWorkers(argWorkers),
		extract.WithRaw(argRaw),
		extract.WithZstd(argZstd),
		extract.WithLogger(log.Logger),
	}
	if argFilter != "" {
		opts = append(opts, extract.WithFilter(globFilter(argFilter)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := extract.New(opts...).Run(ctx, a, a.Textures, argOutput)
	if err != nil {
		return err
	}
	if len(report.Failures) > 0 {
		return fmt.Errorf("%w: %d of %d", errFailures, len(report.Failures), len(report.Failures)+report.Extracted)
	}
	return nil
}

// globFilter matches archive paths case-insensitively with forward slashes.
func globFilter(pattern string) func(*ba2.TextureEntry) bool {
	pattern = strings.ToLower(pattern)
	return func(e *ba2.TextureEntry) bool {
		p := strings.ToLower(strings.ReplaceAll(e.Path(), `\`, "/"))
		ok, _ := path.Match(pattern, p)
		return ok
	}
}
