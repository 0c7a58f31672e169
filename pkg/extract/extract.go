// Package extract writes every texture of an archive to disk, running
// records concurrently on a bounded set of workers.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/goopsie/ba2FileTools/pkg/archive"
	"github.com/goopsie/ba2FileTools/pkg/ba2"
	"github.com/goopsie/ba2FileTools/pkg/container"
)

// ContainerExt is appended to output paths when zstd output is enabled.
const ContainerExt = ".zst"

// Source is an archive whose payload bytes can be opened once per worker.
type Source interface {
	OpenSource() (io.ReadSeekCloser, error)
}

var _ Source = (*archive.Archive)(nil)

// Failure records a texture that could not be extracted.
type Failure struct {
	Path string
	Err  error
}

func (f Failure) Error() string {
	return f.Path + ": " + f.Err.Error()
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Report summarizes a batch run.
type Report struct {
	Extracted int
	Skipped   int    // excluded by the filter
	Bytes     uint64 // payload bytes written, headers excluded
	Failures  []Failure
}

// Err joins all failures, or returns nil if there were none.
func (r *Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Extractor writes archive entries below an output directory.
type Extractor struct {
	workers int
	raw     bool
	zstd    bool
	logger  zerolog.Logger
	filter  func(*ba2.TextureEntry) bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithWorkers sets the number of concurrent workers. Zero or less means
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(x *Extractor) {
		x.workers = n
	}
}

// WithRaw copies chunks as stored instead of writing DDS files.
func WithRaw(raw bool) Option {
	return func(x *Extractor) {
		x.raw = raw
	}
}

// WithZstd wraps each output file in a zstd container.
func WithZstd(enabled bool) Option {
	return func(x *Extractor) {
		x.zstd = enabled
	}
}

// WithLogger sets the logger for per-entry failures and the run summary.
func WithLogger(logger zerolog.Logger) Option {
	return func(x *Extractor) {
		x.logger = logger
	}
}

// WithFilter limits extraction to entries for which keep returns true.
func WithFilter(keep func(*ba2.TextureEntry) bool) Option {
	return func(x *Extractor) {
		x.filter = keep
	}
}

// New returns an Extractor with the given options.
func New(opts ...Option) *Extractor {
	x := &Extractor{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(x)
	}
	if x.workers <= 0 {
		x.workers = runtime.GOMAXPROCS(0)
	}
	return x
}

// Run extracts entries from src into outputDir. Per-entry failures are
// collected in the report; the returned error is reserved for failures
// that stop the whole run, such as cancellation or an unreadable source.
func (x *Extractor) Run(ctx context.Context, src Source, entries []*ba2.TextureEntry, outputDir string) (*Report, error) {
	report := &Report{}
	var todo []*ba2.TextureEntry
	for _, e := range entries {
		if x.filter != nil && !x.filter(e) {
			report.Skipped++
			continue
		}
		todo = append(todo, e)
	}

	var (
		mu       sync.Mutex
		written  atomic.Uint64
		dirs     sync.Map
		extracts atomic.Int64
	)

	work := make(chan *ba2.TextureEntry)
	eg, ctx := errgroup.WithContext(ctx)

	for n := 0; n < min(x.workers, len(todo)); n++ {
		eg.Go(func() error {
			f, err := src.OpenSource()
			if err != nil {
				return fmt.Errorf("open source: %w", err)
			}
			defer f.Close()

			for e := range work {
				n, err := x.extractOne(ctx, e, f, outputDir, &dirs)
				if err != nil {
					if errors.Is(err, ba2.ErrCancelled) {
						return err
					}
					x.logger.Warn().Str("path", e.Path()).Err(err).Msg("extract failed")
					mu.Lock()
					report.Failures = append(report.Failures, Failure{Path: e.Path(), Err: err})
					mu.Unlock()
					continue
				}
				x.logger.Debug().Str("path", e.Path()).Uint64("bytes", n).Msg("extracted")
				written.Add(n)
				extracts.Add(1)
			}
			return nil
		})
	}

	eg.Go(func() error {
		defer close(work)
		for _, e := range todo {
			select {
			case work <- e:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	err := eg.Wait()

	report.Extracted = int(extracts.Load())
	report.Bytes = written.Load()
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].Path < report.Failures[j].Path
	})

	x.logger.Info().
		Int("extracted", report.Extracted).
		Int("failed", len(report.Failures)).
		Int("skipped", report.Skipped).
		Uint64("bytes", report.Bytes).
		Msg("extraction finished")

	return report, err
}

// extractOne writes a single entry and returns its payload byte count.
// A partially written file is removed.
func (x *Extractor) extractOne(ctx context.Context, e *ba2.TextureEntry, src io.ReadSeeker, outputDir string, dirs *sync.Map) (uint64, error) {
	rel, err := OutputPath(e.Path())
	if err != nil {
		return 0, err
	}
	if x.zstd {
		rel += ContainerExt
	}
	path := filepath.Join(outputDir, rel)

	dir := filepath.Dir(path)
	if _, ok := dirs.Load(dir); !ok {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 0, fmt.Errorf("create dir %s: %w", dir, err)
		}
		dirs.Store(dir, struct{}{})
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}

	n, err := x.write(ctx, e, src, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	return n, nil
}

func (x *Extractor) write(ctx context.Context, e *ba2.TextureEntry, src io.ReadSeeker, f *os.File) (uint64, error) {
	var n uint64
	progress := ba2.WithProgress(func(total uint64) { n = total })

	if !x.zstd {
		err := e.Extract(ctx, f, src, !x.raw, progress)
		return n, err
	}

	zw, err := container.NewWriter(f)
	if err != nil {
		return 0, err
	}
	if err := e.Extract(ctx, zw, src, !x.raw, progress); err != nil {
		zw.Close()
		return 0, err
	}
	return n, zw.Close()
}

// OutputPath converts an archive path, which may use backslashes, to a
// relative local path. Paths that would escape the output directory are
// rejected.
func OutputPath(archivePath string) (string, error) {
	p := filepath.FromSlash(strings.ReplaceAll(archivePath, `\`, "/"))
	if !filepath.IsLocal(p) {
		return "", fmt.Errorf("unsafe output path %q", archivePath)
	}
	return p, nil
}
