// Package coordinator drives a search end to end: it resolves the pattern's
// tables, streams the source in overlapping chunks and hands each chunk to
// the sequential or parallel matcher, translating offsets to file offsets.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"GoBMSearch/internal/engine"
	"GoBMSearch/internal/pattern"
	"GoBMSearch/internal/stream"
	"GoBMSearch/internal/telemetry"
)

var ErrClosed = errors.New("coordinator: searcher closed")

// Result summarizes one search call. After a failure it describes the work
// done before the failure; matches already emitted stay emitted.
type Result struct {
	Matches      int64         `json:"matches"`
	Chunks       int           `json:"chunks"`
	BytesScanned int64         `json:"bytes_scanned"`
	FileSize     int64         `json:"file_size"`
	CapReached   bool          `json:"cap_reached"`
	Took         time.Duration `json:"took"`
}

// Searcher runs searches with one configuration. Searches may run
// concurrently; each gets its own match counter, and parallel searches
// share one worker pool.
type Searcher struct {
	config  Config
	cache   *pattern.Cache
	metrics *telemetry.Instruments
	logger  *slog.Logger

	mu      sync.Mutex
	closed  bool
	pool    *engine.Pool
	matcher *engine.ParallelMatcher
}

// New creates a Searcher. A nil cache gets a private one sized by
// config.CacheEntries; a shared cache must use config.Alphabet.
func New(config Config, cache *pattern.Cache, logger *slog.Logger) (*Searcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	if cache == nil {
		cache = pattern.NewCache(pattern.CacheOptions{
			Alphabet:   config.Alphabet,
			MaxEntries: config.CacheEntries,
		})
	} else if cache.Alphabet() != config.Alphabet {
		return nil, fmt.Errorf("%w: cache alphabet %d, config alphabet %d",
			ErrInvalidConfig, cache.Alphabet(), config.Alphabet)
	}

	metrics, err := telemetry.NewInstruments(config.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("coordinator: instruments: %w", err)
	}

	return &Searcher{
		config:  config,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Config returns the effective configuration.
func (s *Searcher) Config() Config {
	return s.config
}

// CacheStats returns the pattern cache counters.
func (s *Searcher) CacheStats() pattern.CacheStats {
	return s.cache.Stats()
}

// Find searches the file at path on the calling goroutine, emitting the
// absolute offset of every occurrence of pat in increasing order until the
// source ends, MaxMatches is reached, or ctx is done. ctx is checked between
// chunks.
func (s *Searcher) Find(ctx context.Context, path string, pat []byte, emit engine.Emitter) (*Result, error) {
	return s.run(ctx, path, nil, pat, telemetry.ModeSequential, emit)
}

// PFind is Find with every chunk partitioned across the worker pool.
// Offsets arrive chunk by chunk in partition order, which is not sorted
// overall, and the total may exceed MaxMatches by less than the worker
// count. ErrNoConcurrency is returned before the file is opened when no
// workers are available.
func (s *Searcher) PFind(ctx context.Context, path string, pat []byte, emit engine.Emitter) (*Result, error) {
	return s.run(ctx, path, nil, pat, telemetry.ModeParallel, emit)
}

// FindInBuffer searches text held in memory, sequentially or in parallel.
func (s *Searcher) FindInBuffer(ctx context.Context, text, pat []byte, parallel bool, emit engine.Emitter) (*Result, error) {
	mode := telemetry.ModeSequential
	if parallel {
		mode = telemetry.ModeParallel
	}
	if text == nil {
		text = []byte{}
	}
	return s.run(ctx, "", text, pat, mode, emit)
}

// Close stops the worker pool. Searches started afterwards fail with
// ErrClosed.
func (s *Searcher) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
		s.matcher = nil
	}
	return nil
}

// chunkMatcher scans one buffer whose first byte is at file offset base.
type chunkMatcher func(buf []byte, base int64) (int64, error)

// run executes one search over the file at path, or over text when it is
// non-nil.
func (s *Searcher) run(ctx context.Context, path string, text, pat []byte, mode string, emit engine.Emitter) (res *Result, err error) {
	start := time.Now()
	res = &Result{}

	ctx, span := telemetry.Tracer().Start(ctx, "bmsearch.search", trace.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("path", path),
		attribute.Int("pattern_len", len(pat)),
	))
	defer func() {
		res.Took = time.Since(start)
		s.finish(ctx, span, path, mode, res, err)
	}()

	if err := s.checkOpen(); err != nil {
		return res, err
	}

	var pm *engine.ParallelMatcher
	if mode == telemetry.ModeParallel {
		if pm, err = s.parallelMatcher(); err != nil {
			return res, err
		}
	}

	tables, err := s.tables(ctx, pat)
	if err != nil {
		return res, err
	}

	ctr := engine.NewCounter(s.config.MaxMatches)
	var match chunkMatcher = func(buf []byte, base int64) (int64, error) {
		return engine.Search(buf, tables, 0, len(buf), base, ctr, emit)
	}
	if pm != nil {
		match = func(buf []byte, base int64) (int64, error) {
			return pm.Search(buf, tables, base, ctr, emit)
		}
	}

	if text != nil {
		res.FileSize = int64(len(text))
		err = s.scanBuffer(ctx, text, match, res)
	} else {
		err = s.scanFile(ctx, path, tables.Len()-1, match, res)
	}
	res.CapReached = ctr.Reached()
	return res, err
}

func (s *Searcher) scanBuffer(ctx context.Context, text []byte, match chunkMatcher, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(text) == 0 {
		return nil
	}
	n, err := match(text, 0)
	res.Matches += n
	res.Chunks = 1
	res.BytesScanned = int64(len(text))
	return err
}

func (s *Searcher) scanFile(ctx context.Context, path string, overlap int, match chunkMatcher, res *Result) error {
	st := stream.New(stream.Options{
		ChunkSize: s.config.ChunkSize,
		FS:        s.config.FS,
		Logger:    s.logger,
	})
	defer st.Close()

	size, err := st.Start(path)
	if err != nil {
		return err
	}
	res.FileSize = size

	var (
		base    int64
		scanErr error
	)
	err = st.ForEachChunk(overlap, func(chunk []byte) stream.Action {
		if scanErr = ctx.Err(); scanErr != nil {
			return stream.Stop
		}

		n, err := match(chunk, base)
		res.Matches += n
		res.Chunks++
		res.BytesScanned = base + int64(len(chunk))
		if err != nil {
			scanErr = err
			return stream.Stop
		}
		if res.Matches >= s.config.MaxMatches {
			return stream.Stop
		}

		base += int64(len(chunk) - overlap)
		return stream.Continue
	})
	if scanErr != nil {
		return scanErr
	}
	return err
}

func (s *Searcher) tables(ctx context.Context, pat []byte) (*pattern.Tables, error) {
	t, cached, err := s.cache.Lookup(pat)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordCacheLookup(ctx, cached)
	return t, nil
}

func (s *Searcher) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// parallelMatcher starts the pool on first use.
func (s *Searcher) parallelMatcher() (*engine.ParallelMatcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.matcher != nil {
		return s.matcher, nil
	}

	workers := s.config.Workers
	if workers <= 0 {
		workers = engine.HardwareConcurrency()
	}
	pool, err := engine.NewPool(workers)
	if err != nil {
		return nil, err
	}
	pm, err := engine.NewParallelMatcher(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.pool = pool
	s.matcher = pm
	s.logger.Debug("worker pool started", "workers", workers)
	return pm, nil
}

func (s *Searcher) finish(ctx context.Context, span trace.Span, path, mode string, res *Result, err error) {
	defer span.End()

	span.SetAttributes(
		attribute.Int64("matches", res.Matches),
		attribute.Int("chunks", res.Chunks),
		attribute.Bool("cap_reached", res.CapReached),
	)
	s.metrics.RecordSearch(ctx, telemetry.Search{
		Mode:         mode,
		Matches:      res.Matches,
		BytesScanned: res.BytesScanned,
		Chunks:       int64(res.Chunks),
		CapReached:   res.CapReached,
		Took:         res.Took,
		Err:          err,
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("search failed",
			"path", path,
			"mode", mode,
			"matches", res.Matches,
			"error", err,
		)
		return
	}
	s.logger.Info("search finished",
		"path", path,
		"mode", mode,
		"matches", res.Matches,
		"chunks", res.Chunks,
		"cap_reached", res.CapReached,
		"took_ms", res.Took.Milliseconds(),
	)
}
