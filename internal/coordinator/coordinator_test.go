package coordinator

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"GoBMSearch/internal/engine"
	"GoBMSearch/internal/pattern"
	"GoBMSearch/internal/stream"
	"GoBMSearch/internal/testutil"
)

func newTestSearcher(t *testing.T, mutate func(*Config)) *Searcher {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Workers = 4
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sortedOffsets(c *engine.SliceCollector) []int64 {
	out := slices.Clone(c.Offsets())
	slices.Sort(out)
	return out
}

func TestNew_InvalidConfig(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Alphabet = 300 },
		func(c *Config) { c.Alphabet = -1 },
		func(c *Config) { c.MaxMatches = -1 },
		func(c *Config) { c.Workers = -2 },
		func(c *Config) { c.CacheEntries = -1 },
		func(c *Config) { c.ChunkSize = -1 },
	}
	for i, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		if _, err := New(cfg, nil, nil); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("case %d: expected ErrInvalidConfig, got: %v", i, err)
		}
	}
}

func TestNew_CacheAlphabetMismatch(t *testing.T) {
	cache := pattern.NewCache(pattern.CacheOptions{Alphabet: 128})
	_, err := New(DefaultConfig(), cache, nil)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got: %v", err)
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	s, err := New(Config{ChunkSize: stream.MaxChunkSize * 2}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got := s.Config()
	if got.ChunkSize != stream.MaxChunkSize {
		t.Errorf("chunk size = %d, want %d", got.ChunkSize, stream.MaxChunkSize)
	}
	if got.Alphabet != pattern.DefaultAlphabet {
		t.Errorf("alphabet = %d, want %d", got.Alphabet, pattern.DefaultAlphabet)
	}
	if got.MaxMatches != engine.DefaultMaxMatches {
		t.Errorf("max matches = %d, want %d", got.MaxMatches, engine.DefaultMaxMatches)
	}
}

func TestFind_ReferenceCase(t *testing.T) {
	path := testutil.WriteTempFile(t, []byte(testutil.ReferenceText))
	s := newTestSearcher(t, nil)

	c := engine.NewSliceCollector(0)
	res, err := s.Find(context.Background(), path, []byte(testutil.ReferencePattern), c.Collect)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(c.Offsets(), testutil.ReferenceOffsets) {
		t.Errorf("offsets = %v, want %v", c.Offsets(), testutil.ReferenceOffsets)
	}
	if res.Matches != 3 {
		t.Errorf("matches = %d, want 3", res.Matches)
	}
	if res.Chunks != 1 {
		t.Errorf("chunks = %d, want 1", res.Chunks)
	}
	if res.FileSize != 16 || res.BytesScanned != 16 {
		t.Errorf("size = %d, scanned = %d, want 16, 16", res.FileSize, res.BytesScanned)
	}
	if res.CapReached {
		t.Error("cap should not be reached")
	}
}

func TestPFind_ReferenceCase(t *testing.T) {
	path := testutil.WriteTempFile(t, []byte(testutil.ReferenceText))
	s := newTestSearcher(t, nil)

	c := engine.NewSliceCollector(0)
	res, err := s.PFind(context.Background(), path, []byte(testutil.ReferencePattern), c.Collect)
	if err != nil {
		t.Fatal(err)
	}
	if got := sortedOffsets(c); !slices.Equal(got, testutil.ReferenceOffsets) {
		t.Errorf("offsets = %v, want %v", got, testutil.ReferenceOffsets)
	}
	if res.Matches != 3 {
		t.Errorf("matches = %d, want 3", res.Matches)
	}
}

func TestFind_SmallChunksMatchNaive(t *testing.T) {
	text := testutil.RandomText(42, 3000, "ab")
	path := testutil.WriteTempFile(t, text)

	for _, chunk := range []int{1, 3, 4, 5, 64, 1000, 5000} {
		for _, m := range []int{1, 4, 5, 11} {
			p := text[1000 : 1000+m]
			want := testutil.NaiveFind(text, p)

			s := newTestSearcher(t, func(c *Config) { c.ChunkSize = chunk })

			seq := engine.NewSliceCollector(0)
			if _, err := s.Find(context.Background(), path, p, seq.Collect); err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(seq.Offsets(), want) {
				t.Errorf("chunk=%d m=%d: sequential got %d matches, want %d", chunk, m, seq.Len(), len(want))
			}

			par := engine.NewSliceCollector(0)
			if _, err := s.PFind(context.Background(), path, p, par.Collect); err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(sortedOffsets(par), want) {
				t.Errorf("chunk=%d m=%d: parallel got %d matches, want %d", chunk, m, par.Len(), len(want))
			}
		}
	}
}

func TestFind_PatternLongerThanFile(t *testing.T) {
	path := testutil.WriteTempFile(t, []byte("abc"))
	s := newTestSearcher(t, nil)

	res, err := s.Find(context.Background(), path, []byte("abcdef"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Matches != 0 {
		t.Errorf("matches = %d, want 0", res.Matches)
	}
}

func TestFind_EmptyPatternBeforeIO(t *testing.T) {
	s := newTestSearcher(t, nil)
	missing := filepath.Join(t.TempDir(), "missing")

	_, err := s.Find(context.Background(), missing, nil, nil)
	if !errors.Is(err, pattern.ErrInvalidPattern) {
		t.Errorf("expected ErrInvalidPattern, got: %v", err)
	}
}

func TestFind_MissingFile(t *testing.T) {
	s := newTestSearcher(t, nil)
	_, err := s.Find(context.Background(), filepath.Join(t.TempDir(), "missing"), []byte("x"), nil)
	if !errors.Is(err, stream.ErrIO) {
		t.Errorf("expected ErrIO, got: %v", err)
	}
}

func TestPFind_NoConcurrency(t *testing.T) {
	orig := engine.HardwareConcurrency
	engine.HardwareConcurrency = func() int { return 0 }
	t.Cleanup(func() { engine.HardwareConcurrency = orig })

	s := newTestSearcher(t, func(c *Config) { c.Workers = 0 })
	missing := filepath.Join(t.TempDir(), "missing")

	_, err := s.PFind(context.Background(), missing, []byte("x"), nil)
	if !errors.Is(err, engine.ErrNoConcurrency) {
		t.Errorf("expected ErrNoConcurrency before any I/O, got: %v", err)
	}

	// Sequential search is unaffected.
	path := testutil.WriteTempFile(t, []byte("xox"))
	res, err := s.Find(context.Background(), path, []byte("x"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Matches != 2 {
		t.Errorf("matches = %d, want 2", res.Matches)
	}
}

func TestFind_CapStopsReading(t *testing.T) {
	path := testutil.WriteTempFile(t, bytes.Repeat([]byte("a"), 1000))
	s := newTestSearcher(t, func(c *Config) {
		c.ChunkSize = 10
		c.MaxMatches = 5
	})

	c := engine.NewSliceCollector(0)
	res, err := s.Find(context.Background(), path, []byte("a"), c.Collect)
	if err != nil {
		t.Fatal(err)
	}
	if res.Matches != 5 || c.Len() != 5 {
		t.Errorf("matches = %d, collected = %d, want 5", res.Matches, c.Len())
	}
	if !res.CapReached {
		t.Error("cap should be reached")
	}
	if res.Chunks != 1 {
		t.Errorf("chunks = %d, want 1", res.Chunks)
	}
}

func TestPFind_CapBounded(t *testing.T) {
	path := testutil.WriteTempFile(t, bytes.Repeat([]byte("a"), 1000))
	s := newTestSearcher(t, func(c *Config) {
		c.ChunkSize = 100
		c.MaxMatches = 150
		c.Workers = 4
	})

	res, err := s.PFind(context.Background(), path, []byte("a"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Matches < 150 || res.Matches > 150+3 {
		t.Errorf("matches = %d, want within [150, 153]", res.Matches)
	}
	if !res.CapReached {
		t.Error("cap should be reached")
	}
}

func TestFind_CancelledContext(t *testing.T) {
	path := testutil.WriteTempFile(t, []byte("aaaa"))
	s := newTestSearcher(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.Find(ctx, path, []byte("a"), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if res.Chunks != 0 {
		t.Errorf("chunks = %d, want 0", res.Chunks)
	}
}

func TestFind_CancelBetweenChunks(t *testing.T) {
	path := testutil.WriteTempFile(t, bytes.Repeat([]byte("ab"), 50))
	s := newTestSearcher(t, func(c *Config) { c.ChunkSize = 10 })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := engine.NewSliceCollector(0)
	res, err := s.Find(ctx, path, []byte("ab"), func(off int64, rest []byte) {
		c.Collect(off, rest)
		cancel()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if res.Chunks != 1 {
		t.Errorf("chunks = %d, want 1", res.Chunks)
	}
	// The chunk in progress finishes.
	if c.Len() != 5 {
		t.Errorf("collected = %d, want 5", c.Len())
	}
}

func TestSearcher_Closed(t *testing.T) {
	s := newTestSearcher(t, nil)
	path := testutil.WriteTempFile(t, []byte("abc"))
	if _, err := s.PFind(context.Background(), path, []byte("b"), nil); err != nil {
		t.Fatal(err)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	if _, err := s.Find(context.Background(), path, []byte("b"), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Find: expected ErrClosed, got: %v", err)
	}
	if _, err := s.PFind(context.Background(), path, []byte("b"), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("PFind: expected ErrClosed, got: %v", err)
	}
}

func TestSearcher_SharedCache(t *testing.T) {
	cache := pattern.NewCache(pattern.DefaultCacheOptions())
	cfg := DefaultConfig()
	cfg.Workers = 2

	a, err := New(cfg, cache, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := New(cfg, cache, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	text := []byte(testutil.ReferenceText)
	p := []byte(testutil.ReferencePattern)
	if _, err := a.FindInBuffer(context.Background(), text, p, false, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := b.FindInBuffer(context.Background(), text, p, true, nil); err != nil {
		t.Fatal(err)
	}

	stats := cache.Stats()
	if stats.Entries != 1 || stats.Misses != 1 || stats.Hits != 1 {
		t.Errorf("stats = %+v, want 1 entry, 1 miss, 1 hit", stats)
	}
	if a.CacheStats() != b.CacheStats() {
		t.Error("searchers should report the same cache")
	}
}

func TestFindInBuffer(t *testing.T) {
	s := newTestSearcher(t, nil)
	text := []byte(testutil.ReferenceText)
	p := []byte(testutil.ReferencePattern)

	for _, parallel := range []bool{false, true} {
		c := engine.NewSliceCollector(0)
		res, err := s.FindInBuffer(context.Background(), text, p, parallel, c.Collect)
		if err != nil {
			t.Fatal(err)
		}
		if got := sortedOffsets(c); !slices.Equal(got, testutil.ReferenceOffsets) {
			t.Errorf("parallel=%v: offsets = %v, want %v", parallel, got, testutil.ReferenceOffsets)
		}
		if res.Chunks != 1 || res.FileSize != int64(len(text)) {
			t.Errorf("parallel=%v: chunks = %d, size = %d", parallel, res.Chunks, res.FileSize)
		}
	}

	res, err := s.FindInBuffer(context.Background(), nil, p, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Matches != 0 || res.Chunks != 0 {
		t.Errorf("empty buffer: %+v", res)
	}
}

func TestFind_HackpadFS(t *testing.T) {
	fs := testutil.MemFS(t, map[string][]byte{
		"corpus.txt": []byte(testutil.ReferenceText),
	})
	s := newTestSearcher(t, func(c *Config) {
		c.FS = fs
		c.ChunkSize = 5
	})

	c := engine.NewSliceCollector(0)
	if _, err := s.Find(context.Background(), "corpus.txt", []byte(testutil.ReferencePattern), c.Collect); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(c.Offsets(), testutil.ReferenceOffsets) {
		t.Errorf("offsets = %v, want %v", c.Offsets(), testutil.ReferenceOffsets)
	}
}

func TestFind_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	path := testutil.WriteTempFile(t, []byte(testutil.ReferenceText))
	s := newTestSearcher(t, func(c *Config) { c.MeterProvider = mp })
	if _, err := s.Find(context.Background(), path, []byte(testutil.ReferencePattern), nil); err != nil {
		t.Fatal(err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	sums := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	if sums["bmsearch_matches_total"] != 3 {
		t.Errorf("matches metric = %d, want 3", sums["bmsearch_matches_total"])
	}
	if sums["bmsearch_bytes_scanned_total"] != 16 {
		t.Errorf("bytes metric = %d, want 16", sums["bmsearch_bytes_scanned_total"])
	}
	if sums["bmsearch_pattern_cache_lookups_total"] != 1 {
		t.Errorf("cache lookups = %d, want 1", sums["bmsearch_pattern_cache_lookups_total"])
	}
}
