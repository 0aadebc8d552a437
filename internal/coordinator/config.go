package coordinator

import (
	"errors"
	"fmt"

	"github.com/hack-pad/hackpadfs"
	"go.opentelemetry.io/otel/metric"

	"GoBMSearch/internal/engine"
	"GoBMSearch/internal/pattern"
	"GoBMSearch/internal/stream"
)

var ErrInvalidConfig = errors.New("coordinator: invalid config")

// Config configures a Searcher.
type Config struct {
	// ChunkSize is the number of new bytes read per chunk, clamped to
	// stream.MaxChunkSize.
	ChunkSize int `json:"chunk_size"`

	// Alphabet is the byte-value range patterns are drawn from.
	Alphabet int `json:"alphabet"`

	// MaxMatches caps the matches reported by one search call.
	MaxMatches int64 `json:"max_matches"`

	// Workers is the partition count for parallel searches. Zero means
	// engine.HardwareConcurrency() at the time the pool is started.
	Workers int `json:"workers"`

	// CacheEntries bounds the pattern cache New creates when none is
	// given. Zero means unbounded.
	CacheEntries int `json:"cache_entries"`

	// FS, when set, is where paths are opened instead of the operating
	// system.
	FS hackpadfs.FS `json:"-"`

	// MeterProvider receives search metrics. Nil means the global provider.
	MeterProvider metric.MeterProvider `json:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:  stream.DefaultChunkSize,
		Alphabet:   pattern.DefaultAlphabet,
		MaxMatches: engine.DefaultMaxMatches,
		Workers:    engine.HardwareConcurrency(),
	}
}

// withDefaults fills zero fields and clamps the chunk size.
func (c Config) withDefaults() Config {
	c.ChunkSize = stream.ClampChunkSize(c.ChunkSize)
	if c.Alphabet == 0 {
		c.Alphabet = pattern.DefaultAlphabet
	}
	if c.MaxMatches == 0 {
		c.MaxMatches = engine.DefaultMaxMatches
	}
	return c
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.ChunkSize < 0:
		return fmt.Errorf("%w: chunk size %d", ErrInvalidConfig, c.ChunkSize)
	case c.Alphabet < 0 || c.Alphabet > pattern.MaxAlphabet:
		return fmt.Errorf("%w: alphabet %d outside [1, %d]", ErrInvalidConfig, c.Alphabet, pattern.MaxAlphabet)
	case c.MaxMatches < 0:
		return fmt.Errorf("%w: max matches %d", ErrInvalidConfig, c.MaxMatches)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers %d", ErrInvalidConfig, c.Workers)
	case c.CacheEntries < 0:
		return fmt.Errorf("%w: cache entries %d", ErrInvalidConfig, c.CacheEntries)
	}
	return nil
}
