// Package stream reads a file as a sequence of overlapping chunks so that a
// matcher can scan it without holding the whole file in memory.
package stream

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hack-pad/hackpadfs"
)

const (
	// MiB is one mebibyte.
	MiB = 1 << 20

	// DefaultChunkSize is the number of new bytes read per chunk.
	DefaultChunkSize = 2 * MiB

	// MaxChunkSize bounds peak buffer memory per stream.
	MaxChunkSize = 200 * MiB
)

var (
	ErrIO             = errors.New("stream: i/o error")
	ErrAllocation     = errors.New("stream: buffer allocation failed")
	ErrInvalidOverlap = errors.New("stream: invalid overlap")
	ErrNotStarted     = errors.New("stream: not started")
)

// Action tells ForEachChunk whether to keep reading.
type Action int

const (
	Continue Action = iota
	Stop
)

// Options configures a Streamer.
type Options struct {
	// ChunkSize is the number of new bytes per chunk, clamped to
	// [1, MaxChunkSize]. Default: DefaultChunkSize.
	ChunkSize int

	// FS, when set, is used instead of the operating system to open paths.
	// Paths must then be valid hackpadfs paths (slash separated, unrooted).
	FS hackpadfs.FS

	// Logger for stream events. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		ChunkSize: DefaultChunkSize,
	}
}

// ClampChunkSize applies the default and the ceiling to a chunk size.
func ClampChunkSize(n int) int {
	switch {
	case n <= 0:
		return DefaultChunkSize
	case n > MaxChunkSize:
		return MaxChunkSize
	default:
		return n
	}
}

// Streamer delivers a file as overlapping chunks. A Streamer is used by one
// goroutine at a time; the buffer handed to an action is only valid until
// the action returns.
type Streamer struct {
	chunkSize int
	fsys      hackpadfs.FS
	logger    *slog.Logger

	path string
	src  io.ReadCloser
	size int64
	buf  *[]byte
}

// New creates a Streamer. Call Start before ForEachChunk.
func New(opts Options) *Streamer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{
		chunkSize: ClampChunkSize(opts.ChunkSize),
		fsys:      opts.FS,
		logger:    logger,
	}
}

// ChunkSize returns the effective chunk size after clamping.
func (s *Streamer) ChunkSize() int {
	return s.chunkSize
}

// Path returns the path passed to Start.
func (s *Streamer) Path() string {
	return s.path
}

// Start opens path and returns its size in bytes. Any previously started
// source is closed first.
func (s *Streamer) Start(path string) (int64, error) {
	if s.src != nil {
		_ = s.Close()
	}

	src, size, err := s.open(path)
	if err != nil {
		return 0, err
	}
	s.path = path
	s.src = src
	s.size = size
	return size, nil
}

func (s *Streamer) open(path string) (io.ReadCloser, int64, error) {
	var (
		f    io.ReadCloser
		info os.FileInfo
		err  error
	)
	if s.fsys != nil {
		var hf hackpadfs.File
		hf, err = s.fsys.Open(path)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
		}
		f = hf
		info, err = hf.Stat()
	} else {
		var of *os.File
		of, err = os.Open(path)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
		}
		f = of
		info, err = of.Stat()
	}
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("%w: %s is a directory", ErrIO, path)
	}
	return f, info.Size(), nil
}

// Close releases the source and returns the read buffer to the pool.
func (s *Streamer) Close() error {
	if s.buf != nil {
		putBuffer(s.buf)
		s.buf = nil
	}
	if s.src == nil {
		return nil
	}
	err := s.src.Close()
	s.src = nil
	if err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrIO, s.path, err)
	}
	return nil
}

// ForEachChunk reads the source to the end, calling action once per chunk.
//
// The first chunk holds up to ChunkSize+overlap bytes. Every later chunk
// starts with the last overlap bytes of its predecessor followed by up to
// ChunkSize new bytes, so any window of overlap+1 bytes in the source lies
// entirely within some chunk. For a pattern of length m, overlap must be
// m-1. The file offset of chunk k+1 is the offset of chunk k plus
// len(chunk k) - overlap.
//
// Reading stops when action returns Stop, the source is exhausted, or a read
// fails. Chunks already delivered before a failure are not retracted.
func (s *Streamer) ForEachChunk(overlap int, action func(chunk []byte) Action) error {
	if s.src == nil {
		return ErrNotStarted
	}
	if overlap < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidOverlap, overlap)
	}

	if err := s.ensureBuffer(s.chunkSize + overlap); err != nil {
		return err
	}
	buf := *s.buf

	n, eof, err := s.fill(buf[:s.chunkSize+overlap])
	if err != nil {
		return err
	}
	chunks := 0
	for n > 0 {
		chunks++
		s.logger.Debug("chunk read", "path", s.path, "chunk", chunks, "bytes", n)
		if action(buf[:n]) == Stop || eof {
			return nil
		}

		keep := overlap
		if keep > n {
			keep = n
		}
		copy(buf, buf[n-keep:n])

		var nr int
		nr, eof, err = s.fill(buf[keep : keep+s.chunkSize])
		if err != nil {
			return err
		}
		if nr == 0 {
			return nil
		}
		n = keep + nr
	}
	return nil
}

// fill reads until p is full or the source ends.
func (s *Streamer) fill(p []byte) (int, bool, error) {
	n, err := io.ReadFull(s.src, p)
	switch {
	case err == nil:
		return n, false, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return n, true, nil
	default:
		return n, true, fmt.Errorf("%w: read %s: %w", ErrIO, s.path, err)
	}
}

func (s *Streamer) ensureBuffer(n int) error {
	if s.buf != nil && len(*s.buf) >= n {
		return nil
	}
	if s.buf != nil {
		putBuffer(s.buf)
		s.buf = nil
	}
	buf, err := getBuffer(n)
	if err != nil {
		return err
	}
	s.buf = buf
	return nil
}
