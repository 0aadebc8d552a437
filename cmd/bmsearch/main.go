package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"GoBMSearch/internal/coordinator"
	"GoBMSearch/internal/engine"
	"GoBMSearch/internal/telemetry"
)

// Version is set at build time via -ldflags.
var Version = "dev"

type options struct {
	maxMatches   int64
	chunkSize    int
	alphabet     int
	parallel     bool
	workers      int
	print        bool
	unique       bool
	otlpEndpoint string
}

func main() {
	telemetry.Version = Version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	defaults := coordinator.DefaultConfig()
	o := &options{}

	root := &cobra.Command{
		Use:   "bmsearch [flags] <file> <pattern>",
		Short: "Find every occurrence of a byte pattern in a file",
		Long: `bmsearch scans a file of any size for an exact byte pattern with the
Boyer-Moore algorithm, reading it in overlapping chunks. Overlapping
occurrences are all reported.

By default only the number of matches is printed. --print writes each
offset as it is found; --unique writes the distinct offsets in increasing
order once the search finishes.`,
		Version:      Version,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, o, args[0], []byte(args[1]))
		},
	}

	flags := root.PersistentFlags()
	flags.Int64Var(&o.maxMatches, "max-matches", defaults.MaxMatches, "Stop after this many matches")
	flags.IntVar(&o.chunkSize, "chunk-size", getEnvInt("BMSEARCH_CHUNK_SIZE", defaults.ChunkSize), "Bytes read per chunk")
	flags.IntVar(&o.alphabet, "alphabet", defaults.Alphabet, "Byte-value range of the pattern (1-256)")
	flags.IntVar(&o.workers, "workers", getEnvInt("BMSEARCH_WORKERS", defaults.Workers), "Partitions per chunk in parallel mode")
	flags.StringVar(&o.otlpEndpoint, "otlp-endpoint", getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""), "OTLP gRPC collector address (host:port); empty disables export")
	root.Flags().BoolVar(&o.parallel, "parallel", false, "Split every chunk across worker goroutines")
	root.Flags().BoolVar(&o.print, "print", false, "Print each match offset")
	root.Flags().BoolVar(&o.unique, "unique", false, "Print distinct match offsets in increasing order")

	root.AddCommand(newBenchCmd(o))
	return root
}

func (o *options) config() coordinator.Config {
	cfg := coordinator.DefaultConfig()
	cfg.MaxMatches = o.maxMatches
	cfg.ChunkSize = o.chunkSize
	cfg.Alphabet = o.alphabet
	cfg.Workers = o.workers
	return cfg
}

// session holds what every subcommand sets up before searching.
type session struct {
	searcher *coordinator.Searcher
	logger   *slog.Logger
	shutdown telemetry.ShutdownFunc
}

func (o *options) open(cmd *cobra.Command) (*session, error) {
	logger := initLogger(cmd.ErrOrStderr())

	shutdown, err := telemetry.Init(cmd.Context(), "bmsearch", o.otlpEndpoint)
	if err != nil {
		logger.Warn("telemetry disabled", "error", err)
		shutdown = func(context.Context) error { return nil }
	}

	s, err := coordinator.New(o.config(), nil, logger)
	if err != nil {
		telemetry.Flush(context.Background(), shutdown)
		return nil, err
	}
	return &session{searcher: s, logger: logger, shutdown: shutdown}, nil
}

func (ss *session) Close() {
	ss.searcher.Close()
	telemetry.Flush(context.Background(), ss.shutdown)
}

// find runs a parallel search when asked, retrying sequentially when the
// machine reports no concurrency.
func (ss *session) find(ctx context.Context, path string, pat []byte, parallel bool, emit engine.Emitter) (*coordinator.Result, error) {
	if parallel {
		res, err := ss.searcher.PFind(ctx, path, pat, emit)
		if !errors.Is(err, engine.ErrNoConcurrency) {
			return res, err
		}
		ss.logger.Warn("parallel search unavailable, searching sequentially", "error", err)
	}
	return ss.searcher.Find(ctx, path, pat, emit)
}

func runSearch(cmd *cobra.Command, o *options, path string, pat []byte) error {
	ss, err := o.open(cmd)
	if err != nil {
		return err
	}
	defer ss.Close()

	out := bufio.NewWriter(cmd.OutOrStdout())
	defer out.Flush()

	var (
		emit   engine.Emitter
		bitmap *engine.BitmapCollector
	)
	switch {
	case o.unique:
		bitmap = engine.NewBitmapCollector()
		emit = bitmap.Collect
	case o.print:
		emit = func(offset int64, _ []byte) {
			fmt.Fprintln(out, offset)
		}
	}

	res, err := ss.find(cmd.Context(), path, pat, o.parallel, emit)
	if err != nil {
		return err
	}

	switch {
	case bitmap != nil:
		for _, off := range bitmap.Offsets() {
			fmt.Fprintln(out, off)
		}
	case !o.print:
		fmt.Fprintln(out, res.Matches)
	}
	return nil
}

func initLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(getEnv("BMSEARCH_LOG_LEVEL", "warn"))}

	var handler slog.Handler
	switch strings.ToLower(getEnv("BMSEARCH_JSON_LOG", "")) {
	case "1", "true", "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
