package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"GoBMSearch/internal/engine"
)

func newBenchCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "bench <file> <pattern> <max-matches>",
		Short: "Time a sequential and a parallel search of the same file",
		Long: `bench runs the search once on a single goroutine and once split across
the worker pool, then prints the match count and elapsed milliseconds of
each run.`,
		Args:         cobra.ExactArgs(3),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			maxMatches, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("max-matches %q: %w", args[2], err)
			}
			bo := *o
			bo.maxMatches = maxMatches
			return runBench(cmd, &bo, args[0], []byte(args[1]))
		},
	}
}

func runBench(cmd *cobra.Command, o *options, path string, pat []byte) error {
	ss, err := o.open(cmd)
	if err != nil {
		return err
	}
	defer ss.Close()

	out := cmd.OutOrStdout()
	for _, parallel := range []bool{false, true} {
		name := "sequential"
		if parallel {
			name = "parallel"
		}

		var counter engine.CountingCollector
		start := time.Now()
		if _, err := ss.find(cmd.Context(), path, pat, parallel, counter.Collect); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Fprintf(out, "%-10s matches=%d elapsed_ms=%d\n", name, counter.Len(), time.Since(start).Milliseconds())
	}
	return nil
}
