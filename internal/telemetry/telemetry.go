// Package telemetry holds the OpenTelemetry instruments recorded by searches
// and the OTLP exporter setup used by the command line tool.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ScopeName is the instrumentation scope of every meter and tracer here.
const ScopeName = "GoBMSearch"

// Search modes recorded as the "mode" attribute.
const (
	ModeSequential = "sequential"
	ModeParallel   = "parallel"
)

// Instruments are the search metrics.
type Instruments struct {
	Searches       metric.Int64Counter
	Matches        metric.Int64Counter
	BytesScanned   metric.Int64Counter
	Chunks         metric.Int64Counter
	SearchDuration metric.Float64Histogram
	CacheLookups   metric.Int64Counter
}

// NewInstruments creates the instruments on mp. A nil mp means the global
// meter provider.
func NewInstruments(mp metric.MeterProvider) (*Instruments, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(ScopeName)

	var (
		in  Instruments
		err error
	)
	if in.Searches, err = meter.Int64Counter("bmsearch_searches_total",
		metric.WithDescription("Completed search calls.")); err != nil {
		return nil, err
	}
	if in.Matches, err = meter.Int64Counter("bmsearch_matches_total",
		metric.WithDescription("Occurrences reported.")); err != nil {
		return nil, err
	}
	if in.BytesScanned, err = meter.Int64Counter("bmsearch_bytes_scanned_total",
		metric.WithDescription("Source bytes delivered to matchers."),
		metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if in.Chunks, err = meter.Int64Counter("bmsearch_chunks_total",
		metric.WithDescription("Chunks scanned.")); err != nil {
		return nil, err
	}
	if in.SearchDuration, err = meter.Float64Histogram("bmsearch_search_duration_ms",
		metric.WithDescription("Wall time of a search call."),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if in.CacheLookups, err = meter.Int64Counter("bmsearch_pattern_cache_lookups_total",
		metric.WithDescription("Pattern table lookups by outcome.")); err != nil {
		return nil, err
	}
	return &in, nil
}

// Search is the summary of one finished search.
type Search struct {
	Mode         string
	Matches      int64
	BytesScanned int64
	Chunks       int64
	CapReached   bool
	Took         time.Duration
	Err          error
}

// RecordSearch adds one finished search to the instruments.
func (in *Instruments) RecordSearch(ctx context.Context, s Search) {
	attrs := metric.WithAttributes(
		attribute.String("mode", s.Mode),
		attribute.Bool("cap_reached", s.CapReached),
		attribute.Bool("error", s.Err != nil),
	)
	in.Searches.Add(ctx, 1, attrs)
	in.Matches.Add(ctx, s.Matches, attrs)
	in.BytesScanned.Add(ctx, s.BytesScanned, attrs)
	in.Chunks.Add(ctx, s.Chunks, attrs)
	in.SearchDuration.Record(ctx, float64(s.Took)/float64(time.Millisecond), attrs)
}

// RecordCacheLookup counts one pattern table lookup.
func (in *Instruments) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	in.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// Tracer returns the tracer for search spans from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(ScopeName)
}
