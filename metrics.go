package tablo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    buildHistogram  prometheus.Histogram
//	    lookupHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordBuild(rows int, duration time.Duration, err error) {
//	    p.buildHistogram.Observe(duration.Seconds())
//	    // ... record error state, row count, etc.
//	}
type MetricsCollector interface {
	// RecordBuild is called after each index build.
	// rows is the number of physical rows visited, duration is the total
	// build time, err is nil if successful.
	RecordBuild(rows int, duration time.Duration, err error)

	// RecordLookup is called after each lookup operation.
	// found reports whether the key existed, err is nil if successful.
	RecordLookup(duration time.Duration, found bool, err error)

	// RecordScan is called after each scan completes or aborts.
	// rows is the number of rows yielded.
	RecordScan(rows int, duration time.Duration, err error)

	// RecordExport is called after each export operation.
	RecordExport(rows int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordBuild(int, time.Duration, error)         {}
func (NoopMetricsCollector) RecordLookup(time.Duration, bool, error)       {}
func (NoopMetricsCollector) RecordScan(int, time.Duration, error)          {}
func (NoopMetricsCollector) RecordExport(int, time.Duration, error)        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	BuildCount       atomic.Int64
	BuildErrors      atomic.Int64
	BuildRows        atomic.Int64
	BuildTotalNanos  atomic.Int64
	LookupCount      atomic.Int64
	LookupMisses     atomic.Int64
	LookupErrors     atomic.Int64
	LookupTotalNanos atomic.Int64
	ScanCount        atomic.Int64
	ScanRows         atomic.Int64
	ScanErrors       atomic.Int64
	ExportCount      atomic.Int64
	ExportRows       atomic.Int64
	ExportErrors     atomic.Int64
}

// RecordBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBuild(rows int, duration time.Duration, err error) {
	b.BuildCount.Add(1)
	b.BuildRows.Add(int64(rows))
	b.BuildTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.BuildErrors.Add(1)
	}
}

// RecordLookup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLookup(duration time.Duration, found bool, err error) {
	b.LookupCount.Add(1)
	b.LookupTotalNanos.Add(duration.Nanoseconds())
	if !found {
		b.LookupMisses.Add(1)
	}
	if err != nil {
		b.LookupErrors.Add(1)
	}
}

// RecordScan implements MetricsCollector.
func (b *BasicMetricsCollector) RecordScan(rows int, duration time.Duration, err error) {
	b.ScanCount.Add(1)
	b.ScanRows.Add(int64(rows))
	if err != nil {
		b.ScanErrors.Add(1)
	}
}

// RecordExport implements MetricsCollector.
func (b *BasicMetricsCollector) RecordExport(rows int, duration time.Duration, err error) {
	b.ExportCount.Add(1)
	b.ExportRows.Add(int64(rows))
	if err != nil {
		b.ExportErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		BuildCount:      b.BuildCount.Load(),
		BuildErrors:     b.BuildErrors.Load(),
		BuildRows:       b.BuildRows.Load(),
		BuildAvgNanos:   avgNanos(&b.BuildTotalNanos, &b.BuildCount),
		LookupCount:     b.LookupCount.Load(),
		LookupMisses:    b.LookupMisses.Load(),
		LookupErrors:    b.LookupErrors.Load(),
		LookupAvgNanos:  avgNanos(&b.LookupTotalNanos, &b.LookupCount),
		ScanCount:       b.ScanCount.Load(),
		ScanRows:        b.ScanRows.Load(),
		ScanErrors:      b.ScanErrors.Load(),
		ExportCount:     b.ExportCount.Load(),
		ExportRows:      b.ExportRows.Load(),
		ExportErrors:    b.ExportErrors.Load(),
	}
}

func avgNanos(total, count *atomic.Int64) int64 {
	c := count.Load()
	if c == 0 {
		return 0
	}
	return total.Load() / c
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	BuildCount     int64
	BuildErrors    int64
	BuildRows      int64
	BuildAvgNanos  int64
	LookupCount    int64
	LookupMisses   int64
	LookupErrors   int64
	LookupAvgNanos int64
	ScanCount      int64
	ScanRows       int64
	ScanErrors     int64
	ExportCount    int64
	ExportRows     int64
	ExportErrors   int64
}
