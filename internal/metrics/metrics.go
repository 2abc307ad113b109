// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the load run.
//
// A global, pluggable backend defaults to a no-op implementation, so the
// recording helpers are always safe to call even when no real backend is
// configured. Concrete metric systems live in subpackages (prompush, datadog).
package metrics

import "time"

// Metric names emitted by the helpers below.
const (
	FilesTotal          = "sparkify_files_total"
	FileDurationSeconds = "sparkify_file_duration_seconds"
	RowsTotal           = "sparkify_rows_total"
	SkippedTotal        = "sparkify_skipped_total"
	BulkLoadsTotal      = "sparkify_bulk_loads_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordFile measures latency and success/failure of one input file.
// tree is "songs" or "logs".
func RecordFile(job, tree string, err error, d time.Duration) {
	lbls := Labels{
		"job":    job,
		"tree":   tree,
		"status": status(err),
	}
	backend.IncCounter(FilesTotal, 1, lbls)
	backend.ObserveHistogram(FileDurationSeconds, d.Seconds(), lbls)
}

// RecordRows counts insert statements executed (or rows bulk-copied) per table.
func RecordRows(job, table string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{
		"job":   job,
		"table": table,
	})
}

// RecordSkipped counts input records excluded from a table, by reason.
func RecordSkipped(job, reason string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(SkippedTotal, float64(delta), Labels{
		"job":    job,
		"reason": reason,
	})
}

// RecordBulkLoad counts bulk-load attempts per table and outcome.
func RecordBulkLoad(job, table string, err error) {
	backend.IncCounter(BulkLoadsTotal, 1, Labels{
		"job":    job,
		"table":  table,
		"status": status(err),
	})
}
