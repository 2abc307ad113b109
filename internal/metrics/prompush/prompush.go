// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// A batch run exits before any scraper would see it, so collectors are kept
// in a private registry and pushed to a Pushgateway on Flush.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"sparkify/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	fileCounter  *prometheus.CounterVec // sparkify_files_total
	fileDuration *prometheus.SummaryVec // sparkify_file_duration_seconds
	rowCounter   *prometheus.CounterVec // sparkify_rows_total
	skipCounter  *prometheus.CounterVec // sparkify_skipped_total
	bulkCounter  *prometheus.CounterVec // sparkify_bulk_loads_total
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName is the Pushgateway "job" grouping key; gatewayURL is its base URL.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "sparkify"
	}

	reg := prometheus.NewRegistry()

	// job is the Pushgateway grouping key, so it is not repeated as a label.
	fileCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.FilesTotal,
			Help: "Input files processed, partitioned by tree and status.",
		},
		[]string{"tree", "status"},
	)
	fileDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       metrics.FileDurationSeconds,
			Help:       "Per-file processing time in seconds, partitioned by tree and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"tree", "status"},
	)
	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Rows written per target table.",
		},
		[]string{"table"},
	)
	skipCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.SkippedTotal,
			Help: "Log records excluded from the fact table, by reason.",
		},
		[]string{"reason"},
	)
	bulkCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.BulkLoadsTotal,
			Help: "Bulk-load attempts per table and status.",
		},
		[]string{"table", "status"},
	)

	for name, c := range map[string]prometheus.Collector{
		"file counter": fileCounter,
		"file summary": fileDuration,
		"row counter":  rowCounter,
		"skip counter": skipCounter,
		"bulk counter": bulkCounter,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}

	return &Backend{
		gatewayURL:   gatewayURL,
		jobName:      jobName,
		reg:          reg,
		fileCounter:  fileCounter,
		fileDuration: fileDuration,
		rowCounter:   rowCounter,
		skipCounter:  skipCounter,
		bulkCounter:  bulkCounter,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.FilesTotal:
		if b.fileCounter != nil {
			b.fileCounter.WithLabelValues(labels["tree"], labels["status"]).Add(delta)
		}
	case metrics.RowsTotal:
		if b.rowCounter != nil {
			b.rowCounter.WithLabelValues(labels["table"]).Add(delta)
		}
	case metrics.SkippedTotal:
		if b.skipCounter != nil {
			b.skipCounter.WithLabelValues(labels["reason"]).Add(delta)
		}
	case metrics.BulkLoadsTotal:
		if b.bulkCounter != nil {
			b.bulkCounter.WithLabelValues(labels["table"], labels["status"]).Add(delta)
		}
	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.FileDurationSeconds || b.fileDuration == nil {
		return
	}
	b.fileDuration.WithLabelValues(labels["tree"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
