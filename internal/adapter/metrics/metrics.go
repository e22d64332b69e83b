package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics holds all Prometheus metrics for the ingestion pipeline.
type PipelineMetrics struct {
	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	RecordsExtracted prometheus.Counter
	RecordsFiltered  *prometheus.CounterVec
	RecordsMalformed prometheus.Counter
	EventsPersisted  prometheus.Counter
	EventsByCategory *prometheus.CounterVec
	DenylistSize     prometheus.Gauge
}

// NewPipelineMetrics initializes and registers the Prometheus metrics.
func NewPipelineMetrics() *PipelineMetrics {
	return &PipelineMetrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trafficlens",
			Subsystem: "ingest",
			Name:      "runs_total",
			Help:      "Total number of ingestion runs by outcome.",
		}, []string{"outcome"}), // outcome: success, failed, skipped_lock, empty
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trafficlens",
			Subsystem: "ingest",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a full ingestion run.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		RecordsExtracted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "trafficlens",
			Subsystem: "ingest",
			Name:      "records_extracted_total",
			Help:      "Total raw records pulled from the log source.",
		}),
		RecordsFiltered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trafficlens",
			Subsystem: "ingest",
			Name:      "records_filtered_total",
			Help:      "Total records dropped before enrichment, by filter.",
		}, []string{"filter"}), // filter: denylist, operator, site, noise
		RecordsMalformed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "trafficlens",
			Subsystem: "ingest",
			Name:      "records_malformed_total",
			Help:      "Total records skipped for missing required fields.",
		}),
		EventsPersisted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "trafficlens",
			Subsystem: "ingest",
			Name:      "events_persisted_total",
			Help:      "Total enriched events written to the store.",
		}),
		EventsByCategory: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trafficlens",
			Subsystem: "classify",
			Name:      "events_total",
			Help:      "Total classified events by traffic category.",
		}, []string{"category"}),
		DenylistSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "trafficlens",
			Subsystem: "denylist",
			Name:      "size_gauge",
			Help:      "Number of banned addresses currently cached.",
		}),
	}
}
