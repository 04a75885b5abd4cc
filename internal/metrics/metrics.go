// Package metrics declares the Prometheus instrumentation for the
// composition pipeline (§2.1): per-stage processing duration, queue
// backpressure, and the muxer's reserved-vs-actual header sizing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ProcessorDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "compose",
		Name:      "processor_duration_seconds",
		Help:      "Duration of a single ProcessOutput call by processor name.",
		Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 1, 5},
	}, []string{"processor"})

	ProcessorPendingTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "compose",
		Name:      "processor_pending_total",
		Help:      "Total number of times a processor returned Pending, by processor name.",
	}, []string{"processor"})

	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "compose",
		Name:      "queue_depth",
		Help:      "Current number of buffered samples on a stream edge.",
	}, []string{"stream_id"})

	QueueCapacity = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "compose",
		Name:      "queue_capacity",
		Help:      "Configured buffer capacity of a stream edge.",
	}, []string{"stream_id"})

	SamplesProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "compose",
		Name:      "samples_processed_total",
		Help:      "Total samples processed by kind (audio, video) and stage.",
	}, []string{"kind", "stage"})

	CompositionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "compose",
		Name:      "compositions_total",
		Help:      "Total composition runs by outcome (success, failure, cancelled).",
	}, []string{"outcome"})

	CompositionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "compose",
		Name:      "composition_duration_seconds",
		Help:      "Wall-clock duration of a full composition run.",
		Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 3600},
	})

	OutputDurationSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "compose",
		Name:      "output_duration_seconds",
		Help:      "Output media duration of the most recently finished composition.",
	})

	TrimmedDurationSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "compose",
		Name:      "trimmed_duration_seconds",
		Help:      "Total inter-source gap duration trimmed from the most recent composition.",
	})

	MoovReservedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "compose",
		Name:      "moov_reserved_bytes",
		Help:      "Reserved moov box size computed at muxer open.",
	})

	MoovActualBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "compose",
		Name:      "moov_actual_bytes",
		Help:      "Actual moov box size written at muxer finalize.",
	})

	SourcesResolvedTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "compose",
		Name:      "sources_resolved_total",
		Help:      "Number of distinct sources resolved from the layout for the most recent run.",
	})
)

// Register registers every metric against reg. Call once at process
// startup, before the monitoring HTTP server (§4.9) starts serving
// /metrics.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		ProcessorDuration,
		ProcessorPendingTotal,
		QueueDepth,
		QueueCapacity,
		SamplesProcessedTotal,
		CompositionsTotal,
		CompositionDuration,
		OutputDurationSeconds,
		TrimmedDurationSeconds,
		MoovReservedBytes,
		MoovActualBytes,
		SourcesResolvedTotal,
	)
}
