package riot

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "riot"

var (
	metricLabels = []string{
		"job",  // Name of the job
		"step", // Name of the step within the job
	}

	recordsRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "records_read_total",
			Namespace: metricsNamespace,
			Help:      "Records pulled from the step source",
		},
		metricLabels,
	)
	recordsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "records_written_total",
			Namespace: metricsNamespace,
			Help:      "Records written to the step sink",
		},
		metricLabels,
	)
	recordsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "records_skipped_total",
			Namespace: metricsNamespace,
			Help:      "Records skipped because of parse errors",
		},
		metricLabels,
	)
	chunkRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "chunk_retries_total",
			Namespace: metricsNamespace,
			Help:      "Chunk write re-attempts after transient failures",
		},
		metricLabels,
	)
	chunkWriteDuration = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "chunk_write_duration_seconds",
			Namespace:  metricsNamespace,
			Help:       "Time to write one chunk, retries included",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			MaxAge:     time.Hour,
		},
		metricLabels,
	)
	stepRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:      "step_running",
			Namespace: metricsNamespace,
			Help:      "1 while the step is running",
		},
		metricLabels,
	)
)

func init() {
	prometheus.MustRegister(
		recordsRead,
		recordsWritten,
		recordsSkipped,
		chunkRetries,
		chunkWriteDuration,
		stepRunning,
	)
}

type stepMetrics struct {
	read          prometheus.Counter
	written       prometheus.Counter
	skipped       prometheus.Counter
	retries       prometheus.Counter
	writeDuration prometheus.Observer
	running       prometheus.Gauge
}

func newStepMetrics(job, step string) stepMetrics {
	labels := prometheus.Labels{"job": job, "step": step}
	return stepMetrics{
		read:          recordsRead.With(labels),
		written:       recordsWritten.With(labels),
		skipped:       recordsSkipped.With(labels),
		retries:       chunkRetries.With(labels),
		writeDuration: chunkWriteDuration.With(labels),
		running:       stepRunning.With(labels),
	}
}
