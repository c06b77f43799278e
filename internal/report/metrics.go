package report

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/croncommander/clonebench/internal/harness"
	"github.com/croncommander/clonebench/internal/protocol"
)

// Metrics collects run measurements in a private Prometheus registry so they
// can be dropped into a node_exporter textfile directory.
type Metrics struct {
	registry *prometheus.Registry

	iterationSeconds *prometheus.HistogramVec
	throughput       *prometheus.GaugeVec
	medianSeconds    *prometheus.GaugeVec
	failuresTotal    *prometheus.CounterVec
	bufferBytes      prometheus.Gauge
}

// NewMetrics registers every collector. It implements harness.Observer.
func NewMetrics(bufferSize int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		iterationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clonebench_iteration_seconds",
				Help:    "Time per iteration, one observation per sample",
				Buckets: prometheus.ExponentialBuckets(1e-9, 4, 16),
			},
			[]string{"variant"},
		),
		throughput: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "clonebench_throughput_bytes_per_second",
				Help: "Input bytes processed per second at the mean iteration time",
			},
			[]string{"variant", "workload"},
		),
		medianSeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "clonebench_median_iteration_seconds",
				Help: "Median time per iteration",
			},
			[]string{"variant", "workload"},
		),
		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clonebench_trial_failures_total",
				Help: "Trials aborted by a failing iteration",
			},
			[]string{"variant"},
		),
		bufferBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clonebench_buffer_bytes",
			Help: "Size of the generated input buffer",
		}),
	}

	m.registry.MustRegister(m.iterationSeconds, m.throughput, m.medianSeconds, m.failuresTotal, m.bufferBytes)
	m.bufferBytes.Set(float64(bufferSize))
	return m
}

func (m *Metrics) ObserveSample(v harness.Variant, nsPerOp float64) {
	m.iterationSeconds.WithLabelValues(string(v)).Observe(nsPerOp / 1e9)
}

func (m *Metrics) ObserveFailure(v harness.Variant, _ error) {
	m.failuresTotal.WithLabelValues(string(v)).Inc()
}

// RecordReport sets the per-variant summary gauges.
func (m *Metrics) RecordReport(r *protocol.Report) {
	for _, v := range r.Variants {
		m.throughput.WithLabelValues(v.Variant, r.Workload).Set(v.BytesPerSec)
		m.medianSeconds.WithLabelValues(v.Variant, r.Workload).Set(v.MedianNs / 1e9)
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the metrics atomically in text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
