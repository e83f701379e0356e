// Package stats records per-transfer process statistics
// in a Prometheus registry
// and writes them out in the text exposition format,
// for node_exporter's textfile collector or for humans.
package stats

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bobg/ndd/supervise"
)

// Recorder holds the metrics of one transfer on one host.
// A nil *Recorder records nothing.
type Recorder struct {
	reg *prometheus.Registry

	nodeStarts     *prometheus.CounterVec
	nodeFailures   *prometheus.CounterVec
	nodeTerminated *prometheus.CounterVec
	nodeDuration   *prometheus.GaugeVec
	nodeExitCode   *prometheus.GaugeVec

	transferDuration prometheus.Gauge
	transferSuccess  prometheus.Gauge
}

// New creates a Recorder whose metrics are labeled with the transfer id
// and this host's role in it.
func New(transferID, role string) *Recorder {
	labels := prometheus.Labels{"transfer": transferID, "role": role}
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		nodeStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ndd",
			Name:        "node_starts_total",
			Help:        "Processes started, by node.",
			ConstLabels: labels,
		}, []string{"node"}),
		nodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ndd",
			Name:        "node_failures_total",
			Help:        "Processes that exited non-zero or were killed, by node.",
			ConstLabels: labels,
		}, []string{"node"}),
		nodeTerminated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "ndd",
			Name:        "node_terminated_total",
			Help:        "Processes signaled by the supervisor during a failure cascade, by node.",
			ConstLabels: labels,
		}, []string{"node"}),
		nodeDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "ndd",
			Name:        "node_duration_seconds",
			Help:        "Wall time from start to reap, by node.",
			ConstLabels: labels,
		}, []string{"node"}),
		nodeExitCode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "ndd",
			Name:        "node_exit_code",
			Help:        "Exit status, by node; -1 when killed by a signal.",
			ConstLabels: labels,
		}, []string{"node"}),
		transferDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ndd",
			Name:        "transfer_duration_seconds",
			Help:        "Wall time of the whole transfer on this host.",
			ConstLabels: labels,
		}),
		transferSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ndd",
			Name:        "transfer_success",
			Help:        "1 if the transfer succeeded on this host, else 0.",
			ConstLabels: labels,
		}),
	}
	r.reg.MustRegister(
		r.nodeStarts,
		r.nodeFailures,
		r.nodeTerminated,
		r.nodeDuration,
		r.nodeExitCode,
		r.transferDuration,
		r.transferSuccess,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// Observe records the outcome of a transfer:
// one result per process that was started,
// the transfer's elapsed time,
// and its error (nil for success).
func (r *Recorder) Observe(results []supervise.Result, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	for _, res := range results {
		r.nodeStarts.WithLabelValues(res.ID).Inc()
		if res.Failed() {
			r.nodeFailures.WithLabelValues(res.ID).Inc()
		}
		if res.Terminated {
			r.nodeTerminated.WithLabelValues(res.ID).Inc()
		}
		r.nodeDuration.WithLabelValues(res.ID).Set(res.Duration.Seconds())
		r.nodeExitCode.WithLabelValues(res.ID).Set(float64(res.Code))
	}
	r.transferDuration.Set(elapsed.Seconds())
	if err == nil {
		r.transferSuccess.Set(1)
	} else {
		r.transferSuccess.Set(0)
	}
}

// WriteFile writes the metrics to path in the text exposition format.
// The file is replaced atomically.
func (r *Recorder) WriteFile(path string) error {
	if r == nil {
		return nil
	}
	return errors.Wrapf(prometheus.WriteToTextfile(path, r.reg), "writing stats to %s", path)
}
