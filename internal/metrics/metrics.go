// Package metrics records per-invocation counters and writes them in the
// Prometheus text format for the node-exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder holds one invocation's metrics on a private registry.
type Recorder struct {
	reg *prometheus.Registry

	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	exitCode    *prometheus.GaugeVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "musectl",
				Name:      "invocations_total",
				Help:      "Total number of musectl command invocations",
			},
			[]string{"command", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "musectl",
				Name:      "command_duration_seconds",
				Help:      "Wall-clock duration of musectl commands in seconds",
				// inference and builds run for minutes
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
			},
			[]string{"command"},
		),
		exitCode: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "musectl",
				Name:      "last_container_exit_code",
				Help:      "Exit code of the last Job Container started by a command",
			},
			[]string{"command"},
		),
	}
	r.reg.MustRegister(r.invocations, r.duration, r.exitCode)
	return r
}

// Observe records a finished command.
func (r *Recorder) Observe(command string, d time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	r.invocations.WithLabelValues(command, outcome).Inc()
	r.duration.WithLabelValues(command).Observe(d.Seconds())
}

// ContainerExit records the exit code of the container a command started.
func (r *Recorder) ContainerExit(command string, code int) {
	r.exitCode.WithLabelValues(command).Set(float64(code))
}

// WriteTextfile writes every metric to path atomically. An empty path is a
// no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}

// Registry exposes the private registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }
