package metrics

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "jobentry"

// Recorder collects one run's metrics on a private registry. The container
// exits after a single run, so the values are flushed to a textfile for a
// node exporter to pick up rather than served.
type Recorder struct {
	registry      *prometheus.Registry
	stageDuration *prometheus.GaugeVec
	exitCode      prometheus.Gauge
	failures      *prometheus.CounterVec
	now           func() time.Time
}

// NewRecorder registers the run metrics on a fresh registry.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		stageDuration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each orchestrator stage",
		}, []string{"stage"}),
		exitCode: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "customer_exit_code",
			Help:      "Exit code of the customer code, negative when killed by a signal",
		}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failures reported to the failure artifact, by kind",
		}, []string{"kind"}),
		now: time.Now,
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// StartStage returns a func that records the stage's duration when called.
func (r *Recorder) StartStage(stage string) func() {
	start := r.now()
	return func() {
		r.stageDuration.WithLabelValues(stage).Set(r.now().Sub(start).Seconds())
	}
}

func (r *Recorder) ObserveExitCode(code int) {
	r.exitCode.Set(float64(code))
}

func (r *Recorder) IncFailure(kind string) {
	r.failures.WithLabelValues(kind).Inc()
}

// WriteTextfile writes the metrics to path. An empty path does nothing and
// errors are only logged.
func (r *Recorder) WriteTextfile(path string) {
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		slog.Warn("Failed to create metrics directory", "path", path, "error", err)
		return
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		slog.Warn("Failed to write metrics", "path", path, "error", err)
		return
	}
	slog.Debug("Metrics written", "path", path)
}
