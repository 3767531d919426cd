// Package metrics exposes evaluation run counters in Prometheus format.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"ptscore/domain/proficiency"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ptscore"

// Recorder implements ports.EvaluationRecorder on a Prometheus registry.
type Recorder struct {
	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	analytes        prometheus.Counter
	excludedRecords prometheus.Counter
	nonConverged    prometheus.Counter
	iterations      prometheus.Histogram
	results         *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Evaluation runs by outcome.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of evaluation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		analytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytes_evaluated_total",
			Help:      "Analyte groups evaluated.",
		}),
		excludedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_excluded_total",
			Help:      "Records excluded because no result was reported.",
		}),
		nonConverged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "robust_nonconverged_total",
			Help:      "Analytes whose robust iteration hit the iteration limit.",
		}),
		iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "robust_iterations",
			Help:      "Algorithm A/S iterations per analyte.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50, 100},
		}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "Scored results by classification.",
		}, []string{"classification"}),
	}

	// Every category is exported from the first scrape, even before a run.
	for _, c := range proficiency.AllClassifications {
		r.results.WithLabelValues(string(c))
	}

	reg.MustRegister(r.runs, r.runDuration, r.analytes, r.excludedRecords, r.nonConverged, r.iterations, r.results)
	return r
}

// RegisterRuntimeCollectors adds the Go runtime and process collectors to reg.
func RegisterRuntimeCollectors(reg prometheus.Registerer) {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
	)
}

// WriteTextfile writes the metrics gathered by g to path in the text exposition
// format, for pickup by a node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}

// RunFinished records a completed or failed run.
func (r *Recorder) RunFinished(status string, elapsed time.Duration) {
	r.runs.WithLabelValues(status).Inc()
	r.runDuration.Observe(elapsed.Seconds())
}

// AnalyteEvaluated records one analyte's estimation diagnostics.
func (r *Recorder) AnalyteEvaluated(stats proficiency.AnalyteStatistics) {
	r.analytes.Inc()
	r.excludedRecords.Add(float64(stats.Excluded))
	r.iterations.Observe(float64(stats.Iterations))
	if !stats.Converged {
		r.nonConverged.Inc()
	}
}

// ResultClassified records one scored result.
func (r *Recorder) ResultClassified(c proficiency.Classification) {
	r.results.WithLabelValues(string(c)).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
