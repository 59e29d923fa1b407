// Package metrics exports index counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sanonone/irishnsw/pkg/core/hnsw"
)

// Global metrics, registered on the default registry by promauto.
// Every series is labeled with the index name.

var (
	// 1. Insertions (Counter)
	Insertions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irishnsw_insertions_total",
			Help: "Total number of vectors inserted",
		},
		[]string{"index_name"},
	)

	// 2. Searches (Counter)
	Searches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irishnsw_searches_total",
			Help: "Total number of searches served",
		},
		[]string{"index_name"},
	)

	// 3. Distance evaluations (Counter)
	// The dominant cost of both insertion and search.
	DistanceEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irishnsw_distance_evaluations_total",
			Help: "Total number of distance function calls",
		},
		[]string{"index_name"},
	)

	// 4. Comparisons (Counter)
	Comparisons = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irishnsw_comparisons_total",
			Help: "Total number of distance comparisons in queues and neighbor lists",
		},
		[]string{"index_name"},
	)

	// 5. Improvements (Counter)
	// Candidates that entered the result set during a layer search.
	Improvements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irishnsw_improvements_total",
			Help: "Total number of result set improvements during layer searches",
		},
		[]string{"index_name"},
	)

	// 6. Vector count (Gauge)
	Vectors = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "irishnsw_vectors",
			Help: "Number of stored vectors",
		},
		[]string{"index_name"},
	)

	// 7. Layer count (Gauge)
	Layers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "irishnsw_layers",
			Help: "Number of graph layers",
		},
		[]string{"index_name"},
	)

	// 8. Search latency (Histogram)
	// Buckets span a cached small index (tens of microseconds) to a large
	// 12,800-bit index with a wide beam.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "irishnsw_search_duration_seconds",
			Help:    "Duration of searches in seconds",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"index_name"},
	)
)

// HTTP metrics of the monitoring server.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "irishnsw_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "irishnsw_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Recorder publishes the counters of one named index.
type Recorder struct {
	name string
}

// NewRecorder returns a recorder labeling every series with name.
func NewRecorder(name string) *Recorder {
	return &Recorder{name: name}
}

// Name returns the index label.
func (r *Recorder) Name() string { return r.name }

// Flush adds a drained counter set, typically from Index.ResetStats, and
// updates the size gauges.
func (r *Recorder) Flush(s hnsw.Stats) {
	Insertions.WithLabelValues(r.name).Add(float64(s.Insertions))
	Searches.WithLabelValues(r.name).Add(float64(s.Searches))
	DistanceEvaluations.WithLabelValues(r.name).Add(float64(s.Distances))
	Comparisons.WithLabelValues(r.name).Add(float64(s.Comparisons))
	Improvements.WithLabelValues(r.name).Add(float64(s.Improvements))
	Vectors.WithLabelValues(r.name).Set(float64(s.DBSize))
	Layers.WithLabelValues(r.name).Set(float64(s.Layers))
}

// ObserveSearch records the latency of one search.
func (r *Recorder) ObserveSearch(d time.Duration) {
	SearchDuration.WithLabelValues(r.name).Observe(d.Seconds())
}

// Forget removes every series of the index.
func (r *Recorder) Forget() {
	for _, vec := range []*prometheus.CounterVec{Insertions, Searches, DistanceEvaluations, Comparisons, Improvements} {
		vec.DeleteLabelValues(r.name)
	}
	Vectors.DeleteLabelValues(r.name)
	Layers.DeleteLabelValues(r.name)
	SearchDuration.DeleteLabelValues(r.name)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
