package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	documents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inkcost",
			Name:      "documents_total",
			Help:      "Documents analyzed by result (success, load_error, render_error)",
		},
		[]string{"result"},
	)

	pagesAnalyzed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inkcost",
			Name:      "pages_analyzed_total",
			Help:      "Total pages rasterized and priced",
		},
	)

	pagePrice = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "inkcost",
			Name:      "page_price",
			Help:      "Distribution of per-page prices",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 7, 25, 28},
		},
	)

	analysisLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "inkcost",
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of successful document analyses",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inkcost",
			Name:      "uploads_total",
			Help:      "Upload requests by outcome (accepted, invalid, unsupported, busy)",
		},
		[]string{"outcome"},
	)

	inflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "inkcost",
			Name:      "analyses_inflight",
			Help:      "Analyses currently running",
		},
	)

	progressDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inkcost",
			Name:      "progress_events_dropped_total",
			Help:      "Progress notifications that could not be delivered",
		},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(documents, pagesAnalyzed, pagePrice, analysisLatency, uploads, inflight, progressDropped)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func IncDocument(result string) { documents.WithLabelValues(result).Inc() }

// ObservePage counts a priced page.
func ObservePage(price int) {
	pagesAnalyzed.Inc()
	pagePrice.Observe(float64(price))
}

func ObserveDuration(d time.Duration) { analysisLatency.Observe(d.Seconds()) }

func IncUpload(outcome string) { uploads.WithLabelValues(outcome).Inc() }

// TrackInflight bumps the in-flight gauge and returns the matching decrement.
func TrackInflight() func() {
	inflight.Inc()
	return inflight.Dec
}

func IncProgressDropped() { progressDropped.Inc() }
