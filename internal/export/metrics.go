package export

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/joeblew999/dashdeck/internal/export")

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashdeck_export_jobs_total",
		Help: "Export jobs by terminal state",
	}, []string{"state"})

	jobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dashdeck_export_jobs_running",
		Help: "Export jobs currently running",
	})

	captureSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashdeck_capture_duration_seconds",
		Help:    "Time to mount and capture one slide, settle delay included",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 1.5, 2, 3, 5, 10, 30},
	}, []string{"kind"})

	pagesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashdeck_pages_appended_total",
		Help: "Pages appended to export documents",
	})

	documentBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dashdeck_document_bytes",
		Help:    "Size of finished export documents",
		Buckets: prometheus.ExponentialBuckets(64<<10, 2, 10),
	})
)
