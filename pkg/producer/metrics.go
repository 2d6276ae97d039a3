package producer

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framegrab_batches_delivered_total",
		Help: "Total number of batches handed to the pipeline",
	})

	emptyPulls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framegrab_empty_pulls_total",
		Help: "Total number of pulls that returned no usable frame",
	})

	greyConversions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framegrab_grey_conversions_total",
		Help: "Total number of primary frames converted from grey to BGR",
	})

	seeksApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framegrab_seeks_applied_total",
		Help: "Total number of seek adjustments applied to the source",
	})

	sourceReleases = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framegrab_window_releases_total",
		Help: "Total number of times the frame window closed the source",
	})

	fatalErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framegrab_fatal_errors_total",
		Help: "Total number of fatal producer errors, by kind",
	}, []string{"kind"})

	pollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "framegrab_poll_duration_seconds",
		Help:    "Duration of a producer poll including the source read",
		Buckets: []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.25, 0.5, 1},
	})
)

// fatalKind labels a fatal error for fatalErrors.
func fatalKind(err error) string {
	var ie *IntegrityError
	if errors.As(err, &ie) {
		return ie.Kind.String()
	}
	var fe *FaultError
	if errors.As(err, &fe) {
		return "source_fault"
	}
	return "unknown"
}
