package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SpacesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tinycloud_spaces_total",
			Help: "Total number of hosted spaces",
		},
	)

	DelegationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tinycloud_delegations_total",
			Help: "Total number of delegations committed by format",
		},
		[]string{"format"},
	)

	RevocationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tinycloud_revocations_total",
			Help: "Total number of revocations committed",
		},
	)

	InvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tinycloud_invocations_total",
			Help: "Total number of invocations by outcome",
		},
		[]string{"outcome"},
	)

	KVPutBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tinycloud_kv_put_bytes_total",
			Help: "Total bytes persisted via kv/put across every space",
		},
	)

	EpochCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tinycloud_epoch_commit_duration_seconds",
			Help:    "Time taken to commit an epoch entry across its touched spaces",
			Buckets: prometheus.DefBuckets,
		},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tinycloud_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tinycloud_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tinycloud_errors_total",
			Help: "Total number of *tcerr.Error responses by kind",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(SpacesTotal)
	prometheus.MustRegister(DelegationsTotal)
	prometheus.MustRegister(RevocationsTotal)
	prometheus.MustRegister(InvocationsTotal)
	prometheus.MustRegister(KVPutBytesTotal)
	prometheus.MustRegister(EpochCommitDuration)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(ErrorsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
