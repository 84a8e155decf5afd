package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for checkout and return counters.
const (
	OutcomeSuccess   = "success"
	OutcomeConflict  = "conflict"
	OutcomeNotFound  = "not_found"
	OutcomeError     = "error"
	OutcomeDuplicate = "already_returned"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "library_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	CheckoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_checkouts_total",
			Help: "Checkout attempts by outcome",
		},
		[]string{"outcome"},
	)

	ReturnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_returns_total",
			Help: "Return attempts by outcome",
		},
		[]string{"outcome"},
	)

	DiscoveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "library_discovery_duration_seconds",
			Help:    "Time spent computing trending and recommendation views",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"view"},
	)
)

func RecordCheckout(outcome string) { CheckoutsTotal.WithLabelValues(outcome).Inc() }

func RecordReturn(outcome string) { ReturnsTotal.WithLabelValues(outcome).Inc() }

// ObserveDiscovery records how long a trending or recommendation view took.
func ObserveDiscovery(view string, started time.Time) {
	DiscoveryDuration.WithLabelValues(view).Observe(time.Since(started).Seconds())
}

// Middleware records request latency labelled by the matched route, so path
// parameters do not explode label cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
