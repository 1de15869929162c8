package httpx

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}
)

func (r *Router) initMetrics() {
	r.metricsOnce.Do(func() {
		r.requestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blenvi",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"})

		r.requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "blenvi",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"})

		r.rateLimitHits = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blenvi",
			Subsystem: "api",
			Name:      "rate_limit_hits_total",
			Help:      "Number of rate-limited responses",
		}, []string{"route", "scope"})

		r.storeOps = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blenvi",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Session store operations that reach the persistence layer",
		}, []string{"store", "op", "outcome"})

		r.requestTotal = registerCounter(r.requestTotal)
		r.rateLimitHits = registerCounter(r.rateLimitHits)
		r.storeOps = registerCounter(r.storeOps)
		if err := prometheus.Register(r.requestLatency); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
					r.requestLatency = existing
				}
			}
		}
		r.metricsInitialized = true
	})
}

// registerCounter registers c, returning the already registered collector
// when another router got there first.
func registerCounter(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func (r *Router) recordRequestMetrics(method, route string, status int, duration time.Duration) {
	if !r.metricsInitialized {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	r.requestTotal.With(labels).Inc()
	r.requestLatency.With(labels).Observe(duration.Seconds())
}

func (r *Router) recordRateLimitHit(route, scope string) {
	if !r.metricsInitialized {
		return
	}
	r.rateLimitHits.With(prometheus.Labels{"route": route, "scope": scope}).Inc()
}

func (r *Router) recordStoreOp(store, op string, err error) {
	if !r.metricsInitialized {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.storeOps.With(prometheus.Labels{"store": store, "op": op, "outcome": outcome}).Inc()
}
