// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "garrison"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "code"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_transitions_total",
		Help:      "Status change requests by entity, target status and outcome.",
	}, []string{"entity", "to", "outcome"})

	allocationRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "allocation_rejections_total",
		Help:      "Assignment activations rejected for insufficient equipment.",
	})

	returnFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inventory_return_failures_total",
		Help:      "Equipment returns that could not be applied and were queued.",
	})

	pendingReturns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "inventory_returns_pending",
		Help:      "Equipment returns waiting in the retry queue.",
	})

	jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_runs_total",
		Help:      "Background job runs by job and outcome.",
	}, []string{"job", "outcome"})
)

// Transition outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// ObserveTransition counts a status change request.
func ObserveTransition(entity, to, outcome string) {
	transitions.WithLabelValues(entity, to, outcome).Inc()
}

// AllocationRejected counts an activation refused for lack of equipment.
func AllocationRejected() { allocationRejections.Inc() }

// ReturnFailed counts an equipment return that went to the retry queue.
func ReturnFailed() { returnFailures.Inc() }

// SetPendingReturns reports the size of the return queue.
func SetPendingReturns(n int) { pendingReturns.Set(float64(n)) }

// ObserveJob counts a background job run.
func ObserveJob(job string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	jobRuns.WithLabelValues(job, outcome).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Instrument records request count and latency. The route label is the
// matched mux pattern, so path parameters do not explode cardinality.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
