package http

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricsOnce sync.Once
	metricsErr  error

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	grantsTotal      *prometheus.CounterVec
	revocationsTotal prometheus.Counter
)

// RegisterMetrics initializes the HTTP and grant metrics and returns the
// /metrics handler. Safe to call more than once; only the first call
// registers.
func RegisterMetrics(reg prometheus.Registerer) (http.Handler, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	metricsOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests processed",
		}, []string{"method", "path", "status"})

		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})

		grantsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_grants_total",
			Help: "Token grant attempts by grant type and result",
		}, []string{"grant_type", "result"}) // result: success|<error code>

		revocationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oauth_revocations_total",
			Help: "Token revocation requests",
		})

		for _, c := range []prometheus.Collector{
			httpRequestsTotal, httpRequestDuration, grantsTotal, revocationsTotal,
		} {
			if err := reg.Register(c); err != nil {
				metricsErr = err
				return
			}
		}
	})
	if metricsErr != nil {
		return nil, metricsErr
	}
	return promhttp.Handler(), nil
}

func observeRequest(method, path string, status int, elapsed time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func observeGrant(grantType, result string) {
	if grantsTotal == nil {
		return
	}
	if grantType == "" {
		grantType = "none"
	}
	grantsTotal.WithLabelValues(grantType, result).Inc()
}

func observeRevocation() {
	if revocationsTotal != nil {
		revocationsTotal.Inc()
	}
}
