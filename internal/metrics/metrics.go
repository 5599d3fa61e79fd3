// Package metrics содержит Prometheus-метрики сервисов.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "checkout"

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// breakerState: 0 closed, 1 open, 2 half-open.
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "resilience",
		Name:      "breaker_state",
		Help:      "Circuit breaker state per dependency (0 closed, 1 open, 2 half-open)",
	}, []string{"dependency"})

	fallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "resilience",
		Name:      "fallbacks_total",
		Help:      "Total number of fallback values returned instead of a real call result",
	}, []string{"dependency", "op", "reason"})

	sagaOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "saga",
		Name:      "outcomes_total",
		Help:      "Checkout saga outcomes",
	}, []string{"outcome"})

	compensationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "saga",
		Name:      "compensation_failures_total",
		Help:      "Stock compensations that could not be applied",
	})
)

// ObserveHTTP учитывает обработанный HTTP-запрос.
func ObserveHTTP(method, route, status string, seconds float64) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// SetBreakerState публикует состояние размыкателя зависимости.
func SetBreakerState(dependency string, state int) {
	breakerState.WithLabelValues(dependency).Set(float64(state))
}

// IncFallback учитывает возврат fallback-значения.
func IncFallback(dependency, op, reason string) {
	fallbacksTotal.WithLabelValues(dependency, op, reason).Inc()
}

// IncSagaOutcome учитывает завершение саги (completed, compensated, rejected).
func IncSagaOutcome(outcome string) {
	sagaOutcomes.WithLabelValues(outcome).Inc()
}

// IncCompensationFailure учитывает потерянную компенсацию склада.
func IncCompensationFailure() {
	compensationFailures.Inc()
}

// Handler возвращает обработчик /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
