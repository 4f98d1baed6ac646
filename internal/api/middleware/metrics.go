// metrics.go — Prometheus HTTP метрики для Search Bridge.
// Регистрирует метрики: sb_http_requests_total, sb_http_request_duration_seconds,
// sb_events_total.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sb_http_requests_total",
			Help: "Общее количество HTTP-запросов к Search Bridge",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sb_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Search Bridge в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// eventsTotal — количество обработанных webhook-событий по типу и результату.
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sb_events_total",
			Help: "Количество обработанных webhook-событий Rox",
		},
		[]string{"type", "result"},
	)
)

// CountEvent инкрементирует счётчик обработанных событий.
// result — "ok" или "error".
func CountEvent(eventType, result string) {
	eventsTotal.WithLabelValues(eventType, result).Inc()
}

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath приводит путь к известным endpoint'ам Search Bridge.
// Поверхность API фиксированная и без path-параметров, поэтому достаточно
// отбросить неизвестные пути в один лейбл.
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/events",
		"/api/v1/status":
		return path
	}
	return "unknown"
}
