// Package metrics exposes Prometheus RED metrics for HTTP requests and
// procedure calls.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tomlord1122/todo-app/internal/domain"
	"github.com/Tomlord1122/todo-app/internal/procedure"
)

const namespace = "todo_app"

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	procedureCallsTotal    *prometheus.CounterVec
	procedureCallDuration  *prometheus.HistogramVec
	janitorDeletedRowTotal *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, so several instances
// can coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "path"}),
		httpRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		}),
		procedureCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "procedure_calls_total",
			Help:      "Procedure calls by outcome code",
		}, []string{"procedure", "code"}),
		procedureCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "procedure_call_duration_seconds",
			Help:      "Procedure call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
		janitorDeletedRowTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "janitor_deleted_rows_total",
			Help:      "Expired rows removed by the background janitor",
		}, []string{"table"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records HTTP RED metrics, labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		m.httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// Procedure counts each call by its final error code, "OK" on success.
// It runs outside the logging step so it sees relabeled errors.
func (m *Metrics) Procedure() procedure.Middleware {
	return func(ctx context.Context, call *procedure.Call, next procedure.Next) (any, error) {
		start := time.Now()
		out, err := next(ctx, call)

		code := "OK"
		if err != nil {
			code = string(domain.KindOf(err))
		}
		m.procedureCallsTotal.WithLabelValues(call.Procedure, code).Inc()
		m.procedureCallDuration.WithLabelValues(call.Procedure).Observe(time.Since(start).Seconds())
		return out, err
	}
}

func (m *Metrics) JanitorDeleted(table string, n int64) {
	if n > 0 {
		m.janitorDeletedRowTotal.WithLabelValues(table).Add(float64(n))
	}
}
