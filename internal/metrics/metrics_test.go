package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tomlord1122/todo-app/internal/domain"
	"github.com/Tomlord1122/todo-app/internal/procedure"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/todos/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/todos/abc", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/todos/{id}", "418")))
}

func TestMiddleware_PassesFlusherThrough(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/stream", func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		require.True(t, ok, "wrapped writer must implement http.Flusher")
		_, _ = w.Write([]byte("chunk"))
		f.Flush()
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))

	assert.True(t, rec.Flushed)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/stream", "200")))
}

func TestProcedure_CountsByCode(t *testing.T) {
	m := New()
	step := m.Procedure()
	call := &procedure.Call{Procedure: "todo.toggle"}

	_, _ = step(context.Background(), call, func(context.Context, *procedure.Call) (any, error) {
		return nil, domain.ErrTodoNotFound()
	})
	_, _ = step(context.Background(), call, func(context.Context, *procedure.Call) (any, error) {
		return "ok", nil
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.procedureCallsTotal.WithLabelValues("todo.toggle", "NOT_FOUND")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.procedureCallsTotal.WithLabelValues("todo.toggle", "OK")))
}

func TestHandler_Exposes(t *testing.T) {
	m := New()
	m.JanitorDeleted("sessions", 3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `todo_app_janitor_deleted_rows_total{table="sessions"} 3`)
}
