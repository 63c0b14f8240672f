package observability

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kadirpekel/esagent/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestInitMetrics_Disabled(t *testing.T) {
	m, err := InitMetrics(config.MetricsConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, m)

	// Recorders are no-ops on nil.
	m.RecordToolExecution(context.Background(), "x", time.Second, nil)
	m.RecordSearch(context.Background(), "idx", 1, 10, false)
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestMetrics_Exposition(t *testing.T) {
	m, err := InitMetrics(config.MetricsConfig{Enabled: true, Namespace: "esagent"})
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	ctx := context.Background()
	m.RecordToolExecution(ctx, "elastic_list_indices", 20*time.Millisecond, nil)
	m.RecordToolExecution(ctx, "elastic_list_indices", 5*time.Millisecond, errors.New("boom"))
	m.RecordLLMCall(ctx, "gpt-4o-mini", time.Second, 120, 30, nil)
	m.RecordSearch(ctx, "people", 3, 2500, true)
	m.RecordBulk(ctx, 4, 1, 2)
	m.RecordSession(ctx, "finished", 2)

	out := scrape(t, m)
	assert.Contains(t, out, `esagent_tool_calls_total{`)
	assert.Contains(t, out, `tool="elastic_list_indices"`)
	assert.Contains(t, out, `esagent_tool_errors_total{`)
	assert.Contains(t, out, `esagent_llm_tokens_input_total{`)
	assert.Contains(t, out, `esagent_search_retries_total{`)
	assert.Contains(t, out, `esagent_search_budget_exhausted_total{`)
	assert.Contains(t, out, `outcome="invalid"`)
	assert.Contains(t, out, `esagent_sessions_total{`)
}

func TestHTTPMiddleware_RecordsRoutePattern(t *testing.T) {
	m, err := InitMetrics(config.MetricsConfig{Enabled: true, Namespace: "esagent"})
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	r := chi.NewRouter()
	r.Use(HTTPMiddleware(m))
	r.Get("/v1/tools/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/tools/elastic_list_indices", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	out := scrape(t, m)
	assert.Contains(t, out, `route="/v1/tools/{name}"`)
	assert.Contains(t, out, `status="418"`)
}

func TestInitTracer_Stdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracer(context.Background(), config.TracingConfig{
		Enabled:      true,
		Exporter:     "stdout",
		SamplingRate: 1,
		ServiceName:  "esagent-test",
	}, &buf)
	require.NoError(t, err)

	_, span := GetTracer(TracerTool).Start(context.Background(), SpanToolExecution)
	EndSpan(span, errors.New("failed"))

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), SpanToolExecution)
	assert.Contains(t, buf.String(), "esagent-test")
}

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), config.TracingConfig{}, nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
