// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observability wires OpenTelemetry metrics (exported to Prometheus)
// and tracing. Every recorder is safe to call on a nil *Metrics, so components
// record unconditionally and metrics stay optional.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/kadirpekel/esagent/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds every instrument recorded by esagent.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler

	toolDuration metric.Float64Histogram
	toolCalls    metric.Int64Counter
	toolErrors   metric.Int64Counter

	llmDuration     metric.Float64Histogram
	llmCalls        metric.Int64Counter
	llmErrors       metric.Int64Counter
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter

	searchCalls     metric.Int64Counter
	searchRetries   metric.Int64Counter
	searchExhausted metric.Int64Counter
	searchTokens    metric.Int64Histogram

	bulkItems metric.Int64Counter

	sessions     metric.Int64Counter
	sessionTurns metric.Int64Histogram

	httpRequests metric.Int64Counter
	httpDuration metric.Float64Histogram
}

// instrumentBuilder accumulates the first creation error so that InitMetrics
// reads as a flat list of instruments.
type instrumentBuilder struct {
	meter metric.Meter
	err   error
}

func (b *instrumentBuilder) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s: %w", name, err)
	}
	return c
}

func (b *instrumentBuilder) histogram(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name, metric.WithDescription(desc))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s: %w", name, err)
	}
	return h
}

func (b *instrumentBuilder) intHistogram(name, desc string, buckets ...float64) metric.Int64Histogram {
	h, err := b.meter.Int64Histogram(name, metric.WithDescription(desc), metric.WithExplicitBucketBoundaries(buckets...))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s: %w", name, err)
	}
	return h
}

// InitMetrics creates a Prometheus-backed meter provider with a private
// registry. Disabled configuration yields a nil *Metrics.
func InitMetrics(cfg config.MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
		otelprom.WithNamespace(cfg.Namespace),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	b := &instrumentBuilder{meter: provider.Meter("esagent")}

	m := &Metrics{
		provider: provider,
		handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),

		toolDuration: b.histogram("tool_execution_duration_seconds", "Tool execution duration in seconds"),
		toolCalls:    b.counter("tool_calls_total", "Total tool dispatches"),
		toolErrors:   b.counter("tool_errors_total", "Total failed tool dispatches"),

		llmDuration:     b.histogram("llm_request_duration_seconds", "Chat completion duration in seconds"),
		llmCalls:        b.counter("llm_requests_total", "Total chat completion requests"),
		llmErrors:       b.counter("llm_errors_total", "Total failed chat completion requests"),
		llmInputTokens:  b.counter("llm_tokens_input_total", "Total prompt tokens reported by the model"),
		llmOutputTokens: b.counter("llm_tokens_output_total", "Total completion tokens reported by the model"),

		searchCalls:     b.counter("search_requests_total", "Total token-budgeted searches"),
		searchRetries:   b.counter("search_retries_total", "Total shrink retries issued by searches"),
		searchExhausted: b.counter("search_budget_exhausted_total", "Searches returned over budget after exhausting retries"),
		searchTokens:    b.intHistogram("search_result_tokens", "Token count of returned search results", 100, 500, 1000, 2000, 4000, 8000, 16000),

		bulkItems: b.counter("bulk_items_total", "Bulk actions by outcome"),

		sessions:     b.counter("sessions_total", "Finished sessions by status"),
		sessionTurns: b.intHistogram("session_model_calls", "Model calls per session", 1, 2, 3, 5, 8, 13, 20, 50),

		httpRequests: b.counter("http_requests_total", "HTTP API requests"),
		httpDuration: b.histogram("http_request_duration_seconds", "HTTP API request duration in seconds"),
	}
	if b.err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, b.err
	}
	return m, nil
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

func (m *Metrics) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
	m.toolCalls.Add(ctx, 1, attrs)
	if err != nil {
		m.toolErrors.Add(ctx, 1, attrs)
	}
}

func (m *Metrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	m.llmCalls.Add(ctx, 1, attrs)
	if err != nil {
		m.llmErrors.Add(ctx, 1, attrs)
		return
	}
	if inputTokens > 0 {
		m.llmInputTokens.Add(ctx, int64(inputTokens), attrs)
	}
	if outputTokens > 0 {
		m.llmOutputTokens.Add(ctx, int64(outputTokens), attrs)
	}
}

func (m *Metrics) RecordSearch(ctx context.Context, index string, retries, tokens int, exhausted bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("index", index))
	m.searchCalls.Add(ctx, 1, attrs)
	if retries > 0 {
		m.searchRetries.Add(ctx, int64(retries), attrs)
	}
	if exhausted {
		m.searchExhausted.Add(ctx, 1, attrs)
	}
	m.searchTokens.Record(ctx, int64(tokens), attrs)
}

func (m *Metrics) RecordBulk(ctx context.Context, succeeded, failed, invalid int) {
	if m == nil {
		return
	}
	for outcome, n := range map[string]int{"succeeded": succeeded, "failed": failed, "invalid": invalid} {
		if n > 0 {
			m.bulkItems.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
		}
	}
}

func (m *Metrics) RecordSession(ctx context.Context, status string, modelCalls int) {
	if m == nil {
		return
	}
	m.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.sessionTurns.Record(ctx, int64(modelCalls))
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	))
	m.httpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
	))
}

var globalMetrics atomic.Pointer[Metrics]

// SetGlobalMetrics installs the process-wide recorder. Passing nil disables recording.
func SetGlobalMetrics(m *Metrics) {
	globalMetrics.Store(m)
}

// GetGlobalMetrics returns the process-wide recorder, possibly nil.
func GetGlobalMetrics() *Metrics {
	return globalMetrics.Load()
}
