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

// Package search runs model-written queries under a token budget.
//
// A result that encodes to more tokens than the budget allows is fetched
// again with one hit fewer until it fits or the retry budget runs out. The
// budget is soft: when retries are exhausted the last result is returned as is.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/esagent/pkg/config"
	"github.com/kadirpekel/esagent/pkg/elastic"
	"github.com/kadirpekel/esagent/pkg/observability"
	"github.com/kadirpekel/esagent/pkg/tokens"
)

// Searcher is the backend search capability.
type Searcher interface {
	Search(ctx context.Context, index string, req elastic.SearchRequest) (*elastic.SearchResponse, error)
}

// Outcome describes one executor run.
type Outcome struct {
	// Text is what the model sees: the result JSON or an error message.
	Text string
	// Size is the window of the last backend call.
	Size int
	// Retries counts re-executions after the first call.
	Retries int
	// Tokens is the token count of Text when it is a result.
	Tokens int
	// Exhausted is set when the result still exceeds the budget.
	Exhausted bool
	Err       error
}

// Executor runs token-budgeted searches. It is safe for concurrent use.
type Executor struct {
	backend Searcher
	counter tokens.Counter
	cfg     config.SearchConfig
	logger  *slog.Logger
}

// NewExecutor builds an executor. A nil counter uses the configured encoding.
func NewExecutor(backend Searcher, counter tokens.Counter, cfg config.SearchConfig) *Executor {
	cfg.SetDefaults()
	if counter == nil {
		counter = tokens.NewCounter(cfg.Encoding)
	}
	return &Executor{
		backend: backend,
		counter: counter,
		cfg:     cfg,
		logger:  slog.Default().With("component", "search"),
	}
}

// Search runs rawQuery against index and returns the result JSON, or the
// error message when the query is malformed or the backend fails.
func (e *Executor) Search(ctx context.Context, index, rawQuery string, from, size int) string {
	return e.SearchWithOutcome(ctx, index, rawQuery, from, size).Text
}

// SearchWithOutcome is Search with the bookkeeping of the run.
func (e *Executor) SearchWithOutcome(ctx context.Context, index, rawQuery string, from, size int) (out Outcome) {
	ctx, span := observability.GetTracer(observability.TracerElastic).Start(ctx, observability.SpanSearch,
		trace.WithAttributes(attribute.String(observability.AttrIndex, index)))
	defer func() {
		span.SetAttributes(
			attribute.Int(observability.AttrSize, out.Size),
			attribute.Int(observability.AttrRetries, out.Retries),
		)
		observability.EndSpan(span, out.Err)
		if out.Err == nil {
			observability.GetGlobalMetrics().RecordSearch(ctx, index, out.Retries, out.Tokens, out.Exhausted)
		}
	}()

	qs, err := ParseQuery(index, rawQuery, from, size)
	if err != nil {
		e.logger.Error("Failed to parse search query", "index", index, "query", rawQuery, "error", err)
		return Outcome{Text: err.Error(), Err: err}
	}

	window := min(qs.Size, e.cfg.MaxSize)
	if qs.AggregationOnly() {
		window = e.cfg.AggsLimit
	}
	e.logger.Info("Executing search", "index", index, "query", rawQuery, "from", qs.From, "size", window)

	for {
		text, err := e.execute(ctx, qs, window)
		if err != nil {
			e.logger.Error("Search failed", "index", index, "query", rawQuery, "size", window, "error", err)
			return Outcome{Text: err.Error(), Size: window, Retries: out.Retries, Err: err}
		}

		n := e.counter.Count(text)
		out.Text, out.Size, out.Tokens = text, window, n
		if n <= e.cfg.TokenLimit {
			return out
		}
		if out.Retries >= e.cfg.MaxRetries || window <= 0 {
			out.Exhausted = true
			e.logger.Warn("Search result exceeds token budget",
				"index", index, "tokens", n, "limit", e.cfg.TokenLimit, "size", window, "retries", out.Retries)
			return out
		}

		window--
		out.Retries++
		e.logger.Debug("Shrinking search window", "index", index, "tokens", n, "size", window)
	}
}

func (e *Executor) execute(ctx context.Context, qs QuerySpec, size int) (string, error) {
	resp, err := e.backend.Search(ctx, qs.Index, elastic.SearchRequest{
		Query:  qs.Query,
		Aggs:   qs.Aggs,
		Sort:   qs.Sort,
		Source: qs.Source,
		From:   qs.From,
		Size:   size,
	})
	if err != nil {
		return "", err
	}

	payload := resp.Hits
	if qs.AggregationOnly() {
		payload = resp.Aggregations
	}
	if len(payload) == 0 {
		return "{}", nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return "", fmt.Errorf("invalid search response: %w", err)
	}
	return buf.String(), nil
}
