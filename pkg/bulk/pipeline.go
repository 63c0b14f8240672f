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

// Package bulk turns an NDJSON command stream into batched bulk writes.
//
// Parsing and writing are interleaved: actions are pulled from the parser
// and flushed every ChunkSize actions, so at most one batch is held in memory
// whatever the size of the input. Malformed records are counted and
// reported without stopping the run; a failed bulk request stops it.
package bulk

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/esagent/pkg/config"
	"github.com/kadirpekel/esagent/pkg/observability"
)

// maxErrorLength bounds one previewed error line, in runes.
const maxErrorLength = 200

// ItemResult is the backend outcome of one action.
type ItemResult struct {
	Op     string
	Index  string
	ID     string
	Status int
	Error  string
}

// OK reports whether the write succeeded.
func (r ItemResult) OK() bool {
	return r.Error == "" && r.Status >= 200 && r.Status < 300
}

// Writer is the backend bulk-write capability. It returns one result per
// action, in order.
type Writer interface {
	Bulk(ctx context.Context, actions []Action) ([]ItemResult, error)
}

// Result summarizes a run.
type Result struct {
	Succeeded   int
	Failed      int
	ParseErrors int
	// Errors previews the first failures in the order they occurred.
	Errors []string
}

// Summary renders the result for the model.
func (r Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bulk write finished: %d succeeded, %d failed.", r.Succeeded, r.Failed)
	if r.ParseErrors > 0 {
		fmt.Fprintf(&b, " %d invalid record(s) skipped.", r.ParseErrors)
	}
	if len(r.Errors) > 0 {
		b.WriteString(" First errors: ")
		b.WriteString(strings.Join(r.Errors, " | "))
	}
	return b.String()
}

// Pipeline streams parsed actions to a Writer.
type Pipeline struct {
	writer    Writer
	chunkSize int
	preview   int
	logger    *slog.Logger
}

// NewPipeline builds a pipeline from cfg.
func NewPipeline(w Writer, cfg config.BulkConfig) *Pipeline {
	cfg.SetDefaults()
	return &Pipeline{
		writer:    w,
		chunkSize: cfg.ChunkSize,
		preview:   cfg.ErrorPreview,
		logger:    slog.Default().With("component", "bulk"),
	}
}

// Run ingests an in-memory NDJSON payload.
func (p *Pipeline) Run(ctx context.Context, ndjson string) (Result, error) {
	return p.RunReader(ctx, strings.NewReader(ndjson))
}

// RunReader ingests NDJSON from r. On a transport failure the counts so far
// are returned with the error.
func (p *Pipeline) RunReader(ctx context.Context, r io.Reader) (res Result, err error) {
	ctx, span := observability.GetTracer(observability.TracerElastic).Start(ctx, observability.SpanBulk)
	defer func() {
		span.SetAttributes(
			attribute.Int("esagent.bulk.succeeded", res.Succeeded),
			attribute.Int("esagent.bulk.failed", res.Failed),
			attribute.Int("esagent.bulk.invalid", res.ParseErrors),
		)
		observability.EndSpan(span, err)
		observability.GetGlobalMetrics().RecordBulk(ctx, res.Succeeded, res.Failed, res.ParseErrors)
	}()

	onParseError := func(pe *ParseError) {
		res.ParseErrors++
		p.logger.Warn("Skipping bulk record", "line", pe.Line, "error", pe.Message)
		p.note(&res, pe.Error())
	}

	batch := make([]Action, 0, p.chunkSize)
	batches := 0
	for action := range Parse(r, onParseError) {
		batch = append(batch, action)
		if len(batch) < p.chunkSize {
			continue
		}
		batches++
		if err := p.flush(ctx, batches, batch, &res); err != nil {
			return res, err
		}
		batch = make([]Action, 0, p.chunkSize)
	}
	if len(batch) > 0 {
		batches++
		if err := p.flush(ctx, batches, batch, &res); err != nil {
			return res, err
		}
	}

	p.logger.Info("Bulk write finished",
		"succeeded", res.Succeeded, "failed", res.Failed, "invalid", res.ParseErrors, "batches", batches)
	return res, nil
}

func (p *Pipeline) flush(ctx context.Context, n int, batch []Action, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, span := observability.GetTracer(observability.TracerElastic).Start(ctx, "esagent.bulk.batch",
		trace.WithAttributes(attribute.Int(observability.AttrBatch, n), attribute.Int("esagent.bulk.actions", len(batch))))
	items, err := p.writer.Bulk(ctx, batch)
	observability.EndSpan(span, err)
	if err != nil {
		p.logger.Error("Bulk request failed", "batch", n, "actions", len(batch), "error", err)
		return err
	}

	if len(items) > len(batch) {
		p.logger.Warn("Bulk reply has extra items", "batch", n, "actions", len(batch), "items", len(items))
		items = items[:len(batch)]
	}
	for _, item := range items {
		if item.OK() {
			res.Succeeded++
			continue
		}
		res.Failed++
		detail := item.Error
		if detail == "" {
			detail = fmt.Sprintf("status %d", item.Status)
		}
		p.note(res, fmt.Sprintf("%s %s/%s: %s", item.Op, orUnknown(item.Index), orUnknown(item.ID), detail))
	}
	// Actions the backend did not report on are failures.
	for _, a := range batch[len(items):] {
		res.Failed++
		p.note(res, fmt.Sprintf("%s %s/%s: no item reported", a.Type, orUnknown(a.Index), orUnknown(a.ID)))
	}
	p.logger.Debug("Bulk batch written", "batch", n, "actions", len(batch), "items", len(items))
	return nil
}

func (p *Pipeline) note(res *Result, msg string) {
	if len(res.Errors) < p.preview {
		res.Errors = append(res.Errors, truncate(msg, maxErrorLength))
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}
