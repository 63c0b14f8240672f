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

package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kadirpekel/esagent/pkg/observability"
	"github.com/kadirpekel/esagent/pkg/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Registry maps tool names to executors. Registration is expected at
// startup; Dispatch and Definitions are safe for concurrent use.
type Registry struct {
	tools *registry.BaseRegistry[CallableTool]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: registry.NewBaseRegistry[CallableTool]()}
}

// Register adds t. A second tool with the same name is rejected with
// *DuplicateToolError and the first registration is kept.
func (r *Registry) Register(t CallableTool) error {
	if t == nil {
		return errors.New("tool is nil")
	}
	if err := r.tools.Register(t.Name(), t); err != nil {
		if errors.Is(err, registry.ErrAlreadyExists) {
			return &DuplicateToolError{Name: t.Name()}
		}
		return err
	}
	return nil
}

// MustRegister registers every tool and panics on the first failure.
func (r *Registry) MustRegister(tools ...CallableTool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (CallableTool, bool) {
	return r.tools.Get(name)
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []CallableTool {
	return r.tools.List()
}

// Definitions describes every registered tool in registration order.
func (r *Registry) Definitions() []Definition {
	tools := r.tools.List()
	defs := make([]Definition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, Describe(t))
	}
	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return r.tools.Count()
}

// Dispatch runs the tool named by call.
//
// Errors are typed: *UnknownToolError, *ArgumentParseError, or
// *ToolExecutionError wrapping the executor's failure. A panicking tool is
// reported as a *ToolExecutionError.
func (r *Registry) Dispatch(ctx context.Context, call Call) (result string, err error) {
	start := time.Now()
	ctx, span := observability.GetTracer(observability.TracerTool).Start(ctx, observability.SpanToolExecution,
		trace.WithAttributes(
			attribute.String(observability.AttrToolName, call.Name),
			attribute.String(observability.AttrToolCallID, call.ID),
		),
	)
	defer func() {
		observability.GetGlobalMetrics().RecordToolExecution(ctx, call.Name, time.Since(start), err)
		observability.EndSpan(span, err)
	}()

	log := slog.With("tool", call.Name, "call_id", call.ID)

	t, ok := r.tools.Get(call.Name)
	if !ok {
		err = &UnknownToolError{Name: call.Name}
		log.Error("Model requested an unknown tool", "registered", r.tools.Names())
		return "", err
	}

	args, err := normalizeArguments(call.Name, call.Arguments)
	if err != nil {
		log.Warn("Rejected tool arguments", "error", err)
		return "", err
	}

	result, err = safeCall(ctx, t, args)
	if err != nil {
		var argErr *ArgumentParseError
		if errors.As(err, &argErr) {
			log.Warn("Rejected tool arguments", "error", err)
			return "", err
		}
		err = &ToolExecutionError{Tool: call.Name, CallID: call.ID, Err: err}
		log.Error("Tool execution failed", "error", err)
		return "", err
	}

	log.Debug("Tool executed", "duration", time.Since(start), "result_bytes", len(result))
	return result, nil
}

// normalizeArguments checks that raw is a JSON object. An empty payload is
// read as an empty object since models omit arguments for parameterless tools.
func normalizeArguments(name, raw string) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 {
		return json.RawMessage("{}"), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, &ArgumentParseError{Tool: name, Err: fmt.Errorf("arguments must be a JSON object: %w", err)}
	}
	if obj == nil {
		return nil, &ArgumentParseError{Tool: name, Err: errors.New("arguments must be a JSON object, got null")}
	}
	return json.RawMessage(trimmed), nil
}

func safeCall(ctx context.Context, t CallableTool, args json.RawMessage) (result string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return t.Call(ctx, args)
}
