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

// Package agent runs the tool-calling loop of one question.
//
// A session starts with a system and a user turn. Each iteration sends the
// whole conversation plus the tool definitions to the chat model. A reply
// without tool calls is the final answer. A reply with tool calls has its
// first call dispatched through the registry and the result appended as a
// tool turn; further calls in the same reply are ignored. Tool failures
// become the tool turn's content and never end the session.
package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/esagent/pkg/config"
	"github.com/kadirpekel/esagent/pkg/llms"
	"github.com/kadirpekel/esagent/pkg/observability"
	"github.com/kadirpekel/esagent/pkg/tool"
)

// Status is the outcome of a session.
type Status string

const (
	// StatusFinished means the model produced a final answer.
	StatusFinished Status = "finished"
	// StatusIncomplete means the session stopped before a final answer,
	// because the turn limit was reached or the caller stopped it.
	StatusIncomplete Status = "incomplete"
	// StatusFailed means a model call failed.
	StatusFailed Status = "failed"
)

// ErrTurnLimitReached is returned when a session used every model call it
// was allowed without producing a final answer.
var ErrTurnLimitReached = errors.New("turn limit reached")

var errStopped = errors.New("session stopped by caller")

// Dispatcher resolves tool calls. *tool.Registry implements it.
type Dispatcher interface {
	Definitions() []tool.Definition
	Dispatch(ctx context.Context, call tool.Call) (string, error)
}

// Result summarizes a session.
type Result struct {
	SessionID  string `json:"session_id"`
	Status     Status `json:"status"`
	Answer     string `json:"answer"`
	Turns      []Turn `json:"turns"`
	ModelCalls int    `json:"model_calls"`
	ToolCalls  int    `json:"tool_calls"`
}

// Agent answers questions with a chat model and a set of tools. It holds no
// per-session state, so one Agent may run many sessions concurrently.
type Agent struct {
	model llms.ChatModel
	tools Dispatcher
	cfg   config.AgentConfig
}

// New creates an agent.
func New(model llms.ChatModel, tools Dispatcher, cfg config.AgentConfig) *Agent {
	cfg.SetDefaults()
	return &Agent{model: model, tools: tools, cfg: cfg}
}

// Run answers question. The returned Result is never nil; the error is
// ErrTurnLimitReached for incomplete sessions and wraps the model failure
// for failed ones.
func (a *Agent) Run(ctx context.Context, question string) (*Result, error) {
	return a.run(ctx, question, func(Turn) bool { return true })
}

// Stream answers question and yields every turn as it is appended, the
// initial system and user turns included. A failed or incomplete session
// ends with a zero Turn and the error.
func (a *Agent) Stream(ctx context.Context, question string) iter.Seq2[Turn, error] {
	return func(yield func(Turn, error) bool) {
		stopped := false
		_, err := a.run(ctx, question, func(t Turn) bool {
			if !yield(t, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			yield(Turn{}, err)
		}
	}
}

func (a *Agent) run(ctx context.Context, question string, emit func(Turn) bool) (res *Result, err error) {
	if a.cfg.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.SessionTimeout)
		defer cancel()
	}

	sessionID := uuid.NewString()
	log := slog.With("session_id", sessionID)

	ctx, span := observability.GetTracer(observability.TracerAgent).Start(ctx, observability.SpanSession,
		trace.WithAttributes(
			attribute.String(observability.AttrSessionID, sessionID),
			attribute.String(observability.AttrLLMModel, a.model.ModelName()),
		),
	)

	conv := NewConversation(a.cfg.SystemPrompt, question)
	res = &Result{SessionID: sessionID, Status: StatusIncomplete}
	defer func() {
		res.Turns = conv.Turns()
		span.SetAttributes(
			attribute.Int(observability.AttrTurns, res.ModelCalls),
			attribute.String(observability.AttrStatus, string(res.Status)),
		)
		observability.GetGlobalMetrics().RecordSession(ctx, string(res.Status), res.ModelCalls)
		if errors.Is(err, ErrTurnLimitReached) || errors.Is(err, errStopped) {
			observability.EndSpan(span, nil)
		} else {
			observability.EndSpan(span, err)
		}
	}()

	appendTurn := func(t Turn) bool {
		conv.Append(t)
		return emit(t.clone())
	}

	for _, t := range conv.Turns() {
		if !emit(t) {
			return res, errStopped
		}
	}

	log.Debug("Session started", "question", question, "max_turns", a.cfg.MaxTurns)
	definitions := a.tools.Definitions()

	for res.ModelCalls < a.cfg.MaxTurns {
		res.ModelCalls++
		resp, err := a.model.Chat(ctx, conv.Messages(), definitions)
		if err != nil {
			log.Error("Model call failed", "turn", res.ModelCalls, "error", err)
			res.Status = StatusFailed
			return res, fmt.Errorf("model call %d failed: %w", res.ModelCalls, err)
		}

		if len(resp.ToolCalls) == 0 {
			res.Status = StatusFinished
			res.Answer = resp.Content
			appendTurn(Turn{Role: llms.RoleAssistant, Content: resp.Content})
			log.Debug("Session finished", "model_calls", res.ModelCalls, "tool_calls", res.ToolCalls)
			return res, nil
		}

		if len(resp.ToolCalls) > 1 {
			log.Debug("Model requested several tool calls, dispatching the first only",
				"requested", len(resp.ToolCalls), "dispatched", resp.ToolCalls[0].Name)
		}
		call := resp.ToolCalls[0]
		if call.ID == "" {
			call.ID = "call_" + uuid.NewString()
		}

		if !appendTurn(Turn{Role: llms.RoleAssistant, Content: resp.Content, ToolCall: &call}) {
			return res, errStopped
		}

		output := a.dispatch(ctx, log, call)
		res.ToolCalls++
		if !appendTurn(Turn{Role: llms.RoleTool, Content: output, ToolCallID: call.ID, ToolName: call.Name}) {
			return res, errStopped
		}
	}

	log.Warn("Session reached the turn limit without a final answer",
		"max_turns", a.cfg.MaxTurns, "tool_calls", res.ToolCalls)
	return res, ErrTurnLimitReached
}

// dispatch runs one tool call and renders a failure as the tool output.
func (a *Agent) dispatch(ctx context.Context, log *slog.Logger, call llms.ToolCall) string {
	output, err := a.tools.Dispatch(ctx, tool.Call{ID: call.ID, Name: call.Name, Arguments: call.Arguments})
	if err != nil {
		log.Warn("Tool call failed", "tool", call.Name, "call_id", call.ID, "error", err)
		return err.Error()
	}
	return output
}
