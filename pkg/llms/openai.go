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

package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/esagent/pkg/config"
	"github.com/kadirpekel/esagent/pkg/httpclient"
	"github.com/kadirpekel/esagent/pkg/observability"
	"github.com/kadirpekel/esagent/pkg/tool"
)

// OpenAIRequest is the chat-completion request body.
type OpenAIRequest struct {
	Model       string          `json:"model"`
	Messages    []OpenAIMessage `json:"messages"`
	Tools       []OpenAITool    `json:"tools,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

// OpenAIMessage is a message on the wire. Content is null on assistant
// messages that only carry tool calls.
type OpenAIMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content"`
	ToolCalls  []OpenAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type OpenAITool struct {
	Type     string         `json:"type"`
	Function OpenAIFunction `json:"function"`
}

type OpenAIFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type OpenAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// OpenAIResponse is the chat-completion response body.
type OpenAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      OpenAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// OpenAI is a ChatModel for OpenAI-compatible chat-completion endpoints.
type OpenAI struct {
	cfg  config.LLMConfig
	http *httpclient.Client
}

// NewOpenAI creates a client. Extra options are applied after the ones
// derived from cfg.
func NewOpenAI(cfg config.LLMConfig, opts ...httpclient.Option) (*OpenAI, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid llm configuration: %w", err)
	}

	options := []httpclient.Option{
		httpclient.WithTimeout(cfg.Timeout),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
		httpclient.WithLogger(slog.Default().With("component", "llm")),
	}
	if cfg.APIKey != "" {
		options = append(options, httpclient.WithBearerToken(cfg.APIKey))
	}

	return &OpenAI{
		cfg:  cfg,
		http: httpclient.New(append(options, opts...)...),
	}, nil
}

func (p *OpenAI) ModelName() string {
	return p.cfg.Model
}

// Chat sends the conversation and tool list and returns the first choice.
func (p *OpenAI) Chat(ctx context.Context, messages []Message, tools []tool.Definition) (resp *Response, err error) {
	ctx, span := observability.GetTracer(observability.TracerLLM).Start(ctx, observability.SpanLLMRequest,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(observability.AttrLLMModel, p.cfg.Model),
			attribute.Int("esagent.llm.messages", len(messages)),
			attribute.Int("esagent.llm.tools", len(tools)),
		),
	)
	start := time.Now()
	defer func() {
		var in, out int
		if resp != nil {
			in, out = resp.Usage.InputTokens, resp.Usage.OutputTokens
			span.SetAttributes(
				attribute.Int(observability.AttrInputTokens, in),
				attribute.Int(observability.AttrOutTokens, out),
			)
		}
		observability.GetGlobalMetrics().RecordLLMCall(ctx, p.cfg.Model, time.Since(start), in, out, err)
		observability.EndSpan(span, err)
	}()

	raw, err := p.makeRequest(ctx, p.buildRequest(messages, tools))
	if err != nil {
		return nil, err
	}
	if len(raw.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := raw.Choices[0]
	resp = &Response{
		FinishReason: choice.FinishReason,
		Usage: Usage{
			InputTokens:  raw.Usage.PromptTokens,
			OutputTokens: raw.Usage.CompletionTokens,
		},
	}
	if choice.Message.Content != nil {
		resp.Content = *choice.Message.Content
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return resp, nil
}

func (p *OpenAI) buildRequest(messages []Message, tools []tool.Definition) OpenAIRequest {
	req := OpenAIRequest{
		Model:       p.cfg.Model,
		Messages:    make([]OpenAIMessage, 0, len(messages)),
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	}

	for _, m := range messages {
		msg := OpenAIMessage{
			Role:       string(m.Role),
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		if m.Content != "" || len(m.ToolCalls) == 0 {
			content := m.Content
			msg.Content = &content
		}
		for _, tc := range m.ToolCalls {
			call := OpenAIToolCall{ID: tc.ID, Type: "function"}
			call.Function.Name = tc.Name
			call.Function.Arguments = tc.Arguments
			msg.ToolCalls = append(msg.ToolCalls, call)
		}
		req.Messages = append(req.Messages, msg)
	}

	for _, def := range tools {
		req.Tools = append(req.Tools, OpenAITool{
			Type: "function",
			Function: OpenAIFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return req
}

func (p *OpenAI) makeRequest(ctx context.Context, request OpenAIRequest) (*OpenAIResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp.StatusCode, body)
	}

	var response OpenAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &response, nil
}

var _ ChatModel = (*OpenAI)(nil)
