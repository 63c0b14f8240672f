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

// Package llms talks to tool-calling chat models.
package llms

import (
	"context"

	"github.com/kadirpekel/esagent/pkg/tool"
)

// Role of a message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a tool invocation requested by the model. Arguments is the
// JSON text exactly as the model produced it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry of the conversation sent to the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls are set on assistant messages that requested tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and Name are set on tool result messages.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// Usage reports token consumption of one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the model's reply to one request. A null content is reported
// as the empty string.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

// ChatModel sends a conversation plus the available tools to a model.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, tools []tool.Definition) (*Response, error)
	ModelName() string
}

// ChatFunc adapts a function to ChatModel.
type ChatFunc func(ctx context.Context, messages []Message, tools []tool.Definition) (*Response, error)

func (f ChatFunc) Chat(ctx context.Context, messages []Message, tools []tool.Definition) (*Response, error) {
	return f(ctx, messages, tools)
}

func (f ChatFunc) ModelName() string { return "func" }
