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

package agent

import "github.com/kadirpekel/esagent/pkg/llms"

// Turn is one entry of a conversation.
//
// Assistant turns carry at most one ToolCall. Tool turns carry the id and
// name of the call they answer.
type Turn struct {
	Role       llms.Role      `json:"role"`
	Content    string         `json:"content"`
	ToolCall   *llms.ToolCall `json:"tool_call,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
}

func (t Turn) clone() Turn {
	if t.ToolCall != nil {
		tc := *t.ToolCall
		t.ToolCall = &tc
	}
	return t
}

// Conversation is an append-only log of turns. Turns are copied in and out,
// so an appended turn never changes.
type Conversation struct {
	turns []Turn
}

// NewConversation starts a conversation with a system and a user turn.
func NewConversation(systemPrompt, question string) *Conversation {
	c := &Conversation{}
	c.Append(Turn{Role: llms.RoleSystem, Content: systemPrompt})
	c.Append(Turn{Role: llms.RoleUser, Content: question})
	return c
}

// Append adds a turn at the end.
func (c *Conversation) Append(t Turn) {
	c.turns = append(c.turns, t.clone())
}

func (c *Conversation) Len() int {
	return len(c.turns)
}

// Turns returns a copy of every turn.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	for i, t := range c.turns {
		out[i] = t.clone()
	}
	return out
}

// Messages renders the conversation for the chat model.
func (c *Conversation) Messages() []llms.Message {
	msgs := make([]llms.Message, 0, len(c.turns))
	for _, t := range c.turns {
		msg := llms.Message{Role: t.Role, Content: t.Content}
		switch t.Role {
		case llms.RoleAssistant:
			if t.ToolCall != nil {
				msg.ToolCalls = []llms.ToolCall{*t.ToolCall}
			}
		case llms.RoleTool:
			msg.ToolCallID = t.ToolCallID
			msg.Name = t.ToolName
		}
		msgs = append(msgs, msg)
	}
	return msgs
}
