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

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/esagent/pkg/config"
	"github.com/kadirpekel/esagent/pkg/llms"
	"github.com/kadirpekel/esagent/pkg/tool"
	"github.com/kadirpekel/esagent/pkg/tool/functiontool"
)

// scriptedModel replays canned responses and records what it was sent.
type scriptedModel struct {
	responses []*llms.Response
	err       error
	seen      [][]llms.Message
}

func (m *scriptedModel) Chat(_ context.Context, messages []llms.Message, _ []tool.Definition) (*llms.Response, error) {
	m.seen = append(m.seen, messages)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.seen) > len(m.responses) {
		return &llms.Response{ToolCalls: []llms.ToolCall{{ID: "loop", Name: "echo", Arguments: `{"text":"again"}`}}}, nil
	}
	return m.responses[len(m.seen)-1], nil
}

func (m *scriptedModel) ModelName() string { return "scripted" }

type echoArgs struct {
	Text string `json:"text" jsonschema:"required,description=Text to echo"`
}

func newTestRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry()
	reg.MustRegister(functiontool.Must(functiontool.New(functiontool.Config{
		Name:        "echo",
		Description: "Echoes its input.",
	}, func(_ context.Context, args echoArgs) (string, error) {
		return "echo: " + args.Text, nil
	})))
	reg.MustRegister(functiontool.Must(functiontool.New(functiontool.Config{
		Name:        "broken",
		Description: "Always fails.",
	}, func(context.Context, echoArgs) (string, error) {
		return "", errors.New("backend unavailable")
	})))
	return reg
}

func toolCall(id, name, args string) *llms.Response {
	return &llms.Response{ToolCalls: []llms.ToolCall{{ID: id, Name: name, Arguments: args}}}
}

func answer(text string) *llms.Response {
	return &llms.Response{Content: text}
}

func TestRun_OneTurn(t *testing.T) {
	model := &scriptedModel{responses: []*llms.Response{answer("There are no indices.")}}
	a := New(model, newTestRegistry(t), config.AgentConfig{SystemPrompt: "be brief"})

	res, err := a.Run(context.Background(), "How many indices?")
	require.NoError(t, err)

	assert.Equal(t, StatusFinished, res.Status)
	assert.Equal(t, "There are no indices.", res.Answer)
	assert.Equal(t, 1, res.ModelCalls)
	assert.Zero(t, res.ToolCalls)
	assert.NotEmpty(t, res.SessionID)

	require.Len(t, res.Turns, 3)
	assert.Equal(t, Turn{Role: llms.RoleSystem, Content: "be brief"}, res.Turns[0])
	assert.Equal(t, Turn{Role: llms.RoleUser, Content: "How many indices?"}, res.Turns[1])
	assert.Equal(t, Turn{Role: llms.RoleAssistant, Content: "There are no indices."}, res.Turns[2])
}

func TestRun_FiveTurns(t *testing.T) {
	model := &scriptedModel{responses: []*llms.Response{
		toolCall("c1", "echo", `{"text":"1"}`),
		toolCall("c2", "echo", `{"text":"2"}`),
		toolCall("c3", "echo", `{"text":"3"}`),
		toolCall("c4", "echo", `{"text":"4"}`),
		answer("done"),
	}}
	a := New(model, newTestRegistry(t), config.AgentConfig{MaxTurns: 5})

	res, err := a.Run(context.Background(), "count to four")
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, res.Status)
	assert.Equal(t, "done", res.Answer)
	assert.Equal(t, 5, res.ModelCalls)
	assert.Equal(t, 4, res.ToolCalls)
	require.Len(t, res.Turns, 2+4*2+1)

	for i := 0; i < 4; i++ {
		assistant, result := res.Turns[2+2*i], res.Turns[3+2*i]
		require.NotNil(t, assistant.ToolCall)
		assert.Equal(t, llms.RoleAssistant, assistant.Role)
		assert.Equal(t, fmt.Sprintf("c%d", i+1), assistant.ToolCall.ID)
		assert.Equal(t, llms.RoleTool, result.Role)
		assert.Equal(t, assistant.ToolCall.ID, result.ToolCallID)
		assert.Equal(t, "echo", result.ToolName)
		assert.Equal(t, fmt.Sprintf("echo: %d", i+1), result.Content)
	}

	// Every request replays the previous one as a prefix.
	require.Len(t, model.seen, 5)
	for i := 1; i < len(model.seen); i++ {
		prev, cur := model.seen[i-1], model.seen[i]
		require.Len(t, cur, len(prev)+2)
		assert.Equal(t, prev, cur[:len(prev)])
	}
	last := model.seen[4]
	assert.Equal(t, []llms.ToolCall{{ID: "c4", Name: "echo", Arguments: `{"text":"4"}`}}, last[len(last)-2].ToolCalls)
	assert.Equal(t, "c4", last[len(last)-1].ToolCallID)
}

func TestRun_TurnLimit(t *testing.T) {
	model := &scriptedModel{}
	a := New(model, newTestRegistry(t), config.AgentConfig{MaxTurns: 3})

	res, err := a.Run(context.Background(), "loop forever")
	require.ErrorIs(t, err, ErrTurnLimitReached)
	assert.Equal(t, StatusIncomplete, res.Status)
	assert.Equal(t, 3, res.ModelCalls)
	assert.Equal(t, 3, res.ToolCalls)
	assert.Len(t, model.seen, 3)
	assert.Empty(t, res.Answer)
}

func TestRun_ToolErrorsBecomeContent(t *testing.T) {
	model := &scriptedModel{responses: []*llms.Response{
		toolCall("c1", "broken", `{"text":"x"}`),
		toolCall("c2", "missing", `{}`),
		toolCall("c3", "echo", `not json`),
		answer("gave up"),
	}}
	a := New(model, newTestRegistry(t), config.AgentConfig{})

	res, err := a.Run(context.Background(), "try")
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, res.Status)
	assert.Equal(t, 3, res.ToolCalls)

	assert.Contains(t, res.Turns[3].Content, "backend unavailable")
	assert.Contains(t, res.Turns[5].Content, "missing")
	assert.Contains(t, res.Turns[7].Content, "echo")
	for _, i := range []int{3, 5, 7} {
		assert.Equal(t, llms.RoleTool, res.Turns[i].Role)
		assert.NotEmpty(t, res.Turns[i].Content)
	}
}

func TestRun_ModelFailure(t *testing.T) {
	cause := errors.New("connection refused")
	model := &scriptedModel{err: cause}
	a := New(model, newTestRegistry(t), config.AgentConfig{})

	res, err := a.Run(context.Background(), "hello")
	require.ErrorIs(t, err, cause)
	require.NotNil(t, res)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 1, res.ModelCalls)
	assert.Len(t, res.Turns, 2)
}

func TestRun_FirstToolCallOnly(t *testing.T) {
	model := &scriptedModel{responses: []*llms.Response{
		{ToolCalls: []llms.ToolCall{
			{ID: "a", Name: "echo", Arguments: `{"text":"first"}`},
			{ID: "b", Name: "echo", Arguments: `{"text":"second"}`},
		}},
		answer("ok"),
	}}
	a := New(model, newTestRegistry(t), config.AgentConfig{})

	res, err := a.Run(context.Background(), "two at once")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ToolCalls)
	require.Len(t, res.Turns, 5)
	assert.Equal(t, "a", res.Turns[2].ToolCall.ID)
	assert.Equal(t, "echo: first", res.Turns[3].Content)
}

func TestRun_FillsMissingCallID(t *testing.T) {
	model := &scriptedModel{responses: []*llms.Response{
		toolCall("", "echo", `{"text":"x"}`),
		answer("ok"),
	}}
	a := New(model, newTestRegistry(t), config.AgentConfig{})

	res, err := a.Run(context.Background(), "q")
	require.NoError(t, err)
	id := res.Turns[2].ToolCall.ID
	assert.True(t, strings.HasPrefix(id, "call_"))
	assert.Equal(t, id, res.Turns[3].ToolCallID)
}

func TestRun_SessionTimeout(t *testing.T) {
	model := llms.ChatFunc(func(ctx context.Context, _ []llms.Message, _ []tool.Definition) (*llms.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	a := New(model, newTestRegistry(t), config.AgentConfig{SessionTimeout: 10 * time.Millisecond})

	res, err := a.Run(context.Background(), "slow")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusFailed, res.Status)
}

func TestStream(t *testing.T) {
	model := &scriptedModel{responses: []*llms.Response{
		toolCall("c1", "echo", `{"text":"hi"}`),
		answer("bye"),
	}}
	a := New(model, newTestRegistry(t), config.AgentConfig{})

	var roles []llms.Role
	for turn, err := range a.Stream(context.Background(), "q") {
		require.NoError(t, err)
		roles = append(roles, turn.Role)
	}
	assert.Equal(t, []llms.Role{
		llms.RoleSystem, llms.RoleUser, llms.RoleAssistant, llms.RoleTool, llms.RoleAssistant,
	}, roles)
}

func TestStream_ReportsTurnLimit(t *testing.T) {
	a := New(&scriptedModel{}, newTestRegistry(t), config.AgentConfig{MaxTurns: 1})

	var last error
	turns := 0
	for _, err := range a.Stream(context.Background(), "q") {
		if err != nil {
			last = err
			continue
		}
		turns++
	}
	assert.ErrorIs(t, last, ErrTurnLimitReached)
	assert.Equal(t, 4, turns)
}

func TestStream_EarlyBreak(t *testing.T) {
	model := &scriptedModel{}
	a := New(model, newTestRegistry(t), config.AgentConfig{})

	for turn := range a.Stream(context.Background(), "q") {
		if turn.Role == llms.RoleUser {
			break
		}
	}
	assert.Empty(t, model.seen)
}

func TestConversation_AppendOnly(t *testing.T) {
	c := NewConversation("sys", "q")
	call := &llms.ToolCall{ID: "1", Name: "echo"}
	c.Append(Turn{Role: llms.RoleAssistant, ToolCall: call})

	call.Name = "mutated"
	turns := c.Turns()
	turns[0].Content = "mutated"
	turns[2].ToolCall.ID = "mutated"

	again := c.Turns()
	assert.Equal(t, "sys", again[0].Content)
	assert.Equal(t, "echo", again[2].ToolCall.Name)
	assert.Equal(t, "1", again[2].ToolCall.ID)
	assert.Equal(t, 3, c.Len())
}
