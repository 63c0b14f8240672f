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

package main

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/esagent/pkg/agent"
	"github.com/kadirpekel/esagent/pkg/config"
	"github.com/kadirpekel/esagent/pkg/llms"
)

func TestCLIParse(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		command string
		check   func(t *testing.T, cli *CLI)
	}{
		{
			name:    "ask joins words",
			args:    []string{"ask", "how", "many", "indices?"},
			command: "ask <question>",
			check: func(t *testing.T, cli *CLI) {
				assert.Equal(t, []string{"how", "many", "indices?"}, cli.Ask.Question)
			},
		},
		{
			name:    "batch flags",
			args:    []string{"--log-level", "debug", "batch", "-f", "q.txt", "-n", "8", "--json"},
			command: "batch",
			check: func(t *testing.T, cli *CLI) {
				assert.Equal(t, "debug", cli.LogLevel)
				assert.Equal(t, 8, cli.Batch.Concurrency)
				assert.True(t, cli.Batch.JSON)
			},
		},
		{
			name:    "call defaults arguments",
			args:    []string{"call", "elastic_list_indices"},
			command: "call <tool>",
			check: func(t *testing.T, cli *CLI) {
				assert.Equal(t, "elastic_list_indices", cli.Call.Tool)
				assert.Equal(t, "{}", cli.Call.Arguments)
			},
		},
		{
			name:    "serve",
			args:    []string{"serve", "--address", ":9090", "--watch"},
			command: "serve",
			check: func(t *testing.T, cli *CLI) {
				assert.Equal(t, ":9090", cli.Serve.Address)
				assert.True(t, cli.Serve.Watch)
			},
		},
		{
			name:    "mcp",
			args:    []string{"mcp"},
			command: "mcp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cli CLI
			parser, err := kong.New(&cli, kong.Name("esagent"), kong.Exit(func(int) { t.Fatal("unexpected exit") }))
			require.NoError(t, err)
			kctx, err := parser.Parse(tt.args)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(kctx.Command(), tt.command), kctx.Command())
			if tt.check != nil {
				tt.check(t, &cli)
			}
		})
	}
}

func TestReadQuestions(t *testing.T) {
	questions, err := readQuestions(strings.NewReader("how many?\n\n# comment\n  which index?  \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"how many?", "which index?"}, questions)
}

type fakeRunner struct {
	mu       sync.Mutex
	inflight atomic.Int32
	peak     int32
}

func (f *fakeRunner) Run(_ context.Context, q string) (*agent.Result, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	f.mu.Lock()
	f.peak = max(f.peak, n)
	f.mu.Unlock()
	time.Sleep(5 * time.Millisecond)

	if strings.HasPrefix(q, "fail") {
		return &agent.Result{Status: agent.StatusFailed}, errors.New("model down")
	}
	return &agent.Result{Status: agent.StatusFinished, Answer: "answer to " + q}, nil
}

func TestRunBatch(t *testing.T) {
	questions := []string{"q1", "q2", "fail3", "q4", "q5", "q6"}
	r := &fakeRunner{}

	items, err := runBatch(context.Background(), r, questions, 2)
	require.NoError(t, err)
	require.Len(t, items, len(questions))

	for i, it := range items {
		assert.Equal(t, questions[i], it.Question)
	}
	assert.Equal(t, "answer to q1", items[0].Result.Answer)
	assert.Equal(t, "model down", items[2].Error)
	assert.Equal(t, agent.StatusFailed, items[2].Result.Status)
	assert.LessOrEqual(t, r.peak, int32(2))
}

func TestRunBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runBatch(ctx, &fakeRunner{}, []string{"q1"}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChatLoop(t *testing.T) {
	var asked []string
	var out bytes.Buffer
	in := strings.NewReader("first\n\nturns\nbroken\nexit\nnever\n")

	err := chatLoop(context.Background(), in, &out, false, func(_ context.Context, q string) error {
		asked = append(asked, q)
		switch q {
		case "turns":
			return &exitError{code: 2, err: agent.ErrTurnLimitReached}
		case "broken":
			return errors.New("model down")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "turns", "broken"}, asked)
	assert.Contains(t, out.String(), "turn limit reached")
	assert.Contains(t, out.String(), "error: model down")
}

func TestSessionExit(t *testing.T) {
	assert.NoError(t, sessionExit(agent.StatusFinished, nil))

	var exit *exitError
	require.ErrorAs(t, sessionExit(agent.StatusIncomplete, agent.ErrTurnLimitReached), &exit)
	assert.Equal(t, 2, exit.code)
	assert.ErrorIs(t, exit, agent.ErrTurnLimitReached)

	require.ErrorAs(t, sessionExit(agent.StatusFailed, errors.New("x")), &exit)
	assert.Equal(t, 1, exit.code)
}

func TestResolveLogSettings(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "warn")
	t.Setenv(LogFormatEnvVar, "")
	t.Setenv(LogFileEnvVar, "")

	cfg := &config.LoggerConfig{Level: "error", Format: "verbose", File: "esagent.log"}

	assert.Equal(t, logSettings{Level: "debug", File: "esagent.log", Format: "verbose"},
		resolveLogSettings("debug", "", "", cfg))
	assert.Equal(t, logSettings{Level: "warn", File: "esagent.log", Format: "json"},
		resolveLogSettings("", "", "json", cfg))
	assert.Equal(t, logSettings{Level: "warn", Format: DefaultLogFormat},
		resolveLogSettings("", "", "", nil))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b", preview("a\nb", 10))
	assert.Equal(t, "abc...", preview("abcdef", 3))
}

func TestTurnPrinter(t *testing.T) {
	var out bytes.Buffer
	p := newTurnPrinter(&out, true)
	for turn, err := range fakeTurns() {
		require.NoError(t, err)
		p.print(turn)
	}
	assert.Equal(t, "→ elastic_list_indices {}\n← people\nthere is one index\n", out.String())

	out.Reset()
	quiet := newTurnPrinter(&out, false)
	for turn := range fakeTurns() {
		quiet.print(turn)
	}
	assert.Equal(t, "there is one index\n", out.String())
}

func fakeTurns() iter.Seq2[agent.Turn, error] {
	turns := []agent.Turn{
		{Role: llms.RoleSystem, Content: "system"},
		{Role: llms.RoleUser, Content: "which indices?"},
		{Role: llms.RoleAssistant, ToolCall: &llms.ToolCall{ID: "c1", Name: "elastic_list_indices", Arguments: "{}"}},
		{Role: llms.RoleTool, Content: "people", ToolCallID: "c1", ToolName: "elastic_list_indices"},
		{Role: llms.RoleAssistant, Content: "there is one index"},
	}
	return func(yield func(agent.Turn, error) bool) {
		for _, t := range turns {
			if !yield(t, nil) {
				return
			}
		}
	}
}
