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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/esagent/pkg/agent"
	"github.com/kadirpekel/esagent/pkg/config"
	"github.com/kadirpekel/esagent/pkg/llms"
	"github.com/kadirpekel/esagent/pkg/tool"
	"github.com/kadirpekel/esagent/pkg/tool/functiontool"
)

type fakeAgent struct {
	result *agent.Result
	err    error
	block  chan struct{}
}

func (f *fakeAgent) Run(ctx context.Context, question string) (*agent.Result, error) {
	if f.block != nil {
		<-f.block
	}
	res := *f.result
	res.Turns = []agent.Turn{{Role: llms.RoleUser, Content: question}}
	return &res, f.err
}

func (f *fakeAgent) Stream(_ context.Context, question string) iter.Seq2[agent.Turn, error] {
	return func(yield func(agent.Turn, error) bool) {
		if !yield(agent.Turn{Role: llms.RoleUser, Content: question}, nil) {
			return
		}
		if f.err != nil {
			yield(agent.Turn{}, f.err)
			return
		}
		yield(agent.Turn{Role: llms.RoleAssistant, Content: f.result.Answer}, nil)
	}
}

type greetArgs struct {
	Name string `json:"name" jsonschema:"required,description=Who to greet"`
}

func newTestServer(t *testing.T, a Agent, cfg config.ServerConfig) http.Handler {
	t.Helper()
	reg := tool.NewRegistry()
	reg.MustRegister(functiontool.Must(functiontool.New(functiontool.Config{
		Name:        "greet",
		Description: "Greets someone.",
	}, func(_ context.Context, args greetArgs) (string, error) {
		if args.Name == "crash" {
			return "", errors.New("boom")
		}
		return "hello " + args.Name, nil
	})))
	return New(cfg, a, reg, nil).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, &fakeAgent{}, config.ServerConfig{})
	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAsk(t *testing.T) {
	a := &fakeAgent{result: &agent.Result{SessionID: "s1", Status: agent.StatusFinished, Answer: "42", ModelCalls: 2, ToolCalls: 1}}
	h := newTestServer(t, a, config.ServerConfig{})

	rec := do(t, h, http.MethodPost, "/v1/ask", `{"question":"meaning?","include_turns":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, agent.StatusFinished, resp.Status)
	assert.Equal(t, "42", resp.Answer)
	assert.Equal(t, 2, resp.ModelCalls)
	assert.Empty(t, resp.Error)
	require.Len(t, resp.Turns, 1)
	assert.Equal(t, "meaning?", resp.Turns[0].Content)
}

func TestAsk_Errors(t *testing.T) {
	tests := []struct {
		name       string
		agent      *fakeAgent
		body       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "invalid body",
			agent:      &fakeAgent{},
			body:       `{`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "empty question",
			agent:      &fakeAgent{},
			body:       `{"question":"  "}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "question is required",
		},
		{
			name:       "incomplete session",
			agent:      &fakeAgent{result: &agent.Result{Status: agent.StatusIncomplete}, err: agent.ErrTurnLimitReached},
			body:       `{"question":"q"}`,
			wantStatus: http.StatusOK,
			wantError:  "turn limit reached",
		},
		{
			name:       "model failure",
			agent:      &fakeAgent{result: &agent.Result{Status: agent.StatusFailed}, err: errors.New("model down")},
			body:       `{"question":"q"}`,
			wantStatus: http.StatusBadGateway,
			wantError:  "model down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(t, tt.agent, config.ServerConfig{}), http.MethodPost, "/v1/ask", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantError)
		})
	}
}

func TestAsk_ConcurrencyLimit(t *testing.T) {
	a := &fakeAgent{result: &agent.Result{Status: agent.StatusFinished}, block: make(chan struct{})}
	h := newTestServer(t, a, config.ServerConfig{MaxConcurrentSessions: 1})

	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- do(t, h, http.MethodPost, "/v1/ask", `{"question":"first"}`) }()

	require.Eventually(t, func() bool {
		rec := do(t, h, http.MethodPost, "/v1/ask", `{"question":"second"}`)
		return rec.Code == http.StatusServiceUnavailable
	}, time.Second, 5*time.Millisecond)

	close(a.block)
	assert.Equal(t, http.StatusOK, (<-done).Code)
}

func TestAskStream(t *testing.T) {
	a := &fakeAgent{result: &agent.Result{Answer: "done"}}
	h := newTestServer(t, a, config.ServerConfig{})

	rec := do(t, h, http.MethodPost, "/v1/ask/stream", `{"question":"q"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event: turn\n"))
	assert.Contains(t, body, `"content":"done"`)
	assert.Contains(t, body, "event: done\n")
}

func TestAskStream_Error(t *testing.T) {
	a := &fakeAgent{result: &agent.Result{}, err: errors.New("model down")}
	rec := do(t, newTestServer(t, a, config.ServerConfig{}), http.MethodPost, "/v1/ask/stream", `{"question":"q"}`)
	body := rec.Body.String()
	assert.Contains(t, body, "event: error\n")
	assert.Contains(t, body, "model down")
	assert.NotContains(t, body, "event: done")
}

func TestListTools(t *testing.T) {
	rec := do(t, newTestServer(t, &fakeAgent{}, config.ServerConfig{}), http.MethodGet, "/v1/tools", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tools []tool.Definition `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Tools, 1)
	assert.Equal(t, "greet", body.Tools[0].Name)
}

func TestCallTool(t *testing.T) {
	h := newTestServer(t, &fakeAgent{}, config.ServerConfig{})

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"ok", "/v1/tools/greet", `{"name":"ann"}`, http.StatusOK, `"output":"hello ann"`},
		{"unknown", "/v1/tools/nope", `{}`, http.StatusNotFound, "unknown tool"},
		{"bad args", "/v1/tools/greet", `[1]`, http.StatusBadRequest, "invalid arguments"},
		{"missing arg", "/v1/tools/greet", `{}`, http.StatusBadRequest, "missing required"},
		{"tool failure", "/v1/tools/greet", `{"name":"crash"}`, http.StatusInternalServerError, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}
