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

package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/esagent/pkg/tool"
	"github.com/kadirpekel/esagent/pkg/tool/functiontool"
)

type sumArgs struct {
	A int `json:"a" jsonschema:"required,description=First operand"`
	B int `json:"b" jsonschema:"required,description=Second operand"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := tool.NewRegistry()
	reg.MustRegister(functiontool.Must(functiontool.New(functiontool.Config{
		Name:        "sum",
		Description: "Adds two numbers.",
	}, func(_ context.Context, args sumArgs) (string, error) {
		return jsonInt(args.A + args.B), nil
	})))

	s, err := New("esagent", "test", reg)
	require.NoError(t, err)
	return s
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func call(t *testing.T, s *Server, method string, params any) map[string]any {
	t.Helper()
	msg, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": method, "params": params})
	require.NoError(t, err)

	resp := s.MCP().HandleMessage(context.Background(), msg)
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Nil(t, out["error"], "unexpected error: %s", raw)
	return out["result"].(map[string]any)
}

func initialize(t *testing.T, s *Server) {
	t.Helper()
	call(t, s, "initialize", map[string]any{
		"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
		"clientInfo":      map[string]any{"name": "test", "version": "1"},
		"capabilities":    map[string]any{},
	})
}

func TestListTools(t *testing.T) {
	s := newTestServer(t)
	initialize(t, s)

	result := call(t, s, "tools/list", map[string]any{})
	tools := result["tools"].([]any)
	require.Len(t, tools, 1)

	sum := tools[0].(map[string]any)
	assert.Equal(t, "sum", sum["name"])
	assert.Equal(t, "Adds two numbers.", sum["description"])
	schema := sum["inputSchema"].(map[string]any)
	assert.Equal(t, "object", schema["type"])
	assert.ElementsMatch(t, []any{"a", "b"}, schema["required"])
}

func TestCallTool(t *testing.T) {
	s := newTestServer(t)
	initialize(t, s)

	tests := []struct {
		name      string
		args      any
		wantText  string
		wantError bool
	}{
		{name: "ok", args: map[string]any{"a": 2, "b": 3}, wantText: "5"},
		{name: "missing argument", args: map[string]any{"a": 2}, wantText: "missing required", wantError: true},
		{name: "no arguments", args: nil, wantText: "missing required", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := map[string]any{"name": "sum"}
			if tt.args != nil {
				params["arguments"] = tt.args
			}
			result := call(t, s, "tools/call", params)

			content := result["content"].([]any)
			require.Len(t, content, 1)
			text := content[0].(map[string]any)["text"].(string)
			assert.Contains(t, text, tt.wantText)

			isError, _ := result["isError"].(bool)
			assert.Equal(t, tt.wantError, isError)
		})
	}
}
