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
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	name string
	call func(ctx context.Context, args json.RawMessage) (string, error)
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub " + s.name }
func (s *stubTool) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}, "required": []any{}}
}
func (s *stubTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	return s.call(ctx, args)
}

func echoTool(name string) *stubTool {
	return &stubTool{name: name, call: func(_ context.Context, args json.RawMessage) (string, error) {
		return string(args), nil
	}}
}

func TestRegistry_RegisterAndDefinitions(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool("b"), echoTool("a"))

	assert.Equal(t, 2, r.Len())

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "b", defs[0].Name)
	assert.Equal(t, "a", defs[1].Name)
	assert.Equal(t, "stub b", defs[0].Description)
	assert.Equal(t, "object", defs[0].Parameters["type"])

	err := r.Register(echoTool("a"))
	var dup *DuplicateToolError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "a", dup.Name)
	assert.Equal(t, 2, r.Len())

	assert.Error(t, r.Register(nil))
}

func TestRegistry_Dispatch(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool("echo"))

	tests := []struct {
		name    string
		call    Call
		want    string
		errType any
	}{
		{name: "object arguments", call: Call{ID: "1", Name: "echo", Arguments: `{"a":1}`}, want: `{"a":1}`},
		{name: "empty arguments", call: Call{ID: "2", Name: "echo", Arguments: "  "}, want: `{}`},
		{name: "unknown tool", call: Call{ID: "3", Name: "nope"}, errType: &UnknownToolError{}},
		{name: "malformed arguments", call: Call{ID: "4", Name: "echo", Arguments: `{"a":`}, errType: &ArgumentParseError{}},
		{name: "null arguments", call: Call{ID: "5", Name: "echo", Arguments: `null`}, errType: &ArgumentParseError{}},
		{name: "array arguments", call: Call{ID: "6", Name: "echo", Arguments: `[]`}, errType: &ArgumentParseError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Dispatch(context.Background(), tt.call)
			switch want := tt.errType.(type) {
			case nil:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			case *UnknownToolError:
				require.ErrorAs(t, err, &want)
			case *ArgumentParseError:
				require.ErrorAs(t, err, &want)
			}
		})
	}
}

func TestRegistry_DispatchExecutionErrors(t *testing.T) {
	boom := errors.New("boom")
	r := NewRegistry()
	r.MustRegister(
		&stubTool{name: "fail", call: func(context.Context, json.RawMessage) (string, error) { return "", boom }},
		&stubTool{name: "panic", call: func(context.Context, json.RawMessage) (string, error) { panic("kaboom") }},
		&stubTool{name: "badargs", call: func(context.Context, json.RawMessage) (string, error) {
			return "", &ArgumentParseError{Tool: "badargs", Err: errors.New("missing index_name")}
		}},
	)

	_, err := r.Dispatch(context.Background(), Call{ID: "c1", Name: "fail"})
	var execErr *ToolExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "c1", execErr.CallID)
	assert.ErrorIs(t, err, boom)

	_, err = r.Dispatch(context.Background(), Call{ID: "c2", Name: "panic"})
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, err.Error(), "kaboom")

	_, err = r.Dispatch(context.Background(), Call{ID: "c3", Name: "badargs"})
	var argErr *ArgumentParseError
	require.ErrorAs(t, err, &argErr)
	assert.False(t, errors.As(err, &execErr))
}
