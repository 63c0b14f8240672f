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

package bulk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/esagent/pkg/config"
	"github.com/kadirpekel/esagent/pkg/elastic"
)

// fakeWriter accepts everything except ids listed in reject. When drop is
// set it leaves that many actions of every batch unreported.
type fakeWriter struct {
	batches [][]Action
	reject  map[string]string
	drop    int
	err     error
}

func (f *fakeWriter) Bulk(_ context.Context, actions []Action) ([]ItemResult, error) {
	f.batches = append(f.batches, actions)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]ItemResult, len(actions))
	for i, a := range actions {
		out[i] = ItemResult{Op: string(a.Type), Index: a.Index, ID: a.ID, Status: 200}
		if reason, ok := f.reject[a.ID]; ok {
			out[i].Status = 400
			out[i].Error = reason
		}
	}
	return out[:max(len(out)-f.drop, 0)], nil
}

func collect(t *testing.T, input string) ([]Action, []*ParseError) {
	t.Helper()
	var errs []*ParseError
	var actions []Action
	for a := range ParseString(input, func(pe *ParseError) { errs = append(errs, pe) }) {
		actions = append(actions, a)
	}
	return actions, errs
}

func TestParse_AllActionTypes(t *testing.T) {
	input := `{"index":{"_index":"people","_id":"1"}}
{"name":"ann"}
{"create":{"_index":"people","_id":2}}
{ "name" : "bob" }

{"update":{"_index":"people","_id":"3"}}
{"age":31}
{"delete":{"_index":"people","_id":"4"}}
{"index":{"_index":"people"}}
{"name":"no id"}`

	actions, errs := collect(t, input)
	require.Empty(t, errs)
	require.Len(t, actions, 5)

	assert.Equal(t, Action{Type: ActionIndex, Index: "people", ID: "1", Body: json.RawMessage(`{"name":"ann"}`)}, actions[0])
	assert.Equal(t, ActionCreate, actions[1].Type)
	assert.Equal(t, "2", actions[1].ID)
	assert.JSONEq(t, `{"name":"bob"}`, string(actions[1].Body))
	assert.JSONEq(t, `{"doc":{"age":31},"doc_as_upsert":true}`, string(actions[2].Body))
	assert.Equal(t, Action{Type: ActionDelete, Index: "people", ID: "4"}, actions[3])
	assert.Empty(t, actions[4].ID)
}

func TestParse_DeleteOnly(t *testing.T) {
	actions, errs := collect(t, `{"delete":{"_index":"people","_id":"3"}}`+"\n")
	require.Empty(t, errs)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionDelete, actions[0].Type)
	assert.Nil(t, actions[0].Body)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantActions int
		wantErrors  int
		wantMessage string
	}{
		{
			name:        "bad action json resyncs past its document",
			input:       "{\"index\":{\"_index\":\"a\",\"_id\":\"1\"}\n{\"x\":1}\n{\"index\":{\"_index\":\"a\",\"_id\":\"2\"}}\n{\"x\":2}\n",
			wantActions: 1, wantErrors: 1, wantMessage: "invalid action line",
		},
		{
			name:        "consecutive malformed records",
			input:       "{bad1\n{\"name\":\"a\"}\n{bad2\n{\"name\":\"b\"}\n{\"index\":{\"_index\":\"a\",\"_id\":\"1\"}}\n{\"x\":1}\n",
			wantActions: 1, wantErrors: 2, wantMessage: "invalid action line",
		},
		{
			name:        "bad delete followed by bad action",
			input:       "{\"delete\":{\"_id\":\"1\"}}\n{\"index\":{\"_id\":\"2\"}}\n{\"x\":2}\n",
			wantActions: 0, wantErrors: 2, wantMessage: "missing _index",
		},
		{
			name:        "two keys",
			input:       "{\"index\":{\"_index\":\"a\"},\"delete\":{\"_index\":\"a\"}}\n{\"x\":1}\n",
			wantActions: 0, wantErrors: 1, wantMessage: "exactly one key",
		},
		{
			name:        "unsupported action",
			input:       "{\"upsert\":{\"_index\":\"a\"}}\n{\"x\":1}\n{\"delete\":{\"_index\":\"a\",\"_id\":\"9\"}}\n",
			wantActions: 1, wantErrors: 1, wantMessage: "unsupported action",
		},
		{
			name:        "missing index",
			input:       "{\"index\":{\"_id\":\"1\"}}\n{\"x\":1}\n",
			wantActions: 0, wantErrors: 1, wantMessage: "missing _index",
		},
		{
			name:        "missing document at end",
			input:       "{\"index\":{\"_index\":\"a\",\"_id\":\"1\"}}\n",
			wantActions: 0, wantErrors: 1, wantMessage: "missing document line",
		},
		{
			name:        "blank document line",
			input:       "{\"index\":{\"_index\":\"a\",\"_id\":\"1\"}}\n\n{\"delete\":{\"_index\":\"a\",\"_id\":\"2\"}}\n",
			wantActions: 1, wantErrors: 1, wantMessage: "missing document line",
		},
		{
			name:        "bad document",
			input:       "{\"index\":{\"_index\":\"a\",\"_id\":\"1\"}}\n{oops}\n{\"delete\":{\"_index\":\"a\",\"_id\":\"2\"}}\n",
			wantActions: 1, wantErrors: 1, wantMessage: "invalid document",
		},
		{
			name:        "bad id type",
			input:       "{\"delete\":{\"_index\":\"a\",\"_id\":{}}}\n",
			wantActions: 0, wantErrors: 1, wantMessage: "_id must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actions, errs := collect(t, tt.input)
			assert.Len(t, actions, tt.wantActions)
			require.Len(t, errs, tt.wantErrors)
			assert.Contains(t, errs[0].Error(), tt.wantMessage)
		})
	}
}

func TestParse_SingleMalformedRecord(t *testing.T) {
	const n = 10
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i == 4 {
			fmt.Fprintf(&b, "{\"index\":{\"_index\":\"people\",\"_id\":\"%d\"}\n", i)
		} else {
			fmt.Fprintf(&b, "{\"index\":{\"_index\":\"people\",\"_id\":\"%d\"}}\n", i)
		}
		fmt.Fprintf(&b, "{\"n\":%d}\n", i)
	}

	actions, errs := collect(t, b.String())
	assert.Len(t, actions, n-1)
	require.Len(t, errs, 1)
	assert.Equal(t, 9, errs[0].Line)
}

func TestPipeline_Run(t *testing.T) {
	w := &fakeWriter{reject: map[string]string{"2": "mapper_parsing_exception: failed to parse field [age]"}}
	p := NewPipeline(w, config.BulkConfig{ChunkSize: 2})

	input := `{"index":{"_index":"people","_id":"1"}}
{"name":"ann"}
{"index":{"_index":"people","_id":"2"}}
{"age":"old"}
{"update":{"_index":"people","_id":"3"}}
{"age":30}
{"delete":{"_index":"people","_id":"4"}}
{"broken"
{"index":{"_index":"people","_id":"5"}}
{"name":"eve"}`

	res, err := p.Run(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.ParseErrors)
	require.Len(t, w.batches, 3)
	assert.Len(t, w.batches[0], 2)
	assert.Len(t, w.batches[1], 2)
	assert.Len(t, w.batches[2], 1)

	require.Len(t, res.Errors, 2)
	assert.Equal(t, "index people/2: mapper_parsing_exception: failed to parse field [age]", res.Errors[0])
	assert.Contains(t, res.Errors[1], "line 8")

	summary := res.Summary()
	assert.Contains(t, summary, "4 succeeded, 1 failed.")
	assert.Contains(t, summary, "1 invalid record(s) skipped.")
	assert.Contains(t, summary, "First errors: index people/2")
}

func TestPipeline_CountsEveryParsedAction(t *testing.T) {
	reject := map[string]string{}
	var b strings.Builder
	for i := 0; i < 1234; i++ {
		id := fmt.Sprint(i)
		if i%7 == 0 {
			reject[id] = "version_conflict"
		}
		fmt.Fprintf(&b, "{\"index\":{\"_index\":\"logs\",\"_id\":\"%s\"}}\n{\"i\":%d}\n", id, i)
	}
	w := &fakeWriter{reject: reject}

	res, err := NewPipeline(w, config.BulkConfig{}).Run(context.Background(), b.String())
	require.NoError(t, err)
	assert.Equal(t, 1234, res.Succeeded+res.Failed)
	assert.Equal(t, len(reject), res.Failed)
	assert.Len(t, res.Errors, 5)
	assert.Len(t, w.batches, 3)
	for _, batch := range w.batches {
		assert.LessOrEqual(t, len(batch), 500)
	}
}

func TestPipeline_MissingItemsCountAsFailures(t *testing.T) {
	w := &fakeWriter{drop: 1}
	input := "{\"delete\":{\"_index\":\"a\",\"_id\":\"1\"}}\n" +
		"{\"delete\":{\"_index\":\"a\",\"_id\":\"2\"}}\n" +
		"{\"delete\":{\"_index\":\"a\",\"_id\":\"3\"}}\n"

	res, err := NewPipeline(w, config.BulkConfig{ChunkSize: 2}).Run(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 3, res.Succeeded+res.Failed)
	assert.Equal(t, []string{"delete a/2: no item reported", "delete a/3: no item reported"}, res.Errors)
}

func TestPipeline_DeleteOnly(t *testing.T) {
	w := &fakeWriter{}
	res, err := NewPipeline(w, config.BulkConfig{}).Run(context.Background(), `{"delete":{"_index":"people","_id":"3"}}`+"\n")
	require.NoError(t, err)
	assert.Equal(t, Result{Succeeded: 1}, res)
	assert.Equal(t, "Bulk write finished: 1 succeeded, 0 failed.", res.Summary())
}

func TestPipeline_TransportError(t *testing.T) {
	w := &fakeWriter{err: errors.New("connection reset")}
	res, err := NewPipeline(w, config.BulkConfig{}).Run(context.Background(), "{\"delete\":{\"_index\":\"a\",\"_id\":\"1\"}}\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Zero(t, res.Succeeded)
}

func TestPipeline_TruncatesLongErrors(t *testing.T) {
	w := &fakeWriter{reject: map[string]string{"1": strings.Repeat("x", 500)}}
	res, err := NewPipeline(w, config.BulkConfig{}).Run(context.Background(), "{\"delete\":{\"_index\":\"a\",\"_id\":\"1\"}}\n")
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, maxErrorLength+len("..."), len([]rune(res.Errors[0])))
}

type fakeBulkClient struct {
	ops []elastic.BulkOperation
}

func (f *fakeBulkClient) Bulk(_ context.Context, ops []elastic.BulkOperation) ([]elastic.BulkItem, error) {
	f.ops = ops
	items := make([]elastic.BulkItem, len(ops))
	for i, op := range ops {
		items[i] = elastic.BulkItem{Action: op.Action, Index: op.Index, ID: op.ID, Status: 201}
	}
	return items, nil
}

func TestElasticWriter(t *testing.T) {
	client := &fakeBulkClient{}
	res, err := NewPipeline(ElasticWriter{Client: client}, config.BulkConfig{}).Run(context.Background(),
		"{\"update\":{\"_index\":\"a\",\"_id\":\"1\"}}\n{\"x\":1}\n")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	require.Len(t, client.ops, 1)
	assert.Equal(t, "update", client.ops[0].Action)
	assert.JSONEq(t, `{"doc":{"x":1},"doc_as_upsert":true}`, string(client.ops[0].Body))
}
