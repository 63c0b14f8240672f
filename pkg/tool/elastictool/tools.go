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

package elastictool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kadirpekel/esagent/pkg/elastic"
	"github.com/kadirpekel/esagent/pkg/tool"
	"github.com/kadirpekel/esagent/pkg/tool/functiontool"
)

type ListIndicesArgs struct {
	Separator string `json:"separator" jsonschema:"required,description=Separator placed between index names (for example a comma or a newline)"`
}

type IndexArgs struct {
	IndexName string `json:"index_name" jsonschema:"required,description=Name of the index"`
}

type SearchArgs struct {
	IndexName string `json:"index_name" jsonschema:"required,description=Index to search"`
	Query     string `json:"query" jsonschema:"required,description=Elasticsearch JSON query used to filter hits. Use the _source field to select only the fields you need whenever possible."`
	From      *int   `json:"from_,omitempty" jsonschema:"description=Record offset,minimum=0"`
	Size      *int   `json:"size,omitempty" jsonschema:"description=Number of records to return,minimum=0"`
}

type BulkArgs struct {
	BulkOperations string `json:"bulk_operations" jsonschema:"required,description=NDJSON for the _bulk API: action lines each followed by a document line (none for delete) ending with a newline"`
}

type CreateIndexArgs struct {
	IndexName string         `json:"index_name" jsonschema:"required,description=Name of the index to create"`
	Body      map[string]any `json:"body,omitempty" jsonschema:"description=Optional index definition with settings and mappings"`
}

func (ts *toolset) listIndicesTool() (tool.CallableTool, error) {
	return functiontool.New(functiontool.Config{
		Name: ListIndicesName,
		Description: "Input is a separator such as a comma or a newline; output is the list of indices joined by it. " +
			"Always use this tool to discover the indices of the cluster.",
	}, func(ctx context.Context, args ListIndicesArgs) (string, error) {
		names, err := ts.backend.CatIndices(ctx)
		if err != nil {
			slog.Error("Failed to list indices", "error", err)
			return fmt.Sprintf("Failed to list indices: %v", err), nil
		}
		return strings.Join(userIndices(names), args.Separator), nil
	})
}

// userIndices drops system indices, whose names start with a dot.
func userIndices(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" && !strings.HasPrefix(n, ".") {
			out = append(out, n)
		}
	}
	return out
}

func (ts *toolset) showDataTool() (tool.CallableTool, error) {
	return functiontool.New(functiontool.Config{
		Name:        ShowDataName,
		Description: "Input is an index name; output is a JSON string with a sample of the documents stored in the index.",
	}, func(ctx context.Context, args IndexArgs) (string, error) {
		resp, err := ts.backend.Search(ctx, args.IndexName, elastic.MatchAll(ts.search.DataFrom, ts.search.DataSize))
		if err != nil {
			slog.Error("Failed to read index data", "index", args.IndexName, "error", err)
			return fmt.Sprintf("Failed to read data of index '%s': %v", args.IndexName, err), nil
		}
		return compact(resp.Hits), nil
	})
}

func (ts *toolset) showDetailsTool() (tool.CallableTool, error) {
	return functiontool.New(functiontool.Config{
		Name:        ShowDetailsName,
		Description: "Input is an index name; output is a JSON string with the aliases, field mappings and settings of the index.",
	}, func(ctx context.Context, args IndexArgs) (string, error) {
		details, err := ts.indexDetails(ctx, args.IndexName)
		if err != nil {
			slog.Error("Failed to read index details", "index", args.IndexName, "error", err)
			return fmt.Sprintf("Failed to read details of index '%s': %v", args.IndexName, err), nil
		}
		return details, nil
	})
}

func (ts *toolset) indexDetails(ctx context.Context, index string) (string, error) {
	alias, err := ts.backend.GetAlias(ctx, index)
	if err != nil {
		return "", err
	}
	mappings, err := ts.backend.GetFieldMapping(ctx, index)
	if err != nil {
		return "", err
	}
	settings, err := ts.backend.GetSettings(ctx, index)
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(struct {
		Alias         json.RawMessage `json:"alias"`
		FieldMappings json.RawMessage `json:"field_mappings"`
		Settings      json.RawMessage `json:"settings"`
	}{
		Alias:         forIndex(alias, index),
		FieldMappings: forIndex(mappings, index),
		Settings:      forIndex(settings, index),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// forIndex unwraps the per-index entry of a reply keyed by index name. Other
// shapes, such as replies for wildcard expressions, are kept whole.
func forIndex(raw json.RawMessage, index string) json.RawMessage {
	var byIndex map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byIndex); err == nil {
		if v, ok := byIndex[index]; ok {
			return v
		}
	}
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

func (ts *toolset) searchTool() (tool.CallableTool, error) {
	return functiontool.New(functiontool.Config{
		Name: SearchName,
		Description: "Runs an Elasticsearch search against an index. Input is the index name, a JSON query, " +
			"and optional from_ and size. Example input: " +
			`{"index_name": "people", "query": "{\"size\": 0, \"aggs\": {\"regions\": {\"terms\": {\"field\": \"region\", \"size\": 100}}}}", "from_": 0, "size": 10}`,
		Defaults: map[string]any{"from_": ts.search.DataFrom, "size": ts.search.DataSize},
	}, func(ctx context.Context, args SearchArgs) (string, error) {
		from, size := ts.search.DataFrom, ts.search.DataSize
		if args.From != nil {
			from = *args.From
		}
		if args.Size != nil {
			size = *args.Size
		}
		return ts.executor.Search(ctx, args.IndexName, args.Query, from, size), nil
	})
}

func (ts *toolset) bulkTool() (tool.CallableTool, error) {
	return functiontool.New(functiontool.Config{
		Name: BulkName,
		Description: "Input is an NDJSON string for the Elasticsearch _bulk API (each action line followed by a document line); " +
			"output reports how many writes succeeded and failed. Use it whenever several documents, possibly with explicit _id, must be written.",
	}, func(ctx context.Context, args BulkArgs) (string, error) {
		res, err := ts.pipeline.Run(ctx, args.BulkOperations)
		if err != nil {
			return fmt.Sprintf("bulk request failed: %v", err), nil
		}
		return res.Summary(), nil
	})
}

func (ts *toolset) createIndexTool() (tool.CallableTool, error) {
	return functiontool.New(functiontool.Config{
		Name: CreateIndexName,
		Description: "Input is an index name and an optional body with settings and mappings. " +
			"Creates the index; reports when it already exists.",
	}, func(ctx context.Context, args CreateIndexArgs) (string, error) {
		exists, err := ts.backend.IndexExists(ctx, args.IndexName)
		if err != nil {
			slog.Error("Failed to create index", "index", args.IndexName, "error", err)
			return fmt.Sprintf("Failed to create index '%s': %v", args.IndexName, err), nil
		}
		if exists {
			return fmt.Sprintf("Index '%s' already exists.", args.IndexName), nil
		}

		var body json.RawMessage
		if len(args.Body) > 0 {
			if body, err = json.Marshal(args.Body); err != nil {
				return "", &tool.ArgumentParseError{Tool: CreateIndexName, Err: err}
			}
		}
		if err := ts.backend.CreateIndex(ctx, args.IndexName, body); err != nil {
			slog.Error("Failed to create index", "index", args.IndexName, "error", err)
			return fmt.Sprintf("Failed to create index '%s': %v", args.IndexName, err), nil
		}
		slog.Info("Index created", "index", args.IndexName)
		return fmt.Sprintf("Index '%s' created successfully.", args.IndexName), nil
	})
}

func (ts *toolset) deleteIndexTool() (tool.CallableTool, error) {
	return functiontool.New(functiontool.Config{
		Name:        DeleteIndexName,
		Description: "Input is an index name. Deletes the index; reports when it does not exist.",
	}, func(ctx context.Context, args IndexArgs) (string, error) {
		exists, err := ts.backend.IndexExists(ctx, args.IndexName)
		if err != nil {
			slog.Error("Failed to delete index", "index", args.IndexName, "error", err)
			return fmt.Sprintf("Failed to delete index '%s': %v", args.IndexName, err), nil
		}
		if !exists {
			return fmt.Sprintf("Index '%s' does not exist.", args.IndexName), nil
		}
		if err := ts.backend.DeleteIndex(ctx, args.IndexName); err != nil {
			slog.Error("Failed to delete index", "index", args.IndexName, "error", err)
			return fmt.Sprintf("Failed to delete index '%s': %v", args.IndexName, err), nil
		}
		slog.Info("Index deleted", "index", args.IndexName)
		return fmt.Sprintf("Index '%s' deleted successfully.", args.IndexName), nil
	})
}

func compact(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

var _ Backend = (*elastic.Client)(nil)
