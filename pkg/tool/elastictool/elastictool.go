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

// Package elastictool exposes document-store operations as model tools.
//
// Every tool answers with a string. Backend failures are logged with the
// index involved and returned as text so the conversation can continue.
package elastictool

import (
	"context"
	"encoding/json"

	"github.com/kadirpekel/esagent/pkg/bulk"
	"github.com/kadirpekel/esagent/pkg/config"
	"github.com/kadirpekel/esagent/pkg/search"
	"github.com/kadirpekel/esagent/pkg/tokens"
	"github.com/kadirpekel/esagent/pkg/tool"
)

// Tool names.
const (
	ListIndicesName = "elastic_list_indices"
	ShowDataName    = "elastic_index_show_data"
	ShowDetailsName = "elastic_index_show_details"
	SearchName      = "elastic_index_search_tool"
	BulkName        = "elastic_bulk_insert_documents"
	CreateIndexName = "elastic_create_index"
	DeleteIndexName = "elastic_delete_index"
)

// Backend is everything the tools need from the cluster. *elastic.Client
// implements it.
type Backend interface {
	search.Searcher
	bulk.BulkClient

	CatIndices(ctx context.Context) ([]string, error)
	IndexExists(ctx context.Context, index string) (bool, error)
	CreateIndex(ctx context.Context, index string, body json.RawMessage) error
	DeleteIndex(ctx context.Context, index string) error
	GetAlias(ctx context.Context, index string) (json.RawMessage, error)
	GetFieldMapping(ctx context.Context, index string) (json.RawMessage, error)
	GetSettings(ctx context.Context, index string) (json.RawMessage, error)
}

// Options tune the tools.
type Options struct {
	Search config.SearchConfig
	Bulk   config.BulkConfig
	// Counter overrides the tokenizer of the search tool.
	Counter tokens.Counter
}

type toolset struct {
	backend  Backend
	search   config.SearchConfig
	executor *search.Executor
	pipeline *bulk.Pipeline
}

// New builds the tools in the order they are offered to the model.
func New(backend Backend, opts Options) ([]tool.CallableTool, error) {
	opts.Search.SetDefaults()
	opts.Bulk.SetDefaults()

	ts := &toolset{
		backend:  backend,
		search:   opts.Search,
		executor: search.NewExecutor(backend, opts.Counter, opts.Search),
		pipeline: bulk.NewPipeline(bulk.ElasticWriter{Client: backend}, opts.Bulk),
	}

	builders := []func() (tool.CallableTool, error){
		ts.listIndicesTool,
		ts.showDataTool,
		ts.showDetailsTool,
		ts.searchTool,
		ts.bulkTool,
		ts.createIndexTool,
		ts.deleteIndexTool,
	}

	tools := make([]tool.CallableTool, 0, len(builders))
	for _, build := range builders {
		t, err := build()
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, nil
}

// Register builds the tools and adds them to reg.
func Register(reg *tool.Registry, backend Backend, opts Options) error {
	tools, err := New(backend, opts)
	if err != nil {
		return err
	}
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}
