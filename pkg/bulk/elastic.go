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

	"github.com/kadirpekel/esagent/pkg/elastic"
)

// BulkClient is the part of *elastic.Client the writer needs.
type BulkClient interface {
	Bulk(ctx context.Context, ops []elastic.BulkOperation) ([]elastic.BulkItem, error)
}

// ElasticWriter adapts a bulk client to Writer.
type ElasticWriter struct {
	Client BulkClient
}

// Bulk implements Writer.
func (w ElasticWriter) Bulk(ctx context.Context, actions []Action) ([]ItemResult, error) {
	ops := make([]elastic.BulkOperation, len(actions))
	for i, a := range actions {
		ops[i] = elastic.BulkOperation{Action: string(a.Type), Index: a.Index, ID: a.ID, Body: a.Body}
	}

	items, err := w.Client.Bulk(ctx, ops)
	if err != nil {
		return nil, err
	}

	results := make([]ItemResult, len(items))
	for i, it := range items {
		results[i] = ItemResult{Op: it.Action, Index: it.Index, ID: it.ID, Status: it.Status, Error: it.Error}
	}
	return results, nil
}
