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

package search

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/jsonc"
)

// ErrQueryNotObject is returned when the query payload is not a JSON object.
var ErrQueryNotObject = errors.New("query must be a JSON object")

// Top-level keys that never belong to a bare filter.
var reservedKeys = []string{"_source", "size", "from"}

// QuerySpec is a parsed search request.
type QuerySpec struct {
	Index  string
	Query  json.RawMessage
	Aggs   json.RawMessage
	Sort   json.RawMessage
	Source json.RawMessage
	From   int
	Size   int
}

// AggregationOnly reports whether the request summarizes rather than
// retrieves: it carries an aggregation but no filter.
func (q QuerySpec) AggregationOnly() bool {
	return len(q.Query) == 0 && len(q.Aggs) > 0
}

// ParseQuery decodes raw into a QuerySpec. Comments and trailing commas are
// tolerated.
//
// When raw names none of "query", "aggs" (or "aggregations") and "sort", the
// whole object is taken as the filter. "_source" is forwarded in both forms;
// "size" and "from" inside the payload are ignored in favor of the
// arguments. An empty payload searches everything.
func ParseQuery(index, raw string, from, size int) (QuerySpec, error) {
	qs := QuerySpec{Index: index, From: max(from, 0), Size: max(size, 0)}

	clean := bytes.TrimSpace(jsonc.ToJSON([]byte(raw)))
	if len(clean) == 0 {
		return qs, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(clean, &fields); err != nil {
		return qs, fmt.Errorf("invalid query JSON: %w", err)
	}
	if fields == nil {
		return qs, ErrQueryNotObject
	}

	qs.Query = present(fields["query"])
	qs.Aggs = present(fields["aggs"])
	if qs.Aggs == nil {
		qs.Aggs = present(fields["aggregations"])
	}
	qs.Sort = present(fields["sort"])
	qs.Source = present(fields["_source"])

	if qs.Query == nil && qs.Aggs == nil && qs.Sort == nil {
		for _, k := range reservedKeys {
			delete(fields, k)
		}
		if len(fields) > 0 {
			filter, err := json.Marshal(fields)
			if err != nil {
				return qs, fmt.Errorf("invalid query JSON: %w", err)
			}
			qs.Query = filter
		}
	}
	return qs, nil
}

// present drops absent and null values.
func present(v json.RawMessage) json.RawMessage {
	if len(v) == 0 || string(v) == "null" {
		return nil
	}
	return v
}
