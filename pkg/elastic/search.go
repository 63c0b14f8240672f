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

package elastic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// SearchRequest is the body and paging of a _search call. Nil raw fields are
// left out of the body.
type SearchRequest struct {
	Query  json.RawMessage
	Aggs   json.RawMessage
	Sort   json.RawMessage
	Source json.RawMessage
	From   int
	Size   int
}

// MatchAll returns a request for every document of an index.
func MatchAll(from, size int) SearchRequest {
	return SearchRequest{
		Query: json.RawMessage(`{"match_all":{}}`),
		From:  from,
		Size:  size,
	}
}

// SearchResponse keeps the parts of a reply the tools forward to the model.
type SearchResponse struct {
	Took         int             `json:"took"`
	TimedOut     bool            `json:"timed_out"`
	Hits         json.RawMessage `json:"hits"`
	Aggregations json.RawMessage `json:"aggregations,omitempty"`
}

func (r SearchRequest) body() ([]byte, error) {
	payload := make(map[string]json.RawMessage, 4)
	if len(r.Query) > 0 {
		payload["query"] = r.Query
	}
	if len(r.Aggs) > 0 {
		payload["aggs"] = r.Aggs
	}
	if len(r.Sort) > 0 {
		payload["sort"] = r.Sort
	}
	if len(r.Source) > 0 {
		payload["_source"] = r.Source
	}
	return json.Marshal(payload)
}

// Search runs a search against index.
func (c *Client) Search(ctx context.Context, index string, req SearchRequest) (*SearchResponse, error) {
	body, err := req.body()
	if err != nil {
		return nil, fmt.Errorf("failed to encode search body: %w", err)
	}

	query := url.Values{}
	query.Set("from", strconv.Itoa(max(req.From, 0)))
	query.Set("size", strconv.Itoa(max(req.Size, 0)))

	var resp SearchResponse
	err = c.doJSON(ctx, request{
		method: http.MethodPost,
		path:   indexPath(index) + "/_search",
		query:  query,
		body:   body,
		index:  index,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
