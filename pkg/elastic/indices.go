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
)

// ClusterInfo is the reply of the root endpoint.
type ClusterInfo struct {
	Name        string `json:"name"`
	ClusterName string `json:"cluster_name"`
	Version     struct {
		Number string `json:"number"`
	} `json:"version"`
}

// Info returns basic cluster information. It doubles as a connectivity check.
func (c *Client) Info(ctx context.Context) (*ClusterInfo, error) {
	var info ClusterInfo
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: "/"}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// CatIndices lists index names sorted by name, system indices included.
func (c *Client) CatIndices(ctx context.Context) ([]string, error) {
	query := url.Values{}
	query.Set("h", "index")
	query.Set("s", "index")
	query.Set("format", "json")

	var rows []struct {
		Index string `json:"index"`
	}
	if err := c.doJSON(ctx, request{method: http.MethodGet, path: "/_cat/indices", query: query}, &rows); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.Index)
	}
	return names, nil
}

// IndexExists reports whether index exists.
func (c *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	status, _, err := c.send(ctx, request{method: http.MethodHead, path: indexPath(index), index: index})
	if err != nil {
		return false, err
	}
	switch {
	case status == http.StatusNotFound:
		return false, nil
	case status >= 200 && status < 300:
		return true, nil
	default:
		return false, &APIError{Status: status, Reason: http.StatusText(status)}
	}
}

// CreateIndex creates index with an optional settings/mappings body.
func (c *Client) CreateIndex(ctx context.Context, index string, body json.RawMessage) error {
	r := request{method: http.MethodPut, path: indexPath(index), index: index}
	if len(body) > 0 {
		if !json.Valid(body) {
			return fmt.Errorf("index body is not valid JSON")
		}
		r.body = body
	}
	return c.doJSON(ctx, r, nil)
}

// DeleteIndex deletes index.
func (c *Client) DeleteIndex(ctx context.Context, index string) error {
	return c.doJSON(ctx, request{method: http.MethodDelete, path: indexPath(index), index: index}, nil)
}

// GetAlias returns the alias definitions of index.
func (c *Client) GetAlias(ctx context.Context, index string) (json.RawMessage, error) {
	return c.do(ctx, request{method: http.MethodGet, path: indexPath(index) + "/_alias", index: index})
}

// GetFieldMapping returns the mapping of every field of index.
func (c *Client) GetFieldMapping(ctx context.Context, index string) (json.RawMessage, error) {
	return c.do(ctx, request{method: http.MethodGet, path: indexPath(index) + "/_mapping/field/*", index: index})
}

// GetSettings returns the settings of index.
func (c *Client) GetSettings(ctx context.Context, index string) (json.RawMessage, error) {
	return c.do(ctx, request{method: http.MethodGet, path: indexPath(index) + "/_settings", index: index})
}
