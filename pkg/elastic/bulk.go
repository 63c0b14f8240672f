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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// BulkOperation is one write of a _bulk request.
type BulkOperation struct {
	Action string // index, create, update or delete
	Index  string
	ID     string
	Body   json.RawMessage // nil for delete
}

// BulkItem is the outcome the cluster reports for one operation.
type BulkItem struct {
	Action string
	Index  string
	ID     string
	Status int
	Error  string
}

// OK reports whether the operation succeeded.
func (i BulkItem) OK() bool {
	return i.Error == "" && i.Status >= 200 && i.Status < 300
}

type bulkMeta struct {
	Index string `json:"_index,omitempty"`
	ID    string `json:"_id,omitempty"`
}

type bulkItemReply struct {
	Index  string          `json:"_index"`
	ID     string          `json:"_id"`
	Status int             `json:"status"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// Bulk sends ops as one NDJSON _bulk request and returns one item per
// operation, in order. A nil error means the request went through; individual
// operations may still have failed.
func (c *Client) Bulk(ctx context.Context, ops []BulkOperation) ([]BulkItem, error) {
	if len(ops) == 0 {
		return nil, nil
	}

	body, err := encodeBulk(ops)
	if err != nil {
		return nil, err
	}

	var reply struct {
		Took   int                        `json:"took"`
		Errors bool                       `json:"errors"`
		Items  []map[string]bulkItemReply `json:"items"`
	}
	err = c.doJSON(ctx, request{
		method:      http.MethodPost,
		path:        "/_bulk",
		body:        body,
		contentType: contentTypeNDJSON,
	}, &reply)
	if err != nil {
		return nil, err
	}

	items := make([]BulkItem, 0, len(reply.Items))
	for _, entry := range reply.Items {
		for action, r := range entry {
			items = append(items, BulkItem{
				Action: action,
				Index:  r.Index,
				ID:     r.ID,
				Status: r.Status,
				Error:  itemError(r.Error),
			})
		}
	}
	if len(items) != len(ops) {
		c.logger.Warn("Bulk reply item count mismatch", "sent", len(ops), "received", len(items))
	}
	return items, nil
}

func encodeBulk(ops []BulkOperation) ([]byte, error) {
	var buf bytes.Buffer
	for _, op := range ops {
		meta, err := json.Marshal(map[string]bulkMeta{op.Action: {Index: op.Index, ID: op.ID}})
		if err != nil {
			return nil, fmt.Errorf("failed to encode bulk action: %w", err)
		}
		buf.Write(meta)
		buf.WriteByte('\n')

		if op.Action == "delete" {
			continue
		}
		var doc bytes.Buffer
		if err := json.Compact(&doc, op.Body); err != nil {
			return nil, fmt.Errorf("invalid document for %s %s/%s: %w", op.Action, op.Index, op.ID, err)
		}
		buf.Write(doc.Bytes())
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// itemError renders an item error, which is an object or a plain string.
func itemError(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var detail struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(raw, &detail); err == nil && (detail.Type != "" || detail.Reason != "") {
		if detail.Type == "" {
			return detail.Reason
		}
		return detail.Type + ": " + detail.Reason
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return string(raw)
}
