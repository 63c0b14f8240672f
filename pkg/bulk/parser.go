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
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strings"
)

// maxLineSize bounds a single NDJSON line.
const maxLineSize = 16 << 20

// ActionType names a bulk write.
type ActionType string

const (
	ActionIndex  ActionType = "index"
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
)

// Valid reports whether t is one of the four bulk actions.
func (t ActionType) Valid() bool {
	switch t {
	case ActionIndex, ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// NeedsDocument reports whether a document line follows the action line.
func (t ActionType) NeedsDocument() bool {
	return t != ActionDelete
}

// Action is one parsed write.
type Action struct {
	Type  ActionType
	Index string
	ID    string
	// Body is the document for index and create, the partial update with
	// upsert for update, and nil for delete.
	Body json.RawMessage
}

// ParseError is a rejected record.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

type actionMeta struct {
	Index *string         `json:"_index"`
	ID    json.RawMessage `json:"_id"`
}

// lineReader numbers lines and lets the parser consume a document line.
type lineReader struct {
	scanner *bufio.Scanner
	line    int
}

func (r *lineReader) next() (string, bool) {
	if !r.scanner.Scan() {
		return "", false
	}
	r.line++
	return strings.TrimSpace(r.scanner.Text()), true
}

// Parse reads an NDJSON bulk stream: action lines, each followed by a
// document line unless the action is delete. The last line need not end with
// a newline.
//
// Records that cannot be turned into an action are reported to onError and
// skipped. A bad action line may be followed by its orphaned document: when
// the next line is a JSON object that is not action-shaped it is dropped with
// the broken record instead of being reported a second time. Any other line
// starts a new record.
func Parse(r io.Reader, onError func(*ParseError)) iter.Seq[Action] {
	if onError == nil {
		onError = func(*ParseError) {}
	}
	return func(yield func(Action) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		lr := &lineReader{scanner: scanner}

		orphan := false
		for {
			text, ok := lr.next()
			if !ok {
				break
			}
			if text == "" {
				continue
			}

			action, err := parseActionLine(text)
			if err != nil {
				if orphan && isOrphanDocument(text) {
					orphan = false
					continue
				}
				onError(&ParseError{Line: lr.line, Message: fmt.Sprintf("%s: %s", err, preview(text))})
				orphan = true
				continue
			}
			orphan = false
			actionLine := lr.line

			if action.Type.NeedsDocument() {
				doc, ok := lr.next()
				if !ok || doc == "" {
					onError(&ParseError{Line: actionLine, Message: "missing document line after " + preview(text)})
					continue
				}
				body, err := documentBody(action.Type, doc)
				if err != nil {
					onError(&ParseError{Line: lr.line, Message: fmt.Sprintf("invalid document: %s: %s", err, preview(doc))})
					continue
				}
				action.Body = body
			}

			if !yield(action) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			onError(&ParseError{Line: lr.line + 1, Message: "failed to read input: " + err.Error()})
		}
	}
}

// ParseString parses an in-memory NDJSON payload.
func ParseString(input string, onError func(*ParseError)) iter.Seq[Action] {
	return Parse(strings.NewReader(input), onError)
}

func parseActionLine(text string) (Action, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return Action{}, fmt.Errorf("invalid action line: %v", err)
	}
	if len(obj) != 1 {
		return Action{}, fmt.Errorf("action line must have exactly one key, got %d", len(obj))
	}

	var (
		name string
		raw  json.RawMessage
	)
	for k, v := range obj {
		name, raw = k, v
	}
	typ := ActionType(name)
	if !typ.Valid() {
		return Action{}, fmt.Errorf("unsupported action %q", name)
	}

	var meta actionMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Action{}, fmt.Errorf("invalid %s metadata: %v", name, err)
	}
	if meta.Index == nil || *meta.Index == "" {
		return Action{}, fmt.Errorf("%s action is missing _index", name)
	}

	id, err := documentID(meta.ID)
	if err != nil {
		return Action{}, err
	}
	return Action{Type: typ, Index: *meta.Index, ID: id}, nil
}

// isOrphanDocument reports whether text is a JSON object that does not look
// like an action line, so it can only be the document of a preceding record.
func isOrphanDocument(text string) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return false
	}
	if len(obj) != 1 {
		return true
	}
	for k := range obj {
		return !ActionType(k).Valid()
	}
	return true
}

// documentID accepts string and numeric ids.
func documentID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("_id must be a string or number, got %s", raw)
}

func documentBody(typ ActionType, doc string) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(doc)); err != nil {
		return nil, err
	}
	if typ != ActionUpdate {
		return json.RawMessage(buf.Bytes()), nil
	}
	return json.Marshal(struct {
		Doc         json.RawMessage `json:"doc"`
		DocAsUpsert bool            `json:"doc_as_upsert"`
	}{Doc: buf.Bytes(), DocAsUpsert: true})
}

func preview(s string) string {
	return truncate(s, 80)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
