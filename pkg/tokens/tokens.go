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

// Package tokens counts tokens the way the model will see them.
package tokens

import (
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used when no encoding is configured.
const DefaultEncoding = "cl100k_base"

// Counter counts tokens in text.
type Counter interface {
	Count(text string) int
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(string) int

func (f CounterFunc) Count(text string) int { return f(text) }

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.Mutex
)

// Tiktoken counts BPE tokens with a tiktoken encoding.
type Tiktoken struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewTiktoken loads the named encoding, caching it process-wide.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()

	if cached, ok := encodingCache[encoding]; ok {
		return &Tiktoken{encoding: cached, name: encoding}, nil
	}

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %q: %w", encoding, err)
	}
	encodingCache[encoding] = enc

	return &Tiktoken{encoding: enc, name: encoding}, nil
}

// Name returns the encoding name.
func (t *Tiktoken) Name() string {
	return t.name
}

// Count returns the number of tokens in text.
func (t *Tiktoken) Count(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// Estimate approximates four characters per token. It is the fallback when
// the BPE ranks cannot be loaded (for example without network access).
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// NewCounter returns a tiktoken counter, or the estimator when the encoding
// cannot be loaded.
func NewCounter(encoding string) Counter {
	t, err := NewTiktoken(encoding)
	if err != nil {
		slog.Warn("Falling back to estimated token counts", "encoding", encoding, "error", err)
		return CounterFunc(Estimate)
	}
	return t
}
