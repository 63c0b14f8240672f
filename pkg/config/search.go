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

package config

import (
	"fmt"
	"time"
)

// DefaultSystemPrompt is the system message that opens every session.
const DefaultSystemPrompt = "You are a helpful AI ElasticSearch Expert Assistant"

// SearchConfig bounds what a single search may return to the model.
type SearchConfig struct {
	// DataFrom and DataSize page the index preview tool.
	DataFrom int `yaml:"data_from,omitempty" json:"data_from,omitempty"`
	DataSize int `yaml:"data_size,omitempty" json:"data_size,omitempty"`

	// MaxSize caps the hit count of any search.
	MaxSize int `yaml:"max_size,omitempty" json:"max_size,omitempty"`

	// AggsLimit replaces the size of aggregation-only requests.
	AggsLimit int `yaml:"aggs_limit,omitempty" json:"aggs_limit,omitempty"`

	// TokenLimit is the soft token budget of a serialized result.
	TokenLimit int `yaml:"token_limit,omitempty" json:"token_limit,omitempty"`

	// MaxRetries bounds the shrink loop.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`

	// Encoding is the tokenizer used for budget checks.
	Encoding string `yaml:"encoding,omitempty" json:"encoding,omitempty"`
}

// SetDefaults applies default values.
func (c *SearchConfig) SetDefaults() {
	if c.DataSize == 0 {
		c.DataSize = 5
	}
	if c.MaxSize == 0 {
		c.MaxSize = 50
	}
	if c.AggsLimit == 0 {
		c.AggsLimit = 200
	}
	if c.TokenLimit == 0 {
		c.TokenLimit = 3000
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 10
	}
	if c.Encoding == "" {
		c.Encoding = "cl100k_base"
	}
}

// Validate checks the search limits.
func (c *SearchConfig) Validate() error {
	if c.DataFrom < 0 {
		return fmt.Errorf("data_from must be non-negative")
	}
	if c.DataSize < 0 || c.MaxSize <= 0 || c.AggsLimit < 0 {
		return fmt.Errorf("data_size, max_size and aggs_limit must be positive")
	}
	if c.TokenLimit <= 0 {
		return fmt.Errorf("token_limit must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	return nil
}

// BulkConfig configures the ingestion pipeline.
type BulkConfig struct {
	// ChunkSize is the number of actions per backend request.
	// Default: 500
	ChunkSize int `yaml:"chunk_size,omitempty" json:"chunk_size,omitempty"`

	// ErrorPreview caps the error lines reported to the model.
	// Default: 5
	ErrorPreview int `yaml:"error_preview,omitempty" json:"error_preview,omitempty"`
}

// SetDefaults applies default values.
func (c *BulkConfig) SetDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = 500
	}
	if c.ErrorPreview == 0 {
		c.ErrorPreview = 5
	}
}

// Validate checks the bulk settings.
func (c *BulkConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive")
	}
	if c.ErrorPreview < 0 {
		return fmt.Errorf("error_preview must be non-negative")
	}
	return nil
}

// AgentConfig configures the orchestration loop.
type AgentConfig struct {
	// SystemPrompt opens every session.
	SystemPrompt string `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`

	// MaxTurns bounds model calls per session.
	// Default: 20
	MaxTurns int `yaml:"max_turns,omitempty" json:"max_turns,omitempty"`

	// SessionTimeout bounds a whole session. Zero disables the bound.
	SessionTimeout time.Duration `yaml:"session_timeout,omitempty" json:"session_timeout,omitempty"`
}

// SetDefaults applies default values.
func (c *AgentConfig) SetDefaults() {
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.MaxTurns == 0 {
		c.MaxTurns = 20
	}
}

// Validate checks the agent settings.
func (c *AgentConfig) Validate() error {
	if c.MaxTurns <= 0 {
		return fmt.Errorf("max_turns must be positive")
	}
	if c.SessionTimeout < 0 {
		return fmt.Errorf("session_timeout must be non-negative")
	}
	return nil
}
