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

// Package config provides the esagent configuration model.
//
// Configuration is read once at startup, either from a YAML/JSON/TOML file
// (see Loader) or from environment variables (see FromEnv), and passed by
// value into component constructors. Nothing reads configuration globally.
//
// Example:
//
//	elastic:
//	  server: https://localhost:9200
//	  user: elastic
//	  password: ${ELASTIC_PASSWORD}
//	  ca_certs: ./certs/ca.crt
//
//	llm:
//	  base_url: https://api.openai.com/v1
//	  api_key: ${OPENAI_API_KEY}
//	  model: gpt-4o-mini
//
//	search:
//	  max_size: 50
//	  token_limit: 3000
package config

import (
	"errors"
	"fmt"
)

// Config is the root configuration.
type Config struct {
	// Elastic configures the document store connection.
	Elastic ElasticConfig `yaml:"elastic,omitempty" json:"elastic,omitempty"`

	// LLM configures the chat-completion endpoint.
	LLM LLMConfig `yaml:"llm,omitempty" json:"llm,omitempty"`

	// Search configures the token-budgeted query executor.
	Search SearchConfig `yaml:"search,omitempty" json:"search,omitempty"`

	// Bulk configures the bulk ingestion pipeline.
	Bulk BulkConfig `yaml:"bulk,omitempty" json:"bulk,omitempty"`

	// Agent configures the orchestration loop.
	Agent AgentConfig `yaml:"agent,omitempty" json:"agent,omitempty"`

	// Logger configures logging.
	Logger LoggerConfig `yaml:"logger,omitempty" json:"logger,omitempty"`

	// Observability configures metrics and tracing.
	Observability ObservabilityConfig `yaml:"observability,omitempty" json:"observability,omitempty"`

	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server,omitempty" json:"server,omitempty"`
}

// SetDefaults applies default values to every section.
func (c *Config) SetDefaults() {
	c.Elastic.SetDefaults()
	c.LLM.SetDefaults()
	c.Search.SetDefaults()
	c.Bulk.SetDefaults()
	c.Agent.SetDefaults()
	c.Logger.SetDefaults()
	c.Observability.SetDefaults()
	c.Server.SetDefaults()
}

// Validate checks every section and joins the failures.
func (c *Config) Validate() error {
	var errs []error
	add := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}

	add("elastic", c.Elastic.Validate())
	add("llm", c.LLM.Validate())
	add("search", c.Search.Validate())
	add("bulk", c.Bulk.Validate())
	add("agent", c.Agent.Validate())
	add("logger", c.Logger.Validate())
	add("observability", c.Observability.Validate())
	add("server", c.Server.Validate())

	return errors.Join(errs...)
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}
