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

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Address to listen on.
	// Default: :8080
	Address string `yaml:"address,omitempty" json:"address,omitempty"`

	ReadTimeout  time.Duration `yaml:"read_timeout,omitempty" json:"read_timeout,omitempty"`
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty" json:"write_timeout,omitempty"`

	// MaxConcurrentSessions limits in-flight /v1/ask requests. Zero means unlimited.
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions,omitempty" json:"max_concurrent_sessions,omitempty"`
}

// SetDefaults applies default values.
func (c *ServerConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Minute
	}
}

// Validate checks the server settings.
func (c *ServerConfig) Validate() error {
	if c.MaxConcurrentSessions < 0 {
		return fmt.Errorf("max_concurrent_sessions must be non-negative")
	}
	return nil
}
