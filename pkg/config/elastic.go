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
	"net/url"
	"strings"
	"time"
)

// ElasticConfig configures the connection to the document store.
type ElasticConfig struct {
	// Server is the base URL of the cluster.
	Server string `yaml:"server,omitempty" json:"server,omitempty" jsonschema:"title=Server,description=Cluster base URL,default=http://localhost:9200"`

	// User and Password enable HTTP basic auth when User is set.
	User     string `yaml:"user,omitempty" json:"user,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// CACerts is a path to a PEM bundle used to verify the server.
	CACerts string `yaml:"ca_certs,omitempty" json:"ca_certs,omitempty"`

	// CertFingerprint pins the server leaf certificate (hex SHA-256, colons allowed).
	CertFingerprint string `yaml:"cert_fingerprint,omitempty" json:"cert_fingerprint,omitempty"`

	// VerifyCertificates toggles TLS verification.
	// Default: true
	VerifyCertificates *bool `yaml:"verify_certificates,omitempty" json:"verify_certificates,omitempty"`

	// Compress gzips request bodies.
	// Default: true
	Compress *bool `yaml:"compress,omitempty" json:"compress,omitempty"`

	// RequestTimeout bounds a single HTTP request.
	// Default: 60s
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty" json:"request_timeout,omitempty"`

	// MaxRetries for retryable HTTP statuses (429, 5xx).
	// Default: 3
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`

	// RequestsPerSecond throttles outgoing requests. Zero disables throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty" json:"requests_per_second,omitempty"`
}

// SetDefaults applies default values.
func (c *ElasticConfig) SetDefaults() {
	if c.Server == "" {
		c.Server = "http://localhost:9200"
	}
	c.Server = strings.TrimRight(c.Server, "/")
	if c.VerifyCertificates == nil {
		c.VerifyCertificates = BoolPtr(true)
	}
	if c.Compress == nil {
		c.Compress = BoolPtr(true)
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// Validate checks the connection settings.
func (c *ElasticConfig) Validate() error {
	u, err := url.Parse(c.Server)
	if err != nil {
		return fmt.Errorf("invalid server URL %q: %w", c.Server, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server URL %q must use http or https", c.Server)
	}
	if u.Host == "" {
		return fmt.Errorf("server URL %q has no host", c.Server)
	}
	if c.Password != "" && c.User == "" {
		return fmt.Errorf("password set without user")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must be non-negative")
	}
	return nil
}
