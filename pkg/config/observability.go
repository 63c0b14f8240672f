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

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty"`
	Tracing TracingConfig `yaml:"tracing,omitempty" json:"tracing,omitempty"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Namespace prefixes every metric name.
	// Default: esagent
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Exporter is "otlp" or "stdout".
	// Default: otlp
	Exporter string `yaml:"exporter,omitempty" json:"exporter,omitempty"`

	// Endpoint of the OTLP gRPC collector.
	// Default: localhost:4317
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	Insecure bool `yaml:"insecure,omitempty" json:"insecure,omitempty"`

	// SamplingRate in [0, 1].
	// Default: 1
	SamplingRate float64 `yaml:"sampling_rate,omitempty" json:"sampling_rate,omitempty"`

	ServiceName string `yaml:"service_name,omitempty" json:"service_name,omitempty"`

	// ShutdownTimeout bounds flushing on exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty" json:"shutdown_timeout,omitempty"`
}

// SetDefaults applies default values.
func (c *ObservabilityConfig) SetDefaults() {
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "esagent"
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "otlp"
	}
	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = "localhost:4317"
	}
	if c.Tracing.SamplingRate == 0 {
		c.Tracing.SamplingRate = 1
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "esagent"
	}
	if c.Tracing.ShutdownTimeout == 0 {
		c.Tracing.ShutdownTimeout = 5 * time.Second
	}
}

// Validate checks the observability settings.
func (c *ObservabilityConfig) Validate() error {
	if c.Tracing.Exporter != "otlp" && c.Tracing.Exporter != "stdout" {
		return fmt.Errorf("tracing exporter %q not supported (valid: otlp, stdout)", c.Tracing.Exporter)
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("tracing sampling_rate must be between 0 and 1")
	}
	return nil
}
