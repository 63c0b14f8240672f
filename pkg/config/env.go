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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables understood by FromEnv.
const (
	EnvElasticServer      = "ELASTIC_SERVER"
	EnvElasticUser        = "ELASTIC_USER"
	EnvElasticPassword    = "ELASTIC_PASSWORD"
	EnvCACerts            = "CA_CERTS"
	EnvCertFingerprint    = "CERT_FINGERPRINT"
	EnvVerifyCertificates = "ELASTIC_VERIFY_CERTIFICATES"
	EnvIndexDataFrom      = "ELASTIC_INDEX_DATA_FROM"
	EnvIndexDataSize      = "ELASTIC_INDEX_DATA_SIZE"
	EnvIndexDataMaxSize   = "ELASTIC_INDEX_DATA_MAX_SIZE"
	EnvLLMBaseURL         = "OPENAI_BASE_URL"
	EnvLLMAPIKey          = "OPENAI_API_KEY"
	EnvLLMModel           = "OPENAI_MODEL"
	EnvRequestTimeout     = "REQUEST_TIMEOUT"
	EnvAggsLimit          = "AGGS_LIMIT"
	EnvTokenLimit         = "TOKEN_LIMIT"
	EnvMaxSearchRetries   = "MAX_SEARCH_RETRIES"
	EnvBulkChunkSize      = "BULK_CHUNK_SIZE"
	EnvMaxTurns           = "AGENT_MAX_TURNS"
	EnvSystemPrompt       = "AGENT_SYSTEM_PROMPT"
)

// FromEnv builds a configuration from environment variables only. Unset
// variables fall back to defaults. Malformed numeric or boolean values are
// reported together.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not an integer", key, v))
			return
		}
		*dst = n
	}

	str(EnvElasticServer, &cfg.Elastic.Server)
	str(EnvElasticUser, &cfg.Elastic.User)
	str(EnvElasticPassword, &cfg.Elastic.Password)
	str(EnvCACerts, &cfg.Elastic.CACerts)
	str(EnvCertFingerprint, &cfg.Elastic.CertFingerprint)
	if v, ok := os.LookupEnv(EnvVerifyCertificates); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a boolean", EnvVerifyCertificates, v))
		} else {
			cfg.Elastic.VerifyCertificates = BoolPtr(b)
		}
	}

	num(EnvIndexDataFrom, &cfg.Search.DataFrom)
	num(EnvIndexDataSize, &cfg.Search.DataSize)
	num(EnvIndexDataMaxSize, &cfg.Search.MaxSize)
	num(EnvAggsLimit, &cfg.Search.AggsLimit)
	num(EnvTokenLimit, &cfg.Search.TokenLimit)
	num(EnvMaxSearchRetries, &cfg.Search.MaxRetries)
	num(EnvBulkChunkSize, &cfg.Bulk.ChunkSize)
	num(EnvMaxTurns, &cfg.Agent.MaxTurns)
	str(EnvSystemPrompt, &cfg.Agent.SystemPrompt)

	str(EnvLLMBaseURL, &cfg.LLM.BaseURL)
	str(EnvLLMAPIKey, &cfg.LLM.APIKey)
	str(EnvLLMModel, &cfg.LLM.Model)
	if v, ok := os.LookupEnv(EnvRequestTimeout); ok && strings.TrimSpace(v) != "" {
		d, err := ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvRequestTimeout, err))
		} else {
			cfg.LLM.Timeout = d
			cfg.Elastic.RequestTimeout = d
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads environment variables from .env files.
//
// Search order: explicit paths, .env.local and .env in the working
// directory, then ~/.env. Existing variables are never overwritten.
func LoadDotEnv(paths ...string) {
	candidates := append([]string{}, paths...)
	candidates = append(candidates, ".env.local", ".env")
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".env"))
	}

	for _, path := range candidates {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			slog.Debug("Failed to load .env file", "path", path, "error", err)
			continue
		}
		slog.Debug("Loaded environment from .env", "path", path)
	}
}
