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

// Package provider defines where configuration bytes come from.
package provider

import "context"

// Type identifies the config source type.
type Type string

const (
	TypeFile   Type = "file"
	TypeStatic Type = "static"
)

// Provider abstracts config sources.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Type returns the provider type for logging.
	Type() Type

	// Load reads raw config bytes from the source.
	Load(ctx context.Context) ([]byte, error)

	// Watch signals on the returned channel whenever the source changes.
	// A nil channel means watching is not supported.
	Watch(ctx context.Context) (<-chan struct{}, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Static serves a fixed document. It is used for inline configuration and tests.
type Static []byte

func (s Static) Type() Type { return TypeStatic }

func (s Static) Load(context.Context) ([]byte, error) { return []byte(s), nil }

func (s Static) Watch(context.Context) (<-chan struct{}, error) { return nil, nil }

func (s Static) Close() error { return nil }
