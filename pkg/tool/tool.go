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

// Package tool defines the contract between the model and backend
// operations: named tools with a JSON-schema argument description and a
// string result, collected in a Registry that dispatches calls by name.
package tool

import (
	"context"
	"encoding/json"
)

// Tool is the identity of a capability exposed to the model.
type Tool interface {
	// Name returns the unique name of the tool.
	Name() string

	// Description tells the model when to use the tool.
	Description() string
}

// CallableTool is a Tool that can be executed.
type CallableTool interface {
	Tool

	// Schema returns the JSON schema of the arguments object. It must contain
	// at least "type", "properties" and "required".
	Schema() map[string]any

	// Call executes the tool with a JSON object of arguments. Every outcome
	// the model should see, including backend failures, is returned as the
	// result string; a non-nil error means the call itself could not be made.
	Call(ctx context.Context, args json.RawMessage) (string, error)
}

// Definition is the model-facing description of a tool.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Describe builds the Definition of t.
func Describe(t CallableTool) Definition {
	return Definition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Schema(),
	}
}

// Call is one model request to run a tool.
type Call struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}
