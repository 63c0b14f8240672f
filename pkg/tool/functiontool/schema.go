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

package functiontool

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// generateSchema reflects the argument schema of T.
//
// Supported tags:
//   - json:"name" - Parameter name
//   - jsonschema:"required" - Required parameter
//   - jsonschema:"description=..." - Parameter description
//   - jsonschema:"default=..." - Default value
//   - jsonschema:"minimum=N,maximum=M" - Numeric constraints
func generateSchema[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	data, err := json.Marshal(reflector.Reflect(new(T)))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	var full map[string]any
	if err := json.Unmarshal(data, &full); err != nil {
		return nil, fmt.Errorf("failed to convert schema to map: %w", err)
	}

	if full["type"] != "object" {
		return nil, fmt.Errorf("arguments must be a struct, got schema type %v", full["type"])
	}

	properties, ok := full["properties"].(map[string]any)
	if !ok {
		properties = map[string]any{}
	}
	required, ok := full["required"].([]any)
	if !ok {
		required = []any{}
	}

	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}, nil
}

func requiredFields(schema map[string]any) []string {
	raw, _ := schema["required"].([]any)
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func applyDefaults(schema map[string]any, defaults map[string]any) error {
	props, _ := schema["properties"].(map[string]any)
	for name, v := range defaults {
		prop, ok := props[name].(map[string]any)
		if !ok {
			return fmt.Errorf("default for unknown property %q", name)
		}
		prop["default"] = v
	}
	return nil
}
