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

// Package functiontool builds tools from typed Go functions.
//
// The argument schema is reflected from the Args struct tags:
//
//	type SearchArgs struct {
//	    IndexName string `json:"index_name" jsonschema:"required,description=Target index"`
//	    Size      int    `json:"size,omitempty" jsonschema:"description=Max hits,default=10"`
//	}
//
//	search, err := functiontool.New(
//	    functiontool.Config{Name: "search", Description: "Search an index"},
//	    func(ctx context.Context, args SearchArgs) (string, error) {
//	        ...
//	    },
//	)
//
// Decoding failures and missing required fields are reported as
// *tool.ArgumentParseError so the registry can tell them apart from
// execution failures.
package functiontool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kadirpekel/esagent/pkg/tool"
)

// Config defines the configuration for a function tool.
type Config struct {
	// Name is the unique identifier for this tool (required).
	Name string

	// Description explains what the tool does (required).
	Description string

	// Defaults overrides the advertised default of properties whose default
	// is only known at runtime, keyed by JSON name.
	Defaults map[string]any
}

// New creates a CallableTool from a typed function.
func New[Args any](cfg Config, fn func(context.Context, Args) (string, error)) (tool.CallableTool, error) {
	return NewWithValidation(cfg, fn, nil)
}

// NewWithValidation creates a CallableTool whose decoded arguments pass
// through validate before fn runs. Validation failures are argument errors.
func NewWithValidation[Args any](
	cfg Config,
	fn func(context.Context, Args) (string, error),
	validate func(Args) error,
) (tool.CallableTool, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("tool %s: function is required", cfg.Name)
	}

	schema, err := generateSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", cfg.Name, err)
	}
	if err := applyDefaults(schema, cfg.Defaults); err != nil {
		return nil, fmt.Errorf("tool %s: %w", cfg.Name, err)
	}

	return &functionTool[Args]{
		config:   cfg,
		fn:       fn,
		validate: validate,
		schema:   schema,
		required: requiredFields(schema),
	}, nil
}

// Must panics when New fails. It is meant for package-level tool tables.
func Must(t tool.CallableTool, err error) tool.CallableTool {
	if err != nil {
		panic(err)
	}
	return t
}

type functionTool[Args any] struct {
	config   Config
	fn       func(context.Context, Args) (string, error)
	validate func(Args) error
	schema   map[string]any
	required []string
}

func (t *functionTool[Args]) Name() string {
	return t.config.Name
}

func (t *functionTool[Args]) Description() string {
	return t.config.Description
}

func (t *functionTool[Args]) Schema() map[string]any {
	return t.schema
}

func (t *functionTool[Args]) Call(ctx context.Context, raw json.RawMessage) (string, error) {
	args, err := t.decode(raw)
	if err != nil {
		return "", &tool.ArgumentParseError{Tool: t.config.Name, Err: err}
	}
	if t.validate != nil {
		if err := t.validate(args); err != nil {
			return "", &tool.ArgumentParseError{Tool: t.config.Name, Err: err}
		}
	}
	return t.fn(ctx, args)
}

func (t *functionTool[Args]) decode(raw json.RawMessage) (Args, error) {
	var args Args
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	var present map[string]json.RawMessage
	if err := json.Unmarshal(raw, &present); err != nil {
		return args, fmt.Errorf("arguments must be a JSON object: %w", err)
	}

	var missing []string
	for _, name := range t.required {
		v, ok := present[name]
		if !ok || string(v) == "null" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return args, fmt.Errorf("missing required field(s): %s", strings.Join(missing, ", "))
	}

	if err := json.Unmarshal(raw, &args); err != nil {
		return args, err
	}
	return args, nil
}

func validateConfig(cfg Config) error {
	if cfg.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if cfg.Description == "" {
		return fmt.Errorf("tool description is required")
	}
	return nil
}

var _ tool.CallableTool = (*functionTool[struct{}])(nil)
