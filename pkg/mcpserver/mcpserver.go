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

// Package mcpserver serves the tool registry over the Model Context Protocol,
// so MCP clients can drive the document store without the built-in agent.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kadirpekel/esagent/pkg/tool"
)

// Dispatcher is the registry surface the server needs. *tool.Registry
// implements it.
type Dispatcher interface {
	Definitions() []tool.Definition
	Dispatch(ctx context.Context, call tool.Call) (string, error)
}

// Server wraps an MCP server whose tools are the registry's tools.
type Server struct {
	mcp   *server.MCPServer
	tools Dispatcher
}

// New registers every tool of d under the given server identity.
func New(name, version string, d Dispatcher) (*Server, error) {
	s := &Server{
		mcp:   server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
		tools: d,
	}

	for _, def := range d.Definitions() {
		schema, err := json.Marshal(def.Parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema of tool %q: %w", def.Name, err)
		}
		s.mcp.AddTool(mcp.NewToolWithRawSchema(def.Name, def.Description, schema), s.handler(def.Name))
	}
	return s, nil
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio speaks MCP over the given streams until ctx is cancelled or in
// is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(io.Discard, "", 0))
	slog.Info("MCP server listening on stdio")
	return stdio.Listen(ctx, in, out)
}

// handler dispatches one MCP tool call. Tool failures are reported as error
// results, not protocol errors.
func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := "{}"
		if request.Params.Arguments != nil {
			raw, err := json.Marshal(request.Params.Arguments)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
			}
			args = string(raw)
		}

		out, err := s.tools.Dispatch(ctx, tool.Call{ID: "mcp_" + uuid.NewString(), Name: name, Arguments: args})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}
