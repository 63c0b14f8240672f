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

// Command esagent answers natural-language questions about an Elasticsearch
// cluster with a tool-calling chat model.
//
// Usage:
//
//	esagent ask "How many people live in Berlin?"
//	esagent chat
//	esagent batch --file questions.txt --concurrency 4
//	esagent serve --config esagent.yaml
//	esagent mcp
//	esagent call elastic_list_indices '{"separator": ","}'
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/esagent/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Ask      AskCmd      `cmd:"" help:"Answer one question and exit."`
	Chat     ChatCmd     `cmd:"" help:"Interactive session; every line is an independent question."`
	Batch    BatchCmd    `cmd:"" help:"Answer every question of a file concurrently."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP API."`
	MCP      MCPCmd      `cmd:"" name:"mcp" help:"Serve the tools over MCP on stdio."`
	Tools    ToolsCmd    `cmd:"" help:"Print tool definitions as JSON."`
	Call     CallCmd     `cmd:"" help:"Dispatch one tool directly."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file (YAML, JSON or TOML). Without it configuration comes from the environment." type:"path"`
	EnvFile   string `name:"env-file" help:"Extra .env file loaded before .env.local and .env." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, json)."`
}

// exitError carries a process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("esagent"),
		kong.Description("Natural-language agent for Elasticsearch."),
		kong.UsageOnError(),
	)

	config.LoadDotEnv(cli.EnvFile)

	cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	kctx.FatalIfErrorf(err)
	defer func() {
		if cleanup != nil {
			cleanup()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	kctx.BindTo(ctx, (*context.Context)(nil))

	err = kctx.Run(&cli)
	stop()
	if err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			fmt.Fprintln(os.Stderr, "esagent:", exit.err)
			if cleanup != nil {
				cleanup()
			}
			os.Exit(exit.code)
		}
		kctx.FatalIfErrorf(err)
	}
}
