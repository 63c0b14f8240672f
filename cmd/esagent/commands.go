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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"

	"golang.org/x/term"

	"github.com/kadirpekel/esagent/pkg/agent"
	"github.com/kadirpekel/esagent/pkg/config"
	"github.com/kadirpekel/esagent/pkg/elastic"
	"github.com/kadirpekel/esagent/pkg/llms"
	"github.com/kadirpekel/esagent/pkg/mcpserver"
	"github.com/kadirpekel/esagent/pkg/server"
	"github.com/kadirpekel/esagent/pkg/tool"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func buildVersion() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
	}
	return version
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("esagent version %s\n", buildVersion())
	return nil
}

// ValidateCmd loads and validates the configuration.
type ValidateCmd struct {
	Print bool `help:"Print the effective configuration as JSON."`
	Ping  bool `help:"Also check that the cluster is reachable."`
}

func (c *ValidateCmd) Run(ctx context.Context, cli *CLI) error {
	cfg, loader, err := loadConfig(ctx, cli)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	source := cli.Config
	if source == "" {
		source = "environment"
	}
	fmt.Printf("Configuration is valid (%s)\n", source)

	if c.Ping {
		backend, err := elastic.New(cfg.Elastic)
		if err != nil {
			return err
		}
		info, err := backend.Info(ctx)
		if err != nil {
			return fmt.Errorf("cluster %s is not reachable: %w", backend.BaseURL(), err)
		}
		fmt.Printf("Connected to %s (cluster %s, version %s)\n", backend.BaseURL(), info.ClusterName, info.Version.Number)
	}

	if c.Print {
		redacted := *cfg
		if redacted.Elastic.Password != "" {
			redacted.Elastic.Password = "***"
		}
		if redacted.LLM.APIKey != "" {
			redacted.LLM.APIKey = "***"
		}
		return printJSON(os.Stdout, redacted)
	}
	return nil
}

// ToolsCmd prints the tool definitions offered to the model.
type ToolsCmd struct{}

func (c *ToolsCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := newApp(ctx, cli, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return printJSON(os.Stdout, a.registry.Definitions())
}

// CallCmd dispatches one tool without a model.
type CallCmd struct {
	Tool      string `arg:"" help:"Tool name."`
	Arguments string `arg:"" optional:"" help:"JSON arguments; '-' reads them from stdin." default:"{}"`
}

func (c *CallCmd) Run(ctx context.Context, cli *CLI) error {
	args := c.Arguments
	if args == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read arguments: %w", err)
		}
		args = string(data)
	}

	a, err := newApp(ctx, cli, false)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.registry.Dispatch(ctx, tool.Call{ID: "cli", Name: c.Tool, Arguments: args})
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// AskCmd answers one question.
type AskCmd struct {
	Question []string `arg:"" help:"Question to answer."`
	Verbose  bool     `short:"v" help:"Print tool calls and results as they happen."`
	JSON     bool     `name:"json" help:"Print the whole session result as JSON."`
}

func (c *AskCmd) Run(ctx context.Context, cli *CLI) error {
	question := strings.TrimSpace(strings.Join(c.Question, " "))
	if question == "" {
		return errors.New("question is required")
	}

	a, err := newApp(ctx, cli, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if c.Verbose && !c.JSON {
		return streamSession(ctx, os.Stdout, a.agent, question, true)
	}

	res, err := a.agent.Run(ctx, question)
	if c.JSON {
		if perr := printJSON(os.Stdout, res); perr != nil {
			return perr
		}
	} else if res.Answer != "" {
		fmt.Println(res.Answer)
	}
	return sessionExit(res.Status, err)
}

// sessionExit maps a session outcome to an exit code: 2 for incomplete
// sessions, 1 for failures.
func sessionExit(status agent.Status, err error) error {
	if err == nil {
		return nil
	}
	if status == agent.StatusIncomplete {
		return &exitError{code: 2, err: err}
	}
	return &exitError{code: 1, err: err}
}

// ServeCmd starts the HTTP API.
type ServeCmd struct {
	Address string `help:"Address to listen on (overrides server.address)."`
	Watch   bool   `help:"Watch the config file and apply logger changes on the fly."`
}

func (c *ServeCmd) Run(ctx context.Context, cli *CLI) error {
	var opts []config.LoaderOption
	if c.Watch {
		opts = append(opts, config.WithOnChange(func(cfg *config.Config) {
			if _, err := initLoggerFromConfig(cli, &cfg.Logger); err != nil {
				slog.Error("Failed to apply logger settings", "error", err)
			}
		}))
	}

	a, err := newApp(ctx, cli, true, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	if c.Watch && a.loader != nil {
		go func() {
			if err := a.loader.Watch(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Config watch error", "error", err)
			}
		}()
	}

	cfg := a.cfg.Server
	if c.Address != "" {
		cfg.Address = c.Address
	}
	return server.New(cfg, a.agent, a.registry, a.metrics).ListenAndServe(ctx)
}

// MCPCmd serves the tools over MCP on stdio.
type MCPCmd struct{}

func (c *MCPCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := newApp(ctx, cli, false)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := mcpserver.New("esagent", buildVersion(), a.registry)
	if err != nil {
		return err
	}
	err = srv.ServeStdio(ctx, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// streamSession runs one session, printing tool activity when verbose and
// the final answer.
func streamSession(ctx context.Context, w io.Writer, a *agent.Agent, question string, verbose bool) error {
	p := newTurnPrinter(w, verbose)
	status := agent.StatusFinished
	var sessionErr error
	for turn, err := range a.Stream(ctx, question) {
		if err != nil {
			sessionErr = err
			status = agent.StatusFailed
			if errors.Is(err, agent.ErrTurnLimitReached) {
				status = agent.StatusIncomplete
			}
			break
		}
		p.print(turn)
	}
	return sessionExit(status, sessionErr)
}

const (
	ansiGray  = "\033[90m"
	ansiReset = "\033[0m"
)

type turnPrinter struct {
	w       io.Writer
	verbose bool
	color   bool
}

func newTurnPrinter(w io.Writer, verbose bool) *turnPrinter {
	color := false
	if f, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &turnPrinter{w: w, verbose: verbose, color: color}
}

func (p *turnPrinter) print(turn agent.Turn) {
	switch {
	case turn.ToolCall != nil:
		p.dim(fmt.Sprintf("→ %s %s", turn.ToolCall.Name, turn.ToolCall.Arguments))
	case turn.Role == llms.RoleTool:
		p.dim("← " + preview(turn.Content, 200))
	case turn.Role == llms.RoleAssistant:
		fmt.Fprintln(p.w, turn.Content)
	}
}

func (p *turnPrinter) dim(line string) {
	if !p.verbose {
		return
	}
	if p.color {
		line = ansiGray + line + ansiReset
	}
	fmt.Fprintln(p.w, line)
}

func preview(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
