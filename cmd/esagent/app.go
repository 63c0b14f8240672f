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
	"fmt"
	"log/slog"
	"os"

	"github.com/kadirpekel/esagent/pkg/agent"
	"github.com/kadirpekel/esagent/pkg/config"
	"github.com/kadirpekel/esagent/pkg/elastic"
	"github.com/kadirpekel/esagent/pkg/llms"
	"github.com/kadirpekel/esagent/pkg/observability"
	"github.com/kadirpekel/esagent/pkg/tool"
	"github.com/kadirpekel/esagent/pkg/tool/elastictool"
)

// app holds the components shared by commands.
type app struct {
	cfg      *config.Config
	loader   *config.Loader
	registry *tool.Registry
	agent    *agent.Agent
	metrics  *observability.Metrics

	closers []func(context.Context) error
}

// loadConfig reads the config file when one is given, the environment
// otherwise.
func loadConfig(ctx context.Context, cli *CLI, opts ...config.LoaderOption) (*config.Config, *config.Loader, error) {
	if cli.Config == "" {
		cfg, err := config.FromEnv()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load configuration from environment: %w", err)
		}
		return cfg, nil, nil
	}
	return config.LoadFile(ctx, cli.Config, opts...)
}

// newApp builds the tool registry and, when withAgent is set, the chat model
// and agent.
func newApp(ctx context.Context, cli *CLI, withAgent bool, opts ...config.LoaderOption) (*app, error) {
	cfg, loader, err := loadConfig(ctx, cli, opts...)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, loader: loader}
	if loader != nil {
		a.closers = append(a.closers, func(context.Context) error { return loader.Close() })
	}
	if cli.Config != "" {
		cleanup, err := initLoggerFromConfig(cli, &cfg.Logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		if cleanup != nil {
			a.closers = append(a.closers, func(context.Context) error { cleanup(); return nil })
		}
	}

	if err := a.initObservability(ctx); err != nil {
		a.Close()
		return nil, err
	}

	backend, err := elastic.New(cfg.Elastic)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create elastic client: %w", err)
	}

	a.registry = tool.NewRegistry()
	if err := elastictool.Register(a.registry, backend, elastictool.Options{Search: cfg.Search, Bulk: cfg.Bulk}); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	slog.Debug("Tools registered", "count", a.registry.Len(), "elastic", backend.BaseURL())

	if withAgent {
		model, err := llms.NewOpenAI(cfg.LLM)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		a.agent = agent.New(model, a.registry, cfg.Agent)
		slog.Debug("Agent ready", "model", model.ModelName(), "max_turns", cfg.Agent.MaxTurns)
	}
	return a, nil
}

func (a *app) initObservability(ctx context.Context) error {
	metrics, err := observability.InitMetrics(a.cfg.Observability.Metrics)
	if err != nil {
		return err
	}
	if metrics != nil {
		a.metrics = metrics
		observability.SetGlobalMetrics(metrics)
		a.closers = append(a.closers, metrics.Shutdown)
	}

	shutdown, err := observability.InitTracer(ctx, a.cfg.Observability.Tracing, os.Stderr)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, shutdown)
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	timeout := a.cfg.Observability.Tracing.ShutdownTimeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			slog.Warn("Shutdown step failed", "error", err)
		}
	}
	a.closers = nil
}
