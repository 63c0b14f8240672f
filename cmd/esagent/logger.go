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
	"fmt"
	"os"

	"github.com/kadirpekel/esagent/pkg/config"
	"github.com/kadirpekel/esagent/pkg/logger"
)

const (
	// LogFileEnvVar is the environment variable name for log file path
	LogFileEnvVar = "LOG_FILE"
	// LogLevelEnvVar is the environment variable name for log level
	LogLevelEnvVar = "LOG_LEVEL"
	// LogFormatEnvVar is the environment variable name for log format
	LogFormatEnvVar = "LOG_FORMAT"
	// DefaultLogFormat is the default log format
	DefaultLogFormat = "simple"
)

// logSettings are the resolved logger options.
type logSettings struct {
	Level  string
	File   string
	Format string
}

// resolveLogSettings picks each option by priority: CLI flag, environment,
// config file section, default.
func resolveLogSettings(cliLevel, cliFile, cliFormat string, cfg *config.LoggerConfig) logSettings {
	var fromCfg config.LoggerConfig
	if cfg != nil {
		fromCfg = *cfg
	}
	pick := func(values ...string) string {
		for _, v := range values {
			if v != "" {
				return v
			}
		}
		return ""
	}
	return logSettings{
		Level:  pick(cliLevel, os.Getenv(LogLevelEnvVar), fromCfg.Level, "info"),
		File:   pick(cliFile, os.Getenv(LogFileEnvVar), fromCfg.File),
		Format: pick(cliFormat, os.Getenv(LogFormatEnvVar), fromCfg.Format, DefaultLogFormat),
	}
}

// initLoggerFromCLI initializes the logger from CLI flags and environment
// variables. The returned cleanup closes the log file, if any.
func initLoggerFromCLI(cliLevel, cliFile, cliFormat string) (func(), error) {
	return applyLogSettings(resolveLogSettings(cliLevel, cliFile, cliFormat, nil))
}

// initLoggerFromConfig re-initializes the logger once the config file is
// known, keeping CLI and environment overrides.
func initLoggerFromConfig(cli *CLI, cfg *config.LoggerConfig) (func(), error) {
	return applyLogSettings(resolveLogSettings(cli.LogLevel, cli.LogFile, cli.LogFormat, cfg))
}

func applyLogSettings(s logSettings) (func(), error) {
	level, err := logger.ParseLevel(s.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	output := os.Stderr
	var cleanup func()
	if s.File != "" {
		file, closeFn, err := logger.OpenLogFile(s.File)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output, cleanup = file, closeFn
	}

	logger.Init(level, output, s.Format)
	return cleanup, nil
}
