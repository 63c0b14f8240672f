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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/kadirpekel/esagent/pkg/agent"
)

// ChatCmd reads questions line by line. Sessions do not share history.
type ChatCmd struct {
	Verbose bool `short:"v" help:"Print tool calls and results as they happen."`
}

func (c *ChatCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := newApp(ctx, cli, true)
	if err != nil {
		return err
	}
	defer a.Close()

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Printf("esagent %s, model %s. Type a question, or 'exit' to quit.\n", buildVersion(), a.cfg.LLM.Model)
	}
	return chatLoop(ctx, os.Stdin, os.Stdout, interactive, func(ctx context.Context, question string) error {
		return streamSession(ctx, os.Stdout, a.agent, question, c.Verbose)
	})
}

// chatLoop runs ask for every non-empty line of in until EOF, "exit" or
// "quit". Session failures are reported and the loop goes on.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, prompt bool, ask func(context.Context, string) error) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if prompt {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			if prompt {
				fmt.Fprintln(out)
			}
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		if err := ask(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var exit *exitError
			if errors.As(err, &exit) && errors.Is(exit.err, agent.ErrTurnLimitReached) {
				fmt.Fprintln(out, "(no final answer: turn limit reached)")
				continue
			}
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}
