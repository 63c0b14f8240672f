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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/esagent/pkg/agent"
)

// BatchCmd answers many questions with bounded concurrency.
type BatchCmd struct {
	File        string `short:"f" help:"File with one question per line ('-' for stdin). Blank lines and lines starting with # are skipped." default:"-"`
	Concurrency int    `short:"n" help:"Sessions running at once." default:"4"`
	JSON        bool   `name:"json" help:"Print one JSON result per line."`
}

// runner runs one session. *agent.Agent implements it.
type runner interface {
	Run(ctx context.Context, question string) (*agent.Result, error)
}

// batchItem is the outcome of one question, in input order.
type batchItem struct {
	Question string        `json:"question"`
	Result   *agent.Result `json:"result"`
	Error    string        `json:"error,omitempty"`
}

func (c *BatchCmd) Run(ctx context.Context, cli *CLI) error {
	in := io.Reader(os.Stdin)
	if c.File != "-" {
		f, err := os.Open(c.File)
		if err != nil {
			return fmt.Errorf("failed to open questions: %w", err)
		}
		defer f.Close()
		in = f
	}
	questions, err := readQuestions(in)
	if err != nil {
		return err
	}
	if len(questions) == 0 {
		return fmt.Errorf("no questions in %s", c.File)
	}

	a, err := newApp(ctx, cli, true)
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := runBatch(ctx, a.agent, questions, c.Concurrency)
	if err != nil {
		return err
	}

	failed := 0
	for _, it := range items {
		if it.Error != "" {
			failed++
		}
		if c.JSON {
			if err := writeJSONLine(os.Stdout, it); err != nil {
				return err
			}
			continue
		}
		fmt.Printf("Q: %s\n", it.Question)
		if it.Error != "" {
			fmt.Printf("!: %s\n\n", it.Error)
			continue
		}
		fmt.Printf("A: %s\n\n", it.Result.Answer)
	}
	slog.Info("Batch finished", "questions", len(items), "failed", failed)
	return nil
}

// readQuestions returns the non-blank, non-comment lines of r.
func readQuestions(r io.Reader) ([]string, error) {
	var questions []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		questions = append(questions, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read questions: %w", err)
	}
	return questions, nil
}

// runBatch runs every question as its own session, at most concurrency at a
// time. Session failures are recorded per item; only cancellation of ctx
// fails the batch.
func runBatch(ctx context.Context, r runner, questions []string, concurrency int) ([]batchItem, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	items := make([]batchItem, len(questions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, q := range questions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.Run(gctx, q)
			items[i] = batchItem{Question: q, Result: res}
			if err != nil {
				items[i].Error = err.Error()
				slog.Warn("Question failed", "index", i, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

func writeJSONLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
