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
	"os"
	"strings"

	travelconfig "github.com/travelbot/orchestrator/pkg/config"
	"github.com/travelbot/orchestrator/pkg/metrics"
	"github.com/travelbot/orchestrator/pkg/turn"
)

// ChatCmd starts an interactive REPL against the Turn Driver
// in-process, without going through the HTTP server (§6.2).
type ChatCmd struct {
	Config string `short:"c" help:"Path to an optional YAML config override file." type:"path"`
}

func (c *ChatCmd) Run(cli *CLI) error {
	cfg, err := travelconfig.Load(c.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	deps, m, err := buildTurnDeps(cfg)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	ctx := context.Background()

	fmt.Println("\ntravelbot — type your message, or a command:")
	fmt.Println("  /metrics - show the current metrics snapshot")
	fmt.Println("  /why     - show receipts on the next reply")
	fmt.Println("  exit     - end the session")
	fmt.Println()

	threadID := ""
	wantReceipts := false

	for {
		fmt.Print("You: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		switch input {
		case "exit", "/exit", "/quit":
			fmt.Println("goodbye")
			return nil
		case "/metrics":
			printMetricsSnapshot(m)
			continue
		case "/why":
			wantReceipts = true
			fmt.Println("(receipts will be shown on the next reply)")
			continue
		}

		result := turn.Run(ctx, deps, turn.Request{
			Message:  input,
			ThreadID: threadID,
			Receipts: wantReceipts,
		})
		threadID = result.ThreadID
		wantReceipts = false

		fmt.Printf("travelbot: %s\n", result.Reply)
		if result.Receipts != nil {
			printReceipts(result.Receipts)
		}
		fmt.Println()
	}
}

func printMetricsSnapshot(m *metrics.Metrics) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(m.Snapshot())
}

func printReceipts(r *turn.Receipts) {
	fmt.Println("  receipts:")
	for _, f := range r.Facts {
		if f.Source != "" {
			fmt.Printf("    - %s: %s (%s)\n", f.Key, f.Value, f.Source)
		} else {
			fmt.Printf("    - %s: %s\n", f.Key, f.Value)
		}
	}
	for _, d := range r.Decisions {
		fmt.Printf("    decision: %s\n", d)
	}
	fmt.Printf("    self-check: %s\n", r.SelfCheck)
}
