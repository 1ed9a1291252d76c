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
	"os/signal"
	"syscall"
	"time"

	travelconfig "github.com/travelbot/orchestrator/pkg/config"
	"github.com/travelbot/orchestrator/pkg/ledger"
	"github.com/travelbot/orchestrator/pkg/llms"
	"github.com/travelbot/orchestrator/pkg/logger"
	"github.com/travelbot/orchestrator/pkg/metrics"
	"github.com/travelbot/orchestrator/pkg/server"
	"github.com/travelbot/orchestrator/pkg/session"
	"github.com/travelbot/orchestrator/pkg/tool"
	"github.com/travelbot/orchestrator/pkg/tools"
	"github.com/travelbot/orchestrator/pkg/turn"
)

// ServeCmd starts the Chat API HTTP server.
type ServeCmd struct {
	Config string `short:"c" help:"Path to an optional YAML config override file." type:"path"`
	Port   int    `help:"Port to listen on (overrides config/env)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down...")
		cancel()
	}()

	cfg, err := travelconfig.Load(c.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if c.Port != 0 {
		cfg.Port = c.Port
	}

	deps, m, err := buildTurnDeps(cfg)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := server.New(addr, deps, m, logger.GetLogger())

	fmt.Printf("\ntravelbot orchestrator ready\n")
	fmt.Printf("   Chat:    http://localhost%s/chat\n", addr)
	fmt.Printf("   Metrics: http://localhost%s/metrics\n", addr)
	fmt.Printf("   Health:  http://localhost%s/healthz\n", addr)
	fmt.Println("\nPress Ctrl+C to stop")

	return srv.ListenAndServe(ctx)
}

// buildTurnDeps wires config -> session store -> tool registry -> LLM
// transport -> turn.Deps, the same assembly order the serve and chat
// subcommands both need.
func buildTurnDeps(cfg travelconfig.Config) (turn.Deps, *metrics.Metrics, error) {
	store, err := session.New(session.Kind(cfg.SessionKind), session.RemoteConfig{URL: cfg.SessionRemoteURL}, session.Config{
		DefaultTTL:    cfg.SessionTTL,
		DefaultMsgCap: 16,
		OpTimeout:     cfg.SessionTimeout,
	})
	if err != nil {
		return turn.Deps{}, nil, fmt.Errorf("failed to create session store: %w", err)
	}

	reg := tool.NewRegistry()
	toolDeps := tools.DefaultDeps()
	toolDeps.AmadeusBaseURL = cfg.AmadeusBaseURL
	toolDeps.AmadeusClientID = cfg.AmadeusClientID
	toolDeps.AmadeusSecret = cfg.AmadeusSecret
	toolDeps.SearchAPIURL = cfg.SearchAPIURL
	toolDeps.SearchAPIKey = cfg.SearchAPIKey

	var kb *tools.PolicyKB
	if cfg.PolicyKBPath != "" {
		kb, err = tools.OpenPolicyKB(cfg.PolicyKBPath, cfg.PolicyKBCollection)
		if err != nil {
			slog.Warn("policy knowledge base unavailable, vectaraQuery will report it", "err", err)
			kb = nil
		}
	}

	if err := tools.RegisterAll(reg, toolDeps, kb, 2*time.Second, 8*time.Second); err != nil {
		return turn.Deps{}, nil, fmt.Errorf("failed to register tools: %w", err)
	}

	transport := llms.NewOpenAITransport(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)
	m := metrics.New()

	deps := turn.Deps{
		Store:     store,
		Registry:  reg,
		Transport: transport,
		Shared:    ledger.NewShared(),
		LedgerTTLs: ledger.TTLs{
			Success:    cfg.LedgerSuccessTTL,
			HTTPBlock:  cfg.LedgerHTTPBlockTTL,
			Validation: cfg.LedgerValidationTTL,
			Other:      cfg.LedgerOtherTTL,
		},
		ComplexityEnabled: cfg.DeepResearchEnabled,
		ClassifierTimeout: cfg.ClassifierTimeout,
		TurnDeadline:      cfg.TurnTimeout,
		Log:               logger.GetLogger(),
		Metrics:           m,
	}
	return deps, m, nil
}
