// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package actor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travelbot/orchestrator/pkg/ledger"
	"github.com/travelbot/orchestrator/pkg/llms"
	"github.com/travelbot/orchestrator/pkg/tool"
)

type echoArgs struct {
	City string `json:"city" jsonschema:"required,description=City name"`
}

func newEchoTool(t *testing.T) tool.Spec {
	t.Helper()
	spec, err := tool.New(tool.Config{Name: "weather", Description: "echoes a city back", DefaultTimeout: time.Second}, func(tc tool.Context, args echoArgs) (tool.Result, error) {
		return tool.Result{OK: true, Summary: "sunny in " + args.City}, nil
	})
	require.NoError(t, err)
	return spec
}

func newAmadeusTool(t *testing.T) tool.Spec {
	t.Helper()
	spec, err := tool.New(tool.Config{Name: "amadeusSearchFlights", Description: "searches flights", DefaultTimeout: time.Second}, func(tc tool.Context, args echoArgs) (tool.Result, error) {
		return tool.Result{OK: true, Summary: "flights"}, nil
	})
	require.NoError(t, err)
	return spec
}

func newFailingTool(t *testing.T) tool.Spec {
	t.Helper()
	spec, err := tool.New(tool.Config{Name: "search", Description: "always fails", DefaultTimeout: time.Second}, func(tc tool.Context, args echoArgs) (tool.Result, error) {
		return tool.Result{}, tool.NewInvokeError(tool.ErrClassHTTPBlock, assertErr{})
	})
	require.NoError(t, err)
	return spec
}

type assertErr struct{}

func (assertErr) Error() string { return "blocked" }

func newRegistry(t *testing.T, specs ...tool.Spec) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry()
	for _, s := range specs {
		require.NoError(t, reg.Register(s))
	}
	return reg
}

func newTestLedger() *ledger.Ledger {
	return ledger.New(ledger.NewShared(), ledger.DefaultTTLs())
}

func TestLoopReturnsFinalReplyWithNoToolCalls(t *testing.T) {
	fake := llms.NewFake()
	fake.QueueTools(llms.ChatWithToolsResponse{Choices: []llms.Choice{{Message: llms.Message{Role: "assistant", Content: "It's sunny."}}}}, nil)

	reg := newRegistry(t, newEchoTool(t))
	d := Deps{Transport: fake, Registry: reg, Ledger: newTestLedger()}

	run := Loop(context.Background(), d, "weather", time.Now().Add(5*time.Second), []llms.Message{{Role: "user", Content: "weather in Rome?"}})

	assert.Equal(t, "It's sunny.", run.FinalReply)
	assert.Equal(t, 1, run.StepsTaken)
	assert.Empty(t, run.Outcomes)
}

func TestLoopExecutesToolCallThenReturnsFinalReply(t *testing.T) {
	fake := llms.NewFake()
	fake.QueueTools(llms.ChatWithToolsResponse{Choices: []llms.Choice{{Message: llms.Message{
		Role:      "assistant",
		ToolCalls: []llms.ToolCall{{ID: "call1", Name: "weather", Arguments: map[string]any{"city": "Rome"}}},
	}}}}, nil)
	fake.QueueTools(llms.ChatWithToolsResponse{Choices: []llms.Choice{{Message: llms.Message{Role: "assistant", Content: "It's sunny in Rome."}}}}, nil)

	reg := newRegistry(t, newEchoTool(t))
	d := Deps{Transport: fake, Registry: reg, Ledger: newTestLedger()}

	run := Loop(context.Background(), d, "weather", time.Now().Add(5*time.Second), []llms.Message{{Role: "user", Content: "weather in Rome?"}})

	require.Len(t, run.Outcomes, 1)
	assert.True(t, run.Outcomes[0].Result.OK)
	assert.Equal(t, "sunny in Rome", run.Outcomes[0].Result.Summary)
	assert.Equal(t, "It's sunny in Rome.", run.FinalReply)
	assert.Equal(t, 2, run.StepsTaken)
}

func TestLoopGatesAmadeusToolsOffExcludedRoutes(t *testing.T) {
	fake := llms.NewFake()
	fake.QueueTools(llms.ChatWithToolsResponse{Choices: []llms.Choice{{Message: llms.Message{
		Role:      "assistant",
		ToolCalls: []llms.ToolCall{{ID: "call1", Name: "amadeusSearchFlights", Arguments: map[string]any{"city": "Rome"}}},
	}}}}, nil)
	fake.QueueTools(llms.ChatWithToolsResponse{Choices: []llms.Choice{{Message: llms.Message{Role: "assistant", Content: "done"}}}}, nil)

	reg := newRegistry(t, newAmadeusTool(t))
	d := Deps{Transport: fake, Registry: reg, Ledger: newTestLedger()}

	run := Loop(context.Background(), d, "destinations", time.Now().Add(5*time.Second), []llms.Message{{Role: "user", Content: "suggest a destination"}})

	require.Len(t, run.Outcomes, 1)
	assert.Equal(t, "gated_by_route", run.Outcomes[0].Error)
}

func TestLoopRejectsDuplicateCallWithinTurn(t *testing.T) {
	fake := llms.NewFake()
	fake.QueueTools(llms.ChatWithToolsResponse{Choices: []llms.Choice{{Message: llms.Message{
		Role: "assistant",
		ToolCalls: []llms.ToolCall{
			{ID: "call1", Name: "weather", Arguments: map[string]any{"city": "Rome"}},
		},
	}}}}, nil)
	fake.QueueTools(llms.ChatWithToolsResponse{Choices: []llms.Choice{{Message: llms.Message{
		Role: "assistant",
		ToolCalls: []llms.ToolCall{
			{ID: "call2", Name: "weather", Arguments: map[string]any{"city": "Rome"}},
		},
	}}}}, nil)
	fake.QueueTools(llms.ChatWithToolsResponse{Choices: []llms.Choice{{Message: llms.Message{Role: "assistant", Content: "done"}}}}, nil)

	reg := newRegistry(t, newEchoTool(t))
	d := Deps{Transport: fake, Registry: reg, Ledger: newTestLedger()}

	run := Loop(context.Background(), d, "weather", time.Now().Add(5*time.Second), []llms.Message{{Role: "user", Content: "weather in Rome, then again?"}})

	require.Len(t, run.Outcomes, 2)
	assert.True(t, run.Outcomes[0].Result.OK)
	assert.Equal(t, "duplicate_in_turn", run.Outcomes[1].Error)
}

func TestLoopSuppressesRecentlyFailedCallAcrossTurns(t *testing.T) {
	shared := ledger.NewShared()
	priorLedger := ledger.New(shared, ledger.DefaultTTLs())
	priorLedger.Finish("search", ledger.Canonical(map[string]any{"city": "Paris"}), ledger.OutcomeHTTPBlock)

	fake := llms.NewFake()
	fake.QueueTools(llms.ChatWithToolsResponse{Choices: []llms.Choice{{Message: llms.Message{
		Role:      "assistant",
		ToolCalls: []llms.ToolCall{{ID: "call1", Name: "search", Arguments: map[string]any{"city": "Paris"}}},
	}}}}, nil)
	fake.QueueTools(llms.ChatWithToolsResponse{Choices: []llms.Choice{{Message: llms.Message{Role: "assistant", Content: "done"}}}}, nil)

	reg := newRegistry(t, newFailingTool(t))
	d := Deps{Transport: fake, Registry: reg, Ledger: ledger.New(shared, ledger.DefaultTTLs())}

	run := Loop(context.Background(), d, "web", time.Now().Add(5*time.Second), []llms.Message{{Role: "user", Content: "search Paris again"}})

	require.Len(t, run.Outcomes, 1)
	assert.Equal(t, "skipped_by_ledger", run.Outcomes[0].Error)
}

func TestLoopRecordsHTTPBlockOutcomeForFailingTool(t *testing.T) {
	fake := llms.NewFake()
	fake.QueueTools(llms.ChatWithToolsResponse{Choices: []llms.Choice{{Message: llms.Message{
		Role:      "assistant",
		ToolCalls: []llms.ToolCall{{ID: "call1", Name: "search", Arguments: map[string]any{"city": "Paris"}}},
	}}}}, nil)
	fake.QueueTools(llms.ChatWithToolsResponse{Choices: []llms.Choice{{Message: llms.Message{Role: "assistant", Content: "done"}}}}, nil)

	reg := newRegistry(t, newFailingTool(t))
	testLedger := newTestLedger()
	d := Deps{Transport: fake, Registry: reg, Ledger: testLedger}

	run := Loop(context.Background(), d, "web", time.Now().Add(5*time.Second), []llms.Message{{Role: "user", Content: "search Paris"}})

	require.Len(t, run.Outcomes, 1)
	assert.Equal(t, "http_block", run.Outcomes[0].Error)
	assert.True(t, testLedger.ShouldSkip("search", ledger.Canonical(map[string]any{"city": "Paris"})))
}

func TestLoopStopsWhenBudgetExhausted(t *testing.T) {
	fake := llms.NewFake()
	reg := newRegistry(t, newEchoTool(t))
	d := Deps{Transport: fake, Registry: reg, Ledger: newTestLedger()}

	run := Loop(context.Background(), d, "weather", time.Now().Add(500*time.Millisecond), []llms.Message{{Role: "user", Content: "hi"}})

	assert.Empty(t, run.FinalReply)
	assert.Contains(t, run.Decisions, "actor_budget_exhausted")
	assert.Empty(t, fake.ToolsCalls)
}

func TestContainsWeatherKeywords(t *testing.T) {
	assert.True(t, ContainsWeatherKeywords("what's the forecast for tomorrow"))
	assert.False(t, ContainsWeatherKeywords("suggest a destination for me"))
}

func TestExtractCityGuess(t *testing.T) {
	assert.Equal(t, "Rome", ExtractCityGuess("what is the weather in Rome"))
	assert.Equal(t, "", ExtractCityGuess("what should I pack"))
}
