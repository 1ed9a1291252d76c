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

package turn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travelbot/orchestrator/pkg/ledger"
	"github.com/travelbot/orchestrator/pkg/llms"
	"github.com/travelbot/orchestrator/pkg/session"
	"github.com/travelbot/orchestrator/pkg/tool"
)

type weatherArgs struct {
	City string `json:"city" jsonschema:"required,description=City name"`
}

func newWeatherRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	spec, err := tool.New(tool.Config{Name: tool.NameWeather, Description: "weather lookup", DefaultTimeout: time.Second}, func(tc tool.Context, args weatherArgs) (tool.Result, error) {
		return tool.Result{OK: true, Summary: "sunny in " + args.City, Source: "open-meteo.com"}, nil
	})
	require.NoError(t, err)
	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(spec))
	return reg
}

func newTestDeps(t *testing.T, fake *llms.Fake) Deps {
	t.Helper()
	return Deps{
		Store:        session.NewMemory(session.DefaultConfig()),
		Registry:     newWeatherRegistry(t),
		Transport:    fake,
		Shared:       ledger.NewShared(),
		LedgerTTLs:   ledger.DefaultTTLs(),
		TurnDeadline: 5 * time.Second,
	}
}

func TestRunEmptyMessageReturnsRedirect(t *testing.T) {
	fake := llms.NewFake()
	d := newTestDeps(t, fake)

	result := Run(context.Background(), d, Request{Message: "   "})
	assert.NotEmpty(t, result.Reply)
	assert.NotEmpty(t, result.ThreadID)
}

func TestRunFlightFastPathSkipsLLMRouting(t *testing.T) {
	fake := llms.NewFake()
	fake.QueueTools(llms.ChatWithToolsResponse{Choices: []llms.Choice{{Message: llms.Message{Role: "assistant", Content: "Here are some options."}}}}, nil)
	d := newTestDeps(t, fake)

	result := Run(context.Background(), d, Request{Message: "flights from NYC to LON tomorrow"})
	assert.Equal(t, "Here are some options.", result.Reply)
}

func TestRunPersistsAssistantReplyToHistory(t *testing.T) {
	fake := llms.NewFake()
	fake.QueueChat(llms.ChatResponse{Content: `{"intent":"weather","needExternal":true,"slots":{"city":"Rome"},"confidence":0.9}`}, nil)
	fake.QueueTools(llms.ChatWithToolsResponse{Choices: []llms.Choice{{Message: llms.Message{
		Role:      "assistant",
		ToolCalls: []llms.ToolCall{{ID: "c1", Name: tool.NameWeather, Arguments: map[string]any{"city": "Rome"}}},
	}}}}, nil)
	fake.QueueTools(llms.ChatWithToolsResponse{Choices: []llms.Choice{{Message: llms.Message{Role: "assistant", Content: "It's sunny in Rome."}}}}, nil)

	d := newTestDeps(t, fake)
	result := Run(context.Background(), d, Request{Message: "what's the weather like in Rome?", ThreadID: "thread-1"})

	assert.Equal(t, "It's sunny in Rome.", result.Reply)
	assert.Contains(t, result.Citations, "open-meteo.com")

	msgs, err := d.Store.GetMsgs(context.Background(), "thread-1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, session.RoleUser, msgs[0].Role)
	assert.Equal(t, session.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "It's sunny in Rome.", msgs[1].Content)
}

func TestRunReturnsReceiptsWhenRequested(t *testing.T) {
	fake := llms.NewFake()
	fake.QueueChat(llms.ChatResponse{Content: `{"intent":"weather","needExternal":true,"slots":{"city":"Rome"},"confidence":0.9}`}, nil)
	fake.QueueTools(llms.ChatWithToolsResponse{Choices: []llms.Choice{{Message: llms.Message{
		Role:      "assistant",
		ToolCalls: []llms.ToolCall{{ID: "c1", Name: tool.NameWeather, Arguments: map[string]any{"city": "Rome"}}},
	}}}}, nil)
	fake.QueueTools(llms.ChatWithToolsResponse{Choices: []llms.Choice{{Message: llms.Message{Role: "assistant", Content: "It's sunny in Rome."}}}}, nil)

	d := newTestDeps(t, fake)
	result := Run(context.Background(), d, Request{Message: "weather in Rome?", Receipts: true})

	require.NotNil(t, result.Receipts)
	assert.NotEmpty(t, result.Receipts.Facts)
}

func TestRunDeepResearchConsentYesResumesPipelineAndClearsSlots(t *testing.T) {
	fake := llms.NewFake()
	fake.QueueTools(llms.ChatWithToolsResponse{Choices: []llms.Choice{{Message: llms.Message{Role: "assistant", Content: "Here's what I found after digging deeper."}}}}, nil)

	d := newTestDeps(t, fake)
	ctx := context.Background()

	require.NoError(t, d.Store.SetSlots(ctx, "thread-consent", session.SlotMap{
		"awaiting_deep_research_consent": "true",
		"pending_deep_research_query":    "compare visa-free multi-city itineraries across Southeast Asia for a family of four on a tight budget",
	}, nil))

	result := Run(ctx, d, Request{Message: "yes go ahead", ThreadID: "thread-consent"})
	assert.Equal(t, "Here's what I found after digging deeper.", result.Reply)

	slotsAfter, err := d.Store.GetSlots(ctx, "thread-consent")
	require.NoError(t, err)
	assert.NotContains(t, slotsAfter, "awaiting_deep_research_consent")
	assert.NotContains(t, slotsAfter, "pending_deep_research_query")
}

func TestRunDeepResearchConsentNoDeclinesWithoutResuming(t *testing.T) {
	fake := llms.NewFake()
	d := newTestDeps(t, fake)
	ctx := context.Background()

	require.NoError(t, d.Store.SetSlots(ctx, "thread-decline", session.SlotMap{
		"awaiting_deep_research_consent": "true",
		"pending_deep_research_query":    "plan a three-week backpacking trip",
	}, nil))

	result := Run(ctx, d, Request{Message: "no thanks", ThreadID: "thread-decline"})
	assert.Equal(t, "No problem, skipping that.", result.Reply)
	assert.Empty(t, fake.ChatCalls, "declining consent must not re-invoke the planner or actor")

	slotsAfter, err := d.Store.GetSlots(ctx, "thread-decline")
	require.NoError(t, err)
	assert.NotContains(t, slotsAfter, "awaiting_deep_research_consent")
	assert.NotContains(t, slotsAfter, "pending_deep_research_query")
}
