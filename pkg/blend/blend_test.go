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

package blend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/travelbot/orchestrator/pkg/actor"
	"github.com/travelbot/orchestrator/pkg/tool"
)

func TestBlendDedupesCitationsPreservingOrder(t *testing.T) {
	run := actor.Run{
		FinalReply: "Here's the weather.",
		Outcomes: []actor.ToolOutcome{
			{Tool: "weather", Result: tool.Result{OK: true, Summary: "sunny", Source: "open-meteo.com"}},
			{Tool: "getCountry", Result: tool.Result{OK: true, Summary: "Italy facts", Source: "open-meteo.com"}},
			{Tool: "search", Result: tool.Result{OK: true, Summary: "top hits", Citations: []string{"a.com", "b.com"}}},
		},
	}

	r := Blend(run, nil)
	assert.Equal(t, []string{"open-meteo.com", "a.com", "b.com"}, r.Citations)
}

func TestBlendCapsCitationsAtEight(t *testing.T) {
	var outcomes []actor.ToolOutcome
	for i := 0; i < 10; i++ {
		outcomes = append(outcomes, actor.ToolOutcome{
			Tool:   "search",
			Result: tool.Result{OK: true, Summary: "hit", Citations: []string{string(rune('a' + i))}},
		})
	}
	run := actor.Run{FinalReply: "results", Outcomes: outcomes}

	r := Blend(run, nil)
	assert.Len(t, r.Citations, 8)
}

func TestBlendBuildsFactsFromSuccessfulOutputs(t *testing.T) {
	run := actor.Run{
		FinalReply: "Packed.",
		Outcomes: []actor.ToolOutcome{
			{Tool: "weather", Result: tool.Result{OK: true, Summary: "sunny, 22C"}},
			{Tool: "search", Error: "http_block"},
		},
	}

	r := Blend(run, nil)
	assert.Len(t, r.Facts, 1)
	assert.Equal(t, "weather", r.Facts[0].Key)
	assert.Equal(t, "sunny, 22C", r.Facts[0].Value)
}

func TestBlendEmitsPackingSpecialCaseFacts(t *testing.T) {
	run := actor.Run{
		FinalReply: "Here's what to pack.",
		Outcomes: []actor.ToolOutcome{
			{Tool: tool.NamePackingSuggest, Result: tool.Result{
				OK:      true,
				Summary: "pack for mild weather",
				Payload: map[string]any{
					"packingBand":         "mild",
					"packingItemsBase":    []string{"light jacket", "jeans"},
					"packingItemsSpecial": []string{"umbrella"},
				},
			}},
		},
	}

	r := Blend(run, nil)
	keys := map[string]string{}
	for _, f := range r.Facts {
		keys[f.Key] = f.Value
	}
	assert.Equal(t, "pack for mild weather", keys[tool.NamePackingSuggest])
	assert.Equal(t, "mild", keys["packingBand"])
	assert.Equal(t, "light jacket, jeans", keys["packingItemsBase"])
	assert.Equal(t, "umbrella", keys["packingItemsSpecial"])
}

func TestBlendSurfacesGatedAndLedgerSkipsAsDecisions(t *testing.T) {
	run := actor.Run{
		FinalReply: "ok",
		Outcomes: []actor.ToolOutcome{
			{Tool: "amadeusSearchFlights", Error: "gated_by_route"},
			{Tool: "search", Error: "skipped_by_ledger"},
		},
	}

	r := Blend(run, []string{"flight_fast_path"})
	assert.Contains(t, r.Decisions, "flight_fast_path")
	assert.Contains(t, r.Decisions, "gated_skip:amadeusSearchFlights")
	assert.Contains(t, r.Decisions, "ledger_skip:search")
}

func TestSelfCheckFailsOnEmptyReply(t *testing.T) {
	r := Blend(actor.Run{FinalReply: ""}, nil)
	assert.Equal(t, VerdictFail, r.SelfCheck)
}

func TestSelfCheckWarnsOnUncitedExternalClaim(t *testing.T) {
	run := actor.Run{
		FinalReply: "It's sunny.",
		Outcomes: []actor.ToolOutcome{
			{Tool: "weather", Result: tool.Result{OK: true, Summary: "sunny, 22C"}},
		},
	}
	r := Blend(run, nil)
	assert.Equal(t, VerdictWarn, r.SelfCheck)
}

func TestSelfCheckPassesWhenCited(t *testing.T) {
	run := actor.Run{
		FinalReply: "Here's info.",
		Outcomes: []actor.ToolOutcome{
			{Tool: "search", Result: tool.Result{OK: true, Summary: "top hits", Citations: []string{"a.com"}}},
		},
	}
	r := Blend(run, nil)
	assert.Equal(t, VerdictPass, r.SelfCheck)
}
