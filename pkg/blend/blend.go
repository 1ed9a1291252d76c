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

// Package blend implements Blend & Cite (§4.9): it reduces an Actor
// Run into the final TurnResult shape — deduplicated citations, a
// facts list, a decisions list, and a self-check verdict — without
// altering the user-facing reply.
package blend

import (
	"github.com/travelbot/orchestrator/pkg/actor"
	"github.com/travelbot/orchestrator/pkg/tool"
)

// Fact is one {key, value, source?} entry extracted from a successful
// tool output.
type Fact struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Source string `json:"source,omitempty"`
}

// Verdict is the Blend self-check outcome: informational only, it
// never changes Reply.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictWarn Verdict = "warn"
	VerdictFail Verdict = "fail"
)

// Result is the TurnResult's blend-owned fields.
type Result struct {
	Reply      string
	Citations  []string
	Facts      []Fact
	Decisions  []string
	SelfCheck  Verdict
}

const maxCitations = 8

// Blend reduces an actor.Run (plus any decisions already accumulated
// by the Router/Gate, e.g. gated skips) into the final Result.
func Blend(run actor.Run, priorDecisions []string) Result {
	r := Result{
		Reply:     run.FinalReply,
		Decisions: append(append([]string{}, priorDecisions...), run.Decisions...),
	}

	citations := dedupeCitations(run.Outcomes)
	if len(citations) > maxCitations {
		citations = citations[:maxCitations]
	}
	r.Citations = citations

	r.Facts = buildFacts(run.Outcomes)
	r.Decisions = append(r.Decisions, decisionsFromOutcomes(run.Outcomes)...)
	r.SelfCheck = selfCheck(r)

	return r
}

// dedupeCitations preserves first-seen order across every tool
// outcome's Result.Citations and single Source, capped at 8 by the
// caller.
func dedupeCitations(outcomes []actor.ToolOutcome) []string {
	seen := make(map[string]bool)
	out := []string{}
	add := func(c string) {
		if c == "" || seen[c] {
			return
		}
		seen[c] = true
		out = append(out, c)
	}

	for _, o := range outcomes {
		if !o.Result.OK {
			continue
		}
		add(o.Result.Source)
		for _, c := range o.Result.Citations {
			add(c)
		}
	}
	return out
}

// buildFacts extracts {key=toolName, value=summary, source?} for
// every successful tool output with a non-empty summary, plus the
// packingSuggest special-case facts (packingBand, packingItemsBase,
// packingItemsSpecial) so later verification can check them.
func buildFacts(outcomes []actor.ToolOutcome) []Fact {
	facts := []Fact{}
	for _, o := range outcomes {
		if !o.Result.OK || o.Result.Summary == "" {
			continue
		}
		facts = append(facts, Fact{Key: o.Tool, Value: o.Result.Summary, Source: o.Result.Source})

		if o.Tool == tool.NamePackingSuggest {
			facts = append(facts, packingFacts(o.Result)...)
		}
	}
	return facts
}

func packingFacts(result tool.Result) []Fact {
	var out []Fact
	if band, ok := result.Payload["packingBand"].(string); ok && band != "" {
		out = append(out, Fact{Key: "packingBand", Value: band})
	}
	if items, ok := result.Payload["packingItemsBase"].([]string); ok && len(items) > 0 {
		out = append(out, Fact{Key: "packingItemsBase", Value: joinItems(items)})
	}
	if items, ok := result.Payload["packingItemsSpecial"].([]string); ok && len(items) > 0 {
		out = append(out, Fact{Key: "packingItemsSpecial", Value: joinItems(items)})
	}
	return out
}

func joinItems(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += item
	}
	return out
}

// decisionsFromOutcomes surfaces gated-route skips and ledger
// suppressions into the decisions list (§4.9's "gated skips, and
// ledger actions").
func decisionsFromOutcomes(outcomes []actor.ToolOutcome) []string {
	var out []string
	for _, o := range outcomes {
		switch o.Error {
		case "gated_by_route":
			out = append(out, "gated_skip:"+o.Tool)
		case "skipped_by_ledger":
			out = append(out, "ledger_skip:"+o.Tool)
		case "duplicate_in_turn":
			out = append(out, "duplicate_skip:"+o.Tool)
		}
	}
	return out
}

// selfCheck applies §4.9's verdict rule: fail if there's no reply at
// all; warn if an external claim (a fact with no source) exists
// without a citation; pass otherwise.
func selfCheck(r Result) Verdict {
	if r.Reply == "" {
		return VerdictFail
	}
	for _, f := range r.Facts {
		if f.Source == "" && len(r.Citations) == 0 {
			return VerdictWarn
		}
	}
	return VerdictPass
}
