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

// Package planner implements the single-call Planner (§4.7): one LLM
// call returning a strict JSON PlanControl block that the Actor Loop
// uses as guidance, never as a binding instruction.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/travelbot/orchestrator/pkg/llms"
)

// ToolCallHint is one ordered tool-call suggestion from the plan.
type ToolCallHint struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// Consent is the plan's optional consent-needed hint.
type Consent struct {
	Kind  string `json:"kind"`
	Query string `json:"query"`
}

// Control is the PlanControl the planner returns; it is advisory, not
// binding, on the actor loop.
type Control struct {
	Route      string         `json:"route"`
	Confidence float64        `json:"confidence"`
	Missing    []string       `json:"missing"`
	Consent    *Consent       `json:"consent,omitempty"`
	Calls      []ToolCallHint `json:"calls"`
	Blend      string         `json:"blend"`
	Verify     string         `json:"verify"`
}

const systemPrompt = `You are the planning stage of a travel-assistant backend. Given the conversation context and the latest user message, return a strict JSON object describing a plan — never prose, never markdown fences, never tool execution. Shape:
{"route": string, "confidence": number 0-1, "missing": string[], "consent": {"kind": string, "query": string} | null, "calls": [{"tool": string, "args": object}], "blend": string, "verify": string}
Only use tool names from the registry you are given. If nothing is missing, "missing" is an empty array. If no consent is needed, "consent" is null.`

// Plan runs the single planner LLM call. ctx is the turn's
// cancellation signal; budget is the remaining turn time. Per
// SPEC_FULL.md/spec.md §4.7, the planner's own budget is
// min(5s, budget/2), floor 1.5s, and a timeout or parse failure is
// non-fatal: Plan returns (nil, nil) rather than an error, since "no
// plan" is itself a valid outcome the actor tolerates.
func Plan(ctx context.Context, transport llms.Transport, slotSnapshot map[string]string, message string, toolNames []string, budget time.Duration) (*Control, error) {
	plannerBudget := budget / 2
	if plannerBudget > 5*time.Second {
		plannerBudget = 5 * time.Second
	}
	if plannerBudget < 1500*time.Millisecond {
		plannerBudget = 1500 * time.Millisecond
	}

	cctx, cancel := context.WithTimeout(ctx, plannerBudget)
	defer cancel()

	messages := []llms.Message{{Role: "system", Content: systemPrompt}}
	if len(toolNames) > 0 {
		messages = append(messages, llms.Message{Role: "system", Content: "Available tools: " + strings.Join(toolNames, ", ")})
	}
	if len(slotSnapshot) > 0 {
		if encoded, err := json.Marshal(slotSnapshot); err == nil {
			messages = append(messages, llms.Message{Role: "system", Content: "Context: " + string(encoded)})
		}
	}
	messages = append(messages, llms.Message{Role: "user", Content: message})

	resp, err := transport.Chat(cctx, messages, llms.ChatOptions{ResponseFormat: llms.ResponseFormatJSON, Timeout: plannerBudget})
	if err != nil {
		return nil, nil
	}

	raw := extractBalancedObject(resp.Content)
	if raw == "" {
		return nil, nil
	}

	var control Control
	if err := json.Unmarshal([]byte(raw), &control); err != nil {
		return nil, nil
	}
	return &control, nil
}

// extractBalancedObject accepts either a strict JSON object or finds
// the first balanced {...} substring, per §4.7's tolerant parsing
// rule.
func extractBalancedObject(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// Summary renders a short human-readable description of the plan for
// logging/metrics.
func (c Control) Summary() string {
	if c.Route == "" {
		return "no plan"
	}
	return fmt.Sprintf("route=%s confidence=%.2f calls=%d", c.Route, c.Confidence, len(c.Calls))
}
