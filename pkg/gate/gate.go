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

// Package gate implements the Complexity & Consent Gate (§4.6):
// classifying a turn as complex enough to warrant deep research, and
// parking it pending user consent before any expensive research tool
// runs.
package gate

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/travelbot/orchestrator/pkg/llms"
)

// Verdict is the gate's classification of a turn.
type Verdict struct {
	IsComplex  bool
	Confidence float64
	Reasoning  string
}

// signalPattern is one of the heuristic signal categories counted
// toward complexity: budget, group, time, origin, location, special.
type signalPattern struct {
	category string
	re       *regexp.Regexp
}

var signalPatterns = []signalPattern{
	{"budget", regexp.MustCompile(`(?i)\bbudget\b|\$\d|\bcheap\b|\bluxury\b|\baffordable\b`)},
	{"group", regexp.MustCompile(`(?i)\bfamily\b|\bkids?\b|\btoddler\b|\bgroup of\b|\bcouple\b|\bfriends\b`)},
	{"time", regexp.MustCompile(`(?i)\b\d+[\s-]day(s)?\b|\bweek(s)?\b|\bin (january|february|march|april|may|june|july|august|september|october|november|december)\b`)},
	{"origin", regexp.MustCompile(`(?i)\bfrom [A-Z][a-zA-Z\s]+\b`)},
	{"location", regexp.MustCompile(`(?i)\bto [A-Z][a-zA-Z\s]+\b|\bacross\b|\bmulti[- ]city\b`)},
	{"special", regexp.MustCompile(`(?i)\bavoid(ing)?\b|\baccessib(le|ility)\b|\ballerg|\bvisa\b|\bpet[- ]friendly\b`)},
}

// heuristicVerdict counts matched signal categories. Complex iff ≥3
// categories match; confidence = 0.6 + 0.1*(categories-2), capped at
// 0.95. Returns ok=false when the heuristic is inconclusive (fewer
// than 3 categories matched but at least 1), signaling the caller to
// fall back to the LLM classifier.
func heuristicVerdict(message string) (Verdict, bool) {
	categories := 0
	for _, p := range signalPatterns {
		if p.re.MatchString(message) {
			categories++
		}
	}
	if categories >= 3 {
		confidence := 0.6 + 0.1*float64(categories-2)
		if confidence > 0.95 {
			confidence = 0.95
		}
		return Verdict{IsComplex: true, Confidence: confidence, Reasoning: "heuristic: matched enough signal categories"}, true
	}
	if categories == 0 {
		return Verdict{IsComplex: false, Confidence: 0.9, Reasoning: "heuristic: no complexity signals"}, true
	}
	return Verdict{}, false
}

type classifierJSON struct {
	IsComplex  bool    `json:"isComplex"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

const classifierSystemPrompt = `You classify whether a travel-assistant user message describes a complex, multi-constraint trip request that would benefit from deeper research before answering. Respond with strict JSON only: {"isComplex": boolean, "confidence": number between 0 and 1, "reasoning": string}. No prose, no markdown fences.`

// Classify runs the heuristic signal count first; if inconclusive, it
// falls back to a short JSON-returning LLM classifier bounded by
// timeout.
func Classify(ctx context.Context, transport llms.Transport, message string, timeout time.Duration) Verdict {
	if v, ok := heuristicVerdict(message); ok {
		return v
	}

	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := transport.Chat(cctx, []llms.Message{
		{Role: "system", Content: classifierSystemPrompt},
		{Role: "user", Content: message},
	}, llms.ChatOptions{ResponseFormat: llms.ResponseFormatJSON, Timeout: timeout})
	if err != nil || resp.Content == "" {
		return Verdict{IsComplex: false, Confidence: 0.5, Reasoning: "classifier unavailable, defaulting to not complex"}
	}

	var parsed classifierJSON
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Content)), &parsed); err != nil {
		return Verdict{IsComplex: false, Confidence: 0.5, Reasoning: "classifier response unparsable"}
	}
	return Verdict{IsComplex: parsed.IsComplex, Confidence: parsed.Confidence, Reasoning: parsed.Reasoning}
}

// extractJSONObject returns s unchanged if it already looks like a
// bare JSON object, otherwise it extracts the first balanced {...}
// substring, tolerating an LLM that wraps its answer in prose or a
// markdown fence.
func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s
	}
	start := strings.Index(s, "{")
	if start < 0 {
		return s
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
	return s
}
