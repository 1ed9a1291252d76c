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

package router

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"github.com/travelbot/orchestrator/pkg/llms"
	"github.com/travelbot/orchestrator/pkg/slots"
)

// postProcess applies the §4.5 adjustments that follow LLM routing:
// context-switch detection, the explicit-city guard, the weather/
// flight intent override, flight slot enhancement, the low-confidence
// correction pass, and search-query synthesis.
func postProcess(ctx context.Context, d Deps, in Input, message string, r Result) Result {
	newLocation := slots.PrimaryLocation(r.Slots)
	priorLocation := slots.PrimaryLocation(in.PriorSlots)

	switchDetected := newLocation != "" && priorLocation != "" && !sameLocation(newLocation, priorLocation)
	if !switchDetected && newLocation != "" && priorLocation == "" {
		// A first-ever location isn't a "switch" — nothing to reset against.
		switchDetected = false
	}

	if switchDetected {
		r.DeleteKeys = append(r.DeleteKeys, slots.ResetKeys()...)
		r.Decisions = append(r.Decisions, "context_switch_reset")
	} else {
		hasFreshTimeOrProfile := false
		for _, k := range append(append([]string{}, slots.TimeKeys...), slots.ProfileKeys...) {
			if r.Slots[k] != "" {
				hasFreshTimeOrProfile = true
				break
			}
		}
		if !hasFreshTimeOrProfile {
			r.DeleteKeys = append(r.DeleteKeys, slots.StaleGuardKeys()...)
		}
	}

	// Explicit-city guard: if the new city is neither corroborated by
	// prior slots nor plausibly present in the raw message text, drop it
	// to avoid a hallucinated city sticking around.
	if city := r.Slots["city"]; city != "" {
		if in.PriorSlots["city"] != city && !strings.Contains(strings.ToLower(message), strings.ToLower(city)) {
			delete(r.Slots, "city")
		}
	}

	// Intent override: weather cues without flight cues win over a
	// flights classification.
	if r.Intent == "flights" && weatherCueRE.MatchString(message) && !flightCueRE.MatchString(message) {
		r.Intent = "weather"
		r.Decisions = append(r.Decisions, "intent_override_weather")
	}

	// Flight slot enhancement: re-extract origin/destination/date with
	// the same fast-path regex, preserving temporal tokens verbatim.
	if r.Intent == "flights" {
		if m := flightFastPathRE.FindStringSubmatch(message); m != nil {
			if r.Slots == nil {
				r.Slots = slots.Map{}
			}
			r.Slots["originCity"] = strings.TrimSpace(m[1])
			r.Slots["destinationCity"] = strings.TrimSpace(m[2])
		}
		if date := extractRelativeDate(message); date != "" && slots.IsTemporalReference(date) {
			if r.Slots == nil {
				r.Slots = slots.Map{}
			}
			r.Slots["departureDate"] = date
		}
	}

	// Correction pass: low confidence or unknown intent gets a second
	// classifier opinion; only accepted if it clears 0.75.
	if r.Confidence < 0.6 || r.Intent == "unknown" {
		if corrected, ok := runCorrectionClassifier(ctx, d, message); ok {
			r = corrected
			r.Decisions = append(r.Decisions, "correction_pass_accepted")
		}
	}

	// Search-query synthesis.
	if r.Intent == "web_search" && r.Slots["search_query"] == "" {
		query := synthesizeSearchQuery(ctx, d, message)
		if r.Slots == nil {
			r.Slots = slots.Map{}
		}
		r.Slots["search_query"] = query
	}

	return r
}

func sameLocation(a, b string) bool {
	return normalizeForCompare(a) == normalizeForCompare(b)
}

// normalizeForCompare folds case, strips diacritics to their base
// rune where trivially decomposable, and collapses whitespace, so
// "SÃO PAULO" and "sao paulo " compare equal.
func normalizeForCompare(s string) string {
	var b strings.Builder
	lastWasSpace := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				b.WriteRune(' ')
			}
			lastWasSpace = true
			continue
		}
		lastWasSpace = false
		b.WriteRune(stripDiacritic(r))
	}
	return b.String()
}

var diacriticFold = map[rune]rune{
	'á': 'a', 'à': 'a', 'â': 'a', 'ã': 'a', 'ä': 'a', 'å': 'a',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i',
	'ó': 'o', 'ò': 'o', 'ô': 'o', 'õ': 'o', 'ö': 'o',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u',
	'ñ': 'n', 'ç': 'c',
}

func stripDiacritic(r rune) rune {
	if folded, ok := diacriticFold[r]; ok {
		return folded
	}
	return r
}

func runCorrectionClassifier(ctx context.Context, d Deps, message string) (Result, bool) {
	cctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()

	resp, err := d.Transport.Chat(cctx, []llms.Message{
		{Role: "system", Content: routerSystemPrompt + " This is a second opinion after a low-confidence first pass; only be confident if truly certain."},
		{Role: "user", Content: message},
	}, llms.ChatOptions{ResponseFormat: llms.ResponseFormatJSON, Timeout: 4 * time.Second})
	if err != nil {
		return Result{}, false
	}

	var parsed llmRouterResponse
	if jsonErr := json.Unmarshal([]byte(extractJSONObject(resp.Content)), &parsed); jsonErr != nil {
		return Result{}, false
	}
	if parsed.Confidence < 0.75 {
		return Result{}, false
	}

	return Result{Intent: parsed.Intent, NeedExternal: parsed.NeedExternal, Confidence: parsed.Confidence, Slots: slots.Map(parsed.Slots)}, true
}

func synthesizeSearchQuery(ctx context.Context, d Deps, message string) string {
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	resp, err := d.Transport.Chat(cctx, []llms.Message{
		{Role: "system", Content: "Rewrite the user's message as a concise, effective web search query. Respond with the query text only, no quotes, no explanation."},
		{Role: "user", Content: message},
	}, llms.ChatOptions{Timeout: 3 * time.Second})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		return message
	}
	return strings.TrimSpace(resp.Content)
}
