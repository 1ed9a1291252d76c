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

// Package router implements the intent + slot extractor (§4.5): fast
// guards, consent-state handling, the flight fast path, the
// complexity gate hook, the LLM router, and the post-routing
// adjustments (context-switch reset, explicit-city guard, intent
// override, flight slot enhancement, correction pass, search-query
// synthesis).
package router

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/travelbot/orchestrator/pkg/gate"
	"github.com/travelbot/orchestrator/pkg/llms"
	"github.com/travelbot/orchestrator/pkg/slots"
)

// Result is the RouterResult plus the bookkeeping the Turn Driver
// needs to apply it: keys to delete (context-switch reset or stale
// guard) and a set of coarse decision strings for receipts.
type Result struct {
	Intent        string
	NeedExternal  bool
	Slots         slots.Map
	Confidence    float64
	DeleteKeys    []string
	Decisions     []string
	ConsentAnswer string // "yes" | "no" | "" — non-empty means the driver, not the router, must handle this turn
}

// Deps bundles the Router's collaborators.
type Deps struct {
	Transport         llms.Transport
	ComplexityEnabled bool
	ClassifierTimeout time.Duration
}

// Input is everything the Router needs about the current turn and
// prior state.
type Input struct {
	Message                     string
	PriorSlots                  slots.Map
	AwaitingDeepResearchConsent bool
	AwaitingFlightClarification bool
}

var (
	flightFastPathRE = regexp.MustCompile(`(?i)\bflights?\b.*\bfrom\s+([A-Za-z][A-Za-z\s]{1,30}?)\s+to\s+([A-Za-z][A-Za-z\s]{1,30}?)(?:\s+(?:today|tonight|tomorrow|this week|this weekend|next week|next month))?\s*(?:[.?!]|$)`)
	weatherCueRE     = regexp.MustCompile(`(?i)\bweather\b|\btemperature\b|\bforecast\b|\brain(y|ing)?\b|\bsnow(y|ing)?\b|\bhot\b|\bcold\b`)
	flightCueRE      = regexp.MustCompile(`(?i)\bflight(s)?\b|\bfly\b|\bairfare\b|\bairline\b`)
)

// Route runs the §4.5 pipeline and returns the turn's RouterResult.
func Route(ctx context.Context, d Deps, in Input) (Result, error) {
	message := strings.TrimSpace(in.Message)

	// 1. Empty guard.
	if message == "" {
		return Result{Intent: "unknown", Confidence: 0.1, Decisions: []string{"empty_guard"}}, nil
	}

	// 2. Consent-state handling.
	if in.AwaitingDeepResearchConsent {
		answer := classifyYesNo(ctx, d, message)
		if answer == "unclear" {
			rest := in
			rest.AwaitingDeepResearchConsent = false
			r, err := Route(ctx, d, rest)
			if r.Slots["awaiting_deep_research_consent"] == "" {
				r.DeleteKeys = append(r.DeleteKeys, "awaiting_deep_research_consent", "pending_deep_research_query")
			}
			r.Decisions = append([]string{"consent_unclear_cleared"}, r.Decisions...)
			return r, err
		}
		return Result{
			ConsentAnswer: answer,
			DeleteKeys:    slots.ClearConsentState(),
			Decisions:     []string{"consent_" + answer},
		}, nil
	}

	// 3. Flight clarification.
	if in.AwaitingFlightClarification {
		kind := classifyFlightClarification(message)
		result := Result{DeleteKeys: []string{"awaiting_flight_clarification"}, Decisions: []string{"flight_clarification_" + kind}}
		switch kind {
		case "direct_search":
			result.Intent = "flights"
			result.NeedExternal = true
			result.Confidence = 0.8
		case "web_research":
			result.Intent = "web_search"
			result.NeedExternal = true
			result.Confidence = 0.7
		default:
			result.Intent = "unknown"
			result.Confidence = 0.3
		}
		return result, nil
	}

	// 4. Flight fast-path.
	if m := flightFastPathRE.FindStringSubmatch(message); m != nil {
		delta := slots.Map{
			"originCity":      strings.TrimSpace(m[1]),
			"destinationCity": strings.TrimSpace(m[2]),
		}
		if date := extractRelativeDate(message); date != "" {
			delta["departureDate"] = date
		}
		return Result{Intent: "flights", NeedExternal: true, Confidence: 0.9, Slots: delta, Decisions: []string{"flight_fast_path"}}, nil
	}

	// 5. Complexity gate.
	if d.ComplexityEnabled {
		verdict := gate.Classify(ctx, d.Transport, message, d.ClassifierTimeout)
		if verdict.IsComplex && verdict.Confidence >= 0.75 {
			return Result{
				Intent:     "system",
				NeedExternal: false,
				Confidence: verdict.Confidence,
				Slots: slots.Map{
					"awaiting_deep_research_consent": "true",
					"pending_deep_research_query":    message,
					"complexity_score":               strconv.FormatFloat(verdict.Confidence, 'f', 2, 64),
					"complexity_reasoning":            verdict.Reasoning,
				},
				Decisions: []string{"deep_research_consent_needed"},
			}, nil
		}
	}

	// 6. (Lightweight local classifier is optional per spec.md §4.5 and
	// is not implemented here — every turn reaching this point goes to
	// the LLM router directly. See DESIGN.md.)

	// 7. LLM router.
	llmResult, err := runLLMRouter(ctx, d, message, in.PriorSlots)
	if err != nil {
		llmResult = Result{Intent: "unknown", Confidence: 0.2}
	}

	return postProcess(ctx, d, in, message, llmResult), nil
}

func classifyYesNo(ctx context.Context, d Deps, message string) string {
	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, "yes", "yeah", "yep", "sure", "go ahead", "please do"):
		return "yes"
	case containsAny(lower, "no", "nope", "don't", "do not", "skip it"):
		return "no"
	}

	timeout := d.ClassifierTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := d.Transport.Chat(cctx, []llms.Message{
		{Role: "system", Content: `Classify the user's reply to a yes/no consent question as exactly one of: yes, no, unclear. Respond with strict JSON {"answer": "yes"|"no"|"unclear"}.`},
		{Role: "user", Content: message},
	}, llms.ChatOptions{ResponseFormat: llms.ResponseFormatJSON, Timeout: timeout})
	if err != nil {
		return "unclear"
	}

	var parsed struct {
		Answer string `json:"answer"`
	}
	if jsonErr := json.Unmarshal([]byte(extractJSONObject(resp.Content)), &parsed); jsonErr != nil {
		return "unclear"
	}
	switch parsed.Answer {
	case "yes", "no":
		return parsed.Answer
	default:
		return "unclear"
	}
}

func classifyFlightClarification(message string) string {
	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, "just search", "book it", "direct", "go ahead and search"):
		return "direct_search"
	case containsAny(lower, "research", "look into", "compare", "find the cheapest"):
		return "web_research"
	default:
		return "ambiguous"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var relativeDateRE = regexp.MustCompile(`(?i)\btoday\b|\btomorrow\b|\btonight\b|\bnext week\b|\bnext month\b|\bthis weekend\b`)

func extractRelativeDate(message string) string {
	return relativeDateRE.FindString(message)
}

type llmRouterResponse struct {
	Intent       string            `json:"intent"`
	NeedExternal bool              `json:"needExternal"`
	Slots        map[string]string `json:"slots"`
	Confidence   float64           `json:"confidence"`
}

const routerSystemPrompt = `You are the intent router for a travel-assistant backend. Classify the user's latest message into exactly one intent: weather, packing, attractions, destinations, flights, policy, web_search, system, unknown. Extract any slot values you can (city, destinationCity, originCity, country, region, month, dates, departureDate, returnDate, travelWindow, season, travelerProfile, travelStyle, groupType, budgetLevel, activityType). Respond with strict JSON only: {"intent": string, "needExternal": boolean, "slots": object, "confidence": number 0-1}.`

func runLLMRouter(ctx context.Context, d Deps, message string, prior slots.Map) (Result, error) {
	messages := []llms.Message{{Role: "system", Content: routerSystemPrompt}}
	if len(prior) > 0 {
		if encoded, err := json.Marshal(prior); err == nil {
			messages = append(messages, llms.Message{Role: "system", Content: "Prior slots: " + string(encoded)})
		}
	}
	messages = append(messages, llms.Message{Role: "user", Content: message})

	resp, err := d.Transport.Chat(ctx, messages, llms.ChatOptions{ResponseFormat: llms.ResponseFormatJSON, Timeout: 6 * time.Second})
	if err != nil {
		return Result{}, err
	}

	var parsed llmRouterResponse
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Content)), &parsed); err != nil {
		return Result{}, err
	}

	return Result{
		Intent:       parsed.Intent,
		NeedExternal: parsed.NeedExternal,
		Confidence:   parsed.Confidence,
		Slots:        slots.Map(parsed.Slots),
	}, nil
}

// extractJSONObject extracts the first balanced {...} substring,
// tolerating prose or markdown fences around the JSON.
func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
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
