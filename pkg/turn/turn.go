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

// Package turn implements the Turn Driver (§4.10): the single entry
// point that loads session state, runs Router → Planner → Actor →
// Blend under a turn deadline, and persists the result. It is the
// sole component that calls session.Store.SetSlots.
package turn

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/travelbot/orchestrator/pkg/actor"
	"github.com/travelbot/orchestrator/pkg/blend"
	"github.com/travelbot/orchestrator/pkg/ledger"
	"github.com/travelbot/orchestrator/pkg/llms"
	"github.com/travelbot/orchestrator/pkg/planner"
	"github.com/travelbot/orchestrator/pkg/router"
	"github.com/travelbot/orchestrator/pkg/session"
	"github.com/travelbot/orchestrator/pkg/slots"
	"github.com/travelbot/orchestrator/pkg/tool"
)

const defaultTurnDeadline = 20 * time.Second

// Metrics is everything the Turn Driver reports directly, plus the
// narrower actor.Metrics surface the Actor Loop reports through. A
// single *metrics.Metrics satisfies both.
type Metrics interface {
	actor.Metrics
	IncChatTurn(intent string)
	IncRouterLowConf(intent string)
	IncClarifyRequest(key string)
	IncFallback(kind string)
}

// Request is the Turn Driver's input, matching spec §4.10.
type Request struct {
	Message  string
	ThreadID string // empty mints a new one
	Receipts bool
}

// Receipts is the optional structured payload §6 describes, returned
// only when Request.Receipts is true.
type Receipts struct {
	Facts     []blend.Fact `json:"facts"`
	Decisions []string     `json:"decisions"`
	SelfCheck blend.Verdict `json:"selfCheck"`
}

// Result is the TurnResult spec §3 describes.
type Result struct {
	Reply     string    `json:"reply"`
	ThreadID  string    `json:"threadId"`
	Citations []string  `json:"citations,omitempty"`
	Facts     []blend.Fact `json:"facts,omitempty"`
	Decisions []string  `json:"decisions,omitempty"`
	Receipts  *Receipts `json:"receipts,omitempty"`
}

// Deps bundles every collaborator the Turn Driver wires together.
type Deps struct {
	Store             session.Store
	Registry          *tool.Registry
	Transport         llms.Transport
	Shared            *ledger.Shared
	LedgerTTLs        ledger.TTLs
	ComplexityEnabled bool
	ClassifierTimeout time.Duration
	TurnDeadline      time.Duration
	Log               *slog.Logger
	Metrics           Metrics
	SystemPrompt      string
}

func (d Deps) deadline() time.Duration {
	if d.TurnDeadline > 0 {
		return d.TurnDeadline
	}
	return defaultTurnDeadline
}

func (d Deps) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

// metrics returns d.Metrics, or a no-op implementation when the
// caller didn't wire one — mirrors actor.Deps.metrics().
func (d Deps) metrics() Metrics {
	if d.Metrics != nil {
		return d.Metrics
	}
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) IncGatedSkip()            {}
func (noopMetrics) IncParseFailure()         {}
func (noopMetrics) IncDuplicateInTurn()      {}
func (noopMetrics) IncSkippedByLedger()      {}
func (noopMetrics) IncChatTurn(string)       {}
func (noopMetrics) IncRouterLowConf(string)  {}
func (noopMetrics) IncClarifyRequest(string) {}
func (noopMetrics) IncFallback(string)       {}

// Run drives one full turn per §4.10's numbered steps.
func Run(ctx context.Context, d Deps, req Request) Result {
	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	turnCtx, cancel := context.WithTimeout(ctx, d.deadline())
	defer cancel()
	deadlineAt := time.Now().Add(d.deadline())

	priorSlots, priorHistory := loadState(turnCtx, d, threadID)

	if err := d.Store.AppendMsg(turnCtx, threadID, session.Message{Role: session.RoleUser, Content: req.Message}, 0); err != nil {
		d.logger().Warn("turn: append user message failed", "err", err)
	}

	routerResult, err := router.Route(turnCtx, router.Deps{
		Transport:         d.Transport,
		ComplexityEnabled: d.ComplexityEnabled,
		ClassifierTimeout: d.ClassifierTimeout,
	}, router.Input{
		Message:                     req.Message,
		PriorSlots:                  slots.Map(priorSlots),
		AwaitingDeepResearchConsent: priorSlots["awaiting_deep_research_consent"] == "true",
		AwaitingFlightClarification: priorSlots["awaiting_flight_clarification"] == "true",
	})
	if err != nil {
		d.logger().Warn("turn: router failed", "err", err)
		routerResult = router.Result{Intent: "unknown", Confidence: 0.1}
	}

	d.metrics().IncChatTurn(routerResult.Intent)

	pendingDeepResearchQuery := priorSlots["pending_deep_research_query"]
	mergedSlots := persistRouterResult(turnCtx, d, threadID, priorSlots, routerResult)

	// Consent answers are handled by the driver, not the router.
	if routerResult.ConsentAnswer != "" {
		if routerResult.ConsentAnswer == "yes" {
			query := pendingDeepResearchQuery
			if query == "" {
				query = req.Message
			}
			return runDeepResearchContinuation(turnCtx, d, threadID, query, mergedSlots, priorHistory, deadlineAt, routerResult.Decisions, req.Receipts)
		}
		return finishWithReply(turnCtx, d, threadID, consentReply(routerResult.ConsentAnswer), nil, routerResult.Decisions, req.Receipts)
	}

	// Step 5: deep-research consent prompt short-circuits the turn.
	if routerResult.Intent == "system" && mergedSlots["awaiting_deep_research_consent"] == "true" {
		d.metrics().IncClarifyRequest("deep_research_consent")
		return finishWithReply(turnCtx, d, threadID, deepResearchConsentPrompt(), nil, routerResult.Decisions, req.Receipts)
	}

	// Step 6: very-low-confidence unknown gets a polite redirect.
	if routerResult.Intent == "unknown" && routerResult.Confidence < 0.2 {
		d.metrics().IncRouterLowConf(routerResult.Intent)
		return finishWithReply(turnCtx, d, threadID, "I'm not quite sure what you're looking for — could you tell me a destination or what kind of help you need?", nil, routerResult.Decisions, req.Receipts)
	}

	// Step 7: Planner -> Actor -> Blend.
	toolNames := make([]string, 0)
	for _, s := range d.Registry.AllowedForRoute(routerResult.Intent) {
		toolNames = append(toolNames, s.Name())
	}

	remaining := time.Until(deadlineAt)
	plan, planErr := planner.Plan(turnCtx, d.Transport, mergedSlots, req.Message, toolNames, remaining)
	if planErr != nil {
		d.logger().Warn("turn: planner failed, continuing without plan", "err", planErr)
	}

	messages := seedMessages(d, priorHistory, plan, req.Message)

	turnLedger := ledger.New(d.Shared, d.effectiveTTLs())
	run := actor.Loop(turnCtx, actor.Deps{
		Transport: d.Transport,
		Registry:  d.Registry,
		Ledger:    turnLedger,
		Log:       d.logger(),
		Metrics:   d.metrics(),
	}, routerResult.Intent, deadlineAt, messages)

	if run.FinalReply == "" {
		run.FinalReply = fallbackReply(turnCtx, d, run, req.Message, mergedSlots)
	}

	blended := blend.Blend(run, routerResult.Decisions)
	return finishWithReply(turnCtx, d, threadID, blended.Reply, &blended, routerResult.Decisions, req.Receipts)
}

// runDeepResearchContinuation resumes a turn that was parked pending
// deep-research consent (§4.6 step 2): once the user says yes, it
// re-runs Planner -> Actor -> Blend seeded with the query that was
// stashed in pending_deep_research_query, steering the actor toward
// the deepResearch tool rather than asking the user to repeat themselves.
func runDeepResearchContinuation(ctx context.Context, d Deps, threadID, query string, mergedSlots session.SlotMap, history []session.Message, deadlineAt time.Time, decisions []string, wantReceipts bool) Result {
	toolNames := make([]string, 0)
	for _, s := range d.Registry.AllowedForRoute("web_search") {
		toolNames = append(toolNames, s.Name())
	}

	remaining := time.Until(deadlineAt)
	plan, planErr := planner.Plan(ctx, d.Transport, mergedSlots, query, toolNames, remaining)
	if planErr != nil {
		d.logger().Warn("turn: planner failed for deep-research continuation, continuing without plan", "err", planErr)
	}

	messages := seedMessages(d, history, plan, query)
	messages = append(messages, llms.Message{
		Role:    "system",
		Content: "The user just consented to deep research for the request above. Prefer the deepResearch tool over a plain search to answer it.",
	})

	turnLedger := ledger.New(d.Shared, d.effectiveTTLs())
	run := actor.Loop(ctx, actor.Deps{
		Transport: d.Transport,
		Registry:  d.Registry,
		Ledger:    turnLedger,
		Log:       d.logger(),
		Metrics:   d.metrics(),
	}, "web_search", deadlineAt, messages)

	if run.FinalReply == "" {
		run.FinalReply = fallbackReply(ctx, d, run, query, mergedSlots)
	}

	blended := blend.Blend(run, decisions)
	return finishWithReply(ctx, d, threadID, blended.Reply, &blended, decisions, wantReceipts)
}

func (d Deps) effectiveTTLs() ledger.TTLs {
	var zero ledger.TTLs
	if d.LedgerTTLs == zero {
		return ledger.DefaultTTLs()
	}
	return d.LedgerTTLs
}

func loadState(ctx context.Context, d Deps, threadID string) (session.SlotMap, []session.Message) {
	slotsMap, err := d.Store.GetSlots(ctx, threadID)
	if err != nil {
		d.logger().Warn("turn: get slots failed, continuing with empty state", "err", err)
		slotsMap = session.SlotMap{}
	}

	history, err := d.Store.GetMsgs(ctx, threadID, 16)
	if err != nil {
		d.logger().Warn("turn: get messages failed, continuing with empty history", "err", err)
		history = nil
	}

	return slotsMap, history
}

// persistRouterResult normalizes and persists the router's slot delta
// — the Turn Driver is the sole caller of SetSlots, per the resolved
// "sole persister" open question.
func persistRouterResult(ctx context.Context, d Deps, threadID string, prior session.SlotMap, r router.Result) session.SlotMap {
	merged := slots.Normalize(slots.Map(prior), r.Slots, r.Intent)
	for _, k := range r.DeleteKeys {
		delete(merged, k)
	}

	put := session.SlotMap{}
	for k, v := range merged {
		put[k] = v
	}

	if err := d.Store.SetSlots(ctx, threadID, put, r.DeleteKeys); err != nil {
		d.logger().Warn("turn: set slots failed", "err", err)
	}

	return put
}

func seedMessages(d Deps, history []session.Message, plan *planner.Control, message string) []llms.Message {
	out := []llms.Message{{Role: "system", Content: d.systemPrompt()}}
	for _, h := range history {
		out = append(out, llms.Message{Role: string(h.Role), Content: h.Content, Name: h.Name, ToolCallID: h.ToolCallID})
	}
	if plan != nil {
		out = append(out, llms.Message{Role: "assistant", Content: "Plan: " + plan.Summary()})
	}
	out = append(out, llms.Message{Role: "user", Content: message})
	return out
}

func (d Deps) systemPrompt() string {
	if d.SystemPrompt != "" {
		return d.SystemPrompt
	}
	return "You are a helpful travel assistant. Use the available tools to answer questions about weather, destinations, attractions, flights, packing, and travel policy. Always cite sources for external facts."
}

func fallbackReply(ctx context.Context, d Deps, run actor.Run, message string, currentSlots session.SlotMap) string {
	if actor.ContainsWeatherKeywords(message) {
		city := currentSlots["city"]
		if city == "" {
			city = actor.ExtractCityGuess(message)
		}
		if city == "" {
			d.metrics().IncFallback("generic")
			return "I need a city or destination to help."
		}
		if spec, ok := d.Registry.Get(tool.NameWeather); ok {
			result, err := spec.Invoke(tool.Context{Ctx: ctx, Log: d.logger()}, map[string]any{"city": city})
			if err == nil && result.OK {
				d.metrics().IncFallback("weather")
				return result.Summary
			}
		}
	}
	d.metrics().IncFallback("generic")
	return "I need a city or destination to help."
}

func consentReply(answer string) string {
	if answer == "yes" {
		return "Got it, proceeding."
	}
	return "No problem, skipping that."
}

func deepResearchConsentPrompt() string {
	return "That's a detailed request — want me to do some deeper research before answering?"
}

func finishWithReply(ctx context.Context, d Deps, threadID, reply string, blended *blend.Result, decisions []string, wantReceipts bool) Result {
	if err := d.Store.AppendMsg(ctx, threadID, session.Message{Role: session.RoleAssistant, Content: reply}, 0); err != nil {
		d.logger().Warn("turn: append assistant message failed", "err", err)
	}

	result := Result{Reply: reply, ThreadID: threadID, Decisions: decisions}
	if blended != nil {
		result.Citations = blended.Citations
		result.Facts = blended.Facts
		result.Decisions = append([]string{}, blended.Decisions...)
	}

	if wantReceipts {
		r := Receipts{Decisions: result.Decisions}
		if blended != nil {
			r.Facts = blended.Facts
			r.SelfCheck = blended.SelfCheck
		} else {
			r.SelfCheck = blend.VerdictPass
		}
		result.Receipts = &r
	}

	return result
}

