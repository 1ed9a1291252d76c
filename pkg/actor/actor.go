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

// Package actor implements the multi-step function-calling Actor Loop
// (§4.8): each step lists route-allowed tools, calls the LLM, executes
// any function calls it emits under the Execution Ledger and route
// gating (fanning independent calls out concurrently), and iterates
// until a final assistant message or the step/time budget is spent.
package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/travelbot/orchestrator/pkg/ledger"
	"github.com/travelbot/orchestrator/pkg/llms"
	"github.com/travelbot/orchestrator/pkg/tool"
)

const (
	defaultMaxSteps = 6
	hardMaxSteps    = 12
	minStepBudget   = 1500 * time.Millisecond
	stepBudgetFloor = 1500 * time.Millisecond
	stepBudgetCeil  = 15 * time.Second
	stepBudgetSlack = 500 * time.Millisecond
)

// Metrics is the narrow counter interface the actor reports through;
// a nil Metrics is valid and every call becomes a no-op.
type Metrics interface {
	IncGatedSkip()
	IncParseFailure()
	IncDuplicateInTurn()
	IncSkippedByLedger()
}

// ToolOutcome records one executed (or short-circuited) tool call for
// Blend & Cite and for receipts/decisions.
type ToolOutcome struct {
	Tool    string
	Args    map[string]any
	Result  tool.Result
	Error   string // non-empty for a short-circuited or failed call
}

// Run is the Actor Loop's result: the final reply content (possibly
// empty, in which case the caller applies the weather-keyword or
// generic fallback), plus every tool outcome gathered along the way.
type Run struct {
	FinalReply string
	Outcomes   []ToolOutcome
	Decisions  []string
	StepsTaken int
}

// Deps bundles the Actor's collaborators.
type Deps struct {
	Transport llms.Transport
	Registry  *tool.Registry
	Ledger    *ledger.Ledger
	Log       *slog.Logger
	Metrics   Metrics
	MaxSteps  int
}

func (d Deps) maxSteps() int {
	n := d.MaxSteps
	if n <= 0 {
		n = defaultMaxSteps
	}
	if n > hardMaxSteps {
		n = hardMaxSteps
	}
	return n
}

func (d Deps) metrics() Metrics {
	if d.Metrics != nil {
		return d.Metrics
	}
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) IncGatedSkip()       {}
func (noopMetrics) IncParseFailure()    {}
func (noopMetrics) IncDuplicateInTurn() {}
func (noopMetrics) IncSkippedByLedger() {}

// Loop drives the multi-step function-calling loop. ctx carries the
// turn deadline; route selects the allowed-tools subset; messages is
// the seeded working message list (system prompt, optional context,
// optional plan echo, user message).
func Loop(ctx context.Context, d Deps, route string, deadline time.Time, messages []llms.Message) Run {
	run := Run{}
	activeTools := d.Registry.AllowedForRoute(route)
	toolDefs := toToolDefinitions(activeTools)

	for step := 0; step < d.maxSteps(); step++ {
		remaining := time.Until(deadline)
		if remaining < minStepBudget {
			run.Decisions = append(run.Decisions, "actor_budget_exhausted")
			break
		}

		stepTimeout := clamp(remaining-stepBudgetSlack, stepBudgetFloor, stepBudgetCeil)
		stepCtx, cancel := context.WithTimeout(ctx, stepTimeout)

		resp, err := d.Transport.ChatWithTools(stepCtx, llms.ChatWithToolsRequest{
			Messages: messages,
			Tools:    toolDefs,
			Timeout:  stepTimeout,
			Log:      d.Log,
		})
		cancel()

		run.StepsTaken = step + 1

		if err != nil {
			run.Decisions = append(run.Decisions, "actor_step_error")
			break
		}
		if len(resp.Choices) == 0 {
			break
		}
		assistantMsg := resp.Choices[0].Message

		if len(assistantMsg.ToolCalls) == 0 {
			run.FinalReply = assistantMsg.Content
			break
		}

		messages = append(messages, assistantMsg)
		outcomes, toolMessages := executeToolCalls(stepCtx, d, activeTools, assistantMsg.ToolCalls)
		run.Outcomes = append(run.Outcomes, outcomes...)
		messages = append(messages, toolMessages...)
	}

	return run
}

func toToolDefinitions(specs []tool.Spec) []llms.ToolDefinition {
	out := make([]llms.ToolDefinition, len(specs))
	for i, s := range specs {
		schema := s.JSONSchema()
		fn, _ := schema["function"].(map[string]any)
		params, _ := fn["parameters"].(map[string]any)
		out[i] = llms.ToolDefinition{Name: s.Name(), Description: s.Description(), Parameters: params}
	}
	return out
}

func clamp(d, floor, ceil time.Duration) time.Duration {
	if d < floor {
		return floor
	}
	if d > ceil {
		return ceil
	}
	return d
}

// executeToolCalls runs every call in the batch concurrently (bounded
// implicitly by the shared rate limiter inside each tool's Deps),
// preserving the LLM's emission order in the returned tool-role
// messages, per §4.8/§5.
func executeToolCalls(ctx context.Context, d Deps, activeTools []tool.Spec, calls []llms.ToolCall) ([]ToolOutcome, []llms.Message) {
	allowed := make(map[string]tool.Spec, len(activeTools))
	for _, s := range activeTools {
		allowed[s.Name()] = s
	}

	outcomes := make([]ToolOutcome, len(calls))
	messages := make([]llms.Message, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	batchSeen := make(map[string]bool, len(calls))
	for i, call := range calls {
		i, call := i, call
		batchKey := call.Name + "\x00" + ledger.Canonical(call.Arguments)
		if batchSeen[batchKey] {
			d.metrics().IncDuplicateInTurn()
			outcomes[i] = ToolOutcome{Tool: call.Name, Args: call.Arguments, Error: "duplicate_in_turn"}
			messages[i] = errorToolMessage(call, `{"ok":false,"error":"duplicate_in_turn"}`)
			continue
		}
		batchSeen[batchKey] = true
		g.Go(func() error {
			outcome, msg := runOneCall(gctx, d, allowed, call)
			outcomes[i] = outcome
			messages[i] = msg
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, messages
}

func runOneCall(ctx context.Context, d Deps, allowed map[string]tool.Spec, call llms.ToolCall) (ToolOutcome, llms.Message) {
	outcome := ToolOutcome{Tool: call.Name, Args: call.Arguments}

	spec, registered := d.Registry.Get(call.Name)
	if !registered {
		outcome.Error = "unknown_tool"
		return outcome, errorToolMessage(call, `{"ok":false,"reason":"unknown_tool"}`)
	}

	if _, isAllowed := allowed[call.Name]; !isAllowed {
		d.metrics().IncGatedSkip()
		outcome.Error = "gated_by_route"
		return outcome, errorToolMessage(call, `{"ok":false,"error":"gated_by_route"}`)
	}

	canonical := ledger.Canonical(call.Arguments)
	if d.Ledger.SeenInTurn(call.Name, canonical) {
		d.metrics().IncDuplicateInTurn()
		outcome.Error = "duplicate_in_turn"
		return outcome, errorToolMessage(call, `{"ok":false,"error":"duplicate_in_turn"}`)
	}
	if d.Ledger.ShouldSkip(call.Name, canonical) {
		d.metrics().IncSkippedByLedger()
		outcome.Error = "skipped_by_ledger"
		return outcome, errorToolMessage(call, `{"ok":false,"error":"skipped_by_ledger"}`)
	}

	callCtx, cancel := context.WithTimeout(ctx, spec.DefaultTimeout())
	defer cancel()
	result, err := spec.Invoke(tool.Context{Ctx: callCtx, Log: d.Log}, call.Arguments)
	if err != nil {
		outcome.Error = classifyError(err)
		d.Ledger.Finish(call.Name, canonical, outcomeForError(err))
		if outcome.Error == "validation" {
			d.metrics().IncParseFailure()
		}
		return outcome, errorToolMessage(call, fmt.Sprintf(`{"ok":false,"error":%q}`, outcome.Error))
	}

	d.Ledger.MarkSeen(call.Name, canonical)
	if result.OK {
		d.Ledger.Finish(call.Name, canonical, ledger.OutcomeSuccess)
	} else {
		d.Ledger.Finish(call.Name, canonical, ledger.OutcomeOther)
	}

	outcome.Result = result
	encoded, _ := json.Marshal(result)
	return outcome, llms.Message{Role: "tool", Content: string(encoded), ToolCallID: call.ID, Name: call.Name}
}

func errorToolMessage(call llms.ToolCall, payload string) llms.Message {
	return llms.Message{Role: "tool", Content: payload, ToolCallID: call.ID, Name: call.Name}
}

func classifyError(err error) string {
	var ie *tool.InvokeError
	if asInvokeError(err, &ie) {
		switch ie.Class {
		case tool.ErrClassTimeout:
			return "timeout"
		case tool.ErrClassHTTPBlock:
			return "http_block"
		case tool.ErrClassHTTP5xx:
			return "http_5xx"
		case tool.ErrClassHTTP4xx:
			return "http_4xx"
		case tool.ErrClassValidation:
			return "validation"
		}
	}
	return "other"
}

func asInvokeError(err error, target **tool.InvokeError) bool {
	for err != nil {
		if ie, ok := err.(*tool.InvokeError); ok {
			*target = ie
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return false
}

func outcomeForError(err error) ledger.Outcome {
	var ie *tool.InvokeError
	if asInvokeError(err, &ie) {
		switch ie.Class {
		case tool.ErrClassHTTPBlock:
			return ledger.OutcomeHTTPBlock
		case tool.ErrClassValidation:
			return ledger.OutcomeValidation
		}
	}
	return ledger.OutcomeOther
}

var weatherKeywordsRE = regexp.MustCompile(`(?i)\bweather\b|\btemperature\b|\bforecast\b|\brain\b|\bsnow\b|\bhot\b|\bcold\b`)

// ContainsWeatherKeywords reports whether message should trigger the
// post-loop weather fallback when the actor produced no final reply.
func ContainsWeatherKeywords(message string) bool {
	return weatherKeywordsRE.MatchString(message)
}

// ExtractCityGuess does a best-effort "in <City>" extraction for the
// weather fallback path, when no router-extracted city slot exists.
func ExtractCityGuess(message string) string {
	re := regexp.MustCompile(`(?i)\bin\s+([A-Z][a-zA-Z]+(?:\s[A-Z][a-zA-Z]+)?)\b`)
	m := re.FindStringSubmatch(message)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}
