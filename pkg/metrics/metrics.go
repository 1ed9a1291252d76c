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

// Package metrics collects the counters §6.1's GET /metrics snapshot
// projects, on a private prometheus registry so the module never
// pollutes the default global one.
package metrics

import (
	"sync"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/travelbot/orchestrator/pkg/actor"
)

// Metrics owns a private prometheus registry plus the vector counters
// the Chat API's JSON snapshot is built from, and doubles as the
// actor.Metrics implementation the Actor Loop reports gated/parse/
// duplicate/ledger events through.
type Metrics struct {
	registry *prometheus.Registry

	messagesTotal            prometheus.Counter
	chatTurns                *prometheus.CounterVec
	routerLowConf            *prometheus.CounterVec
	clarifyRequests          *prometheus.CounterVec
	fallbacks                *prometheus.CounterVec
	answersWithCitations     prometheus.Counter
	gatedSkipTotal           prometheus.Counter
	parseFailureTotal        prometheus.Counter
	duplicateInTurnTotal     prometheus.Counter
	skippedByLedgerTotal     prometheus.Counter

	mu sync.Mutex
}

// New constructs a Metrics instance registered against a fresh,
// private prometheus.Registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		messagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "travelbot_messages_total",
			Help: "Total chat messages received.",
		}),
		chatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "travelbot_chat_turns_total",
			Help: "Completed chat turns by router intent.",
		}, []string{"intent"}),
		routerLowConf: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "travelbot_router_low_confidence_total",
			Help: "Router decisions below the confident threshold, by intent.",
		}, []string{"intent"}),
		clarifyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "travelbot_clarify_requests_total",
			Help: "Clarification prompts issued, by key.",
		}, []string{"key"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "travelbot_fallbacks_total",
			Help: "Fallback replies issued, by kind.",
		}, []string{"kind"}),
		answersWithCitations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "travelbot_answers_with_citations_total",
			Help: "Replies that carried at least one citation.",
		}),
		gatedSkipTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "travelbot_actor_gated_skip_total",
			Help: "Tool calls skipped because the route gated them out.",
		}),
		parseFailureTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "travelbot_actor_arg_parse_failure_total",
			Help: "Tool calls whose arguments failed schema validation.",
		}),
		duplicateInTurnTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "travelbot_actor_duplicate_in_turn_total",
			Help: "Tool calls rejected as a within-turn duplicate.",
		}),
		skippedByLedgerTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "travelbot_actor_skipped_by_ledger_total",
			Help: "Tool calls suppressed by the execution ledger's TTL.",
		}),
	}

	reg.MustRegister(
		m.messagesTotal, m.chatTurns, m.routerLowConf, m.clarifyRequests,
		m.fallbacks, m.answersWithCitations, m.gatedSkipTotal,
		m.parseFailureTotal, m.duplicateInTurnTotal, m.skippedByLedgerTotal,
	)
	return m
}

// Registry exposes the private registry for a Prometheus-format
// /metrics endpoint, should one be added alongside the JSON snapshot.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// IncMessage records one received chat message.
func (m *Metrics) IncMessage() { m.messagesTotal.Inc() }

// IncChatTurn records one completed turn for intent.
func (m *Metrics) IncChatTurn(intent string) { m.chatTurns.WithLabelValues(intent).Inc() }

// IncRouterLowConf records a below-threshold router decision.
func (m *Metrics) IncRouterLowConf(intent string) { m.routerLowConf.WithLabelValues(intent).Inc() }

// IncClarifyRequest records a clarification prompt by key (e.g.
// "flight_clarification", "deep_research_consent").
func (m *Metrics) IncClarifyRequest(key string) { m.clarifyRequests.WithLabelValues(key).Inc() }

// IncFallback records a fallback reply by kind (e.g. "weather",
// "generic").
func (m *Metrics) IncFallback(kind string) { m.fallbacks.WithLabelValues(kind).Inc() }

// IncAnswerWithCitations records a reply that carried a citation.
func (m *Metrics) IncAnswerWithCitations() { m.answersWithCitations.Inc() }

// IncGatedSkip implements actor.Metrics.
func (m *Metrics) IncGatedSkip() { m.gatedSkipTotal.Inc() }

// IncParseFailure implements actor.Metrics.
func (m *Metrics) IncParseFailure() { m.parseFailureTotal.Inc() }

// IncDuplicateInTurn implements actor.Metrics.
func (m *Metrics) IncDuplicateInTurn() { m.duplicateInTurnTotal.Inc() }

// IncSkippedByLedger implements actor.Metrics.
func (m *Metrics) IncSkippedByLedger() { m.skippedByLedgerTotal.Inc() }

var _ actor.Metrics = (*Metrics)(nil)

// Snapshot is the §6.1 GET /metrics JSON shape.
type Snapshot struct {
	MessagesTotal            float64            `json:"messages_total"`
	ChatTurns                map[string]float64 `json:"chat_turns"`
	RouterLowConf            map[string]float64 `json:"router_low_conf"`
	ClarifyRequests          map[string]float64 `json:"clarify_requests"`
	Fallbacks                map[string]float64 `json:"fallbacks"`
	AnswersWithCitationsTotal float64           `json:"answers_with_citations_total"`
}

// Snapshot gathers the current counter values into the JSON shape
// GET /metrics returns, walking the private registry's families
// rather than keeping a second parallel set of plain counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	families, err := m.registry.Gather()
	if err != nil {
		return Snapshot{ChatTurns: map[string]float64{}, RouterLowConf: map[string]float64{}, ClarifyRequests: map[string]float64{}, Fallbacks: map[string]float64{}}
	}

	snap := Snapshot{
		ChatTurns:       map[string]float64{},
		RouterLowConf:   map[string]float64{},
		ClarifyRequests: map[string]float64{},
		Fallbacks:       map[string]float64{},
	}

	for _, fam := range families {
		switch fam.GetName() {
		case "travelbot_messages_total":
			snap.MessagesTotal = sumCounter(fam)
		case "travelbot_answers_with_citations_total":
			snap.AnswersWithCitationsTotal = sumCounter(fam)
		case "travelbot_chat_turns_total":
			collectLabeled(fam, "intent", snap.ChatTurns)
		case "travelbot_router_low_confidence_total":
			collectLabeled(fam, "intent", snap.RouterLowConf)
		case "travelbot_clarify_requests_total":
			collectLabeled(fam, "key", snap.ClarifyRequests)
		case "travelbot_fallbacks_total":
			collectLabeled(fam, "kind", snap.Fallbacks)
		}
	}
	return snap
}

func sumCounter(fam *dto.MetricFamily) float64 {
	var total float64
	for _, metric := range fam.GetMetric() {
		total += metric.GetCounter().GetValue()
	}
	return total
}

func collectLabeled(fam *dto.MetricFamily, labelName string, out map[string]float64) {
	for _, metric := range fam.GetMetric() {
		value := metric.GetCounter().GetValue()
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == labelName {
				out[lp.GetValue()] = value
			}
		}
	}
}
