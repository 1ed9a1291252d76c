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

// Package ledger implements the Execution Ledger (§4.4): a per-turn
// instance that dedupes tool invocations within a turn and suppresses
// retries of recently-failed (tool, canonical-args) pairs across
// turns with kind-specific TTLs.
package ledger

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// TTLs holds the configurable suppression windows from spec §4.4 /
// env vars LEDGER_*_TTL_MS.
type TTLs struct {
	Success    time.Duration
	HTTPBlock  time.Duration // 403/429
	Validation time.Duration
	Other      time.Duration
}

// DefaultTTLs matches spec.md's literal defaults.
func DefaultTTLs() TTLs {
	return TTLs{
		Success:    300 * time.Second,
		HTTPBlock:  900 * time.Second,
		Validation: 300 * time.Second,
		Other:      120 * time.Second,
	}
}

// Outcome classifies a recorded invocation for TTL selection.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeHTTPBlock
	OutcomeValidation
	OutcomeOther
)

func (ttls TTLs) ttlFor(o Outcome) time.Duration {
	switch o {
	case OutcomeSuccess:
		return ttls.Success
	case OutcomeHTTPBlock:
		return ttls.HTTPBlock
	case OutcomeValidation:
		return ttls.Validation
	default:
		return ttls.Other
	}
}

type entry struct {
	outcome Outcome
	ts      time.Time
}

// Ledger is a per-turn, in-memory record of tool invocations. It is
// meant to be constructed fresh per turn and discarded afterward — the
// long-lived suppression state lives in the backing map passed to New,
// which callers keep process-wide (shared across turns) so that
// recently-failed calls stay suppressed across turns, per spec.
type Ledger struct {
	mu    sync.Mutex
	ttls  TTLs
	store map[string]entry // shared, process-wide outcome history
	seen  map[string]bool  // local to this turn: within-turn dedupe
}

// Shared is the process-wide outcome history the Ledger consults for
// cross-turn suppression. Construct one and reuse it across turns;
// construct a fresh Ledger per turn with the same Shared.
type Shared struct {
	mu    sync.Mutex
	store map[string]entry
}

// NewShared constructs an empty process-wide outcome store.
func NewShared() *Shared {
	return &Shared{store: make(map[string]entry)}
}

// New constructs a per-turn Ledger backed by shared's cross-turn
// outcome history.
func New(shared *Shared, ttls TTLs) *Ledger {
	return &Ledger{ttls: ttls, store: shared.store, seen: make(map[string]bool)}
}

// Canonical serializes args as a stable, key-sorted JSON form. Maps
// are recursively sorted; non-map args are passed through via a plain
// JSON marshal, which is already deterministic for scalars/slices.
func Canonical(args any) string {
	sorted := canonicalize(args)
	data, err := json.Marshal(sorted)
	if err != nil {
		// args must already be JSON-marshalable by construction
		// (tool args always are); on failure the empty string is returned.
		return ""
	}
	return string(data)
}

func canonicalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(orderedMap, 0, len(keys))
		for _, k := range keys {
			out = append(out, kv{k, canonicalize(val[k])})
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = canonicalize(e)
		}
		return out
	default:
		return v
	}
}

// orderedMap marshals as a JSON object preserving insertion order,
// which canonicalize has already sorted by key.
type kv struct {
	K string
	V any
}
type orderedMap []kv

func (m orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, pair := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(pair.K)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(pair.V)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}

func key(tool, canonicalArgs string) string { return tool + "\x00" + canonicalArgs }

// ShouldSkip reports whether (tool, canonicalArgs) has a recorded
// outcome still within its TTL window.
func (l *Ledger) ShouldSkip(tool, canonicalArgs string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.store[key(tool, canonicalArgs)]
	if !ok {
		return false
	}
	return time.Since(e.ts) < l.ttls.ttlFor(e.outcome)
}

// Finish records outcome for (tool, canonicalArgs) with the current
// time, superseding any prior entry.
func (l *Ledger) Finish(tool, canonicalArgs string, outcome Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.store[key(tool, canonicalArgs)] = entry{outcome: outcome, ts: time.Now()}
}

// SeenInTurn reports whether (tool, canonicalArgs) was already invoked
// earlier in this turn. Unlike ShouldSkip (cross-turn, TTL-based),
// this is a per-turn local set consulted first so a repeat of a call
// that already completed without error this turn is rejected
// regardless of ledger TTL state.
func (l *Ledger) SeenInTurn(tool, canonicalArgs string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seen[key(tool, canonicalArgs)]
}

// MarkSeen records (tool, canonicalArgs) as invoked this turn. The
// actor calls it only after the invocation returns without error, so a
// failed call is not in the seen set.
func (l *Ledger) MarkSeen(tool, canonicalArgs string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[key(tool, canonicalArgs)] = true
}
