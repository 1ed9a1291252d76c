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

// Package ratelimit provides the process-wide, per-provider-family
// token-bucket limiter described in spec §5: one bucket per external
// provider family ("search", "weather", "amadeus", ...), shared across
// every turn and every goroutine in the process.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMinSpacing is the minimum inter-call spacing spec.md assigns
// each provider family absent a more specific override.
const DefaultMinSpacing = 100 * time.Millisecond

// Limiters is a process-wide singleton registry of one rate.Limiter
// per provider family, created lazily on first use.
type Limiters struct {
	mu       sync.Mutex
	families map[string]*rate.Limiter
	spacing  map[string]time.Duration
}

// New constructs an empty registry. spacing overrides the default
// inter-call spacing for named families; unnamed families fall back to
// DefaultMinSpacing.
func New(spacing map[string]time.Duration) *Limiters {
	return &Limiters{families: make(map[string]*rate.Limiter), spacing: spacing}
}

func (l *Limiters) get(family string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.families[family]; ok {
		return lim
	}
	spacing := l.spacing[family]
	if spacing <= 0 {
		spacing = DefaultMinSpacing
	}
	// One token every `spacing`, burst 1: calls are serialized at the
	// configured minimum spacing, matching "min N ms between starts".
	lim := rate.NewLimiter(rate.Every(spacing), 1)
	l.families[family] = lim
	return lim
}

// Wait blocks until family's bucket permits one more call, or ctx is
// cancelled first (e.g. by the turn or per-tool deadline).
func (l *Limiters) Wait(ctx context.Context, family string) error {
	return l.get(family).Wait(ctx)
}
