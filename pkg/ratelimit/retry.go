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

package ratelimit

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy is the shared exponential-backoff instance spec §5
// names: initial 200ms, max 2000ms, capped at 2-3 attempts, applied
// only to tools that declare their GET calls safe to retry.
type RetryPolicy struct {
	MaxAttempts uint
	Initial     time.Duration
	Max         time.Duration
}

// DefaultRetryPolicy matches spec.md's literal defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Initial: 200 * time.Millisecond, Max: 2 * time.Second}
}

// Do runs fn, retrying on error up to MaxAttempts with exponential
// backoff, honoring ctx cancellation between attempts. Only call this
// around an idempotent GET — POSTs or mutating calls must not retry.
func (p RetryPolicy) Do(ctx context.Context, fn func() (any, error)) (any, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.MaxInterval = p.Max

	return backoff.Retry(ctx, func() (any, error) {
		return fn()
	}, backoff.WithBackOff(b), backoff.WithMaxTries(p.MaxAttempts))
}
