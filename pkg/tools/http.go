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

// Package tools implements the concrete ToolSpec catalog spec §4.3
// names: weather, getCountry, getAttractions, destinationSuggest, the
// amadeus* flight tools, search, deepResearch, vectaraQuery,
// extractPolicyWithCrawlee, pnrParse, irropsProcess, and
// packingSuggest. Each is registered into a pkg/tool.Registry by
// RegisterAll.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/travelbot/orchestrator/pkg/ratelimit"
	"github.com/travelbot/orchestrator/pkg/tool"
)

// Deps bundles the shared infrastructure every concrete tool needs:
// an HTTP client, the process-wide rate limiter registry, and the
// retry policy for idempotent GETs. Individual tools add their own
// API keys/URLs as fields here.
type Deps struct {
	HTTP     *http.Client
	Limiters *ratelimit.Limiters
	Retry    ratelimit.RetryPolicy

	AmadeusBaseURL     string
	AmadeusClientID    string
	AmadeusSecret      string
	SearchAPIURL       string
	SearchAPIKey       string
	PolicyKBPath       string // chromem-go persistence directory
	PolicyKBCollection string
}

// DefaultDeps fills in a usable Deps with a bounded HTTP client and
// the default rate limiter/retry policy; callers still need to supply
// provider URLs/keys from config.
func DefaultDeps() Deps {
	return Deps{
		HTTP:     &http.Client{Timeout: 20 * time.Second},
		Limiters: ratelimit.New(nil),
		Retry:    ratelimit.DefaultRetryPolicy(),
	}
}

// getJSON performs a rate-limited, retried GET against url, decoding
// the JSON body into out. family selects the shared rate-limiter
// bucket (e.g. "weather", "amadeus").
func (d Deps) getJSON(ctx context.Context, family, url string, headers map[string]string, out any) error {
	if err := d.Limiters.Wait(ctx, family); err != nil {
		return tool.NewInvokeError(tool.ErrClassTimeout, err)
	}

	_, err := d.Retry.Do(ctx, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := d.HTTP.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
			return nil, tool.NewInvokeError(tool.ErrClassHTTPBlock, fmt.Errorf("provider returned %d", resp.StatusCode))
		}
		if resp.StatusCode >= 500 {
			return nil, tool.NewInvokeError(tool.ErrClassHTTP5xx, fmt.Errorf("provider returned %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return nil, tool.NewInvokeError(tool.ErrClassHTTP4xx, fmt.Errorf("provider returned %d", resp.StatusCode))
		}
		return nil, json.Unmarshal(body, out)
	})
	return err
}
