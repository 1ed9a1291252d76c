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

package tools

import (
	"fmt"
	"strings"
	"time"

	"github.com/travelbot/orchestrator/pkg/tool"
)

// DestinationSuggestArgs is the destinationSuggest tool's argument
// struct: a loose brief of traveler preferences rather than a single
// named city, since the whole point is to suggest one.
type DestinationSuggestArgs struct {
	Region  string `json:"region,omitempty" jsonschema:"description=Preferred region or continent, e.g. Southeast Asia"`
	Month   string `json:"month,omitempty" jsonschema:"description=Preferred travel month or season"`
	Vibe    string `json:"vibe,omitempty" jsonschema:"description=Trip style, e.g. relaxing beach, adventure, city break"`
	Budget  string `json:"budget,omitempty" jsonschema:"description=Rough budget level, e.g. budget, mid-range, luxury"`
}

// NewDestinationSuggestTool builds the "destinationSuggest" tool,
// implemented as a scoped web search over the traveler's stated
// preferences.
func NewDestinationSuggestTool(d Deps) (tool.Spec, error) {
	return tool.New(tool.Config{
		Name:           tool.NameDestinationSuggest,
		Description:    "Suggests candidate travel destinations matching a region, month, vibe, and/or budget.",
		DefaultTimeout: 8 * time.Second,
	}, func(tc tool.Context, args DestinationSuggestArgs) (tool.Result, error) {
		parts := make([]string, 0, 4)
		if args.Vibe != "" {
			parts = append(parts, args.Vibe)
		}
		parts = append(parts, "destinations")
		if args.Region != "" {
			parts = append(parts, "in "+args.Region)
		}
		if args.Month != "" {
			parts = append(parts, "in "+args.Month)
		}
		if args.Budget != "" {
			parts = append(parts, "for a "+args.Budget+" budget")
		}
		query := strings.Join(parts, " ")
		if strings.TrimSpace(query) == "destinations" {
			return tool.Result{}, tool.NewInvokeError(tool.ErrClassValidation, fmt.Errorf("at least one of region, month, vibe, or budget is required"))
		}

		hits, err := d.runSearch(tc.Ctx, "destinations", query, 6)
		if err != nil {
			return tool.Result{}, err
		}
		if len(hits) == 0 {
			return tool.Result{OK: false, Reason: "no_results"}, nil
		}

		names := make([]string, 0, len(hits))
		citations := make([]string, 0, len(hits))
		for _, h := range hits {
			names = append(names, h.Title)
			citations = append(citations, h.URL)
		}

		return tool.Result{OK: true, Summary: strings.Join(names, ", "), Source: hits[0].URL, Citations: citations}, nil
	})
}
