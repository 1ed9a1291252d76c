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

// GetAttractionsArgs is the getAttractions tool's argument struct.
type GetAttractionsArgs struct {
	City     string `json:"city" jsonschema:"required,description=City to list points of interest for"`
	Category string `json:"category,omitempty" jsonschema:"description=Optional narrowing such as museums, outdoors, nightlife"`
}

// NewGetAttractionsTool builds the "getAttractions" tool: a
// points-of-interest lookup implemented as a scoped web search, since
// no single free structured POI API covers every city in the catalog.
func NewGetAttractionsTool(d Deps) (tool.Spec, error) {
	return tool.New(tool.Config{
		Name:           tool.NameGetAttractions,
		Description:    "Lists notable points of interest and attractions for a city, optionally narrowed by category.",
		DefaultTimeout: 8 * time.Second,
	}, func(tc tool.Context, args GetAttractionsArgs) (tool.Result, error) {
		if args.City == "" {
			return tool.Result{}, tool.NewInvokeError(tool.ErrClassValidation, fmt.Errorf("city is required"))
		}
		query := "top attractions in " + args.City
		if args.Category != "" {
			query = args.Category + " attractions in " + args.City
		}

		hits, err := d.runSearch(tc.Ctx, "attractions", query, 6)
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

		return tool.Result{
			OK:        true,
			Summary:   strings.Join(names, ", "),
			Source:    hits[0].URL,
			Citations: citations,
		}, nil
	})
}
