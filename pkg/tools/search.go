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
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/travelbot/orchestrator/pkg/tool"
)

type searchHit struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Snippet string `json:"snippet"`
}

type searchAPIResponse struct {
	Results []searchHit `json:"results"`
}

// runSearch queries d.SearchAPIURL (a generic "?q=...&key=..." JSON
// search endpoint such as a Tavily/Serper-compatible gateway) and
// returns the top n hits.
func (d Deps) runSearch(ctx context.Context, family, query string, n int) ([]searchHit, error) {
	reqURL := d.SearchAPIURL + "?q=" + url.QueryEscape(query)
	if d.SearchAPIKey != "" {
		reqURL += "&key=" + url.QueryEscape(d.SearchAPIKey)
	}
	var resp searchAPIResponse
	if err := d.getJSON(ctx, family, reqURL, nil, &resp); err != nil {
		return nil, err
	}
	if n > 0 && len(resp.Results) > n {
		resp.Results = resp.Results[:n]
	}
	return resp.Results, nil
}

// SearchArgs is the search tool's argument struct.
type SearchArgs struct {
	Query string `json:"query" jsonschema:"required,description=Free-form web search query"`
}

// NewSearchTool builds the general-purpose "search" tool: a single
// shallow web query returning a handful of titled snippets with
// source URLs for citation.
func NewSearchTool(d Deps) (tool.Spec, error) {
	return tool.New(tool.Config{
		Name:           tool.NameSearch,
		Description:    "Runs a shallow web search and returns a handful of titled results with source URLs.",
		DefaultTimeout: 9 * time.Second,
	}, func(tc tool.Context, args SearchArgs) (tool.Result, error) {
		if strings.TrimSpace(args.Query) == "" {
			return tool.Result{}, tool.NewInvokeError(tool.ErrClassValidation, fmt.Errorf("query is required"))
		}
		hits, err := d.runSearch(tc.Ctx, "search", args.Query, 5)
		if err != nil {
			return tool.Result{}, err
		}
		if len(hits) == 0 {
			return tool.Result{OK: false, Reason: "no_results"}, nil
		}

		var sb strings.Builder
		citations := make([]string, 0, len(hits))
		for i, h := range hits {
			if i > 0 {
				sb.WriteString("; ")
			}
			sb.WriteString(h.Title)
			citations = append(citations, h.URL)
		}

		return tool.Result{OK: true, Summary: sb.String(), Source: hits[0].URL, Citations: citations}, nil
	})
}

// DeepResearchArgs is the deepResearch tool's argument struct. It
// differs from SearchArgs only in intent (a broader, multi-query
// sweep performed server-side by the search backend), not in shape.
type DeepResearchArgs struct {
	Query string `json:"query" jsonschema:"required,description=Research question to investigate in depth across multiple sources"`
}

// NewDeepResearchTool builds the "deepResearch" tool: a slower, wider
// sweep than "search", reserved for consent-gated complex queries
// (§4.6). Implemented against the same search backend with a larger
// result cap and longer default deadline.
func NewDeepResearchTool(d Deps) (tool.Spec, error) {
	return tool.New(tool.Config{
		Name:           tool.NameDeepResearch,
		Description:    "Runs a deeper multi-angle web research sweep for complex questions; slower than search, used only with user consent.",
		DefaultTimeout: 15 * time.Second,
	}, func(tc tool.Context, args DeepResearchArgs) (tool.Result, error) {
		if strings.TrimSpace(args.Query) == "" {
			return tool.Result{}, tool.NewInvokeError(tool.ErrClassValidation, fmt.Errorf("query is required"))
		}
		hits, err := d.runSearch(tc.Ctx, "search", "in depth: "+args.Query, 8)
		if err != nil {
			return tool.Result{}, err
		}
		if len(hits) == 0 {
			return tool.Result{OK: false, Reason: "no_results"}, nil
		}

		var sb strings.Builder
		citations := make([]string, 0, len(hits))
		for i, h := range hits {
			if i > 0 {
				sb.WriteString("; ")
			}
			sb.WriteString(h.Title)
			if h.Snippet != "" {
				sb.WriteString(" — ")
				sb.WriteString(h.Snippet)
			}
			citations = append(citations, h.URL)
		}

		return tool.Result{OK: true, Summary: sb.String(), Source: hits[0].URL, Citations: citations}, nil
	})
}
