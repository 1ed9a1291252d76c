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
	"io"
	"net/http"
	"os"
	"regexp"
	"runtime"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/travelbot/orchestrator/pkg/tool"
)

// PolicyKB wraps an embedded chromem-go vector store holding visa,
// entry-requirement, and carrier-policy passages. It backs the
// "vectaraQuery" tool; the name is kept from the spec's original
// hosted-vector-search vendor even though the implementation here is
// local and embedded.
type PolicyKB struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// OpenPolicyKB opens (or creates) a persistent chromem-go store in
// dir, with collection holding policy passages. Embeddings are
// produced by chromem-go's default embedding function (OpenAI
// text-embedding-3-small, via OPENAI_API_KEY), matching how the
// examples pack's own chromem integration leaves embeddingFunc nil to
// fall back to the provider default.
func OpenPolicyKB(dir, collection string) (*PolicyKB, error) {
	var db *chromem.DB
	var err error
	if dir == "" {
		db = chromem.NewDB()
	} else {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return nil, fmt.Errorf("policy kb: create dir: %w", mkErr)
		}
		dbPath := dir + "/policy_kb.gob"
		db, err = chromem.NewPersistentDB(dbPath, true)
	}
	if err != nil {
		return nil, fmt.Errorf("policy kb: open: %w", err)
	}

	col, err := db.GetOrCreateCollection(collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("policy kb: collection: %w", err)
	}
	return &PolicyKB{db: db, collection: col}, nil
}

// IndexPassage adds (or updates, if id already exists) one policy
// passage to the knowledge base.
func (kb *PolicyKB) IndexPassage(ctx context.Context, id, content, source string) error {
	return kb.collection.AddDocuments(ctx, []chromem.Document{{
		ID:       id,
		Content:  content,
		Metadata: map[string]string{"source": source},
	}}, runtime.NumCPU())
}

// VectaraQueryArgs is the vectaraQuery tool's argument struct.
type VectaraQueryArgs struct {
	Query string `json:"query" jsonschema:"required,description=Policy or visa question to search the knowledge base for"`
}

// NewVectaraQueryTool builds the "vectaraQuery" tool against an
// embedded PolicyKB.
func NewVectaraQueryTool(kb *PolicyKB) (tool.Spec, error) {
	return tool.New(tool.Config{
		Name:           tool.NameVectaraQuery,
		Description:    "Searches the indexed visa and carrier policy knowledge base for passages relevant to a question.",
		DefaultTimeout: 5 * time.Second,
	}, func(tc tool.Context, args VectaraQueryArgs) (tool.Result, error) {
		if strings.TrimSpace(args.Query) == "" {
			return tool.Result{}, tool.NewInvokeError(tool.ErrClassValidation, fmt.Errorf("query is required"))
		}
		if kb == nil || kb.collection == nil {
			return tool.Result{OK: false, Reason: "knowledge_base_unavailable"}, nil
		}

		results, err := kb.collection.Query(tc.Ctx, args.Query, 3, nil, nil)
		if err != nil {
			return tool.Result{}, tool.NewInvokeError(tool.ErrClassOther, err)
		}
		if len(results) == 0 {
			return tool.Result{OK: false, Reason: "no_matching_passages"}, nil
		}

		var sb strings.Builder
		citations := make([]string, 0, len(results))
		for i, r := range results {
			if i > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString(r.Content)
			if src := r.Metadata["source"]; src != "" {
				citations = append(citations, src)
			}
		}

		return tool.Result{OK: true, Summary: sb.String(), Source: "policy-kb", Citations: citations}, nil
	})
}

var tagRE = regexp.MustCompile(`(?s)<[^>]*>`)
var whitespaceRE = regexp.MustCompile(`\s+`)

func stripHTML(body string) string {
	noTags := tagRE.ReplaceAllString(body, " ")
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(noTags, " "))
}

// ExtractPolicyWithCrawleeArgs is the extractPolicyWithCrawlee tool's
// argument struct.
type ExtractPolicyWithCrawleeArgs struct {
	URL string `json:"url" jsonschema:"required,description=URL of a carrier or government policy page to extract text from"`
}

// NewExtractPolicyWithCrawleeTool builds the
// "extractPolicyWithCrawlee" tool: a single-page fetch-and-strip
// extractor. The name is kept from the spec's original headless-
// browser crawler even though this implementation is a plain GET,
// since policy pages are static HTML and do not need JS rendering.
func NewExtractPolicyWithCrawleeTool(d Deps, minTimeout, maxTimeout time.Duration) (tool.Spec, error) {
	if minTimeout <= 0 {
		minTimeout = 5 * time.Second
	}
	if maxTimeout < minTimeout {
		maxTimeout = 30 * time.Second
	}
	return tool.New(tool.Config{
		Name:           tool.NameExtractPolicyWithCrawlee,
		Description:    "Fetches a policy page and extracts its visible text for citation.",
		DefaultTimeout: maxTimeout,
	}, func(tc tool.Context, args ExtractPolicyWithCrawleeArgs) (tool.Result, error) {
		if strings.TrimSpace(args.URL) == "" {
			return tool.Result{}, tool.NewInvokeError(tool.ErrClassValidation, fmt.Errorf("url is required"))
		}

		ctx, cancel := context.WithTimeout(tc.Ctx, maxTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, args.URL, nil)
		if err != nil {
			return tool.Result{}, tool.NewInvokeError(tool.ErrClassValidation, err)
		}
		req.Header.Set("User-Agent", "travelbot-policy-extractor/1.0")

		resp, err := d.HTTP.Do(req)
		if err != nil {
			return tool.Result{}, tool.NewInvokeError(tool.ErrClassTimeout, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
			return tool.Result{}, tool.NewInvokeError(tool.ErrClassHTTPBlock, fmt.Errorf("extractor blocked with %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return tool.Result{OK: false, Reason: "fetch_failed"}, nil
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return tool.Result{}, err
		}

		text := stripHTML(string(body))
		if len(text) > 2000 {
			text = text[:2000]
		}
		if text == "" {
			return tool.Result{OK: false, Reason: "empty_extraction"}, nil
		}

		return tool.Result{OK: true, Summary: text, Source: args.URL, Citations: []string{args.URL}}, nil
	})
}
