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

package tool

import (
	"sort"
	"strings"

	"github.com/travelbot/orchestrator/pkg/registry"
)

// Required tool names per spec §4.3.
const (
	NameWeather                 = "weather"
	NameGetCountry               = "getCountry"
	NameGetAttractions           = "getAttractions"
	NameDestinationSuggest       = "destinationSuggest"
	NameAmadeusResolveCity       = "amadeusResolveCity"
	NameAmadeusAirportsForCity   = "amadeusAirportsForCity"
	NameAmadeusSearchFlights     = "amadeusSearchFlights"
	NameSearch                   = "search"
	NameDeepResearch             = "deepResearch"
	NameVectaraQuery             = "vectaraQuery"
	NameExtractPolicyWithCrawlee = "extractPolicyWithCrawlee"
	NamePNRParse                 = "pnrParse"
	NameIrropsProcess            = "irropsProcess"
	NamePackingSuggest           = "packingSuggest"
)

// Registry is the static mapping from tool name to Spec.
type Registry struct {
	base *registry.BaseRegistry[Spec]
}

// NewRegistry constructs an empty Tool Registry.
func NewRegistry() *Registry {
	return &Registry{base: registry.NewBaseRegistry[Spec]()}
}

// Register adds spec under its own name.
func (r *Registry) Register(spec Spec) error {
	return r.base.Register(spec.Name(), spec)
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Spec, bool) {
	return r.base.Get(name)
}

// All returns every registered tool, name-sorted for deterministic
// iteration (LLM prompts, metrics, tests).
func (r *Registry) All() []Spec {
	items := r.base.List()
	sort.Slice(items, func(i, j int) bool { return items[i].Name() < items[j].Name() })
	return items
}

// isAmadeus matches any tool in the "amadeus*" family named in
// spec §4.3's allowed-tools-for-route rule.
func isAmadeus(name string) bool {
	return strings.HasPrefix(name, "amadeus")
}

// routesExcludingAmadeus are the routes under which no amadeus* tool
// may be invoked (§4.3, tested invariant 4).
var routesExcludingAmadeus = map[string]bool{
	"destinations": true,
	"web":          true,
	"policy":       true,
	"visas":        true,
}

// AllowedForRoute filters the full registry down to the tools
// permitted for route, per spec §4.3:
//
//	destinations, web, policy, visas -> exclude amadeus*
//	packing                          -> exclude deepResearch
//	otherwise                        -> all tools
func (r *Registry) AllowedForRoute(route string) []Spec {
	all := r.All()
	out := make([]Spec, 0, len(all))
	for _, t := range all {
		if routesExcludingAmadeus[route] && isAmadeus(t.Name()) {
			continue
		}
		if route == "packing" && t.Name() == NameDeepResearch {
			continue
		}
		out = append(out, t)
	}
	return out
}

// JSONSchemas projects specs to their LLM function-calling schemas, in
// the same order.
func JSONSchemas(specs []Spec) []map[string]any {
	out := make([]map[string]any, len(specs))
	for i, s := range specs {
		out[i] = s.JSONSchema()
	}
	return out
}
