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
	"time"

	"github.com/travelbot/orchestrator/pkg/tool"
)

// RegisterAll constructs and registers the full §4.3 tool catalog
// into reg. kb may be nil, in which case vectaraQuery reports
// knowledge_base_unavailable rather than failing to register.
func RegisterAll(reg *tool.Registry, d Deps, kb *PolicyKB, policyExtractMinTimeout, policyExtractMaxTimeout time.Duration) error {
	builders := []func() (tool.Spec, error){
		func() (tool.Spec, error) { return NewWeatherTool(d) },
		func() (tool.Spec, error) { return NewGetCountryTool(d) },
		func() (tool.Spec, error) { return NewGetAttractionsTool(d) },
		func() (tool.Spec, error) { return NewDestinationSuggestTool(d) },
		func() (tool.Spec, error) { return NewAmadeusResolveCityTool(d) },
		func() (tool.Spec, error) { return NewAmadeusAirportsForCityTool(d) },
		func() (tool.Spec, error) { return NewAmadeusSearchFlightsTool(d) },
		func() (tool.Spec, error) { return NewSearchTool(d) },
		func() (tool.Spec, error) { return NewDeepResearchTool(d) },
		func() (tool.Spec, error) { return NewVectaraQueryTool(kb) },
		func() (tool.Spec, error) { return NewExtractPolicyWithCrawleeTool(d, policyExtractMinTimeout, policyExtractMaxTimeout) },
		func() (tool.Spec, error) { return NewPNRParseTool() },
		func() (tool.Spec, error) { return NewIrropsProcessTool() },
		func() (tool.Spec, error) { return NewPackingSuggestTool() },
	}

	for _, build := range builders {
		spec, err := build()
		if err != nil {
			return fmt.Errorf("tools: build: %w", err)
		}
		if err := reg.Register(spec); err != nil {
			return fmt.Errorf("tools: register %s: %w", spec.Name(), err)
		}
	}
	return nil
}
