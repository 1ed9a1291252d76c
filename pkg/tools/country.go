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
	"net/url"
	"strings"
	"time"

	"github.com/travelbot/orchestrator/pkg/tool"
)

// GetCountryArgs is the getCountry tool's argument struct.
type GetCountryArgs struct {
	Country string `json:"country" jsonschema:"required,description=Country name to look up facts for"`
}

type restCountry struct {
	Name struct {
		Common string `json:"common"`
	} `json:"name"`
	Capital    []string          `json:"capital"`
	Region     string            `json:"region"`
	Currencies map[string]any    `json:"currencies"`
	Languages  map[string]string `json:"languages"`
}

// NewGetCountryTool builds the "getCountry" tool against the free
// restcountries.com API, grounded on the same GET-and-summarize shape
// as NewWeatherTool.
func NewGetCountryTool(d Deps) (tool.Spec, error) {
	return tool.New(tool.Config{
		Name:           tool.NameGetCountry,
		Description:    "Looks up basic facts about a country: capital, region, currency, and languages.",
		DefaultTimeout: 7 * time.Second,
	}, func(tc tool.Context, args GetCountryArgs) (tool.Result, error) {
		if args.Country == "" {
			return tool.Result{}, tool.NewInvokeError(tool.ErrClassValidation, fmt.Errorf("country is required"))
		}

		var countries []restCountry
		reqURL := "https://restcountries.com/v3.1/name/" + url.QueryEscape(args.Country) + "?fields=name,capital,region,currencies,languages"
		if err := d.getJSON(tc.Ctx, "getCountry", reqURL, nil, &countries); err != nil {
			return tool.Result{}, err
		}
		if len(countries) == 0 {
			return tool.Result{OK: false, Reason: "country_not_found"}, nil
		}
		c := countries[0]

		capital := "unknown"
		if len(c.Capital) > 0 {
			capital = c.Capital[0]
		}
		langs := make([]string, 0, len(c.Languages))
		for _, l := range c.Languages {
			langs = append(langs, l)
		}
		currencyCodes := make([]string, 0, len(c.Currencies))
		for code := range c.Currencies {
			currencyCodes = append(currencyCodes, code)
		}

		summary := fmt.Sprintf("%s — capital %s, region %s, currency %s, languages: %s",
			c.Name.Common, capital, c.Region, strings.Join(currencyCodes, "/"), strings.Join(langs, ", "))

		return tool.Result{
			OK:      true,
			Summary: summary,
			Source:  "restcountries.com",
			Payload: map[string]any{
				"capital":   capital,
				"region":    c.Region,
				"currency":  currencyCodes,
				"languages": langs,
			},
		}, nil
	})
}
