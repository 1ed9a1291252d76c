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

// PackingSuggestArgs is the packingSuggest tool's argument struct.
type PackingSuggestArgs struct {
	City           string `json:"city" jsonschema:"required,description=Destination city the trip is packing for"`
	Month          string `json:"month,omitempty" jsonschema:"description=Travel month, used to pick a climate band"`
	TemperatureC   float64 `json:"temperatureC,omitempty" jsonschema:"description=Known or forecast temperature in Celsius, if already available"`
	TripLengthDays int    `json:"tripLengthDays,omitempty" jsonschema:"description=Trip length in days, default 5"`
}

// packingBandFor classifies a temperature into one of four bands used
// to pick a base packing list.
func packingBandFor(tempC float64) string {
	switch {
	case tempC < 5:
		return "cold"
	case tempC < 16:
		return "mild"
	case tempC < 27:
		return "warm"
	default:
		return "hot"
	}
}

var baseItemsByBand = map[string][]string{
	"cold": {"insulated jacket", "thermal base layers", "wool socks", "gloves", "warm hat"},
	"mild": {"light jacket", "long-sleeve shirts", "layering sweater", "closed-toe shoes"},
	"warm": {"breathable shirts", "light trousers", "sunglasses", "sun hat"},
	"hot":  {"lightweight clothing", "sandals", "sunscreen", "sun hat", "refillable water bottle"},
}

// specialItemsFor adds month- and trip-length-driven extras beyond
// the climate-band base list.
func specialItemsFor(month string, tripLengthDays int) []string {
	items := make([]string, 0, 3)
	m := strings.ToLower(month)
	switch {
	case strings.Contains(m, "dec") || strings.Contains(m, "jan") || strings.Contains(m, "feb"):
		items = append(items, "travel umbrella")
	case strings.Contains(m, "jun") || strings.Contains(m, "jul") || strings.Contains(m, "aug"):
		items = append(items, "insect repellent")
	}
	if tripLengthDays > 10 {
		items = append(items, "laundry bag", "extra toiletry refills")
	}
	return items
}

// NewPackingSuggestTool builds the "packingSuggest" tool: pure
// climate-band logic over a known or supplied temperature, with no
// external dependency, since the weather tool is what supplies live
// temperature data upstream in the actor loop.
func NewPackingSuggestTool() (tool.Spec, error) {
	return tool.New(tool.Config{
		Name:           tool.NamePackingSuggest,
		Description:    "Suggests a packing list for a destination and month based on expected climate.",
		DefaultTimeout: 3 * time.Second,
	}, func(tc tool.Context, args PackingSuggestArgs) (tool.Result, error) {
		if args.City == "" {
			return tool.Result{}, tool.NewInvokeError(tool.ErrClassValidation, fmt.Errorf("city is required"))
		}
		tripLength := args.TripLengthDays
		if tripLength <= 0 {
			tripLength = 5
		}

		band := packingBandFor(args.TemperatureC)
		base := baseItemsByBand[band]
		special := specialItemsFor(args.Month, tripLength)

		all := make([]string, 0, len(base)+len(special))
		all = append(all, base...)
		all = append(all, special...)

		summary := fmt.Sprintf("%s climate for %s: pack %s", band, args.City, strings.Join(all, ", "))

		return tool.Result{
			OK:      true,
			Summary: summary,
			Payload: map[string]any{
				"packingBand":         band,
				"packingItemsBase":    base,
				"packingItemsSpecial": special,
			},
		}, nil
	})
}
