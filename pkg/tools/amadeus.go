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
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/travelbot/orchestrator/pkg/tool"
)

// amadeusToken caches the self-service OAuth2 client-credentials token
// so every amadeus* tool call in the process shares one bearer token
// until it expires, instead of re-authenticating per call.
type amadeusToken struct {
	mu      sync.Mutex
	value   string
	expires time.Time
}

var sharedAmadeusToken amadeusToken

func (d Deps) amadeusBearer(ctx context.Context) (string, error) {
	sharedAmadeusToken.mu.Lock()
	defer sharedAmadeusToken.mu.Unlock()

	if sharedAmadeusToken.value != "" && time.Now().Before(sharedAmadeusToken.expires) {
		return sharedAmadeusToken.value, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", d.AmadeusClientID)
	form.Set("client_secret", d.AmadeusSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.AmadeusBaseURL+"/v1/security/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", tool.NewInvokeError(tool.ErrClassHTTP4xx, fmt.Errorf("amadeus auth returned %d", resp.StatusCode))
	}

	sharedAmadeusToken.value = out.AccessToken
	sharedAmadeusToken.expires = time.Now().Add(time.Duration(out.ExpiresIn-30) * time.Second)
	return out.AccessToken, nil
}

func (d Deps) amadeusGet(ctx context.Context, path string, out any) error {
	token, err := d.amadeusBearer(ctx)
	if err != nil {
		return err
	}
	return d.getJSON(ctx, "amadeus", d.AmadeusBaseURL+path, map[string]string{"Authorization": "Bearer " + token}, out)
}

// AmadeusResolveCityArgs is the amadeusResolveCity tool's argument
// struct: a free-form city name to resolve to an IATA city code.
type AmadeusResolveCityArgs struct {
	City string `json:"city" jsonschema:"required,description=City name to resolve to an IATA city code"`
}

type amadeusLocationsResponse struct {
	Data []struct {
		IataCode string `json:"iataCode"`
		Name     string `json:"name"`
		Address  struct {
			CityName    string `json:"cityName"`
			CountryName string `json:"countryName"`
		} `json:"address"`
	} `json:"data"`
}

// NewAmadeusResolveCityTool builds the "amadeusResolveCity" tool
// against the Amadeus Self-Service "Airport & City Search" API.
func NewAmadeusResolveCityTool(d Deps) (tool.Spec, error) {
	return tool.New(tool.Config{
		Name:           tool.NameAmadeusResolveCity,
		Description:    "Resolves a free-form city name to an IATA city code via Amadeus location search.",
		DefaultTimeout: 7 * time.Second,
	}, func(tc tool.Context, args AmadeusResolveCityArgs) (tool.Result, error) {
		if args.City == "" {
			return tool.Result{}, tool.NewInvokeError(tool.ErrClassValidation, fmt.Errorf("city is required"))
		}

		var resp amadeusLocationsResponse
		path := "/v1/reference-data/locations?subType=CITY&keyword=" + url.QueryEscape(args.City)
		if err := d.amadeusGet(tc.Ctx, path, &resp); err != nil {
			return tool.Result{}, err
		}
		if len(resp.Data) == 0 {
			return tool.Result{OK: false, Reason: "city_not_found"}, nil
		}
		loc := resp.Data[0]

		return tool.Result{
			OK:      true,
			Summary: fmt.Sprintf("%s resolves to city code %s (%s)", args.City, loc.IataCode, loc.Address.CountryName),
			Source:  "amadeus.com",
			Payload: map[string]any{"cityCode": loc.IataCode, "cityName": loc.Address.CityName},
		}, nil
	})
}

// AmadeusAirportsForCityArgs is the amadeusAirportsForCity tool's
// argument struct.
type AmadeusAirportsForCityArgs struct {
	CityCode string `json:"cityCode" jsonschema:"required,description=IATA city code, typically from amadeusResolveCity"`
}

type amadeusAirportsResponse struct {
	Data []struct {
		IataCode string `json:"iataCode"`
		Name     string `json:"name"`
	} `json:"data"`
}

// NewAmadeusAirportsForCityTool builds the "amadeusAirportsForCity"
// tool, listing every airport served within a city code.
func NewAmadeusAirportsForCityTool(d Deps) (tool.Spec, error) {
	return tool.New(tool.Config{
		Name:           tool.NameAmadeusAirportsForCity,
		Description:    "Lists the airports serving a given IATA city code.",
		DefaultTimeout: 7 * time.Second,
	}, func(tc tool.Context, args AmadeusAirportsForCityArgs) (tool.Result, error) {
		if args.CityCode == "" {
			return tool.Result{}, tool.NewInvokeError(tool.ErrClassValidation, fmt.Errorf("cityCode is required"))
		}

		var resp amadeusAirportsResponse
		path := "/v1/reference-data/locations?subType=AIRPORT&keyword=" + url.QueryEscape(args.CityCode)
		if err := d.amadeusGet(tc.Ctx, path, &resp); err != nil {
			return tool.Result{}, err
		}
		if len(resp.Data) == 0 {
			return tool.Result{OK: false, Reason: "no_airports_found"}, nil
		}

		codes := make([]string, 0, len(resp.Data))
		for _, a := range resp.Data {
			codes = append(codes, fmt.Sprintf("%s (%s)", a.IataCode, a.Name))
		}

		return tool.Result{
			OK:      true,
			Summary: strings.Join(codes, ", "),
			Source:  "amadeus.com",
		}, nil
	})
}

// AmadeusSearchFlightsArgs is the amadeusSearchFlights tool's argument
// struct.
type AmadeusSearchFlightsArgs struct {
	OriginCity      string `json:"originCity" jsonschema:"required,description=Origin IATA city or airport code"`
	DestinationCity string `json:"destinationCity" jsonschema:"required,description=Destination IATA city or airport code"`
	DepartureDate   string `json:"departureDate" jsonschema:"required,description=Departure date in YYYY-MM-DD"`
	ReturnDate      string `json:"returnDate,omitempty" jsonschema:"description=Optional return date in YYYY-MM-DD for round trips"`
	Adults          int    `json:"adults,omitempty" jsonschema:"description=Number of adult passengers, default 1"`
}

type amadeusFlightOffersResponse struct {
	Data []struct {
		Price struct {
			Total    string `json:"total"`
			Currency string `json:"currency"`
		} `json:"price"`
		Itineraries []struct {
			Duration string `json:"duration"`
		} `json:"itineraries"`
	} `json:"data"`
}

// NewAmadeusSearchFlightsTool builds the "amadeusSearchFlights" tool
// against the Amadeus Self-Service "Flight Offers Search" API.
func NewAmadeusSearchFlightsTool(d Deps) (tool.Spec, error) {
	return tool.New(tool.Config{
		Name:           tool.NameAmadeusSearchFlights,
		Description:    "Searches flight offers between two cities on a given departure (and optional return) date.",
		DefaultTimeout: 12 * time.Second,
	}, func(tc tool.Context, args AmadeusSearchFlightsArgs) (tool.Result, error) {
		if args.OriginCity == "" || args.DestinationCity == "" || args.DepartureDate == "" {
			return tool.Result{}, tool.NewInvokeError(tool.ErrClassValidation, fmt.Errorf("originCity, destinationCity, and departureDate are required"))
		}
		adults := args.Adults
		if adults <= 0 {
			adults = 1
		}

		q := url.Values{}
		q.Set("originLocationCode", args.OriginCity)
		q.Set("destinationLocationCode", args.DestinationCity)
		q.Set("departureDate", args.DepartureDate)
		q.Set("adults", fmt.Sprintf("%d", adults))
		if args.ReturnDate != "" {
			q.Set("returnDate", args.ReturnDate)
		}
		q.Set("max", "5")

		var resp amadeusFlightOffersResponse
		path := "/v2/shopping/flight-offers?" + q.Encode()
		if err := d.amadeusGet(tc.Ctx, path, &resp); err != nil {
			return tool.Result{}, err
		}
		if len(resp.Data) == 0 {
			return tool.Result{OK: false, Reason: "no_flights_found"}, nil
		}

		cheapest := resp.Data[0]
		return tool.Result{
			OK: true,
			Summary: fmt.Sprintf("%d offers found, from %s %s for %d adult(s)",
				len(resp.Data), cheapest.Price.Total, cheapest.Price.Currency, adults),
			Source:  "amadeus.com",
			Payload: map[string]any{"offerCount": len(resp.Data), "cheapestTotal": cheapest.Price.Total, "currency": cheapest.Price.Currency},
		}, nil
	})
}
