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

package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travelbot/orchestrator/pkg/llms"
	"github.com/travelbot/orchestrator/pkg/slots"
)

func TestRouteEmptyMessageReturnsUnknown(t *testing.T) {
	fake := llms.NewFake()
	r, err := Route(context.Background(), Deps{Transport: fake}, Input{Message: "   "})
	require.NoError(t, err)
	assert.Equal(t, "unknown", r.Intent)
	assert.Equal(t, 0.1, r.Confidence)
}

func TestRouteFlightFastPath(t *testing.T) {
	fake := llms.NewFake()
	r, err := Route(context.Background(), Deps{Transport: fake}, Input{Message: "flights from NYC to LON tomorrow"})
	require.NoError(t, err)
	assert.Equal(t, "flights", r.Intent)
	assert.Equal(t, "NYC", r.Slots["originCity"])
	assert.Equal(t, "LON", r.Slots["destinationCity"])
	assert.Empty(t, fake.ChatCalls, "fast path must not call the LLM")
}

func TestRouteDeepResearchConsentUnclearClearsAndProceeds(t *testing.T) {
	fake := llms.NewFake()
	fake.QueueChat(llms.ChatResponse{Content: `{"answer":"unclear"}`}, nil)

	r, err := Route(context.Background(), Deps{Transport: fake}, Input{Message: "maybe?", AwaitingDeepResearchConsent: true})
	require.NoError(t, err)
	assert.Contains(t, r.DeleteKeys, "awaiting_deep_research_consent")
	assert.Contains(t, r.DeleteKeys, "pending_deep_research_query")
	assert.Empty(t, r.ConsentAnswer)
}

func TestRouteDeepResearchConsentYesIsHandedToDriver(t *testing.T) {
	fake := llms.NewFake()
	r, err := Route(context.Background(), Deps{Transport: fake}, Input{Message: "yes please go ahead", AwaitingDeepResearchConsent: true})
	require.NoError(t, err)
	assert.Equal(t, "yes", r.ConsentAnswer)
	assert.Contains(t, r.DeleteKeys, "awaiting_deep_research_consent")
	assert.Contains(t, r.DeleteKeys, "pending_deep_research_query")
}

func TestRouteWeatherCueOverridesFlightsIntent(t *testing.T) {
	fake := llms.NewFake()
	fake.QueueChat(llms.ChatResponse{Content: `{"intent":"flights","needExternal":true,"slots":{"city":"Paris"},"confidence":0.9}`}, nil)

	r, err := Route(context.Background(), Deps{Transport: fake}, Input{Message: "what's the weather like in Paris?"})
	require.NoError(t, err)
	assert.Equal(t, "weather", r.Intent)
}

func TestRouteContextSwitchResetsLocationAndTime(t *testing.T) {
	fake := llms.NewFake()
	fake.QueueChat(llms.ChatResponse{Content: `{"intent":"weather","needExternal":true,"slots":{"city":"Tokyo"},"confidence":0.9}`}, nil)

	prior := slots.Map{"city": "Paris", "month": "June"}
	r, err := Route(context.Background(), Deps{Transport: fake}, Input{Message: "what about Tokyo?", PriorSlots: prior})
	require.NoError(t, err)
	assert.Contains(t, r.DeleteKeys, "month")
	assert.Contains(t, r.DeleteKeys, "city")
	assert.Equal(t, "Tokyo", r.Slots["city"])
}

func TestRouteExplicitCityGuardDropsHallucinatedCity(t *testing.T) {
	fake := llms.NewFake()
	fake.QueueChat(llms.ChatResponse{Content: `{"intent":"attractions","needExternal":true,"slots":{"city":"Atlantis"},"confidence":0.9}`}, nil)

	r, err := Route(context.Background(), Deps{Transport: fake}, Input{Message: "what should I see there?"})
	require.NoError(t, err)
	_, present := r.Slots["city"]
	assert.False(t, present)
}
