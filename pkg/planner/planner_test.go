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

package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travelbot/orchestrator/pkg/llms"
)

func TestPlanParsesStrictJSON(t *testing.T) {
	fake := llms.NewFake()
	fake.QueueChat(llms.ChatResponse{Content: `{"route":"flights","confidence":0.9,"missing":[],"consent":null,"calls":[{"tool":"amadeusResolveCity","args":{"city":"NYC"}}],"blend":"cite amadeus","verify":"flights"}`}, nil)

	plan, err := Plan(context.Background(), fake, nil, "flights from NYC to LON tomorrow", []string{"amadeusResolveCity"}, 20*time.Second)
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "flights", plan.Route)
	assert.Len(t, plan.Calls, 1)
}

func TestPlanToleratesSurroundingProse(t *testing.T) {
	fake := llms.NewFake()
	fake.QueueChat(llms.ChatResponse{Content: "here is the plan:\n{\"route\":\"weather\",\"confidence\":0.8,\"missing\":[],\"calls\":[],\"blend\":\"\",\"verify\":\"\"}\nthanks"}, nil)

	plan, err := Plan(context.Background(), fake, nil, "weather in Rome", nil, 20*time.Second)
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "weather", plan.Route)
}

func TestPlanReturnsNilOnUnparsableResponse(t *testing.T) {
	fake := llms.NewFake()
	fake.QueueChat(llms.ChatResponse{Content: "I cannot help with that."}, nil)

	plan, err := Plan(context.Background(), fake, nil, "anything", nil, 20*time.Second)
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestPlanReturnsNilOnTransportError(t *testing.T) {
	fake := llms.NewFake()
	fake.QueueChat(llms.ChatResponse{}, assert.AnError)

	plan, err := Plan(context.Background(), fake, nil, "anything", nil, 20*time.Second)
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestPlanBudgetFloorAndCeiling(t *testing.T) {
	fake := llms.NewFake()
	fake.QueueChat(llms.ChatResponse{Content: `{"route":"","confidence":0,"missing":[],"calls":[],"blend":"","verify":""}`}, nil)
	_, _ = Plan(context.Background(), fake, nil, "hi", nil, 1*time.Second)
	require.Len(t, fake.ChatCalls, 1)
	assert.Equal(t, 1500*time.Millisecond, fake.ChatCalls[0].Opts.Timeout)

	fake2 := llms.NewFake()
	fake2.QueueChat(llms.ChatResponse{Content: `{"route":"","confidence":0,"missing":[],"calls":[],"blend":"","verify":""}`}, nil)
	_, _ = Plan(context.Background(), fake2, nil, "hi", nil, 60*time.Second)
	require.Len(t, fake2.ChatCalls, 1)
	assert.Equal(t, 5*time.Second, fake2.ChatCalls[0].Opts.Timeout)
}
