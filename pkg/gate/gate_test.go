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

package gate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/travelbot/orchestrator/pkg/llms"
)

func TestClassifyHeuristicComplexOnManySignals(t *testing.T) {
	fake := llms.NewFake()
	v := Classify(context.Background(), fake, "Plan a 10-day family trip from Tel Aviv for August with budget for 4 people including a toddler, avoiding long flights", 0)
	assert.True(t, v.IsComplex)
	assert.GreaterOrEqual(t, v.Confidence, 0.6)
	assert.Empty(t, fake.ChatCalls, "heuristic should short-circuit without calling the LLM")
}

func TestClassifyHeuristicSimpleMessage(t *testing.T) {
	fake := llms.NewFake()
	v := Classify(context.Background(), fake, "what's the weather in Rome?", 0)
	assert.False(t, v.IsComplex)
}

func TestClassifyFallsBackToLLMWhenInconclusive(t *testing.T) {
	fake := llms.NewFake()
	fake.QueueChat(llms.ChatResponse{Content: `{"isComplex": true, "confidence": 0.8, "reasoning": "multi-city"}`}, nil)

	v := Classify(context.Background(), fake, "budget trip with a toddler", 0)
	assert.True(t, v.IsComplex)
	assert.Equal(t, 0.8, v.Confidence)
	assert.Len(t, fake.ChatCalls, 1)
}

func TestExtractJSONObjectStripsSurroundingProse(t *testing.T) {
	out := extractJSONObject("Sure, here you go:\n```json\n{\"isComplex\":false,\"confidence\":0.4,\"reasoning\":\"ok\"}\n```")
	assert.JSONEq(t, `{"isComplex":false,"confidence":0.4,"reasoning":"ok"}`, out)
}
