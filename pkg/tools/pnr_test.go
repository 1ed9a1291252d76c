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
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/travelbot/orchestrator/pkg/tool"
)

func testContext() tool.Context {
	return tool.Context{Ctx: context.Background(), Log: slog.Default()}
}

func invoke(t *testing.T, spec tool.Spec, args map[string]any) tool.Result {
	t.Helper()
	res, err := spec.Invoke(testContext(), args)
	require.NoError(t, err)
	return res
}

func TestPNRParseExtractsLocatorAndSegments(t *testing.T) {
	spec, err := NewPNRParseTool()
	require.NoError(t, err)

	res := invoke(t, spec, map[string]any{
		"raw": "Record Locator: AB12CD\nSegment: AA100 JFK-LHR\nSegment: BA202 LHR-JFK",
	})

	assert.True(t, res.OK)
	assert.Equal(t, "AB12CD", res.Payload["recordLocator"])
	segments, ok := res.Payload["segments"].([]string)
	require.True(t, ok)
	assert.Len(t, segments, 2)
}

func TestPNRParseRejectsEmptyInput(t *testing.T) {
	spec, err := NewPNRParseTool()
	require.NoError(t, err)

	_, err = spec.Invoke(testContext(), map[string]any{"raw": ""})
	require.Error(t, err)

	var ie *tool.InvokeError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, tool.ErrClassValidation, ie.Class)
}

func TestPNRParseReturnsNoDataFoundWhenNothingMatches(t *testing.T) {
	spec, err := NewPNRParseTool()
	require.NoError(t, err)

	res := invoke(t, spec, map[string]any{"raw": "just some unrelated notes about the trip"})
	assert.False(t, res.OK)
	assert.Equal(t, "no_pnr_data_found", res.Reason)
}

func TestIrropsProcessClassifiesCancellation(t *testing.T) {
	spec, err := NewIrropsProcessTool()
	require.NoError(t, err)

	res := invoke(t, spec, map[string]any{"notice": "Flight AA100 has been cancelled due to weather."})
	assert.True(t, res.OK)
	assert.Equal(t, "cancellation", res.Payload["kind"])
}

func TestIrropsProcessExtractsDelayDuration(t *testing.T) {
	spec, err := NewIrropsProcessTool()
	require.NoError(t, err)

	res := invoke(t, spec, map[string]any{"notice": "Your flight is delayed by 3 hours."})
	assert.True(t, res.OK)
	assert.Equal(t, "delay", res.Payload["kind"])
	assert.Contains(t, res.Summary, "3 hour")
}

func TestPackingSuggestEmitsBandAndItemFacts(t *testing.T) {
	spec, err := NewPackingSuggestTool()
	require.NoError(t, err)

	res := invoke(t, spec, map[string]any{"city": "Reykjavik", "temperatureC": 2.0, "month": "December"})
	assert.True(t, res.OK)
	assert.Equal(t, "cold", res.Payload["packingBand"])
	assert.NotEmpty(t, res.Payload["packingItemsBase"])
	special, ok := res.Payload["packingItemsSpecial"].([]string)
	require.True(t, ok)
	assert.Contains(t, special, "travel umbrella")
}

func TestPackingSuggestRejectsMissingCity(t *testing.T) {
	spec, err := NewPackingSuggestTool()
	require.NoError(t, err)

	_, err = spec.Invoke(testContext(), map[string]any{"city": ""})
	require.Error(t, err)
}
