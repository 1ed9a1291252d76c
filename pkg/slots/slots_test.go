// SPDX-License-Identifier: AGPL-3.0
package slots

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTemporalReference(t *testing.T) {
	assert.True(t, IsTemporalReference("Tomorrow"))
	assert.True(t, IsTemporalReference("  tonight "))
	assert.False(t, IsTemporalReference("June"))
}

func TestNormalizeDropsPlaceholderTokens(t *testing.T) {
	prev := Map{"city": "Paris"}
	incoming := Map{"city": "there"}

	out := Normalize(prev, incoming, "weather")
	assert.Equal(t, "Paris", out["city"])
}

func TestNormalizeResolvesPlaceholderAgainstPrecedence(t *testing.T) {
	prev := Map{"destinationCity": "Tokyo"}
	incoming := Map{"destinationCity": "here"}

	out := Normalize(prev, incoming, "weather")
	assert.Equal(t, "Tokyo", out["destinationCity"])
}

func TestNormalizeDropsEmptyStrings(t *testing.T) {
	prev := Map{"city": "Paris"}
	incoming := Map{"city": ""}

	out := Normalize(prev, incoming, "weather")
	assert.Equal(t, "Paris", out["city"])
}

func TestClearConsentStateKeysMatchPairedPendingKeys(t *testing.T) {
	keys := ClearConsentState()
	assert.Contains(t, keys, "awaiting_deep_research_consent")
	assert.Contains(t, keys, "pending_deep_research_query")
	assert.Contains(t, keys, "complexity_score")
}
