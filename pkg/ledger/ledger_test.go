// SPDX-License-Identifier: AGPL-3.0
package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalIsOrderInsensitive(t *testing.T) {
	a := Canonical(map[string]any{"a": 1, "b": 2})
	b := Canonical(map[string]any{"b": 2, "a": 1})
	assert.Equal(t, a, b)
}

func TestSeenInTurnDedupe(t *testing.T) {
	shared := NewShared()
	l := New(shared, DefaultTTLs())

	key := Canonical(map[string]any{"city": "Rome"})
	assert.False(t, l.SeenInTurn("weather", key))
	l.MarkSeen("weather", key)
	assert.True(t, l.SeenInTurn("weather", key))
}

func TestShouldSkipRespectsTTL(t *testing.T) {
	shared := NewShared()
	ttls := TTLs{Success: 10 * time.Millisecond, HTTPBlock: time.Hour, Validation: time.Hour, Other: time.Hour}
	l := New(shared, ttls)

	key := Canonical(map[string]any{"city": "Rome"})
	l.Finish("weather", key, OutcomeSuccess)
	assert.True(t, l.ShouldSkip("weather", key))

	time.Sleep(20 * time.Millisecond)
	assert.False(t, l.ShouldSkip("weather", key))
}

func TestShouldSkipIsSharedAcrossTurns(t *testing.T) {
	shared := NewShared()
	ttls := TTLs{Success: time.Hour, HTTPBlock: time.Hour, Validation: time.Hour, Other: time.Hour}

	turn1 := New(shared, ttls)
	key := Canonical(map[string]any{"q": "visa"})
	turn1.Finish("search", key, OutcomeHTTPBlock)

	turn2 := New(shared, ttls)
	assert.True(t, turn2.ShouldSkip("search", key))
	// Per-turn seen set is NOT shared across turns.
	assert.False(t, turn2.SeenInTurn("search", key))
}
