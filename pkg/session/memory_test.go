// SPDX-License-Identifier: AGPL-3.0
package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAppendMsgCapsAtN(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(Config{DefaultTTL: 0, DefaultMsgCap: 3, OpTimeout: 0})

	for i := 0; i < 5; i++ {
		require.NoError(t, m.AppendMsg(ctx, "t1", Message{Role: RoleUser, Content: string(rune('a' + i))}, 0))
	}

	msgs, err := m.GetMsgs(ctx, "t1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "c", msgs[0].Content)
	assert.Equal(t, "e", msgs[2].Content)
}

func TestMemorySetSlotsDropsEmptyValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(DefaultConfig())

	require.NoError(t, m.SetSlots(ctx, "t1", SlotMap{"city": "Paris", "month": "June"}, nil))
	require.NoError(t, m.SetSlots(ctx, "t1", SlotMap{"city": ""}, nil))

	slots, err := m.GetSlots(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "June", slots["month"])
	_, ok := slots["city"]
	assert.False(t, ok)
}

func TestMemorySetSlotsDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(DefaultConfig())

	require.NoError(t, m.SetSlots(ctx, "t1", SlotMap{"city": "Paris"}, nil))
	require.NoError(t, m.SetSlots(ctx, "t1", nil, []string{"city"}))

	slots, err := m.GetSlots(ctx, "t1")
	require.NoError(t, err)
	_, ok := slots["city"]
	assert.False(t, ok)
}

func TestMemoryJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(DefaultConfig())

	type payload struct {
		Score int `json:"score"`
	}
	require.NoError(t, m.SetJSON(ctx, "t1", "complexity", payload{Score: 3}))

	var out payload
	ok, err := m.GetJSON(ctx, "t1", "complexity", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, out.Score)

	ok, err = m.GetJSON(ctx, "t1", "missing", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryClearRemovesEverything(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(DefaultConfig())

	require.NoError(t, m.AppendMsg(ctx, "t1", Message{Role: RoleUser, Content: "hi"}, 0))
	require.NoError(t, m.SetSlots(ctx, "t1", SlotMap{"city": "Paris"}, nil))
	require.NoError(t, m.Clear(ctx, "t1"))

	msgs, err := m.GetMsgs(ctx, "t1", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	slots, err := m.GetSlots(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestMemoryGetMsgsOldestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(DefaultConfig())

	require.NoError(t, m.AppendMsg(ctx, "t1", Message{Role: RoleUser, Content: "first"}, 0))
	require.NoError(t, m.AppendMsg(ctx, "t1", Message{Role: RoleAssistant, Content: "second"}, 0))

	msgs, err := m.GetMsgs(ctx, "t1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
}
