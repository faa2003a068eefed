package ordering

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/dmitrijs2005/liusync/internal/timex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s(v int64) *int64 { return &v }

func column(group string, stamps ...int64) []Item {
	out := make([]Item, len(stamps))
	for i, v := range stamps {
		out[i] = Item{ID: fmt.Sprintf("i%d", v), StateID: group, Stamp: s(v)}
	}
	return out
}

func apply(items []Item, updates []Update) []Item {
	byID := make(map[string]Update, len(updates))
	for _, u := range updates {
		byID[u.ID] = u
	}
	out := make([]Item, len(items))
	for i, it := range items {
		if u, ok := byID[it.ID]; ok {
			it.Stamp = s(u.NewStamp)
			it.StateID = u.StateID
		}
		out[i] = it
	}
	return out
}

func TestReorder_MoveToFront(t *testing.T) {
	const now = int64(1_000)
	items, err := Move(column("TODO", 100, 90, 80, 70, 60), 2, 0)
	require.NoError(t, err)

	updates, err := Reorder(items, 0, "TODO", now)
	require.NoError(t, err)

	require.Len(t, updates, 1)
	assert.Equal(t, "i80", updates[0].ID)
	assert.Greater(t, updates[0].NewStamp, int64(100))

	after := apply(items, updates)
	assert.Equal(t, int64(90), *after[2].Stamp)
	assert.Equal(t, int64(70), *after[3].Stamp)
	assert.Equal(t, int64(60), *after[4].Stamp)
}

func TestReorder_MoveToEnd(t *testing.T) {
	items, err := Move(column("TODO", 100, 90, 80), 0, 2)
	require.NoError(t, err)

	updates, err := Reorder(items, 2, "TODO", 5_000)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, Update{ID: "i100", StateID: "TODO", NewStamp: 80 - timex.Minute}, updates[0])
}

func TestReorder_MiddleSinksIn(t *testing.T) {
	items, err := Move(column("TODO", 100, 90, 80, 70, 60), 4, 1)
	require.NoError(t, err)

	updates, err := Reorder(items, 1, "TODO", 5_000)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, Update{ID: "i60", StateID: "TODO", NewStamp: 95}, updates[0])
}

func TestReorder_MiddleSticksOut(t *testing.T) {
	items, err := Move(column("TODO", 100, 90, 80, 70, 60), 0, 3)
	require.NoError(t, err)

	updates, err := Reorder(items, 3, "TODO", 5_000)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, Update{ID: "i100", StateID: "TODO", NewStamp: 65}, updates[0])
}

func TestReorder_SingleItem(t *testing.T) {
	updates, err := Reorder(column("TODO", 42), 0, "TODO", 5_000)
	require.NoError(t, err)
	assert.Empty(t, updates)

	updates, err = Reorder([]Item{{ID: "x", StateID: "TODO"}}, 0, "TODO", 5_000)
	require.NoError(t, err)
	assert.Equal(t, []Update{{ID: "x", StateID: "TODO", NewStamp: 5_000}}, updates)
}

func TestReorder_CrossGroupAlwaysRewritten(t *testing.T) {
	items := column("TODO", 100, 90)
	items = append([]Item{{ID: "new", StateID: "FINISHED", Stamp: s(500)}}, items...)

	updates, err := Reorder(items, 0, "TODO", 1_000)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, Update{ID: "new", StateID: "TODO", NewStamp: 500}, updates[0])
}

func TestReorder_MissingStampsUseNow(t *testing.T) {
	items := []Item{
		{ID: "a", StateID: "TODO"},
		{ID: "b", StateID: "TODO", Stamp: s(50)},
	}
	updates, err := Reorder(items, 0, "TODO", 1_000)
	require.NoError(t, err)
	assert.Equal(t, []Update{{ID: "a", StateID: "TODO", NewStamp: 1_000}}, updates)
}

func TestReorder_SequentialEvaluation(t *testing.T) {
	// the rewrite of position 0 feeds the check of position 1
	items := []Item{
		{ID: "a", StateID: "TODO", Stamp: s(10)},
		{ID: "b", StateID: "TODO", Stamp: s(10)},
		{ID: "c", StateID: "TODO", Stamp: s(10)},
	}
	updates, err := Reorder(items, 0, "TODO", 1_000)
	require.NoError(t, err)
	assert.Equal(t, []Update{
		{ID: "a", StateID: "TODO", NewStamp: 1_000},
		{ID: "b", StateID: "TODO", NewStamp: 505},
	}, updates)
}

func TestReorder_IndexOutOfRange(t *testing.T) {
	_, err := Reorder(column("TODO", 1, 2), 2, "TODO", 0)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = Move(column("TODO", 1), -1, 0)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestMidpointRoundsHalfUp(t *testing.T) {
	assert.Equal(t, int64(3), midpoint(2, 3))
	assert.Equal(t, int64(-2), midpoint(-2, -3))
	assert.Equal(t, int64(95), midpoint(100, 90))
}

func TestReorder_RandomSingleMovesKeepOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	const now = int64(10_000_000)

	for run := 0; run < 500; run++ {
		n := 2 + rng.Intn(12)
		stamps := make([]int64, n)
		v := int64(1_000_000)
		for i := range stamps {
			v -= int64(10 + rng.Intn(1000))
			stamps[i] = v
		}
		items := column("TODO", stamps...)
		from, to := rng.Intn(n), rng.Intn(n)

		moved, err := Move(items, from, to)
		require.NoError(t, err)
		updates, err := Reorder(moved, to, "TODO", now)
		require.NoError(t, err)

		after := apply(moved, updates)
		for i := 1; i < len(after); i++ {
			require.Greater(t, *after[i-1].Stamp, *after[i].Stamp, "run %d: %v -> %v", run, stamps, updates)
		}
		require.LessOrEqual(t, len(updates), 1)
	}
}
