package contents

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/dmitrijs2005/liusync/internal/client/migrations"
	"github.com/dmitrijs2005/liusync/internal/client/models"
	"github.com/dmitrijs2005/liusync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(context.Background(), db))
	return db
}

func stamp(v int64) *int64 { return &v }

func item(id, stateID string, st *int64) *models.ContentItem {
	return &models.ContentItem{
		ID:            id,
		FirstID:       id,
		SpaceID:       "s1",
		OState:        models.OStateOK,
		StorageState:  models.StorageCloud,
		StateID:       stateID,
		StateStamp:    st,
		InsertedStamp: 1,
	}
}

func TestPutGet_RoundTripAndUpdate(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	in := item("c1", "TODO", stamp(100))
	in.Payload = json.RawMessage(`{"title":"buy milk"}`)
	in.SyncedStamp = 42
	require.NoError(t, r.Put(ctx, in))

	got, err := r.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, in, got)
	assert.True(t, got.EverSynced())

	in.OState = models.OStateRemoved
	in.StateStamp = nil
	require.NoError(t, r.Put(ctx, in))

	got, err = r.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.OStateRemoved, got.OState)
	assert.Nil(t, got.StateStamp)
}

func TestGet_NotFound(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	_, err := r.Get(context.Background(), "nope")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDelete(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	require.NoError(t, r.Put(ctx, item("c1", "", nil)))
	require.NoError(t, r.Delete(ctx, "c1"))
	_, err := r.Get(ctx, "c1")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestListByState_OrdersByStampDescending(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, item("a", "TODO", stamp(70))))
	require.NoError(t, r.Put(ctx, item("b", "TODO", stamp(100))))
	require.NoError(t, r.Put(ctx, item("c", "TODO", nil)))
	require.NoError(t, r.Put(ctx, item("d", "TODO", stamp(90))))
	require.NoError(t, r.Put(ctx, item("e", "FINISHED", stamp(500))))

	removed := item("f", "TODO", stamp(1000))
	removed.OState = models.OStateRemoved
	require.NoError(t, r.Put(ctx, removed))

	elsewhere := item("g", "TODO", stamp(95))
	elsewhere.SpaceID = "s2"
	require.NoError(t, r.Put(ctx, elsewhere))

	list, err := r.ListByState(ctx, "s1", "TODO", 0)
	require.NoError(t, err)

	ids := make([]string, 0, len(list))
	for _, it := range list {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids)

	limited, err := r.ListByState(ctx, "s1", "TODO", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	other, err := r.ListByState(ctx, "s2", "TODO", 0)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, "g", other[0].ID)
}

func TestSetStateStamp(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	require.NoError(t, r.Put(ctx, item("a", "TODO", stamp(70))))

	require.NoError(t, r.SetStateStamp(ctx, "a", "FINISHED", 200, 5))
	got, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "FINISHED", got.StateID)
	assert.Equal(t, int64(200), *got.StateStamp)
	assert.Equal(t, int64(5), got.UpdatedStamp)

	require.ErrorIs(t, r.SetStateStamp(ctx, "missing", "TODO", 1, 1), common.ErrorNotFound)
}
