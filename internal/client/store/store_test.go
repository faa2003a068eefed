package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/liusync/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_FileDatabaseSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "liu.db")

	repos, err := Open(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, repos.Contents.Put(ctx, &models.ContentItem{
		ID: "c1", FirstID: "c1", OState: models.OStateOK, StorageState: models.StorageLocal,
	}))
	require.NoError(t, repos.Close())

	repos, err = Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })

	got, err := repos.Contents.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StorageLocal, got.StorageState)
}

func TestOpen_InMemory(t *testing.T) {
	repos, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })

	list, err := repos.Tasks.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}
