package municipios

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/saudema/saudema/internal/database/testutil"
	"github.com/saudema/saudema/internal/models"
)

func TestSnapshotStoreUpserts(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewSnapshotStore(db)
	ctx := context.Background()

	none, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Nil(t, none)

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveSnapshot(ctx, []string{"Bacabal", "Caxias"}, first))

	second := first.Add(24 * time.Hour)
	require.NoError(t, store.SaveSnapshot(ctx, []string{"Bacabal", "Caxias", "Timon"}, second))

	var count int64
	require.NoError(t, db.Model(&models.ReferenceList{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	got, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, models.MunicipiosListID, got.ID)
	require.Equal(t, models.SourceIBGE, got.Source)
	require.Equal(t, 3, got.ItemCount)
	require.Equal(t, []string{"Bacabal", "Caxias", "Timon"}, []string(got.Items))
	require.True(t, second.Equal(got.LastUpdated.UTC()))
}

func TestCacheWritesSnapshotThroughStore(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewSnapshotStore(db)

	cache := NewCache(FetcherFunc(func(context.Context) ([]string, error) {
		return []string{"Codó", "Balsas", "Codó"}, nil
	}), WithSnapshotter(store))

	_, err := cache.List(context.Background())
	require.NoError(t, err)

	got, err := store.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Balsas", "Codó"}, []string(got.Items))
	require.Equal(t, 2, got.ItemCount)
}
