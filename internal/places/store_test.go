package places

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/saudema/saudema/internal/database/testutil"
	"github.com/saudema/saudema/internal/models"
)

func TestStoreUpsertReplacesByPlaceID(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewStore(db)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "Caxias", "Hospital", place("p1", "Hospital Antigo")))
	updated := place("p1", "Hospital Novo")
	updated.FormattedAddress = "Av. Central, 100"
	require.NoError(t, store.Upsert(ctx, "Caxias", "Hospital", updated))

	var count int64
	require.NoError(t, db.Model(&models.Place{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	got, err := store.Find(ctx, "Caxias", "Hospital")
	require.NoError(t, err)
	require.Equal(t, []Place{updated}, got)

	other, err := store.Find(ctx, "Caxias", "UBS")
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestStoreFindFiltersByMunicipioAndCategory(t *testing.T) {
	fixture := func(id, name, municipio, category string) *models.Place {
		return &models.Place{
			PlaceID:     id,
			DisplayName: datatypes.NewJSONType(models.PlaceDisplayName{Text: name, LanguageCode: "pt-BR"}),
			Municipio:   municipio,
			Category:    category,
		}
	}
	db := testutil.MustOpenTestDB(t, testutil.WithQueryLog(), testutil.WithFixtures(
		fixture("p1", "UBS Centro", "Timon", "UBS"),
		fixture("p2", "UBS Parque Piauí", "Timon", "UBS"),
		fixture("p3", "Hospital de Timon", "Timon", "Hospital"),
		fixture("p4", "UBS Bacabal", "Bacabal", "UBS"),
	))

	got, err := NewStore(db).Find(context.Background(), "Timon", "UBS")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.ElementsMatch(t, []string{"p1", "p2"}, []string{got[0].ID, got[1].ID})
	require.Equal(t, "pt-BR", got[0].DisplayName.LanguageCode)
}

func TestStoreSearchStats(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.RecordSearch(ctx, &models.SearchEvent{Category: "UBS", ResultCount: 3, RequestedAt: now}))
	require.NoError(t, store.RecordSearch(ctx, &models.SearchEvent{Category: "UBS", ResultCount: 1, RequestedAt: now}))
	require.NoError(t, store.RecordSearch(ctx, &models.SearchEvent{Category: "Hospital", ResultCount: 5, RequestedAt: now}))
	require.NoError(t, store.RecordSearch(ctx, &models.SearchEvent{Category: "Hospital", ResultCount: 9, RequestedAt: now.Add(-48 * time.Hour)}))

	stats, err := store.SearchStats(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, []CategoryStat{
		{Category: "UBS", Searches: 2, ResultCount: 4},
		{Category: "Hospital", Searches: 1, ResultCount: 5},
	}, stats)
}
