package municipios

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/saudema/saudema/internal/models"
)

// SnapshotReader returns the persisted copy of the list, or nil when none
// was written yet.
type SnapshotReader interface {
	LoadSnapshot(ctx context.Context) (*models.ReferenceList, error)
}

// SnapshotStore keeps the latest refreshed list in the reference_lists table.
type SnapshotStore struct {
	db *gorm.DB
}

func NewSnapshotStore(db *gorm.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// SaveSnapshot upserts the MARANHAO_MUNICIPIOS_LIST row.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, names []string, fetchedAt time.Time) error {
	if s == nil || s.db == nil {
		return errors.New("municipios: snapshot store not configured")
	}
	row := models.ReferenceList{
		ID:          models.MunicipiosListID,
		Items:       datatypes.NewJSONSlice(names),
		ItemCount:   len(names),
		Source:      models.SourceIBGE,
		LastUpdated: fetchedAt.UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"items", "item_count", "source", "last_updated"}),
	}).Create(&row).Error
}

// LoadSnapshot returns the stored snapshot, or nil when none was written yet.
// The cache never reads it back; it is reported by the status endpoint.
func (s *SnapshotStore) LoadSnapshot(ctx context.Context) (*models.ReferenceList, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("municipios: snapshot store not configured")
	}
	var row models.ReferenceList
	err := s.db.WithContext(ctx).Take(&row, "id = ?", models.MunicipiosListID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
