package places

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/saudema/saudema/internal/models"
)

// Store persists places and search analytics.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Upsert stores p under municipio and category, replacing any row with the
// same place id.
func (s *Store) Upsert(ctx context.Context, municipio, category string, p Place) error {
	row := models.Place{
		PlaceID:             p.ID,
		DisplayName:         datatypes.NewJSONType(p.DisplayName),
		FormattedAddress:    p.FormattedAddress,
		NationalPhoneNumber: p.NationalPhoneNumber,
		Municipio:           municipio,
		Category:            category,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "place_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"display_name", "formatted_address", "national_phone_number",
			"municipio", "category", "updated_at",
		}),
	}).Create(&row).Error
}

// Find returns the stored places for municipio and category.
func (s *Store) Find(ctx context.Context, municipio, category string) ([]Place, error) {
	var rows []models.Place
	err := s.db.WithContext(ctx).
		Where("municipio = ? AND category = ?", municipio, category).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]Place, 0, len(rows))
	for _, row := range rows {
		out = append(out, Place{
			ID:                  row.PlaceID,
			DisplayName:         row.DisplayName.Data(),
			FormattedAddress:    row.FormattedAddress,
			NationalPhoneNumber: row.NationalPhoneNumber,
		})
	}
	return out, nil
}

// RecordSearch appends a search_events row.
func (s *Store) RecordSearch(ctx context.Context, event *models.SearchEvent) error {
	if event.RequestedAt.IsZero() {
		event.RequestedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(event).Error
}

// CategoryStat aggregates search events per category.
type CategoryStat struct {
	Category    string `json:"category"`
	Searches    int64  `json:"searches"`
	ResultCount int64  `json:"result_count"`
}

// SearchStats summarises searches made since the given instant, busiest
// category first.
func (s *Store) SearchStats(ctx context.Context, since time.Time) ([]CategoryStat, error) {
	var stats []CategoryStat
	err := s.db.WithContext(ctx).
		Model(&models.SearchEvent{}).
		Select("category, COUNT(*) AS searches, COALESCE(SUM(result_count), 0) AS result_count").
		Where("requested_at >= ?", since).
		Group("category").
		Order("searches DESC, category").
		Scan(&stats).Error
	return stats, err
}
