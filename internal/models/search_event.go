package models

import "time"

// SearchEvent records one health unit search for usage analytics.
type SearchEvent struct {
	BaseModel

	Category           string    `gorm:"size:128;index" json:"category"`
	Municipio          string    `gorm:"size:128" json:"municipio"`
	MunicipiosSearched int       `json:"municipios_searched"`
	ResultCount        int       `json:"result_count"`
	FallbackCount      int       `json:"fallback_count"`
	RequestedAt        time.Time `gorm:"index" json:"requested_at"`
}
