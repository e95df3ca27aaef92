package models

import "gorm.io/datatypes"

// PlaceDisplayName mirrors the localized name returned by Google Places.
type PlaceDisplayName struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode,omitempty"`
}

// Place is a health unit returned by a text search, kept so later searches
// can fall back to it when Google Places is unavailable.
type Place struct {
	BaseModel

	PlaceID             string                                `gorm:"size:255;uniqueIndex;not null" json:"place_id"`
	DisplayName         datatypes.JSONType[PlaceDisplayName] `json:"display_name"`
	FormattedAddress    string                                `json:"formatted_address"`
	NationalPhoneNumber string                                `gorm:"size:64" json:"national_phone_number"`
	Municipio           string                                `gorm:"size:128;index:idx_places_municipio_category,priority:1" json:"municipio"`
	Category            string                                `gorm:"size:128;index:idx_places_municipio_category,priority:2" json:"category"`
}
