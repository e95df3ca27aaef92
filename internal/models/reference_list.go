package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	// MunicipiosListID identifies the Maranhão municipality snapshot.
	MunicipiosListID = "MARANHAO_MUNICIPIOS_LIST"
	// SourceIBGE marks lists fetched from the IBGE localidades API.
	SourceIBGE = "IBGE_API"
)

// ReferenceList stores the latest successfully fetched copy of a reference
// list. It is written after refreshes and never read back into the cache.
type ReferenceList struct {
	ID          string                      `gorm:"primaryKey;size:64" json:"id"`
	Items       datatypes.JSONSlice[string] `json:"items"`
	ItemCount   int                         `json:"item_count"`
	Source      string                      `gorm:"size:32;not null" json:"source"`
	LastUpdated time.Time                   `json:"last_updated"`
}

func (ReferenceList) TableName() string { return "reference_lists" }
