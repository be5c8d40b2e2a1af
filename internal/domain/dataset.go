package domain

import "time"

// Dataset is the catalog entry written when an ingestion run completes.
// It records which collection exists for which stock symbol so queries can
// resolve a symbol to its most recent collection after a restart.
type Dataset struct {
	Name           string    `gorm:"type:text;primaryKey" json:"name"`
	Symbol         string    `gorm:"type:text;not null;index:idx_datasets_symbol" json:"symbol"`
	SearchQuery    string    `gorm:"type:text" json:"search_query"`
	RecordCount    int       `json:"record_count"`
	EmbeddingModel string    `gorm:"type:text" json:"embedding_model"`
	Dimensions     int       `json:"dimensions"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName returns the database table name for Dataset.
func (Dataset) TableName() string {
	return "datasets"
}
