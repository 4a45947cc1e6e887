package models

import (
	"time"

	"github.com/google/uuid"
)

// DataPublication is a dataset offered to the dataspace by a provider
type DataPublication struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Title         string    `db:"title" json:"title"`
	Description   *string   `db:"description" json:"description,omitempty"`
	PublisherRole string    `db:"publisher_role" json:"publisher_role"`
	UsagePolicy   string    `db:"usage_policy" json:"usage_policy"`
	FilePath      *string   `db:"file_path" json:"file_path,omitempty"`
	FileSize      *int64    `db:"file_size" json:"file_size,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (DataPublication) TableName() string {
	return "data_publications"
}
