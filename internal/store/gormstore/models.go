package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Record mirrors the whitelist_records table. One row holds one keyed record of
// one collection: a partition expiry or a user account.
type Record struct {
	RecordID   string         `gorm:"type:uuid;primaryKey"`
	Collection string         `gorm:"not null;index:idx_records_collection_key,unique,priority:1"`
	RecordKey  string         `gorm:"not null;index:idx_records_collection_key,unique,priority:2"`
	Payload    datatypes.JSON `gorm:"type:jsonb;not null"`
	UpdatedAt  time.Time      `gorm:"not null"`
}

func (Record) TableName() string { return "whitelist_records" }

func (record *Record) BeforeCreate(tx *gorm.DB) error {
	if record.RecordID == "" {
		record.RecordID = uuid.NewString()
	}
	return nil
}
