package model

import "time"

// ViolationRecord is one reported violation. Rows are insert-only and kept
// indefinitely as the moderation audit trail.
type ViolationRecord struct {
	ID           uint64    `gorm:"primaryKey"`
	UserID       string    `gorm:"size:64;index;not null"`
	Description  string    `gorm:"not null"`
	TextContent  *string   `gorm:"type:text"`
	ImageContent *string   `gorm:"type:text"` // base64, as received from the upload path
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (ViolationRecord) TableName() string { return "violations" }
