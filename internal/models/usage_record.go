package models

import (
	"time"

	"github.com/google/uuid"
)

// Represents one admission decision persisted for analytics
type UsageRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Timestamp    time.Time `gorm:"index" json:"timestamp"`
	UserID       uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Operation    string    `gorm:"index" json:"operation"`
	CostUnits    int64     `json:"cost_units"`
	Success      bool      `gorm:"index" json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

func (UsageRecord) TableName() string {
	return "usage_records"
}
