package model

import (
	"time"

	"gorm.io/datatypes"
)

// ResearchSessionRecord stores a serialized session document. The document is
// kept verbatim so the store decides its shape, not the schema.
type ResearchSessionRecord struct {
	SessionID string         `gorm:"type:varchar(64);primaryKey"`
	Document  datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
	UpdatedAt time.Time      `gorm:"index"`
}

func (ResearchSessionRecord) TableName() string {
	return "research_sessions"
}
