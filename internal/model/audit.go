package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditEvent struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	BusinessID uuid.UUID `json:"business_id" gorm:"type:uuid;index"`
	EventType  string    `json:"event_type" gorm:"size:50;not null"`
	Action     string    `json:"action" gorm:"size:100;not null"`
	Resource   string    `json:"resource" gorm:"size:100;not null"`
	ResourceID string    `json:"resource_id" gorm:"size:255"`
	Actor      string    `json:"actor" gorm:"size:100;not null"`
	OldValue   JSONMap   `json:"old_value" gorm:"type:jsonb"`
	NewValue   JSONMap   `json:"new_value" gorm:"type:jsonb"`
	Details    JSONMap   `json:"details" gorm:"type:jsonb"`
	Result     string    `json:"result" gorm:"size:20;default:'success'"`
	ErrorMsg   string    `json:"error_msg" gorm:"type:text"`
	Timestamp  time.Time `json:"timestamp" gorm:"autoCreateTime;index"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}

func (a *AuditEvent) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
