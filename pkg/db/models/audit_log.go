package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog stores the before/after images of an engine mutation.
type AuditLog struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Action     string          `gorm:"column:action;not null;index"`
	EntityType string          `gorm:"column:entity_type;not null;index"`
	EntityID   uuid.UUID       `gorm:"column:entity_id;type:uuid;not null;index"`
	ActorID    *uuid.UUID      `gorm:"column:actor_id;type:uuid"`
	Before     json.RawMessage `gorm:"column:before_json;type:jsonb"`
	After      json.RawMessage `gorm:"column:after_json;type:jsonb"`
	Note       *string         `gorm:"column:note"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
