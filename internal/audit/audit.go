package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/dormstay-backend/internal/repo"
	"github.com/angelmondragon/dormstay-backend/pkg/db/models"
	"github.com/angelmondragon/dormstay-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Entry is one audited mutation with the pre- and post-images of the entity.
type Entry struct {
	Action     enums.AuditAction
	EntityType enums.AuditEntityType
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	Before     any
	After      any
	Note       *string
}

// Sink records audit entries.
type Sink interface {
	Record(ctx context.Context, entry Entry) error
}

// Repository is the gorm-backed audit sink writing to audit_logs.
type Repository struct {
	repo.Base
}

// NewRepository binds the audit sink to db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) Record(ctx context.Context, entry Entry) error {
	if !entry.Action.IsValid() {
		return fmt.Errorf("invalid audit action %q", entry.Action)
	}
	if entry.EntityID == uuid.Nil {
		return fmt.Errorf("audit entity id required")
	}
	before, err := marshalImage(entry.Before)
	if err != nil {
		return fmt.Errorf("marshal before image: %w", err)
	}
	after, err := marshalImage(entry.After)
	if err != nil {
		return fmt.Errorf("marshal after image: %w", err)
	}
	row := &models.AuditLog{
		Action:     string(entry.Action),
		EntityType: string(entry.EntityType),
		EntityID:   entry.EntityID,
		ActorID:    entry.ActorID,
		Before:     before,
		After:      after,
		Note:       entry.Note,
	}
	return r.DB(ctx).Create(row).Error
}

// ForEntity lists the audit trail of one entity, oldest first.
func (r *Repository) ForEntity(ctx context.Context, entityType enums.AuditEntityType, entityID uuid.UUID) ([]models.AuditLog, error) {
	var rows []models.AuditLog
	err := r.DB(ctx).
		Where("entity_type = ? AND entity_id = ?", string(entityType), entityID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func marshalImage(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
