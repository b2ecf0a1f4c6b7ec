package rooms

import (
	"context"
	"errors"

	"github.com/angelmondragon/dormstay-backend/internal/repo"
	"github.com/angelmondragon/dormstay-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dormstay-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository handles room persistence.
type Repository struct {
	repo.Base
}

// NewRepository binds a GORM DB to room operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

// Create persists a room and its beds.
func (r *Repository) Create(ctx context.Context, room *models.Room) error {
	return r.DB(ctx).Create(room).Error
}

// BranchExists reports whether the branch row exists.
func (r *Repository) BranchExists(ctx context.Context, branchID uuid.UUID) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Branch{}).Where("id = ?", branchID).Count(&count).Error
	return count > 0, err
}

// FindByID loads a room with beds, restricted to branchID when set.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID, branchID *uuid.UUID) (*models.Room, error) {
	query := r.DB(ctx).
		Preload("Beds", func(db *gorm.DB) *gorm.DB { return db.Order("label ASC") }).
		Where("id = ?", id)
	if branchID != nil {
		query = query.Where("branch_id = ?", *branchID)
	}
	var room models.Room
	if err := query.First(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeRoomNotFound, "room not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load room")
	}
	return &room, nil
}

// List returns rooms ordered by number.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Room, error) {
	query := r.DB(ctx).
		Preload("Beds", func(db *gorm.DB) *gorm.DB { return db.Order("label ASC") })
	if filter.BranchID != nil {
		query = query.Where("branch_id = ?", *filter.BranchID)
	}
	if !filter.IncludeArchived {
		query = query.Where("archived = ?", false)
	}
	if filter.AvailableOnly {
		query = query.Where("available = ?", true)
	}
	var rooms []models.Room
	if err := query.Order("number ASC, id ASC").Find(&rooms).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list rooms")
	}
	return rooms, nil
}

// SetHold writes the availability override.
func (r *Repository) SetHold(ctx context.Context, id uuid.UUID, onHold bool) error {
	return r.DB(ctx).Model(&models.Room{}).Where("id = ?", id).Update("on_hold", onHold).Error
}
