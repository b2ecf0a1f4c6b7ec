package users

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/dormstay-backend/internal/repo"
	"github.com/angelmondragon/dormstay-backend/pkg/db/models"
	"github.com/angelmondragon/dormstay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormstay-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes user-related persistence operations.
type Repository struct {
	repo.Base
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Create inserts a new user and returns the persisted model.
func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.DB(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GuestExists reports whether the account exists, using tx when given.
func (r *Repository) GuestExists(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
	var count int64
	err := r.WithTx(tx).DB(ctx).Model(&models.User{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// PromoteToTenant turns a checked-in guest into an active tenant. Staff and
// admin accounts keep their role; the first tenancy date is never overwritten.
func (r *Repository) PromoteToTenant(ctx context.Context, tx *gorm.DB, guestID uuid.UUID, at time.Time) error {
	db := r.WithTx(tx).DB(ctx)

	var user models.User
	if err := db.First(&user, "id = ?", guestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "guest not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load guest")
	}

	updates := map[string]any{"status": string(enums.AccountStatusActive)}
	if user.Role == enums.UserRoleGuest {
		updates["role"] = string(enums.UserRoleTenant)
	}
	if user.TenantFrom == nil {
		updates["tenant_from"] = at.UTC()
	}
	if err := db.Model(&models.User{}).Where("id = ?", guestID).Updates(updates).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promote guest")
	}
	return nil
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}
