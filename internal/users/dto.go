package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dormstay-backend/pkg/db/models"
	"github.com/angelmondragon/dormstay-backend/pkg/enums"
)

// UserDTO is the transport shape of an account.
type UserDTO struct {
	ID         uuid.UUID           `json:"id"`
	Email      string              `json:"email"`
	FirstName  string              `json:"first_name"`
	LastName   string              `json:"last_name"`
	Phone      *string             `json:"phone,omitempty"`
	Role       enums.UserRole      `json:"role"`
	Status     enums.AccountStatus `json:"status"`
	BranchID   *uuid.UUID          `json:"branch_id,omitempty"`
	TenantFrom *time.Time          `json:"tenant_from,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email     string
	FirstName string
	LastName  string
	Phone     *string
	Role      enums.UserRole
	BranchID  *uuid.UUID
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:         u.ID,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Phone:      u.Phone,
		Role:       u.Role,
		Status:     u.Status,
		BranchID:   u.BranchID,
		TenantFrom: u.TenantFrom,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// ToModel builds a prospect account. Unset roles default to guest.
func (d CreateUserDTO) ToModel() *models.User {
	role := d.Role
	if role == "" {
		role = enums.UserRoleGuest
	}
	return &models.User{
		Email:     strings.ToLower(strings.TrimSpace(d.Email)),
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Phone:     d.Phone,
		Role:      role,
		Status:    enums.AccountStatusProspect,
		BranchID:  d.BranchID,
	}
}
