package models

import (
	"time"

	"github.com/angelmondragon/dormstay-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the account that owns reservations. Guests become tenants on check-in.
type User struct {
	ID         uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Email      string              `gorm:"column:email;type:text;not null;uniqueIndex"`
	FirstName  string              `gorm:"column:first_name;not null"`
	LastName   string              `gorm:"column:last_name;not null"`
	Phone      *string             `gorm:"column:phone"`
	Role       enums.UserRole      `gorm:"column:role;type:text;not null;default:'guest'"`
	Status     enums.AccountStatus `gorm:"column:status;type:text;not null;default:'prospect'"`
	BranchID   *uuid.UUID          `gorm:"column:branch_id;type:uuid"`
	TenantFrom *time.Time          `gorm:"column:tenant_from"`
	CreatedAt  time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
