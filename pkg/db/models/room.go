package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Room is the inventory row whose occupancy is a cached projection of the
// reservations that hold a slot in it.
type Room struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	BranchID    uuid.UUID       `gorm:"column:branch_id;type:uuid;not null;index"`
	Number      string          `gorm:"column:number;not null"`
	Floor       *string         `gorm:"column:floor"`
	Capacity    int             `gorm:"column:capacity;not null"`
	Occupancy   int             `gorm:"column:occupancy;not null;default:0"`
	Available   bool            `gorm:"column:available;not null"`
	OnHold      bool            `gorm:"column:on_hold;not null;default:false"`
	MonthlyRate decimal.Decimal `gorm:"column:monthly_rate;type:numeric(12,2);not null;default:0"`
	Archived    bool            `gorm:"column:archived;not null;default:false"`
	Beds        []Bed           `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *Room) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// IsAvailable derives availability from occupancy, capacity and the hold override.
func (r Room) IsAvailable() bool {
	return !r.OnHold && r.Occupancy < r.Capacity
}

// OccupiedBeds counts beds currently flagged occupied.
func (r Room) OccupiedBeds() int {
	count := 0
	for _, bed := range r.Beds {
		if bed.Occupied {
			count++
		}
	}
	return count
}

// Bed is the finest-grained allocatable unit within a shared room.
type Bed struct {
	ID                    uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	RoomID                uuid.UUID  `gorm:"column:room_id;type:uuid;not null;uniqueIndex:idx_beds_room_label"`
	Label                 string     `gorm:"column:label;not null;uniqueIndex:idx_beds_room_label"`
	Position              string     `gorm:"column:position;not null;default:''"`
	Occupied              bool       `gorm:"column:occupied;not null;default:false"`
	OccupantGuestID       *uuid.UUID `gorm:"column:occupant_guest_id;type:uuid"`
	OccupantReservationID *uuid.UUID `gorm:"column:occupant_reservation_id;type:uuid"`
	UpdatedAt             time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (b *Bed) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
