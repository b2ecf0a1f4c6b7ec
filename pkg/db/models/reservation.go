package models

import (
	"time"

	"github.com/angelmondragon/dormstay-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Reservation is one guest's request to occupy a room (and optionally a bed).
// Reminder and risk fields are a cache of the time policy over the move-in date.
type Reservation struct {
	ID               uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	Code             string                   `gorm:"column:code;not null;uniqueIndex"`
	GuestID          uuid.UUID                `gorm:"column:guest_id;type:uuid;not null;index"`
	BranchID         uuid.UUID                `gorm:"column:branch_id;type:uuid;not null;index"`
	RoomID           uuid.UUID                `gorm:"column:room_id;type:uuid;not null;index"`
	BedID            *uuid.UUID               `gorm:"column:bed_id;type:uuid"`
	Status           enums.ReservationStatus  `gorm:"column:status;type:text;not null;default:'pending';index"`
	PreRiskStatus    *enums.ReservationStatus `gorm:"column:pre_risk_status;type:text"`
	MoveInDate       time.Time                `gorm:"column:move_in_date;not null"`
	FinalMoveInDate  *time.Time               `gorm:"column:final_move_in_date"`
	CheckOutDate     *time.Time               `gorm:"column:check_out_date"`
	CheckedInAt      *time.Time               `gorm:"column:checked_in_at"`
	ReminderDeadline time.Time                `gorm:"column:reminder_deadline;not null"`
	ReminderSent     bool                     `gorm:"column:reminder_sent;not null;default:false"`
	ReminderSentAt   *time.Time               `gorm:"column:reminder_sent_at"`
	RiskDeadline     time.Time                `gorm:"column:risk_deadline;not null"`
	AtRisk           bool                     `gorm:"column:at_risk;not null;default:false"`
	AtRiskAt         *time.Time               `gorm:"column:at_risk_at"`
	PaymentStatus    enums.PaymentStatus      `gorm:"column:payment_status;type:text;not null;default:'unpaid'"`
	DepositAmount    decimal.Decimal          `gorm:"column:deposit_amount;type:numeric(12,2);not null;default:0"`
	ApprovedBy       *uuid.UUID               `gorm:"column:approved_by;type:uuid"`
	ExtensionCount   int                      `gorm:"column:extension_count;not null;default:0"`
	CancelReason     *string                  `gorm:"column:cancel_reason"`
	CancelledAt      *time.Time               `gorm:"column:cancelled_at"`
	Notes            *string                  `gorm:"column:notes"`
	Archived         bool                     `gorm:"column:archived;not null;default:false;index"`
	ArchivedAt       *time.Time               `gorm:"column:archived_at"`
	ArchivedBy       *uuid.UUID               `gorm:"column:archived_by;type:uuid"`
	ArchiveReason    *string                  `gorm:"column:archive_reason"`
	CreatedAt        time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *Reservation) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// OccupancyStatus is the status that decides slot ownership. An at-risk
// reservation keeps whatever slot its pre-risk status held.
func (r Reservation) OccupancyStatus() enums.ReservationStatus {
	if r.Status == enums.ReservationStatusAtRisk && r.PreRiskStatus != nil {
		return *r.PreRiskStatus
	}
	return r.Status
}

// HoldsSlot reports whether the reservation currently counts toward room occupancy.
func (r Reservation) HoldsSlot() bool {
	return !r.Archived && r.OccupancyStatus().HoldsSlot()
}
