package reservations

import (
	"time"

	"github.com/angelmondragon/dormstay-backend/pkg/db/models"
	"github.com/angelmondragon/dormstay-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateInput describes a new reservation. The caller picks the bed.
type CreateInput struct {
	GuestID       uuid.UUID
	RoomID        uuid.UUID
	BedID         *uuid.UUID
	MoveInDate    time.Time
	PaymentStatus enums.PaymentStatus
	DepositAmount decimal.Decimal
	Notes         *string
	ActorID       *uuid.UUID
	Scope         Scope
}

// StatusInput requests a status change. PaymentStatus, when set, is applied
// before the transition preconditions are checked.
type StatusInput struct {
	ReservationID uuid.UUID
	Status        enums.ReservationStatus
	PaymentStatus *enums.PaymentStatus
	Reason        *string
	ActorID       *uuid.UUID
	Scope         Scope
}

// ExtendInput shifts the move-in date by Days.
type ExtendInput struct {
	ReservationID uuid.UUID
	Days          int
	Note          *string
	ActorID       *uuid.UUID
	Scope         Scope
}

// ReleaseInput cancels a reservation and frees its slot.
type ReleaseInput struct {
	ReservationID uuid.UUID
	Reason        string
	ActorID       *uuid.UUID
	Scope         Scope
}

// ArchiveInput hides a reservation and frees its slot without changing status.
type ArchiveInput struct {
	ReservationID uuid.UUID
	Reason        *string
	ActorID       *uuid.UUID
	Scope         Scope
}

// Result is the outcome of a lifecycle operation. Room is the refreshed room
// when the operation changed the reservation; Changed is false for no-ops.
type Result struct {
	Reservation *models.Reservation `json:"reservation"`
	Room        *models.Room        `json:"room,omitempty"`
	Changed     bool                `json:"changed"`
}
