package rooms

import (
	"time"

	"github.com/angelmondragon/dormstay-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RoomDTO is the API view of a room and its beds.
type RoomDTO struct {
	ID          uuid.UUID       `json:"id"`
	BranchID    uuid.UUID       `json:"branch_id"`
	Number      string          `json:"number"`
	Floor       *string         `json:"floor,omitempty"`
	Capacity    int             `json:"capacity"`
	Occupancy   int             `json:"occupancy"`
	Available   bool            `json:"available"`
	OnHold      bool            `json:"on_hold"`
	MonthlyRate decimal.Decimal `json:"monthly_rate"`
	Archived    bool            `json:"archived"`
	Beds        []BedDTO        `json:"beds"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// BedDTO is the API view of one bed.
type BedDTO struct {
	ID                    uuid.UUID  `json:"id"`
	Label                 string     `json:"label"`
	Position              string     `json:"position,omitempty"`
	Occupied              bool       `json:"occupied"`
	OccupantGuestID       *uuid.UUID `json:"occupant_guest_id,omitempty"`
	OccupantReservationID *uuid.UUID `json:"occupant_reservation_id,omitempty"`
}

// FromModel maps a persisted room into a DTO.
func FromModel(m *models.Room) *RoomDTO {
	if m == nil {
		return nil
	}
	dto := &RoomDTO{
		ID:          m.ID,
		BranchID:    m.BranchID,
		Number:      m.Number,
		Floor:       m.Floor,
		Capacity:    m.Capacity,
		Occupancy:   m.Occupancy,
		Available:   m.Available,
		OnHold:      m.OnHold,
		MonthlyRate: m.MonthlyRate,
		Archived:    m.Archived,
		Beds:        make([]BedDTO, 0, len(m.Beds)),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	for _, bed := range m.Beds {
		dto.Beds = append(dto.Beds, BedDTO{
			ID:                    bed.ID,
			Label:                 bed.Label,
			Position:              bed.Position,
			Occupied:              bed.Occupied,
			OccupantGuestID:       bed.OccupantGuestID,
			OccupantReservationID: bed.OccupantReservationID,
		})
	}
	return dto
}

// BedInput describes one bed on a new room.
type BedInput struct {
	Label    string
	Position string
}

// CreateRoomInput holds creation-time data for a room. When beds are given
// there must be exactly one per unit of capacity.
type CreateRoomInput struct {
	BranchID    uuid.UUID
	Number      string
	Floor       *string
	Capacity    int
	MonthlyRate decimal.Decimal
	Beds        []BedInput
	ActorID     *uuid.UUID
}

// ToModel builds the room row. Occupancy starts at zero.
func (in CreateRoomInput) ToModel() *models.Room {
	room := &models.Room{
		BranchID:    in.BranchID,
		Number:      in.Number,
		Floor:       in.Floor,
		Capacity:    in.Capacity,
		Available:   true,
		MonthlyRate: in.MonthlyRate.Round(2),
	}
	for _, bed := range in.Beds {
		room.Beds = append(room.Beds, models.Bed{Label: bed.Label, Position: bed.Position})
	}
	return room
}

// ListFilter narrows room listings.
type ListFilter struct {
	BranchID        *uuid.UUID
	AvailableOnly   bool
	IncludeArchived bool
}
