package occupancy

import (
	"context"
	"errors"

	"github.com/angelmondragon/dormstay-backend/internal/repo"
	"github.com/angelmondragon/dormstay-backend/pkg/db/models"
	"github.com/angelmondragon/dormstay-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository holds the conditional statements that keep rooms and beds in step
// with reservations. Every method runs on the bound connection, so callers pass
// the transaction through WithTx.
type Repository struct {
	repo.Base
}

// NewRepository binds the repository to db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

// FindRoom loads a room with its beds ordered by label, archived rooms included.
func (r *Repository) FindRoom(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	var room models.Room
	err := r.DB(ctx).
		Preload("Beds", func(db *gorm.DB) *gorm.DB { return db.Order("label ASC") }).
		Where("id = ?", roomID).
		First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// ActiveRoomExists reports whether a non-archived room with roomID exists.
func (r *Repository) ActiveRoomExists(ctx context.Context, roomID uuid.UUID) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Room{}).
		Where("id = ? AND archived = ?", roomID, false).
		Count(&count).Error
	return count > 0, err
}

// IncrementOccupancy adds one slot only while the room has spare capacity.
func (r *Repository) IncrementOccupancy(ctx context.Context, roomID uuid.UUID) (int64, error) {
	res := r.DB(ctx).Model(&models.Room{}).
		Where("id = ? AND archived = ? AND occupancy < capacity", roomID, false).
		Update("occupancy", gorm.Expr("occupancy + 1"))
	return res.RowsAffected, res.Error
}

// DecrementOccupancy removes one slot without going below zero.
func (r *Repository) DecrementOccupancy(ctx context.Context, roomID uuid.UUID) (int64, error) {
	res := r.DB(ctx).Model(&models.Room{}).
		Where("id = ? AND occupancy > 0", roomID).
		Update("occupancy", gorm.Expr("occupancy - 1"))
	return res.RowsAffected, res.Error
}

// RefreshAvailability recomputes the derived availability flag from the row itself.
func (r *Repository) RefreshAvailability(ctx context.Context, roomID uuid.UUID) error {
	return r.DB(ctx).Model(&models.Room{}).
		Where("id = ?", roomID).
		Update("available", gorm.Expr("(on_hold = ? AND occupancy < capacity)", false)).Error
}

// WriteOccupancy overwrites occupancy and availability in one statement.
func (r *Repository) WriteOccupancy(ctx context.Context, roomID uuid.UUID, occupancy int) error {
	return r.DB(ctx).Model(&models.Room{}).
		Where("id = ?", roomID).
		Updates(map[string]any{
			"occupancy": occupancy,
			"available": gorm.Expr("(on_hold = ? AND ? < capacity)", false, occupancy),
		}).Error
}

// OccupyBed marks a bed taken by the reservation when it is free or already
// held by that reservation.
func (r *Repository) OccupyBed(ctx context.Context, roomID, bedID, guestID, reservationID uuid.UUID) (int64, error) {
	res := r.DB(ctx).Model(&models.Bed{}).
		Where("id = ? AND room_id = ?", bedID, roomID).
		Where("(occupied = ? OR occupant_reservation_id = ?)", false, reservationID).
		Updates(map[string]any{
			"occupied":                true,
			"occupant_guest_id":       guestID,
			"occupant_reservation_id": reservationID,
		})
	return res.RowsAffected, res.Error
}

// VacateBed frees a bed only while the reservation still holds it.
func (r *Repository) VacateBed(ctx context.Context, roomID, bedID, reservationID uuid.UUID) (int64, error) {
	res := r.DB(ctx).Model(&models.Bed{}).
		Where("id = ? AND room_id = ? AND occupant_reservation_id = ?", bedID, roomID, reservationID).
		Updates(map[string]any{
			"occupied":                false,
			"occupant_guest_id":       nil,
			"occupant_reservation_id": nil,
		})
	return res.RowsAffected, res.Error
}

// SetBed writes the full occupant state of one bed.
func (r *Repository) SetBed(ctx context.Context, bedID uuid.UUID, holder *models.Reservation) error {
	values := map[string]any{
		"occupied":                false,
		"occupant_guest_id":       nil,
		"occupant_reservation_id": nil,
	}
	if holder != nil {
		values["occupied"] = true
		values["occupant_guest_id"] = holder.GuestID
		values["occupant_reservation_id"] = holder.ID
	}
	return r.DB(ctx).Model(&models.Bed{}).Where("id = ?", bedID).Updates(values).Error
}

// FindBed loads a bed on the given room.
func (r *Repository) FindBed(ctx context.Context, roomID, bedID uuid.UUID) (*models.Bed, error) {
	var bed models.Bed
	err := r.DB(ctx).Where("id = ? AND room_id = ?", bedID, roomID).First(&bed).Error
	if err != nil {
		return nil, err
	}
	return &bed, nil
}

// SlotHolders returns the non-archived reservations on a room whose occupancy
// status holds a slot, oldest first.
func (r *Repository) SlotHolders(ctx context.Context, roomID uuid.UUID) ([]models.Reservation, error) {
	holding := holdingStatuses()
	var rows []models.Reservation
	err := r.DB(ctx).
		Where("room_id = ? AND archived = ?", roomID, false).
		Where("(status IN ? OR (status = ? AND pre_risk_status IN ?))", holding, string(enums.ReservationStatusAtRisk), holding).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// RoomIDs lists room ids, optionally restricted to one branch.
func (r *Repository) RoomIDs(ctx context.Context, branchID *uuid.UUID) ([]uuid.UUID, error) {
	query := r.DB(ctx).Model(&models.Room{})
	if branchID != nil {
		query = query.Where("branch_id = ?", *branchID)
	}
	var ids []uuid.UUID
	if err := query.Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func holdingStatuses() []string {
	out := []string{}
	for _, status := range enums.ReservationStatuses() {
		if status.HoldsSlot() {
			out = append(out, string(status))
		}
	}
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
