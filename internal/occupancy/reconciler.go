package occupancy

import (
	"context"

	"github.com/angelmondragon/dormstay-backend/pkg/db/models"
	"github.com/angelmondragon/dormstay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormstay-backend/pkg/errors"
	"github.com/angelmondragon/dormstay-backend/pkg/logger"
	"github.com/angelmondragon/dormstay-backend/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Effect is the change a reservation mutation makes to its room.
type Effect int

const (
	EffectNone Effect = iota
	EffectIncrement
	EffectDecrement
)

func (e Effect) String() string {
	switch e {
	case EffectIncrement:
		return metrics.EffectIncrement
	case EffectDecrement:
		return metrics.EffectDecrement
	default:
		return metrics.EffectNone
	}
}

// EffectOf compares two images of the same reservation. A nil before is the
// creation case.
func EffectOf(before, after *models.Reservation) Effect {
	was := before != nil && before.HoldsSlot()
	now := after != nil && after.HoldsSlot()
	switch {
	case !was && now:
		return EffectIncrement
	case was && !now:
		return EffectDecrement
	default:
		return EffectNone
	}
}

// Reconciler applies reservation mutations to the room and bed projection
// inside the caller's transaction.
type Reconciler struct {
	logg    *logger.Logger
	metrics *metrics.OccupancyMetrics
}

// NewReconciler builds a reconciler. Metrics are optional.
func NewReconciler(logg *logger.Logger, m *metrics.OccupancyMetrics) (*Reconciler, error) {
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger required")
	}
	return &Reconciler{logg: logg, metrics: m}, nil
}

// Reconcile applies the effect of moving res from oldStatus to its current
// status. A nil oldStatus means the reservation was just created.
//
// Leaving at_risk is driven by the slot the reservation held before it was
// flagged: res.PreRiskStatus when still set, otherwise the status an
// extension restored (pending or confirmed), so an extension never changes
// occupancy. A reservation cancelled out of at_risk must keep PreRiskStatus
// for its slot to be freed here.
func (r *Reconciler) Reconcile(ctx context.Context, tx *gorm.DB, res *models.Reservation, oldStatus *enums.ReservationStatus) (*models.Room, error) {
	if res == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation required")
	}
	var before *models.Reservation
	if oldStatus != nil {
		image := *res
		image.Status = *oldStatus
		image.PreRiskStatus = nil
		if *oldStatus == enums.ReservationStatusAtRisk {
			held := preRiskStatus(res)
			image.PreRiskStatus = &held
		}
		before = &image
	}
	return r.Apply(ctx, tx, before, res)
}

func preRiskStatus(res *models.Reservation) enums.ReservationStatus {
	switch {
	case res.PreRiskStatus != nil:
		return *res.PreRiskStatus
	case res.Status == enums.ReservationStatusPending || res.Status == enums.ReservationStatusConfirmed:
		return res.Status
	default:
		return enums.ReservationStatusPending
	}
}

// Apply performs exactly one of increment, decrement or no-op on the room
// derived from the before and after images, toggles the bed in lock-step and
// returns the refreshed room.
func (r *Reconciler) Apply(ctx context.Context, tx *gorm.DB, before, after *models.Reservation) (*models.Room, error) {
	if after == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation required")
	}
	if tx == nil || tx.Statement == nil || tx.Statement.ConnPool == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction required")
	}
	if before != nil && before.RoomID != after.RoomID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation cannot change rooms")
	}

	store := NewRepository(tx)
	ctx = r.logg.WithReservationID(ctx, after.ID.String())
	ctx = r.logg.WithRoomID(ctx, after.RoomID.String())

	effect := EffectOf(before, after)
	var err error
	switch effect {
	case EffectIncrement:
		err = r.increment(ctx, store, after)
	case EffectDecrement:
		err = r.decrement(ctx, store, before)
	default:
		if before != nil && before.HoldsSlot() && after.HoldsSlot() && !sameBed(before.BedID, after.BedID) {
			err = r.moveBed(ctx, store, before, after)
		}
	}
	if err != nil {
		return nil, err
	}
	r.metrics.IncEffect(effect.String())

	if err := store.RefreshAvailability(ctx, after.RoomID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refresh room availability")
	}
	room, err := store.FindRoom(ctx, after.RoomID)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeRoomNotFound, "room not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load room")
	}
	return room, nil
}

func (r *Reconciler) increment(ctx context.Context, store *Repository, res *models.Reservation) error {
	rows, err := store.IncrementOccupancy(ctx, res.RoomID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment room occupancy")
	}
	if rows == 0 {
		exists, err := store.ActiveRoomExists(ctx, res.RoomID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check room")
		}
		if !exists {
			return pkgerrors.New(pkgerrors.CodeRoomNotFound, "room not found")
		}
		r.metrics.IncConflict()
		return pkgerrors.New(pkgerrors.CodeReconciliationConflict, "room is at capacity").
			WithDetails(map[string]any{"room_id": res.RoomID.String()})
	}
	if res.BedID == nil {
		return nil
	}
	return r.occupyBed(ctx, store, res)
}

func (r *Reconciler) decrement(ctx context.Context, store *Repository, res *models.Reservation) error {
	rows, err := store.DecrementOccupancy(ctx, res.RoomID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement room occupancy")
	}
	if rows == 0 {
		if _, err := store.FindRoom(ctx, res.RoomID); err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeRoomNotFound, "room not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check room")
		}
		r.logg.Warn(ctx, "room occupancy already zero on release; projection drifted")
	}
	if res.BedID == nil {
		return nil
	}
	return r.vacateBed(ctx, store, res)
}

func (r *Reconciler) moveBed(ctx context.Context, store *Repository, before, after *models.Reservation) error {
	if before.BedID != nil {
		if err := r.vacateBed(ctx, store, before); err != nil {
			return err
		}
	}
	if after.BedID != nil {
		return r.occupyBed(ctx, store, after)
	}
	return nil
}

func (r *Reconciler) occupyBed(ctx context.Context, store *Repository, res *models.Reservation) error {
	bedID := *res.BedID
	rows, err := store.OccupyBed(ctx, res.RoomID, bedID, res.GuestID, res.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "occupy bed")
	}
	if rows > 0 {
		return nil
	}
	bed, err := store.FindBed(ctx, res.RoomID, bedID)
	if err != nil {
		if isNotFound(err) {
			r.bedMissing(ctx, bedID)
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bed")
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "bed is occupied by another reservation").
		WithDetails(map[string]any{"bed_id": bed.ID.String(), "bed_label": bed.Label})
}

func (r *Reconciler) vacateBed(ctx context.Context, store *Repository, res *models.Reservation) error {
	bedID := *res.BedID
	rows, err := store.VacateBed(ctx, res.RoomID, bedID, res.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "vacate bed")
	}
	if rows > 0 {
		return nil
	}
	if _, err := store.FindBed(ctx, res.RoomID, bedID); err != nil {
		if isNotFound(err) {
			r.bedMissing(ctx, bedID)
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bed")
	}
	r.logg.Warn(r.logg.WithField(ctx, "bed_id", bedID.String()), "bed was not held by reservation; left untouched")
	return nil
}

func (r *Reconciler) bedMissing(ctx context.Context, bedID uuid.UUID) {
	r.metrics.IncBedMissing()
	err := pkgerrors.New(pkgerrors.CodeBedNotFound, "bed not found")
	ctx = r.logg.WithFields(ctx, map[string]any{
		"bed_id":     bedID.String(),
		"error_code": string(err.Code()),
	})
	r.logg.Warn(ctx, "bed missing; room occupancy updated without bed flags")
}

func sameBed(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
