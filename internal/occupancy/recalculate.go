package occupancy

import (
	"context"
	"fmt"

	"github.com/angelmondragon/dormstay-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dormstay-backend/pkg/errors"
	"github.com/angelmondragon/dormstay-backend/pkg/logger"
	"github.com/angelmondragon/dormstay-backend/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RecalculateResult describes what a full recount changed on one room.
type RecalculateResult struct {
	RoomID            uuid.UUID    `json:"room_id"`
	OccupancyBefore   int          `json:"occupancy_before"`
	OccupancyAfter    int          `json:"occupancy_after"`
	BedsCorrected     int          `json:"beds_corrected"`
	UnassignedHolders []uuid.UUID  `json:"unassigned_holders"`
	Overbooked        int          `json:"overbooked"`
	Room              *models.Room `json:"room"`
}

// Drift reports whether the stored projection differed from the recount.
func (r RecalculateResult) Drift() bool {
	return r.OccupancyBefore != r.OccupancyAfter || r.BedsCorrected > 0
}

// RecalculatorParams configure the recalculator.
type RecalculatorParams struct {
	DB      txRunner
	Locker  RoomLocker
	Logger  *logger.Logger
	Metrics *metrics.OccupancyMetrics
}

// Recalculator rebuilds room occupancy and bed flags from the reservations
// that hold a slot. It repairs any drift left by partial failures.
type Recalculator struct {
	db      txRunner
	locker  RoomLocker
	logg    *logger.Logger
	metrics *metrics.OccupancyMetrics
}

// NewRecalculator builds a recalculator.
func NewRecalculator(params RecalculatorParams) (*Recalculator, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("room locker required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Recalculator{
		db:      params.DB,
		locker:  params.Locker,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// Recalculate recounts one room under its room lock.
func (r *Recalculator) Recalculate(ctx context.Context, roomID uuid.UUID) (*RecalculateResult, error) {
	if roomID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "room id required")
	}
	unlock, err := r.locker.Lock(ctx, roomID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *RecalculateResult
	err = r.db.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		result, txErr = r.recalculate(ctx, NewRepository(tx), roomID)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	ctx = r.logg.WithRoomID(ctx, roomID.String())
	r.metrics.AddUnassigned(len(result.UnassignedHolders))
	if result.Drift() {
		if result.OccupancyBefore != result.OccupancyAfter {
			r.metrics.AddDrift("occupancy", 1)
		}
		r.metrics.AddDrift("beds", result.BedsCorrected)
		r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
			"occupancy_before": result.OccupancyBefore,
			"occupancy_after":  result.OccupancyAfter,
			"beds_corrected":   result.BedsCorrected,
		}), "room projection drift corrected")
	}
	return result, nil
}

// RecalculateBranch recounts every room in the branch, or every room when
// branchID is nil. One failing room does not stop the others.
func (r *Recalculator) RecalculateBranch(ctx context.Context, branchID *uuid.UUID) ([]RecalculateResult, error) {
	var ids []uuid.UUID
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		ids, txErr = NewRepository(tx).RoomIDs(ctx, branchID)
		return txErr
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list rooms")
	}

	results := make([]RecalculateResult, 0, len(ids))
	var errs error
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		res, err := r.Recalculate(ctx, id)
		if err != nil {
			r.logg.Error(r.logg.WithRoomID(ctx, id.String()), "room recalculation failed", err)
			errs = multierr.Append(errs, fmt.Errorf("room %s: %w", id, err))
			continue
		}
		results = append(results, *res)
	}
	return results, errs
}

func (r *Recalculator) recalculate(ctx context.Context, store *Repository, roomID uuid.UUID) (*RecalculateResult, error) {
	room, err := store.FindRoom(ctx, roomID)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeRoomNotFound, "room not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load room")
	}
	holders, err := store.SlotHolders(ctx, roomID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load slot holders")
	}

	result := &RecalculateResult{
		RoomID:            roomID,
		OccupancyBefore:   room.Occupancy,
		UnassignedHolders: []uuid.UUID{},
	}

	beds := make(map[uuid.UUID]struct{}, len(room.Beds))
	for _, bed := range room.Beds {
		beds[bed.ID] = struct{}{}
	}
	desired := make(map[uuid.UUID]*models.Reservation, len(holders))
	for i := range holders {
		holder := &holders[i]
		if len(beds) == 0 {
			continue
		}
		if holder.BedID == nil {
			result.UnassignedHolders = append(result.UnassignedHolders, holder.ID)
			continue
		}
		if _, ok := beds[*holder.BedID]; !ok {
			r.metrics.IncBedMissing()
			result.UnassignedHolders = append(result.UnassignedHolders, holder.ID)
			continue
		}
		if _, taken := desired[*holder.BedID]; taken {
			result.UnassignedHolders = append(result.UnassignedHolders, holder.ID)
			continue
		}
		desired[*holder.BedID] = holder
	}

	for _, bed := range room.Beds {
		want := desired[bed.ID]
		if bedMatches(bed, want) {
			continue
		}
		if err := store.SetBed(ctx, bed.ID, want); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rewrite bed")
		}
		result.BedsCorrected++
	}

	// The rooms table forbids occupancy above capacity. The overflow is
	// reported through Overbooked and the room reads as full.
	occupancy := len(holders)
	if occupancy > room.Capacity {
		result.Overbooked = occupancy - room.Capacity
		occupancy = room.Capacity
		r.logg.Error(r.logg.WithRoomID(ctx, roomID.String()), "room has more slot holders than capacity",
			fmt.Errorf("holders=%d capacity=%d", len(holders), room.Capacity))
	}
	if err := store.WriteOccupancy(ctx, roomID, occupancy); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write occupancy")
	}
	result.OccupancyAfter = occupancy

	refreshed, err := store.FindRoom(ctx, roomID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload room")
	}
	result.Room = refreshed
	return result, nil
}

func bedMatches(bed models.Bed, want *models.Reservation) bool {
	if want == nil {
		return !bed.Occupied && bed.OccupantReservationID == nil && bed.OccupantGuestID == nil
	}
	return bed.Occupied &&
		bed.OccupantReservationID != nil && *bed.OccupantReservationID == want.ID &&
		bed.OccupantGuestID != nil && *bed.OccupantGuestID == want.GuestID
}
