package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dormstay-backend/api/responses"
	"github.com/angelmondragon/dormstay-backend/api/validators"
	"github.com/angelmondragon/dormstay-backend/internal/rooms"
	pkgerrors "github.com/angelmondragon/dormstay-backend/pkg/errors"
	"github.com/angelmondragon/dormstay-backend/pkg/logger"
)

const roomIDParam = "roomId"

type roomBedRequest struct {
	Label    string `json:"label" validate:"required,max=16"`
	Position string `json:"position" validate:"max=32"`
}

type roomCreateRequest struct {
	BranchID    *string          `json:"branch_id"`
	Number      string           `json:"number" validate:"required,max=32"`
	Floor       *string          `json:"floor" validate:"omitempty,max=16"`
	Capacity    int              `json:"capacity" validate:"required,gt=0,max=64"`
	MonthlyRate decimal.Decimal  `json:"monthly_rate" validate:"gte=0"`
	Beds        []roomBedRequest `json:"beds" validate:"dive"`
}

// toInput resolves the target branch: scoped callers may only create rooms in
// their own branch, unscoped admins must name one.
func (req roomCreateRequest) toInput(a actor) (rooms.CreateRoomInput, error) {
	requested, err := parseOptionalUUID(req.BranchID, "branch_id")
	if err != nil {
		return rooms.CreateRoomInput{}, err
	}
	var branchID uuid.UUID
	switch {
	case a.BranchID != nil:
		if requested != nil && *requested != *a.BranchID {
			return rooms.CreateRoomInput{}, pkgerrors.New(pkgerrors.CodeForbidden, "branch outside caller scope")
		}
		branchID = *a.BranchID
	case requested != nil:
		branchID = *requested
	default:
		return rooms.CreateRoomInput{}, pkgerrors.New(pkgerrors.CodeValidation, "branch_id is required")
	}

	input := rooms.CreateRoomInput{
		BranchID:    branchID,
		Number:      validators.SanitizeText(req.Number, 32),
		Floor:       validators.SanitizeOptional(req.Floor, 16),
		Capacity:    req.Capacity,
		MonthlyRate: req.MonthlyRate,
		ActorID:     a.userPtr(),
	}
	for _, bed := range req.Beds {
		input.Beds = append(input.Beds, rooms.BedInput{
			Label:    validators.SanitizeText(bed.Label, 16),
			Position: validators.SanitizeText(bed.Position, 32),
		})
	}
	return input, nil
}

type roomHoldRequest struct {
	OnHold bool `json:"on_hold"`
}

// RoomCreate registers a room with its beds.
func RoomCreate(svc rooms.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "room service unavailable"))
			return
		}
		a, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload roomCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput(a)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		room, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, room)
	}
}

func RoomList(svc rooms.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "room service unavailable"))
			return
		}
		a, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := rooms.ListFilter{BranchID: a.BranchID}
		if filter.AvailableOnly, err = validators.ParseQueryBool(r, "available"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.IncludeArchived, err = validators.ParseQueryBool(r, "include_archived"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if a.BranchID == nil {
			if filter.BranchID, err = validators.ParseQueryUUID(r, "branch_id"); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		list, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func RoomDetail(svc rooms.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "room service unavailable"))
			return
		}
		a, id, err := roomRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		room, err := svc.Get(r.Context(), id, a.BranchID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, room)
	}
}

// RoomSetHold takes a room off the market or puts it back.
func RoomSetHold(svc rooms.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "room service unavailable"))
			return
		}
		a, id, err := roomRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload roomHoldRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		room, err := svc.SetHold(r.Context(), id, a.BranchID, payload.OnHold)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, room)
	}
}

// RoomRecalculate rebuilds occupancy and bed flags from reservations.
func RoomRecalculate(svc rooms.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "room service unavailable"))
			return
		}
		a, id, err := roomRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithRoomID(ctx, id.String())
		}
		result, err := svc.Recalculate(ctx, id, a.BranchID, a.userPtr())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"room":               rooms.FromModel(result.Room),
			"occupancy_before":   result.OccupancyBefore,
			"occupancy_after":    result.OccupancyAfter,
			"beds_corrected":     result.BedsCorrected,
			"unassigned_holders": result.UnassignedHolders,
			"overbooked":         result.Overbooked,
			"drift":              result.Drift(),
		})
	}
}

func roomRequest(r *http.Request) (actor, uuid.UUID, error) {
	a, err := actorFromRequest(r)
	if err != nil {
		return actor{}, uuid.Nil, err
	}
	id, err := pathUUID(r, roomIDParam)
	if err != nil {
		return actor{}, uuid.Nil, err
	}
	return a, id, nil
}
