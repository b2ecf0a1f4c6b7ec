package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dormstay-backend/api/responses"
	"github.com/angelmondragon/dormstay-backend/api/validators"
	"github.com/angelmondragon/dormstay-backend/internal/reservations"
	"github.com/angelmondragon/dormstay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormstay-backend/pkg/errors"
	"github.com/angelmondragon/dormstay-backend/pkg/logger"
	"github.com/angelmondragon/dormstay-backend/pkg/pagination"
)

const reservationIDParam = "reservationId"

type reservationCreateRequest struct {
	GuestID       string           `json:"guest_id" validate:"required,uuid"`
	RoomID        string           `json:"room_id" validate:"required,uuid"`
	BedID         *string          `json:"bed_id"`
	MoveInDate    time.Time        `json:"move_in_date"`
	PaymentStatus string           `json:"payment_status"`
	DepositAmount *decimal.Decimal `json:"deposit_amount" validate:"omitempty,gte=0"`
	Notes         *string          `json:"notes" validate:"omitempty,max=2000"`
}

func (req reservationCreateRequest) toInput(a actor) (reservations.CreateInput, error) {
	guestID, err := uuid.Parse(strings.TrimSpace(req.GuestID))
	if err != nil {
		return reservations.CreateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid guest_id")
	}
	roomID, err := uuid.Parse(strings.TrimSpace(req.RoomID))
	if err != nil {
		return reservations.CreateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid room_id")
	}
	bedID, err := parseOptionalUUID(req.BedID, "bed_id")
	if err != nil {
		return reservations.CreateInput{}, err
	}
	input := reservations.CreateInput{
		GuestID:    guestID,
		RoomID:     roomID,
		BedID:      bedID,
		MoveInDate: req.MoveInDate,
		Notes:      validators.SanitizeOptional(req.Notes, 2000),
		ActorID:    a.userPtr(),
		Scope:      reservations.Scope{BranchID: a.BranchID},
	}
	if raw := strings.TrimSpace(req.PaymentStatus); raw != "" {
		payment, err := enums.ParsePaymentStatus(raw)
		if err != nil {
			return reservations.CreateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_status")
		}
		input.PaymentStatus = payment
	}
	if req.DepositAmount != nil {
		input.DepositAmount = *req.DepositAmount
	}
	return input, nil
}

type reservationStatusRequest struct {
	Status        string  `json:"status" validate:"required"`
	PaymentStatus *string `json:"payment_status"`
	Reason        *string `json:"reason" validate:"omitempty,max=500"`
}

type reservationExtendRequest struct {
	Days int     `json:"days" validate:"required,gt=0"`
	Note *string `json:"note" validate:"omitempty,max=500"`
}

type reservationReleaseRequest struct {
	Reason string `json:"reason" validate:"required,notblank,max=500"`
}

type reservationArchiveRequest struct {
	Reason *string `json:"reason" validate:"omitempty,max=500"`
}

// ReservationCreate books a slot in a room for a guest.
func ReservationCreate(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}
		a, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload reservationCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput(a)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ReservationList returns a cursor page of reservations in the caller's scope.
func ReservationList(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}
		a, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter, err := reservationFilterFromQuery(r, a)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func reservationFilterFromQuery(r *http.Request, a actor) (reservations.ListFilter, error) {
	filter := reservations.ListFilter{Scope: reservations.Scope{BranchID: a.BranchID}}

	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return filter, err
	}
	filter.Page = pagination.Params{Limit: limit, Cursor: strings.TrimSpace(r.URL.Query().Get("cursor"))}

	for _, raw := range validators.ParseQueryList(r, "status") {
		status, err := enums.ParseReservationStatus(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if filter.RoomID, err = validators.ParseQueryUUID(r, "room_id"); err != nil {
		return filter, err
	}
	if filter.GuestID, err = validators.ParseQueryUUID(r, "guest_id"); err != nil {
		return filter, err
	}
	if filter.AtRiskOnly, err = validators.ParseQueryBool(r, "at_risk"); err != nil {
		return filter, err
	}
	if filter.IncludeArchived, err = validators.ParseQueryBool(r, "include_archived"); err != nil {
		return filter, err
	}
	if filter.MoveInFrom, err = validators.ParseQueryTime(r, "move_in_from"); err != nil {
		return filter, err
	}
	if filter.MoveInTo, err = validators.ParseQueryTime(r, "move_in_to"); err != nil {
		return filter, err
	}
	return filter, nil
}

// ReservationDetail returns one reservation visible to the caller.
func ReservationDetail(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}
		a, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := pathUUID(r, reservationIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reservation, err := svc.Get(r.Context(), id, reservations.Scope{BranchID: a.BranchID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reservation)
	}
}

// ReservationUpdateStatus drives a status transition.
func ReservationUpdateStatus(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return reservationMutation(svc, logg, func(r *http.Request, svc reservations.Service, a actor, id uuid.UUID) (*reservations.Result, error) {
		var payload reservationStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		status, err := enums.ParseReservationStatus(strings.TrimSpace(payload.Status))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		input := reservations.StatusInput{
			ReservationID: id,
			Status:        status,
			Reason:        validators.SanitizeOptional(payload.Reason, 500),
			ActorID:       a.userPtr(),
			Scope:         reservations.Scope{BranchID: a.BranchID},
		}
		if payload.PaymentStatus != nil && strings.TrimSpace(*payload.PaymentStatus) != "" {
			payment, err := enums.ParsePaymentStatus(strings.TrimSpace(*payload.PaymentStatus))
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_status")
			}
			input.PaymentStatus = &payment
		}
		return svc.UpdateStatus(r.Context(), input)
	})
}

// ReservationExtend pushes the move-in date out and resets the deadlines.
func ReservationExtend(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return reservationMutation(svc, logg, func(r *http.Request, svc reservations.Service, a actor, id uuid.UUID) (*reservations.Result, error) {
		var payload reservationExtendRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.Extend(r.Context(), reservations.ExtendInput{
			ReservationID: id,
			Days:          payload.Days,
			Note:          validators.SanitizeOptional(payload.Note, 500),
			ActorID:       a.userPtr(),
			Scope:         reservations.Scope{BranchID: a.BranchID},
		})
	})
}

// ReservationRelease cancels a reservation and frees its slot.
func ReservationRelease(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return reservationMutation(svc, logg, func(r *http.Request, svc reservations.Service, a actor, id uuid.UUID) (*reservations.Result, error) {
		var payload reservationReleaseRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.Release(r.Context(), reservations.ReleaseInput{
			ReservationID: id,
			Reason:        validators.SanitizeText(payload.Reason, 500),
			ActorID:       a.userPtr(),
			Scope:         reservations.Scope{BranchID: a.BranchID},
		})
	})
}

// ReservationArchive hides a reservation from default listings.
func ReservationArchive(svc reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return reservationMutation(svc, logg, func(r *http.Request, svc reservations.Service, a actor, id uuid.UUID) (*reservations.Result, error) {
		var payload reservationArchiveRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				return nil, err
			}
		}
		return svc.Archive(r.Context(), reservations.ArchiveInput{
			ReservationID: id,
			Reason:        validators.SanitizeOptional(payload.Reason, 500),
			ActorID:       a.userPtr(),
			Scope:         reservations.Scope{BranchID: a.BranchID},
		})
	})
}

type reservationAction func(r *http.Request, svc reservations.Service, a actor, id uuid.UUID) (*reservations.Result, error)

func reservationMutation(svc reservations.Service, logg *logger.Logger, action reservationAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reservation service unavailable"))
			return
		}
		a, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := pathUUID(r, reservationIDParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithReservationID(ctx, id.String())
		}
		result, err := action(r.WithContext(ctx), svc, a, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
