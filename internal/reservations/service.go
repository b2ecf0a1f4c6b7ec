package reservations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/dormstay-backend/internal/audit"
	"github.com/angelmondragon/dormstay-backend/internal/occupancy"
	"github.com/angelmondragon/dormstay-backend/pkg/db"
	"github.com/angelmondragon/dormstay-backend/pkg/db/models"
	"github.com/angelmondragon/dormstay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormstay-backend/pkg/errors"
	"github.com/angelmondragon/dormstay-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultMaxExtensionDays = 30
	maxCodeAttempts         = 3
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type reconciler interface {
	Apply(ctx context.Context, tx *gorm.DB, before, after *models.Reservation) (*models.Room, error)
}

// TenantPromoter upgrades a guest account once the guest checks in.
type TenantPromoter interface {
	PromoteToTenant(ctx context.Context, tx *gorm.DB, guestID uuid.UUID, at time.Time) error
}

type guestLookup interface {
	GuestExists(ctx context.Context, tx *gorm.DB, guestID uuid.UUID) (bool, error)
}

// Service drives reservations through their lifecycle. Every mutation runs
// under the room lock and inside one transaction with the occupancy update.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*Result, error)
	UpdateStatus(ctx context.Context, input StatusInput) (*Result, error)
	MarkAtRisk(ctx context.Context, id uuid.UUID, now time.Time) (*Result, error)
	Extend(ctx context.Context, input ExtendInput) (*Result, error)
	Release(ctx context.Context, input ReleaseInput) (*Result, error)
	Archive(ctx context.Context, input ArchiveInput) (*Result, error)
	Get(ctx context.Context, id uuid.UUID, scope Scope) (*models.Reservation, error)
	List(ctx context.Context, filter ListFilter) (ListResult, error)
}

// ServiceParams wires the lifecycle service.
type ServiceParams struct {
	DB               txRunner
	Repo             *Repository
	Reconciler       reconciler
	Locker           occupancy.RoomLocker
	Audit            audit.Sink
	Promoter         TenantPromoter
	Guests           guestLookup
	Codes            CodeGenerator
	Policy           TimePolicy
	MaxExtensionDays int
	Logger           *logger.Logger
	Clock            func() time.Time
}

type service struct {
	tx               txRunner
	repo             *Repository
	reconciler       reconciler
	locker           occupancy.RoomLocker
	audit            audit.Sink
	promoter         TenantPromoter
	guests           guestLookup
	codes            CodeGenerator
	policy           TimePolicy
	maxExtensionDays int
	logg             *logger.Logger
	clock            func() time.Time
}

// NewService builds the lifecycle service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("reservations repository required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("occupancy reconciler required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("room locker required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit sink required")
	}
	if params.Promoter == nil {
		return nil, fmt.Errorf("tenant promoter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	codes := params.Codes
	if codes == nil {
		codes = RandomCodes{}
	}
	policy := params.Policy
	if policy.HorizonMonths <= 0 || policy.ReminderOffset <= 0 || policy.RiskOffset <= 0 {
		policy = DefaultTimePolicy()
	}
	maxDays := params.MaxExtensionDays
	if maxDays <= 0 {
		maxDays = defaultMaxExtensionDays
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		tx:               params.DB,
		repo:             params.Repo,
		reconciler:       params.Reconciler,
		locker:           params.Locker,
		audit:            params.Audit,
		promoter:         params.Promoter,
		guests:           params.Guests,
		codes:            codes,
		policy:           policy,
		maxExtensionDays: maxDays,
		logg:             params.Logger,
		clock:            clock,
	}, nil
}

func (s *service) now() time.Time {
	return s.clock().UTC()
}

func (s *service) Create(ctx context.Context, input CreateInput) (*Result, error) {
	if input.GuestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest_id is required")
	}
	if input.RoomID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "room_id is required")
	}
	payment := input.PaymentStatus
	if payment == "" {
		payment = enums.PaymentStatusUnpaid
	}
	if !payment.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment_status %q", payment))
	}
	if input.DepositAmount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deposit_amount must not be negative")
	}
	now := s.now()
	if err := s.policy.ValidateMoveIn(now, input.MoveInDate); err != nil {
		return nil, err
	}

	var (
		result *Result
		err    error
	)
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		result, err = s.create(ctx, input, payment, now)
		if err == nil || !isCodeCollision(err) {
			break
		}
		s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "reservation code collision; retrying")
	}
	if err != nil {
		if isCodeCollision(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "reservation code already taken")
		}
		return nil, err
	}

	ctx = s.logg.WithReservationID(ctx, result.Reservation.ID.String())
	s.logg.Info(ctx, "reservation created")
	s.record(ctx, enums.AuditReservationCreated, input.ActorID, nil, result.Reservation, nil)
	return result, nil
}

func (s *service) create(ctx context.Context, input CreateInput, payment enums.PaymentStatus, now time.Time) (*Result, error) {
	code, err := s.codes.Next(ctx, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate reservation code")
	}

	result := &Result{Changed: true}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		room, err := occupancy.NewRepository(tx).FindRoom(ctx, input.RoomID)
		if err != nil {
			if isRecordNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeRoomNotFound, "room not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load room")
		}
		if room.Archived || !input.Scope.Allows(room.BranchID) {
			return pkgerrors.New(pkgerrors.CodeRoomNotFound, "room not found")
		}
		if input.BedID != nil && !roomHasBed(room, *input.BedID) {
			return pkgerrors.New(pkgerrors.CodeBedNotFound, "bed not found on room").
				WithDetails(map[string]any{"bed_id": input.BedID.String()})
		}
		if s.guests != nil {
			ok, err := s.guests.GuestExists(ctx, tx, input.GuestID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check guest")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeValidation, "guest not found")
			}
		}

		reservation := &models.Reservation{
			Code:          code,
			GuestID:       input.GuestID,
			BranchID:      room.BranchID,
			RoomID:        room.ID,
			BedID:         input.BedID,
			Status:        enums.ReservationStatusPending,
			PaymentStatus: payment,
			DepositAmount: input.DepositAmount.Round(2),
			Notes:         trimmedPtr(input.Notes),
		}
		s.policy.Apply(reservation, input.MoveInDate)

		if err := s.repo.WithTx(tx).Create(ctx, reservation); err != nil {
			return err
		}
		updated, err := s.reconciler.Apply(ctx, tx, nil, reservation)
		if err != nil {
			return err
		}
		result.Reservation = reservation
		result.Room = updated
		return nil
	})
	if err != nil {
		if isCodeCollision(err) {
			return nil, err
		}
		return nil, asDomainError(err, "create reservation")
	}
	return result, nil
}

func (s *service) UpdateStatus(ctx context.Context, input StatusInput) (*Result, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", input.Status))
	}
	if input.PaymentStatus != nil && !input.PaymentStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment_status %q", *input.PaymentStatus))
	}

	action := enums.AuditReservationStatusChanged
	if input.Status == enums.ReservationStatusAtRisk {
		action = enums.AuditReservationAtRisk
	}

	return s.mutate(ctx, mutation{
		id:      input.ReservationID,
		scope:   input.Scope,
		actorID: input.ActorID,
		action:  action,
		note:    input.Reason,
		now:     s.now(),
		apply: func(tx *gorm.DB, current *models.Reservation, now time.Time) (*models.Reservation, error) {
			if current.Status == input.Status {
				return nil, nil
			}
			if current.Archived {
				return nil, invalidTransition(string(current.Status), string(input.Status), "reservation is archived")
			}
			transition, ok := LookupTransition(current.Status, input.Status)
			if !ok {
				return nil, invalidTransition(string(current.Status), string(input.Status), "")
			}

			next := *current
			if input.PaymentStatus != nil {
				next.PaymentStatus = *input.PaymentStatus
			}
			switch transition.Precondition {
			case PreconditionPaymentVerified:
				if !next.PaymentStatus.IsVerified() {
					return nil, invalidTransition(string(current.Status), string(input.Status), "payment not verified")
				}
			case PreconditionRiskDue:
				if !s.policy.RiskDue(now, current) {
					return nil, invalidTransition(string(current.Status), string(input.Status), "risk deadline not reached")
				}
			}

			next.Status = input.Status
			switch input.Status {
			case enums.ReservationStatusConfirmed:
				next.PaymentStatus = enums.PaymentStatusPaid
				next.ApprovedBy = input.ActorID
			case enums.ReservationStatusCheckedIn:
				next.CheckedInAt = &now
				if next.FinalMoveInDate == nil {
					next.FinalMoveInDate = &now
				}
			case enums.ReservationStatusCheckedOut:
				next.CheckOutDate = &now
			case enums.ReservationStatusCancelled:
				next.CancelledAt = &now
				next.CancelReason = trimmedPtr(input.Reason)
			case enums.ReservationStatusAtRisk:
				flagAtRisk(&next, current.Status, now)
			}
			return &next, nil
		},
		afterApply: func(tx *gorm.DB, after *models.Reservation, now time.Time) error {
			if after.Status != enums.ReservationStatusCheckedIn {
				return nil
			}
			return s.promoter.PromoteToTenant(ctx, tx, after.GuestID, now)
		},
	})
}

func (s *service) MarkAtRisk(ctx context.Context, id uuid.UUID, now time.Time) (*Result, error) {
	if now.IsZero() {
		now = s.now()
	}
	return s.mutate(ctx, mutation{
		id:     id,
		action: enums.AuditReservationAtRisk,
		now:    now.UTC(),
		apply: func(tx *gorm.DB, current *models.Reservation, now time.Time) (*models.Reservation, error) {
			if !s.policy.RiskDue(now, current) {
				return nil, nil
			}
			next := *current
			next.Status = enums.ReservationStatusAtRisk
			flagAtRisk(&next, current.Status, now)
			return &next, nil
		},
	})
}

func (s *service) Extend(ctx context.Context, input ExtendInput) (*Result, error) {
	if input.Days <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "days must be positive")
	}
	if input.Days > s.maxExtensionDays {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("days must not exceed %d", s.maxExtensionDays))
	}

	return s.mutate(ctx, mutation{
		id:      input.ReservationID,
		scope:   input.Scope,
		actorID: input.ActorID,
		action:  enums.AuditReservationExtended,
		note:    input.Note,
		now:     s.now(),
		apply: func(tx *gorm.DB, current *models.Reservation, now time.Time) (*models.Reservation, error) {
			switch current.Status {
			case enums.ReservationStatusPending, enums.ReservationStatusConfirmed, enums.ReservationStatusAtRisk:
			default:
				return nil, invalidTransition(string(current.Status), "extended", "only pending, confirmed or at-risk reservations can be extended")
			}
			if current.Archived {
				return nil, invalidTransition(string(current.Status), "extended", "reservation is archived")
			}

			next := *current
			moveIn := current.MoveInDate.AddDate(0, 0, input.Days)
			final := moveIn
			if current.FinalMoveInDate != nil {
				final = current.FinalMoveInDate.AddDate(0, 0, input.Days).UTC()
			}
			s.policy.Apply(&next, moveIn)
			next.FinalMoveInDate = &final
			next.Status = extendedStatus(current)
			next.PreRiskStatus = nil
			next.ExtensionCount++
			return &next, nil
		},
	})
}

func (s *service) Release(ctx context.Context, input ReleaseInput) (*Result, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}

	return s.mutate(ctx, mutation{
		id:      input.ReservationID,
		scope:   input.Scope,
		actorID: input.ActorID,
		action:  enums.AuditReservationReleased,
		note:    &reason,
		now:     s.now(),
		apply: func(tx *gorm.DB, current *models.Reservation, now time.Time) (*models.Reservation, error) {
			switch current.Status {
			case enums.ReservationStatusCancelled:
				return nil, nil
			case enums.ReservationStatusCheckedOut:
				return nil, invalidTransition(string(current.Status), string(enums.ReservationStatusCancelled), "reservation already checked out")
			}

			next := *current
			next.Status = enums.ReservationStatusCancelled
			next.CancelReason = &reason
			next.CancelledAt = &now
			next.AtRisk = false
			next.AtRiskAt = nil
			next.PreRiskStatus = nil
			return &next, nil
		},
	})
}

func (s *service) Archive(ctx context.Context, input ArchiveInput) (*Result, error) {
	reason := trimmedPtr(input.Reason)
	return s.mutate(ctx, mutation{
		id:      input.ReservationID,
		scope:   input.Scope,
		actorID: input.ActorID,
		action:  enums.AuditReservationArchived,
		note:    reason,
		now:     s.now(),
		apply: func(tx *gorm.DB, current *models.Reservation, now time.Time) (*models.Reservation, error) {
			if current.Archived {
				return nil, nil
			}
			if current.OccupancyStatus() == enums.ReservationStatusCheckedIn {
				return nil, invalidTransition(string(current.Status), "archived", "checked-in reservations must check out first")
			}
			next := *current
			next.Archived = true
			next.ArchivedAt = &now
			next.ArchivedBy = input.ActorID
			next.ArchiveReason = reason
			return &next, nil
		},
	})
}

func (s *service) Get(ctx context.Context, id uuid.UUID, scope Scope) (*models.Reservation, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id required")
	}
	return s.repo.FindByID(ctx, id, scope)
}

func (s *service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	for _, status := range filter.Statuses {
		if !status.IsValid() {
			return ListResult{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", status))
		}
	}
	return s.repo.List(ctx, filter)
}

// mutateFn derives the after image from the current record. Returning a nil
// image without error means the operation is a no-op.
type mutateFn func(tx *gorm.DB, current *models.Reservation, now time.Time) (*models.Reservation, error)

// afterApplyFn runs inside the transaction once the room has been reconciled.
type afterApplyFn func(tx *gorm.DB, after *models.Reservation, now time.Time) error

type mutation struct {
	id         uuid.UUID
	scope      Scope
	actorID    *uuid.UUID
	action     enums.AuditAction
	note       *string
	now        time.Time
	apply      mutateFn
	afterApply afterApplyFn
}

// mutate locks the reservation's room, then loads, changes, saves and
// reconciles the reservation in one transaction. The audit entry is written
// after commit.
func (s *service) mutate(ctx context.Context, m mutation) (*Result, error) {
	if m.id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id required")
	}
	ctx = s.logg.WithReservationID(ctx, m.id.String())

	located, err := s.repo.FindByID(ctx, m.id, m.scope)
	if err != nil {
		return nil, err
	}
	unlock, err := s.locker.Lock(ctx, located.RoomID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		before *models.Reservation
		result = &Result{}
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.LockByID(ctx, m.id, m.scope)
		if err != nil {
			return err
		}
		after, err := m.apply(tx, current, m.now)
		if err != nil {
			return err
		}
		if after == nil {
			result.Reservation = current
			return nil
		}
		if err := repo.Save(ctx, after); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save reservation")
		}
		room, err := s.reconciler.Apply(ctx, tx, current, after)
		if err != nil {
			return err
		}
		if m.afterApply != nil {
			if err := m.afterApply(tx, after, m.now); err != nil {
				return err
			}
		}
		before = current
		result.Reservation = after
		result.Room = room
		result.Changed = true
		return nil
	})
	if err != nil {
		return nil, asDomainError(err, "update reservation")
	}

	if result.Changed {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"action":      string(m.action),
			"status_from": string(before.Status),
			"status_to":   string(result.Reservation.Status),
		})
		s.logg.Info(ctx, "reservation updated")
		s.record(ctx, m.action, m.actorID, before, result.Reservation, m.note)
	}
	return result, nil
}

// record writes the audit entry. Failures are logged and never undo the
// committed change.
func (s *service) record(ctx context.Context, action enums.AuditAction, actorID *uuid.UUID, before, after *models.Reservation, note *string) {
	entry := audit.Entry{
		Action:     action,
		EntityType: enums.AuditEntityReservation,
		EntityID:   after.ID,
		ActorID:    actorID,
		After:      after,
		Note:       note,
	}
	if before != nil {
		entry.Before = before
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "audit_action", string(action)), "failed to record audit entry", err)
	}
}

// extendedStatus keeps the slot the reservation held, so a date shift never
// changes occupancy. A confirmed slot implies payment was taken; promoting a
// pending reservation goes through UpdateStatus and its confirm rules.
func extendedStatus(current *models.Reservation) enums.ReservationStatus {
	if current.OccupancyStatus().HoldsSlot() {
		return enums.ReservationStatusConfirmed
	}
	return enums.ReservationStatusPending
}

func flagAtRisk(r *models.Reservation, previous enums.ReservationStatus, now time.Time) {
	pre := previous
	r.PreRiskStatus = &pre
	r.AtRisk = true
	r.AtRiskAt = &now
}

func roomHasBed(room *models.Room, bedID uuid.UUID) bool {
	for _, bed := range room.Beds {
		if bed.ID == bedID {
			return true
		}
	}
	return false
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func isCodeCollision(err error) bool {
	return db.IsUniqueViolation(err, "reservations_code_key") ||
		db.IsUniqueViolation(err, "idx_reservations_code") ||
		db.IsUniqueViolation(err, "reservations.code")
}

// asDomainError keeps typed errors and wraps anything else as a dependency failure.
func asDomainError(err error, message string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
