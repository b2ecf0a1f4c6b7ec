package rooms

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/dormstay-backend/internal/audit"
	"github.com/angelmondragon/dormstay-backend/internal/occupancy"
	"github.com/angelmondragon/dormstay-backend/pkg/db"
	"github.com/angelmondragon/dormstay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormstay-backend/pkg/errors"
	"github.com/angelmondragon/dormstay-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type recalculator interface {
	Recalculate(ctx context.Context, roomID uuid.UUID) (*occupancy.RecalculateResult, error)
}

// Service exposes room inventory operations.
type Service interface {
	Create(ctx context.Context, input CreateRoomInput) (*RoomDTO, error)
	Get(ctx context.Context, id uuid.UUID, branchID *uuid.UUID) (*RoomDTO, error)
	List(ctx context.Context, filter ListFilter) ([]RoomDTO, error)
	SetHold(ctx context.Context, id uuid.UUID, branchID *uuid.UUID, onHold bool) (*RoomDTO, error)
	Recalculate(ctx context.Context, id uuid.UUID, branchID *uuid.UUID, actorID *uuid.UUID) (*occupancy.RecalculateResult, error)
}

// ServiceParams wires the room service.
type ServiceParams struct {
	DB           txRunner
	Repo         *Repository
	Recalculator recalculator
	Locker       occupancy.RoomLocker
	Audit        audit.Sink
	Logger       *logger.Logger
}

type service struct {
	tx           txRunner
	repo         *Repository
	recalculator recalculator
	locker       occupancy.RoomLocker
	audit        audit.Sink
	logg         *logger.Logger
}

// NewService builds a room service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("rooms repository required")
	}
	if params.Recalculator == nil {
		return nil, fmt.Errorf("recalculator required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("room locker required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit sink required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:           params.DB,
		repo:         params.Repo,
		recalculator: params.Recalculator,
		locker:       params.Locker,
		audit:        params.Audit,
		logg:         params.Logger,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateRoomInput) (*RoomDTO, error) {
	input.Number = strings.TrimSpace(input.Number)
	if input.BranchID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "branch_id is required")
	}
	if input.Number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "number is required")
	}
	if input.Capacity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "capacity must be positive")
	}
	if input.MonthlyRate.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "monthly_rate must not be negative")
	}
	if len(input.Beds) > 0 && len(input.Beds) != input.Capacity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "beds must match capacity").
			WithDetails(map[string]any{"capacity": input.Capacity, "beds": len(input.Beds)})
	}
	seen := make(map[string]struct{}, len(input.Beds))
	for i := range input.Beds {
		label := strings.TrimSpace(input.Beds[i].Label)
		if label == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "bed label is required")
		}
		if _, dup := seen[label]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("duplicate bed label %q", label))
		}
		seen[label] = struct{}{}
		input.Beds[i].Label = label
	}

	room := input.ToModel()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.BranchExists(ctx, input.BranchID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check branch")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeValidation, "branch not found")
		}
		if err := repo.Create(ctx, room); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "bed labels must be unique within a room")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create room")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithRoomID(ctx, room.ID.String())
	s.logg.Info(s.logg.WithField(ctx, "capacity", room.Capacity), "room created")
	return s.Get(ctx, room.ID, nil)
}

func (s *service) Get(ctx context.Context, id uuid.UUID, branchID *uuid.UUID) (*RoomDTO, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "room id required")
	}
	room, err := s.repo.FindByID(ctx, id, branchID)
	if err != nil {
		return nil, err
	}
	return FromModel(room), nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]RoomDTO, error) {
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]RoomDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}

// SetHold toggles the availability override under the room lock and
// recomputes availability.
func (s *service) SetHold(ctx context.Context, id uuid.UUID, branchID *uuid.UUID, onHold bool) (*RoomDTO, error) {
	if _, err := s.Get(ctx, id, branchID); err != nil {
		return nil, err
	}
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).SetHold(ctx, id, onHold); err != nil {
			return err
		}
		return occupancy.NewRepository(tx).RefreshAvailability(ctx, id)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update room hold")
	}
	s.logg.Info(s.logg.WithField(s.logg.WithRoomID(ctx, id.String()), "on_hold", onHold), "room hold updated")
	return s.Get(ctx, id, branchID)
}

// Recalculate rebuilds the room projection from its reservations and records
// the correction in the audit trail.
func (s *service) Recalculate(ctx context.Context, id uuid.UUID, branchID *uuid.UUID, actorID *uuid.UUID) (*occupancy.RecalculateResult, error) {
	before, err := s.Get(ctx, id, branchID)
	if err != nil {
		return nil, err
	}
	result, err := s.recalculator.Recalculate(ctx, id)
	if err != nil {
		return nil, err
	}

	entry := audit.Entry{
		Action:     enums.AuditRoomRecalculated,
		EntityType: enums.AuditEntityRoom,
		EntityID:   id,
		ActorID:    actorID,
		Before:     before,
		After:      result,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logg.Error(s.logg.WithRoomID(ctx, id.String()), "failed to record audit entry", err)
	}
	return result, nil
}
