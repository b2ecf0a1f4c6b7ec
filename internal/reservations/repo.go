package reservations

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/dormstay-backend/internal/repo"
	"github.com/angelmondragon/dormstay-backend/pkg/db/models"
	"github.com/angelmondragon/dormstay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormstay-backend/pkg/errors"
	"github.com/angelmondragon/dormstay-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Scope restricts queries to one branch. A nil BranchID sees every branch.
type Scope struct {
	BranchID *uuid.UUID
}

func (s Scope) apply(db *gorm.DB) *gorm.DB {
	if s.BranchID == nil {
		return db
	}
	return db.Where("branch_id = ?", *s.BranchID)
}

// Allows reports whether a record in branchID is visible in this scope.
func (s Scope) Allows(branchID uuid.UUID) bool {
	return s.BranchID == nil || *s.BranchID == branchID
}

// ListFilter narrows List results.
type ListFilter struct {
	Scope           Scope
	Statuses        []enums.ReservationStatus
	RoomID          *uuid.UUID
	GuestID         *uuid.UUID
	AtRiskOnly      bool
	IncludeArchived bool
	MoveInFrom      *time.Time
	MoveInTo        *time.Time
	Page            pagination.Params
}

// ListResult is one page of reservations, newest first.
type ListResult struct {
	Items      []models.Reservation `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// Repository persists reservation records.
type Repository struct {
	repo.Base
}

// NewRepository binds a reservations repository to db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

func (r *Repository) Create(ctx context.Context, reservation *models.Reservation) error {
	return r.DB(ctx).Create(reservation).Error
}

func (r *Repository) Save(ctx context.Context, reservation *models.Reservation) error {
	return r.DB(ctx).Save(reservation).Error
}

// FindByID loads a reservation visible in scope.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID, scope Scope) (*models.Reservation, error) {
	return r.find(r.DB(ctx), id, scope)
}

// LockByID is FindByID holding a row lock until the surrounding transaction ends.
func (r *Repository) LockByID(ctx context.Context, id uuid.UUID, scope Scope) (*models.Reservation, error) {
	return r.find(r.ForUpdate(ctx), id, scope)
}

func (r *Repository) find(conn *gorm.DB, id uuid.UUID, scope Scope) (*models.Reservation, error) {
	var reservation models.Reservation
	err := scope.apply(conn.Where("id = ?", id)).First(&reservation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeReservationNotFound, "reservation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
	}
	return &reservation, nil
}

// List returns a cursor page ordered by created_at, id descending.
func (r *Repository) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	query := filter.Scope.apply(r.DB(ctx).Model(&models.Reservation{}))
	if !filter.IncludeArchived {
		query = query.Where("archived = ?", false)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		query = query.Where("status IN ?", statuses)
	}
	if filter.RoomID != nil {
		query = query.Where("room_id = ?", *filter.RoomID)
	}
	if filter.GuestID != nil {
		query = query.Where("guest_id = ?", *filter.GuestID)
	}
	if filter.AtRiskOnly {
		query = query.Where("at_risk = ?", true)
	}
	if filter.MoveInFrom != nil {
		query = query.Where("move_in_date >= ?", filter.MoveInFrom.UTC())
	}
	if filter.MoveInTo != nil {
		query = query.Where("move_in_date <= ?", filter.MoveInTo.UTC())
	}
	query, err := pagination.Apply(query, filter.Page)
	if err != nil {
		return ListResult{}, err
	}

	var rows []models.Reservation
	if err := query.Find(&rows).Error; err != nil {
		return ListResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reservations")
	}

	result := ListResult{}
	result.Items, result.NextCursor = pagination.Trim(rows, filter.Page, func(row models.Reservation) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return result, nil
}

// SweepCursor is the keyset position of a sweep page: the deadline the page
// is ordered by and the id breaking ties.
type SweepCursor struct {
	Deadline time.Time
	ID       uuid.UUID
}

// ReminderCandidates returns up to limit records past their reminder deadline
// whose reminder has not gone out, ordered after the cursor.
func (r *Repository) ReminderCandidates(ctx context.Context, now time.Time, after *SweepCursor, limit int) ([]models.Reservation, error) {
	query := r.sweepable(ctx).Where("reminder_sent = ? AND reminder_deadline <= ?", false, now.UTC())
	return sweepPage(query, "reminder_deadline", after, limit)
}

// RiskCandidates returns up to limit records past their risk deadline not yet
// flagged, ordered after the cursor.
func (r *Repository) RiskCandidates(ctx context.Context, now time.Time, after *SweepCursor, limit int) ([]models.Reservation, error) {
	query := r.sweepable(ctx).Where("at_risk = ? AND risk_deadline <= ?", false, now.UTC())
	return sweepPage(query, "risk_deadline", after, limit)
}

func sweepPage(query *gorm.DB, column string, after *SweepCursor, limit int) ([]models.Reservation, error) {
	if after != nil {
		query = query.Where(
			"("+column+" > ? OR ("+column+" = ? AND id > ?))",
			after.Deadline.UTC(), after.Deadline.UTC(), after.ID,
		)
	}
	var rows []models.Reservation
	err := query.Order(column + " ASC, id ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

// MarkReminderSent flags the reminder as delivered. It reports false when the
// record was already flagged or left the sweepable states.
func (r *Repository) MarkReminderSent(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.sweepable(ctx).
		Where("id = ? AND reminder_sent = ?", id, false).
		Updates(map[string]any{
			"reminder_sent":    true,
			"reminder_sent_at": now.UTC(),
		})
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) sweepable(ctx context.Context) *gorm.DB {
	return r.DB(ctx).Model(&models.Reservation{}).
		Where("archived = ? AND status IN ?", false, []string{
			string(enums.ReservationStatusPending),
			string(enums.ReservationStatusConfirmed),
		})
}
