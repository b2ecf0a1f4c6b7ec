package reservations

import (
	"time"

	"github.com/angelmondragon/dormstay-backend/pkg/config"
	"github.com/angelmondragon/dormstay-backend/pkg/db/models"
	"github.com/angelmondragon/dormstay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormstay-backend/pkg/errors"
)

const (
	defaultHorizonMonths  = 3
	defaultReminderOffset = 24 * time.Hour
	defaultRiskOffset     = 48 * time.Hour
)

// TimePolicy derives reminder and risk deadlines from a move-in date and bounds
// the booking window. It holds no state besides its offsets.
type TimePolicy struct {
	HorizonMonths  int
	ReminderOffset time.Duration
	RiskOffset     time.Duration
}

// DefaultTimePolicy is a three month horizon with reminders one day and risk
// two days after move-in.
func DefaultTimePolicy() TimePolicy {
	return TimePolicy{
		HorizonMonths:  defaultHorizonMonths,
		ReminderOffset: defaultReminderOffset,
		RiskOffset:     defaultRiskOffset,
	}
}

// NewTimePolicy builds a policy from configuration, falling back to defaults
// for unset values.
func NewTimePolicy(cfg config.ReservationConfig) TimePolicy {
	policy := DefaultTimePolicy()
	if cfg.BookingHorizonMonths > 0 {
		policy.HorizonMonths = cfg.BookingHorizonMonths
	}
	if cfg.ReminderOffset > 0 {
		policy.ReminderOffset = cfg.ReminderOffset
	}
	if cfg.RiskOffset > 0 {
		policy.RiskOffset = cfg.RiskOffset
	}
	return policy
}

// Deadlines returns the reminder and risk deadlines for moveIn.
func (p TimePolicy) Deadlines(moveIn time.Time) (reminder, risk time.Time) {
	return moveIn.Add(p.ReminderOffset), moveIn.Add(p.RiskOffset)
}

// Window returns the inclusive booking window for now: the start of today (UTC)
// through now plus the horizon.
func (p TimePolicy) Window(now time.Time) (earliest, latest time.Time) {
	now = now.UTC()
	earliest = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	latest = now.AddDate(0, p.HorizonMonths, 0)
	return earliest, latest
}

// ValidateMoveIn rejects move-in dates outside the booking window.
func (p TimePolicy) ValidateMoveIn(now, moveIn time.Time) error {
	if moveIn.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "move_in_date is required")
	}
	earliest, latest := p.Window(now)
	if moveIn.Before(earliest) || moveIn.After(latest) {
		return pkgerrors.New(pkgerrors.CodeDateOutOfRange, "move-in date outside booking window").
			WithDetails(map[string]any{
				"move_in_date": moveIn.UTC().Format(time.RFC3339),
				"earliest":     earliest.Format(time.RFC3339),
				"latest":       latest.Format(time.RFC3339),
			})
	}
	return nil
}

// ReminderDue reports whether the move-in reminder should go out now.
func (p TimePolicy) ReminderDue(now time.Time, r *models.Reservation) bool {
	return sweepable(r) && !r.ReminderSent && !r.ReminderDeadline.After(now)
}

// RiskDue reports whether the reservation has passed its risk deadline without
// being flagged.
func (p TimePolicy) RiskDue(now time.Time, r *models.Reservation) bool {
	return sweepable(r) && !r.AtRisk && !r.RiskDeadline.After(now)
}

// Apply moves the reservation to moveIn, recomputes both deadlines and clears
// the reminder and risk flags.
func (p TimePolicy) Apply(r *models.Reservation, moveIn time.Time) {
	moveIn = moveIn.UTC()
	r.MoveInDate = moveIn
	r.ReminderDeadline, r.RiskDeadline = p.Deadlines(moveIn)
	r.ReminderSent = false
	r.ReminderSentAt = nil
	r.AtRisk = false
	r.AtRiskAt = nil
}

func sweepable(r *models.Reservation) bool {
	if r == nil || r.Archived {
		return false
	}
	return r.Status == enums.ReservationStatusPending || r.Status == enums.ReservationStatusConfirmed
}
