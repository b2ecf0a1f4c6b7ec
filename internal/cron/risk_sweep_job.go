package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/dormstay-backend/internal/reservations"
	"github.com/angelmondragon/dormstay-backend/pkg/db/models"
	"github.com/angelmondragon/dormstay-backend/pkg/logger"
	"github.com/angelmondragon/dormstay-backend/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const defaultSweepBatch = 200

// RiskSweepJobParams configure the reminder and at-risk sweep.
type RiskSweepJobParams struct {
	Logger    *logger.Logger
	Repo      sweepRepository
	Service   riskMarker
	Notifier  reminderSender
	Metrics   *metrics.OccupancyMetrics
	BatchSize int
	Clock     func() time.Time
}

type sweepRepository interface {
	ReminderCandidates(ctx context.Context, now time.Time, after *reservations.SweepCursor, limit int) ([]models.Reservation, error)
	RiskCandidates(ctx context.Context, now time.Time, after *reservations.SweepCursor, limit int) ([]models.Reservation, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

type riskMarker interface {
	MarkAtRisk(ctx context.Context, id uuid.UUID, now time.Time) (*reservations.Result, error)
}

type reminderSender interface {
	SendReminder(ctx context.Context, reservation *models.Reservation) error
}

// NewRiskSweepJob builds the job that sends move-in reminders and flags
// reservations whose risk deadline has passed.
func NewRiskSweepJob(params RiskSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("reservations repository required")
	}
	if params.Service == nil {
		return nil, fmt.Errorf("reservations service required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &riskSweepJob{
		logg:     params.Logger,
		repo:     params.Repo,
		service:  params.Service,
		notifier: params.Notifier,
		metrics:  params.Metrics,
		batch:    batch,
		clock:    clock,
	}, nil
}

type riskSweepJob struct {
	logg     *logger.Logger
	repo     sweepRepository
	service  riskMarker
	notifier reminderSender
	metrics  *metrics.OccupancyMetrics
	batch    int
	clock    func() time.Time
}

func (j *riskSweepJob) Name() string { return "reservation-risk-sweep" }

// Run processes reminders before risk flags so a record crossing both
// deadlines in one pass still gets its reminder. One failing record never
// stops the rest of the batch.
func (j *riskSweepJob) Run(ctx context.Context) error {
	now := j.clock().UTC()
	var errs error
	errs = multierr.Append(errs, j.sendReminders(ctx, now))
	errs = multierr.Append(errs, j.flagRisks(ctx, now))
	return errs
}

type pageLoader func(ctx context.Context, after *reservations.SweepCursor, limit int) ([]models.Reservation, error)

// walk feeds every candidate to visit, page by page in (deadline, id) order,
// until a page comes back short. Records that fail stay behind the cursor so
// they cannot starve the ones after them.
func (j *riskSweepJob) walk(
	ctx context.Context,
	load pageLoader,
	deadline func(*models.Reservation) time.Time,
	visit func(*models.Reservation) error,
) error {
	var (
		errs  error
		after *reservations.SweepCursor
	)
	for {
		page, err := load(ctx, after, j.batch)
		if err != nil {
			return multierr.Append(errs, err)
		}
		for i := range page {
			if ctx.Err() != nil {
				return multierr.Append(errs, ctx.Err())
			}
			errs = multierr.Append(errs, visit(&page[i]))
		}
		if len(page) < j.batch {
			return errs
		}
		last := &page[len(page)-1]
		after = &reservations.SweepCursor{Deadline: deadline(last), ID: last.ID}
	}
}

func (j *riskSweepJob) sendReminders(ctx context.Context, now time.Time) error {
	load := func(ctx context.Context, after *reservations.SweepCursor, limit int) ([]models.Reservation, error) {
		rows, err := j.repo.ReminderCandidates(ctx, now, after, limit)
		if err != nil {
			return nil, fmt.Errorf("load reminder candidates: %w", err)
		}
		return rows, nil
	}
	deadline := func(r *models.Reservation) time.Time { return r.ReminderDeadline }
	return j.walk(ctx, load, deadline, func(reservation *models.Reservation) error {
		recCtx := j.logg.WithReservationID(ctx, reservation.ID.String())
		if err := j.notifier.SendReminder(recCtx, reservation); err != nil {
			j.logg.Error(recCtx, "reminder delivery failed", err)
			j.metrics.IncSweep(metrics.SweepStepReminder, metrics.SweepOutcomeFailed)
			return fmt.Errorf("reminder %s: %w", reservation.ID, err)
		}
		marked, err := j.repo.MarkReminderSent(recCtx, reservation.ID, now)
		if err != nil {
			j.logg.Error(recCtx, "mark reminder sent failed", err)
			j.metrics.IncSweep(metrics.SweepStepReminder, metrics.SweepOutcomeFailed)
			return fmt.Errorf("mark reminder %s: %w", reservation.ID, err)
		}
		if !marked {
			j.metrics.IncSweep(metrics.SweepStepReminder, metrics.SweepOutcomeSkipped)
			return nil
		}
		j.metrics.IncSweep(metrics.SweepStepReminder, metrics.SweepOutcomeApplied)
		return nil
	})
}

func (j *riskSweepJob) flagRisks(ctx context.Context, now time.Time) error {
	load := func(ctx context.Context, after *reservations.SweepCursor, limit int) ([]models.Reservation, error) {
		rows, err := j.repo.RiskCandidates(ctx, now, after, limit)
		if err != nil {
			return nil, fmt.Errorf("load risk candidates: %w", err)
		}
		return rows, nil
	}
	deadline := func(r *models.Reservation) time.Time { return r.RiskDeadline }
	return j.walk(ctx, load, deadline, func(candidate *models.Reservation) error {
		recCtx := j.logg.WithReservationID(ctx, candidate.ID.String())
		result, err := j.service.MarkAtRisk(recCtx, candidate.ID, now)
		if err != nil {
			j.logg.Error(recCtx, "mark at risk failed", err)
			j.metrics.IncSweep(metrics.SweepStepRisk, metrics.SweepOutcomeFailed)
			return fmt.Errorf("risk %s: %w", candidate.ID, err)
		}
		if result == nil || !result.Changed {
			j.metrics.IncSweep(metrics.SweepStepRisk, metrics.SweepOutcomeSkipped)
			return nil
		}
		j.metrics.IncSweep(metrics.SweepStepRisk, metrics.SweepOutcomeApplied)
		return nil
	})
}
