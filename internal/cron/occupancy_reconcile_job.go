package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/dormstay-backend/internal/occupancy"
	"github.com/angelmondragon/dormstay-backend/pkg/logger"
	"github.com/google/uuid"
)

const defaultReconcileEvery = 6 * time.Hour

// OccupancyReconcileJobParams configure the periodic drift repair.
type OccupancyReconcileJobParams struct {
	Logger       *logger.Logger
	Recalculator branchRecalculator
	Every        time.Duration
}

type branchRecalculator interface {
	RecalculateBranch(ctx context.Context, branchID *uuid.UUID) ([]occupancy.RecalculateResult, error)
}

// NewOccupancyReconcileJob builds the job that recomputes every room's
// occupancy from its reservations.
func NewOccupancyReconcileJob(params OccupancyReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Recalculator == nil {
		return nil, fmt.Errorf("recalculator required")
	}
	every := params.Every
	if every <= 0 {
		every = defaultReconcileEvery
	}
	return &occupancyReconcileJob{
		logg:   params.Logger,
		recalc: params.Recalculator,
		every:  every,
	}, nil
}

type occupancyReconcileJob struct {
	logg   *logger.Logger
	recalc branchRecalculator
	every  time.Duration
}

func (j *occupancyReconcileJob) Name() string { return "occupancy-reconcile" }

func (j *occupancyReconcileJob) Every() time.Duration { return j.every }

func (j *occupancyReconcileJob) Run(ctx context.Context) error {
	results, err := j.recalc.RecalculateBranch(ctx, nil)
	repaired := 0
	for _, result := range results {
		if result.Drift() {
			repaired++
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"rooms":    len(results),
		"repaired": repaired,
	}), "occupancy reconcile finished")
	if err != nil {
		return fmt.Errorf("recalculate rooms: %w", err)
	}
	return nil
}
