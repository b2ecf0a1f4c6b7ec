package occupancy

import (
	"context"
	"testing"

	"github.com/angelmondragon/dormstay-backend/pkg/db/models"
	"github.com/angelmondragon/dormstay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormstay-backend/pkg/errors"
	"github.com/angelmondragon/dormstay-backend/pkg/logger"
	"github.com/angelmondragon/dormstay-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newReconciler(t *testing.T) (*Reconciler, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	r, err := NewReconciler(logger.Nop(), metrics.NewOccupancyMetrics(reg))
	require.NoError(t, err)
	return r, reg
}

func TestEffectOf(t *testing.T) {
	pending := enums.ReservationStatusPending
	confirmed := enums.ReservationStatusConfirmed

	cases := []struct {
		name   string
		before *models.Reservation
		after  *models.Reservation
		want   Effect
	}{
		{"create pending", nil, &models.Reservation{Status: pending}, EffectNone},
		{"create checked in", nil, &models.Reservation{Status: enums.ReservationStatusCheckedIn}, EffectIncrement},
		{"confirm", &models.Reservation{Status: pending}, &models.Reservation{Status: confirmed}, EffectIncrement},
		{"cancel confirmed", &models.Reservation{Status: confirmed}, &models.Reservation{Status: enums.ReservationStatusCancelled}, EffectDecrement},
		{"at risk keeps slot", &models.Reservation{Status: confirmed}, &models.Reservation{Status: enums.ReservationStatusAtRisk, PreRiskStatus: &confirmed}, EffectNone},
		{"at risk pending", &models.Reservation{Status: pending}, &models.Reservation{Status: enums.ReservationStatusAtRisk, PreRiskStatus: &pending}, EffectNone},
		{"archive confirmed", &models.Reservation{Status: confirmed}, &models.Reservation{Status: confirmed, Archived: true}, EffectDecrement},
		{"no change", &models.Reservation{Status: confirmed}, &models.Reservation{Status: confirmed}, EffectNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, EffectOf(tc.before, tc.after))
		})
	}
	require.Equal(t, metrics.EffectIncrement, EffectIncrement.String())
}

func TestApplyIncrementAndDecrementToggleBed(t *testing.T) {
	ctx := context.Background()
	conn, client := newTestDB(t)
	rec, m := newReconciler(t)
	room := createRoom(t, conn, 2, "B1", "B2")
	bed := room.Beds[1].ID
	res := insertReservation(t, conn, room, enums.ReservationStatusPending, &bed)

	var updated *models.Room
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		updated, err = rec.Apply(ctx, tx, res, withStatus(res, enums.ReservationStatusConfirmed))
		return err
	}))
	require.Equal(t, 1, updated.Occupancy)
	require.True(t, updated.Available)
	require.False(t, updated.Beds[0].Occupied)
	require.True(t, updated.Beds[1].Occupied)
	require.Equal(t, res.ID, *updated.Beds[1].OccupantReservationID)
	require.Equal(t, res.GuestID, *updated.Beds[1].OccupantGuestID)

	confirmed := withStatus(res, enums.ReservationStatusConfirmed)
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		updated, err = rec.Apply(ctx, tx, confirmed, withStatus(res, enums.ReservationStatusCheckedOut))
		return err
	}))
	require.Equal(t, 0, updated.Occupancy)
	require.False(t, updated.Beds[1].Occupied)
	require.Nil(t, updated.Beds[1].OccupantReservationID)

	require.Equal(t, float64(1), counterValue(t, m, "dormstay_occupancy_reconcile_total", map[string]string{"effect": "increment"}))
	require.Equal(t, float64(1), counterValue(t, m, "dormstay_occupancy_reconcile_total", map[string]string{"effect": "decrement"}))
}

func TestReconcileFromOldStatus(t *testing.T) {
	ctx := context.Background()
	conn, client := newTestDB(t)
	rec, _ := newReconciler(t)
	room := createRoom(t, conn, 1)
	res := insertReservation(t, conn, room, enums.ReservationStatusCheckedIn, nil)
	old := enums.ReservationStatusPending

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := rec.Reconcile(ctx, tx, res, &old)
		if err == nil {
			require.Equal(t, 1, updated.Occupancy)
			require.False(t, updated.Available)
		}
		return err
	}))
}

func TestReconcileLeavingAtRiskKeepsSlot(t *testing.T) {
	ctx := context.Background()
	conn, client := newTestDB(t)
	rec, _ := newReconciler(t)
	room := createRoom(t, conn, 2, "B1")
	bed := room.Beds[0].ID
	res := insertReservation(t, conn, room, enums.ReservationStatusPending, &bed)
	pending := insertReservation(t, conn, room, enums.ReservationStatusPending, nil)
	atRisk := enums.ReservationStatusAtRisk

	reconcile := func(r *models.Reservation, old *enums.ReservationStatus) *models.Room {
		t.Helper()
		var updated *models.Room
		require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			updated, err = rec.Reconcile(ctx, tx, r, old)
			return err
		}))
		return updated
	}

	confirmed := withStatus(res, enums.ReservationStatusConfirmed)
	oldPending := enums.ReservationStatusPending
	require.Equal(t, 1, reconcile(confirmed, &oldPending).Occupancy)

	// extension out of at_risk clears the pre-risk status
	require.Equal(t, 1, reconcile(confirmed, &atRisk).Occupancy, "at_risk -> confirmed")
	updated := reconcile(pending, &atRisk)
	require.Equal(t, 1, updated.Occupancy, "at_risk -> pending")
	require.True(t, updated.Beds[0].Occupied)
	require.Equal(t, res.ID, *updated.Beds[0].OccupantReservationID)

	// cancellation with the pre-risk status still recorded frees the slot
	preRisk := enums.ReservationStatusConfirmed
	cancelled := withStatus(res, enums.ReservationStatusCancelled)
	cancelled.PreRiskStatus = &preRisk
	freed := reconcile(cancelled, &atRisk)
	require.Equal(t, 0, freed.Occupancy)
	require.False(t, freed.Beds[0].Occupied)
}

func TestApplyAtCapacityIsConflict(t *testing.T) {
	ctx := context.Background()
	conn, client := newTestDB(t)
	rec, m := newReconciler(t)
	room := createRoom(t, conn, 1)
	holder := insertReservation(t, conn, room, enums.ReservationStatusPending, nil)
	late := insertReservation(t, conn, room, enums.ReservationStatusPending, nil)

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := rec.Apply(ctx, tx, holder, withStatus(holder, enums.ReservationStatusConfirmed))
		return err
	}))

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := rec.Apply(ctx, tx, late, withStatus(late, enums.ReservationStatusConfirmed))
		return err
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeReconciliationConflict))
	require.Equal(t, float64(1), counterValue(t, m, "dormstay_occupancy_capacity_conflicts_total", nil))
	require.Equal(t, 1, loadRoom(t, conn, room.ID).Occupancy)
}

func TestApplyArchivedOrMissingRoom(t *testing.T) {
	ctx := context.Background()
	conn, client := newTestDB(t)
	rec, _ := newReconciler(t)
	room := createRoom(t, conn, 2)
	res := insertReservation(t, conn, room, enums.ReservationStatusPending, nil)
	require.NoError(t, conn.Model(&models.Room{}).Where("id = ?", room.ID).Update("archived", true).Error)

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := rec.Apply(ctx, tx, res, withStatus(res, enums.ReservationStatusConfirmed))
		return err
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRoomNotFound))

	ghost := withStatus(res, enums.ReservationStatusConfirmed)
	ghost.RoomID = uuid.New()
	before := *ghost
	before.Status = enums.ReservationStatusPending
	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := rec.Apply(ctx, tx, &before, ghost)
		return err
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRoomNotFound))
}

func TestApplyOccupiedBedIsStateConflict(t *testing.T) {
	ctx := context.Background()
	conn, client := newTestDB(t)
	rec, _ := newReconciler(t)
	room := createRoom(t, conn, 2, "B1")
	bed := room.Beds[0].ID
	first := insertReservation(t, conn, room, enums.ReservationStatusPending, &bed)
	second := insertReservation(t, conn, room, enums.ReservationStatusPending, &bed)

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := rec.Apply(ctx, tx, first, withStatus(first, enums.ReservationStatusConfirmed))
		return err
	}))
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := rec.Apply(ctx, tx, second, withStatus(second, enums.ReservationStatusConfirmed))
		return err
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	stored := loadRoom(t, conn, room.ID)
	require.Equal(t, 1, stored.Occupancy, "increment rolled back with the bed failure")
	require.Equal(t, first.ID, *stored.Beds[0].OccupantReservationID)
}

func TestApplyMissingBedStillCountsSlot(t *testing.T) {
	ctx := context.Background()
	conn, client := newTestDB(t)
	rec, m := newReconciler(t)
	room := createRoom(t, conn, 2, "B1")
	missing := uuid.New()
	res := insertReservation(t, conn, room, enums.ReservationStatusPending, &missing)

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := rec.Apply(ctx, tx, res, withStatus(res, enums.ReservationStatusConfirmed))
		if err == nil {
			require.Equal(t, 1, updated.Occupancy)
			require.False(t, updated.Beds[0].Occupied)
		}
		return err
	}))
	require.Equal(t, float64(1), counterValue(t, m, "dormstay_occupancy_bed_missing_total", nil))
}

func TestApplyDecrementAtZeroDoesNotGoNegative(t *testing.T) {
	ctx := context.Background()
	conn, client := newTestDB(t)
	rec, _ := newReconciler(t)
	room := createRoom(t, conn, 2)
	res := insertReservation(t, conn, room, enums.ReservationStatusConfirmed, nil)

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := rec.Apply(ctx, tx, res, withStatus(res, enums.ReservationStatusCancelled))
		if err == nil {
			require.Equal(t, 0, updated.Occupancy)
		}
		return err
	}))
}

func TestApplyMovesBedForSlotHolder(t *testing.T) {
	ctx := context.Background()
	conn, client := newTestDB(t)
	rec, _ := newReconciler(t)
	room := createRoom(t, conn, 2, "B1", "B2")
	b1, b2 := room.Beds[0].ID, room.Beds[1].ID
	res := insertReservation(t, conn, room, enums.ReservationStatusPending, &b1)

	confirmed := withStatus(res, enums.ReservationStatusConfirmed)
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := rec.Apply(ctx, tx, res, confirmed)
		return err
	}))

	moved := *confirmed
	moved.BedID = &b2
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := rec.Apply(ctx, tx, confirmed, &moved)
		if err == nil {
			require.Equal(t, 1, updated.Occupancy)
			require.False(t, updated.Beds[0].Occupied)
			require.True(t, updated.Beds[1].Occupied)
		}
		return err
	}))
}

func TestApplyValidatesArguments(t *testing.T) {
	ctx := context.Background()
	conn, client := newTestDB(t)
	rec, _ := newReconciler(t)
	room := createRoom(t, conn, 1)
	res := insertReservation(t, conn, room, enums.ReservationStatusPending, nil)

	_, err := rec.Apply(ctx, nil, nil, res)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := rec.Apply(ctx, tx, res, nil)
		return err
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	moved := *res
	moved.RoomID = uuid.New()
	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := rec.Apply(ctx, tx, res, &moved)
		return err
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = NewReconciler(nil, nil)
	require.Error(t, err)
}
