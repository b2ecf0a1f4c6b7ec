package reservations

import (
	"testing"

	"github.com/angelmondragon/dormstay-backend/internal/occupancy"
	"github.com/angelmondragon/dormstay-backend/pkg/db/models"
	"github.com/angelmondragon/dormstay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormstay-backend/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestTransitionEffectsMatchSlotOwnership(t *testing.T) {
	for _, tr := range Transitions() {
		before := &models.Reservation{Status: tr.From}
		after := &models.Reservation{Status: tr.To}
		if tr.To == enums.ReservationStatusAtRisk {
			pre := tr.From
			after.PreRiskStatus = &pre
		}
		require.Equal(t, tr.Effect, occupancy.EffectOf(before, after), "%s -> %s", tr.From, tr.To)
	}
}

func TestTransitionTableIsClosed(t *testing.T) {
	seen := map[[2]enums.ReservationStatus]bool{}
	for _, tr := range Transitions() {
		require.True(t, tr.From.IsValid())
		require.True(t, tr.To.IsValid())
		require.NotEqual(t, tr.From, tr.To)
		key := [2]enums.ReservationStatus{tr.From, tr.To}
		require.False(t, seen[key], "duplicate %s -> %s", tr.From, tr.To)
		seen[key] = true
		require.False(t, tr.From.IsTerminal(), "terminal status %s has an outgoing transition", tr.From)
	}
	require.Len(t, seen, 10)

	for _, from := range enums.ReservationStatuses() {
		for _, to := range enums.ReservationStatuses() {
			_, ok := LookupTransition(from, to)
			require.Equal(t, seen[[2]enums.ReservationStatus{from, to}], ok)
		}
	}
}

func TestTransitionPreconditions(t *testing.T) {
	tr, ok := LookupTransition(enums.ReservationStatusPending, enums.ReservationStatusConfirmed)
	require.True(t, ok)
	require.Equal(t, PreconditionPaymentVerified, tr.Precondition)

	tr, ok = LookupTransition(enums.ReservationStatusConfirmed, enums.ReservationStatusAtRisk)
	require.True(t, ok)
	require.Equal(t, PreconditionRiskDue, tr.Precondition)

	_, ok = LookupTransition(enums.ReservationStatusAtRisk, enums.ReservationStatusConfirmed)
	require.False(t, ok, "leaving at_risk goes through extend or release")
}

func TestTransitionsReturnsCopy(t *testing.T) {
	list := Transitions()
	list[0].Effect = occupancy.EffectDecrement
	tr, _ := LookupTransition(enums.ReservationStatusPending, enums.ReservationStatusConfirmed)
	require.Equal(t, occupancy.EffectIncrement, tr.Effect)
}

func TestInvalidTransitionDetails(t *testing.T) {
	err := invalidTransition("checked_out", "pending", "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
	details := pkgerrors.As(err).Details().(map[string]any)
	require.Equal(t, "checked_out", details["from"])
	require.NotContains(t, details, "reason")
}
