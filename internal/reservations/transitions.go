package reservations

import (
	"github.com/angelmondragon/dormstay-backend/internal/occupancy"
	"github.com/angelmondragon/dormstay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormstay-backend/pkg/errors"
)

// Precondition names a check a transition requires before it may run.
type Precondition string

const (
	PreconditionNone            Precondition = ""
	PreconditionPaymentVerified Precondition = "payment_verified"
	PreconditionRiskDue         Precondition = "risk_due"
)

// Transition is one permitted status change and its effect on the room.
type Transition struct {
	From         enums.ReservationStatus
	To           enums.ReservationStatus
	Precondition Precondition
	Effect       occupancy.Effect
}

// transitionTable lists every status change UpdateStatus and MarkAtRisk accept.
// Leaving at_risk goes through Extend or Release only.
var transitionTable = []Transition{
	{From: enums.ReservationStatusPending, To: enums.ReservationStatusConfirmed, Precondition: PreconditionPaymentVerified, Effect: occupancy.EffectIncrement},
	{From: enums.ReservationStatusPending, To: enums.ReservationStatusCheckedIn, Effect: occupancy.EffectIncrement},
	{From: enums.ReservationStatusConfirmed, To: enums.ReservationStatusCheckedIn, Effect: occupancy.EffectNone},
	{From: enums.ReservationStatusPending, To: enums.ReservationStatusCancelled, Effect: occupancy.EffectNone},
	{From: enums.ReservationStatusConfirmed, To: enums.ReservationStatusCancelled, Effect: occupancy.EffectDecrement},
	{From: enums.ReservationStatusCheckedIn, To: enums.ReservationStatusCancelled, Effect: occupancy.EffectDecrement},
	{From: enums.ReservationStatusConfirmed, To: enums.ReservationStatusCheckedOut, Effect: occupancy.EffectDecrement},
	{From: enums.ReservationStatusCheckedIn, To: enums.ReservationStatusCheckedOut, Effect: occupancy.EffectDecrement},
	{From: enums.ReservationStatusPending, To: enums.ReservationStatusAtRisk, Precondition: PreconditionRiskDue, Effect: occupancy.EffectNone},
	{From: enums.ReservationStatusConfirmed, To: enums.ReservationStatusAtRisk, Precondition: PreconditionRiskDue, Effect: occupancy.EffectNone},
}

// Transitions returns a copy of the transition table.
func Transitions() []Transition {
	out := make([]Transition, len(transitionTable))
	copy(out, transitionTable)
	return out
}

// LookupTransition finds the table entry for from -> to.
func LookupTransition(from, to enums.ReservationStatus) (Transition, bool) {
	for _, t := range transitionTable {
		if t.From == from && t.To == to {
			return t, true
		}
	}
	return Transition{}, false
}

func invalidTransition(from, to string, reason string) error {
	details := map[string]any{"from": from, "to": to}
	if reason != "" {
		details["reason"] = reason
	}
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, "reservation status transition not permitted").
		WithDetails(details)
}
