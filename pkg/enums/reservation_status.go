package enums

import "fmt"

// ReservationStatus tracks the lifecycle of a dormitory reservation.
type ReservationStatus string

const (
	ReservationStatusPending    ReservationStatus = "pending"
	ReservationStatusConfirmed  ReservationStatus = "confirmed"
	ReservationStatusCheckedIn  ReservationStatus = "checked_in"
	ReservationStatusCheckedOut ReservationStatus = "checked_out"
	ReservationStatusCancelled  ReservationStatus = "cancelled"
	ReservationStatusAtRisk     ReservationStatus = "at_risk"
)

var validReservationStatuses = []ReservationStatus{
	ReservationStatusPending,
	ReservationStatusConfirmed,
	ReservationStatusCheckedIn,
	ReservationStatusCheckedOut,
	ReservationStatusCancelled,
	ReservationStatusAtRisk,
}

// String implements fmt.Stringer.
func (r ReservationStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReservationStatus.
func (r ReservationStatus) IsValid() bool {
	for _, candidate := range validReservationStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// HoldsSlot reports whether a reservation in this status occupies a room slot.
func (r ReservationStatus) HoldsSlot() bool {
	return r == ReservationStatusConfirmed || r == ReservationStatusCheckedIn
}

// IsTerminal reports whether no further lifecycle transition is possible.
func (r ReservationStatus) IsTerminal() bool {
	return r == ReservationStatusCheckedOut || r == ReservationStatusCancelled
}

// ReservationStatuses returns the closed set of statuses.
func ReservationStatuses() []ReservationStatus {
	out := make([]ReservationStatus, len(validReservationStatuses))
	copy(out, validReservationStatuses)
	return out
}

// ParseReservationStatus converts raw input into a ReservationStatus.
func ParseReservationStatus(value string) (ReservationStatus, error) {
	for _, candidate := range validReservationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reservation status %q", value)
}
