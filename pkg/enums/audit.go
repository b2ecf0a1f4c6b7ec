package enums

// AuditAction names a mutation recorded in the audit log.
type AuditAction string

const (
	AuditReservationCreated       AuditAction = "reservation.created"
	AuditReservationStatusChanged AuditAction = "reservation.status_changed"
	AuditReservationAtRisk        AuditAction = "reservation.at_risk"
	AuditReservationExtended      AuditAction = "reservation.extended"
	AuditReservationReleased      AuditAction = "reservation.released"
	AuditReservationArchived      AuditAction = "reservation.archived"
	AuditRoomRecalculated         AuditAction = "room.recalculated"
)

// AuditEntityType names the aggregate an audit entry refers to.
type AuditEntityType string

const (
	AuditEntityReservation AuditEntityType = "reservation"
	AuditEntityRoom        AuditEntityType = "room"
)

// String implements fmt.Stringer.
func (a AuditAction) String() string {
	return string(a)
}

// String implements fmt.Stringer.
func (a AuditEntityType) String() string {
	return string(a)
}

var validAuditActions = []AuditAction{
	AuditReservationCreated,
	AuditReservationStatusChanged,
	AuditReservationAtRisk,
	AuditReservationExtended,
	AuditReservationReleased,
	AuditReservationArchived,
	AuditRoomRecalculated,
}

// IsValid reports whether the action is one of the recorded mutations.
func (a AuditAction) IsValid() bool {
	for _, candidate := range validAuditActions {
		if a == candidate {
			return true
		}
	}
	return false
}
