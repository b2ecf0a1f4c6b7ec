package enums

// AccountStatus tracks whether a user account is usable for tenant features.
type AccountStatus string

const (
	AccountStatusProspect AccountStatus = "prospect"
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
)

// String implements fmt.Stringer.
func (a AccountStatus) String() string {
	return string(a)
}
