package models

// All lists every persisted model in dependency order.
func All() []any {
	return []any{
		&Branch{},
		&User{},
		&Room{},
		&Bed{},
		&Reservation{},
		&AuditLog{},
	}
}
