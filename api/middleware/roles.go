package middleware

import (
	"net/http"
	"slices"

	"github.com/angelmondragon/dormstay-backend/api/responses"
	"github.com/angelmondragon/dormstay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormstay-backend/pkg/errors"
	"github.com/angelmondragon/dormstay-backend/pkg/logger"
)

// RequireRole admits callers holding any of roles.
func RequireRole(logg *logger.Logger, roles ...enums.UserRole) func(http.Handler) http.Handler {
	return requireRole(logg, func(role enums.UserRole) bool {
		return slices.Contains(roles, role)
	})
}

// RequireOperator admits staff and admins.
func RequireOperator(logg *logger.Logger) func(http.Handler) http.Handler {
	return requireRole(logg, enums.UserRole.IsOperator)
}

func requireRole(logg *logger.Logger, allowed func(enums.UserRole) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := enums.UserRole(RoleFromContext(r.Context()))
			if !allowed(role) {
				err := pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted").
					WithDetails(map[string]any{"role": role.String()})
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
