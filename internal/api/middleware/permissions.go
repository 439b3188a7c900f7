package middleware

import (
	"github.com/labstack/echo/v4"

	"vitrine/internal/models"
	"vitrine/internal/services"
)

// RequireRole rejects authenticated users whose role differs. It must run
// after AuthMiddleware.
func RequireRole(role models.UserRole) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if GetUser(c) == nil {
				return services.Unauthorized("no token provided")
			}
			if GetUserRole(c) != string(role) {
				return services.Forbidden("insufficient permissions")
			}
			return next(c)
		}
	}
}

// RequireAdmin is RequireRole(admin) when enabled and a no-op otherwise.
func RequireAdmin(enabled bool) echo.MiddlewareFunc {
	if !enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return RequireRole(models.UserRoleAdmin)
}
