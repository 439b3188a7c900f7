package middleware

import "vitrine/internal/services"

// CustomValidator plugs the struct validator into echo.Context.Validate.
type CustomValidator struct{}

func (CustomValidator) Validate(i interface{}) error {
	return services.ValidateStruct(i)
}
