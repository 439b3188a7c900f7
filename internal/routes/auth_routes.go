package routes

import (
	"github.com/labstack/echo/v4"

	"vitrine/internal/handlers"
	"vitrine/internal/services"
)

func SetupAuthRoutes(api *echo.Group, authService *services.AuthService) {
	authHandler := handlers.NewAuthHandler(authService)

	auth := api.Group("/auth")

	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	// Checks the token itself so every failure is a 401.
	auth.GET("/verify-token", authHandler.VerifyToken)
}
