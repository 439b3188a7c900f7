package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"vitrine/internal/api/middleware"
	"vitrine/internal/docs"
	"vitrine/internal/routes"
	"vitrine/internal/services"
)

func (s *Server) registerRoutes() {
	s.echo.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "Vitrine API")
	})
	s.echo.GET("/health", s.healthCheck)
	docs.SwaggerInfo.BasePath = s.config.Server.APIPrefix
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	if local, ok := s.images.(*services.LocalStore); ok {
		s.echo.Static("/uploads", local.BasePath())
	}

	api := s.echo.Group(s.config.Server.APIPrefix)

	auth := middleware.NewAuthMiddleware(s.auth)
	requireAuth := auth.Middleware()

	routes.SetupAuthRoutes(api, s.auth)
	routes.SetupAdminRoutes(api, s.content, s.config, requireAuth)
	routes.SetupUploadRoutes(api, s.content, s.config, requireAuth)
}
