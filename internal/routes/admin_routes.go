package routes

import (
	"github.com/labstack/echo/v4"

	"vitrine/internal/api/middleware"
	"vitrine/internal/config"
	"vitrine/internal/handlers"
	"vitrine/internal/services"
)

// SetupAdminRoutes mounts the content sections. Reads are public; writes
// need a bearer token, and the admin role when AUTH_REQUIRE_ADMIN is set.
func SetupAdminRoutes(api *echo.Group, content *services.ContentService, cfg *config.Config, requireAuth echo.MiddlewareFunc) {
	contentHandler := handlers.NewContentHandler(content, cfg.Storage.TempDir)

	admin := api.Group("/admin")

	admin.GET("/get-hero", contentHandler.GetHero)
	admin.GET("/get-clients", contentHandler.GetClients)
	admin.GET("/get-services", contentHandler.GetServices)

	write := admin.Group("", requireAuth, middleware.RequireAdmin(cfg.Admin.RequireAdmin))
	write.PATCH("/update-hero", contentHandler.UpdateHero)
	write.POST("/update-clients", contentHandler.UpdateClients)
	write.PATCH("/update-services", contentHandler.UpdateServices)
	write.POST("/add-service", contentHandler.AddService)
	write.DELETE("/delete-service/:id", contentHandler.DeleteService)
}
