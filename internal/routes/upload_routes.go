package routes

import (
	"github.com/labstack/echo/v4"

	"vitrine/internal/api/middleware"
	"vitrine/internal/config"
	"vitrine/internal/handlers"
	"vitrine/internal/services"
	"vitrine/internal/utils/logger"
)

func SetupUploadRoutes(api *echo.Group, content *services.ContentService, cfg *config.Config, requireAuth echo.MiddlewareFunc) {
	log := logger.New("upload_routes")

	uploadHandler := handlers.NewUploadHandler(content, cfg.Storage.TempDir)

	api.POST("/upload", uploadHandler.UploadFile, requireAuth, middleware.RequireAdmin(cfg.Admin.RequireAdmin))

	log.Debug("Upload routes initialized")
}
