package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"vitrine/internal/services"
	"vitrine/internal/utils/logger"
)

type UploadHandler struct {
	content *services.ContentService
	tempDir string
	log     *logger.Logger
}

func NewUploadHandler(content *services.ContentService, tempDir string) *UploadHandler {
	return &UploadHandler{
		content: content,
		tempDir: tempDir,
		log:     logger.New("upload_handler"),
	}
}

// UploadResponse lists the public URLs of the stored files.
type UploadResponse struct {
	URLs []string `json:"urls"`
}

// UploadFile stores loose images on the image host
// @Summary Upload images
// @Tags upload
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param files formData file true "Images"
// @Success 200 {object} UploadResponse
// @Failure 400 {object} map[string]string "No file or not an image"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Upload failed"
// @Router /upload [post]
func (h *UploadHandler) UploadFile(c echo.Context) error {
	tmp := newTempFiles(h.tempDir)
	defer tmp.cleanup()

	form, err := multipartForm(c)
	if err != nil {
		return respondError(c, err)
	}
	if form == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No file provided"})
	}

	files := append(formFiles(form, "files"), formFiles(form, "file")...)
	if len(files) > services.MaxLooseImages {
		return respondError(c, services.Validation("no more than %d files per upload", services.MaxLooseImages))
	}
	uploads, err := tmp.saveAll(files)
	if err != nil {
		return respondError(c, err)
	}

	urls, err := h.content.UploadImages(c.Request().Context(), uploads)
	if err != nil {
		return respondError(c, err)
	}

	h.log.Success("Uploaded %d files", len(urls))
	return c.JSON(http.StatusOK, UploadResponse{URLs: urls})
}
