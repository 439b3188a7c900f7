package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"vitrine/internal/models"
	"vitrine/internal/services"
	"vitrine/internal/utils"
)

type ContentHandler struct {
	content *services.ContentService
	tempDir string
}

func NewContentHandler(content *services.ContentService, tempDir string) *ContentHandler {
	return &ContentHandler{content: content, tempDir: tempDir}
}

type heroRequest struct {
	Title          string          `json:"title"`
	Subtitle       string          `json:"subtitle"`
	ExistingImages json.RawMessage `json:"existingImages" swaggertype:"array,string"`
}

type clientsRequest struct {
	RemoveLogos json.RawMessage `json:"removeLogos" swaggertype:"array,string"`
}

// servicesRequest takes the list either as an array or as a JSON string
// holding the array, the way multipart clients send it.
type servicesRequest struct {
	Services json.RawMessage `json:"services" swaggertype:"array,object"`
}

func (r servicesRequest) patches() ([]services.ServicePatch, error) {
	raw := bytes.TrimSpace(r.Services)
	if len(raw) > 0 && raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, services.Validation("invalid services format")
		}
		return services.ParseServicePatches(encoded)
	}
	return services.ParseServicePatches(string(raw))
}

type addServiceRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
}

// ClientsResponse wraps the logo list.
type ClientsResponse struct {
	Logos []string `json:"logos"`
}

// GetHero returns the hero section.
// @Summary Get hero
// @Tags content
// @Produce json
// @Success 200 {object} models.HeroView
// @Failure 404 {object} map[string]string "Hero not configured"
// @Router /admin/get-hero [get]
func (h *ContentHandler) GetHero(c echo.Context) error {
	hero, err := h.content.GetHero(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, hero.View())
}

// UpdateHero creates or patches the hero section. New images are appended
// after existingImages, which replaces the stored list when non-empty.
// @Summary Update hero
// @Tags content
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param title formData string false "Title"
// @Param subtitle formData string false "Subtitle"
// @Param existingImages formData string false "JSON array of image URLs to keep"
// @Param images formData file false "New images"
// @Success 200 {object} models.HeroView
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Upload or internal error"
// @Router /admin/update-hero [patch]
func (h *ContentHandler) UpdateHero(c echo.Context) error {
	tmp := newTempFiles(h.tempDir)
	defer tmp.cleanup()

	var in services.HeroUpdate
	form, err := multipartForm(c)
	if err != nil {
		return respondError(c, err)
	}
	if form != nil {
		in.Title = firstValue(form, "title")
		in.Subtitle = firstValue(form, "subtitle")
		in.ExistingImages = utils.ParseStringList(form.Value["existingImages"]...)

		files := formFiles(form, "images")
		if len(files) > services.MaxHeroImages {
			return respondError(c, services.Validation("no more than %d hero images per upload", services.MaxHeroImages))
		}
		if in.Files, err = tmp.saveAll(files); err != nil {
			return respondError(c, err)
		}
	} else {
		var req heroRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
		in.Title = req.Title
		in.Subtitle = req.Subtitle
		in.ExistingImages = utils.ParseStringList(string(req.ExistingImages))
	}

	hero, err := h.content.UpdateHero(c.Request().Context(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, hero.View())
}

// GetClients returns the client logos; an unconfigured section has none.
// @Summary Get client logos
// @Tags content
// @Produce json
// @Success 200 {object} ClientsResponse
// @Router /admin/get-clients [get]
func (h *ContentHandler) GetClients(c echo.Context) error {
	logos, err := h.content.GetClients(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, ClientsResponse{Logos: logos})
}

// UpdateClients removes the listed logos, then appends the uploaded ones.
// @Summary Update client logos
// @Tags content
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param removeLogos formData string false "JSON array of logo URLs to remove"
// @Param logos formData file false "New logos"
// @Success 200 {object} ClientsResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Upload or internal error"
// @Router /admin/update-clients [post]
func (h *ContentHandler) UpdateClients(c echo.Context) error {
	tmp := newTempFiles(h.tempDir)
	defer tmp.cleanup()

	var in services.ClientsUpdate
	form, err := multipartForm(c)
	if err != nil {
		return respondError(c, err)
	}
	if form != nil {
		in.RemoveLogos = utils.ParseStringList(form.Value["removeLogos"]...)

		files := formFiles(form, "logos")
		if len(files) > services.MaxClientLogos {
			return respondError(c, services.Validation("no more than %d logos per upload", services.MaxClientLogos))
		}
		if in.Files, err = tmp.saveAll(files); err != nil {
			return respondError(c, err)
		}
	} else {
		var req clientsRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
		in.RemoveLogos = utils.ParseStringList(string(req.RemoveLogos))
	}

	logos, err := h.content.UpdateClients(c.Request().Context(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, ClientsResponse{Logos: logos})
}

// GetServices lists the services in creation order.
// @Summary List services
// @Tags content
// @Produce json
// @Success 200 {array} models.ServiceView
// @Router /admin/get-services [get]
func (h *ContentHandler) GetServices(c echo.Context) error {
	list, err := h.content.GetServices(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// UpdateServices patches services in bulk. Unknown ids are skipped; a
// missing or malformed id rejects the whole batch.
// @Summary Bulk update services
// @Tags content
// @Accept multipart/form-data
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param services formData string true "JSON array of {id, title?, description?, image?}"
// @Success 200 {array} models.ServiceView
// @Failure 400 {object} map[string]string "Invalid shape, cap exceeded or bad id"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Upload or internal error"
// @Router /admin/update-services [patch]
func (h *ContentHandler) UpdateServices(c echo.Context) error {
	tmp := newTempFiles(h.tempDir)
	defer tmp.cleanup()

	var patches []services.ServicePatch
	files := map[string]services.Upload{}

	form, err := multipartForm(c)
	if err != nil {
		return respondError(c, err)
	}
	if form != nil {
		if patches, err = services.ParseServicePatches(firstValue(form, "services")); err != nil {
			return respondError(c, err)
		}

		byID := imagesByID(form)
		if len(byID) > models.MaxServices {
			return respondError(c, services.Validation("no more than %d service images per upload", models.MaxServices))
		}
		for id, fh := range byID {
			upload, err := tmp.save(fh)
			if err != nil {
				return respondError(c, err)
			}
			files[id] = upload
		}
	} else {
		var req servicesRequest
		if err := c.Bind(&req); err != nil {
			return respondError(c, services.Validation("invalid services format"))
		}
		if patches, err = req.patches(); err != nil {
			return respondError(c, err)
		}
	}

	updated, err := h.content.UpdateServices(c.Request().Context(), patches, files)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// AddService creates a service while fewer than the maximum exist.
// @Summary Add service
// @Tags content
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param title formData string true "Title"
// @Param description formData string true "Description"
// @Param image formData file false "Image"
// @Success 201 {object} models.ServiceView
// @Failure 400 {object} map[string]string "Validation error or cap reached"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Upload or internal error"
// @Router /admin/add-service [post]
func (h *ContentHandler) AddService(c echo.Context) error {
	tmp := newTempFiles(h.tempDir)
	defer tmp.cleanup()

	var req addServiceRequest
	var in services.ServiceInput

	form, err := multipartForm(c)
	if err != nil {
		return respondError(c, err)
	}
	if form != nil {
		req.Title = firstValue(form, "title")
		req.Description = firstValue(form, "description")
	} else if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if err := c.Validate(req); err != nil {
		return respondError(c, err)
	}
	in.Title = req.Title
	in.Description = req.Description

	if form != nil {
		if files := formFiles(form, "image"); len(files) > 0 {
			upload, err := tmp.save(files[0])
			if err != nil {
				return respondError(c, err)
			}
			in.File = &upload
		}
	}

	service, err := h.content.AddService(c.Request().Context(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, service.View())
}

// DeleteService removes a service. Deleting an unknown id succeeds.
// @Summary Delete service
// @Tags content
// @Produce json
// @Security BearerAuth
// @Param id path string true "Service ID"
// @Success 200 {object} map[string]string "Service deleted"
// @Failure 400 {object} map[string]string "Invalid id"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /admin/delete-service/{id} [delete]
func (h *ContentHandler) DeleteService(c echo.Context) error {
	if err := h.content.DeleteService(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Service deleted successfully"})
}

// multipartForm parses the body when it is multipart and returns nil for
// any other content type.
func multipartForm(c echo.Context) (*multipart.Form, error) {
	if !strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return nil, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, services.Validation("invalid multipart body")
	}
	return form, nil
}

func firstValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// formFiles accepts both "key" and "key[]".
func formFiles(form *multipart.Form, key string) []*multipart.FileHeader {
	files := append([]*multipart.FileHeader{}, form.File[key]...)
	return append(files, form.File[key+"[]"]...)
}

// imagesByID collects parts named images[<id>].
func imagesByID(form *multipart.Form) map[string]*multipart.FileHeader {
	byID := map[string]*multipart.FileHeader{}
	for key, fhs := range form.File {
		if len(fhs) == 0 || !strings.HasPrefix(key, "images[") || !strings.HasSuffix(key, "]") {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(key, "images["), "]")
		if id != "" {
			byID[id] = fhs[0]
		}
	}
	return byID
}
