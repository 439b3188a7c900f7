package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"vitrine/internal/models"
	"vitrine/internal/utils"
	"vitrine/internal/utils/logger"
)

var contentLog = logger.New("CONTENT")

// Upload limits per request.
const (
	MaxHeroImages  = 5
	MaxClientLogos = 30
	MaxLooseImages = 10
)

// ServicesUpdatePolicy names the bulk update semantics of UpdateServices:
// the batch is validated as a whole (shape, size, ids), then unknown ids
// are skipped while the rest are patched.
const ServicesUpdatePolicy = "tolerant-patch"

// Upload is a file waiting on local disk to be sent to the image host.
type Upload struct {
	Path string
	Name string
}

type HeroUpdate struct {
	Title          string
	Subtitle       string
	ExistingImages []string
	Files          []Upload
}

type ClientsUpdate struct {
	RemoveLogos []string
	Files       []Upload
}

type ServiceInput struct {
	Title       string
	Description string
	File        *Upload
}

// ServicePatch is one record of a bulk services update. Nil fields are left
// untouched.
type ServicePatch struct {
	ID          string  `json:"id"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Image       *string `json:"image,omitempty"`
}

// ContentService implements the hero, clients and services sections.
type ContentService struct {
	db       *gorm.DB
	hero     SingletonService[models.HeroContent]
	clients  SingletonService[models.ClientLogos]
	services BaseService[models.Service]
	images   ImageStore
}

func NewContentService(db *gorm.DB, images ImageStore) *ContentService {
	return &ContentService{
		db:       db,
		hero:     NewSingletonService(db, models.HeroContent{}),
		clients:  NewSingletonService(db, models.ClientLogos{}),
		services: NewBaseService(db, models.Service{}),
		images:   images,
	}
}

// GetHero returns ErrNotFound until the hero section is first written.
func (s *ContentService) GetHero(ctx context.Context) (*models.HeroContent, error) {
	return s.hero.Find(ctx)
}

// UpdateHero uploads new images after the existing ones and upserts the
// supplied fields. The image list is replaced only when non-empty.
func (s *ContentService) UpdateHero(ctx context.Context, in HeroUpdate) (*models.HeroContent, error) {
	if len(in.Files) > MaxHeroImages {
		return nil, Validation("no more than %d hero images per upload", MaxHeroImages)
	}

	uploaded, err := s.uploadAll(ctx, in.Files, models.FolderHero)
	if err != nil {
		return nil, err
	}
	images := append(append([]string{}, in.ExistingImages...), uploaded...)

	fields := map[string]interface{}{}
	if title := strings.TrimSpace(in.Title); title != "" {
		fields["title"] = title
	}
	if subtitle := strings.TrimSpace(in.Subtitle); subtitle != "" {
		fields["subtitle"] = subtitle
	}
	if len(images) > 0 {
		fields["images"] = datatypes.NewJSONSlice(images)
	}

	hero, err := s.hero.Upsert(ctx, fields)
	if err != nil {
		return nil, Internal(err, "failed to update hero")
	}
	contentLog.Info("Hero updated with %d images", len(hero.Images))
	return hero, nil
}

// GetClients never fails with NotFound: an unconfigured section has no logos.
func (s *ContentService) GetClients(ctx context.Context) ([]string, error) {
	clients, err := s.clients.Find(ctx)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return []string{}, nil
		}
		return nil, Internal(err, "failed to load clients")
	}
	return logosOf(clients), nil
}

// UpdateClients removes the requested logos, then appends the new uploads.
// A removal naming a URL produced by this same call has no effect.
func (s *ContentService) UpdateClients(ctx context.Context, in ClientsUpdate) ([]string, error) {
	if len(in.Files) > MaxClientLogos {
		return nil, Validation("no more than %d logos per upload", MaxClientLogos)
	}

	uploaded, err := s.uploadAll(ctx, in.Files, models.FolderClients)
	if err != nil {
		return nil, err
	}

	clients, err := s.clients.GetOrCreate(ctx)
	if err != nil {
		return nil, Internal(err, "failed to load clients")
	}

	remove := utils.StringSet(in.RemoveLogos)
	logos := make([]string, 0, len(clients.Logos)+len(uploaded))
	for _, logo := range clients.Logos {
		if _, drop := remove[logo]; !drop {
			logos = append(logos, logo)
		}
	}
	logos = append(logos, uploaded...)

	clients.Logos = datatypes.NewJSONSlice(logos)
	if err := s.clients.Save(ctx, clients); err != nil {
		return nil, Internal(err, "failed to save clients")
	}
	return logosOf(clients), nil
}

func (s *ContentService) GetServices(ctx context.Context) ([]models.ServiceView, error) {
	list, _, err := s.services.List(ctx, 0, 0, nil)
	if err != nil {
		return nil, Internal(err, "failed to list services")
	}
	views := make([]models.ServiceView, 0, len(list))
	for i := range list {
		views = append(views, list[i].View())
	}
	return views, nil
}

// AddService creates a service, refusing when the cap is already reached.
// The count is checked before uploading and again, under a table lock,
// before the insert.
func (s *ContentService) AddService(ctx context.Context, in ServiceInput) (*models.Service, error) {
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	if title == "" || description == "" {
		return nil, Validation("title and description are required")
	}

	count, err := s.services.Count(ctx)
	if err != nil {
		return nil, Internal(err, "failed to count services")
	}
	if count >= models.MaxServices {
		return nil, Validation("no more than %d services allowed", models.MaxServices)
	}

	var image string
	if in.File != nil {
		urls, err := s.uploadAll(ctx, []Upload{*in.File}, models.FolderServices)
		if err != nil {
			return nil, err
		}
		image = urls[0]
	}

	service := &models.Service{
		Title:       title,
		Description: description,
		Image:       image,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := LockTable(tx, models.Service{}); err != nil {
			return err
		}
		repo := s.services.WithTx(tx)
		count, err := repo.Count(ctx)
		if err != nil {
			return err
		}
		if count >= models.MaxServices {
			return Validation("no more than %d services allowed", models.MaxServices)
		}
		return repo.Create(ctx, service)
	})
	if KindOf(err) == KindValidation {
		return nil, err
	}
	if err != nil {
		return nil, Internal(err, "failed to create service")
	}
	contentLog.Info("Service %s created", service.ID)
	return service, nil
}

// ParseServicePatches decodes the services payload of a bulk update.
func ParseServicePatches(raw string) ([]ServicePatch, error) {
	var patches []ServicePatch
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &patches); err != nil {
		return nil, newError(KindValidation, err, "invalid services format")
	}
	if patches == nil {
		return nil, Validation("invalid services format")
	}
	return patches, nil
}

// UpdateServices applies a tolerant patch. The whole batch is rejected when
// it holds more records than the cap or any record lacks a valid id; after
// that, records with unknown ids are skipped. files maps a service id to
// its new image.
func (s *ContentService) UpdateServices(ctx context.Context, patches []ServicePatch, files map[string]Upload) ([]models.ServiceView, error) {
	if len(patches) > models.MaxServices {
		return nil, Validation("no more than %d services allowed", models.MaxServices)
	}
	patches = append([]ServicePatch(nil), patches...)
	for i := range patches {
		id, ok := canonicalID(patches[i].ID)
		if !ok {
			return nil, Validation("service at index %d has a missing or invalid id", i)
		}
		patches[i].ID = id
	}
	byID := make(map[string]Upload, len(files))
	for key, f := range files {
		if id, ok := canonicalID(key); ok {
			byID[id] = f
		}
	}
	files = byID

	ids := make([]string, 0, len(files))
	uploads := make([]Upload, 0, len(files))
	seen := make(map[string]bool, len(patches))
	for _, p := range patches {
		if f, ok := files[p.ID]; ok && !seen[p.ID] {
			seen[p.ID] = true
			ids = append(ids, p.ID)
			uploads = append(uploads, f)
		}
	}
	urls, err := s.uploadAll(ctx, uploads, models.FolderServices)
	if err != nil {
		return nil, err
	}
	newImages := make(map[string]string, len(ids))
	for i, id := range ids {
		newImages[id] = urls[i]
	}

	updated := make([]models.ServiceView, 0, len(patches))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.services.WithTx(tx)
		for _, p := range patches {
			fields := patchFields(p, newImages[p.ID])
			service, err := repo.Update(ctx, p.ID, fields)
			if KindOf(err) == KindNotFound {
				contentLog.Warn("Skipping unknown service %s", p.ID)
				continue
			}
			if err != nil {
				return err
			}
			updated = append(updated, service.View())
		}
		return nil
	})
	if err != nil {
		return nil, Internal(err, "failed to update services")
	}
	return updated, nil
}

// DeleteService is idempotent: an unknown id is not an error.
func (s *ContentService) DeleteService(ctx context.Context, id string) error {
	id, ok := canonicalID(id)
	if !ok {
		return Validation("invalid service id")
	}
	if err := s.services.Delete(ctx, id); err != nil {
		return Internal(err, "failed to delete service")
	}
	return nil
}

// UploadImages stores images that belong to no section yet and returns
// their URLs in input order.
func (s *ContentService) UploadImages(ctx context.Context, files []Upload) ([]string, error) {
	if len(files) == 0 {
		return nil, Validation("no file provided")
	}
	if len(files) > MaxLooseImages {
		return nil, Validation("no more than %d files per upload", MaxLooseImages)
	}
	return s.uploadAll(ctx, files, models.FolderUploads)
}

func patchFields(p ServicePatch, uploadedImage string) map[string]interface{} {
	fields := map[string]interface{}{}
	if p.Title != nil && strings.TrimSpace(*p.Title) != "" {
		fields["title"] = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil && strings.TrimSpace(*p.Description) != "" {
		fields["description"] = strings.TrimSpace(*p.Description)
	}
	switch {
	case uploadedImage != "":
		fields["image"] = uploadedImage
	case p.Image != nil && strings.TrimSpace(*p.Image) != "":
		fields["image"] = strings.TrimSpace(*p.Image)
	}
	return fields
}

// uploadAll sends files to the image host concurrently and returns their
// URLs in input order. Uploads are not cancelled with the request.
func (s *ContentService) uploadAll(ctx context.Context, files []Upload, folder string) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if s.images == nil {
		return nil, newError(KindUpload, nil, "image store not configured")
	}

	ctx = context.WithoutCancel(ctx)
	urls := make([]string, len(files))
	var g errgroup.Group
	for i, f := range files {
		g.Go(func() error {
			url, err := s.images.Upload(ctx, f.Path, folder)
			if err != nil {
				contentLog.Error("Failed to upload %s: %v", f.Name, err)
				if KindOf(err) == KindUpload {
					return err
				}
				return UploadFailed(err)
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

// canonicalID returns the id in the form it is stored under, or false when
// it is missing or not a UUID.
func canonicalID(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" || id == "undefined" || id == "null" {
		return "", false
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

func logosOf(c *models.ClientLogos) []string {
	if len(c.Logos) == 0 {
		return []string{}
	}
	return append([]string{}, c.Logos...)
}
