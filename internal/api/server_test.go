package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm/logger"

	"vitrine/internal/config"
	"vitrine/internal/db"
	"vitrine/internal/models"
	"vitrine/internal/services"
	applog "vitrine/internal/utils/logger"
)

var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89,
}

const publicURL = "http://cdn.test"

func TestMain(m *testing.M) {
	applog.SetLevel(applog.LevelError)
	models.PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type testEnv struct {
	t       *testing.T
	server  *Server
	cfg     *config.Config
	store   *services.LocalStore
	tempDir string
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{APIPrefix: "/api", CORSOrigins: []string{"*"}},
		JWT:    config.JWTConfig{Secret: "test-secret", Expiry: time.Hour},
		Storage: config.StorageConfig{
			Provider:  "local",
			BasePath:  t.TempDir(),
			PublicURL: publicURL,
			TempDir:   t.TempDir(),
		},
		LogLevel: "error",
	}
	for _, m := range mutate {
		m(cfg)
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := db.Open(sqlite.Open(dsn), logger.Silent)
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))

	store, err := services.NewLocalStore(cfg.Storage.BasePath, cfg.Storage.PublicURL)
	require.NoError(t, err)

	return &testEnv{
		t:       t,
		server:  NewServer(cfg, gdb, store, nil),
		cfg:     cfg,
		store:   store,
		tempDir: cfg.Storage.TempDir,
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) jsonRequest(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.do(req)
}

type filePart struct {
	field   string
	name    string
	content []byte
}

func (e *testEnv) multipartRequest(method, path, token string, fields map[string]string, files ...filePart) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(e.t, w.WriteField(k, v))
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.name)
		require.NoError(e.t, err)
		_, err = part.Write(f.content)
		require.NoError(e.t, err)
	}
	require.NoError(e.t, w.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.do(req)
}

// register creates a user and returns its token.
func (e *testEnv) register(email string) string {
	rec := e.jsonRequest(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Test", "email": email, "password": "secret1",
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	var res struct{ Token string }
	require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func (e *testEnv) tempFiles() []string {
	entries, err := os.ReadDir(e.tempDir)
	require.NoError(e.t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.jsonRequest(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = env.jsonRequest(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}](t, rec)
	assert.Equal(t, "ada@example.com", login.User.Email)

	rec = env.jsonRequest(http.MethodGet, "/api/auth/verify-token", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	verify := decode[struct {
		IsAdmin bool        `json:"isAdmin"`
		User    models.User `json:"user"`
	}](t, rec)
	assert.False(t, verify.IsAdmin)
	assert.Equal(t, login.User.ID, verify.User.ID)
}

func TestAuthFailures(t *testing.T) {
	env := newTestEnv(t)
	env.register("a@example.com")

	rec := env.jsonRequest(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Again", "email": "a@example.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email already in use", decode[errorBody](t, rec).Error)

	wrongPassword := env.jsonRequest(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "a@example.com", "password": "nope",
	})
	unknownEmail := env.jsonRequest(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "b@example.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, wrongPassword.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownEmail.Body.String())

	for _, token := range []string{"", "garbage"} {
		rec = env.jsonRequest(http.MethodGet, "/api/auth/verify-token", token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "token %q", token)
	}
}

func TestWriteRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.jsonRequest(http.MethodPost, "/api/admin/add-service", "", map[string]string{
		"title": "T", "description": "D",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.jsonRequest(http.MethodPost, "/api/admin/add-service", "not.a.jwt", map[string]string{
		"title": "T", "description": "D",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid token", decode[errorBody](t, rec).Error)
}

func TestRequireAdminRole(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.Admin.RequireAdmin = true })
	userToken := env.register("user@example.com")

	rec := env.jsonRequest(http.MethodPost, "/api/admin/add-service", userToken, map[string]string{
		"title": "T", "description": "D",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.NoError(t, env.server.Auth().EnsureAdmin(context.Background(), "Admin", "admin@example.com", "adminpass"))
	rec = env.jsonRequest(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "admin@example.com", "password": "adminpass",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	adminToken := decode[struct{ Token string }](t, rec).Token

	rec = env.jsonRequest(http.MethodPost, "/api/admin/add-service", adminToken, map[string]string{
		"title": "T", "description": "D",
	})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHeroLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.register("a@example.com")

	rec := env.jsonRequest(http.MethodGet, "/api/admin/get-hero", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.multipartRequest(http.MethodPatch, "/api/admin/update-hero", token,
		map[string]string{"title": "Welcome", "existingImages": `["https://old.test/a.png"]`},
		filePart{field: "images", name: "banner.png", content: pngBytes},
	)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	hero := decode[models.HeroView](t, rec)
	assert.Equal(t, "Welcome", hero.Title)
	require.Len(t, hero.Images, 2)
	assert.Equal(t, "https://old.test/a.png", hero.Images[0])
	assert.True(t, strings.HasPrefix(hero.Images[1], publicURL+"/uploads/hero/"), hero.Images[1])
	assert.Empty(t, env.tempFiles(), "temp files removed")

	// The stored file is served from /uploads.
	u, err := url.Parse(hero.Images[1])
	require.NoError(t, err)
	rec = env.do(httptest.NewRequest(http.MethodGet, u.Path, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pngBytes, rec.Body.Bytes())

	rec = env.jsonRequest(http.MethodPatch, "/api/admin/update-hero", token, map[string]string{"subtitle": "Sub"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.jsonRequest(http.MethodGet, "/api/admin/get-hero", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	hero = decode[models.HeroView](t, rec)
	assert.Equal(t, "Welcome", hero.Title)
	assert.Equal(t, "Sub", hero.Subtitle)
	assert.Len(t, hero.Images, 2)
}

func TestUploadRejectsNonImage(t *testing.T) {
	env := newTestEnv(t)
	token := env.register("a@example.com")

	rec := env.multipartRequest(http.MethodPatch, "/api/admin/update-hero", token,
		map[string]string{"title": "Welcome"},
		filePart{field: "images", name: "notes.png", content: []byte("plain text, not an image")},
	)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "file notes.png is not an image", decode[errorBody](t, rec).Error)
	assert.Empty(t, env.tempFiles())

	rec = env.jsonRequest(http.MethodGet, "/api/admin/get-hero", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "nothing written")
}

func TestClientsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.register("a@example.com")

	rec := env.jsonRequest(http.MethodGet, "/api/admin/get-clients", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"logos":[]}`, rec.Body.String())

	rec = env.multipartRequest(http.MethodPost, "/api/admin/update-clients", token, nil,
		filePart{field: "logos", name: "one.png", content: pngBytes},
		filePart{field: "logos", name: "two.png", content: pngBytes},
	)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	logos := decode[struct{ Logos []string }](t, rec).Logos
	require.Len(t, logos, 2)

	rec = env.multipartRequest(http.MethodPost, "/api/admin/update-clients", token,
		map[string]string{"removeLogos": logos[0]},
	)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{logos[1]}, decode[struct{ Logos []string }](t, rec).Logos)

	rec = env.jsonRequest(http.MethodPost, "/api/admin/update-clients", token, map[string]interface{}{
		"removeLogos": []string{logos[1]},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"logos":[]}`, rec.Body.String())
}

func TestServicesLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.register("a@example.com")

	rec := env.multipartRequest(http.MethodPost, "/api/admin/add-service", token,
		map[string]string{"title": "Web", "description": "Sites"},
		filePart{field: "image", name: "web.png", content: pngBytes},
	)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	web := decode[models.ServiceView](t, rec)
	assert.True(t, strings.HasPrefix(web.Image, publicURL+"/uploads/services/"))

	rec = env.jsonRequest(http.MethodPost, "/api/admin/add-service", token, map[string]string{
		"title": "SEO", "description": "Ranking",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	seo := decode[models.ServiceView](t, rec)

	rec = env.jsonRequest(http.MethodPost, "/api/admin/add-service", token, map[string]string{"title": "No description"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "description is required", decode[errorBody](t, rec).Error)

	patches := fmt.Sprintf(`[{"id":%q,"title":"SEO v2"},{"id":%q,"description":"ghost"}]`, seo.ID, uuid.NewString())
	rec = env.multipartRequest(http.MethodPatch, "/api/admin/update-services", token,
		map[string]string{"services": patches},
		filePart{field: "images[" + seo.ID + "]", name: "seo.png", content: pngBytes},
	)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[[]models.ServiceView](t, rec)
	require.Len(t, updated, 1)
	assert.Equal(t, "SEO v2", updated[0].Title)
	assert.Equal(t, "Ranking", updated[0].Description)
	assert.True(t, strings.HasPrefix(updated[0].Image, publicURL+"/uploads/services/"))

	rec = env.jsonRequest(http.MethodPatch, "/api/admin/update-services", token, map[string]interface{}{
		"services": []map[string]string{{"id": web.ID, "title": "Web v2"}, {"id": "undefined"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.multipartRequest(http.MethodPatch, "/api/admin/update-services", token,
		map[string]string{"services": `{"not":"an array"}`})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid services format", decode[errorBody](t, rec).Error)

	rec = env.jsonRequest(http.MethodDelete, "/api/admin/delete-service/"+web.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.jsonRequest(http.MethodGet, "/api/admin/get-services", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]models.ServiceView](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, seo.ID, list[0].ID)
	assert.Equal(t, "SEO v2", list[0].Title)
	assert.Empty(t, env.tempFiles())
}

func TestUpdateServicesJSONBodyForms(t *testing.T) {
	env := newTestEnv(t)
	token := env.register("a@example.com")

	rec := env.jsonRequest(http.MethodPost, "/api/admin/add-service", token, map[string]string{
		"title": "SEO", "description": "Ranking",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	seo := decode[models.ServiceView](t, rec)

	rec = env.jsonRequest(http.MethodPatch, "/api/admin/update-services", token, map[string]interface{}{
		"services": []map[string]string{{"id": seo.ID, "title": "SEO v2"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "SEO v2", decode[[]models.ServiceView](t, rec)[0].Title)

	encoded := fmt.Sprintf(`[{"id":%q,"title":"SEO v3"}]`, seo.ID)
	rec = env.jsonRequest(http.MethodPatch, "/api/admin/update-services", token, map[string]interface{}{
		"services": encoded,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "SEO v3", decode[[]models.ServiceView](t, rec)[0].Title)

	for _, body := range []map[string]interface{}{
		{"services": `{"not":"an array"}`},
		{"services": nil},
		{},
	} {
		rec = env.jsonRequest(http.MethodPatch, "/api/admin/update-services", token, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid services format", decode[errorBody](t, rec).Error)
	}
}

func TestServiceCap(t *testing.T) {
	env := newTestEnv(t)
	token := env.register("a@example.com")

	for i := 0; i < models.MaxServices; i++ {
		rec := env.jsonRequest(http.MethodPost, "/api/admin/add-service", token, map[string]string{
			"title": fmt.Sprintf("S%d", i), "description": "d",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := env.multipartRequest(http.MethodPost, "/api/admin/add-service", token,
		map[string]string{"title": "S6", "description": "d"},
		filePart{field: "image", name: "six.png", content: pngBytes},
	)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.jsonRequest(http.MethodGet, "/api/admin/get-services", "", nil)
	assert.Len(t, decode[[]models.ServiceView](t, rec), models.MaxServices)

	stored, err := os.ReadDir(env.store.BasePath())
	require.NoError(t, err)
	assert.Empty(t, stored, "nothing uploaded once the cap is reached")
	assert.Empty(t, env.tempFiles())
}

func TestUploadRoute(t *testing.T) {
	env := newTestEnv(t)
	token := env.register("a@example.com")

	rec := env.multipartRequest(http.MethodPost, "/api/upload", token, nil,
		filePart{field: "files", name: "a.png", content: pngBytes},
		filePart{field: "files", name: "b.png", content: pngBytes},
	)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	urls := decode[struct{ URLs []string }](t, rec).URLs
	require.Len(t, urls, 2)
	for _, u := range urls {
		assert.True(t, strings.HasPrefix(u, publicURL+"/uploads/uploads/"), u)
	}

	rec = env.jsonRequest(http.MethodPost, "/api/upload", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitOnRegister(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.RateLimit.Enabled = true })

	for i := 0; i < 3; i++ {
		rec := env.jsonRequest(http.MethodPost, "/api/auth/register", "", map[string]string{
			"name": "N", "email": fmt.Sprintf("u%d@example.com", i), "password": "secret1",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := env.jsonRequest(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "N", "email": "u4@example.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = env.jsonRequest(http.MethodGet, "/api/admin/get-clients", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "other routes keep their own budget")
}

func loginFrom(env *testEnv, forwardedFor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"nobody@example.com","password":"secret1"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	return env.do(req)
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.RateLimit.Enabled = true })

	for i := 0; i < 5; i++ {
		rec := loginFrom(env, fmt.Sprintf("203.0.113.%d", i))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec := loginFrom(env, "203.0.113.99")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "rotating X-Forwarded-For shares the socket's budget")
}

func TestRateLimitTrustsConfiguredProxy(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.RateLimit.Enabled = true
		cfg.Server.TrustedProxies = []string{"192.0.2.0/24"}
	})

	for i := 0; i < 6; i++ {
		rec := loginFrom(env, fmt.Sprintf("203.0.113.%d", i))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "each forwarded client has its own budget")
	}
	for i := 0; i < 5; i++ {
		loginFrom(env, "203.0.113.50")
	}
	rec := loginFrom(env, "203.0.113.50")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSwaggerUsesConfiguredPrefix(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.Server.APIPrefix = "/v2" })

	rec := env.do(httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "/v2", doc["basePath"])

	rec = env.jsonRequest(http.MethodGet, "/v2/admin/get-clients", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","database":"ok"}`, rec.Body.String())
}

func TestUnknownRouteUsesErrorShape(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", decode[errorBody](t, rec).Error)
}
