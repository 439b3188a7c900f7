package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	"vitrine/internal/api/middleware"
	"vitrine/internal/config"
	"vitrine/internal/db"
	"vitrine/internal/handlers"
	"vitrine/internal/services"
	"vitrine/internal/utils"
	"vitrine/internal/utils/logger"
)

// Server owns the Echo instance and the services behind the routes.
type Server struct {
	echo    *echo.Echo
	config  *config.Config
	db      *gorm.DB
	redis   *utils.RedisClient
	images  services.ImageStore
	auth    *services.AuthService
	content *services.ContentService
	log     *logger.Logger
}

// NewServer wires middleware and routes. redis may be nil, in which case
// rate limits are kept per process.
func NewServer(cfg *config.Config, database *gorm.DB, images services.ImageStore, redis *utils.RedisClient) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = middleware.CustomValidator{}
	e.HTTPErrorHandler = handlers.ErrorHandler
	e.IPExtractor = ipExtractor(cfg.Server)

	s := &Server{
		echo:    e,
		config:  cfg,
		db:      database,
		redis:   redis,
		images:  images,
		auth:    services.NewAuthService(database, cfg.JWT),
		content: services.NewContentService(database, images),
		log:     logger.New("SERVER"),
	}

	s.setupMiddleware()
	s.registerRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				s.log.Warn("%s %s %d %s (%s): %v", v.Method, v.URI, v.Status, v.Latency, v.RemoteIP, v.Error)
				return nil
			}
			s.log.Debug("%s %s %d %s (%s)", v.Method, v.URI, v.Status, v.Latency, v.RemoteIP)
			return nil
		},
	}))
	s.echo.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: s.config.Server.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	s.echo.Use(echomw.BodyLimit("64M"))

	if s.config.RateLimit.Enabled {
		var counter middleware.Counter
		if s.redis != nil {
			counter = middleware.NewRedisCounter(s.redis)
		}
		s.echo.Use(middleware.RateLimiter(middleware.CreateDefaultRateLimitConfig(counter, s.config.Server.APIPrefix)))
	}
}

// ServeHTTP lets the server be driven by httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Auth exposes the auth service for startup seeding.
func (s *Server) Auth() *services.AuthService {
	return s.auth
}

func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.log.Success("Listening on %s", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// healthCheck reports 503 when the database or Redis is unreachable.
func (s *Server) healthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok", "database": "ok"}
	code := http.StatusOK

	if err := db.Ping(ctx, s.db); err != nil {
		status["status"] = "degraded"
		status["database"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	if s.redis != nil {
		status["redis"] = "ok"
		if err := s.redis.HealthCheck(ctx); err != nil {
			status["status"] = "degraded"
			status["redis"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	return c.JSON(code, status)
}

// ipExtractor reads X-Forwarded-For only when trusted proxies are
// configured, and then only through them. Otherwise the socket address is
// the client.
func ipExtractor(cfg config.ServerConfig) echo.IPExtractor {
	ranges, _ := cfg.TrustedProxyRanges()
	if len(ranges) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, r := range ranges {
		opts = append(opts, echo.TrustIPRange(r))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}
