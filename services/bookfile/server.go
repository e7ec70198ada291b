// Package bookfile serves packaged book files over HTTP. Every successful
// response body is encrypted under a key generated for that response alone.
package bookfile

import (
	"context"
	"errors"
	"net/http"
	"time"

	"bookgate/config"
	"bookgate/logging"
	"bookgate/middleware"
	"bookgate/pkg/auth"
	"bookgate/pkg/cache"
	"bookgate/pkg/crypto"
	"bookgate/pkg/entitlement"
	"bookgate/pkg/repository"
	"bookgate/pkg/storage"
	"bookgate/pkg/trial"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

const serviceName = "bookfile-server"

var logger = logging.GetLogger()

// Options carries the collaborators a Server needs. Cache, RateLimiter and
// MetricsHandler are optional.
type Options struct {
	Repo        *repository.Repository
	Loader      storage.Loader
	Verifier    auth.Verifier
	Cache       cache.SliceCache
	RateLimiter *middleware.RateLimiter
	Trial       config.TrialConfig
	CORS        config.CORSConfig
	Version     string

	MetricsHandler http.Handler
	MetricsPath    string
}

// Server represents the book file API server
type Server struct {
	router    *gin.Engine
	repo      *repository.Repository
	resolver  *entitlement.Resolver
	loader    storage.Loader
	extractor *trial.Extractor
	cache     cache.SliceCache
	verifier  auth.Verifier
	version   string

	// seal is crypto.Seal outside of tests
	seal func([]byte) (*crypto.Sealed, error)
}

// NewServer creates a new book file server instance
func NewServer(opts Options) (*Server, error) {
	if opts.Repo == nil {
		return nil, errors.New("repository is required")
	}
	if opts.Loader == nil {
		return nil, errors.New("storage loader is required")
	}
	if opts.Verifier == nil {
		return nil, errors.New("identity verifier is required")
	}

	sliceCache := opts.Cache
	if sliceCache == nil {
		sliceCache = cache.NewNoOpSliceCache()
	}

	extractor := trial.NewExtractor(opts.Trial.MaxSections, opts.Trial.FallbackBytes)

	s := &Server{
		router:    gin.Default(),
		repo:      opts.Repo,
		resolver:  entitlement.NewResolver(opts.Repo.Books, opts.Repo.Purchases, extractor.MaxSections),
		loader:    opts.Loader,
		extractor: extractor,
		cache:     sliceCache,
		verifier:  opts.Verifier,
		version:   lo.Ternary(opts.Version != "", opts.Version, "dev"),
		seal:      crypto.Seal,
	}

	s.setupRoutes(opts)
	return s, nil
}

// Handler exposes the router for http.Server and tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes(opts Options) {
	// CORS must run first so preflight requests never reach auth
	if opts.CORS.Enabled {
		s.router.Use(cors.New(corsConfig(opts.CORS)))
	}

	s.router.GET("/health", s.healthCheck)

	if opts.MetricsHandler != nil {
		path := lo.Ternary(opts.MetricsPath != "", opts.MetricsPath, "/metrics")
		s.router.GET(path, gin.WrapH(opts.MetricsHandler))
	}

	books := s.router.Group("/books")
	if opts.RateLimiter != nil {
		books.Use(opts.RateLimiter.Middleware())
	}
	books.Use(s.identityMiddleware())
	{
		books.GET("/:id/file", s.getBookFile)
		books.GET("/:id/access", s.getBookAccess)
	}
}

func corsConfig(cfg config.CORSConfig) cors.Config {
	exposed := lo.Uniq(append([]string{
		crypto.EncryptedHeader,
		crypto.TokenHeader,
		crypto.TrialHeader,
		"Content-Length",
		"Content-Type",
	}, cfg.ExposeHeaders...))

	cc := cors.Config{
		AllowMethods:     cfg.AllowedMethods,
		AllowHeaders:     cfg.AllowedHeaders,
		ExposeHeaders:    exposed,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           lo.Ternary(cfg.MaxAge > 0, cfg.MaxAge, 12*time.Hour),
	}
	if len(cfg.AllowedOrigins) == 0 || lo.Contains(cfg.AllowedOrigins, "*") {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = cfg.AllowedOrigins
	}
	return cc
}

// healthCheck returns the server health status
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.repo.Ping(ctx); err != nil {
		logger.Warn("Health check failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"message": "database connection failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": s.version,
		"storage": s.loader.Kind(),
	})
}
