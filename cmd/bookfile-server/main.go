package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookgate/config"
	"bookgate/logging"
	"bookgate/middleware"
	"bookgate/observability"
	"bookgate/pkg/auth"
	"bookgate/pkg/cache"
	"bookgate/pkg/repository"
	"bookgate/pkg/repository/memory"
	"bookgate/pkg/repository/postgres"
	"bookgate/pkg/secrets"
	"bookgate/pkg/storage"
	"bookgate/services/bookfile"
)

var (
	// Command-line flags
	configFile = flag.String("config", "", "Path to configuration file")
	version    = flag.Bool("version", false, "Print version information")
)

const (
	ServiceName    = "bookfile-server"
	ServiceVersion = "1.0.0"
)

func main() {
	flag.Parse()

	logger := logging.GetLogger()

	if *version {
		fmt.Printf("%s version %s\n", ServiceName, ServiceVersion)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	cfg.Service.Name = ServiceName
	cfg.Service.Version = ServiceVersion

	config.ApplyServiceSpecificRateLimits(cfg, ServiceName)

	logCloser, err := logger.Configure(cfg.Logging.Level, cfg.Logging.Output, cfg.Logging.Format)
	if err != nil {
		logger.Error("Failed to configure logging: %v", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	logger.PrintBuildInfo(ServiceName, ServiceVersion)
	logConfiguration(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry, err := observability.Init(ctx, cfg, logger, ServiceName, ServiceVersion)
	if err != nil {
		logger.Warn("Observability partially initialized: %v", err)
	}

	if err := secrets.ApplyDatabasePassword(ctx, secrets.NewAWSSecretsManagerFetcher(), &cfg.Database); err != nil {
		logger.Error("Failed to resolve database password: %v", err)
		os.Exit(1)
	}

	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to create repository: %v", err)
		os.Exit(1)
	}
	defer repo.Close()

	loader, err := storage.NewLoader(ctx, cfg.Storage)
	if err != nil {
		logger.Error("Failed to create storage loader: %v", err)
		os.Exit(1)
	}
	logger.Startup("Book files are read from %s storage", loader.Kind())

	verifier, err := auth.NewVerifier(ctx, cfg.Auth)
	if err != nil {
		logger.Error("Failed to create identity verifier: %v", err)
		os.Exit(1)
	}
	if verifier.Mode() == "none" {
		logger.Warn("Bearer tokens are NOT verified (auth.mode=none); use only for development")
	}

	sliceCache := openSliceCache(cfg, logger)
	defer sliceCache.Close()

	rateLimiter := middleware.NewRateLimiter(cfg)
	rateLimiter.PrintRateLimitInfo(ServiceName)
	cleanupStop := make(chan struct{})
	defer close(cleanupStop)
	go rateLimiter.StartCleanup(time.Minute, 10*time.Minute, cleanupStop)

	opts := bookfile.Options{
		Repo:        repo,
		Loader:      loader,
		Verifier:    verifier,
		Cache:       sliceCache,
		RateLimiter: rateLimiter,
		Trial:       cfg.Trial,
		CORS:        cfg.Security.CORS,
		Version:     ServiceVersion,
	}
	// without a dedicated metrics listener the API router serves the registry
	if cfg.Observability.Metrics.Address == "" {
		opts.MetricsHandler = telemetry.MetricsHandler()
		opts.MetricsPath = cfg.Observability.Metrics.Path
	}

	server, err := bookfile.NewServer(opts)
	if err != nil {
		logger.Error("Failed to create server: %v", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Startup("Starting %s version %s", ServiceName, ServiceVersion)
		logger.Startup("Environment: %s", cfg.Service.Environment)
		logger.Startup("Book file API listening on %s", httpServer.Addr)

		var err error
		if cfg.Server.TLS.Enabled {
			err = httpServer.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("Server failed: %v", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	logger.Startup("Shutting down %s gracefully...", ServiceName)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulStop)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown: %v", err)
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Telemetry shutdown: %v", err)
	}

	logger.Startup("%s stopped", ServiceName)
}

func openRepository(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*repository.Repository, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using an empty in-memory catalog; every lookup will miss")
		return memory.NewRepository(memory.NewStore()), nil
	}

	logger.Startup("Connecting to database: %s", maskDBPassword(cfg))
	repo, err := postgres.NewRepository(ctx, cfg.GetDatabaseURL(), postgres.PoolConfig{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}

	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Startup("Database connection successful")
	return repo, nil
}

func openSliceCache(cfg *config.Config, logger *logging.Logger) cache.SliceCache {
	if cfg.Cache.Type != "redis" {
		logger.Startup("Trial slice cache disabled")
		return cache.NewNoOpSliceCache()
	}

	logger.Startup("Initializing Redis trial slice cache at %s", cfg.Cache.Redis.Address)
	c, err := cache.NewRedisSliceCache(cache.RedisCacheConfig{
		Addr:     cfg.Cache.Redis.Address,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
		TTL:      cfg.Cache.TTL,
	})
	if err != nil {
		logger.Warn("Failed to initialize Redis cache: %v", err)
		logger.Warn("Trials will be sliced on every request")
		return cache.NewNoOpSliceCache()
	}
	logger.Startup("Redis trial slice cache initialized successfully")
	return c
}

// logConfiguration logs the configuration with sensitive data masked
func logConfiguration(cfg *config.Config, logger *logging.Logger) {
	logger.Startup("Configuration loaded successfully")
	logger.Info("Service: %s v%s (%s)", cfg.Service.Name, cfg.Service.Version, cfg.Service.Environment)
	logger.Info("Server: %s (timeouts: read=%v write=%v idle=%v)",
		cfg.ServerAddress(), cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout)
	logger.Info("Database: %s", cfg.Database.Driver)
	logger.Info("Storage: %s", cfg.Storage.Type)
	logger.Info("Auth: %s", cfg.Auth.Mode)
	logger.Info("Trial: %d sections (fallback prefix %d bytes)", cfg.Trial.MaxSections, cfg.Trial.FallbackBytes)
	logger.Info("Cache: %s", cfg.Cache.Type)
	if cfg.Cache.Type == "redis" {
		logger.Info("Redis: %s (DB: %d)", cfg.Cache.Redis.Address, cfg.Cache.Redis.DB)
	}
	logger.Info("Logging mode: %s", logging.LoggingMode())

	if cfg.IsProduction() {
		logger.Info("Running in PRODUCTION mode")
		logger.Info("  - TLS: %v", cfg.Server.TLS.Enabled)
		logger.Info("  - Rate limiting: %v", cfg.Security.RateLimiting.Enabled)
		logger.Info("  - Metrics: %v", cfg.Observability.Metrics.Enabled)
		logger.Info("  - Tracing: %v", cfg.Observability.Tracing.Enabled)
	}
}

// maskDBPassword renders the connection target without credentials
func maskDBPassword(cfg *config.Config) string {
	return fmt.Sprintf("postgres://%s:***@%s:%d/%s",
		cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
}
