package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bookgate/features"

	"github.com/spf13/viper"
)

// Config holds application configuration for the bookgate binaries
type Config struct {
	Service       ServiceConfig       `mapstructure:"service"`
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Trial         TrialConfig         `mapstructure:"trial"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Security      SecurityConfig      `mapstructure:"security"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServiceConfig identifies the service
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // dev, staging, production
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	GracefulStop time.Duration `mapstructure:"graceful_stop"`
	TLS          TLSConfig     `mapstructure:"tls"`
}

// TLSConfig holds TLS/SSL settings
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres or memory
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// PasswordSecret, when set, replaces Password at start-up
	PasswordSecret SecretRef `mapstructure:"password_secret"`
}

// SecretRef points at a value held in AWS Secrets Manager
type SecretRef struct {
	ID       string `mapstructure:"id"`
	Field    string `mapstructure:"field"` // JSON field; empty uses the raw string
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// CacheConfig holds trial slice cache settings
type CacheConfig struct {
	Type  string        `mapstructure:"type"` // none, redis
	TTL   time.Duration `mapstructure:"ttl"`
	Redis RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds Redis-specific settings
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// StorageConfig selects where packaged book files are read from
type StorageConfig struct {
	Type  string             `mapstructure:"type"` // local, s3
	Local LocalStorageConfig `mapstructure:"local"`
	S3    S3StorageConfig    `mapstructure:"s3"`
}

// LocalStorageConfig roots relative book paths on the filesystem
type LocalStorageConfig struct {
	Root string `mapstructure:"root"`
}

// S3StorageConfig names the bucket holding book files
type S3StorageConfig struct {
	Bucket       string `mapstructure:"bucket"`
	Prefix       string `mapstructure:"prefix"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

// AuthConfig selects how bearer tokens are verified
type AuthConfig struct {
	Mode string     `mapstructure:"mode"` // none, jwt, oidc
	JWT  JWTConfig  `mapstructure:"jwt"`
	OIDC OIDCConfig `mapstructure:"oidc"`
}

// JWTConfig holds shared-secret token settings
type JWTConfig struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	Audience string        `mapstructure:"audience"`
	Leeway   time.Duration `mapstructure:"leeway"`
}

// OIDCConfig holds OIDC/OAuth2 settings
type OIDCConfig struct {
	IssuerURL           string   `mapstructure:"issuer_url"`
	ClientID            string   `mapstructure:"client_id"`
	ClientSecret        string   `mapstructure:"client_secret"`
	Scopes              []string `mapstructure:"scopes"`
	AllowInsecureIssuer bool     `mapstructure:"allow_insecure_issuer"`
	SkipClientIDCheck   bool     `mapstructure:"skip_client_id_check"`
}

// TrialConfig bounds the trial variant
type TrialConfig struct {
	MaxSections   int `mapstructure:"max_sections"`
	FallbackBytes int `mapstructure:"fallback_bytes"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // color, text
	Output string `mapstructure:"output"` // stdout, stderr, file path
}

// SecurityConfig holds security-related settings
type SecurityConfig struct {
	RateLimiting RateLimitConfig `mapstructure:"rate_limiting"`
	CORS         CORSConfig      `mapstructure:"cors"`
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	RequestsPerMin int  `mapstructure:"requests_per_min"`
	Burst          int  `mapstructure:"burst"`
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	AllowedMethods   []string      `mapstructure:"allowed_methods"`
	AllowedHeaders   []string      `mapstructure:"allowed_headers"`
	ExposeHeaders    []string      `mapstructure:"expose_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

// ObservabilityConfig holds metrics and tracing settings
type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// MetricsConfig holds metrics export settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"` // Prometheus endpoint
	Path    string `mapstructure:"path"`
}

// TracingConfig holds distributed tracing settings
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Insecure    bool   `mapstructure:"insecure"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables (BOOKGATE_SERVER_PORT for server.port)
// 2. Config file
// 3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("bookgate")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/bookgate/")
		v.AddConfigPath("$HOME/.bookgate")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BOOKGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	applyFeatureFlags(&cfg)

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "bookfile-server")
	v.SetDefault("service.version", "1.0.0")
	v.SetDefault("service.environment", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.graceful_stop", "30s")
	v.SetDefault("server.tls.enabled", false)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "bookgate")
	v.SetDefault("database.user", "bookgate")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("cache.type", "none")
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", "bookgate:trial:")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local.root", "./books")

	v.SetDefault("auth.mode", "none")
	v.SetDefault("auth.jwt.leeway", "30s")
	v.SetDefault("auth.oidc.scopes", []string{"openid", "profile", "email"})

	v.SetDefault("trial.max_sections", 3)
	v.SetDefault("trial.fallback_bytes", 100000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "color")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_min", 120)
	v.SetDefault("security.rate_limiting.burst", 20)
	v.SetDefault("security.cors.enabled", true)
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "OPTIONS"})
	v.SetDefault("security.cors.allowed_headers", []string{"Authorization", "Content-Type"})
	v.SetDefault("security.cors.expose_headers", []string{"X-Content-Encrypted", "X-Encryption-Token", "X-Trial-Mode"})
	v.SetDefault("security.cors.max_age", "12h")

	v.SetDefault("observability.metrics.enabled", false)
	v.SetDefault("observability.metrics.address", ":9090")
	v.SetDefault("observability.metrics.path", "/metrics")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.insecure", true)
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service.name is required")
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if cfg.Server.TLS.Enabled {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls.cert_file and server.tls.key_file are required when TLS is enabled")
		}
		if !fileExists(cfg.Server.TLS.CertFile) {
			return fmt.Errorf("TLS certificate file not found: %s", cfg.Server.TLS.CertFile)
		}
		if !fileExists(cfg.Server.TLS.KeyFile) {
			return fmt.Errorf("TLS key file not found: %s", cfg.Server.TLS.KeyFile)
		}
	}

	switch cfg.Database.Driver {
	case "memory":
	case "postgres":
		if cfg.Database.Host == "" {
			return fmt.Errorf("database.host is required when database is configured")
		}
		if cfg.Database.Database == "" {
			return fmt.Errorf("database.database is required when database is configured")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", cfg.Database.Driver)
	}

	switch strings.ToLower(cfg.Storage.Type) {
	case "local":
		if strings.TrimSpace(cfg.Storage.Local.Root) == "" {
			return fmt.Errorf("storage.local.root is required for local storage")
		}
	case "s3":
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("storage.type %q is not supported", cfg.Storage.Type)
	}

	switch strings.ToLower(cfg.Auth.Mode) {
	case "none":
		if cfg.IsProduction() {
			return fmt.Errorf("auth.mode none is not allowed in production")
		}
	case "jwt":
		if cfg.Auth.JWT.Secret == "" {
			return fmt.Errorf("auth.jwt.secret is required when auth.mode is jwt")
		}
	case "oidc":
		if cfg.Auth.OIDC.IssuerURL == "" {
			return fmt.Errorf("auth.oidc.issuer_url is required when auth.mode is oidc")
		}
		if cfg.Auth.OIDC.ClientID == "" && !cfg.Auth.OIDC.SkipClientIDCheck {
			return fmt.Errorf("auth.oidc.client_id is required when auth.mode is oidc")
		}
	default:
		return fmt.Errorf("auth.mode %q is not supported", cfg.Auth.Mode)
	}

	switch strings.ToLower(cfg.Cache.Type) {
	case "", "none":
	case "redis":
		if cfg.Cache.Redis.Address == "" {
			return fmt.Errorf("cache.redis.address is required when cache.type is redis")
		}
	default:
		return fmt.Errorf("cache.type %q is not supported", cfg.Cache.Type)
	}

	if cfg.Trial.MaxSections < 1 {
		return fmt.Errorf("trial.max_sections must be at least 1")
	}
	if cfg.Trial.FallbackBytes < 1 {
		return fmt.Errorf("trial.fallback_bytes must be at least 1")
	}

	return nil
}

// GetDatabaseURL constructs a database connection URL from the config
func (c *Config) GetDatabaseURL() string {
	if c.Database.Driver != "postgres" {
		return ""
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.Database.SSLMode),
	}
	return u.String()
}

// ServerAddress returns host:port for the HTTP listener
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Service.Environment == "development" || c.Service.Environment == "dev"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Service.Environment == "production" || c.Service.Environment == "prod"
}

// MaskSensitive returns a copy of the config with sensitive values masked
func (c *Config) MaskSensitive() *Config {
	masked := *c
	masked.Database.Password = "***"
	masked.Auth.JWT.Secret = "***"
	masked.Auth.OIDC.ClientSecret = "***"
	masked.Cache.Redis.Password = "***"
	return &masked
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	expandedPath := os.ExpandEnv(path)
	if !filepath.IsAbs(expandedPath) {
		return false
	}
	_, err := os.Stat(expandedPath)
	return err == nil
}

// applyFeatureFlags applies build-time feature flags to override configuration
func applyFeatureFlags(cfg *Config) {
	if !features.ShouldEnableMetrics() {
		cfg.Observability.Metrics.Enabled = false
	}

	if !features.ShouldEnableObservability() {
		cfg.Observability.Tracing.Enabled = false
		cfg.Observability.Metrics.Enabled = false
	}

	if features.ShouldUseShortTimeouts() {
		cfg.Server.ReadTimeout = 5 * time.Second
		cfg.Server.WriteTimeout = 10 * time.Second
		cfg.Server.IdleTimeout = 30 * time.Second
		cfg.Server.GracefulStop = 5 * time.Second
	}

	if features.ShouldEnableRateLimiting() {
		cfg.Security.RateLimiting.Enabled = true
	}

	// the trial cache only exists in builds that ask for it
	if !features.ShouldEnableCaching() {
		cfg.Cache.Type = "none"
		cfg.Cache.TTL = 0
		cfg.Cache.Redis.Address = ""
		cfg.Cache.Redis.Password = ""
	}
}

// ApplyServiceSpecificRateLimits tightens limits for demo builds of a binary
func ApplyServiceSpecificRateLimits(cfg *Config, serviceName string) {
	if !features.ShouldEnableRateLimiting() {
		return
	}

	switch serviceName {
	case "bookfile-server":
		cfg.Security.RateLimiting.RequestsPerMin = 30
		cfg.Security.RateLimiting.Burst = 5
	}
}
