package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	StorageMongoDB = "mongodb"
	StorageMemory  = "memory"

	RateCacheMemory = "memory"
	RateCacheRedis  = "redis"

	minSecretLength = 32
)

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	AppEnv          string `mapstructure:"APP_ENV"`
	HTTPPort        string `mapstructure:"HTTP_PORT"`
	StorageBackend  string `mapstructure:"STORAGE_BACKEND"`
	MongoURI        string `mapstructure:"MONGO_URI"`
	MongoDBName     string `mapstructure:"MONGO_DB_NAME"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogPretty       bool   `mapstructure:"LOG_PRETTY"`
	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	JWTIssuer       string        `mapstructure:"JWT_ISSUER"`
	JWTAudience     string        `mapstructure:"JWT_AUDIENCE"`
	AccessTokenTTL  time.Duration `mapstructure:"JWT_ACCESS_TTL"`
	RefreshTokenTTL time.Duration `mapstructure:"JWT_REFRESH_TTL"`
	BcryptCost      int           `mapstructure:"BCRYPT_COST"`
	AuditPolicy     string        `mapstructure:"AUDIT_POLICY"`

	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `mapstructure:"GOOGLE_CALLBACK_URL"`
	FrontendSuccessURL string `mapstructure:"FRONTEND_SUCCESS_URL"`
	FrontendErrorURL   string `mapstructure:"FRONTEND_ERROR_URL"`

	ExchangeRateAPIURL  string        `mapstructure:"EXCHANGE_RATE_API_URL"`
	ExchangeRateAPIKey  string        `mapstructure:"EXCHANGE_RATE_API_KEY"`
	ExchangeRateTimeout time.Duration `mapstructure:"EXCHANGE_RATE_TIMEOUT"`
	RateCacheTTL        time.Duration `mapstructure:"RATE_CACHE_TTL"`
	RateCacheBackend    string        `mapstructure:"RATE_CACHE_BACKEND"`
	RedisAddr           string        `mapstructure:"REDIS_ADDR"`
	RedisPassword       string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB             int           `mapstructure:"REDIS_DB"`
}

// IsDevelopment reports whether the server runs in development mode.
func (c *ServerConfig) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// GoogleEnabled reports whether Google sign-in is configured.
func (c *ServerConfig) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleCallbackURL != ""
}

// Validate checks the settings the server cannot start without.
func (c *ServerConfig) Validate() error {
	var errs []error
	if len(c.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLength))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("JWT_ACCESS_TTL and JWT_REFRESH_TTL must be positive"))
	}
	switch c.StorageBackend {
	case StorageMongoDB:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongodb storage backend"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}
	switch c.RateCacheBackend {
	case RateCacheRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis rate cache"))
		}
	case RateCacheMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown RATE_CACHE_BACKEND %q", c.RateCacheBackend))
	}
	return errors.Join(errs...)
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/fxapi/")
	v.AddConfigPath("$HOME/.fxapi")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file means defaults and env vars only.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", EnvDevelopment)
	v.SetDefault("HTTP_PORT", "5700")
	v.SetDefault("STORAGE_BACKEND", StorageMongoDB)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "fx-converter")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("OTEL_SERVICE_NAME", "fxapi")

	// AutomaticEnv only resolves keys viper already knows about.
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "fx-converter-api")
	v.SetDefault("JWT_AUDIENCE", "fx-converter-app")
	v.SetDefault("JWT_ACCESS_TTL", 15*time.Minute)
	v.SetDefault("JWT_REFRESH_TTL", 7*24*time.Hour)
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("AUDIT_POLICY", "best_effort")

	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("GOOGLE_CALLBACK_URL", "")
	v.SetDefault("FRONTEND_SUCCESS_URL", "http://localhost:3000/auth/success")
	v.SetDefault("FRONTEND_ERROR_URL", "http://localhost:3000/auth/error")

	v.SetDefault("EXCHANGE_RATE_API_URL", "https://api.exchangerate.host")
	v.SetDefault("EXCHANGE_RATE_API_KEY", "")
	v.SetDefault("EXCHANGE_RATE_TIMEOUT", 10*time.Second)
	v.SetDefault("RATE_CACHE_TTL", 5*time.Minute)
	v.SetDefault("RATE_CACHE_BACKEND", RateCacheMemory)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
}
