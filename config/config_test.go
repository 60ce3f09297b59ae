package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodSecret = "0123456789abcdef0123456789abcdef"

// chdir moves into dir so LoadConfig does not pick up a stray config.yaml.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadConfig_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.AppEnv)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "5700", cfg.HTTPPort)
	assert.Equal(t, "fx-converter", cfg.MongoDBName)
	assert.Equal(t, "fx-converter-api", cfg.JWTIssuer)
	assert.Equal(t, "fx-converter-app", cfg.JWTAudience)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 168*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, "best_effort", cfg.AuditPolicy)
	assert.Equal(t, RateCacheMemory, cfg.RateCacheBackend)
	assert.False(t, cfg.GoogleEnabled())
}

func TestLoadConfig_Env(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("APP_ENV", " Production ")
	t.Setenv("JWT_SECRET", goodSecret)
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("BCRYPT_COST", "12")
	t.Setenv("GOOGLE_CLIENT_ID", "id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("GOOGLE_CALLBACK_URL", "http://localhost/cb")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, cfg.AppEnv)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, goodSecret, cfg.JWTSecret)
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.True(t, cfg.GoogleEnabled())
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(dir+"/config.yaml", []byte("HTTP_PORT: \"9000\"\nRATE_CACHE_TTL: 1m\n"), 0o600))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, time.Minute, cfg.RateCacheTTL)
}

func TestServerConfig_Validate(t *testing.T) {
	valid := func() *ServerConfig {
		return &ServerConfig{
			JWTSecret:        goodSecret,
			AccessTokenTTL:   time.Minute,
			RefreshTokenTTL:  time.Hour,
			StorageBackend:   StorageMemory,
			RateCacheBackend: RateCacheMemory,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*ServerConfig)
		want   string
	}{
		{"short secret", func(c *ServerConfig) { c.JWTSecret = "short" }, "JWT_SECRET"},
		{"zero ttl", func(c *ServerConfig) { c.AccessTokenTTL = 0 }, "JWT_ACCESS_TTL"},
		{"mongo without uri", func(c *ServerConfig) { c.StorageBackend = StorageMongoDB }, "MONGO_URI"},
		{"unknown storage", func(c *ServerConfig) { c.StorageBackend = "sqlite" }, "STORAGE_BACKEND"},
		{"redis without addr", func(c *ServerConfig) { c.RateCacheBackend = RateCacheRedis }, "REDIS_ADDR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}
