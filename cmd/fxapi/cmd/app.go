package cmd

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	echoapi "go.pilab.hu/fxapi/api/echo"
	"go.pilab.hu/fxapi/cache"
	redisstore "go.pilab.hu/fxapi/cache/redis"
	"go.pilab.hu/fxapi/config"
	"go.pilab.hu/fxapi/domain"
	"go.pilab.hu/fxapi/internal/audit"
	"go.pilab.hu/fxapi/internal/auth"
	"go.pilab.hu/fxapi/internal/exchange"
	"go.pilab.hu/fxapi/internal/federation"
	"go.pilab.hu/fxapi/internal/memstore"
	"go.pilab.hu/fxapi/log"
	"go.pilab.hu/fxapi/mongodb"
	"go.pilab.hu/fxapi/services"
)

const rateKeyPrefix = "fxapi:rate"

// app holds the wired dependencies shared by the subcommands.
type app struct {
	repos    domain.RepositoryProvider
	database echoapi.HealthChecker
	services *services.DefaultServiceProvider
	google   federation.OAuth2Provider

	closers []func(context.Context)
}

func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
}

// openStorage connects the configured repository backend. Mongo repositories
// ensure their indexes on construction.
func openStorage(ctx context.Context, cfg *config.ServerConfig, a *app) error {
	switch cfg.StorageBackend {
	case config.StorageMemory:
		appLogger.Warn(ctx, "Using in-memory storage, data is lost on restart")
		a.repos = memstore.NewProvider()
		return nil
	case config.StorageMongoDB:
		if err := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); err != nil {
			return err
		}
		a.closers = append(a.closers, mongodb.CloseMongoDB)

		db, err := mongodb.GetDB()
		if err != nil {
			return err
		}
		repos, err := mongodb.NewMongoRepositoryProvider(ctx, db)
		if err != nil {
			return fmt.Errorf("failed to initialize repositories: %w", err)
		}
		a.repos = repos
		a.database = echoapi.HealthCheckFunc(mongodb.Ping)
		return nil
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func openRateStore(ctx context.Context, cfg *config.ServerConfig) (cache.RateStore, error) {
	if cfg.RateCacheBackend != config.RateCacheRedis {
		return cache.NewMemoryRateStore(cfg.RateCacheTTL), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
	}
	appLogger.Info(ctx, "Rate cache backed by Redis", log.Fields{"addr": cfg.RedisAddr})
	return redisstore.NewRateStore(client, rateKeyPrefix, cfg.RateCacheTTL), nil
}

// bootstrap wires storage, caches and services from cfg.
func bootstrap(ctx context.Context, cfg *config.ServerConfig) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		a.Close(context.Background())
		return nil, err
	}

	if err := openStorage(ctx, cfg, a); err != nil {
		return fail(err)
	}

	rates, err := openRateStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	a.closers = append(a.closers, func(ctx context.Context) {
		if err := rates.Close(); err != nil {
			appLogger.Error(ctx, "Failed to close rate cache", err)
		}
	})

	policy, err := audit.ParsePolicy(cfg.AuditPolicy)
	if err != nil {
		return fail(err)
	}
	hasher, err := auth.NewBcryptPasswordHasher(cfg.BcryptCost)
	if err != nil {
		return fail(err)
	}
	tokens, err := services.NewTokenService(services.TokenConfig{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		AccessTTL: cfg.AccessTokenTTL,
	})
	if err != nil {
		return fail(err)
	}

	rateClient := exchange.NewClient(exchange.Config{
		BaseURL:         cfg.ExchangeRateAPIURL,
		APIKey:          cfg.ExchangeRateAPIKey,
		Timeout:         cfg.ExchangeRateTimeout,
		UseMockFallback: cfg.IsDevelopment(),
	}, rates)

	a.services, err = services.NewDefaultServiceProvider(services.DefaultServiceProviderOptions{
		RepositoryProvider: a.repos,
		TokenService:       tokens,
		PasswordHasher:     hasher,
		AuditRecorder:      audit.NewRecorder(a.repos.AuditEventRepository(ctx), policy),
		RateProvider:       rateClient,
		RefreshTokenTTL:    cfg.RefreshTokenTTL,
	})
	if err != nil {
		return fail(err)
	}

	if cfg.GoogleEnabled() {
		google, err := federation.NewGoogleProvider(federation.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleCallbackURL,
		})
		if err != nil {
			return fail(err)
		}
		a.google = google
	} else {
		appLogger.Info(ctx, "Google sign-in disabled, GOOGLE_* settings incomplete")
	}

	return a, nil
}
