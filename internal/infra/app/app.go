package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chapterhouse/library-iam/internal/core/port"
	"github.com/chapterhouse/library-iam/internal/infra/config"
	"github.com/chapterhouse/library-iam/internal/infra/database"
	kafkainfra "github.com/chapterhouse/library-iam/internal/infra/kafka"
	"github.com/chapterhouse/library-iam/internal/infra/logger"
	redisinfra "github.com/chapterhouse/library-iam/internal/infra/redis"
	"github.com/chapterhouse/library-iam/internal/infra/security"
	postgresrepo "github.com/chapterhouse/library-iam/internal/repository/postgres"
	redisrepo "github.com/chapterhouse/library-iam/internal/repository/redis"
	"github.com/chapterhouse/library-iam/internal/transport/http/middleware"
	"github.com/chapterhouse/library-iam/internal/transport/http/routes"
	"github.com/chapterhouse/library-iam/internal/usecase"
)

// Application wires the service graph and owns the process lifecycle.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	store    *postgresrepo.Store
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
}

// New builds the full dependency graph from configuration.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	store := postgresrepo.NewStoreWithPool(pool)

	if err := security.ConfigureArgon2(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}); err != nil {
		store.Close()
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	issuer, err := security.NewTokenIssuer(cfg.Auth.SigningSecret, cfg.Auth.Issuer,
		cfg.Auth.Audience, cfg.Auth.AccessTokenTTL())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init token issuer: %w", err)
	}

	userRepo := postgresrepo.NewUserRepository(pool)
	roleRepo := postgresrepo.NewRoleRepository(pool)
	tokenRepo := postgresrepo.NewTokenRepository(pool)

	// The token index cache is optional; the service degrades to
	// Postgres-only lookups when Redis is unreachable.
	var redisClient *redisinfra.Client
	var tokenIndex port.TokenIndex
	if cfg.Redis.Host != "" {
		redisClient, err = redisinfra.NewClient(cfg.Redis, log)
		if err != nil {
			log.Warn("redis unavailable, token index cache disabled", zap.Error(err))
		} else {
			tokenIndex = redisrepo.NewTokenIndexRepository(redisClient.Client(), cfg.Redis.TokenIndexPrefix)
		}
	}

	var producer *kafkainfra.Producer
	var eventPublisher port.EventPublisher
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka disabled, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	rotationService := usecase.NewRotationService(store, tokenRepo, tokenIndex, cfg.Auth, log)
	authService := usecase.NewAuthService(userRepo, issuer, rotationService, eventPublisher, log)
	userService := usecase.NewUserService(store, userRepo, roleRepo,
		security.DefaultPasswordValidator(), eventPublisher, log)
	roleService := usecase.NewRoleService(store, roleRepo, log)
	permissionService := usecase.NewPermissionService(userRepo, log)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	var cache routes.CacheChecker
	if redisClient != nil {
		cache = redisClient
	}

	engine := routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Issuer:   issuer,
		Metrics:  metrics,
		Database: store,
		Cache:    cache,
		Services: routes.ServiceSet{
			Auth:        authService,
			Users:       userService,
			Roles:       roleService,
			Permissions: permissionService,
		},
	})

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		store:    store,
		redis:    redisClient,
		producer: producer,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.store.Close()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting IAM API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}

	return nil
}
