package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chapterhouse/library-iam/internal/core/domain"
	"github.com/chapterhouse/library-iam/internal/infra/config"
	"github.com/chapterhouse/library-iam/internal/infra/security"
	"github.com/chapterhouse/library-iam/internal/transport/http/handlers"
	"github.com/chapterhouse/library-iam/internal/transport/http/middleware"
	"github.com/chapterhouse/library-iam/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth        *usecase.AuthService
	Users       *usecase.UserService
	Roles       *usecase.RoleService
	Permissions *usecase.PermissionService
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Services ServiceSet
	Issuer   *security.TokenIssuer
	Metrics  *middleware.HTTPMetrics
	Database DatabaseChecker
	Cache    CacheChecker
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))
	r.Use(deps.Metrics.Handler())

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	requireAuth := middleware.RequireAuth(deps.Issuer)

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Issuer)
		authHandler.RegisterRoutes(authGroup)

		guard := handlers.PermissionGuard(func(feature domain.Feature, action domain.Action) gin.HandlerFunc {
			return middleware.RequirePermission(feature, action)
		})

		userGroup := api.Group("/users")
		userGroup.Use(requireAuth)
		userHandler := handlers.NewUserHandler(deps.Services.Users, deps.Services.Permissions)
		userHandler.RegisterRoutes(userGroup, guard)

		roleGroup := api.Group("/roles")
		roleGroup.Use(requireAuth)
		roleHandler := handlers.NewRoleHandler(deps.Services.Roles)
		roleHandler.RegisterRoutes(roleGroup, guard)
	}

	return r
}
