package route

import (
	"io"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"paidwall/internal/api/http/handler"
	"paidwall/internal/api/http/middleware"
	"paidwall/internal/config"
	"paidwall/pkg/x402"
)

func SetupRouter(
	log *zap.Logger,
	cfg *config.Config,
	wallHdl WallHandler,
	healthHdl HealthHandler,
	pendingSvc middleware.PendingChecker,
	facilitator x402.FacilitatorClient,
	rdb *redis.Client,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = io.Discard

	router := gin.New()
	router.Use(gin.Recovery())

	// middleware
	router.Use(middleware.Logger(log))
	router.Use(middleware.RequestTimeout(cfg.HTTPServer.Timeout.Request))
	router.Use(middleware.CORS(cfg.HTTPServer.CORS))

	router.HandleMethodNotAllowed = true
	router.NoMethod(handler.NoMethod)
	router.NoRoute(handler.NoRoute)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	basePath := router.Group(cfg.HTTPServer.BasePath)

	healthPath := basePath.Group("/health")
	RegisterHealth(healthPath, healthHdl)

	var rateLimit gin.HandlerFunc
	if cfg.RateLimit.Enabled && rdb != nil {
		rateLimit = middleware.RateLimit(log, rdb, cfg.RateLimit.PerMinute)
	}

	pendingGate := middleware.PendingGate(log, pendingSvc, wallPath(cfg))
	payment := middleware.Payment(log, cfg.Payment, facilitator, paidPath(cfg))

	RegisterWall(basePath, wallHdl, rateLimit, pendingGate, payment)

	return router
}

func wallPath(cfg *config.Config) string {
	return joinBase(cfg.HTTPServer.BasePath, "/wall")
}

func paidPath(cfg *config.Config) string {
	return joinBase(cfg.HTTPServer.BasePath, "/wall-paid")
}

func joinBase(base, path string) string {
	if base == "" || base == "/" {
		return path
	}

	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}

	if base[0] != '/' {
		base = "/" + base
	}

	return base + path
}
