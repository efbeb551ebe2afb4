package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/rewardly/internal/config"
	commissiondomain "github.com/smallbiznis/rewardly/internal/commission/domain"
	"github.com/smallbiznis/rewardly/internal/observability/logger"
	"github.com/smallbiznis/rewardly/internal/observability/metrics"
	pointsdomain "github.com/smallbiznis/rewardly/internal/points/domain"
	rateconfigdomain "github.com/smallbiznis/rewardly/internal/rateconfig/domain"
	migrationdomain "github.com/smallbiznis/rewardly/internal/ratiomigration/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Server exposes the loyalty engine over HTTP for storefront and admin
// callers.
type Server struct {
	cfg config.Config
	log *zap.Logger
	db  *gorm.DB

	pointsSvc     pointsdomain.Service
	commissionSvc commissiondomain.Service
	migrationSvc  migrationdomain.Service
	rateSvc       rateconfigdomain.Service

	limiter *rateLimiter
}

type ServerParam struct {
	fx.In

	Cfg           config.Config
	Log           *zap.Logger
	DB            *gorm.DB
	PointsSvc     pointsdomain.Service
	CommissionSvc commissiondomain.Service
	MigrationSvc  migrationdomain.Service
	RateSvc       rateconfigdomain.Service
}

func NewServer(p ServerParam) *Server {
	return &Server{
		cfg:           p.Cfg,
		log:           p.Log.Named("server"),
		db:            p.DB,
		pointsSvc:     p.PointsSvc,
		commissionSvc: p.CommissionSvc,
		migrationSvc:  p.MigrationSvc,
		rateSvc:       p.RateSvc,
		limiter:       newRateLimiter(p.Cfg.RateLimit.Limit, p.Cfg.RateLimit.Window),
	}
}

type EngineParam struct {
	fx.In

	Cfg         config.Config
	HTTPMetrics *metrics.HTTPMetrics `optional:"true"`
}

// NewEngine builds the gin engine with the shared middleware chain.
func NewEngine(p EngineParam) *gin.Engine {
	if p.Cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logger.GinMiddleware(logger.MiddlewareConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	if p.HTTPMetrics != nil {
		engine.Use(metrics.GinMiddleware(p.HTTPMetrics))
	}
	return engine
}

// RegisterAPIRoutes mounts the versioned API surface.
func (s *Server) RegisterAPIRoutes(engine *gin.Engine) {
	engine.GET("/healthz", s.Healthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/v1")
	v1.Use(s.rateLimit())

	customers := v1.Group("/customers")
	customers.GET("/:id/points/balance", s.GetPointsBalance)
	customers.GET("/:id/points/transactions", s.ListPointsTransactions)
	customers.GET("/:id/points/max-redeemable", s.GetMaxRedeemablePoints)
	customers.POST("/:id/points/redemptions/validate", s.ValidateRedemption)

	orders := v1.Group("/orders")
	orders.POST("/allocate", s.AllocatePoints)
	orders.POST("/redeem", s.RedeemPoints)
	orders.POST("/refund", s.RefundPoints)

	commissions := v1.Group("/commissions")
	commissions.POST("/calculate", s.CalculateCommission)

	admin := v1.Group("/admin")
	admin.POST("/points/adjustments", s.AddPointsAdjustment)
	admin.GET("/rates", s.GetRateConfig)
	admin.POST("/migrations", s.StartRatioMigration)
	admin.GET("/migrations/:id", s.GetRatioMigration)
	admin.POST("/migrations/:id/resume", s.ResumeRatioMigration)
	admin.POST("/migrations/:id/rollback", s.RollbackRatioMigration)
}

// Healthz reports liveness plus a cheap database ping.
func (s *Server) Healthz(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		if !s.limiter.Allow(c.ClientIP()) {
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

// RunHTTP binds the engine to the configured address under the fx
// lifecycle.
func RunHTTP(lc fx.Lifecycle, engine *gin.Engine, server *Server, cfg config.Config, log *zap.Logger) {
	server.RegisterAPIRoutes(engine)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(
		NewEngine,
		NewServer,
	),
	fx.Invoke(RunHTTP),
)
