package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	aiusagedomain "github.com/prepware/creditengine/internal/aiusage/domain"
	billingdomain "github.com/prepware/creditengine/internal/billing/domain"
	"github.com/prepware/creditengine/internal/config"
	ledgerdomain "github.com/prepware/creditengine/internal/ledger/domain"
	"github.com/prepware/creditengine/internal/observability"
	pricingdomain "github.com/prepware/creditengine/internal/pricing/domain"
	"github.com/prepware/creditengine/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger, metrics *observability.Metrics) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestIDMiddleware())
	r.Use(observability.TracingMiddleware(cfg.AppName))
	r.Use(RequestLogMiddleware(log))
	if metrics != nil {
		r.Use(metrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	return r
}

func registerGin(cfg config.Config, log *zap.Logger, metrics *observability.Metrics) *gin.Engine {
	return NewEngine(cfg, log, metrics)
}

// RequestLogMiddleware emits one structured line per request. Health and
// metrics scrapes log at debug to keep the info stream readable.
func RequestLogMiddleware(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", c.GetString("request_id")),
		}
		if lastErr := c.Errors.Last(); lastErr != nil {
			fields = append(fields, zap.Error(lastErr.Err))
		}

		switch {
		case route == "/health" || route == "/metrics":
			log.Debug("http_request", fields...)
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("http_request", fields...)
		default:
			log.Info("http_request", fields...)
		}
	}
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	billingSvc   billingdomain.Service
	ledgerSvc    ledgerdomain.Service
	pricingSvc   pricingdomain.Service
	aiUsageSvc   aiusagedomain.Service
	metrics      *observability.Metrics
	usageLimiter *ratelimit.UsageLimiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	BillingSvc   billingdomain.Service
	LedgerSvc    ledgerdomain.Service
	PricingSvc   pricingdomain.Service
	AIUsageSvc   aiusagedomain.Service
	Metrics      *observability.Metrics `optional:"true"`
	UsageLimiter *ratelimit.UsageLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		billingSvc:   p.BillingSvc,
		ledgerSvc:    p.LedgerSvc,
		pricingSvc:   p.PricingSvc,
		aiUsageSvc:   p.AIUsageSvc,
		metrics:      p.Metrics,
		usageLimiter: p.UsageLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Billing --------
	api.POST("/billing/bill", s.Bill)
	api.POST("/billing/refund", s.RefundCredits)
	api.POST("/billing/rewards", s.GrantReward)

	// -------- Accounts --------
	api.GET("/accounts/:id/balance", s.GetBalance)
	api.GET("/accounts/:id/transactions", s.ListTransactions)

	// -------- Receipts --------
	api.GET("/transactions/:id/receipt", s.GetReceipt)

	// -------- AI usage telemetry --------
	api.POST("/usage", s.UsageRateLimit(), s.IngestUsage)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.GET("/prices", s.ListPrices)
	admin.PUT("/prices", s.SetPrice)
	admin.GET("/model-prices", s.ListModelPrices)
	admin.PUT("/model-prices", s.SetModelPrice)

	admin.GET("/transactions/recent", s.ListRecentTransactions)
	admin.GET("/accounts/:id/reconciliation", s.GetReconciliation)

	admin.GET("/analytics/summary", s.GetCostSummary)
	admin.GET("/analytics/by-feature", s.GetCostByFeature)
	admin.GET("/analytics/by-model", s.GetCostByModel)
	admin.GET("/analytics/daily", s.GetDailyTrend)
}
