package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/disburse/internal/audit/domain"
	batchdomain "github.com/smallbiznis/disburse/internal/batch/domain"
	commissiondomain "github.com/smallbiznis/disburse/internal/commission/domain"
	"github.com/smallbiznis/disburse/internal/config"
	"github.com/smallbiznis/disburse/internal/orchestrator"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	DB         *gorm.DB
	BatchSvc   batchdomain.Service
	Aggregator commissiondomain.Aggregator
	OrchSvc    orchestrator.Service
	AuditSvc   auditdomain.Service
}

// Server holds the admin API surface. There is no end-user surface:
// every route is an operator action or an operator view.
type Server struct {
	cfg        config.Config
	log        *zap.Logger
	db         *gorm.DB
	batchSvc   batchdomain.Service
	aggregator commissiondomain.Aggregator
	orchSvc    orchestrator.Service
	auditSvc   auditdomain.Service
}

func NewServer(p Params) *Server {
	return &Server{
		cfg:        p.Cfg,
		log:        p.Log.Named("server"),
		db:         p.DB,
		batchSvc:   p.BatchSvc,
		aggregator: p.Aggregator,
		orchSvc:    p.OrchSvc,
		auditSvc:   p.AuditSvc,
	}
}

func NewEngine(cfg config.Config) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	return engine
}

// RegisterRoutes wires the admin API onto the engine.
func (s *Server) RegisterRoutes(engine *gin.Engine) {
	engine.GET("/healthz", s.Healthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	{
		api.GET("/affiliates/payable", s.ListPayableAffiliates)
		api.GET("/affiliates/:id/aggregate", s.GetAffiliateAggregate)

		api.POST("/batches", s.CreateBatch)
		api.GET("/batches", s.ListBatches)
		api.GET("/batches/stats", s.GetBatchStats)
		api.GET("/batches/:id", s.GetBatch)
		api.GET("/batches/:id/transactions", s.ListBatchTransactions)
		api.POST("/batches/:id/queue", s.QueueBatch)
		api.POST("/batches/:id/execute", s.ExecuteBatch)
		api.POST("/batches/:id/cancel", s.CancelBatch)
		api.DELETE("/batches/:id", s.DeleteBatch)

		api.POST("/quick-pay", s.QuickPay)

		api.GET("/audit-logs", s.ListAuditLogs)
	}
}

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

// RunHTTP starts the listener under the fx lifecycle.
func RunHTTP(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, engine *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server, engine *gin.Engine) {
		s.RegisterRoutes(engine)
	}),
	fx.Invoke(RunHTTP),
)
