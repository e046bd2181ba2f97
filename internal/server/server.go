package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/billforge/billforge/internal/config"
	documentdomain "github.com/billforge/billforge/internal/document/domain"
	"github.com/billforge/billforge/internal/observability"
	obsmiddleware "github.com/billforge/billforge/internal/observability/logger"
	obsmetrics "github.com/billforge/billforge/internal/observability/metrics"
	paymentdomain "github.com/billforge/billforge/internal/payment/domain"
	scheduledomain "github.com/billforge/billforge/internal/schedule/domain"
	"github.com/billforge/billforge/internal/scheduler"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
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
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	genID       *snowflake.Node
	documentSvc documentdomain.Service
	paymentSvc  paymentdomain.Service
	scheduleSvc scheduledomain.Service
	scheduler   *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	DocumentSvc documentdomain.Service
	PaymentSvc  paymentdomain.Service
	ScheduleSvc scheduledomain.Service
	Scheduler   *scheduler.Scheduler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		documentSvc: p.DocumentSvc,
		paymentSvc:  p.PaymentSvc,
		scheduleSvc: p.ScheduleSvc,
		scheduler:   p.Scheduler,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.OrgRequired())

	api.POST("/documents", s.CreateDocument)
	api.GET("/documents", s.ListDocuments)
	api.GET("/documents/:id", s.GetDocument)
	api.PUT("/documents/:id", s.UpdateDocument)
	api.POST("/documents/:id/send", s.MarkDocumentSent)
	api.POST("/documents/:id/view", s.MarkDocumentViewed)
	api.POST("/documents/:id/mark-paid", s.MarkDocumentPaid)

	api.POST("/payments", s.RecordPayment)
	api.POST("/payments/:id/refund", s.RefundPayment)

	api.POST("/schedules", s.CreateSchedule)
	api.GET("/schedules", s.ListSchedules)
	api.GET("/schedules/:id", s.GetSchedule)
	api.PUT("/schedules/:id", s.UpdateSchedule)
	api.POST("/schedules/:id/pause", s.PauseSchedule)
	api.POST("/schedules/:id/resume", s.ResumeSchedule)

	api.POST("/schedules/run", s.RunScheduleBatch)
}
