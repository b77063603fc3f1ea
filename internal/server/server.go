// Package server exposes the HTTP surface: upload submission, storage
// events, upload status, mapping review and storage integrations.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/costplane/costplane/internal/config"
	"github.com/costplane/costplane/internal/ingest"
	integrationdomain "github.com/costplane/costplane/internal/integration/domain"
	mappingdomain "github.com/costplane/costplane/internal/mapping/domain"
	"github.com/costplane/costplane/internal/poller"
	"github.com/costplane/costplane/internal/storage"
	uploaddomain "github.com/costplane/costplane/internal/upload/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin() *gin.Engine {
	return NewEngine()
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
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node

	uploadSvc      uploaddomain.Service
	mappingSvc     mappingdomain.Service
	integrationSvc integrationdomain.Service
	ingestSvc      ingest.Service
	pollWorker     *poller.Worker
	storageClients storage.ClientFactory
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node

	UploadSvc      uploaddomain.Service
	MappingSvc     mappingdomain.Service
	IntegrationSvc integrationdomain.Service
	IngestSvc      ingest.Service
	PollWorker     *poller.Worker
	StorageClients storage.ClientFactory
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		db:             p.DB,
		log:            p.Log.Named("http.server"),
		genID:          p.GenID,
		uploadSvc:      p.UploadSvc,
		mappingSvc:     p.MappingSvc,
		integrationSvc: p.IntegrationSvc,
		ingestSvc:      p.IngestSvc,
		pollWorker:     p.PollWorker,
		storageClients: p.StorageClients,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(TenantContext())

	api.POST("/uploads", s.CreateUpload)
	api.GET("/uploads", s.ListUploads)
	api.GET("/uploads/:id", s.GetUpload)

	api.POST("/storage-events", s.HandleStorageEvent)

	api.GET("/mappings", s.ListMappings)
	api.PUT("/mappings", s.ConfirmMapping)
	api.GET("/mappings/suggestions", s.ListMappingSuggestions)
	api.GET("/mappings/columns", s.ListDetectedColumns)

	api.POST("/integrations", s.CreateIntegration)
	api.GET("/integrations", s.ListIntegrations)
	api.POST("/integrations/:id/poll", s.PollIntegration)
}
