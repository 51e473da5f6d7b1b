package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/bdi-platform/wip-backend/internal/config"
	"github.com/bdi-platform/wip-backend/internal/db"
	"github.com/bdi-platform/wip-backend/internal/http/handlers"
	"github.com/bdi-platform/wip-backend/internal/http/middleware"
	"github.com/bdi-platform/wip-backend/internal/service"

	_ "github.com/bdi-platform/wip-backend/docs"
)

func Router(cfg config.Config, store *db.Store, importer *service.ImportService, query *service.QueryService, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Identity())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id", "X-User-Role", "X-Org-Code", "X-Org-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Importer:  importer,
		Query:     query,
		Store:     store,
		DB:        store,
		Validator: validator.New(),
		Logger:    logger,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	wip := api.Group("/wip")
	{
		wip.GET("/units", h.UnitsList)
		wip.GET("/export", h.Export)
		wip.GET("/cfd", h.CFD)
		wip.GET("/aging", h.Aging)
		wip.GET("/weekly", h.Weekly)
		wip.GET("/outflow", h.OutflowBreakdown)
		wip.GET("/status", h.StatusBreakdown)
		wip.GET("/rma", h.RMABreakdown)
		wip.GET("/metrics", h.Metrics)
		wip.GET("/flow", h.Flow)
		wip.GET("/skus", h.SKUs)
		wip.GET("/sources", h.Sources)
		wip.GET("/imports", h.ImportsList)
		wip.GET("/imports/:id", h.ImportDetails)
	}

	admin := wip.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/import", h.Import)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
