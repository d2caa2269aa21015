// api/router.go
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Options — зависимости роутера.
type Options struct {
	// Tenant выбирает подключение тенанта (tenant.Middleware или tenant.Static).
	Tenant   gin.HandlerFunc
	Reloader Reloader
	Log      *zap.Logger
}

func NewRouter(reg *Registry, opts Options) *gin.Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &handlers{reg: reg, log: log}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	// служебные маршруты
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/_meta/resources", h.metaList)
	r.GET("/_meta/resources/:resource", h.metaResource)
	r.GET("/_meta/catalogs/:name", h.metaCatalog)
	r.POST("/_admin/reload", h.adminReload(opts.Reloader))

	apiGroup := r.Group("/api")
	if opts.Tenant != nil {
		apiGroup.Use(opts.Tenant)
	}
	{
		apiGroup.GET("/:resource", h.list)
		apiGroup.POST("/:resource", h.create)
		apiGroup.GET("/:resource/:code", h.get)
		apiGroup.GET("/:resource/:code/*keys", h.get)
		apiGroup.PUT("/:resource/:code", h.update)
		apiGroup.PUT("/:resource/:code/*keys", h.update)
		apiGroup.DELETE("/:resource/:code", h.delete)
		apiGroup.DELETE("/:resource/:code/*keys", h.delete)
	}

	return r
}
