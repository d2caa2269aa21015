package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lims/internal/dsl"
	"lims/internal/engine"
	"lims/internal/reference"
)

// Reloader перечитывает описания ресурсов и справочники и подменяет реестр.
// Директории задаются только конфигурацией.
type Reloader struct {
	ResourcesDir string
	EnumsDir     string
	Hooks        map[string]engine.Hooks
	Log          *zap.Logger
}

// Load читает и проверяет описания; реестр не трогает.
func (rl Reloader) Load() (*Registry, error) {
	defs, err := dsl.LoadAllResources(rl.ResourcesDir)
	if err != nil {
		return nil, err
	}
	catalogs, err := reference.LoadEnumCatalog(rl.EnumsDir)
	if err != nil {
		return nil, err
	}
	return BuildRegistry(defs, catalogs, rl.Hooks, rl.Log)
}

func (h *handlers) adminReload(rl Reloader) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1) читаем и линтуем новые описания; при ошибке старый реестр остаётся
		next, err := rl.Load()
		if err != nil {
			var issues dsl.Issues
			if errors.As(err, &issues) {
				c.JSON(http.StatusBadRequest, gin.H{
					"error":   "definiciones con errores bloqueantes",
					"detalle": issues,
				})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "error al cargar definiciones", "detalle": err.Error()})
			return
		}

		// 2) атомарная замена
		h.reg.Replace(next)
		h.log.Info("resources reloaded", zap.Int("resources", len(next.Names())), zap.Int("catalogs", len(next.Catalogs())))

		c.JSON(http.StatusOK, gin.H{
			"ok":        true,
			"resources": next.Names(),
			"catalogs":  len(next.Catalogs()),
		})
	}
}
