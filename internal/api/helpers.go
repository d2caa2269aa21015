package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lims/internal/engine"
	"lims/internal/tenant"
)

// statusFor переводит Kind ошибки движка в HTTP-статус.
func statusFor(k engine.Kind) int {
	switch k {
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindSchema, engine.KindRelation:
		return http.StatusUnprocessableEntity
	case engine.KindDomain, engine.KindIntegrity:
		return http.StatusConflict
	case engine.KindMalformed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError отвечает {error} для not-found и {error, detalle} для остального.
func writeError(c *gin.Context, err error) {
	var e *engine.Error
	if !errors.As(err, &e) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error interno", "detalle": err.Error()})
		return
	}
	if e.Kind == engine.KindNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": e.Message})
		return
	}
	c.JSON(statusFor(e.Kind), gin.H{"error": e.Message, "detalle": e.Detail()})
}

// resolve достаёт движок ресурса и подключение тенанта; при неудаче уже ответил.
func (h *handlers) resolve(c *gin.Context) (*engine.Engine, tenant.Context, bool) {
	eng, ok := h.reg.Lookup(c.Param("resource"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "recurso no encontrado"})
		return nil, tenant.Context{}, false
	}
	tc, ok := tenant.FromGin(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sin conexión de tenant"})
		return nil, tenant.Context{}, false
	}
	return eng, tc, true
}

// keyArgs — позиционные аргументы ключа: :code и хвост *keys.
func keyArgs(c *gin.Context) []string {
	return append([]string{c.Param("code")}, splitKeys(c.Param("keys"))...)
}
