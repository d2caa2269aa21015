package tenant

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

const ginKey = "lims.tenant"

// DefaultHeader — заголовок с именем тенанта.
const DefaultHeader = "X-Tenant"

// Middleware выбирает подключение тенанта по заголовку и кладёт его в gin.Context.
func Middleware(p *Pool, header string) gin.HandlerFunc {
	if header == "" {
		header = DefaultHeader
	}
	return func(c *gin.Context) {
		tc, err := p.Acquire(c.GetHeader(header))
		if errors.Is(err, ErrUnknownTenant) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "tenant desconocido", "detalle": err.Error()})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "base de datos no disponible", "detalle": err.Error()})
			return
		}
		c.Set(ginKey, tc)
		c.Next()
	}
}

// FromGin возвращает Context, выбранный Middleware.
func FromGin(c *gin.Context) (Context, bool) {
	v, ok := c.Get(ginKey)
	if !ok {
		return Context{}, false
	}
	tc, ok := v.(Context)
	return tc, ok && tc.Valid()
}

// Static — middleware с фиксированным подключением (тесты, однотенантный режим).
func Static(tc Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ginKey, tc)
		c.Next()
	}
}
