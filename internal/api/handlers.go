package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lims/internal/engine"
)

// maxBodyBytes — предел тела запроса на запись.
const maxBodyBytes = 1 << 20

type handlers struct {
	reg *Registry
	log *zap.Logger
}

// readBody читает сырое тело: разбор JSON делает движок, чтобы различать absent/null/"".
func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no se pudo leer el cuerpo", "detalle": err.Error()})
		return nil, false
	}
	return body, true
}

// GET /api/:resource
func (h *handlers) list(c *gin.Context) {
	eng, tc, ok := h.resolve(c)
	if !ok {
		return
	}
	rows, total, err := eng.List(c.Request.Context(), tc, parseListQuery(c.Request.URL.Query(), eng))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("X-Total-Count", strconv.Itoa(total))
	c.JSON(http.StatusOK, rows)
}

// GET /api/:resource/:code/*keys
func (h *handlers) get(c *gin.Context) {
	eng, tc, ok := h.resolve(c)
	if !ok {
		return
	}
	obj, err := eng.Get(c.Request.Context(), tc, keyArgs(c)...)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, obj)
}

// POST /api/:resource
func (h *handlers) create(c *gin.Context) {
	eng, tc, ok := h.resolve(c)
	if !ok {
		return
	}
	body, ok := readBody(c)
	if !ok {
		return
	}
	out, err := eng.Create(c.Request.Context(), tc, body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// PUT /api/:resource/:code/*keys
func (h *handlers) update(c *gin.Context) {
	eng, tc, ok := h.resolve(c)
	if !ok {
		return
	}
	body, ok := readBody(c)
	if !ok {
		return
	}
	if err := eng.Update(c.Request.Context(), tc, keyArgs(c), body); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": engine.MsgUpdated})
}

// DELETE /api/:resource/:code/*keys
func (h *handlers) delete(c *gin.Context) {
	eng, tc, ok := h.resolve(c)
	if !ok {
		return
	}
	if err := eng.Delete(c.Request.Context(), tc, keyArgs(c)...); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": engine.MsgDeleted})
}
