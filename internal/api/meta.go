package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ===== META HANDLERS =====

type metaResourceListItem struct {
	Name  string `json:"name"`
	Table string `json:"table"`
}

func (h *handlers) metaList(c *gin.Context) {
	names := h.reg.Names()
	out := make([]metaResourceListItem, 0, len(names))
	for _, n := range names {
		eng, ok := h.reg.Lookup(n)
		if !ok {
			continue
		}
		out = append(out, metaResourceListItem{Name: n, Table: eng.Resource().Table})
	}
	c.JSON(http.StatusOK, out)
}

type metaField struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Rules     string `json:"rules,omitempty"`
	Required  string `json:"required,omitempty"`
	Nullable  bool   `json:"nullable,omitempty"`
	Immutable bool   `json:"immutable,omitempty"`
	Unique    bool   `json:"unique,omitempty"`
	Catalog   string `json:"catalog,omitempty"`
}

type metaKey struct {
	Delegation string   `json:"delegation,omitempty"`
	Code       string   `json:"code"`
	Aux        []string `json:"aux,omitempty"`
}

type metaResource struct {
	Name     string      `json:"name"`
	Fields   []metaField `json:"fields"`
	Key      metaKey     `json:"key"`
	Series   string      `json:"series,omitempty"`
	Inactive string      `json:"inactive,omitempty"`
	Search   []string    `json:"search,omitempty"`
}

// metaResource отдаёт описание во внешних именах: колонки хранилища наружу не выходят.
func (h *handlers) metaResource(c *gin.Context) {
	eng, ok := h.reg.Lookup(c.Param("resource"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "recurso no encontrado"})
		return
	}
	res, fm := eng.Resource(), eng.Fields()
	ext := func(col string) string {
		name, _ := fm.External(col)
		return name
	}

	out := metaResource{Name: res.Name, Series: ext(res.Series), Inactive: ext(res.Inactive)}
	for _, f := range res.Fields {
		out.Fields = append(out.Fields, metaField{
			Name:      f.Name,
			Type:      f.Type,
			Rules:     f.Rules,
			Required:  f.Required,
			Nullable:  f.Nullable,
			Immutable: f.Immutable,
			Unique:    f.Unique,
			Catalog:   f.Catalog,
		})
	}
	out.Key = metaKey{Delegation: ext(res.Key.Delegation), Code: ext(res.Key.Code)}
	for _, a := range res.Key.Aux {
		out.Key.Aux = append(out.Key.Aux, ext(a))
	}
	for _, s := range res.Search {
		out.Search = append(out.Search, ext(s))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) metaCatalog(c *gin.Context) {
	name := c.Param("name")
	dir, ok := h.reg.Catalogs()[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "catálogo no encontrado"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":  name,
		"items": dir.Items,
	})
}
