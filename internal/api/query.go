package api

import (
	"net/url"
	"strconv"
	"strings"

	"lims/internal/engine"
)

// Служебные параметры листинга
const (
	qSearch = "search"
	qStatus = "es_baja"
	qLimit  = "limit"
	qPage   = "page"
)

// parseListQuery читает search/es_baja/limit/page и фильтры владельца
// (внешние имена полей делегации и кода). Некорректные числа — значения по умолчанию.
func parseListQuery(q url.Values, eng *engine.Engine) engine.ListQuery {
	lq := engine.ListQuery{
		Search: strings.TrimSpace(q.Get(qSearch)),
		Status: strings.TrimSpace(q.Get(qStatus)),
		Limit:  engine.DefaultLimit,
		Page:   1,
	}

	if v := q.Get(qLimit); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= engine.MaxLimit {
			lq.Limit = n
		}
	}
	if v := q.Get(qPage); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			lq.Page = n
		}
	}

	keys, fields := eng.Keys(), eng.Fields()
	if keys.Delegation != "" {
		if name, ok := fields.External(keys.Delegation); ok && q.Has(name) {
			v := q.Get(name)
			lq.Delegation = &v
		}
	}
	if name, ok := fields.External(keys.Code); ok && q.Has(name) {
		v := q.Get(name)
		lq.Code = &v
	}
	return lq
}
