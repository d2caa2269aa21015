package engine

import (
	"context"
	"strings"

	"lims/internal/db"
	"lims/internal/tenant"
)

const (
	DefaultLimit = 10
	MaxLimit     = 1000
	// MaxPage ограничивает OFFSET: MaxPage*MaxLimit помещается в int32.
	MaxPage = 1_000_000
)

// ListQuery — параметры листинга. nil в Delegation/Code — фильтр не задан.
type ListQuery struct {
	Delegation *string
	Code       *string
	Status     string // es_baja
	Search     string
	Limit      int
	Page       int
}

func (q ListQuery) normalized() ListQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Page > MaxPage {
		q.Page = MaxPage
	}
	return q
}

func (q ListQuery) offset() int64 {
	return int64(q.Page-1) * int64(q.Limit)
}

// where собирает фильтр листинга. Сентинел "активна" совпадает и с NULL:
// старые строки без статуса считаются активными.
func (e *Engine) where(q ListQuery) (string, []any) {
	var conds []string
	var args []any

	if q.Delegation != nil && e.keys.Delegation != "" {
		conds = append(conds, db.Ident(e.keys.Delegation)+" = ?")
		args = append(args, *q.Delegation)
	}
	if q.Code != nil {
		conds = append(conds, db.Ident(e.keys.Code)+" = ?")
		args = append(args, *q.Code)
	}
	if q.Status != "" && e.res.Inactive != "" {
		col := db.Ident(e.res.Inactive)
		if q.Status == e.res.ActiveSentinel() {
			conds = append(conds, "("+col+" = ? OR "+col+" IS NULL)")
		} else {
			conds = append(conds, col+" = ?")
		}
		args = append(args, q.Status)
	}
	if s := strings.TrimSpace(q.Search); s != "" && len(e.res.Search) > 0 {
		like := "%" + escapeLike(strings.ToLower(s)) + "%"
		ors := make([]string, len(e.res.Search))
		for i, c := range e.res.Search {
			ors[i] = "LOWER(CAST(" + db.Ident(c) + " AS TEXT)) LIKE ? ESCAPE '\\'"
			args = append(args, like)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// List возвращает страницу записей и общее число подходящих строк.
// Пустой результат — не ошибка.
func (e *Engine) List(ctx context.Context, tc tenant.Context, q ListQuery) (out []*Object, total int, err error) {
	defer func() { observe(e.res.Name, "list", err) }()
	if err := checkTenant(tc); err != nil {
		return nil, 0, err
	}

	q = q.normalized()
	s := e.store(tc)
	where, args := e.where(q)

	if err := s.QueryRow(ctx, "SELECT COUNT(*) FROM "+e.table()+where, args...).Scan(&total); err != nil {
		return nil, 0, &Error{Kind: KindInfra, Message: "error al listar registros", Err: err}
	}

	sel := "SELECT " + e.selectList() + " FROM " + e.table() + where +
		" ORDER BY " + e.orderBy() + " LIMIT ? OFFSET ?"
	rows, err := s.Query(ctx, sel, append(args, q.Limit, q.offset())...)
	if err != nil {
		return nil, 0, &Error{Kind: KindInfra, Message: "error al listar registros", Err: err}
	}

	out = make([]*Object, 0, len(rows))
	for _, r := range rows {
		out = append(out, e.fields.ToExternal(r))
	}
	return out, total, nil
}
