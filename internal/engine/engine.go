package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"lims/internal/db"
	"lims/internal/dsl"
	"lims/internal/reference"
	"lims/internal/tenant"
)

// Ответы изменяющих операций
const (
	MsgCreated = "registro creado"
	MsgUpdated = "registro actualizado"
	MsgDeleted = "registro eliminado"
)

// Engine реализует list/get/create/update/delete одного ресурса.
// Описание ресурса и хуки передаются в New; подключение — в каждый вызов.
type Engine struct {
	res      *dsl.Resource
	fields   FieldMap
	keys     KeySpec
	hooks    Hooks
	gen      CodeGenerator
	schema   *gojsonschema.Schema
	catalogs reference.Catalogs
	log      *zap.Logger
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithCatalogs(c reference.Catalogs) Option {
	return func(e *Engine) { e.catalogs = c }
}

// New готовит движок ресурса. hooks == nil означает NopHooks.
func New(res *dsl.Resource, hooks Hooks, opts ...Option) (*Engine, error) {
	if res == nil {
		return nil, errors.New("nil resource")
	}
	if res.Key.Code == "" {
		return nil, fmt.Errorf("%s: key code column is required", res.Name)
	}
	if hooks == nil {
		hooks = NopHooks{}
	}
	e := &Engine{
		res:    res,
		fields: NewFieldMap(res.Fields),
		keys:   keySpecOf(res),
		hooks:  hooks,
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	e.log = e.log.With(zap.String("resource", res.Name))

	for _, col := range e.keys.Columns() {
		if _, ok := e.fields.External(col); !ok {
			return nil, fmt.Errorf("%s: key column %q is not a declared field", res.Name, col)
		}
	}
	for _, f := range res.Fields {
		if f.Catalog != "" && !e.catalogs.Exists(f.Catalog) {
			return nil, fmt.Errorf("%s.%s: unknown catalog %q", res.Name, f.Name, f.Catalog)
		}
	}
	if len(res.JSONSchema) > 0 {
		s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(res.JSONSchema))
		if err != nil {
			return nil, fmt.Errorf("%s: json_schema: %w", res.Name, err)
		}
		e.schema = s
	}
	return e, nil
}

func (e *Engine) Resource() *dsl.Resource { return e.res }
func (e *Engine) Fields() FieldMap        { return e.fields }
func (e *Engine) Keys() KeySpec           { return e.keys }

func (e *Engine) store(tc tenant.Context) Store { return NewStore(tc.DB, tc.Dialect) }

func (e *Engine) table() string { return db.Ident(e.res.Table) }

func (e *Engine) selectList() string {
	cols := make([]string, 0, len(e.res.Fields))
	for _, f := range e.res.Fields {
		cols = append(cols, db.Ident(f.Column))
	}
	return strings.Join(cols, ", ")
}

func (e *Engine) orderBy() string {
	cols := e.keys.Columns()
	for i, c := range cols {
		cols[i] = db.Ident(c)
	}
	return strings.Join(cols, ", ")
}

func checkTenant(tc tenant.Context) error {
	if !tc.Valid() {
		return &Error{Kind: KindInfra, Message: "sin conexión de tenant"}
	}
	return nil
}

// fetch читает строку по полному объявленному ключу.
func (e *Engine) fetch(ctx context.Context, s Store, k Key) (map[string]any, error) {
	where, args := e.keys.Where(k)
	q := "SELECT " + e.selectList() + " FROM " + e.table() + " WHERE " + where + " LIMIT 1"
	rows, err := s.Query(ctx, q, args...)
	if err != nil {
		return nil, &Error{Kind: KindInfra, Message: "error al consultar el registro", Err: err}
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Get возвращает одну запись по позиционным аргументам ключа (code, delegation?, aux...).
func (e *Engine) Get(ctx context.Context, tc tenant.Context, args ...string) (obj *Object, err error) {
	defer func() { observe(e.res.Name, "get", err) }()
	if err := checkTenant(tc); err != nil {
		return nil, err
	}

	row, err := e.fetch(ctx, e.store(tc), e.keys.Normalize(args...))
	if err != nil {
		return nil, err
	}
	return e.fields.ToExternal(row), nil
}

// Created — тело ответа на создание: сообщение и разрешённый ключ.
type Created struct {
	Message string  `json:"message"`
	Data    *Object `json:"data"`
}

// Create: Decode -> Schema -> Relations -> Criteria -> BeginTx -> [код] -> Insert -> AfterWrite -> Commit.
func (e *Engine) Create(ctx context.Context, tc tenant.Context, body []byte) (out *Created, err error) {
	defer func() { observe(e.res.Name, string(OpCreate), err) }()
	if err := checkTenant(tc); err != nil {
		return nil, err
	}

	p, err := e.decode(body)
	if err != nil {
		return nil, err
	}
	if p, err = e.validate(ctx, e.store(tc), OpCreate, p, nil); err != nil {
		return nil, err
	}

	var data *Object
	err = db.WithTx(ctx, tc.DB, func(tx *sql.Tx) error {
		s := NewStore(tx, tc.Dialect)
		k := e.keys.FromPayload(e.fields, p)

		if err := e.resolveCode(ctx, s, p, &k); err != nil {
			return err
		}
		if !e.res.SkipInsert {
			if err := e.insert(ctx, s, p); err != nil {
				return err
			}
		}
		extra, err := e.hooks.AfterWrite(ctx, s, OpCreate, k, p)
		if err != nil {
			return err
		}

		data = e.resolved(k, p)
		data.Merge(extra)
		return nil
	})
	if err != nil {
		err = classify(err, KindInfra, "error al crear el registro")
		e.logFailure(OpCreate, err)
		return nil, err
	}

	e.log.Debug("created", zap.Any("key", data))
	return &Created{Message: MsgCreated, Data: data}, nil
}

// resolveCode выдаёт код из генератора, если он не передан. Переданный код проверяется
// на занятость под той же блокировкой области, что и генератор.
func (e *Engine) resolveCode(ctx context.Context, s Store, p *Payload, k *Key) error {
	sc := e.scope(p, *k)
	if k.Code == "" {
		if e.res.SkipCodeGeneration {
			return nil
		}
		next, err := e.gen.Next(ctx, s, sc, true)
		if err != nil {
			return err
		}
		k.Code = strconv.FormatInt(next, 10)
		name, _ := e.fields.External(e.keys.Code)
		if f, _ := e.res.FieldByColumn(e.keys.Code); f.Type == "int" {
			p.Set(name, next)
		} else {
			p.Set(name, k.Code)
		}
		return nil
	}

	if e.res.SkipInsert {
		return nil
	}
	if err := s.Dialect().LockScope(ctx, s.Querier(), sc.lockKey()); err != nil {
		return err
	}
	if _, err := e.fetch(ctx, s, *k); err == nil {
		return Reject("ya existe un registro con la clave %s", k)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func (e *Engine) scope(p *Payload, k Key) Scope {
	sc := Scope{
		Table:            e.res.Table,
		CodeColumn:       e.keys.Code,
		DelegationColumn: e.keys.Delegation,
		Delegation:       k.Delegation,
		SeriesColumn:     e.res.Series,
	}
	if e.res.Series != "" {
		if name, ok := e.fields.External(e.res.Series); ok {
			sc.Series = p.Get(name).Text()
		}
	}
	return sc
}

// resolved — ключ созданной записи (делегация, код, серия, aux) внешними именами.
func (e *Engine) resolved(k Key, p *Payload) *Object {
	o := NewObject()
	set := func(col string) {
		if col == "" {
			return
		}
		if name, ok := e.fields.External(col); ok {
			o.Set(name, p.Get(name).Raw())
		}
	}
	set(e.keys.Delegation)
	if name, ok := e.fields.External(e.keys.Code); ok {
		if v := p.Get(name); v.IsSet() {
			o.Set(name, v.Raw())
		} else {
			o.Set(name, k.Code)
		}
	}
	set(e.res.Series)
	for _, a := range e.keys.Aux {
		set(a)
	}
	return o
}

func (e *Engine) insert(ctx context.Context, s Store, p *Payload) error {
	cols := e.fields.ToStorage(p)
	if cols.Len() == 0 {
		return Reject("no hay datos para insertar")
	}
	names := make([]string, cols.Len())
	marks := make([]string, cols.Len())
	for i, n := range cols.Names {
		names[i] = db.Ident(n)
		marks[i] = "?"
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", e.table(), strings.Join(names, ", "), strings.Join(marks, ", "))
	if _, err := s.Exec(ctx, q, cols.Values...); err != nil {
		return fmt.Errorf("insert %s: %w", e.res.Table, err)
	}
	return nil
}

// Update: запись должна существовать до открытия транзакции. Пустая дельта не пишется,
// но AfterWrite вызывается всегда. Версий нет: последний писатель побеждает.
func (e *Engine) Update(ctx context.Context, tc tenant.Context, args []string, body []byte) (err error) {
	defer func() { observe(e.res.Name, string(OpUpdate), err) }()
	if err := checkTenant(tc); err != nil {
		return err
	}

	k := e.keys.Normalize(args...)
	pool := e.store(tc)
	if _, err := e.fetch(ctx, pool, k); err != nil {
		return err
	}

	p, err := e.decode(body)
	if err != nil {
		return err
	}
	if p, err = e.validate(ctx, pool, OpUpdate, p, &k); err != nil {
		return err
	}

	err = db.WithTx(ctx, tc.DB, func(tx *sql.Tx) error {
		s := NewStore(tx, tc.Dialect)
		if cols := e.fields.ToStorage(p); cols.Len() > 0 {
			sets := make([]string, cols.Len())
			for i, n := range cols.Names {
				sets[i] = db.Ident(n) + " = ?"
			}
			where, wargs := e.keys.Where(k)
			q := "UPDATE " + e.table() + " SET " + strings.Join(sets, ", ") + " WHERE " + where
			if _, err := s.Exec(ctx, q, append(cols.Values, wargs...)...); err != nil {
				return fmt.Errorf("update %s: %w", e.res.Table, err)
			}
		}
		_, err := e.hooks.AfterWrite(ctx, s, OpUpdate, k, p)
		return err
	})
	if err != nil {
		err = classify(err, KindInfra, "error al actualizar el registro")
		e.logFailure(OpUpdate, err)
		return err
	}
	return nil
}

// Delete: BeforeDelete может запретить удаление; AfterDelete чистит зависимые записи.
// Всё в одной транзакции.
func (e *Engine) Delete(ctx context.Context, tc tenant.Context, args ...string) (err error) {
	defer func() { observe(e.res.Name, string(OpDelete), err) }()
	if err := checkTenant(tc); err != nil {
		return err
	}

	k := e.keys.Normalize(args...)
	if _, err := e.fetch(ctx, e.store(tc), k); err != nil {
		return err
	}

	err = db.WithTx(ctx, tc.DB, func(tx *sql.Tx) error {
		s := NewStore(tx, tc.Dialect)
		if err := e.hooks.BeforeDelete(ctx, s, k); err != nil {
			return err
		}
		where, args := e.keys.Where(k)
		if _, err := s.Exec(ctx, "DELETE FROM "+e.table()+" WHERE "+where, args...); err != nil {
			return fmt.Errorf("delete %s: %w", e.res.Table, err)
		}
		return e.hooks.AfterDelete(ctx, s, k)
	})
	if err != nil {
		err = classify(err, KindInfra, "error al eliminar el registro")
		e.logFailure(OpDelete, err)
		return err
	}
	return nil
}

func (e *Engine) logFailure(op Op, err error) {
	if KindOf(err) == KindInfra {
		e.log.Error("operation failed", zap.String("op", string(op)), zap.Error(err))
		return
	}
	e.log.Info("operation rejected", zap.String("op", string(op)), zap.Stringer("kind", KindOf(err)), zap.Error(err))
}
