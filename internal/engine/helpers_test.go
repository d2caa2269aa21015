package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lims/internal/db"
	"lims/internal/dsl"
	"lims/internal/tenant"
)

var dbSeq atomic.Int64

// openTenant открывает отдельную in-memory sqlite базу и создаёт таблицы ресурсов.
func openTenant(t *testing.T, defs ...*dsl.Resource) tenant.Context {
	t.Helper()
	conn, err := db.Open(fmt.Sprintf("sqlite:file:engine_%d?mode=memory&cache=shared", dbSeq.Add(1)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	m := make(map[string]*dsl.Resource, len(defs))
	for _, d := range defs {
		m[d.Name] = d
	}
	ddl, err := db.GenerateDDL(m)
	require.NoError(t, err)
	require.NoError(t, db.ApplyDDL(conn.DB, ddl, zap.NewNop()))
	return tenant.FromConn("test", conn)
}

func exec(t *testing.T, tc tenant.Context, q string, args ...any) {
	t.Helper()
	_, err := tc.DB.ExecContext(context.Background(), db.Rebind(tc.Dialect, q), args...)
	require.NoError(t, err)
}

func count(t *testing.T, tc tenant.Context, q string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, tc.DB.QueryRowContext(context.Background(), db.Rebind(tc.Dialect, q), args...).Scan(&n))
	return n
}

func deptResource() *dsl.Resource {
	return &dsl.Resource{
		Name:     "departamentos",
		Table:    "departamentos",
		Key:      dsl.Key{Delegation: "dep_delegacion", Code: "dep_codigo"},
		Inactive: "dep_es_baja",
		Search:   []string{"dep_nombre"},
		Fields: []dsl.Field{
			{Name: "codigo", Column: "dep_codigo", Type: "int"},
			{Name: "delegacion", Column: "dep_delegacion", Type: "string", Required: "create", Immutable: true},
			{Name: "nombre", Column: "dep_nombre", Type: "string", Required: "create", Unique: true, Rules: "min=1,max=60"},
			{Name: "es_baja", Column: "dep_es_baja", Type: "string", Nullable: true, Rules: "oneof=T F"},
		},
	}
}

func cargoResource() *dsl.Resource {
	return &dsl.Resource{
		Name:     "cargos",
		Table:    "cargos",
		Key:      dsl.Key{Delegation: "car_delegacion", Code: "car_codigo"},
		Inactive: "car_es_baja",
		Relations: []dsl.Relation{
			{Field: "departamento", Table: "departamentos", Column: "dep_codigo", DelegationColumn: "dep_delegacion"},
		},
		Fields: []dsl.Field{
			{Name: "codigo", Column: "car_codigo", Type: "int"},
			{Name: "delegacion", Column: "car_delegacion", Type: "string", Required: "create", Immutable: true},
			{Name: "nombre", Column: "car_nombre", Type: "string", Required: "create"},
			{Name: "departamento", Column: "car_departamento", Type: "int", Nullable: true},
			{Name: "es_baja", Column: "car_es_baja", Type: "string", Nullable: true},
		},
	}
}

// auxResource — ключ без делегации, с двумя дополнительными компонентами и серией.
func auxResource() *dsl.Resource {
	return &dsl.Resource{
		Name:   "lineas",
		Table:  "lineas",
		Key:    dsl.Key{Code: "lin_codigo", Aux: []string{"lin_serie", "lin_orden"}},
		Series: "lin_serie",
		Fields: []dsl.Field{
			{Name: "codigo", Column: "lin_codigo", Type: "int"},
			{Name: "serie", Column: "lin_serie", Type: "string", Required: "create"},
			{Name: "orden", Column: "lin_orden", Type: "string", Required: "create"},
			{Name: "texto", Column: "lin_texto", Type: "string", Nullable: true},
		},
	}
}

// testHooks — хуки с подменяемыми функциями.
type testHooks struct {
	NopHooks
	criteria     func(op Op, p *Payload, existing *Key) (*Payload, error)
	beforeDelete func(ctx context.Context, s Store, k Key) error
	afterDelete  func(ctx context.Context, s Store, k Key) error
	afterWrite   func(ctx context.Context, s Store, op Op, k Key, p *Payload) (map[string]any, error)
}

func (h testHooks) Criteria(_ context.Context, _ Store, op Op, p *Payload, existing *Key) (*Payload, error) {
	if h.criteria != nil {
		return h.criteria(op, p, existing)
	}
	return p, nil
}

func (h testHooks) BeforeDelete(ctx context.Context, s Store, k Key) error {
	if h.beforeDelete != nil {
		return h.beforeDelete(ctx, s, k)
	}
	return nil
}

func (h testHooks) AfterDelete(ctx context.Context, s Store, k Key) error {
	if h.afterDelete != nil {
		return h.afterDelete(ctx, s, k)
	}
	return nil
}

func (h testHooks) AfterWrite(ctx context.Context, s Store, op Op, k Key, p *Payload) (map[string]any, error) {
	if h.afterWrite != nil {
		return h.afterWrite(ctx, s, op, k, p)
	}
	return nil, nil
}

func newEngine(t *testing.T, res *dsl.Resource, hooks Hooks) *Engine {
	t.Helper()
	e, err := New(res, hooks)
	require.NoError(t, err)
	return e
}

func kindOf(t *testing.T, err error) Kind {
	t.Helper()
	require.Error(t, err)
	return KindOf(err)
}
