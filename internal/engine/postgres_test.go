package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lims/internal/db"
	"lims/internal/dsl"
	"lims/internal/tenant"
)

// openPostgres поднимает postgres в контейнере; без docker тест пропускается.
func openPostgres(t *testing.T, defs ...*dsl.Resource) tenant.Context {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("lims"),
		postgres.WithUsername("lims"),
		postgres.WithPassword("lims"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	conn, err := db.Open(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	m := make(map[string]*dsl.Resource, len(defs))
	for _, d := range defs {
		m[d.Name] = d
	}
	ddl, err := db.GenerateDDL(m)
	require.NoError(t, err)
	require.NoError(t, db.ApplyDDL(conn.DB, ddl, zap.NewNop()))
	return tenant.FromConn("pg", conn)
}

func TestPostgres_EngineRoundTrip(t *testing.T) {
	tc := openPostgres(t, deptResource(), cargoResource())
	ctx := context.Background()
	dep := newEngine(t, deptResource(), nil)
	car := newEngine(t, cargoResource(), nil)

	t.Run("concurrent creates get consecutive codes", func(t *testing.T) {
		const n = 25
		var (
			mu    sync.Mutex
			codes []int
		)
		var g errgroup.Group
		for i := range n {
			g.Go(func() error {
				out, err := dep.Create(ctx, tc, []byte(fmt.Sprintf(`{"delegacion":"01","nombre":"Dep %02d"}`, i)))
				if err != nil {
					return err
				}
				v, _ := out.Data.Get("codigo")
				mu.Lock()
				codes = append(codes, int(v.(int64)))
				mu.Unlock()
				return nil
			})
		}
		require.NoError(t, g.Wait())

		sort.Ints(codes)
		for i, c := range codes {
			assert.Equal(t, i+1, c)
		}
	})

	t.Run("concurrent creates continue after existing codes", func(t *testing.T) {
		exec(t, tc, `INSERT INTO departamentos (dep_delegacion, dep_codigo, dep_nombre) VALUES (?, ?, ?)`, "03", 4, "Viejo 4")
		exec(t, tc, `INSERT INTO departamentos (dep_delegacion, dep_codigo, dep_nombre) VALUES (?, ?, ?)`, "03", 17, "Viejo 17")

		const n = 10
		var (
			mu    sync.Mutex
			codes []int
		)
		var g errgroup.Group
		for i := range n {
			g.Go(func() error {
				out, err := dep.Create(ctx, tc, []byte(fmt.Sprintf(`{"delegacion":"03","nombre":"Dep %02d"}`, i)))
				if err != nil {
					return err
				}
				v, _ := out.Data.Get("codigo")
				mu.Lock()
				codes = append(codes, int(v.(int64)))
				mu.Unlock()
				return nil
			})
		}
		require.NoError(t, g.Wait())

		sort.Ints(codes)
		for i, c := range codes {
			assert.Equal(t, 18+i, c)
		}
	})

	t.Run("other delegation starts at one", func(t *testing.T) {
		out, err := dep.Create(ctx, tc, []byte(`{"delegacion":"02","nombre":"Dep 01"}`))
		require.NoError(t, err)
		v, _ := out.Data.Get("codigo")
		assert.Equal(t, int64(1), v)
	})

	t.Run("relation and text keys against bigint columns", func(t *testing.T) {
		_, err := car.Create(ctx, tc, []byte(`{"delegacion":"01","nombre":"Jefe","departamento":3}`))
		require.NoError(t, err)

		obj, err := car.Get(ctx, tc, "1", "01")
		require.NoError(t, err)
		v, _ := obj.Get("departamento")
		assert.Equal(t, int64(3), v)

		_, err = car.Create(ctx, tc, []byte(`{"delegacion":"02","nombre":"Jefe","departamento":3}`))
		assert.Equal(t, KindRelation, kindOf(t, err))
	})

	t.Run("list search and status", func(t *testing.T) {
		require.NoError(t, dep.Update(ctx, tc, []string{"2", "01"}, []byte(`{"es_baja":"T"}`)))

		deleg := "01"
		objs, total, err := dep.List(ctx, tc, ListQuery{Delegation: &deleg, Status: "F", Limit: 100})
		require.NoError(t, err)
		assert.Equal(t, 24, total)
		assert.Len(t, objs, 24)

		objs, total, err = dep.List(ctx, tc, ListQuery{Delegation: &deleg, Search: "dep 1"})
		require.NoError(t, err)
		assert.Equal(t, 10, total)
		assert.Len(t, objs, DefaultLimit)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, dep.Delete(ctx, tc, "25", "01"))
		_, err := dep.Get(ctx, tc, "25", "01")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
