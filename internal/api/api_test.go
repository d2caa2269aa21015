package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lims/internal/db"
	"lims/internal/engine"
	"lims/internal/resources"
	"lims/internal/tenant"
)

var dbSeq atomic.Int64

func testReloader() Reloader {
	return Reloader{
		ResourcesDir: "../../resources",
		EnumsDir:     "../../reference/enums",
		Hooks:        resources.Hooks(),
		Log:          zap.NewNop(),
	}
}

// newTestServer собирает роутер над ресурсами репозитория и свежей sqlite базой.
func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	return newServerWith(t, testReloader())
}

func newServerWith(t *testing.T, rl Reloader) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg, err := rl.Load()
	require.NoError(t, err)

	conn, err := db.Open(fmt.Sprintf("sqlite:file:api_%d?mode=memory&cache=shared", dbSeq.Add(1)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ddl, err := db.GenerateDDL(reg.Resources())
	require.NoError(t, err)
	require.NoError(t, db.ApplyDDL(conn.DB, ddl, zap.NewNop()))

	return NewRouter(reg, Options{
		Tenant:   tenant.Static(tenant.FromConn("test", conn)),
		Reloader: rl,
	})
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func TestDepartmentLifecycle(t *testing.T) {
	r := newTestServer(t)

	w := do(r, http.MethodPost, "/api/departamentos", `{"delegacion":"01","nombre":"Calidad"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, `{"message":"registro creado","data":{"delegacion":"01","codigo":1}}`, w.Body.String())

	w = do(r, http.MethodGet, "/api/departamentos/1/01", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"codigo":1,"delegacion":"01","nombre":"Calidad","responsable":null,"es_baja":null}`, w.Body.String())

	// код неизменяем: хук снимает его из обновления
	w = do(r, http.MethodPut, "/api/departamentos/1/01", `{"codigo":5,"nombre":"Calidad Total"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"message":"registro actualizado"}`, w.Body.String())

	w = do(r, http.MethodGet, "/api/departamentos/5/01", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"registro no encontrado"}`, w.Body.String())

	w = do(r, http.MethodPost, "/api/cargos", `{"delegacion":"01","nombre":"Jefe","departamento":1}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// активный cargo блокирует удаление
	w = do(r, http.MethodDelete, "/api/departamentos/1/01", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "el departamento 1 tiene cargos activos asignados", decode(t, w)["error"])

	w = do(r, http.MethodPut, "/api/cargos/1/01", `{"es_baja":"T"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodDelete, "/api/departamentos/1/01", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"message":"registro eliminado"}`, w.Body.String())

	// cargo отвязан от удалённого департамента
	w = do(r, http.MethodGet, "/api/cargos/1/01", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode(t, w)["departamento"])

	w = do(r, http.MethodDelete, "/api/departamentos/1/01", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestList(t *testing.T) {
	r := newTestServer(t)
	for _, body := range []string{
		`{"delegacion":"01","nombre":"Calidad"}`,
		`{"delegacion":"01","nombre":"Compras","es_baja":"T"}`,
		`{"delegacion":"01","nombre":"Laboratorio","responsable":"Ana Calvo"}`,
		`{"delegacion":"02","nombre":"Calidad"}`,
	} {
		w := do(r, http.MethodPost, "/api/departamentos", body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	list := func(query string) ([]map[string]any, string) {
		w := do(r, http.MethodGet, "/api/departamentos"+query, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var out []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		return out, w.Header().Get("X-Total-Count")
	}

	rows, total := list("")
	assert.Len(t, rows, 4)
	assert.Equal(t, "4", total)

	rows, total = list("?delegacion=01&limit=2&page=2")
	assert.Equal(t, "3", total)
	require.Len(t, rows, 1)
	assert.Equal(t, "Laboratorio", rows[0]["nombre"])

	_, total = list("?delegacion=01&es_baja=F")
	assert.Equal(t, "2", total)

	// поиск идёт и по responsable
	rows, total = list("?search=CAL")
	assert.Equal(t, "3", total)
	assert.Len(t, rows, 3)

	rows, total = list("?codigo=1")
	assert.Equal(t, "2", total)
	assert.Len(t, rows, 2)

	rows, total = list("?delegacion=99")
	assert.Equal(t, "0", total)
	assert.Empty(t, rows)

	// некорректные limit/page заменяются значениями по умолчанию
	rows, _ = list("?limit=abc&page=-1")
	assert.Len(t, rows, 4)

	// огромный номер страницы не переполняет OFFSET
	rows, total = list("?limit=1000&page=9223372036854775807")
	assert.Equal(t, "4", total)
	assert.Empty(t, rows)
}

func TestErrorMapping(t *testing.T) {
	r := newTestServer(t)
	w := do(r, http.MethodPost, "/api/departamentos", `{"delegacion":"01","nombre":"Calidad"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown resource", http.MethodGet, "/api/nada", "", http.StatusNotFound},
		{"malformed body", http.MethodPost, "/api/departamentos", `{"nombre":`, http.StatusBadRequest},
		{"missing required", http.MethodPost, "/api/departamentos", `{"delegacion":"01"}`, http.StatusUnprocessableEntity},
		{"catalog value", http.MethodPost, "/api/departamentos", `{"delegacion":"01","nombre":"X","es_baja":"Z"}`, http.StatusUnprocessableEntity},
		{"json schema", http.MethodPost, "/api/cargos", `{"delegacion":"01","nombre":7}`, http.StatusUnprocessableEntity},
		{"missing relation", http.MethodPost, "/api/cargos", `{"delegacion":"01","nombre":"Jefe","departamento":9}`, http.StatusUnprocessableEntity},
		{"unique", http.MethodPost, "/api/departamentos", `{"delegacion":"01","nombre":"calidad"}`, http.StatusConflict},
		{"duplicate code", http.MethodPost, "/api/departamentos", `{"codigo":1,"delegacion":"01","nombre":"Otro"}`, http.StatusConflict},
		{"update not found", http.MethodPut, "/api/departamentos/9/01", `{"nombre":"X"}`, http.StatusNotFound},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := do(r, c.method, c.path, c.body)
			assert.Equal(t, c.status, w.Code, w.Body.String())
			body := decode(t, w)
			assert.NotEmpty(t, body["error"])
			if c.status != http.StatusNotFound {
				assert.Contains(t, body, "detalle")
			}
		})
	}
}

func TestSchemaErrorDetail(t *testing.T) {
	r := newTestServer(t)
	w := do(r, http.MethodPost, "/api/departamentos", `{"delegacion":"01","nombre":null}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body struct {
		Error   string `json:"error"`
		Detalle []struct {
			Code  string `json:"code"`
			Field string `json:"field"`
		} `json:"detalle"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "datos no válidos", body.Error)
	require.Len(t, body.Detalle, 1)
	assert.Equal(t, "not_nullable", body.Detalle[0].Code)
	assert.Equal(t, "nombre", body.Detalle[0].Field)
}

func TestCargoNeedsActiveDepartment(t *testing.T) {
	r := newTestServer(t)
	w := do(r, http.MethodPost, "/api/departamentos", `{"delegacion":"01","nombre":"Archivo","es_baja":"T"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(r, http.MethodPost, "/api/cargos", `{"delegacion":"01","nombre":"Archivero","departamento":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "el departamento 1 está de baja")
}

func TestMetaAndService(t *testing.T) {
	r := newTestServer(t)

	w := do(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = do(r, http.MethodGet, "/_meta/resources", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"name":"cargos","table":"cargos"},{"name":"departamentos","table":"departamentos"}]`, w.Body.String())

	w = do(r, http.MethodGet, "/_meta/resources/Departamentos", "")
	require.Equal(t, http.StatusOK, w.Code)
	meta := decode(t, w)
	assert.Equal(t, map[string]any{"delegation": "delegacion", "code": "codigo"}, meta["key"])
	assert.Equal(t, "es_baja", meta["inactive"])
	assert.Equal(t, []any{"nombre", "responsable"}, meta["search"])

	w = do(r, http.MethodGet, "/_meta/catalogs/es_baja", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["items"], 2)

	w = do(r, http.MethodGet, "/_meta/catalogs/nada", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminReload(t *testing.T) {
	// копия ресурсов репозитория в отдельной директории
	dir := t.TempDir()
	files, err := filepath.Glob("../../resources/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, f := range files {
		b, err := os.ReadFile(f)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, filepath.Base(f)), b, 0o644))
	}
	rl := testReloader()
	rl.ResourcesDir = dir
	r := newServerWith(t, rl)

	w := do(r, http.MethodPost, "/_admin/reload", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []any{"cargos", "departamentos"}, decode(t, w)["resources"])

	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.yaml"), []byte(`
name: muestras
table: muestras
key:
  code: mue_codigo
fields:
  - name: nombre
    column: mue_nombre
`), 0o644))

	// директории из тела запроса не принимаются
	other := t.TempDir()
	w = do(r, http.MethodPost, "/_admin/reload", fmt.Sprintf(`{"resources_dir":%q}`, other))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "column_unknown")

	// старый реестр продолжает работать
	w = do(r, http.MethodGet, "/api/departamentos", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodGet, "/api/muestras", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSplitKeysAndNames(t *testing.T) {
	assert.Nil(t, splitKeys(""))
	assert.Nil(t, splitKeys("/"))
	assert.Equal(t, []string{"01"}, splitKeys("/01"))
	assert.Equal(t, []string{"01", "", "x"}, splitKeys("/01//x/"))

	assert.Equal(t, "tipos_muestra", normalizeResourceName(" Tipos-Muestra "))
}

func TestStatusFor(t *testing.T) {
	cases := map[engine.Kind]int{
		engine.KindNotFound:  http.StatusNotFound,
		engine.KindSchema:    http.StatusUnprocessableEntity,
		engine.KindRelation:  http.StatusUnprocessableEntity,
		engine.KindDomain:    http.StatusConflict,
		engine.KindIntegrity: http.StatusConflict,
		engine.KindMalformed: http.StatusBadRequest,
		engine.KindInfra:     http.StatusInternalServerError,
		engine.Kind(0):       http.StatusInternalServerError,
	}
	for k, want := range cases {
		assert.Equal(t, want, statusFor(k), k.String())
	}
}
