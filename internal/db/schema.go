package db

import (
	"fmt"
	"sort"
	"strings"

	"lims/internal/dsl"
)

var reserved = map[string]struct{}{
	"user": {}, "select": {}, "table": {}, "insert": {}, "update": {}, "delete": {},
	"where": {}, "join": {}, "group": {}, "order": {}, "limit": {}, "offset": {},
	"primary": {}, "foreign": {}, "key": {}, "constraint": {}, "default": {},
	"from": {}, "into": {}, "values": {}, "unique": {}, "index": {}, "create": {},
	"drop": {}, "alter": {}, "schema": {}, "grant": {}, "revoke": {},
}

func isReserved(s string) bool { _, ok := reserved[strings.ToLower(s)]; return ok }

// Ident экранирует идентификатор; одинаково для postgres и sqlite.
func Ident(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

func mapType(f dsl.Field) (string, error) {
	switch strings.ToLower(f.Type) {
	case "", "string":
		return "text", nil
	case "int":
		return "bigint", nil
	case "number":
		return "numeric", nil
	case "bool":
		return "boolean", nil
	case "date":
		return "date", nil
	case "datetime":
		return "timestamp with time zone", nil
	default:
		return "", fmt.Errorf("unknown type: %s", f.Type)
	}
}

// GenerateDDL возвращает карту ключ -> SQL (CREATE TABLE + индекс по ключу).
// Уникальность ключа намеренно не навязывается ограничением: её держит генератор кодов.
func GenerateDDL(resources map[string]*dsl.Resource) (map[string]string, error) {
	out := make(map[string]string, len(resources))

	names := make([]string, 0, len(resources))
	for k := range resources {
		names = append(names, k)
	}
	sort.Strings(names)

	// несколько ресурсов могут смотреть в одну таблицу
	seenTables := map[string]string{}

	for _, name := range names {
		r := resources[name]
		if isReserved(r.Table) {
			return nil, fmt.Errorf("%s: table name %q is a reserved word", name, r.Table)
		}
		if prev, ok := seenTables[r.Table]; ok {
			return nil, fmt.Errorf("%s: table %q already generated for %s", name, r.Table, prev)
		}
		seenTables[r.Table] = name

		cols := make([]string, 0, len(r.Fields))
		for _, f := range r.Fields {
			typ, err := mapType(f)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", name, f.Name, err)
			}
			null := "null"
			if f.Column == r.Key.Code {
				null = "not null"
			}
			cols = append(cols, fmt.Sprintf("%s %s %s", Ident(f.Column), typ, null))
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "create table if not exists %s (\n  %s\n);\n",
			Ident(r.Table), strings.Join(cols, ",\n  "))

		keyCols := []string{}
		if r.Key.Delegation != "" {
			keyCols = append(keyCols, Ident(r.Key.Delegation))
		}
		keyCols = append(keyCols, Ident(r.Key.Code))
		for _, a := range r.Key.Aux {
			keyCols = append(keyCols, Ident(a))
		}
		fmt.Fprintf(&sb, "create index if not exists %s on %s(%s);\n",
			Ident(r.Table+"_key_idx"), Ident(r.Table), strings.Join(keyCols, ", "))

		out["100_"+r.Table] = sb.String()
	}
	return out, nil
}
