package engine

import (
	"fmt"
	"strings"
	"time"

	"lims/internal/db"
	"lims/internal/dsl"
)

const maxAux = 4

// KeySpec — объявленные колонки составного ключа ресурса.
type KeySpec struct {
	Delegation string
	Code       string
	Aux        []string
}

func keySpecOf(r *dsl.Resource) KeySpec {
	return KeySpec{Delegation: r.Key.Delegation, Code: r.Key.Code, Aux: append([]string(nil), r.Key.Aux...)}
}

// Key — кортеж (delegation, code, key1..key4). Необъявленные компоненты всегда пустые.
type Key struct {
	Delegation string
	Code       string
	Aux        [maxAux]string
}

func (k Key) String() string {
	parts := []string{k.Delegation, k.Code}
	for _, a := range k.Aux {
		if a != "" {
			parts = append(parts, a)
		}
	}
	return strings.Join(parts, "/")
}

// Normalize раскладывает позиционные аргументы по объявленным компонентам
// в порядке code, delegation, aux...; недостающие — пустая строка.
func (s KeySpec) Normalize(args ...string) Key {
	var k Key
	next := func() string {
		if len(args) == 0 {
			return ""
		}
		v := args[0]
		args = args[1:]
		return v
	}
	k.Code = next()
	if s.Delegation != "" {
		k.Delegation = next()
	}
	for i := range s.Aux {
		if i >= maxAux {
			break
		}
		k.Aux[i] = next()
	}
	return k
}

type keyPair struct {
	column string
	value  string
}

// pairs — объявленные колонки и значения ключа k.
func (s KeySpec) pairs(k Key) []keyPair {
	out := make([]keyPair, 0, 2+len(s.Aux))
	if s.Delegation != "" {
		out = append(out, keyPair{s.Delegation, k.Delegation})
	}
	out = append(out, keyPair{s.Code, k.Code})
	for i, c := range s.Aux {
		if i >= maxAux {
			break
		}
		out = append(out, keyPair{c, k.Aux[i]})
	}
	return out
}

// Columns — объявленные колонки ключа в каноническом порядке.
func (s KeySpec) Columns() []string {
	var k Key
	pp := s.pairs(k)
	out := make([]string, len(pp))
	for i, p := range pp {
		out[i] = p.column
	}
	return out
}

// Where — равенство по всему объявленному кортежу ("?"-плейсхолдеры).
func (s KeySpec) Where(k Key) (string, []any) {
	pp := s.pairs(k)
	conds := make([]string, len(pp))
	args := make([]any, len(pp))
	for i, p := range pp {
		conds[i] = db.Ident(p.column) + " = ?"
		args[i] = p.value
	}
	return strings.Join(conds, " AND "), args
}

// FromRow собирает ключ из строки хранилища.
func (s KeySpec) FromRow(row map[string]any) Key {
	var k Key
	if s.Delegation != "" {
		k.Delegation = keyText(row[s.Delegation])
	}
	k.Code = keyText(row[s.Code])
	for i, c := range s.Aux {
		if i >= maxAux {
			break
		}
		k.Aux[i] = keyText(row[c])
	}
	return k
}

// FromPayload собирает ключ из внешних полей payload.
func (s KeySpec) FromPayload(fm FieldMap, p *Payload) Key {
	get := func(col string) string {
		name, ok := fm.External(col)
		if !ok {
			return ""
		}
		return p.Get(name).Text()
	}
	var k Key
	if s.Delegation != "" {
		k.Delegation = get(s.Delegation)
	}
	k.Code = get(s.Code)
	for i, c := range s.Aux {
		if i >= maxAux {
			break
		}
		k.Aux[i] = get(c)
	}
	return k
}

func keyText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format("2006-01-02")
	default:
		return fmt.Sprint(t)
	}
}
