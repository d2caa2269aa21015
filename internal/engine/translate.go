package engine

import (
	"bytes"
	"encoding/json"
	"sort"

	"lims/internal/dsl"
)

// FieldMap — двусторонний словарь внешнее имя <-> колонка хранилища.
type FieldMap struct {
	fields []dsl.Field
	byName map[string]int
	byCol  map[string]int
}

func NewFieldMap(fields []dsl.Field) FieldMap {
	m := FieldMap{
		fields: append([]dsl.Field(nil), fields...),
		byName: make(map[string]int, len(fields)),
		byCol:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		m.byName[f.Name] = i
		m.byCol[f.Column] = i
	}
	return m
}

func (m FieldMap) Fields() []dsl.Field { return m.fields }

func (m FieldMap) Column(name string) (string, bool) {
	i, ok := m.byName[name]
	if !ok {
		return "", false
	}
	return m.fields[i].Column, true
}

func (m FieldMap) External(col string) (string, bool) {
	i, ok := m.byCol[col]
	if !ok {
		return "", false
	}
	return m.fields[i].Name, true
}

// Columns — упорядоченная дельта для INSERT/UPDATE.
type Columns struct {
	Names  []string
	Values []any
}

func (c Columns) Len() int { return len(c.Names) }

// Row — дельта как строка хранилища.
func (c Columns) Row() map[string]any {
	out := make(map[string]any, len(c.Names))
	for i, n := range c.Names {
		out[n] = c.Values[i]
	}
	return out
}

// ToStorage копирует присутствующие поля под именами колонок. Absent не попадает в дельту,
// Null становится SQL NULL. Имена вне карты игнорируются.
func (m FieldMap) ToStorage(p *Payload) Columns {
	var out Columns
	for _, f := range m.fields {
		v := p.Get(f.Name)
		if v.IsAbsent() {
			continue
		}
		out.Names = append(out.Names, f.Column)
		out.Values = append(out.Values, v.Raw())
	}
	return out
}

// ToExternal отдаёт все объявленные поля в порядке карты; отсутствующие колонки — null.
func (m FieldMap) ToExternal(row map[string]any) *Object {
	o := NewObject()
	for _, f := range m.fields {
		o.Set(f.Name, row[f.Column])
	}
	return o
}

// Object — JSON-объект с сохранением порядка ключей.
type Object struct {
	keys []string
	vals map[string]any
}

func NewObject() *Object { return &Object{vals: map[string]any{}} }

func (o *Object) Set(k string, v any) {
	if _, ok := o.vals[k]; !ok {
		o.keys = append(o.keys, k)
	}
	o.vals[k] = v
}

func (o *Object) Get(k string) (any, bool) {
	v, ok := o.vals[k]
	return v, ok
}

func (o *Object) Keys() []string { return append([]string(nil), o.keys...) }

// Merge дописывает значения из m; новые ключи идут в алфавитном порядке.
func (o *Object) Merge(m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		o.Set(k, m[k])
	}
}

func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(o.vals[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
