package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Presence различает "поля нет", "поле null" и "поле задано".
type Presence uint8

const (
	Absent Presence = iota
	Null
	Set
)

// Value — значение поля с явным состоянием присутствия.
type Value struct {
	state Presence
	v     any
}

func SetValue(v any) Value { return Value{state: Set, v: v} }
func NullValue() Value      { return Value{state: Null} }

func (v Value) Presence() Presence { return v.state }
func (v Value) IsAbsent() bool     { return v.state == Absent }
func (v Value) IsNull() bool       { return v.state == Null }
func (v Value) IsSet() bool        { return v.state == Set }

// Raw возвращает значение; для Absent и Null — nil.
func (v Value) Raw() any {
	if v.state != Set {
		return nil
	}
	return v.v
}

// IsEmpty — "не передано" в смысле внешних ключей: absent, null или пустая строка.
func (v Value) IsEmpty() bool {
	if v.state != Set {
		return true
	}
	if s, ok := v.v.(string); ok {
		return s == ""
	}
	return false
}

// Text — строковое представление заданного значения.
func (v Value) Text() string {
	if v.state != Set || v.v == nil {
		return ""
	}
	switch t := v.v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Payload — упорядоченный набор внешних полей запроса.
type Payload struct {
	keys []string
	vals map[string]Value
}

func NewPayload() *Payload {
	return &Payload{vals: map[string]Value{}}
}

// Get возвращает Absent для отсутствующего поля.
func (p *Payload) Get(name string) Value {
	if p == nil {
		return Value{}
	}
	return p.vals[name]
}

func (p *Payload) Has(name string) bool {
	return !p.Get(name).IsAbsent()
}

// Set кладёт значение; nil превращается в Null.
func (p *Payload) Set(name string, v any) {
	if v == nil {
		p.put(name, NullValue())
		return
	}
	p.put(name, SetValue(v))
}

func (p *Payload) SetNull(name string) { p.put(name, NullValue()) }

func (p *Payload) put(name string, v Value) {
	if _, ok := p.vals[name]; !ok {
		p.keys = append(p.keys, name)
	}
	p.vals[name] = v
}

// Delete делает поле снова Absent.
func (p *Payload) Delete(name string) {
	if _, ok := p.vals[name]; !ok {
		return
	}
	delete(p.vals, name)
	for i, k := range p.keys {
		if k == name {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Keys — присутствующие поля в порядке появления.
func (p *Payload) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

func (p *Payload) Len() int { return len(p.keys) }

func (p *Payload) Clone() *Payload {
	c := NewPayload()
	for _, k := range p.keys {
		c.put(k, p.vals[k])
	}
	return c
}

var errNotObject = errors.New("payload must be a JSON object")

// DecodePayload разбирает сырое тело JSON, сохраняя разницу между absent, null и "".
// Пустое тело — пустой payload.
func DecodePayload(body []byte) (*Payload, error) {
	p := NewPayload()
	if len(bytes.TrimSpace(body)) == 0 {
		return p, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errNotObject
	}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := kt.(string)
		if !ok {
			return nil, errNotObject
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		p.Set(key, v)
	}
	// закрывающая '}'
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON object")
	}
	return p, nil
}
