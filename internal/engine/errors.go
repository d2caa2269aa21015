package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Kind классифицирует ошибку конвейера; от него зависит HTTP-статус.
type Kind uint8

const (
	KindSchema    Kind = iota + 1 // структура/тип/формат поля
	KindRelation                  // ссылка на несуществующую запись
	KindDomain                    // бизнес-правило ресурса
	KindIntegrity                 // запрет удаления (есть зависимые записи)
	KindNotFound                  // ключ не найден
	KindInfra                     // соединение/транзакция
	KindMalformed                 // тело запроса не разбирается как JSON-объект
)

func (k Kind) String() string {
	switch k {
	case KindSchema:
		return "schema"
	case KindRelation:
		return "relation"
	case KindDomain:
		return "domain"
	case KindIntegrity:
		return "integrity"
	case KindNotFound:
		return "not_found"
	case KindInfra:
		return "infra"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Коды ошибок полей
const (
	ErrRequired        = "required"
	ErrNotNullable     = "not_nullable"
	ErrTypeMismatch    = "type_mismatch"
	ErrRuleFailed      = "rule_failed"
	ErrEnumInvalid     = "enum_invalid"
	ErrSchemaInvalid   = "schema_invalid"
	ErrUniqueViolation = "unique_violation"
	ErrRefNotFound     = "ref_not_found"
	ErrReadOnly        = "readonly_field"
)

func ferr(code, field, msg string) FieldError {
	return FieldError{Code: code, Field: field, Message: msg}
}

// Error — ошибка операции движка.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	for _, f := range e.Fields {
		fmt.Fprintf(&sb, "; %s: %s", f.Field, f.Message)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Detail — текст для поля "detalle" ответа.
func (e *Error) Detail() any {
	if len(e.Fields) > 0 {
		return e.Fields
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// ErrNotFound совпадает через errors.Is с любой ошибкой KindNotFound.
var ErrNotFound = &Error{Kind: KindNotFound, Message: "registro no encontrado"}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t == ErrNotFound && e.Kind == KindNotFound
}

// Reject — нарушение бизнес-правила (для хуков Criteria/AfterWrite).
func Reject(format string, args ...any) error {
	return &Error{Kind: KindDomain, Message: fmt.Sprintf(format, args...)}
}

// Veto — запрет удаления с понятной причиной (для хука BeforeDelete).
func Veto(format string, args ...any) error {
	return &Error{Kind: KindIntegrity, Message: fmt.Sprintf(format, args...)}
}

// Missing — ссылка на несуществующую запись (для хука Relations).
func Missing(field, format string, args ...any) error {
	return &Error{Kind: KindRelation, Message: "referencia inexistente",
		Fields: []FieldError{ferr(ErrRefNotFound, field, fmt.Sprintf(format, args...))}}
}

func schemaError(fields []FieldError) error {
	return &Error{Kind: KindSchema, Message: "datos no válidos", Fields: fields}
}

// classify оставляет *Error как есть, остальное заворачивает в def.
func classify(err error, def Kind, msg string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: def, Message: msg, Err: err}
}

// KindOf возвращает Kind ошибки (KindInfra для чужих ошибок).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfra
}
