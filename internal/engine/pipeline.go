package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"

	"lims/internal/db"
	"lims/internal/dsl"
)

// rules — общий валидатор правил полей.
var rules = validator.New()

// decode — стадия 0: сырое тело -> payload (+ JSON schema ресурса, если задана).
func (e *Engine) decode(body []byte) (*Payload, error) {
	p, err := DecodePayload(body)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Message: "JSON no válido", Err: err}
	}
	if e.schema == nil {
		return p, nil
	}

	raw := body
	if len(strings.TrimSpace(string(raw))) == 0 {
		raw = []byte("{}")
	}
	res, err := e.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Message: "JSON no válido", Err: err}
	}
	if !res.Valid() {
		errs := make([]FieldError, 0, len(res.Errors()))
		for _, re := range res.Errors() {
			errs = append(errs, ferr(ErrSchemaInvalid, re.Field(), re.Description()))
		}
		return nil, schemaError(errs)
	}
	return p, nil
}

// validate прогоняет стадии 1–3. Транзакция здесь никогда не открывается.
// При обновлении неизменяемые поля снимаются до первой стадии: ни одна проверка их не видит.
func (e *Engine) validate(ctx context.Context, s Store, op Op, p *Payload, existing *Key) (*Payload, error) {
	if op == OpUpdate {
		for _, f := range e.res.Fields {
			if f.Immutable {
				p.Delete(f.Name)
			}
		}
	}
	if err := e.checkSchema(op, p); err != nil {
		return nil, err
	}
	if err := e.checkRelations(ctx, s, p, existing); err != nil {
		return nil, classify(err, KindInfra, "error al validar relaciones")
	}
	out, err := e.checkCriteria(ctx, s, op, p, existing)
	if err != nil {
		return nil, classify(err, KindInfra, "error al validar criterios")
	}
	return out, nil
}

// checkSchema — стадия 1: обязательность, null, типы, правила validator, справочники.
// Приведённые значения записываются обратно в payload.
func (e *Engine) checkSchema(op Op, p *Payload) error {
	var errs []FieldError
	today := time.Now().Format("2006-01-02")

	for _, f := range e.res.Fields {
		// неизменяемые поля при обновлении уже сняты
		if op == OpUpdate && f.Immutable {
			continue
		}
		v := p.Get(f.Name)
		switch {
		case v.IsAbsent():
			if f.Required == "always" || (f.Required == "create" && op == OpCreate) {
				errs = append(errs, ferr(ErrRequired, f.Name, "el campo '"+f.Name+"' es obligatorio"))
			}
			continue
		case v.IsNull():
			if !f.Nullable {
				errs = append(errs, ferr(ErrNotNullable, f.Name, "el campo '"+f.Name+"' no admite null"))
			}
			continue
		}

		val, err := coerceValue(f, v.Raw())
		if err != nil {
			errs = append(errs, ferr(ErrTypeMismatch, f.Name, "el campo '"+f.Name+"' "+err.Error()))
			continue
		}
		if f.Required != "" {
			if s, ok := val.(string); ok && s == "" && f.Required == "always" {
				errs = append(errs, ferr(ErrRequired, f.Name, "el campo '"+f.Name+"' es obligatorio"))
				continue
			}
		}
		if f.Rules != "" {
			if err := rules.Var(val, f.Rules); err != nil {
				errs = append(errs, ferr(ErrRuleFailed, f.Name, ruleMessage(f.Name, err)))
				continue
			}
		}
		if f.Catalog != "" {
			if s := fmt.Sprint(val); !e.catalogs.Has(f.Catalog, s, today) {
				errs = append(errs, ferr(ErrEnumInvalid, f.Name, "valor '"+s+"' no permitido para '"+f.Name+"'"))
				continue
			}
		}
		p.Set(f.Name, val)
	}

	if len(errs) > 0 {
		return schemaError(errs)
	}
	return nil
}

func ruleMessage(field string, err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		if fe.Param() != "" {
			return fmt.Sprintf("el campo '%s' no cumple la regla %s=%s", field, fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("el campo '%s' no cumple la regla %s", field, fe.Tag())
	}
	return fmt.Sprintf("el campo '%s': %v", field, err)
}

// checkRelations — стадия 2: декларативные ссылки, затем хук ресурса.
// Пустой внешний ключ означает "не передан".
func (e *Engine) checkRelations(ctx context.Context, s Store, p *Payload, existing *Key) error {
	for _, r := range e.res.Relations {
		v := p.Get(r.Field)
		if v.IsEmpty() {
			continue
		}
		conds := []Cond{Eq(r.Column, v.Raw())}
		if r.DelegationColumn != "" {
			conds = append(conds, Eq(r.DelegationColumn, e.delegationOf(p, existing)))
		}
		ok, err := s.Exists(ctx, r.Table, conds...)
		if err != nil {
			return err
		}
		if !ok {
			return Missing(r.Field, "%s '%s' no existe", r.Field, v.Text())
		}
	}
	return e.hooks.Relations(ctx, s, p, existing)
}

// checkCriteria — стадия 3: уникальность в пределах делегации,
// затем хук ресурса, который может вернуть другой payload.
func (e *Engine) checkCriteria(ctx context.Context, s Store, op Op, p *Payload, existing *Key) (*Payload, error) {
	for _, f := range e.res.Fields {
		if !f.Unique {
			continue
		}
		v := p.Get(f.Name)
		if v.IsEmpty() {
			continue
		}
		taken, err := e.uniqueTaken(ctx, s, f, v.Text(), e.delegationOf(p, existing), existing)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, &Error{Kind: KindDomain, Message: "valor duplicado",
				Fields: []FieldError{ferr(ErrUniqueViolation, f.Name, "ya existe un registro con "+f.Name+" '"+v.Text()+"'")}}
		}
	}

	out, err := e.hooks.Criteria(ctx, s, op, p, existing)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = p
	}
	return out, nil
}

// uniqueTaken ищет другую запись с тем же значением (без учёта регистра) в той же делегации.
func (e *Engine) uniqueTaken(ctx context.Context, s Store, f dsl.Field, val, deleg string, existing *Key) (bool, error) {
	var sb strings.Builder
	args := []any{strings.ToLower(val)}
	fmt.Fprintf(&sb, "SELECT 1 FROM %s WHERE LOWER(CAST(%s AS TEXT)) = ?", db.Ident(e.res.Table), db.Ident(f.Column))
	if e.keys.Delegation != "" {
		sb.WriteString(" AND " + db.Ident(e.keys.Delegation) + " = ?")
		args = append(args, deleg)
	}
	if existing != nil {
		where, wargs := e.keys.Where(*existing)
		sb.WriteString(" AND NOT (" + where + ")")
		args = append(args, wargs...)
	}
	sb.WriteString(" LIMIT 1")

	rows, err := s.Query(ctx, sb.String(), args...)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// delegationOf — делегация текущего ключа, при создании — из payload.
func (e *Engine) delegationOf(p *Payload, existing *Key) string {
	if existing != nil {
		return existing.Delegation
	}
	if e.keys.Delegation != "" {
		if name, ok := e.fields.External(e.keys.Delegation); ok {
			if v := p.Get(name); !v.IsEmpty() {
				return v.Text()
			}
		}
	}
	return ""
}

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`) // YYYY-MM-DD

// coerceValue строго приводит JSON-значение к типу поля.
func coerceValue(f dsl.Field, v any) (any, error) {
	switch f.Type {
	case "", "string":
		return toStringStrict(v)
	case "int":
		return toIntStrict(v)
	case "number":
		return toFloatStrict(v)
	case "bool":
		return toBoolStrict(v)
	case "date":
		s, err := toStringStrict(v)
		if err != nil {
			return nil, err
		}
		if !dateRe.MatchString(s) {
			return nil, errors.New("debe tener formato YYYY-MM-DD")
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return nil, errors.New("fecha no válida")
		}
		return s, nil
	case "datetime":
		s, err := toStringStrict(v)
		if err != nil {
			return nil, err
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return nil, errors.New("debe ser fecha-hora RFC3339")
		}
		return s, nil
	default:
		return v, nil
	}
}

func toStringStrict(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	// числа как строки не форматируем — лучше отдать ошибку
	return "", errors.New("debe ser texto")
}

func toIntStrict(v any) (int64, error) {
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, errors.New("debe ser entero")
		}
		return n, nil
	case float64:
		if t != float64(int64(t)) {
			return 0, errors.New("debe ser entero")
		}
		return int64(t), nil
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, errors.New("debe ser entero")
		}
		return n, nil
	default:
		return 0, errors.New("debe ser entero")
	}
}

func toFloatStrict(v any) (float64, error) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, errors.New("debe ser numérico")
		}
		return f, nil
	case float64:
		return t, nil
	case int64:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, errors.New("debe ser numérico")
		}
		return f, nil
	default:
		return 0, errors.New("debe ser numérico")
	}
}

func toBoolStrict(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "y", "on", "t", "s", "si", "sí":
			return true, nil
		case "false", "0", "no", "n", "off", "f":
			return false, nil
		default:
			return false, errors.New("debe ser booleano")
		}
	default:
		return false, errors.New("debe ser booleano")
	}
}
