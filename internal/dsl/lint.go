package dsl

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Issue struct {
	Resource string `json:"resource"`
	Field    string `json:"field"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// Issues — блокирующие проблемы определений; реализует error.
type Issues []Issue

func (is Issues) Error() string {
	parts := make([]string, 0, len(is))
	for _, it := range is {
		parts = append(parts, fmt.Sprintf("%s.%s: %s", it.Resource, it.Field, it.Message))
	}
	return "resource definitions: " + strings.Join(parts, "; ")
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Lint проверяет противоречия в определениях ресурсов.
func Lint(resources map[string]*Resource) Issues {
	var issues Issues

	names := make([]string, 0, len(resources))
	for n := range resources {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		r := resources[name]
		issues = append(issues, lintOne(name, r)...)
	}
	if len(issues) == 0 {
		return nil
	}
	return issues
}

func lintOne(name string, r *Resource) Issues {
	var issues Issues
	add := func(field, code, msg string) {
		issues = append(issues, Issue{Resource: name, Field: field, Code: code, Message: msg})
	}

	// структурные правила (теги validate)
	if err := structValidator.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				add(fe.Namespace(), "invalid_"+fe.Tag(), fmt.Sprintf("failed %q rule", fe.Tag()))
			}
		} else {
			add("", "invalid", err.Error())
		}
		return issues
	}

	// имена уникальны в обе стороны
	byName := map[string]struct{}{}
	byCol := map[string]struct{}{}
	for _, f := range r.Fields {
		if _, dup := byName[f.Name]; dup {
			add(f.Name, "duplicate_name", "external name declared twice")
		}
		if _, dup := byCol[f.Column]; dup {
			add(f.Name, "duplicate_column", fmt.Sprintf("column %q mapped twice", f.Column))
		}
		byName[f.Name] = struct{}{}
		byCol[f.Column] = struct{}{}

		if f.Rules != "" {
			if err := checkRules(f.Rules); err != nil {
				add(f.Name, "rules_invalid", err.Error())
			}
		}
	}

	// колонки ключа, серии, статуса и поиска должны быть объявлены полями
	mustColumn := func(col, what string) {
		if col == "" {
			return
		}
		if _, ok := byCol[col]; !ok {
			add(col, "column_unknown", what+" column is not declared in fields")
		}
	}
	mustColumn(r.Key.Code, "key code")
	mustColumn(r.Key.Delegation, "key delegation")
	for _, c := range r.Key.Aux {
		mustColumn(c, "key aux")
	}
	mustColumn(r.Series, "series")
	mustColumn(r.Inactive, "inactive")
	for _, c := range r.Search {
		mustColumn(c, "search")
	}
	for _, rel := range r.Relations {
		if _, ok := byName[rel.Field]; !ok {
			add(rel.Field, "relation_field_unknown", "relation field is not declared in fields")
		}
	}
	return issues
}

// checkRules прогоняет теги на пустом значении, чтобы поймать неизвестные правила.
func checkRules(tag string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("bad rules %q: %v", tag, rec)
		}
	}()
	_ = structValidator.Var("", tag)
	return nil
}
