// Package resources содержит хуки конкретных ресурсов. Описание полей и ключей
// лежит в YAML (resources/*.yaml); здесь только то, что не выражается декларативно.
package resources

import "lims/internal/engine"

// ActiveFlag — значение es_baja для активной записи.
const ActiveFlag = "F"

// Hooks — хуки по имени ресурса. Ресурсы без записи работают на engine.NopHooks.
func Hooks() map[string]engine.Hooks {
	return map[string]engine.Hooks{
		"departamentos": Departamentos{},
		"cargos":        Cargos{},
	}
}
