package dsl

// Resource описывает один REST-ресурс: таблицу, поля и составной ключ.
type Resource struct {
	Name   string  `yaml:"name" validate:"required"`
	Table  string  `yaml:"table" validate:"required"`
	Fields []Field `yaml:"fields" validate:"required,min=1,dive"`
	Key    Key     `yaml:"key"`

	// Series — второй разрез счётчика кодов (вместе с делегацией).
	Series string `yaml:"series,omitempty"`

	// Inactive — колонка статуса "baja"; ActiveValue — значение "активна".
	Inactive    string `yaml:"inactive,omitempty"`
	ActiveValue string `yaml:"active_value,omitempty"`

	Search    []string   `yaml:"search,omitempty"`
	Relations []Relation `yaml:"relations,omitempty" validate:"dive"`

	// JSONSchema применяется к сырому телу запроса до разбора полей.
	JSONSchema map[string]any `yaml:"json_schema,omitempty"`

	SkipInsert         bool `yaml:"skip_insert,omitempty"`
	SkipCodeGeneration bool `yaml:"skip_code_generation,omitempty"`
}

// Key — колонки составного ключа.
type Key struct {
	Delegation string   `yaml:"delegation,omitempty"`
	Code       string   `yaml:"code" validate:"required"`
	Aux        []string `yaml:"aux,omitempty" validate:"max=4"`
}

// Field — пара внешнее имя / колонка плюс правила.
type Field struct {
	Name   string `yaml:"name" validate:"required"`
	Column string `yaml:"column" validate:"required"`
	Type   string `yaml:"type,omitempty" validate:"omitempty,oneof=string int number bool date datetime"`

	// Rules — теги go-playground/validator, применяются к приведённому значению.
	Rules string `yaml:"rules,omitempty"`

	// Required: "" | create | always
	Required  string `yaml:"required,omitempty" validate:"omitempty,oneof=create always"`
	Nullable  bool   `yaml:"nullable,omitempty"`
	Immutable bool   `yaml:"immutable,omitempty"`
	Unique    bool   `yaml:"unique,omitempty"`
	Catalog   string `yaml:"catalog,omitempty"`
}

// Relation — проверка существования ссылки в другой таблице.
type Relation struct {
	Field            string `yaml:"field" validate:"required"`
	Table            string `yaml:"table" validate:"required"`
	Column           string `yaml:"column" validate:"required"`
	DelegationColumn string `yaml:"delegation_column,omitempty"`
}

// FieldByName ищет поле по внешнему имени.
func (r *Resource) FieldByName(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldByColumn ищет поле по колонке хранилища.
func (r *Resource) FieldByColumn(col string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Column == col {
			return f, true
		}
	}
	return Field{}, false
}

// ActiveSentinel возвращает значение "активна" (по умолчанию F).
func (r *Resource) ActiveSentinel() string {
	if r.ActiveValue == "" {
		return "F"
	}
	return r.ActiveValue
}
