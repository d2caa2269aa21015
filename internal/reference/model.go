package reference

// EnumDirectory описывает один справочник значений
type EnumDirectory struct {
	Name  string     `yaml:"name"`
	Items []EnumItem `yaml:"items"`
}

type EnumItem struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
	// Order — порядок вывода; ValidFrom/ValidTo — YYYY-MM-DD, пустое значение = без ограничения
	Order     int    `yaml:"order,omitempty"`
	ValidFrom string `yaml:"valid_from,omitempty"`
	ValidTo   string `yaml:"valid_to,omitempty"`
}

// Catalogs — справочники по имени.
type Catalogs map[string]EnumDirectory

// Exists сообщает, загружен ли справочник name.
func (c Catalogs) Exists(name string) bool {
	_, ok := c[name]
	return ok
}

// Has проверяет, что code есть в справочнике name и действует на дату day (YYYY-MM-DD).
// Пустой day отключает проверку дат.
func (c Catalogs) Has(name, code, day string) bool {
	dir, ok := c[name]
	if !ok {
		return false
	}
	for _, it := range dir.Items {
		if it.Code != code {
			continue
		}
		if day == "" {
			return true
		}
		if it.ValidFrom != "" && day < it.ValidFrom {
			return false
		}
		if it.ValidTo != "" && day > it.ValidTo {
			return false
		}
		return true
	}
	return false
}
