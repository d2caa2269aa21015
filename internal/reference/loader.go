package reference

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadEnumCatalog читает все справочники из папки (обычно reference/enums/).
// Несуществующая папка — пустой набор.
func LoadEnumCatalog(dir string) (Catalogs, error) {
	result := make(Catalogs)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || !(strings.HasSuffix(e.Name(), ".yaml") || strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var enumDir EnumDirectory
		if err := yaml.Unmarshal(data, &enumDir); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		// Имя справочника — из enumDir.Name или из имени файла
		name := enumDir.Name
		if name == "" {
			name = strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		}
		if _, dup := result[name]; dup {
			return nil, fmt.Errorf("%s: duplicate catalog %q", path, name)
		}
		sort.SliceStable(enumDir.Items, func(i, j int) bool { return enumDir.Items[i].Order < enumDir.Items[j].Order })
		enumDir.Name = name
		result[name] = enumDir
	}
	return result, nil
}
