package dsl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadResources читает YAML-файл; в файле может быть несколько документов (---).
func LoadResources(path string) ([]*Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseResources(data)
}

// ParseResources разбирает один или несколько YAML-документов.
func ParseResources(data []byte) ([]*Resource, error) {
	var out []*Resource
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	for {
		var r Resource
		err := dec.Decode(&r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		// пустой документ между "---"
		if r.Name == "" && r.Table == "" && len(r.Fields) == 0 {
			continue
		}
		normalize(&r)
		out = append(out, &r)
	}
	return out, nil
}

func normalize(r *Resource) {
	r.Name = strings.ToLower(strings.TrimSpace(r.Name))
	for i := range r.Fields {
		if r.Fields[i].Type == "" {
			r.Fields[i].Type = "string"
		}
	}
}

// LoadAllResources обходит каталог и собирает все *.yaml / *.yml в map по имени ресурса.
func LoadAllResources(root string) (map[string]*Resource, error) {
	result := make(map[string]*Resource)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if d.IsDir() || (ext != ".yaml" && ext != ".yml") {
			return nil
		}

		res, err := LoadResources(path)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		for _, r := range res {
			if r.Name == "" {
				return fmt.Errorf("empty resource name in %s", path)
			}
			if _, exists := result[r.Name]; exists {
				return fmt.Errorf("duplicate resource %q (file: %s)", r.Name, path)
			}
			result[r.Name] = r
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if issues := Lint(result); len(issues) > 0 {
		return nil, issues
	}
	return result, nil
}
