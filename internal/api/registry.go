package api

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"lims/internal/dsl"
	"lims/internal/engine"
	"lims/internal/reference"
)

// Registry — движки ресурсов по имени. Содержимое заменяется целиком при reload.
type Registry struct {
	mu       sync.RWMutex
	engines  map[string]*engine.Engine
	catalogs reference.Catalogs
}

// BuildRegistry создаёт движок для каждого описания; хуки берутся по имени ресурса.
func BuildRegistry(defs map[string]*dsl.Resource, catalogs reference.Catalogs, hooks map[string]engine.Hooks, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	engines := make(map[string]*engine.Engine, len(defs))
	for name, def := range defs {
		e, err := engine.New(def, hooks[name], engine.WithLogger(log), engine.WithCatalogs(catalogs))
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", name, err)
		}
		engines[name] = e
	}
	for name := range hooks {
		if _, ok := defs[name]; !ok {
			log.Warn("hooks registered for undefined resource", zap.String("resource", name))
		}
	}
	return &Registry{engines: engines, catalogs: catalogs}, nil
}

// Replace атомарно подменяет содержимое реестра содержимым other.
func (r *Registry) Replace(other *Registry) {
	other.mu.RLock()
	engines, catalogs := other.engines, other.catalogs
	other.mu.RUnlock()

	r.mu.Lock()
	r.engines = engines
	r.catalogs = catalogs
	r.mu.Unlock()
}

// Names — имена ресурсов по алфавиту.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.engines))
	for n := range r.engines {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Catalogs() reference.Catalogs {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalogs
}

// Resources — описания всех ресурсов (для генерации DDL).
func (r *Registry) Resources() map[string]*dsl.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*dsl.Resource, len(r.engines))
	for n, e := range r.engines {
		out[n] = e.Resource()
	}
	return out
}
