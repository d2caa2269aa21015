// api/names.go
package api

import (
	"strings"

	"lims/internal/engine"
)

// normalizeResourceName приводит сегмент пути к имени ресурса: регистр, пробелы, "-" -> "_".
func normalizeResourceName(raw string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_")
}

// Lookup находит движок по сегменту пути: сначала прямой ключ, затем нормализованное имя.
func (r *Registry) Lookup(raw string) (*engine.Engine, bool) {
	if raw == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.engines[raw]; ok {
		return e, true
	}
	e, ok := r.engines[normalizeResourceName(raw)]
	return e, ok
}

// splitKeys разбирает хвост "/a/b/c" пути на позиционные аргументы ключа.
// Пустой сегмент в середине сохраняется как пустая компонента.
func splitKeys(tail string) []string {
	tail = strings.TrimPrefix(tail, "/")
	tail = strings.TrimSuffix(tail, "/")
	if tail == "" {
		return nil
	}
	return strings.Split(tail, "/")
}
