package resources

import (
	"context"

	"lims/internal/engine"
)

// Cargos: код неизменяем; департамент можно менять только на активный.
type Cargos struct {
	engine.NopHooks
}

func (Cargos) Relations(ctx context.Context, s engine.Store, p *engine.Payload, existing *engine.Key) error {
	v := p.Get("departamento")
	if v.IsEmpty() {
		return nil
	}
	// делегация записи: при обновлении только из ключа
	deleg := p.Get("delegacion").Text()
	if existing != nil {
		deleg = existing.Delegation
	}
	rows, err := s.Query(ctx,
		`SELECT dep_es_baja FROM departamentos WHERE dep_delegacion = ? AND dep_codigo = ?`,
		deleg, v.Text())
	if err != nil {
		return err
	}
	// существование уже проверено декларативной связью
	if len(rows) > 0 {
		if st, _ := rows[0]["dep_es_baja"].(string); st != "" && st != ActiveFlag {
			return engine.Missing("departamento", "el departamento %s está de baja", v.Text())
		}
	}
	return nil
}

func (Cargos) Criteria(_ context.Context, _ engine.Store, op engine.Op, p *engine.Payload, _ *engine.Key) (*engine.Payload, error) {
	if op == engine.OpUpdate {
		p.Delete("codigo")
	}
	return p, nil
}
