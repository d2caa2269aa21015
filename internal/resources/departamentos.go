package resources

import (
	"context"

	"lims/internal/engine"
)

// Departamentos: код назначается генератором и не меняется; удаление запрещено,
// пока на департамент ссылаются активные cargos.
type Departamentos struct {
	engine.NopHooks
}

func (Departamentos) Criteria(_ context.Context, _ engine.Store, op engine.Op, p *engine.Payload, _ *engine.Key) (*engine.Payload, error) {
	if op == engine.OpUpdate {
		p.Delete("codigo")
	}
	return p, nil
}

func (Departamentos) BeforeDelete(ctx context.Context, s engine.Store, k engine.Key) error {
	rows, err := s.Query(ctx,
		`SELECT car_codigo FROM cargos
		 WHERE car_delegacion = ? AND car_departamento = ? AND (car_es_baja = ? OR car_es_baja IS NULL)
		 LIMIT 1`,
		k.Delegation, k.Code, ActiveFlag)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		return engine.Veto("el departamento %s tiene cargos activos asignados", k.Code)
	}
	return nil
}

// AfterDelete отвязывает cargos, оставшиеся (уже неактивные) на удалённом департаменте.
func (Departamentos) AfterDelete(ctx context.Context, s engine.Store, k engine.Key) error {
	_, err := s.Exec(ctx,
		`UPDATE cargos SET car_departamento = NULL WHERE car_delegacion = ? AND car_departamento = ?`,
		k.Delegation, k.Code)
	return err
}
