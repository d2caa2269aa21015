package engine

import "context"

// Op — изменяющая операция, в рамках которой вызван хук.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Hooks — точки расширения ресурса. Движок вызывает их в фиксированном порядке:
//
//	Relations -> Criteria -> [BeginTx] -> {Insert|Update} -> AfterWrite -> Commit
//	[BeginTx] -> BeforeDelete -> Delete -> AfterDelete -> Commit
//
// Любая ошибка останавливает операцию; внутри транзакции она же вызывает rollback.
// Store в AfterWrite/BeforeDelete/AfterDelete — транзакция операции.
type Hooks interface {
	// Relations проверяет ссылки, которые не описываются декларативно.
	// existing == nil при создании.
	Relations(ctx context.Context, s Store, p *Payload, existing *Key) error

	// Criteria — бизнес-правила ресурса. Возвращает payload, который будет сохранён.
	Criteria(ctx context.Context, s Store, op Op, p *Payload, existing *Key) (*Payload, error)

	// BeforeDelete запрещает удаление при наличии зависимых записей (см. Veto).
	BeforeDelete(ctx context.Context, s Store, k Key) error

	// AfterDelete чистит или перенаправляет зависимые записи.
	AfterDelete(ctx context.Context, s Store, k Key) error

	// AfterWrite выполняет побочные записи после insert/update.
	// Возвращённые значения попадают в data ответа на создание.
	AfterWrite(ctx context.Context, s Store, op Op, k Key, p *Payload) (map[string]any, error)
}

// NopHooks ничего не делает; встраивается в хуки ресурса, которым нужна часть точек.
type NopHooks struct{}

func (NopHooks) Relations(context.Context, Store, *Payload, *Key) error { return nil }

func (NopHooks) Criteria(_ context.Context, _ Store, _ Op, p *Payload, _ *Key) (*Payload, error) {
	return p, nil
}

func (NopHooks) BeforeDelete(context.Context, Store, Key) error { return nil }

func (NopHooks) AfterDelete(context.Context, Store, Key) error { return nil }

func (NopHooks) AfterWrite(context.Context, Store, Op, Key, *Payload) (map[string]any, error) {
	return nil, nil
}

var _ Hooks = NopHooks{}
