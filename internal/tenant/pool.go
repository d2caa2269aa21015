package tenant

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"lims/internal/db"
)

// ErrUnknownTenant — тенант не описан в конфигурации.
var ErrUnknownTenant = errors.New("unknown tenant")

// Opener открывает пул по URL; по умолчанию db.Open.
type Opener func(url string) (*db.Conn, error)

// Pool держит открытые подключения тенантов в LRU; вытесненный пул закрывается.
type Pool struct {
	mu     sync.Mutex
	urls   map[string]string
	def    string
	cache  *lru.Cache[string, *db.Conn]
	open   Opener
	onOpen func(name string, c *db.Conn) error
	log    *zap.Logger
}

type PoolOption func(*Pool)

func WithOpener(o Opener) PoolOption { return func(p *Pool) { p.open = o } }

// WithOnOpen вызывается один раз для каждого нового подключения (например, миграции).
func WithOnOpen(fn func(name string, c *db.Conn) error) PoolOption {
	return func(p *Pool) { p.onOpen = fn }
}

func WithLogger(l *zap.Logger) PoolOption { return func(p *Pool) { p.log = l } }

// NewPool создаёт пул для тенантов urls (имя -> URL базы). def — тенант без заголовка.
func NewPool(urls map[string]string, def string, size int, opts ...PoolOption) (*Pool, error) {
	if len(urls) == 0 {
		return nil, errors.New("no tenants configured")
	}
	if size <= 0 {
		size = len(urls)
	}

	p := &Pool{
		urls: make(map[string]string, len(urls)),
		def:  def,
		open: db.Open,
		log:  zap.NewNop(),
	}
	// имена тенантов без учёта регистра
	for k, v := range urls {
		name := strings.ToLower(k)
		if _, dup := p.urls[name]; dup {
			return nil, fmt.Errorf("tenant %q is configured twice", name)
		}
		p.urls[name] = v
	}
	p.def = strings.ToLower(def)
	if _, ok := p.urls[p.def]; !ok {
		return nil, fmt.Errorf("default tenant %q is not configured", def)
	}
	for _, o := range opts {
		o(p)
	}

	cache, err := lru.NewWithEvict[string, *db.Conn](size, func(name string, c *db.Conn) {
		p.log.Info("tenant connection evicted", zap.String("tenant", name))
		if err := c.Close(); err != nil {
			p.log.Warn("tenant connection close failed", zap.String("tenant", name), zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}
	p.cache = cache
	return p, nil
}

// Default — имя тенанта по умолчанию.
func (p *Pool) Default() string { return p.def }

// Names — описанные тенанты по алфавиту.
func (p *Pool) Names() []string {
	out := make([]string, 0, len(p.urls))
	for k := range p.urls {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Acquire возвращает подключение тенанта name (пустое имя — тенант по умолчанию),
// открывая его при первом обращении.
func (p *Pool) Acquire(name string) (Context, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = p.def
	}
	url, ok := p.urls[name]
	if !ok {
		return Context{}, fmt.Errorf("%w: %s", ErrUnknownTenant, name)
	}

	if c, ok := p.cache.Get(name); ok {
		return FromConn(name, c), nil
	}

	// открытие под мьютексом: второй запрос того же тенанта не откроет второй пул
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.cache.Get(name); ok {
		return FromConn(name, c), nil
	}

	c, err := p.open(url)
	if err != nil {
		return Context{}, fmt.Errorf("open tenant %s: %w", name, err)
	}
	if p.onOpen != nil {
		if err := p.onOpen(name, c); err != nil {
			_ = c.Close()
			return Context{}, fmt.Errorf("init tenant %s: %w", name, err)
		}
	}
	p.cache.Add(name, c)
	p.log.Info("tenant connection opened", zap.String("tenant", name), zap.String("dialect", c.Dialect.Name()))
	return FromConn(name, c), nil
}

// Close закрывает все открытые подключения.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Purge()
}
