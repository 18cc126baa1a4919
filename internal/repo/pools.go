package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Flowline/internal/nodes"
)

// ErrExternalDBDisabled — узел dbQuery указал свою строку подключения,
// а подключения к внешним БД запрещены.
var ErrExternalDBDisabled = errors.New("external database connections are disabled")

// PoolRegistry — пулы соединений для узлов dbQuery.
//
// Пул по умолчанию создаётся при старте процесса и передаётся сюда.
// Пулы для внешних строк подключения создаются лениво, один на строку,
// и закрываются в Close.
type PoolRegistry struct {
	def           *pgxpool.Pool
	allowExternal bool
	maxConns      int32

	mu    sync.Mutex
	pools map[string]*pgxpool.Pool
}

// NewPoolRegistry создаёт реестр. def может быть nil — тогда dbQuery
// без connectionString завершится ошибкой.
func NewPoolRegistry(def *pgxpool.Pool, allowExternal bool) *PoolRegistry {
	return &PoolRegistry{
		def:           def,
		allowExternal: allowExternal,
		maxConns:      4,
		pools:         make(map[string]*pgxpool.Pool),
	}
}

// Pool реализует nodes.DBPools.
func (r *PoolRegistry) Pool(ctx context.Context, connString string) (nodes.ConnPool, error) {
	if connString == "" {
		if r.def == nil {
			return nil, fmt.Errorf("%w: no default database configured", nodes.ErrProviderNotConfigured)
		}
		return &connPool{pool: r.def}, nil
	}

	if !r.allowExternal {
		return nil, ErrExternalDBDisabled
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pools[connString]; ok {
		return &connPool{pool: p}, nil
	}

	p, err := NewPool(ctx, PoolConfig{DSN: connString, MaxConns: r.maxConns})
	if err != nil {
		return nil, err
	}
	r.pools[connString] = p
	return &connPool{pool: p}, nil
}

// Close закрывает пулы внешних БД. Пул по умолчанию закрывает владелец.
func (r *PoolRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, p := range r.pools {
		p.Close()
		delete(r.pools, k)
	}
}

// connPool адаптирует pgxpool.Pool к nodes.ConnPool.
type connPool struct {
	pool *pgxpool.Pool
}

func (p *connPool) Acquire(ctx context.Context) (nodes.Conn, error) {
	c, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &conn{conn: c}, nil
}

// conn адаптирует pgxpool.Conn к nodes.Conn.
type conn struct {
	conn *pgxpool.Conn
}

// Query выполняет запрос и собирает строки в карты column → value.
func (c *conn) Query(ctx context.Context, sql string, args ...any) ([]map[string]any, int64, error) {
	rows, err := c.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}

	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, 0, fmt.Errorf("read rows: %w", err)
	}
	return records, rows.CommandTag().RowsAffected(), nil
}

func (c *conn) Release() {
	c.conn.Release()
}
