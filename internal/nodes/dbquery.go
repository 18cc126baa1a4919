package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/shaiso/Flowline/internal/domain"
)

// DBQueryExecutor — узел SQL запроса (dbQuery, алиас databaseQuery).
//
// Конфигурация:
//
//	{
//	    "connectionString": "",                       // пусто — пул по умолчанию
//	    "queryText": "SELECT * FROM orders WHERE id = $1",
//	    "queryParams": ["{{trigger.requestBody.id}}"]
//	}
//
// Соединение берётся из пула на время запроса и возвращается всегда,
// в том числе при ошибке.
//
// Выход: {"results": [...], "rowCount": N}.
type DBQueryExecutor struct{}

// NewDBQueryExecutor создаёт DBQueryExecutor.
func NewDBQueryExecutor() *DBQueryExecutor {
	return &DBQueryExecutor{}
}

// Type возвращает тип узла.
func (e *DBQueryExecutor) Type() domain.NodeType {
	return domain.NodeTypeDBQuery
}

// Execute выполняет запрос.
func (e *DBQueryExecutor) Execute(ctx context.Context, req *Request) (Output, error) {
	query := GetConfigString(req.Config, "queryText")

	if req.Simulation() {
		req.Logf("Would execute query: %s", truncate(query, 200))
		results, ok := GetConfigSlice(req.Config, "simulatedResults")
		if !ok {
			results = []any{}
		}
		rowCount := len(results)
		if _, set := req.Config["simulatedRowCount"]; set {
			rowCount = GetConfigInt(req.Config, "simulatedRowCount")
		}
		return Output{"results": results, "rowCount": rowCount}, nil
	}

	if strings.TrimSpace(query) == "" {
		return nil, invalidConfig(domain.NodeTypeDBQuery, "queryText is required")
	}
	if req.Exec == nil || req.Exec.DB == nil {
		return nil, fmt.Errorf("%w: database pool for %s", ErrProviderNotConfigured, domain.NodeTypeDBQuery)
	}

	params, _ := GetConfigSlice(req.Config, "queryParams")

	pool, err := req.Exec.DB.Pool(ctx, GetConfigString(req.Config, "connectionString"))
	if err != nil {
		return nil, fmt.Errorf("database pool: %w", err)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	req.Logf("Executing query with %d param(s).", len(params))
	rows, rowCount, err := conn.Query(ctx, query, params...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}

	results := make([]any, len(rows))
	for i, row := range rows {
		results[i] = row
	}
	return Output{"results": results, "rowCount": rowCount}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
