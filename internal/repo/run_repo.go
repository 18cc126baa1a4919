package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Flowline/internal/domain"
)

// RunStore — хранилище результатов выполнения.
//
// Реализации: RunRepo (PostgreSQL) и SQLiteRunStore (локальный CLI).
type RunStore interface {
	Save(ctx context.Context, run *domain.ExecutionResult) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ExecutionResult, error)
	List(ctx context.Context, filter RunFilter) ([]domain.ExecutionResult, error)
}

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	WorkflowID *uuid.UUID
	Status     domain.RunStatus
	Limit      int
	Offset     int
}

// RunRepo — репозиторий для работы с runs.
type RunRepo struct {
	pool *pgxpool.Pool
}

var _ RunStore = (*RunRepo)(nil)

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

const runColumns = `id, workflow_id, user_id, simulation, status, nodes, data, logs,
	error, started_at, finished_at, created_at`

// CreateQueued создаёт запись run в статусе QUEUED до публикации запроса.
func (r *RunRepo) CreateQueued(ctx context.Context, req domain.ExecutionRequest) error {
	query := `
		INSERT INTO runs (id, workflow_id, user_id, simulation, status, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		req.RunID,
		req.WorkflowID,
		req.UserID,
		req.Simulation,
		domain.RunStatusQueued,
		req.Source,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Save сохраняет результат выполнения (insert или update).
func (r *RunRepo) Save(ctx context.Context, run *domain.ExecutionResult) error {
	nodesJSON, dataJSON, logsJSON, err := marshalRun(run)
	if err != nil {
		return err
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO runs (id, workflow_id, user_id, simulation, status, nodes, data, logs,
		                  error, started_at, finished_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    nodes = EXCLUDED.nodes,
		    data = EXCLUDED.data,
		    logs = EXCLUDED.logs,
		    error = EXCLUDED.error,
		    started_at = EXCLUDED.started_at,
		    finished_at = EXCLUDED.finished_at
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		nullUUID(&run.WorkflowID),
		run.UserID,
		run.Simulation,
		run.Status,
		nodesJSON,
		dataJSON,
		logsJSON,
		nullString(run.Error),
		run.StartedAt,
		run.FinishedAt,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExecutionResult, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

	run, err := scanRun(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// List возвращает список runs с фильтрацией.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.ExecutionResult, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE ($1::uuid IS NULL OR workflow_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullUUID(filter.WorkflowID),
		nullString(string(filter.Status)),
		limitOrDefault(filter.Limit),
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.ExecutionResult
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// --- Helpers ---

func marshalRun(run *domain.ExecutionResult) (nodes, data, logs []byte, err error) {
	if nodes, err = json.Marshal(run.Nodes); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal nodes: %w", err)
	}
	if data, err = json.Marshal(run.Data); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal data: %w", err)
	}
	if logs, err = json.Marshal(run.Logs); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal logs: %w", err)
	}
	return nodes, data, logs, nil
}

func unmarshalRun(run *domain.ExecutionResult, nodes, data, logs []byte) error {
	if len(nodes) > 0 {
		if err := json.Unmarshal(nodes, &run.Nodes); err != nil {
			return fmt.Errorf("unmarshal nodes: %w", err)
		}
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &run.Data); err != nil {
			return fmt.Errorf("unmarshal data: %w", err)
		}
	}
	if len(logs) > 0 {
		if err := json.Unmarshal(logs, &run.Logs); err != nil {
			return fmt.Errorf("unmarshal logs: %w", err)
		}
	}
	return nil
}

// scanRun сканирует одну строку в ExecutionResult.
func scanRun(row pgx.Row) (*domain.ExecutionResult, error) {
	var run domain.ExecutionResult
	var workflowID *uuid.UUID
	var runError *string
	var nodesJSON, dataJSON, logsJSON []byte

	err := row.Scan(
		&run.ID,
		&workflowID,
		&run.UserID,
		&run.Simulation,
		&run.Status,
		&nodesJSON,
		&dataJSON,
		&logsJSON,
		&runError,
		&run.StartedAt,
		&run.FinishedAt,
		&run.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if workflowID != nil {
		run.WorkflowID = *workflowID
	}
	if runError != nil {
		run.Error = *runError
	}
	if err := unmarshalRun(&run, nodesJSON, dataJSON, logsJSON); err != nil {
		return nil, err
	}
	return &run, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID возвращает nil для пустого UUID.
func nullUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}

// limitOrDefault ограничивает размер страницы.
func limitOrDefault(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 500:
		return 500
	default:
		return limit
	}
}
