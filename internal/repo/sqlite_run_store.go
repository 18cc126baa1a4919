package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/shaiso/Flowline/internal/domain"
)

// SQLiteRunStore — RunStore на SQLite для локальных запусков из CLI.
type SQLiteRunStore struct {
	db *sql.DB
}

var _ RunStore = (*SQLiteRunStore)(nil)

// OpenSQLite открывает файл БД через драйвер modernc.org/sqlite.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Один writer: SQLite сериализует запись на уровне файла.
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewSQLiteRunStore создаёт таблицу runs, если её нет.
func NewSQLiteRunStore(db *sql.DB) (*SQLiteRunStore, error) {
	s := &SQLiteRunStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteRunStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			workflow_id TEXT,
			user_id TEXT NOT NULL DEFAULT '',
			simulation INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			nodes BLOB,
			data BLOB,
			logs BLOB,
			error TEXT,
			started_at TEXT,
			finished_at TEXT,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS runs_created_idx ON runs (created_at);`,
	)
	if err != nil {
		return fmt.Errorf("init sqlite schema: %w", err)
	}
	return nil
}

// Save сохраняет результат выполнения (insert или replace).
func (s *SQLiteRunStore) Save(ctx context.Context, run *domain.ExecutionResult) error {
	nodes, data, logs, err := marshalRun(run)
	if err != nil {
		return err
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, workflow_id, user_id, simulation, status, nodes, data, logs,
		                  error, started_at, finished_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET status = excluded.status,
		    nodes = excluded.nodes,
		    data = excluded.data,
		    logs = excluded.logs,
		    error = excluded.error,
		    started_at = excluded.started_at,
		    finished_at = excluded.finished_at`,
		run.ID.String(),
		run.WorkflowID.String(),
		run.UserID,
		run.Simulation,
		string(run.Status),
		nodes,
		data,
		logs,
		run.Error,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (s *SQLiteRunStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExecutionResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, user_id, simulation, status, nodes, data, logs,
		       error, started_at, finished_at, created_at
		FROM runs WHERE id = ?`, id.String())

	run, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// List возвращает runs, новые первыми.
func (s *SQLiteRunStore) List(ctx context.Context, filter RunFilter) ([]domain.ExecutionResult, error) {
	var workflowID, status any
	if id := nullUUID(filter.WorkflowID); id != nil {
		workflowID = id.String()
	}
	if filter.Status != "" {
		status = string(filter.Status)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, user_id, simulation, status, nodes, data, logs,
		       error, started_at, finished_at, created_at
		FROM runs
		WHERE (? IS NULL OR workflow_id = ?)
		  AND (? IS NULL OR status = ?)
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`,
		workflowID, workflowID, status, status,
		limitOrDefault(filter.Limit), filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.ExecutionResult
	for rows.Next() {
		run, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row sqlScanner) (*domain.ExecutionResult, error) {
	var (
		run                    domain.ExecutionResult
		id, workflowID, status string
		runError               sql.NullString
		started, finished      sql.NullString
		created                string
		nodes, data, logs      []byte
	)

	err := row.Scan(&id, &workflowID, &run.UserID, &run.Simulation, &status,
		&nodes, &data, &logs, &runError, &started, &finished, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if run.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse run id: %w", err)
	}
	if wfID, err := uuid.Parse(workflowID); err == nil {
		run.WorkflowID = wfID
	}
	run.Status = domain.RunStatus(status)
	run.Error = runError.String
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		run.CreatedAt = t
	}

	if err := unmarshalRun(&run, nodes, data, logs); err != nil {
		return nil, err
	}
	return &run, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
