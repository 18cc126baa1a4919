package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CredentialRepo — зашифрованные секреты пользователей.
//
// Реализует engine.CredentialStore: плейсхолдер {{credential.NAME}}
// сначала ищется здесь, потом в переменных окружения.
type CredentialRepo struct {
	pool   *pgxpool.Pool
	sealer *Sealer
}

// NewCredentialRepo создаёт новый CredentialRepo.
func NewCredentialRepo(pool *pgxpool.Pool, sealer *Sealer) *CredentialRepo {
	return &CredentialRepo{pool: pool, sealer: sealer}
}

func associatedData(userID, name string) []byte {
	return []byte(userID + "\x00" + name)
}

// Put сохраняет или заменяет секрет.
func (r *CredentialRepo) Put(ctx context.Context, userID, name, value string) error {
	sealed, err := r.sealer.Seal([]byte(value), associatedData(userID, name))
	if err != nil {
		return err
	}

	query := `
		INSERT INTO credentials (user_id, name, value, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (user_id, name) DO UPDATE
		SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, userID, name, sealed); err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// GetCredential возвращает расшифрованный секрет.
func (r *CredentialRepo) GetCredential(ctx context.Context, userID, name string) (string, bool, error) {
	var sealed []byte
	err := r.pool.QueryRow(ctx,
		`SELECT value FROM credentials WHERE user_id = $1 AND name = $2`,
		userID, name,
	).Scan(&sealed)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get credential: %w", err)
	}

	plaintext, err := r.sealer.Open(sealed, associatedData(userID, name))
	if err != nil {
		return "", false, err
	}
	return string(plaintext), true, nil
}

// ListNames возвращает имена секретов пользователя (без значений).
func (r *CredentialRepo) ListNames(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT name FROM credentials WHERE user_id = $1 ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	return names, nil
}

// Delete удаляет секрет.
func (r *CredentialRepo) Delete(ctx context.Context, userID, name string) error {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM credentials WHERE user_id = $1 AND name = $2`, userID, name)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
