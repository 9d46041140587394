package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// CreateTableSQL creates the key/value table used by SQLStore.
// Keys are content-addressed cache keys, so VARCHAR(255) is enough.
const CreateTableSQL = `CREATE TABLE IF NOT EXISTS kv_store (
	item_key   VARCHAR(255) NOT NULL PRIMARY KEY,
	item_value MEDIUMTEXT   NOT NULL,
	updated_at TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

const (
	selectItemSQL = "SELECT item_value FROM kv_store WHERE item_key = ?"
	upsertItemSQL = "INSERT INTO kv_store (item_key, item_value) VALUES (?, ?) ON DUPLICATE KEY UPDATE item_value = VALUES(item_value)"
	deleteItemSQL = "DELETE FROM kv_store WHERE item_key = ?"
)

// SQLStore implements Storage interface on a MySQL table
type SQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// Compile-time interface compliance check
var _ Storage = (*SQLStore)(nil)

// NewSQLStore creates a MySQL-backed store. Call Migrate once before use.
func NewSQLStore(db *sql.DB, logger *zap.Logger) *SQLStore {
	return &SQLStore{db: db, logger: logger}
}

// Migrate creates the backing table if it does not exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, CreateTableSQL); err != nil {
		return fmt.Errorf("failed to create kv_store table: %w", err)
	}
	return nil
}

func (s *SQLStore) GetItem(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, selectItemSQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		s.logger.Error("failed to get item",
			zap.String("key", key),
			zap.Error(err),
		)
		return "", fmt.Errorf("failed to get item: %w", err)
	}
	return value, nil
}

func (s *SQLStore) SetItem(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, upsertItemSQL, key, value); err != nil {
		s.logger.Error("failed to set item",
			zap.String("key", key),
			zap.Error(err),
		)
		return fmt.Errorf("failed to set item: %w", err)
	}
	return nil
}

func (s *SQLStore) RemoveItem(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, deleteItemSQL, key); err != nil {
		s.logger.Error("failed to remove item",
			zap.String("key", key),
			zap.Error(err),
		)
		return fmt.Errorf("failed to remove item: %w", err)
	}
	return nil
}
