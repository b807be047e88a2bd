// Package sqlite provides a SQLite-backed council storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/osusu/osusu/internal/platform/storage/sqlitemigrate"
	"github.com/osusu/osusu/internal/services/council"
	"github.com/osusu/osusu/internal/services/council/storage"
	"github.com/osusu/osusu/internal/services/council/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists council state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite council store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// NextCouncilID allocates the next council identifier, starting at 1.
func (s *Store) NextCouncilID(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin id transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO council_seq (id, next_id) VALUES (1, 1)
		 ON CONFLICT(id) DO NOTHING`,
	); err != nil {
		return 0, fmt.Errorf("init council sequence: %w", err)
	}

	var next int64
	row := tx.QueryRowContext(ctx, `SELECT next_id FROM council_seq WHERE id = 1`)
	if err := row.Scan(&next); err != nil {
		return 0, fmt.Errorf("read council sequence: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE council_seq SET next_id = next_id + 1 WHERE id = 1`,
	); err != nil {
		return 0, fmt.Errorf("advance council sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit council sequence: %w", err)
	}
	return uint64(next), nil
}

// CreateCouncil inserts a new council record.
func (s *Store) CreateCouncil(ctx context.Context, record council.Council) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if record.ID == 0 {
		return fmt.Errorf("council id is required")
	}

	elders, approvals, err := encodeCouncilColumns(record)
	if err != nil {
		return fmt.Errorf("create council: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO councils (id, elders, threshold, approvals, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		int64(record.ID),
		elders,
		int64(record.Threshold),
		approvals,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create council: %w", err)
	}
	return nil
}

// GetCouncil returns one council by id.
func (s *Store) GetCouncil(ctx context.Context, id uint64) (council.Council, error) {
	if err := ctx.Err(); err != nil {
		return council.Council{}, err
	}
	if s == nil || s.sqlDB == nil {
		return council.Council{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, elders, threshold, approvals, created_at, updated_at
		 FROM councils WHERE id = ?`,
		int64(id),
	)

	var (
		record       council.Council
		recordID     int64
		elderJSON    string
		threshold    int64
		approvalJSON string
		createdAt    int64
		updatedAt    int64
	)
	err := row.Scan(&recordID, &elderJSON, &threshold, &approvalJSON, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return council.Council{}, storage.ErrNotFound
		}
		return council.Council{}, fmt.Errorf("get council: %w", err)
	}

	if err := json.Unmarshal([]byte(elderJSON), &record.Elders); err != nil {
		return council.Council{}, fmt.Errorf("decode elders: %w", err)
	}
	if err := json.Unmarshal([]byte(approvalJSON), &record.Approvals); err != nil {
		return council.Council{}, fmt.Errorf("decode approvals: %w", err)
	}
	record.ID = uint64(recordID)
	record.Threshold = uint32(threshold)
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// UpdateCouncil replaces the stored record for record.ID.
func (s *Store) UpdateCouncil(ctx context.Context, record council.Council) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	elders, approvals, err := encodeCouncilColumns(record)
	if err != nil {
		return fmt.Errorf("update council: %w", err)
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE councils SET
		   elders = ?,
		   threshold = ?,
		   approvals = ?,
		   created_at = ?,
		   updated_at = ?
		 WHERE id = ?`,
		elders,
		int64(record.Threshold),
		approvals,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
		int64(record.ID),
	)
	if err != nil {
		return fmt.Errorf("update council: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update council: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func encodeCouncilColumns(record council.Council) (elders, approvals string, err error) {
	elderJSON, err := json.Marshal(stringSlice(record.Elders))
	if err != nil {
		return "", "", fmt.Errorf("encode elders: %w", err)
	}
	approvalJSON, err := json.Marshal(stringSlice(record.Approvals))
	if err != nil {
		return "", "", fmt.Errorf("encode approvals: %w", err)
	}
	return string(elderJSON), string(approvalJSON), nil
}

// stringSlice normalizes nil slices so columns always hold a JSON array.
func stringSlice(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

var _ storage.CouncilStore = (*Store)(nil)
