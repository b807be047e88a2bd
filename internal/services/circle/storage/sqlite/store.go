// Package sqlite provides a SQLite-backed circle storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sqlitemigrate "github.com/osusu/osusu/internal/platform/storage/sqlitemigrate"
	"github.com/osusu/osusu/internal/services/circle/domain"
	"github.com/osusu/osusu/internal/services/circle/storage"
	"github.com/osusu/osusu/internal/services/circle/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists circle state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

const circleColumns = `id, admin, contribution, members, payout_queue,
	 cycle_number, current_payout_index, total_volume_distributed,
	 dissolution_votes, dissolved, randomize_order, created_at, updated_at`

// memberRecord is the JSON shape of one member in the members column.
type memberRecord struct {
	Identity         string `json:"identity"`
	ReceivedPayout   bool   `json:"received_payout"`
	ContributionPaid int64  `json:"contribution_paid"`
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func boolToInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}

// Open opens a SQLite circle store and applies embedded migrations.
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

// NextCircleID allocates the next circle identifier, starting at 1.
func (s *Store) NextCircleID(ctx context.Context) (uint64, error) {
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
		`INSERT INTO circle_seq (id, next_id) VALUES (1, 1)
		 ON CONFLICT(id) DO NOTHING`,
	); err != nil {
		return 0, fmt.Errorf("init circle sequence: %w", err)
	}

	var next int64
	row := tx.QueryRowContext(ctx, `SELECT next_id FROM circle_seq WHERE id = 1`)
	if err := row.Scan(&next); err != nil {
		return 0, fmt.Errorf("read circle sequence: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE circle_seq SET next_id = next_id + 1 WHERE id = 1`,
	); err != nil {
		return 0, fmt.Errorf("advance circle sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit circle sequence: %w", err)
	}
	return uint64(next), nil
}

// CreateCircle inserts a new circle record.
func (s *Store) CreateCircle(ctx context.Context, circle domain.Circle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if circle.ID == 0 {
		return fmt.Errorf("circle id is required")
	}

	members, queue, votes, err := encodeCircleColumns(circle)
	if err != nil {
		return fmt.Errorf("create circle: %w", err)
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO circles (`+circleColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(circle.ID),
		circle.Admin,
		circle.Contribution,
		members,
		queue,
		int64(circle.CycleNumber),
		int64(circle.CurrentPayoutIndex),
		circle.TotalVolumeDistributed,
		votes,
		boolToInt(circle.Dissolved),
		boolToInt(circle.RandomizeOrder),
		toMillis(circle.CreatedAt),
		toMillis(circle.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create circle: %w", err)
	}
	return nil
}

// GetCircle returns one circle by id.
func (s *Store) GetCircle(ctx context.Context, id uint64) (domain.Circle, error) {
	if err := ctx.Err(); err != nil {
		return domain.Circle{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Circle{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+circleColumns+` FROM circles WHERE id = ?`,
		int64(id),
	)
	circle, err := scanCircle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Circle{}, storage.ErrNotFound
		}
		return domain.Circle{}, fmt.Errorf("get circle: %w", err)
	}
	return circle, nil
}

// UpdateCircle replaces the stored record for circle.ID.
func (s *Store) UpdateCircle(ctx context.Context, circle domain.Circle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	members, queue, votes, err := encodeCircleColumns(circle)
	if err != nil {
		return fmt.Errorf("update circle: %w", err)
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE circles SET
		   admin = ?,
		   contribution = ?,
		   members = ?,
		   payout_queue = ?,
		   cycle_number = ?,
		   current_payout_index = ?,
		   total_volume_distributed = ?,
		   dissolution_votes = ?,
		   dissolved = ?,
		   randomize_order = ?,
		   created_at = ?,
		   updated_at = ?
		 WHERE id = ?`,
		circle.Admin,
		circle.Contribution,
		members,
		queue,
		int64(circle.CycleNumber),
		int64(circle.CurrentPayoutIndex),
		circle.TotalVolumeDistributed,
		votes,
		boolToInt(circle.Dissolved),
		boolToInt(circle.RandomizeOrder),
		toMillis(circle.CreatedAt),
		toMillis(circle.UpdatedAt),
		int64(circle.ID),
	)
	if err != nil {
		return fmt.Errorf("update circle: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update circle: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListCircles returns one page of circles ordered by ascending id.
func (s *Store) ListCircles(ctx context.Context, query storage.ListQuery) (storage.CirclePage, error) {
	if err := ctx.Err(); err != nil {
		return storage.CirclePage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.CirclePage{}, fmt.Errorf("storage is not configured")
	}
	if query.PageSize <= 0 {
		return storage.CirclePage{}, fmt.Errorf("page size must be greater than zero")
	}

	var (
		conditions []string
		args       []any
	)
	if query.Filter.Dissolved != nil {
		conditions = append(conditions, "dissolved = ?")
		args = append(args, boolToInt(*query.Filter.Dissolved))
	}
	if query.Filter.RandomizeOrder != nil {
		conditions = append(conditions, "randomize_order = ?")
		args = append(args, boolToInt(*query.Filter.RandomizeOrder))
	}
	if query.Filter.Admin != nil {
		conditions = append(conditions, "admin = ?")
		args = append(args, *query.Filter.Admin)
	}
	if query.Filter.Member != nil {
		conditions = append(conditions,
			`EXISTS (SELECT 1 FROM json_each(circles.members)
			 WHERE json_extract(json_each.value, '$.identity') = ?)`)
		args = append(args, *query.Filter.Member)
	}
	if token := strings.TrimSpace(query.PageToken); token != "" {
		afterID, err := strconv.ParseUint(token, 10, 64)
		if err != nil {
			return storage.CirclePage{}, storage.ErrInvalidPageToken
		}
		conditions = append(conditions, "id > ?")
		args = append(args, int64(afterID))
	}

	querySQL := `SELECT ` + circleColumns + ` FROM circles`
	if len(conditions) > 0 {
		querySQL += " WHERE " + strings.Join(conditions, " AND ")
	}
	querySQL += " ORDER BY id ASC LIMIT ?"
	args = append(args, query.PageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return storage.CirclePage{}, fmt.Errorf("list circles: %w", err)
	}
	defer rows.Close()

	page := storage.CirclePage{
		Circles: make([]domain.Circle, 0, query.PageSize),
	}
	for rows.Next() {
		circle, err := scanCircle(rows)
		if err != nil {
			return storage.CirclePage{}, fmt.Errorf("list circles: %w", err)
		}
		page.Circles = append(page.Circles, circle)
	}
	if err := rows.Err(); err != nil {
		return storage.CirclePage{}, fmt.Errorf("list circles: %w", err)
	}
	if len(page.Circles) > query.PageSize {
		page.NextPageToken = strconv.FormatUint(page.Circles[query.PageSize-1].ID, 10)
		page.Circles = page.Circles[:query.PageSize]
	}

	return page, nil
}

func encodeCircleColumns(circle domain.Circle) (members, queue, votes string, err error) {
	records := make([]memberRecord, len(circle.Members))
	for i, member := range circle.Members {
		records[i] = memberRecord(member)
	}
	memberJSON, err := json.Marshal(records)
	if err != nil {
		return "", "", "", fmt.Errorf("encode members: %w", err)
	}
	queueJSON, err := json.Marshal(identitySlice(circle.PayoutQueue))
	if err != nil {
		return "", "", "", fmt.Errorf("encode payout queue: %w", err)
	}
	voteJSON, err := json.Marshal(identitySlice(circle.DissolutionVotes))
	if err != nil {
		return "", "", "", fmt.Errorf("encode dissolution votes: %w", err)
	}
	return string(memberJSON), string(queueJSON), string(voteJSON), nil
}

// identitySlice normalizes nil slices so columns always hold a JSON array.
func identitySlice(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCircle(row rowScanner) (domain.Circle, error) {
	var (
		circle      domain.Circle
		id          int64
		memberJSON  string
		queueJSON   string
		voteJSON    string
		cycle       int64
		payoutIndex int64
		dissolved   int64
		randomize   int64
		createdAt   int64
		updatedAt   int64
	)
	err := row.Scan(
		&id,
		&circle.Admin,
		&circle.Contribution,
		&memberJSON,
		&queueJSON,
		&cycle,
		&payoutIndex,
		&circle.TotalVolumeDistributed,
		&voteJSON,
		&dissolved,
		&randomize,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return domain.Circle{}, err
	}

	var records []memberRecord
	if err := json.Unmarshal([]byte(memberJSON), &records); err != nil {
		return domain.Circle{}, fmt.Errorf("decode members: %w", err)
	}
	circle.Members = make([]domain.Member, len(records))
	for i, record := range records {
		circle.Members[i] = domain.Member(record)
	}
	if err := json.Unmarshal([]byte(queueJSON), &circle.PayoutQueue); err != nil {
		return domain.Circle{}, fmt.Errorf("decode payout queue: %w", err)
	}
	if err := json.Unmarshal([]byte(voteJSON), &circle.DissolutionVotes); err != nil {
		return domain.Circle{}, fmt.Errorf("decode dissolution votes: %w", err)
	}

	circle.ID = uint64(id)
	circle.CycleNumber = uint32(cycle)
	circle.CurrentPayoutIndex = uint32(payoutIndex)
	circle.Dissolved = dissolved != 0
	circle.RandomizeOrder = randomize != 0
	circle.CreatedAt = fromMillis(createdAt)
	circle.UpdatedAt = fromMillis(updatedAt)
	return circle, nil
}

var _ storage.CircleStore = (*Store)(nil)
