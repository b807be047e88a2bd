// Package badger provides a BadgerDB-backed circle storage implementation.
// Every mutation runs inside one Update transaction, so a record commit is
// all-or-nothing.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/osusu/osusu/internal/services/circle/domain"
	"github.com/osusu/osusu/internal/services/circle/storage"
)

const (
	circleKeyPrefix = "circle/"
	sequenceKey     = "circle_seq"
)

// Config holds the options for opening a circle store.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory is set.
	Path string
	// InMemory keeps all state in RAM; data is lost on close.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger receives BadgerDB's internal messages. Nil silences them.
	Logger *log.Logger
}

// Store persists circle state in BadgerDB.
type Store struct {
	db *badger.DB
}

// circleRecord is the stored JSON shape of one circle.
type circleRecord struct {
	ID                     uint64         `json:"id"`
	Admin                  string         `json:"admin"`
	Contribution           int64          `json:"contribution"`
	Members                []memberRecord `json:"members"`
	PayoutQueue            []string       `json:"payout_queue"`
	CycleNumber            uint32         `json:"cycle_number"`
	CurrentPayoutIndex     uint32         `json:"current_payout_index"`
	TotalVolumeDistributed int64          `json:"total_volume_distributed"`
	DissolutionVotes       []string       `json:"dissolution_votes"`
	Dissolved              bool           `json:"dissolved"`
	RandomizeOrder         bool           `json:"randomize_order"`
	CreatedAt              int64          `json:"created_at"`
	UpdatedAt              int64          `json:"updated_at"`
}

type memberRecord struct {
	Identity         string `json:"identity"`
	ReceivedPayout   bool   `json:"received_payout"`
	ContributionPaid int64  `json:"contribution_paid"`
}

// Open opens a BadgerDB circle store.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the BadgerDB handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// NextCircleID allocates the next circle identifier, starting at 1.
func (s *Store) NextCircleID(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var next uint64
	err := s.db.Update(func(txn *badger.Txn) error {
		next = 1
		item, err := txn.Get([]byte(sequenceKey))
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error {
				if len(val) != 8 {
					return fmt.Errorf("sequence value has %d bytes, want 8", len(val))
				}
				next = binary.BigEndian.Uint64(val)
				return nil
			}); err != nil {
				return err
			}
		case errors.Is(err, badger.ErrKeyNotFound):
		default:
			return err
		}

		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], next+1)
		return txn.Set([]byte(sequenceKey), buf[:])
	})
	if err != nil {
		return 0, fmt.Errorf("advance circle sequence: %w", err)
	}
	return next, nil
}

// CreateCircle inserts a new circle record.
func (s *Store) CreateCircle(ctx context.Context, circle domain.Circle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if circle.ID == 0 {
		return fmt.Errorf("circle id is required")
	}

	value, err := encodeCircle(circle)
	if err != nil {
		return fmt.Errorf("create circle: %w", err)
	}
	key := circleKey(circle.ID)

	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("circle %d already exists", circle.ID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, value)
	})
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
	if s == nil || s.db == nil {
		return domain.Circle{}, fmt.Errorf("storage is not configured")
	}

	var circle domain.Circle
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(circleKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			circle, err = decodeCircle(val)
			return err
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
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
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}

	value, err := encodeCircle(circle)
	if err != nil {
		return fmt.Errorf("update circle: %w", err)
	}
	key := circleKey(circle.ID)

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Set(key, value)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("update circle: %w", err)
	}
	return nil
}

// ListCircles returns one page of circles ordered by ascending id.
func (s *Store) ListCircles(ctx context.Context, query storage.ListQuery) (storage.CirclePage, error) {
	if err := ctx.Err(); err != nil {
		return storage.CirclePage{}, err
	}
	if s == nil || s.db == nil {
		return storage.CirclePage{}, fmt.Errorf("storage is not configured")
	}
	if query.PageSize <= 0 {
		return storage.CirclePage{}, fmt.Errorf("page size must be greater than zero")
	}

	seek := []byte(circleKeyPrefix)
	if token := strings.TrimSpace(query.PageToken); token != "" {
		afterID, err := strconv.ParseUint(token, 10, 64)
		if err != nil {
			return storage.CirclePage{}, storage.ErrInvalidPageToken
		}
		seek = circleKey(afterID + 1)
	}

	page := storage.CirclePage{
		Circles: make([]domain.Circle, 0, query.PageSize),
	}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(circleKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.Valid(); it.Next() {
			var circle domain.Circle
			err := it.Item().Value(func(val []byte) error {
				var err error
				circle, err = decodeCircle(val)
				return err
			})
			if err != nil {
				return err
			}
			if !query.Filter.Matches(circle) {
				continue
			}
			page.Circles = append(page.Circles, circle)
			if len(page.Circles) > query.PageSize {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return storage.CirclePage{}, fmt.Errorf("list circles: %w", err)
	}
	if len(page.Circles) > query.PageSize {
		page.NextPageToken = strconv.FormatUint(page.Circles[query.PageSize-1].ID, 10)
		page.Circles = page.Circles[:query.PageSize]
	}

	return page, nil
}

// circleKey zero-pads the id so lexicographic key order matches numeric order.
func circleKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", circleKeyPrefix, id))
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func encodeCircle(circle domain.Circle) ([]byte, error) {
	record := circleRecord{
		ID:                     circle.ID,
		Admin:                  circle.Admin,
		Contribution:           circle.Contribution,
		Members:                make([]memberRecord, len(circle.Members)),
		PayoutQueue:            circle.PayoutQueue,
		CycleNumber:            circle.CycleNumber,
		CurrentPayoutIndex:     circle.CurrentPayoutIndex,
		TotalVolumeDistributed: circle.TotalVolumeDistributed,
		DissolutionVotes:       circle.DissolutionVotes,
		Dissolved:              circle.Dissolved,
		RandomizeOrder:         circle.RandomizeOrder,
		CreatedAt:              circle.CreatedAt.UTC().UnixMilli(),
		UpdatedAt:              circle.UpdatedAt.UTC().UnixMilli(),
	}
	for i, member := range circle.Members {
		record.Members[i] = memberRecord(member)
	}
	return json.Marshal(record)
}

func decodeCircle(value []byte) (domain.Circle, error) {
	var record circleRecord
	if err := json.Unmarshal(value, &record); err != nil {
		return domain.Circle{}, fmt.Errorf("decode circle: %w", err)
	}

	circle := domain.Circle{
		ID:                     record.ID,
		Admin:                  record.Admin,
		Contribution:           record.Contribution,
		Members:                make([]domain.Member, len(record.Members)),
		PayoutQueue:            record.PayoutQueue,
		CycleNumber:            record.CycleNumber,
		CurrentPayoutIndex:     record.CurrentPayoutIndex,
		TotalVolumeDistributed: record.TotalVolumeDistributed,
		DissolutionVotes:       record.DissolutionVotes,
		Dissolved:              record.Dissolved,
		RandomizeOrder:         record.RandomizeOrder,
	}
	for i, member := range record.Members {
		circle.Members[i] = domain.Member(member)
	}
	circle.CreatedAt = fromMillis(record.CreatedAt)
	circle.UpdatedAt = fromMillis(record.UpdatedAt)
	return circle, nil
}

// badgerLogger adapts the process logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *log.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Printf("badger error: "+format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Printf("badger warning: "+format, args...)
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Printf("badger: "+format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Printf("badger debug: "+format, args...)
}

var _ storage.CircleStore = (*Store)(nil)
