// Package badger provides a BadgerDB-backed council storage implementation.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/osusu/osusu/internal/services/council"
	"github.com/osusu/osusu/internal/services/council/storage"
)

const (
	councilKeyPrefix = "council/"
	sequenceKey      = "council_seq"
)

// Config holds the options for opening a council store.
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

// Store persists council state in BadgerDB.
type Store struct {
	db *badger.DB
}

// councilRecord is the stored JSON shape of one council.
type councilRecord struct {
	ID        uint64   `json:"id"`
	Elders    []string `json:"elders"`
	Threshold uint32   `json:"threshold"`
	Approvals []string `json:"approvals"`
	CreatedAt int64    `json:"created_at"`
	UpdatedAt int64    `json:"updated_at"`
}

// Open opens a BadgerDB council store.
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

// NextCouncilID allocates the next council identifier, starting at 1.
func (s *Store) NextCouncilID(ctx context.Context) (uint64, error) {
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
		return 0, fmt.Errorf("advance council sequence: %w", err)
	}
	return next, nil
}

// CreateCouncil inserts a new council record.
func (s *Store) CreateCouncil(ctx context.Context, record council.Council) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if record.ID == 0 {
		return fmt.Errorf("council id is required")
	}

	value, err := encodeCouncil(record)
	if err != nil {
		return fmt.Errorf("create council: %w", err)
	}
	key := councilKey(record.ID)

	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("council %d already exists", record.ID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, value)
	})
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
	if s == nil || s.db == nil {
		return council.Council{}, fmt.Errorf("storage is not configured")
	}

	var record council.Council
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(councilKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			record, err = decodeCouncil(val)
			return err
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return council.Council{}, storage.ErrNotFound
		}
		return council.Council{}, fmt.Errorf("get council: %w", err)
	}
	return record, nil
}

// UpdateCouncil replaces the stored record for record.ID.
func (s *Store) UpdateCouncil(ctx context.Context, record council.Council) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}

	value, err := encodeCouncil(record)
	if err != nil {
		return fmt.Errorf("update council: %w", err)
	}
	key := councilKey(record.ID)

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
		return fmt.Errorf("update council: %w", err)
	}
	return nil
}

// councilKey zero-pads the id so lexicographic key order matches numeric order.
func councilKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", councilKeyPrefix, id))
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func encodeCouncil(record council.Council) ([]byte, error) {
	return json.Marshal(councilRecord{
		ID:        record.ID,
		Elders:    record.Elders,
		Threshold: record.Threshold,
		Approvals: record.Approvals,
		CreatedAt: record.CreatedAt.UTC().UnixMilli(),
		UpdatedAt: record.UpdatedAt.UTC().UnixMilli(),
	})
}

func decodeCouncil(value []byte) (council.Council, error) {
	var record councilRecord
	if err := json.Unmarshal(value, &record); err != nil {
		return council.Council{}, fmt.Errorf("decode council: %w", err)
	}
	return council.Council{
		ID:        record.ID,
		Elders:    record.Elders,
		Threshold: record.Threshold,
		Approvals: record.Approvals,
		CreatedAt: fromMillis(record.CreatedAt),
		UpdatedAt: fromMillis(record.UpdatedAt),
	}, nil
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

var _ storage.CouncilStore = (*Store)(nil)
